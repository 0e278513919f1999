package main

import (
	"context"
	"log"

	"github.com/campuslink/campus/config"
	"github.com/campuslink/campus/db"
	"github.com/campuslink/campus/mailingservices"
	"github.com/campuslink/campus/notifications"
	"github.com/campuslink/campus/realtime"
	"github.com/campuslink/campus/server"
	"github.com/campuslink/campus/services"
	"go.uber.org/zap"
)

func newLogger(conf *config.Config) (*zap.Logger, error) {
	if conf.IsProd() {
		return zap.NewProduction()
	}
	return zap.NewDevelopment()
}

func main() {
	conf, err := config.Load()
	if err != nil {
		log.Fatal(err)
	}

	logger, err := newLogger(conf)
	if err != nil {
		log.Fatal(err)
	}
	defer func() { _ = logger.Sync() }()

	ctx := context.Background()

	gormDB, err := db.GetDB(conf, logger)
	if err != nil {
		logger.Fatal("database setup failed", zap.Error(err))
	}

	authRepo := db.NewAuthRepo(gormDB)
	listingRepo := db.NewListingRepo(gormDB)
	chatRepo := db.NewChatRepo(gormDB)

	mailgunClient := mailingservices.NewMailgun(conf)

	authService := services.NewAuthService(authRepo, mailgunClient, conf, logger)
	chatService := services.NewChatService(chatRepo, listingRepo, conf, logger)

	var registry realtime.Registry
	if conf.RedisURL != "" {
		client, err := realtime.NewRedisClient(ctx, conf.RedisURL)
		if err != nil {
			logger.Fatal("redis setup failed", zap.Error(err))
		}
		defer client.Close()
		registry, err = realtime.NewRedisRegistry(ctx, client, logger)
		if err != nil {
			logger.Fatal("redis registry setup failed", zap.Error(err))
		}
		logger.Info("chat fan-out through redis")
	} else {
		registry = realtime.NewHub(logger)
	}
	defer registry.Close()

	// relay takes an interface; a nil *PushNotifier must not reach it
	var notifier realtime.MessageNotifier
	if conf.FirebaseCredentialsFile != "" {
		sender, err := notifications.NewFirebaseSender(ctx, conf.FirebaseCredentialsFile)
		if err != nil {
			logger.Fatal("firebase setup failed", zap.Error(err))
		}
		push := notifications.NewPushNotifier(authRepo, sender, logger)
		defer push.Wait()
		notifier = push
		logger.Info("firebase messaging client initialized")
	}

	relay := realtime.NewRelay(authService, chatService, chatService, registry, notifier, conf.ChatHistoryLimit, logger)

	s := &server.Server{
		Config:      conf,
		DB:          gormDB,
		AuthService: authService,
		ChatService: chatService,
		Relay:       relay,
		Log:         logger,
	}

	if err := s.Start(); err != nil {
		logger.Error("server stopped", zap.Error(err))
	}
}

package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/campuslink/campus/config"
	"github.com/campuslink/campus/db"
	"github.com/campuslink/campus/realtime"
	"github.com/campuslink/campus/services"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const shutdownTimeout = 15 * time.Second

// Server holds the HTTP and websocket surface and its dependencies
type Server struct {
	Config      *config.Config
	DB          *db.GormDB
	AuthService services.AuthService
	ChatService services.ChatService
	Relay       *realtime.Relay
	Log         *zap.Logger

	upgrader     websocket.Upgrader
	sessions     context.Context
	stopSessions context.CancelFunc
}

// Handler builds the router without starting a listener
func (s *Server) Handler() http.Handler {
	return s.setupRouter()
}

// Start serves until SIGINT or SIGTERM, then drains open requests and chat
// sessions
func (s *Server) Start() error {
	r := s.setupRouter()

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", s.Config.Port),
		Handler: r,
	}

	errCh := make(chan error, 1)
	go func() {
		s.Log.Info("server started", zap.Int("port", s.Config.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case sig := <-quit:
		s.Log.Info("shutting down server", zap.String("signal", sig.String()))
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("listen: %w", err)
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	// hijacked websocket connections are not tracked by Shutdown
	s.stopSessions()
	if err := srv.Shutdown(ctx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}
	s.Log.Info("server exiting")
	return nil
}

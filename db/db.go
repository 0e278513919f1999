package db

import (
	"fmt"

	"github.com/campuslink/campus/config"
	"github.com/campuslink/campus/models"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

type GormDB struct {
	DB *gorm.DB
}

func GetDB(c *config.Config, log *zap.Logger) (*GormDB, error) {
	gormDB := &GormDB{}
	if err := gormDB.Init(c, log); err != nil {
		return nil, err
	}
	return gormDB, nil
}

func (g *GormDB) Init(c *config.Config, log *zap.Logger) error {
	db, err := getPostgresDB(c, log)
	if err != nil {
		return err
	}
	g.DB = db

	if err := Migrate(g.DB); err != nil {
		return fmt.Errorf("unable to run migrations: %w", err)
	}
	return nil
}

func getPostgresDB(c *config.Config, log *zap.Logger) (*gorm.DB, error) {
	log.Info("connecting to postgres", zap.String("host", c.PostgresHost), zap.String("db", c.PostgresDB))

	gormConfig := &gorm.Config{}
	if !c.IsProd() {
		gormConfig.Logger = logger.Default.LogMode(logger.Info)
	}
	gormDB, err := gorm.Open(postgres.New(postgres.Config{
		DSN: c.PostgresDSN(),
	}), gormConfig)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}

	return gormDB, nil
}

// Migrate creates or updates the tables this service owns
func Migrate(db *gorm.DB) error {
	err := db.AutoMigrate(
		&models.User{},
		&models.Listing{},
		&models.Chat{},
		&models.Message{},
	)
	if err != nil {
		return fmt.Errorf("migrations error: %v", err)
	}
	return nil
}

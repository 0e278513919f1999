package config

import (
	"fmt"
	"log"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	Port                    int      `envconfig:"port" default:"8080"`
	Env                     string   `envconfig:"env" default:"dev"`
	DatabaseURL             string   `envconfig:"database_url"`
	PostgresHost            string   `envconfig:"postgres_host"`
	PostgresUser            string   `envconfig:"postgres_user"`
	PostgresDB              string   `envconfig:"postgres_db"`
	PostgresPort            int      `envconfig:"postgres_port" default:"5432"`
	PostgresPassword        string   `envconfig:"postgres_password"`
	JWTSecret               string   `envconfig:"jwt_secret" required:"true"`
	MailgunApiKey           string   `envconfig:"mg_public_api_key"`
	MgDomain                string   `envconfig:"mg_domain"`
	MgEmailFrom             string   `envconfig:"email_from" default:"Campus <no-reply@campus.local>"`
	FrontendURL             string   `envconfig:"frontend_url" default:"http://localhost:5173"`
	RedisURL                string   `envconfig:"redis_url"`
	FirebaseCredentialsFile string   `envconfig:"firebase_credentials_file"`
	ChatHistoryLimit        int      `envconfig:"chat_history_limit" default:"50"`
	AllowedOrigins          []string `envconfig:"allowed_origins"`
	ResetRateLimit          uint     `envconfig:"reset_rate_limit" default:"5"`
}

// Load reads the configuration from the environment. Outside release mode a
// local .env file is loaded first.
func Load() (*Config, error) {
	env := os.Getenv("GIN_MODE")
	if env != "release" {
		if err := godotenv.Load("./.env"); err != nil {
			log.Printf("couldn't load env vars: %v", err)
		}
	}

	c := &Config{}
	err := envconfig.Process("campus", c)
	if err != nil {
		return nil, err
	}
	return c, nil
}

// PostgresDSN returns DATABASE_URL when set, otherwise a keyword DSN built
// from the individual postgres settings.
func (c *Config) PostgresDSN() string {
	if c.DatabaseURL != "" {
		return c.DatabaseURL
	}
	return fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%d sslmode=disable TimeZone=UTC",
		c.PostgresHost, c.PostgresUser, c.PostgresPassword, c.PostgresDB, c.PostgresPort)
}

func (c *Config) IsProd() bool {
	return strings.EqualFold(c.Env, "prod")
}

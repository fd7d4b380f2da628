package config

import (
	"errors"
	"log"
	"os"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Database DatabaseConfig
	Server   ServerConfig
	Auth     AuthConfig
	Redis    RedisConfig
	Env      string
}

type DatabaseConfig struct {
	Host     string
	Port     string
	User     string
	Password string
	DBName   string
}

type ServerConfig struct {
	Port string
}

type AuthConfig struct {
	Secret     string
	TokenTTL   time.Duration
	CookieName string
}

type RedisConfig struct {
	URL string
}

// DefaultTokenTTL is the session cookie lifetime.
const DefaultTokenTTL = 7 * 24 * time.Hour

func LoadConfig() (*Config, error) {
	// Load .env file if it exists
	if err := godotenv.Load(); err != nil {
		log.Printf("Warning: .env file not found")
	}

	config := &Config{
		Database: DatabaseConfig{
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnv("DB_PORT", "3306"),
			User:     getEnv("DB_USER", ""),
			Password: getEnv("DB_PASSWORD", ""),
			DBName:   getEnv("DB_NAME", "fullmaster"),
		},
		Server: ServerConfig{
			Port: getEnv("SERVER_PORT", "8080"),
		},
		Auth: AuthConfig{
			Secret:     getEnv("AUTH_SECRET", ""),
			TokenTTL:   DefaultTokenTTL,
			CookieName: "fm_token",
		},
		Redis: RedisConfig{
			URL: getEnv("REDIS_URL", "redis://localhost:6379/0"),
		},
		Env: getEnv("ENVIRONMENT", "development"),
	}

	// A missing signing secret must abort startup; handlers treat it as a
	// 500-class condition, never as an invalid token.
	if config.Auth.Secret == "" {
		return nil, errors.New("AUTH_SECRET is not configured")
	}

	return config, nil
}

func getEnv(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}

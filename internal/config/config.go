package config

import (
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	DBFile      string
	APIAddr     string
	APIBaseURL  string
	WSBaseURL   string
	TokenExpiry time.Duration
}

func Load() (*Config, error) {
	// Missing .env is fine, env vars may come from the environment.
	_ = godotenv.Load()

	tokenExpiry, err := time.ParseDuration(getEnv("TOKEN_EXPIRY", "24h"))
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		DBFile:      getEnv("TELECHAT_DB", "telechat.db"),
		APIAddr:     getEnv("API_ADDR", ":8080"),
		APIBaseURL:  getEnv("API_BASE_URL", "http://localhost:8080"),
		WSBaseURL:   getEnv("WS_BASE_URL", "ws://localhost:8080"),
		TokenExpiry: tokenExpiry,
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) Validate() error {
	if c.TokenExpiry <= 0 {
		return fmt.Errorf("TOKEN_EXPIRY must be greater than 0")
	}

	return nil
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

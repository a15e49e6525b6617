// Package config provides application configuration loading and management.
package config

import (
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/spf13/viper"
)

// Store backends selectable via STORE_BACKEND.
const (
	BackendMemory = "memory"
	BackendRedis  = "redis"
	BackendSQLite = "sqlite"
)

// Config holds application configuration values loaded from file or
// environment variables.
type Config struct {
	Port           string `mapstructure:"PORT"`
	JWTSecret      string `mapstructure:"JWT_SECRET"`
	StoreBackend   string `mapstructure:"STORE_BACKEND"`
	RedisURL       string `mapstructure:"REDIS_URL"`
	SQLitePath     string `mapstructure:"SQLITE_PATH"`
	AllowedOrigins string `mapstructure:"ALLOWED_ORIGINS"`
	Env            string `mapstructure:"APP_ENV"`

	// PresenceGraceSeconds is the offline grace window armed when a client
	// backgrounds; TypingIdleMillis is the keystroke debounce before a
	// typing indicator clears.
	PresenceGraceSeconds int `mapstructure:"PRESENCE_GRACE_SECONDS"`
	TypingIdleMillis     int `mapstructure:"TYPING_IDLE_MILLIS"`
}

// PresenceGrace returns the offline grace window as a duration.
func (c *Config) PresenceGrace() time.Duration {
	return time.Duration(c.PresenceGraceSeconds) * time.Second
}

// TypingIdle returns the typing debounce as a duration.
func (c *Config) TypingIdle() time.Duration {
	return time.Duration(c.TypingIdleMillis) * time.Millisecond
}

// LoadConfig loads application configuration from file and environment
// variables.
func LoadConfig() (*Config, error) {
	viper.AddConfigPath(".")
	viper.AddConfigPath("..")
	viper.SetConfigName("config")
	viper.SetConfigType("yml")
	viper.AutomaticEnv()

	// The config file is optional; environment variables may carry
	// everything.
	_ = viper.ReadInConfig()

	viper.SetDefault("PORT", "8376")
	viper.SetDefault("JWT_SECRET", "your-secret-key-change-in-production")
	viper.SetDefault("STORE_BACKEND", BackendMemory)
	viper.SetDefault("REDIS_URL", "localhost:6379")
	viper.SetDefault("SQLITE_PATH", "playroom.db")
	viper.SetDefault("ALLOWED_ORIGINS", "http://localhost:5173,http://localhost:3000")
	viper.SetDefault("APP_ENV", "development")
	viper.SetDefault("PRESENCE_GRACE_SECONDS", 30)
	viper.SetDefault("TYPING_IDLE_MILLIS", 1000)

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("unable to decode config into struct: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &config, nil
}

// Validate ensures that required configuration values are present and meet
// security standards.
func (c *Config) Validate() error {
	if c.Port == "" {
		return errors.New("PORT is required")
	}
	if c.JWTSecret == "" {
		return errors.New("JWT_SECRET is required")
	}

	switch c.StoreBackend {
	case BackendMemory, BackendRedis, BackendSQLite:
	default:
		return fmt.Errorf("STORE_BACKEND must be one of %s, %s, %s", BackendMemory, BackendRedis, BackendSQLite)
	}

	if c.PresenceGraceSeconds <= 0 {
		return errors.New("PRESENCE_GRACE_SECONDS must be positive")
	}
	if c.TypingIdleMillis <= 0 {
		return errors.New("TYPING_IDLE_MILLIS must be positive")
	}

	isProduction := c.Env == "production" || c.Env == "prod"
	if isProduction {
		if c.JWTSecret == "your-secret-key-change-in-production" {
			return errors.New("JWT_SECRET must be changed from the default value in production")
		}
		if len(c.JWTSecret) < 32 {
			return errors.New("JWT_SECRET must be at least 32 characters in production")
		}
		if c.StoreBackend == BackendMemory {
			log.Println("WARNING: STORE_BACKEND is 'memory' in production. State will not survive a restart and cannot be shared between instances.")
		}
	}

	return nil
}

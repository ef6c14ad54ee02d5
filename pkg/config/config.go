// Package config loads application configuration from environment
// variables, with optional .env file support for local development.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"

	"github.com/trackstackhq/trackstack/pkg/observability"
	"github.com/trackstackhq/trackstack/pkg/storage"
)

// Config holds all application configuration
type Config struct {
	Server        ServerConfig
	Storage       storage.Config
	Auth          AuthConfig
	Observability ObservabilityConfig
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host            string
	Port            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration
}

// AuthConfig holds token and credential settings
type AuthConfig struct {
	// TokenSecret signs bearer tokens. Required.
	TokenSecret string
	TokenTTL    time.Duration

	// MasterKey and CompanyCode gate the master escalation path. Both are
	// required so the path cannot silently run with empty credentials.
	MasterKey   string
	CompanyCode string

	// Rate limiting for the credential endpoints.
	LoginRatePerSecond float64
	LoginRateBurst     int
}

// ObservabilityConfig holds logging and metrics settings
type ObservabilityConfig struct {
	LogLevel       observability.LogLevel
	MetricsEnabled bool
}

// Load reads configuration from the environment. A .env file in the working
// directory is loaded first when present; real environment variables win.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		Server: ServerConfig{
			Host:            getEnv("TRACKSTACK_HOST", "0.0.0.0"),
			Port:            getEnv("TRACKSTACK_PORT", "8080"),
			ReadTimeout:     getEnvDuration("TRACKSTACK_READ_TIMEOUT", 15*time.Second),
			WriteTimeout:    getEnvDuration("TRACKSTACK_WRITE_TIMEOUT", 15*time.Second),
			IdleTimeout:     getEnvDuration("TRACKSTACK_IDLE_TIMEOUT", 60*time.Second),
			ShutdownTimeout: getEnvDuration("TRACKSTACK_SHUTDOWN_TIMEOUT", 30*time.Second),
		},
		Storage: storage.Config{
			Driver:      storage.Driver(getEnv("TRACKSTACK_DB_DRIVER", string(storage.DriverSQLite))),
			DSN:         getEnv("TRACKSTACK_DB_DSN", "trackstack.db"),
			MaxConns:    getEnvInt("TRACKSTACK_DB_MAX_CONNS", 20),
			MinConns:    getEnvInt("TRACKSTACK_DB_MIN_CONNS", 2),
			PingTimeout: getEnvDuration("TRACKSTACK_DB_PING_TIMEOUT", 5*time.Second),
			MaxLifetime: getEnvDuration("TRACKSTACK_DB_MAX_LIFETIME", 1*time.Hour),
			MaxIdleTime: getEnvDuration("TRACKSTACK_DB_MAX_IDLE_TIME", 10*time.Minute),
		},
		Auth: AuthConfig{
			TokenSecret:        os.Getenv("TRACKSTACK_TOKEN_SECRET"),
			TokenTTL:           getEnvDuration("TRACKSTACK_TOKEN_TTL", 0),
			MasterKey:          os.Getenv("TRACKSTACK_MASTER_KEY"),
			CompanyCode:        os.Getenv("TRACKSTACK_COMPANY_CODE"),
			LoginRatePerSecond: getEnvFloat("TRACKSTACK_LOGIN_RATE", 5),
			LoginRateBurst:     getEnvInt("TRACKSTACK_LOGIN_BURST", 10),
		},
		Observability: ObservabilityConfig{
			LogLevel:       observability.ParseLogLevel(getEnv("TRACKSTACK_LOG_LEVEL", "info")),
			MetricsEnabled: getEnvBool("TRACKSTACK_METRICS_ENABLED", true),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return cfg, nil
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Server.Port == "" {
		return fmt.Errorf("server port is required")
	}
	switch c.Storage.Driver {
	case storage.DriverPostgres, storage.DriverSQLite:
	default:
		return fmt.Errorf("unsupported database driver %q", c.Storage.Driver)
	}
	if c.Storage.DSN == "" {
		return fmt.Errorf("database DSN is required")
	}
	if c.Auth.TokenSecret == "" {
		return fmt.Errorf("TRACKSTACK_TOKEN_SECRET is required")
	}
	if c.Auth.MasterKey == "" {
		return fmt.Errorf("TRACKSTACK_MASTER_KEY is required")
	}
	if c.Auth.CompanyCode == "" {
		return fmt.Errorf("TRACKSTACK_COMPANY_CODE is required")
	}
	return nil
}

// getEnv returns an environment variable or a default
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvBool returns a boolean environment variable or a default
func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

// getEnvInt returns an integer environment variable or a default
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return defaultValue
}

// getEnvFloat returns a float environment variable or a default
func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

// getEnvDuration returns a duration environment variable or a default
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

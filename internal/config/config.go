// Package config provides the environment-backed configuration used by
// cmd/server/main.go.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config holds runtime configuration for the approvals service.
type Config struct {
	Service  ServiceConfig
	Server   ServerConfig
	Database DatabaseConfig
	NATS     NATSConfig
	Identity IdentityConfig
	Signer   SignerConfig
	Auth     AuthConfig
	LogLevel string // LOG_LEVEL
}

// ServiceConfig identifies the running service instance.
type ServiceConfig struct {
	Name        string // SERVICE_NAME
	Version     string // SERVICE_VERSION
	Environment string // ENVIRONMENT
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port            int           // PORT
	ReadTimeout     time.Duration // READ_TIMEOUT
	WriteTimeout    time.Duration // WRITE_TIMEOUT
	IdleTimeout     time.Duration // IDLE_TIMEOUT
	ShutdownTimeout time.Duration // SHUTDOWN_TIMEOUT
}

// DatabaseConfig holds Postgres connection settings.
type DatabaseConfig struct {
	URL      string // DATABASE_URL
	MaxConns int32  // DB_MAX_CONNS
	MinConns int32  // DB_MIN_CONNS
}

// NATSConfig holds notification transport settings. An empty URL disables
// notification publishing.
type NATSConfig struct {
	URL string // NATS_URL
}

// IdentityConfig points at the identity service used for approver resolution.
type IdentityConfig struct {
	BaseURL string        // IDENTITY_URL
	Timeout time.Duration // IDENTITY_TIMEOUT
}

// SignerConfig points at the external e-signature provider. An empty BaseURL
// disables signature routing; WebhookSecret authenticates provider callbacks.
type SignerConfig struct {
	BaseURL       string        // SIGNER_URL
	Timeout       time.Duration // SIGNER_TIMEOUT
	WebhookSecret string        // SIGNER_WEBHOOK_SECRET
}

// AuthConfig holds JWT verification settings.
type AuthConfig struct {
	JWTSecret string // JWT_SECRET
}

// Load reads configuration from environment variables, applying defaults.
func Load() (*Config, error) {
	cfg := &Config{
		Service: ServiceConfig{
			Name:        getEnv("SERVICE_NAME", "be-sdlc-approvals"),
			Version:     getEnv("SERVICE_VERSION", "dev"),
			Environment: getEnv("ENVIRONMENT", "development"),
		},
		Server: ServerConfig{
			Port:            getEnvInt("PORT", 8086),
			ReadTimeout:     getEnvDuration("READ_TIMEOUT", 15*time.Second),
			WriteTimeout:    getEnvDuration("WRITE_TIMEOUT", 30*time.Second),
			IdleTimeout:     getEnvDuration("IDLE_TIMEOUT", 60*time.Second),
			ShutdownTimeout: getEnvDuration("SHUTDOWN_TIMEOUT", 15*time.Second),
		},
		Database: DatabaseConfig{
			URL:      os.Getenv("DATABASE_URL"),
			MaxConns: int32(getEnvInt("DB_MAX_CONNS", 10)),
			MinConns: int32(getEnvInt("DB_MIN_CONNS", 2)),
		},
		NATS: NATSConfig{
			URL: os.Getenv("NATS_URL"),
		},
		Identity: IdentityConfig{
			BaseURL: getEnv("IDENTITY_URL", "http://localhost:9081"),
			Timeout: getEnvDuration("IDENTITY_TIMEOUT", 5*time.Second),
		},
		Signer: SignerConfig{
			BaseURL:       os.Getenv("SIGNER_URL"),
			Timeout:       getEnvDuration("SIGNER_TIMEOUT", 10*time.Second),
			WebhookSecret: os.Getenv("SIGNER_WEBHOOK_SECRET"),
		},
		Auth: AuthConfig{
			JWTSecret: os.Getenv("JWT_SECRET"),
		},
		LogLevel: getEnv("LOG_LEVEL", "info"),
	}

	if cfg.Database.URL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}
	if cfg.Auth.JWTSecret == "" {
		return nil, fmt.Errorf("JWT_SECRET is required")
	}
	return cfg, nil
}

// getEnv gets an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvInt gets an environment variable as int or returns a default value
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return defaultValue
}

// getEnvDuration gets an environment variable as a duration ("30s", "1m") or
// returns a default value.
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

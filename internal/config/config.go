// Package config provides application configuration management.
// Configuration is loaded from environment variables following 12-factor principles.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v10"
)

// Config holds all application configuration.
// All fields are populated from environment variables.
type Config struct {
	// Application settings
	AppEnv  string `env:"APP_ENV" envDefault:"development"`
	AppPort int    `env:"APP_PORT" envDefault:"8080"`

	// Database (PostgreSQL)
	DatabaseURL string `env:"DATABASE_URL,required"`

	// Cache (Redis)
	RedisURL string `env:"REDIS_URL,required"`

	// Together AI (LLM backend for chat and classification)
	TogetherAPIKey string `env:"TOGETHER_API_KEY"`
	TogetherModel  string `env:"TOGETHER_MODEL" envDefault:"mistralai/Mistral-7B-Instruct-v0.1"`

	// Authentication
	JWTSecret string `env:"JWT_SECRET,required"`

	// Frontend base URL for magic link redirects (e.g. https://app.driveline.io)
	FrontendURL string `env:"FRONTEND_URL" envDefault:"http://localhost:3000"`

	// SMTP settings for magic link delivery.
	// When SMTPHost is empty, magic links are logged instead of emailed
	// (development mode).
	SMTPHost string `env:"SMTP_HOST"`
	SMTPPort int    `env:"SMTP_PORT" envDefault:"587"`
	SMTPUser string `env:"SMTP_USER"`
	SMTPPass string `env:"SMTP_PASS"`
	SMTPFrom string `env:"SMTP_FROM" envDefault:"no-reply@driveline.io"`

	// Scanner defaults
	ScannerPort string `env:"SCANNER_PORT"`
	ScannerBaud int    `env:"SCANNER_BAUD" envDefault:"38400"`

	// Logging
	LogLevel  string `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat string `env:"LOG_FORMAT" envDefault:"json"`

	// Server timeouts. WriteTimeout is generous because chat requests
	// block on the upstream LLM.
	ReadTimeout     time.Duration `env:"READ_TIMEOUT" envDefault:"5s"`
	WriteTimeout    time.Duration `env:"WRITE_TIMEOUT" envDefault:"60s"`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"30s"`

	// Magic link rate limiting (requests per email per window)
	MagicLinkRateLimit  int           `env:"MAGIC_LINK_RATE_LIMIT" envDefault:"3"`
	MagicLinkRateWindow time.Duration `env:"MAGIC_LINK_RATE_WINDOW" envDefault:"5m"`

	// CORS configuration
	// Comma-separated list of allowed origins (e.g., "https://app.driveline.io")
	CORSAllowedOrigins string `env:"CORS_ALLOWED_ORIGINS" envDefault:""`

	// Request body size limit in bytes (default 1MB)
	MaxRequestBodySize int64 `env:"MAX_REQUEST_BODY_SIZE" envDefault:"1048576"`
}

// IsDevelopment returns true if running in development mode.
func (c *Config) IsDevelopment() bool {
	return c.AppEnv == "development"
}

// IsProduction returns true if running in production mode.
func (c *Config) IsProduction() bool {
	return c.AppEnv == "production"
}

// LLMEnabled reports whether an LLM API key is configured.
func (c *Config) LLMEnabled() bool {
	return c.TogetherAPIKey != ""
}

// GetCORSAllowedOrigins parses the comma-separated origins string into a slice.
func (c *Config) GetCORSAllowedOrigins() []string {
	if c.CORSAllowedOrigins == "" {
		return nil
	}

	origins := strings.Split(c.CORSAllowedOrigins, ",")
	result := make([]string, 0, len(origins))

	for _, origin := range origins {
		trimmed := strings.TrimSpace(origin)
		if trimmed != "" {
			result = append(result, trimmed)
		}
	}

	return result
}

// Load parses environment variables and returns a Config.
// Returns an error if required variables are missing.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	return cfg, nil
}

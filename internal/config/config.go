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

	// Cache and click stream (Redis)
	RedisURL string `env:"REDIS_URL,required"`

	// Logging
	LogLevel  string `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat string `env:"LOG_FORMAT" envDefault:"json"`

	// Server timeouts
	ReadTimeout     time.Duration `env:"READ_TIMEOUT" envDefault:"5s"`
	WriteTimeout    time.Duration `env:"WRITE_TIMEOUT" envDefault:"30s"`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"30s"`

	// Dashboard
	// IANA zone that calendar buckets and date presets are computed in.
	DashboardTimezone string        `env:"DASHBOARD_TIMEZONE" envDefault:"UTC"`
	PresetsFile       string        `env:"PRESETS_FILE" envDefault:""`
	DatasetCacheTTL   time.Duration `env:"DATASET_CACHE_TTL" envDefault:"30s"`
	ClickEventLimit   int           `env:"CLICK_EVENT_LIMIT" envDefault:"50000"`
	FetchTimeout      time.Duration `env:"FETCH_TIMEOUT" envDefault:"10s"`

	// Click ingestion
	AnalyticsWorkerEnabled bool `env:"ANALYTICS_WORKER_ENABLED" envDefault:"true"`
	ClickBatchSize         int  `env:"CLICK_BATCH_SIZE" envDefault:"500"`
	IngestRateLimitEnabled bool `env:"INGEST_RATE_LIMIT_ENABLED" envDefault:"true"`
	IngestRPS              int  `env:"INGEST_RPS" envDefault:"50"`
	IngestBurst            int  `env:"INGEST_BURST" envDefault:"20"`

	// CORS configuration
	// Comma-separated list of allowed origins (e.g., "https://example.com,https://app.example.com")
	CORSAllowedOrigins string `env:"CORS_ALLOWED_ORIGINS" envDefault:""`
}

// IsDevelopment returns true if running in development mode.
func (c *Config) IsDevelopment() bool {
	return c.AppEnv == "development"
}

// IsProduction returns true if running in production mode.
func (c *Config) IsProduction() bool {
	return c.AppEnv == "production"
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

// Location returns the dashboard timezone.
func (c *Config) Location() (*time.Location, error) {
	loc, err := time.LoadLocation(c.DashboardTimezone)
	if err != nil {
		return nil, fmt.Errorf("invalid DASHBOARD_TIMEZONE %q: %w", c.DashboardTimezone, err)
	}
	return loc, nil
}

// Validate checks values env tags cannot express.
func (c *Config) Validate() error {
	if _, err := c.Location(); err != nil {
		return err
	}
	if c.ClickEventLimit < 1 {
		return fmt.Errorf("CLICK_EVENT_LIMIT must be positive, got %d", c.ClickEventLimit)
	}
	if c.FetchTimeout <= 0 {
		return fmt.Errorf("FETCH_TIMEOUT must be positive, got %s", c.FetchTimeout)
	}
	if c.ClickBatchSize < 1 {
		return fmt.Errorf("CLICK_BATCH_SIZE must be positive, got %d", c.ClickBatchSize)
	}
	if c.IngestRateLimitEnabled && (c.IngestRPS < 1 || c.IngestBurst < 1) {
		return fmt.Errorf("INGEST_RPS and INGEST_BURST must be positive when ingest rate limiting is enabled")
	}
	return nil
}

// Load parses environment variables and returns a Config.
// Returns an error if required variables are missing or invalid.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

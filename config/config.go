// Package config loads application configuration from the environment.
package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

// Environment represents the application environment.
type Environment string

const (
	EnvDevelopment Environment = "development"
	EnvStaging     Environment = "staging"
	EnvProduction  Environment = "production"
)

// Config holds all application configuration.
type Config struct {
	// Application
	App AppConfig

	// Ingest and resolution engine
	Engine EngineConfig

	// HTTP API
	HTTP HTTPConfig

	// Journal archive (PostgreSQL). Empty URL disables the archive.
	Database DatabaseConfig

	// Presence cache (Redis). Empty URL disables the cache.
	Redis RedisConfig
}

// AppConfig holds general application settings.
type AppConfig struct {
	Name        string      `env:"APP_NAME" envDefault:"rollcall"`
	Environment Environment `env:"APP_ENV" envDefault:"development"`
	Debug       bool        `env:"APP_DEBUG" envDefault:"false"`

	// Graceful shutdown timeout.
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"15s"`
}

// EngineConfig tunes the observation pipeline and resolution thresholds.
type EngineConfig struct {
	// RSSIThreshold filters advertisements weaker than this, in dBm.
	RSSIThreshold int `env:"RSSI_THRESHOLD" envDefault:"-70"`

	// SignalHistorySize bounds the per-device sample ring.
	SignalHistorySize int `env:"SIGNAL_HISTORY_SIZE" envDefault:"50"`

	// QueueSize bounds the observation queue.
	QueueSize int `env:"QUEUE_SIZE" envDefault:"256"`

	// AutoConfirmThreshold is the minimum score for automatic confirmation.
	AutoConfirmThreshold float64 `env:"AUTO_CONFIRM_THRESHOLD" envDefault:"0.9"`

	// ReviewThreshold is the minimum score for queueing a review.
	ReviewThreshold float64 `env:"REVIEW_THRESHOLD" envDefault:"0.5"`

	// AbsenceTimeout is the silence window before a student is swept out.
	AbsenceTimeout time.Duration `env:"ABSENCE_TIMEOUT" envDefault:"10m"`

	// SweepInterval is how often the absence sweep runs.
	SweepInterval time.Duration `env:"SWEEP_INTERVAL" envDefault:"30s"`

	// ArchiveInterval is how often new journal entries are archived.
	ArchiveInterval time.Duration `env:"ARCHIVE_INTERVAL" envDefault:"1m"`

	// SessionID resumes an existing session after a restart, replaying its
	// archived journal before tracking continues. Empty opens a fresh session.
	SessionID string `env:"SESSION_ID"`
}

// HTTPConfig holds the API server settings.
type HTTPConfig struct {
	Host string `env:"HTTP_HOST" envDefault:"0.0.0.0"`
	Port int    `env:"HTTP_PORT" envDefault:"8080"`
}

// DatabaseConfig holds the PostgreSQL settings.
type DatabaseConfig struct {
	URL string `env:"DATABASE_URL"`
}

// RedisConfig holds the Redis settings.
type RedisConfig struct {
	URL string `env:"REDIS_URL"`
}

// Load reads configuration from the environment and validates it.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks cross-field constraints.
func (c *Config) Validate() error {
	switch c.App.Environment {
	case EnvDevelopment, EnvStaging, EnvProduction:
	default:
		return fmt.Errorf("config: unknown environment %q", c.App.Environment)
	}

	if c.Engine.ReviewThreshold > c.Engine.AutoConfirmThreshold {
		return fmt.Errorf("config: REVIEW_THRESHOLD above AUTO_CONFIRM_THRESHOLD")
	}
	if c.Engine.AutoConfirmThreshold > 1 || c.Engine.ReviewThreshold < 0 {
		return fmt.Errorf("config: thresholds must be within [0, 1]")
	}
	if c.Engine.SignalHistorySize <= 0 {
		return fmt.Errorf("config: SIGNAL_HISTORY_SIZE must be positive")
	}
	if c.Engine.AbsenceTimeout <= 0 {
		return fmt.Errorf("config: ABSENCE_TIMEOUT must be positive")
	}
	return nil
}

// IsProduction reports whether the app runs in production.
func (c *Config) IsProduction() bool {
	return c.App.Environment == EnvProduction
}

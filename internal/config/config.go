// Package config provides application configuration.
package config

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
)

// Pending-question backends.
const (
	PendingBackendSQLite = "sqlite"
	PendingBackendRedis  = "redis"
)

// Config holds all application configuration.
type Config struct {
	Port               string        `env:"PORT" envDefault:"8080"`
	GRPCPort           string        `env:"GRPC_PORT"`
	InboundToken       string        `env:"INBOUND_TOKEN"`
	FrontendURL        string        `env:"FRONTEND_URL"`
	DBPath             string        `env:"DB_PATH" envDefault:"./data/checkin.db"`
	LogLevel           string        `env:"LOG_LEVEL" envDefault:"info"`
	QuestionsFile      string        `env:"QUESTIONS_FILE"`
	SchedulerTick      time.Duration `env:"SCHEDULER_TICK" envDefault:"1m"`
	SessionTTL         time.Duration `env:"SESSION_TTL" envDefault:"12h"`
	ExpirySweep        time.Duration `env:"EXPIRY_SWEEP_INTERVAL" envDefault:"5m"`
	HealthCheckTimeout time.Duration `env:"HEALTH_CHECK_TIMEOUT" envDefault:"5s"`
	PendingBackend     string        `env:"PENDING_BACKEND" envDefault:"sqlite"`
	Redis              RedisConfig
	Worker             WorkerConfig
	Transcript         TranscriptConfig
}

// RedisConfig configures the optional Redis pending-question backend.
type RedisConfig struct {
	Addr     string `env:"REDIS_ADDR" envDefault:"127.0.0.1:6379"`
	Username string `env:"REDIS_USERNAME"`
	Password string `env:"REDIS_PASSWORD"`
	DB       int    `env:"REDIS_DB" envDefault:"0"`
}

// WorkerConfig controls the per-user serial queues.
type WorkerConfig struct {
	QueueSize   int           `env:"WORKER_QUEUE_SIZE" envDefault:"16"`
	IdleTimeout time.Duration `env:"WORKER_IDLE_TIMEOUT" envDefault:"5m"`
}

// TranscriptConfig controls NDJSON chat transcripts.
type TranscriptConfig struct {
	Enabled   bool   `env:"TRANSCRIPT_ENABLED" envDefault:"true"`
	Dir       string `env:"TRANSCRIPT_DIR" envDefault:"./data/transcripts"`
	QueueSize int    `env:"TRANSCRIPT_QUEUE_SIZE" envDefault:"1000"`
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}

	cfg.PendingBackend = strings.ToLower(strings.TrimSpace(cfg.PendingBackend))

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Validate checks that all required configuration fields are set.
func (c *Config) Validate() error {
	if c.Port == "" {
		return fmt.Errorf("PORT cannot be empty")
	}
	if c.DBPath == "" {
		return fmt.Errorf("DB_PATH cannot be empty")
	}
	if c.SchedulerTick <= 0 {
		return fmt.Errorf("SCHEDULER_TICK must be > 0")
	}
	if c.SessionTTL < 0 {
		return fmt.Errorf("SESSION_TTL must be >= 0")
	}
	if c.SessionTTL > 0 && c.ExpirySweep <= 0 {
		return fmt.Errorf("EXPIRY_SWEEP_INTERVAL must be > 0 when SESSION_TTL is set")
	}
	switch c.PendingBackend {
	case PendingBackendSQLite:
	case PendingBackendRedis:
		if c.Redis.Addr == "" {
			return fmt.Errorf("REDIS_ADDR cannot be empty with PENDING_BACKEND=redis")
		}
	default:
		return fmt.Errorf("PENDING_BACKEND must be %q or %q, got %q", PendingBackendSQLite, PendingBackendRedis, c.PendingBackend)
	}
	if c.Worker.QueueSize <= 0 {
		return fmt.Errorf("WORKER_QUEUE_SIZE must be > 0")
	}
	if c.Transcript.Enabled {
		if c.Transcript.Dir == "" {
			return fmt.Errorf("TRANSCRIPT_DIR cannot be empty")
		}
		if c.Transcript.QueueSize <= 0 {
			return fmt.Errorf("TRANSCRIPT_QUEUE_SIZE must be > 0")
		}
	}
	return nil
}

// IsDevelopment returns true if running in development mode.
func (c *Config) IsDevelopment() bool {
	return c.FrontendURL == "" ||
		strings.Contains(c.FrontendURL, "localhost") ||
		strings.Contains(c.FrontendURL, "127.0.0.1")
}

// AllowedOrigins returns the CORS origins for the HTTP API.
func (c *Config) AllowedOrigins() []string {
	if c.IsDevelopment() {
		return []string{"*"}
	}
	return []string{strings.TrimRight(c.FrontendURL, "/")}
}

// SlogLevel maps LOG_LEVEL onto a slog level, defaulting to info.
func (c *Config) SlogLevel() slog.Level {
	switch strings.ToLower(strings.TrimSpace(c.LogLevel)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

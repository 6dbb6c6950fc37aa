package config

import (
	"fmt"
	"log/slog"

	"github.com/caarlos0/env/v11"
	"github.com/go-playground/validator/v10"
)

type Config struct {
	Env  string `env:"ENV" envDefault:"local" validate:"required,oneof=local staging production"`
	Port string `env:"PORT" envDefault:"8080" validate:"required"`

	DatabaseURL         string `env:"DATABASE_URL,required" validate:"required"`
	WorkerCount         int    `env:"WORKER_COUNT" envDefault:"5" validate:"min=1,max=100"`
	PollIntervalSec     int    `env:"POLL_INTERVAL_SEC" envDefault:"1" validate:"min=1,max=60"`
	DispatchIntervalSec int    `env:"DISPATCH_INTERVAL_SEC" envDefault:"5" validate:"min=1,max=60"`

	MetricsPort string `env:"METRICS_PORT" envDefault:"9090"`
	LogLevel    string `env:"LOG_LEVEL" envDefault:"info" validate:"required,oneof=debug info warn error"`

	// JWTSecret signs/verifies the HMAC service-bearer tokens every
	// protected route requires.
	JWTSecret string `env:"JWT_SECRET" validate:"required"`

	// NotifyAPIKey/NotifyFrom configure the f_on_save Sender
	// (internal/notify); unused in ENV=local, which logs instead.
	NotifyAPIKey string `env:"NOTIFY_API_KEY" validate:"required_if=Env production,required_if=Env staging"`
	NotifyFrom   string `env:"NOTIFY_FROM"    validate:"required_if=Env production,required_if=Env staging"`

	// StoreBackend selects the persistence implementation. Only
	// "relational" ships; "in_memory" is reserved for test tooling and is
	// accepted here so the name is stable if it ever grows a binary home.
	StoreBackend string `env:"STORE_BACKEND" envDefault:"relational" validate:"required,oneof=relational in_memory"`

	// Sweep tuning.
	SweepStalledExecutionsEnabled      bool `env:"SWEEP_STALLED_EXECUTIONS_ENABLED" envDefault:"true"`
	SweepStalledExecutionsPreferredHr  *int `env:"SWEEP_STALLED_EXECUTIONS_PREFERRED_HOUR"`
	SweepMissedCatchallEnabled         bool `env:"SWEEP_MISSED_SCHEDULES_CATCHALL_ENABLED" envDefault:"true"`
	SweepMissedCatchallPreferredHr     int  `env:"SWEEP_MISSED_SCHEDULES_CATCHALL_PREFERRED_HOUR" envDefault:"2"`
	SweepMissedCatchallLookbackDays    int  `env:"SWEEP_MISSED_SCHEDULES_CATCHALL_LOOKBACK_DAYS" envDefault:"7" validate:"min=1"`
	SweepScheduleNodesMinSecsBetween   int  `env:"SWEEP_SCHEDULE_NODES_MIN_SECONDS_BETWEEN_RUNS" envDefault:"120" validate:"min=1"`
}

func Load() (*Config, error) {
	cfg := &Config{}

	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}

	if err := validator.New().Struct(cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

// SlogLevel converts the LOG_LEVEL string to a slog.Level.
func (c *Config) SlogLevel() slog.Level {
	switch c.LogLevel {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

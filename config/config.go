package config

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/go-playground/validator/v10"
	"github.com/robfig/cron/v3"
)

type Config struct {
	Env      string `env:"ENV"       envDefault:"local" validate:"required,oneof=local staging production"`
	Port     string `env:"PORT"      envDefault:"8000"  validate:"required"`
	LogLevel string `env:"LOG_LEVEL" envDefault:"info"  validate:"oneof=debug info warn error"`

	StoreDriver      string        `env:"STORE_DRIVER"       envDefault:"postgres"      validate:"oneof=postgres sqlite"`
	DatabaseURL      string        `env:"DATABASE_URL"                                  validate:"required_if=StoreDriver postgres"`
	SQLitePath       string        `env:"SQLITE_PATH"        envDefault:"newsletter.db" validate:"required_if=StoreDriver sqlite"`
	DBAcquireTimeout time.Duration `env:"DB_ACQUIRE_TIMEOUT" envDefault:"2s"            validate:"min=100ms"`
	MigrateOnStart   bool          `env:"MIGRATE_ON_START"   envDefault:"true"`

	MetricsPort string `env:"METRICS_PORT" envDefault:"9090"`

	EmailProvider       string        `env:"EMAIL_PROVIDER"        envDefault:"log"                   validate:"oneof=log resend ses"`
	EmailFrom           string        `env:"EMAIL_FROM"                                               validate:"required_unless=EmailProvider log"`
	EmailTimeout        time.Duration `env:"EMAIL_TIMEOUT"         envDefault:"60s"                   validate:"min=1s"`
	ResendAPIKey        string        `env:"RESEND_API_KEY"                                           validate:"required_if=EmailProvider resend"`
	ResendBaseURL       string        `env:"RESEND_BASE_URL"                                          validate:"omitempty,url"`
	AWSRegion           string        `env:"AWS_REGION"            envDefault:"us-east-1"`
	AWSAccessKeyID      string        `env:"AWS_ACCESS_KEY_ID"`
	AWSSecretAccessKey  string        `env:"AWS_SECRET_ACCESS_KEY"                                    validate:"required_with=AWSAccessKeyID"`
	ConfirmationBaseURL string        `env:"CONFIRMATION_BASE_URL" envDefault:"http://127.0.0.1:8000" validate:"required,url"`

	RedisURL string `env:"REDIS_URL" validate:"omitempty,url"`

	RelayInProcess      bool          `env:"RELAY_IN_PROCESS"      envDefault:"true"`
	OutboxPollInterval  time.Duration `env:"OUTBOX_POLL_INTERVAL"  envDefault:"5s"     validate:"min=100ms"`
	OutboxBatchSize     int           `env:"OUTBOX_BATCH_SIZE"     envDefault:"10"     validate:"min=1,max=100"`
	OutboxMaxAttempts   int           `env:"OUTBOX_MAX_ATTEMPTS"   envDefault:"8"      validate:"min=1,max=50"`
	OutboxGrace         time.Duration `env:"OUTBOX_GRACE"          envDefault:"90s"    validate:"gtfield=EmailTimeout"`
	OutboxPurgeSchedule string        `env:"OUTBOX_PURGE_SCHEDULE" envDefault:"@daily" validate:"cron"`
	OutboxRetention     time.Duration `env:"OUTBOX_RETENTION"      envDefault:"720h"   validate:"min=1h"`

	AdminJWTSecret string `env:"ADMIN_JWT_SECRET" validate:"omitempty,min=32"`
}

func Load() (*Config, error) {
	cfg := &Config{}

	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

func (c *Config) validate() error {
	v := validator.New()
	if err := v.RegisterValidation("cron", validCron); err != nil {
		return err
	}
	if err := v.Struct(c); err != nil {
		return err
	}
	if c.Env != "local" && c.EmailProvider == "log" {
		return errors.New("EMAIL_PROVIDER=log is only allowed with ENV=local")
	}
	return nil
}

func validCron(fl validator.FieldLevel) bool {
	_, err := cron.ParseStandard(fl.Field().String())
	return err == nil
}

// OutboxLease is how long a claimed message stays invisible to other relays:
// long enough for one send to time out.
func (c *Config) OutboxLease() time.Duration {
	return c.EmailTimeout + 30*time.Second
}

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

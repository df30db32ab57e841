package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// AppConfig holds all configuration for the application
type AppConfig struct {
	DatabaseURL   string `env:"DATABASE_URL,required,notEmpty"`
	HTTPAddr      string `env:"HTTP_ADDR" envDefault:":8080"`
	TelegramToken string `env:"TELEGRAM_TOKEN"` // Bot and push delivery are off when empty
	RedisURL      string `env:"REDIS_URL"`      // Cross-process dedup claims are off when empty
	LogLevel      string `env:"LOG_LEVEL" envDefault:"info"`
	Environment   string `env:"ENVIRONMENT" envDefault:"development"`
	Timezone      string `env:"TIMEZONE" envDefault:"Local"`

	CronSpecClosureSweep  string `env:"CRON_SPEC_CLOSURE_SWEEP" envDefault:"*/5 * * * *"`
	CronSpecTimerWarnings string `env:"CRON_SPEC_TIMER_WARNINGS" envDefault:"*/5 * * * *"`
	CronSpecDelivery      string `env:"CRON_SPEC_DELIVERY" envDefault:"* * * * *"`

	DedupWindow       time.Duration `env:"DEDUP_WINDOW" envDefault:"24h"`
	SweepConcurrency  int           `env:"SWEEP_CONCURRENCY" envDefault:"8"`
	TeamCacheSize     int           `env:"TEAM_CACHE_SIZE" envDefault:"1024"`
	TeamCacheTTL      time.Duration `env:"TEAM_CACHE_TTL" envDefault:"1m"`
	ChangeFeedEnabled bool          `env:"CHANGE_FEED_ENABLED" envDefault:"true"`

	location *time.Location
}

// Load reads configuration from environment variables and .env file (if present).
func Load() (*AppConfig, error) {
	// godotenv.Load does not override variables that are already set.
	_ = godotenv.Load()

	cfg := &AppConfig{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	cfg.LogLevel = strings.ToLower(cfg.LogLevel)
	cfg.Environment = strings.ToLower(cfg.Environment)

	loc, err := time.LoadLocation(cfg.Timezone)
	if err != nil {
		return nil, fmt.Errorf("invalid TIMEZONE %q: %w", cfg.Timezone, err)
	}
	cfg.location = loc

	if cfg.SweepConcurrency < 1 {
		return nil, fmt.Errorf("SWEEP_CONCURRENCY must be positive, got %d", cfg.SweepConcurrency)
	}
	if cfg.DedupWindow <= 0 {
		return nil, fmt.Errorf("DEDUP_WINDOW must be positive, got %s", cfg.DedupWindow)
	}
	return cfg, nil
}

// Location is the zone that defines local midnight for every team.
func (c *AppConfig) Location() *time.Location {
	if c.location == nil {
		return time.Local
	}
	return c.location
}

func (c *AppConfig) IsProduction() bool {
	return c.Environment == "production" || c.Environment == "staging"
}

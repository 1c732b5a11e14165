package scheduler

import (
	"time"

	"github.com/smallbiznis/collecta/internal/config"
)

// Config controls scheduler intervals and batch sizes.
type Config struct {
	RunInterval     time.Duration
	BatchSize       int
	ExpireGraceDays int
}

func DefaultConfig() Config {
	return Config{
		RunInterval:     time.Hour,
		BatchSize:       200,
		ExpireGraceDays: 90,
	}
}

func (c Config) withDefaults() Config {
	defaults := DefaultConfig()
	if c.RunInterval <= 0 {
		c.RunInterval = defaults.RunInterval
	}
	if c.BatchSize <= 0 {
		c.BatchSize = defaults.BatchSize
	}
	if c.ExpireGraceDays <= 0 {
		c.ExpireGraceDays = defaults.ExpireGraceDays
	}
	return c
}

// ProvideConfig maps the application configuration onto scheduler tuning.
func ProvideConfig(cfg config.Config) Config {
	return Config{
		RunInterval:     time.Duration(cfg.SchedulerRunInterval) * time.Second,
		BatchSize:       cfg.SchedulerBatchSize,
		ExpireGraceDays: cfg.ExpireGraceDays,
	}
}

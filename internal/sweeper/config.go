package sweeper

import (
	"time"

	"github.com/smallbiznis/splitpay/internal/config"
)

// Config controls how often the sweep runs and how long one run may take.
type Config struct {
	RunInterval time.Duration
	RunTimeout  time.Duration
	LockKey     string
}

func DefaultConfig() Config {
	return Config{
		RunInterval: time.Hour,
		RunTimeout:  30 * time.Second,
		LockKey:     "splitpay:sweeper:lock",
	}
}

func (c Config) withDefaults() Config {
	defaults := DefaultConfig()
	if c.RunInterval <= 0 {
		c.RunInterval = defaults.RunInterval
	}
	if c.RunTimeout <= 0 {
		c.RunTimeout = defaults.RunTimeout
	}
	if c.LockKey == "" {
		c.LockKey = defaults.LockKey
	}
	return c
}

func ProvideConfig(cfg config.Config) Config {
	return Config{
		RunInterval: cfg.SweepInterval,
		LockKey:     cfg.MirrorKey + ":sweeper:lock",
	}.withDefaults()
}

package reconciler

import (
	"time"
)

// Config controls sweep scheduling.
type Config struct {
	RunInterval  time.Duration
	SweepTimeout time.Duration
}

func DefaultConfig() Config {
	return Config{
		RunInterval:  time.Hour,
		SweepTimeout: 10 * time.Minute,
	}
}

func (c Config) withDefaults() Config {
	defaults := DefaultConfig()
	if c.RunInterval <= 0 {
		c.RunInterval = defaults.RunInterval
	}
	if c.SweepTimeout <= 0 {
		c.SweepTimeout = defaults.SweepTimeout
	}
	return c
}

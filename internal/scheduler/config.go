package scheduler

import (
	"time"

	"github.com/smallbiznis/toolhub/internal/config"
)

// Config controls scheduler intervals and retention.
type Config struct {
	RunInterval        time.Duration
	SessionGracePeriod time.Duration
	JobTimeout         time.Duration
	EnabledJobs        []string
}

func DefaultConfig() Config {
	return Config{
		RunInterval:        time.Minute,
		SessionGracePeriod: 24 * time.Hour,
		JobTimeout:         30 * time.Second,
	}
}

func ProvideConfig(cfg config.Config) Config {
	return Config{
		RunInterval: cfg.Scheduler.RunInterval,
	}.withDefaults()
}

func (c Config) withDefaults() Config {
	defaults := DefaultConfig()
	if c.RunInterval <= 0 {
		c.RunInterval = defaults.RunInterval
	}
	if c.SessionGracePeriod <= 0 {
		c.SessionGracePeriod = defaults.SessionGracePeriod
	}
	if c.JobTimeout <= 0 {
		c.JobTimeout = defaults.JobTimeout
	}
	return c
}

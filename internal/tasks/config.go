package tasks

import (
	"time"

	"github.com/mrlokans/librarian/internal/config"
)

// Config holds configuration for the task queue system.
type Config struct {
	// DatabasePath overrides the derived "<main>-tasks.db" location.
	DatabasePath string

	// Workers is the number of concurrent task workers. Default: 2
	Workers int

	// MaxRetries and RetryDelay are advisory; each queue sets its own. Default: 3, 1m
	MaxRetries int
	RetryDelay time.Duration

	// TaskTimeout caps a single run. Default: 5m
	TaskTimeout time.Duration

	// ReleaseAfter is when stuck tasks are released back to queue. Default: 15m
	ReleaseAfter time.Duration

	// CleanupInterval is how often finished tasks are purged; RetentionDuration is
	// how long they are kept. Default: 1h, 24h
	CleanupInterval   time.Duration
	RetentionDuration time.Duration
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		Workers:           2,
		MaxRetries:        3,
		RetryDelay:        1 * time.Minute,
		TaskTimeout:       5 * time.Minute,
		ReleaseAfter:      15 * time.Minute,
		CleanupInterval:   1 * time.Hour,
		RetentionDuration: 24 * time.Hour,
	}
}

// FromConfig maps the TASK_* settings onto a Config. Unset or non-positive
// values keep their defaults.
func FromConfig(cfg config.Tasks) Config {
	out := DefaultConfig()
	out.DatabasePath = cfg.DatabasePath
	if cfg.Workers > 0 {
		out.Workers = cfg.Workers
	}
	if cfg.MaxRetries > 0 {
		out.MaxRetries = cfg.MaxRetries
	}
	durations := []struct {
		dst *time.Duration
		src time.Duration
	}{
		{&out.RetryDelay, cfg.RetryDelay},
		{&out.TaskTimeout, cfg.TaskTimeout},
		{&out.ReleaseAfter, cfg.ReleaseAfter},
		{&out.CleanupInterval, cfg.CleanupInterval},
		{&out.RetentionDuration, cfg.RetentionDuration},
	}
	for _, d := range durations {
		if d.src > 0 {
			*d.dst = d.src
		}
	}
	return out
}

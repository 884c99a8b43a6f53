// Package quota defines shared configuration for quota store backends.
// The stores themselves implement core.QuotaStore: memory for single-instance
// deployments and tests, redis for multi-instance deployments where visitor
// requests land on different processes.
package quota

import (
	"time"
)

// Config defines common configuration for quota stores
type Config struct {
	// Window returns the current rolling reset period. It is a function so
	// hot config reloads take effect without rebuilding the store.
	Window func() time.Duration
	// CleanupInterval is how often the memory store sweeps expired records
	CleanupInterval time.Duration
	// MaxEntries is the maximum number of visitor records to keep in memory
	// (0 = unlimited)
	MaxEntries int
}

// DefaultConfig returns default configuration
func DefaultConfig() *Config {
	return &Config{
		Window:          func() time.Duration { return 30 * 24 * time.Hour },
		CleanupInterval: 10 * time.Minute,
		MaxEntries:      100000, // Prevent unbounded memory growth
	}
}

// ResolvedWindow returns the configured window, falling back to the default
// when unset
func (c *Config) ResolvedWindow() time.Duration {
	if c.Window == nil {
		return 30 * 24 * time.Hour
	}
	return c.Window()
}

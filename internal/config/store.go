package config

import (
	"log/slog"
	"sync/atomic"
)

// Store holds the current configuration snapshot behind an atomically-swapped
// pointer. Readers always see the last successfully loaded config in full;
// a refresh replaces the pointer and never mutates fields in place.
type Store struct {
	current atomic.Pointer[Config]
	loader  *Loader
	logger  *slog.Logger
}

// NewStore creates a config store seeded with the embedded defaults, so
// evaluations that run before the first successful load fail toward the
// documented gating defaults rather than an empty config.
func NewStore(loader *Loader, logger *slog.Logger) *Store {
	s := &Store{
		loader: loader,
		logger: logger.With("component", "config-store"),
	}

	def, err := LoadDefault()
	if err != nil {
		// The embedded defaults are compiled in; failing to parse them is a
		// build defect, not a runtime condition.
		panic("config: invalid embedded defaults: " + err.Error())
	}
	s.current.Store(def)

	return s
}

// Current returns the last-known-good configuration snapshot
func (s *Store) Current() *Config {
	return s.current.Load()
}

// Paywall returns the gating section of the current snapshot
func (s *Store) Paywall() *Paywall {
	return &s.current.Load().Paywall
}

// Swap atomically replaces the snapshot
func (s *Store) Swap(cfg *Config) {
	s.current.Store(cfg)
}

// Refresh reloads configuration from the backing file and swaps the snapshot
// on success. On failure the previous snapshot is retained and the error is
// returned for the caller to log or count.
func (s *Store) Refresh() error {
	cfg, err := s.loader.Load()
	if err != nil {
		s.logger.Error("config refresh failed, retaining previous snapshot", "error", err)
		return err
	}

	s.current.Store(cfg)
	s.logger.Info("configuration refreshed",
		"enabled", cfg.Paywall.Enabled,
		"freeArticleLimit", cfg.Paywall.FreeArticleLimit,
		"resetPeriodDays", cfg.Paywall.ResetPeriodDays,
	)
	return nil
}

package memory

import (
	"context"
	"sync"
	"time"

	"paywall/internal/core"
	"paywall/internal/quota"
)

// record is a per-visitor quota record. The per-record mutex makes the
// window-reset-then-insert sequence atomic for concurrent requests from the
// same visitor (two browser tabs must not double-count one article).
type record struct {
	viewed       map[string]struct{}
	windowStart  time.Time
	blockedCount int
	mu           sync.Mutex
}

// Store implements core.QuotaStore using in-process storage
type Store struct {
	records map[string]*record
	mu      sync.RWMutex
	config  *quota.Config
	done    chan struct{}
	now     func() time.Time
}

// NewStore creates a new memory store
func NewStore(config *quota.Config) *Store {
	if config == nil {
		config = quota.DefaultConfig()
	}

	s := &Store{
		records: make(map[string]*record),
		config:  config,
		done:    make(chan struct{}),
		now:     time.Now,
	}

	if config.CleanupInterval > 0 {
		go s.cleanup()
	}

	return s
}

// HasViewed reports whether contentID is in the visitor's current-window set
func (s *Store) HasViewed(ctx context.Context, visitorID, contentID string) (bool, error) {
	s.mu.RLock()
	rec, exists := s.records[visitorID]
	s.mu.RUnlock()

	if !exists {
		return false, nil
	}

	rec.mu.Lock()
	defer rec.mu.Unlock()

	// An expired window means the set is logically empty, so a re-view of an
	// old article is a fresh view
	if s.expired(rec) {
		return false, nil
	}

	_, viewed := rec.viewed[contentID]
	return viewed, nil
}

// RecordView resets the window if expired, then adds contentID to the viewed
// set if not already present, and returns the updated record
func (s *Store) RecordView(ctx context.Context, visitorID, contentID string) (*core.QuotaRecord, error) {
	rec := s.getOrCreate(visitorID)

	rec.mu.Lock()
	defer rec.mu.Unlock()

	s.resetIfExpired(rec)
	rec.viewed[contentID] = struct{}{}

	return s.snapshot(visitorID, rec), nil
}

// Count returns the viewed-set size after applying any pending window reset
func (s *Store) Count(ctx context.Context, visitorID string) (int, error) {
	s.mu.RLock()
	rec, exists := s.records[visitorID]
	s.mu.RUnlock()

	if !exists {
		return 0, nil
	}

	rec.mu.Lock()
	defer rec.mu.Unlock()

	if s.expired(rec) {
		return 0, nil
	}
	return len(rec.viewed), nil
}

// RecordBlocked increments the denied-attempt counter for the current window
func (s *Store) RecordBlocked(ctx context.Context, visitorID string) error {
	rec := s.getOrCreate(visitorID)

	rec.mu.Lock()
	defer rec.mu.Unlock()

	s.resetIfExpired(rec)
	rec.blockedCount++
	return nil
}

// Close closes the store
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	select {
	case <-s.done:
		// Already closed
		return nil
	default:
		close(s.done)
		return nil
	}
}

// getOrCreate returns the visitor's record, creating it lazily
func (s *Store) getOrCreate(visitorID string) *record {
	s.mu.Lock()
	rec, exists := s.records[visitorID]
	if !exists {
		if s.config.MaxEntries > 0 && len(s.records) >= s.config.MaxEntries {
			s.evictOldestLocked()
		}
		rec = &record{
			viewed:      make(map[string]struct{}),
			windowStart: s.now(),
		}
		s.records[visitorID] = rec
	}
	s.mu.Unlock()
	return rec
}

// expired reports whether the record's window has elapsed. Caller holds rec.mu.
func (s *Store) expired(rec *record) bool {
	return s.now().Sub(rec.windowStart) >= s.config.ResolvedWindow()
}

// resetIfExpired clears the record and advances the window start when the
// rolling window has elapsed. Caller holds rec.mu.
func (s *Store) resetIfExpired(rec *record) {
	if s.expired(rec) {
		rec.viewed = make(map[string]struct{})
		rec.blockedCount = 0
		rec.windowStart = s.now()
	}
}

// snapshot copies the record state for the caller. Caller holds rec.mu.
func (s *Store) snapshot(visitorID string, rec *record) *core.QuotaRecord {
	return &core.QuotaRecord{
		VisitorID:       visitorID,
		ViewCount:       len(rec.viewed),
		WindowStartedAt: rec.windowStart,
		BlockedCount:    rec.blockedCount,
	}
}

// cleanup periodically removes expired records
func (s *Store) cleanup() {
	ticker := time.NewTicker(s.config.CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.done:
			return
		case <-ticker.C:
			s.removeExpired()
		}
	}
}

// removeExpired drops records whose window has fully elapsed
func (s *Store) removeExpired() {
	s.mu.Lock()
	defer s.mu.Unlock()

	for visitorID, rec := range s.records {
		rec.mu.Lock()
		if s.expired(rec) {
			delete(s.records, visitorID)
		}
		rec.mu.Unlock()
	}
}

// evictOldestLocked removes the record with the oldest window start.
// Caller holds s.mu.
func (s *Store) evictOldestLocked() {
	var oldestKey string
	var oldestTime time.Time
	first := true

	for key, rec := range s.records {
		rec.mu.Lock()
		if first || rec.windowStart.Before(oldestTime) {
			oldestKey = key
			oldestTime = rec.windowStart
			first = false
		}
		rec.mu.Unlock()
	}

	if oldestKey != "" {
		delete(s.records, oldestKey)
	}
}

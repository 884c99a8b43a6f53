package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"paywall/internal/core"
	"paywall/internal/quota"
)

// Client defines the interface for Redis operations
type Client interface {
	// Eval executes a Lua script
	Eval(ctx context.Context, script string, keys []string, args ...interface{}) (interface{}, error)
	// Close closes the connection
	Close() error
}

// Store implements core.QuotaStore using Redis. Each mutation is a single
// Lua script so the window reset and the set insert are one atomic
// read-modify-write on the store side — visitor requests landing on
// different processes cannot lose updates or double-count a content id.
type Store struct {
	client Client
	config *quota.Config

	recordScript  string
	memberScript  string
	countScript   string
	blockedScript string
}

// recordViewScript resets the window if expired, adds the content id, and
// returns the resulting set size and window start.
const recordViewScript = `
	local setKey = KEYS[1]
	local winKey = KEYS[2]
	local now = tonumber(ARGV[1])
	local window = tonumber(ARGV[2])
	local contentId = ARGV[3]

	local started = tonumber(redis.call('GET', winKey))
	if (not started) or (now - started >= window) then
		redis.call('DEL', setKey)
		redis.call('SET', winKey, now)
		started = now
	end

	redis.call('SADD', setKey, contentId)
	local count = redis.call('SCARD', setKey)

	-- Keep keys a little past the window so lazy resets still observe the
	-- old start; the retention job owns longer-term cleanup
	redis.call('PEXPIRE', setKey, window + 60000)
	redis.call('PEXPIRE', winKey, window + 60000)

	return {count, started}
`

// hasViewedScript answers set membership, treating an expired window as empty.
const hasViewedScript = `
	local setKey = KEYS[1]
	local winKey = KEYS[2]
	local now = tonumber(ARGV[1])
	local window = tonumber(ARGV[2])
	local contentId = ARGV[3]

	local started = tonumber(redis.call('GET', winKey))
	if (not started) or (now - started >= window) then
		return 0
	end
	return redis.call('SISMEMBER', setKey, contentId)
`

// countScript returns the current-window set size, treating an expired
// window as empty so a stale record never reports a stale count.
const countScript = `
	local setKey = KEYS[1]
	local winKey = KEYS[2]
	local now = tonumber(ARGV[1])
	local window = tonumber(ARGV[2])

	local started = tonumber(redis.call('GET', winKey))
	if (not started) or (now - started >= window) then
		return 0
	end
	return redis.call('SCARD', setKey)
`

// recordBlockedScript increments the denied-attempt counter within the window.
const recordBlockedScript = `
	local blkKey = KEYS[1]
	local window = tonumber(ARGV[1])

	local count = redis.call('INCR', blkKey)
	redis.call('PEXPIRE', blkKey, window + 60000)
	return count
`

// NewStore creates a new Redis store
func NewStore(client Client, config *quota.Config) *Store {
	if config == nil {
		config = quota.DefaultConfig()
	}

	return &Store{
		client:        client,
		config:        config,
		recordScript:  recordViewScript,
		memberScript:  hasViewedScript,
		countScript:   countScript,
		blockedScript: recordBlockedScript,
	}
}

// HasViewed reports whether contentID is in the visitor's current-window set
func (s *Store) HasViewed(ctx context.Context, visitorID, contentID string) (bool, error) {
	window := s.config.ResolvedWindow()

	result, err := s.client.Eval(ctx, s.memberScript, s.keys(visitorID),
		time.Now().UnixMilli(),
		window.Milliseconds(),
		contentID,
	)
	if err != nil {
		return false, fmt.Errorf("failed to execute quota membership script: %w", err)
	}

	member, ok := result.(int64)
	if !ok {
		return false, errors.New("invalid quota membership script result")
	}
	return member == 1, nil
}

// RecordView atomically resets an expired window and records the view
func (s *Store) RecordView(ctx context.Context, visitorID, contentID string) (*core.QuotaRecord, error) {
	window := s.config.ResolvedWindow()

	result, err := s.client.Eval(ctx, s.recordScript, s.keys(visitorID),
		time.Now().UnixMilli(),
		window.Milliseconds(),
		contentID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to execute quota record script: %w", err)
	}

	res, ok := result.([]interface{})
	if !ok || len(res) != 2 {
		return nil, errors.New("invalid quota record script result")
	}

	count, ok1 := res[0].(int64)
	startedMs, ok2 := res[1].(int64)
	if !ok1 || !ok2 {
		return nil, errors.New("invalid quota record script result types")
	}

	return &core.QuotaRecord{
		VisitorID:       visitorID,
		ViewCount:       int(count),
		WindowStartedAt: time.UnixMilli(startedMs),
	}, nil
}

// Count returns the viewed-set size for the current window
func (s *Store) Count(ctx context.Context, visitorID string) (int, error) {
	window := s.config.ResolvedWindow()

	result, err := s.client.Eval(ctx, s.countScript, s.keys(visitorID),
		time.Now().UnixMilli(),
		window.Milliseconds(),
	)
	if err != nil {
		return 0, fmt.Errorf("failed to execute quota count script: %w", err)
	}

	count, ok := result.(int64)
	if !ok {
		return 0, errors.New("invalid quota count script result")
	}
	return int(count), nil
}

// RecordBlocked increments the denied-attempt counter
func (s *Store) RecordBlocked(ctx context.Context, visitorID string) error {
	window := s.config.ResolvedWindow()

	_, err := s.client.Eval(ctx, s.blockedScript,
		[]string{fmt.Sprintf("paywall:quota:%s:blocked", visitorID)},
		window.Milliseconds(),
	)
	if err != nil {
		return fmt.Errorf("failed to execute quota blocked script: %w", err)
	}
	return nil
}

// Close closes the store
func (s *Store) Close() error {
	if s.client != nil {
		return s.client.Close()
	}
	return nil
}

// keys returns the viewed-set and window keys for a visitor
func (s *Store) keys(visitorID string) []string {
	return []string{
		fmt.Sprintf("paywall:quota:%s:viewed", visitorID),
		fmt.Sprintf("paywall:quota:%s:window", visitorID),
	}
}

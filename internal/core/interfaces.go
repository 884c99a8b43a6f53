package core

import (
	"context"
	"net/http"
)

// QuotaStore tracks, per visitor, the distinct free content viewed within the
// current rolling window. Implementations must make RecordView atomic per
// visitor: the window reset and the set insert happen as one store-side
// operation, never as a fetch-then-write in the caller.
type QuotaStore interface {
	// HasViewed reports whether contentID is already in the visitor's
	// current-window viewed set. Re-views are free.
	HasViewed(ctx context.Context, visitorID, contentID string) (bool, error)

	// RecordView resets the window if expired, then adds contentID to the
	// viewed set if not already present, and returns the updated record.
	RecordView(ctx context.Context, visitorID, contentID string) (*QuotaRecord, error)

	// Count returns the viewed-set size after applying any pending window
	// reset, so a stale record never reports a stale count.
	Count(ctx context.Context, visitorID string) (int, error)

	// RecordBlocked increments the denied-attempt counter for analytics.
	RecordBlocked(ctx context.Context, visitorID string) error

	// Close releases store resources.
	Close() error
}

// Resolver resolves the visitor identity for a request. It never fails:
// when no durable identity can be established it degrades to a per-request
// token, trading quota memory for availability.
type Resolver interface {
	Resolve(w http.ResponseWriter, r *http.Request) Visitor
}

// EventSink receives analytics events. Emit must not block the caller and
// delivery failures must never surface to the evaluation path.
type EventSink interface {
	Emit(event ViewEvent)
	Close() error
}

// Package analytics delivers view/block events to the external analytics
// collaborator. Delivery is fire-and-forget: Emit never blocks the
// evaluation path and delivery failures are logged, never returned.
package analytics

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"paywall/internal/config"
	"paywall/internal/core"
	"paywall/pkg/metrics"
)

// HTTPSink posts events to a collector endpoint from a single background
// goroutine fed by a bounded buffer. When the buffer is full the event is
// dropped and counted; losing telemetry is acceptable, slowing a content
// render is not.
type HTTPSink struct {
	endpoint string
	client   *http.Client
	logger   *slog.Logger
	metrics  *metrics.Metrics

	events    chan core.ViewEvent
	done      chan struct{}
	wg        sync.WaitGroup
	closeOnce sync.Once
}

// NewHTTPSink creates and starts an HTTP event sink
func NewHTTPSink(cfg *config.Analytics, logger *slog.Logger, m *metrics.Metrics) *HTTPSink {
	bufferSize := cfg.BufferSize
	if bufferSize <= 0 {
		bufferSize = 1024
	}

	timeout := time.Duration(cfg.Timeout) * time.Millisecond
	if timeout <= 0 {
		timeout = 2 * time.Second
	}

	s := &HTTPSink{
		endpoint: cfg.Endpoint,
		client:   &http.Client{Timeout: timeout},
		logger:   logger.With("component", "analytics"),
		metrics:  m,
		events:   make(chan core.ViewEvent, bufferSize),
		done:     make(chan struct{}),
	}

	s.wg.Add(1)
	go s.drain()

	return s
}

// Emit queues an event for delivery without blocking
func (s *HTTPSink) Emit(event core.ViewEvent) {
	select {
	case s.events <- event:
	default:
		if s.metrics != nil {
			s.metrics.EventsDropped.Inc()
		}
		s.logger.Debug("analytics buffer full, event dropped", "contentId", event.ContentID)
	}
}

// Close stops the sink after draining queued events
func (s *HTTPSink) Close() error {
	s.closeOnce.Do(func() {
		close(s.done)
	})
	s.wg.Wait()
	return nil
}

// drain delivers queued events until closed
func (s *HTTPSink) drain() {
	defer s.wg.Done()

	for {
		select {
		case event := <-s.events:
			s.deliver(event)
		case <-s.done:
			// Flush whatever is already queued
			for {
				select {
				case event := <-s.events:
					s.deliver(event)
				default:
					return
				}
			}
		}
	}
}

// deliver posts one event; failures are logged, never surfaced
func (s *HTTPSink) deliver(event core.ViewEvent) {
	body, err := json.Marshal(event)
	if err != nil {
		s.logger.Error("failed to encode analytics event", "error", err)
		return
	}

	req, err := http.NewRequestWithContext(context.Background(), http.MethodPost, s.endpoint, bytes.NewReader(body))
	if err != nil {
		s.logger.Error("failed to build analytics request", "error", err)
		return
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		s.logger.Warn("analytics delivery failed", "error", err)
		return
	}
	resp.Body.Close()

	if s.metrics != nil {
		eventType := "viewed"
		if event.Blocked {
			eventType = "blocked"
		}
		s.metrics.EventsEmitted.WithLabelValues(eventType).Inc()
	}
}

// NopSink discards events. Used when no collector endpoint is configured.
type NopSink struct{}

// Emit discards the event
func (NopSink) Emit(core.ViewEvent) {}

// Close is a no-op
func (NopSink) Close() error { return nil }

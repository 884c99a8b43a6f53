// Package gateway orchestrates paywall evaluations: identity resolution,
// config snapshot, policy, quota bookkeeping and telemetry. It is the only
// entry point callers use, and it has no fatal path — every dependency
// failure degrades to ALLOWED, because blocking a legitimate reader over an
// infrastructure hiccup is a worse failure than under-enforcing the limit.
package gateway

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"paywall/internal/config"
	"paywall/internal/core"
	"paywall/internal/policy"
	"paywall/internal/telemetry"
	"paywall/pkg/metrics"
)

// Gateway evaluates content views against the paywall
type Gateway struct {
	resolver  core.Resolver
	configs   *config.Store
	quota     core.QuotaStore
	sink      core.EventSink
	logger    *slog.Logger
	metrics   *metrics.Metrics
	telemetry *telemetry.Telemetry
}

// New creates a new paywall gateway
func New(resolver core.Resolver, configs *config.Store, quotaStore core.QuotaStore, sink core.EventSink, logger *slog.Logger, m *metrics.Metrics, tel *telemetry.Telemetry) *Gateway {
	return &Gateway{
		resolver:  resolver,
		configs:   configs,
		quota:     quotaStore,
		sink:      sink,
		logger:    logger.With("component", "gateway"),
		metrics:   m,
		telemetry: tel,
	}
}

// Evaluate decides whether the current visitor may view the content. It may
// set an anonymous identity cookie on the response. It never returns an
// error: internal failures degrade to ALLOWED per the fail-open policy.
func (g *Gateway) Evaluate(ctx context.Context, w http.ResponseWriter, r *http.Request, content core.ContentDescriptor) core.AccessDecision {
	start := time.Now()

	var span trace.Span
	if g.telemetry != nil {
		ctx, span = g.telemetry.StartEvaluation(ctx, content.ID)
		defer span.End()
	}

	visitor := g.resolver.Resolve(w, r)
	cfg := g.configs.Current()

	decision := g.decide(ctx, &cfg.Paywall, &cfg.Store, visitor, content)

	g.observe(span, visitor, content, decision, time.Since(start))
	return decision
}

// decide runs the policy, consulting the quota store only for metered
// evaluations so paying members and bypassed content never touch it.
func (g *Gateway) decide(ctx context.Context, pw *config.Paywall, storeCfg *config.StoreCfg, visitor core.Visitor, content core.ContentDescriptor) core.AccessDecision {
	if !policy.Metered(content, visitor.Tier, pw) {
		return policy.Evaluate(content, visitor.Tier, pw, 0)
	}

	// Bound every store call: a slow store is an unavailable store
	ctx, cancel := context.WithTimeout(ctx, storeCfg.StoreTimeout())
	defer cancel()

	count, err := g.quota.Count(ctx, visitor.ID)
	if err != nil {
		return g.failOpen(visitor, content, "count", err)
	}

	viewed, err := g.quota.HasViewed(ctx, visitor.ID, content.ID)
	if err != nil {
		return g.failOpen(visitor, content, "has_viewed", err)
	}

	// Repeat views are free: the article already occupies its slot, so the
	// decision is reproduced from the current count without re-recording
	if viewed {
		remaining := pw.FreeArticleLimit - count
		if remaining < 0 {
			remaining = 0
		}
		return core.AccessDecision{
			Outcome:            core.OutcomeAllowed,
			Reason:             core.ReasonWithinQuota,
			RemainingFreeViews: &remaining,
		}
	}

	// Over quota: deny without touching the viewed set, so the blocked
	// article does not consume a slot once the window resets
	if count >= pw.FreeArticleLimit {
		if err := g.quota.RecordBlocked(ctx, visitor.ID); err != nil {
			g.logger.Debug("failed to record blocked attempt", "visitor", visitor.ID, "error", err)
		}
		if g.metrics != nil {
			g.metrics.QuotaDenials.Inc()
		}
		zero := 0
		return core.AccessDecision{
			Outcome:            core.OutcomeDenied,
			Reason:             core.ReasonQuotaExceeded,
			RemainingFreeViews: &zero,
		}
	}

	record, err := g.quota.RecordView(ctx, visitor.ID, content.ID)
	if err != nil {
		return g.failOpen(visitor, content, "record_view", err)
	}
	if g.metrics != nil {
		g.metrics.QuotaViewsRecorded.Inc()
	}

	// The policy takes the count excluding the view just recorded
	return policy.Evaluate(content, visitor.Tier, pw, record.ViewCount-1)
}

// failOpen logs a store failure and allows the view. The fail-open branch is
// deliberately explicit: the policy lives in code, not in a catch-all.
func (g *Gateway) failOpen(visitor core.Visitor, content core.ContentDescriptor, operation string, err error) core.AccessDecision {
	g.logger.Warn("quota store unavailable, failing open",
		"operation", operation,
		"visitor", visitor.ID,
		"contentId", content.ID,
		"error", err,
	)
	if g.metrics != nil {
		g.metrics.QuotaStoreErrors.WithLabelValues(operation).Inc()
	}

	// Remaining views are unknown while the store is down
	return core.AccessDecision{
		Outcome: core.OutcomeAllowed,
		Reason:  core.ReasonWithinQuota,
	}
}

// observe emits the per-evaluation analytics event, metrics and span
// attributes. The sink is fire-and-forget; nothing here can change the
// decision already made.
func (g *Gateway) observe(span trace.Span, visitor core.Visitor, content core.ContentDescriptor, decision core.AccessDecision, elapsed time.Duration) {
	if g.sink != nil {
		g.sink.Emit(core.ViewEvent{
			ContentID: content.ID,
			VisitorID: visitor.ID,
			Blocked:   !decision.Allowed(),
			Timestamp: time.Now(),
		})
	}

	if g.metrics != nil {
		g.metrics.EvaluationsTotal.WithLabelValues(string(decision.Outcome), string(decision.Reason)).Inc()
		g.metrics.EvaluationDuration.WithLabelValues(string(decision.Outcome)).Observe(elapsed.Seconds())
	}

	if span != nil {
		span.SetAttributes(
			attribute.String("paywall.outcome", string(decision.Outcome)),
			attribute.String("paywall.reason", string(decision.Reason)),
			attribute.Bool("paywall.authenticated", visitor.Authenticated),
		)
	}
}

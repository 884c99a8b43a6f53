package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the paywall
type Metrics struct {
	// Evaluation metrics
	EvaluationsTotal   *prometheus.CounterVec
	EvaluationDuration *prometheus.HistogramVec

	// Quota metrics
	QuotaViewsRecorded prometheus.Counter
	QuotaDenials       prometheus.Counter
	QuotaStoreErrors   *prometheus.CounterVec

	// Config metrics
	ConfigReloads      *prometheus.CounterVec
	ConfigLastReloadTS prometheus.Gauge

	// Identity metrics
	AnonymousTokensIssued prometheus.Counter

	// Analytics metrics
	EventsEmitted *prometheus.CounterVec
	EventsDropped prometheus.Counter
}

// New creates a new Metrics instance with all metrics registered
func New() *Metrics {
	return NewWithRegistry(prometheus.DefaultRegisterer)
}

// NewWithRegistry creates a new Metrics instance with a custom registry
func NewWithRegistry(registerer prometheus.Registerer) *Metrics {
	factory := promauto.With(registerer)

	return &Metrics{
		EvaluationsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "paywall_evaluations_total",
				Help: "Total number of paywall evaluations",
			},
			[]string{"outcome", "reason"},
		),
		EvaluationDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "paywall_evaluation_duration_seconds",
				Help:    "Paywall evaluation latencies in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"outcome"},
		),

		QuotaViewsRecorded: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "paywall_quota_views_recorded_total",
				Help: "Total number of free views recorded against visitor quotas",
			},
		),
		QuotaDenials: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "paywall_quota_denials_total",
				Help: "Total number of evaluations denied because the free-article quota was exhausted",
			},
		),
		QuotaStoreErrors: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "paywall_quota_store_errors_total",
				Help: "Total number of quota store failures handled fail-open",
			},
			[]string{"operation"},
		),

		ConfigReloads: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "paywall_config_reloads_total",
				Help: "Total number of configuration reload attempts",
			},
			[]string{"status"},
		),
		ConfigLastReloadTS: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "paywall_config_last_reload_timestamp_seconds",
				Help: "Unix timestamp of the last successful configuration reload",
			},
		),

		AnonymousTokensIssued: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "paywall_anonymous_tokens_issued_total",
				Help: "Total number of anonymous visitor tokens issued",
			},
		),

		EventsEmitted: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "paywall_analytics_events_total",
				Help: "Total number of analytics events emitted",
			},
			[]string{"type"},
		),
		EventsDropped: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "paywall_analytics_events_dropped_total",
				Help: "Total number of analytics events dropped due to sink backpressure",
			},
		),
	}
}

package telemetry

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"
	"go.opentelemetry.io/otel/trace"

	"paywall/internal/config"
)

// Telemetry manages the tracing provider. When disabled it hands out no-op
// tracers so call sites never branch on whether tracing is on.
type Telemetry struct {
	tracer   trace.Tracer
	shutdown []func(context.Context) error
}

// New creates a new telemetry instance
func New(cfg config.Telemetry) (*Telemetry, error) {
	t := &Telemetry{}

	if !cfg.Enabled || !cfg.Tracing.Enabled {
		t.tracer = otel.GetTracerProvider().Tracer("paywall")
		return t, nil
	}

	res, err := resource.New(
		context.Background(),
		resource.WithAttributes(
			semconv.ServiceName(cfg.Service),
			semconv.ServiceVersion(cfg.Version),
		),
		resource.WithHost(),
		resource.WithProcess(),
		resource.WithTelemetrySDK(),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create resource: %w", err)
	}

	opts := []otlptracehttp.Option{
		otlptracehttp.WithTimeout(30 * time.Second),
	}
	if cfg.Tracing.Endpoint != "" {
		opts = append(opts, otlptracehttp.WithEndpoint(cfg.Tracing.Endpoint))
	}

	exporter, err := otlptracehttp.New(context.Background(), opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create trace exporter: %w", err)
	}

	var sampler sdktrace.Sampler
	if cfg.Tracing.SampleRate > 0 && cfg.Tracing.SampleRate < 1 {
		sampler = sdktrace.TraceIDRatioBased(cfg.Tracing.SampleRate)
	} else {
		sampler = sdktrace.AlwaysSample()
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sampler),
	)

	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	t.tracer = tp.Tracer("paywall")
	t.shutdown = append(t.shutdown, tp.Shutdown)

	return t, nil
}

// Tracer returns the tracer
func (t *Telemetry) Tracer() trace.Tracer {
	return t.tracer
}

// StartEvaluation starts a span for one paywall evaluation
func (t *Telemetry) StartEvaluation(ctx context.Context, contentID string) (context.Context, trace.Span) {
	return t.tracer.Start(ctx, "paywall.evaluate",
		trace.WithAttributes(attribute.String("paywall.content_id", contentID)),
	)
}

// Shutdown gracefully shuts down telemetry providers
func (t *Telemetry) Shutdown(ctx context.Context) error {
	var errs []error
	for _, fn := range t.shutdown {
		if err := fn(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

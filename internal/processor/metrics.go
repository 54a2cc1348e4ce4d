package processor

import (
	"context"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Metrics records processor outcomes. Use NewMetrics for OpenTelemetry or
// NoopMetrics{} when disabled.
type Metrics interface {
	// RecordOutcome counts one finished event for the class.
	RecordOutcome(ctx context.Context, class string, outcome Outcome)
	// RecordHandler records one handler invocation and its latency.
	RecordHandler(ctx context.Context, class, eventType string, duration time.Duration, err error)
	// RecordTransportError counts a failed queue operation.
	RecordTransportError(ctx context.Context, class string)
}

type otelMetrics struct {
	outcomes        metric.Int64Counter
	handlerLatency  metric.Float64Histogram
	handlerErrors   metric.Int64Counter
	transportErrors metric.Int64Counter
}

// NewMetrics builds a Metrics on meter. A nil meter uses the global meter
// provider, which is a no-op until one is installed with
// otel.SetMeterProvider. Instrument errors fall back to NoopMetrics.
func NewMetrics(meter metric.Meter) Metrics {
	if meter == nil {
		meter = otel.Meter("menujobs/processor")
	}
	m, err := newOtelMetrics(meter)
	if err != nil {
		slog.Warn("metrics initialization failed, using no-op recorder", "err", err)
		return NoopMetrics{}
	}
	return m
}

func newOtelMetrics(meter metric.Meter) (*otelMetrics, error) {
	outcomes, err := meter.Int64Counter("menujobs.processor.events",
		metric.WithDescription("Events finished by outcome"),
	)
	if err != nil {
		return nil, err
	}

	handlerLatency, err := meter.Float64Histogram("menujobs.handler.latency_ms",
		metric.WithDescription("Handler latency in milliseconds"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, err
	}

	handlerErrors, err := meter.Int64Counter("menujobs.handler.errors",
		metric.WithDescription("Handler invocations that returned an error"),
	)
	if err != nil {
		return nil, err
	}

	transportErrors, err := meter.Int64Counter("menujobs.queue.errors",
		metric.WithDescription("Failed queue operations"),
	)
	if err != nil {
		return nil, err
	}

	return &otelMetrics{
		outcomes:        outcomes,
		handlerLatency:  handlerLatency,
		handlerErrors:   handlerErrors,
		transportErrors: transportErrors,
	}, nil
}

func (m *otelMetrics) RecordOutcome(ctx context.Context, class string, outcome Outcome) {
	m.outcomes.Add(ctx, 1, metric.WithAttributes(
		attribute.String("class", class),
		attribute.String("outcome", outcome.String()),
	))
}

func (m *otelMetrics) RecordHandler(ctx context.Context, class, eventType string, duration time.Duration, err error) {
	attrs := metric.WithAttributes(
		attribute.String("class", class),
		attribute.String("event_type", eventType),
	)
	m.handlerLatency.Record(ctx, float64(duration.Microseconds())/1000, attrs)
	if err != nil {
		m.handlerErrors.Add(ctx, 1, attrs)
	}
}

func (m *otelMetrics) RecordTransportError(ctx context.Context, class string) {
	m.transportErrors.Add(ctx, 1, metric.WithAttributes(attribute.String("class", class)))
}

// NoopMetrics discards everything.
type NoopMetrics struct{}

func (NoopMetrics) RecordOutcome(context.Context, string, Outcome) {}
func (NoopMetrics) RecordHandler(context.Context, string, string, time.Duration, error) {}
func (NoopMetrics) RecordTransportError(context.Context, string) {}

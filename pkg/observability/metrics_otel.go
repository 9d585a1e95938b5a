package observability

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// OTelMetrics mirrors the gateway's Prometheus series as OpenTelemetry instruments so
// they reach the collector alongside traces
type OTelMetrics struct {
	decisions         metric.Int64Counter
	operationDuration metric.Float64Histogram
	operationErrors   metric.Int64Counter
}

// NewOTelMetrics creates instruments on the global meter provider
func NewOTelMetrics() (*OTelMetrics, error) {
	return NewOTelMetricsWithProvider(otel.GetMeterProvider())
}

// NewOTelMetricsWithProvider creates instruments on provider
func NewOTelMetricsWithProvider(provider metric.MeterProvider) (*OTelMetrics, error) {
	meter := provider.Meter(InstrumentationName)

	m := &OTelMetrics{}
	var err error

	m.decisions, err = meter.Int64Counter(
		"atrium.authz.decisions",
		metric.WithDescription("Authorization decisions by operation and outcome"),
		metric.WithUnit("{decision}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create authz decisions counter: %w", err)
	}

	m.operationDuration, err = meter.Float64Histogram(
		"atrium.operation.duration",
		metric.WithDescription("Gateway operation duration in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create operation duration histogram: %w", err)
	}

	m.operationErrors, err = meter.Int64Counter(
		"atrium.operation.errors",
		metric.WithDescription("Gateway operation failures by error kind"),
		metric.WithUnit("{error}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create operation errors counter: %w", err)
	}

	return m, nil
}

// RecordDecision counts an authorization decision
func (m *OTelMetrics) RecordDecision(ctx context.Context, operation string, allowed bool) {
	if m == nil {
		return
	}
	decision := "deny"
	if allowed {
		decision = "allow"
	}
	m.decisions.Add(ctx, 1, metric.WithAttributes(
		attribute.String("operation", operation),
		attribute.String("decision", decision),
	))
}

// RecordOperation observes an operation's duration and, on failure, its error kind
func (m *OTelMetrics) RecordOperation(ctx context.Context, operation string, d time.Duration, errKind string) {
	if m == nil {
		return
	}
	op := attribute.String("operation", operation)
	m.operationDuration.Record(ctx, d.Seconds(), metric.WithAttributes(op))
	if errKind != "" {
		m.operationErrors.Add(ctx, 1, metric.WithAttributes(op, attribute.String("kind", errKind)))
	}
}

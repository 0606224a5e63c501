package auth

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// MetricsRecorder records verification outcomes.
type MetricsRecorder interface {
	RecordVerification(ctx context.Context, kind string, success bool, reason string, duration time.Duration)
}

// OTelMetrics records verification outcomes as OpenTelemetry instruments.
type OTelMetrics struct {
	total    metric.Int64Counter
	duration metric.Float64Histogram
}

// NewOTelMetrics builds the recorder on meter, or on the global provider when meter is nil.
func NewOTelMetrics(meter metric.Meter) (*OTelMetrics, error) {
	if meter == nil {
		meter = otel.GetMeterProvider().Meter("github.com/couture-field/checkout/internal/platform/auth")
	}
	total, err := meter.Int64Counter("auth.verifications",
		metric.WithDescription("Server-to-server request verifications by kind and outcome."))
	if err != nil {
		return nil, err
	}
	duration, err := meter.Float64Histogram("auth.verification.duration",
		metric.WithUnit("ms"),
		metric.WithDescription("Time spent verifying server-to-server requests."))
	if err != nil {
		return nil, err
	}
	return &OTelMetrics{total: total, duration: duration}, nil
}

// RecordVerification implements MetricsRecorder.
func (m *OTelMetrics) RecordVerification(ctx context.Context, kind string, success bool, reason string, duration time.Duration) {
	if m == nil {
		return
	}
	attrs := metric.WithAttributes(
		attribute.String("kind", kind),
		attribute.Bool("success", success),
		attribute.String("reason", reason),
	)
	m.total.Add(ctx, 1, attrs)
	m.duration.Record(ctx, float64(duration)/float64(time.Millisecond), attrs)
}

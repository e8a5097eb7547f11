package observe

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Metrics records client call metrics.
//
// Contract:
// - Concurrency: implementations must be safe for concurrent use.
// - Context: must honor cancellation/deadlines and return quickly.
// - Errors: implementations must not panic.
type Metrics interface {
	// RecordCall records one logical call with its duration and outcome.
	RecordCall(ctx context.Context, meta CallMeta, duration time.Duration, err error)

	// RecordRetry records that attempt failed and will be retried.
	RecordRetry(ctx context.Context, meta CallMeta, attempt int, err error)
}

type metricsImpl struct {
	calls    metric.Int64Counter
	errors   metric.Int64Counter
	retries  metric.Int64Counter
	duration metric.Float64Histogram
}

// NewMetrics creates the call instruments on meter.
func NewMetrics(meter metric.Meter) (Metrics, error) {
	return newMetrics(meter)
}

func newMetrics(meter metric.Meter) (*metricsImpl, error) {
	calls, err := meter.Int64Counter(
		"jatp.client.calls",
		metric.WithDescription("Total number of JATP calls"),
		metric.WithUnit("{call}"),
	)
	if err != nil {
		return nil, err
	}

	errs, err := meter.Int64Counter(
		"jatp.client.errors",
		metric.WithDescription("Total number of failed JATP calls"),
		metric.WithUnit("{error}"),
	)
	if err != nil {
		return nil, err
	}

	retries, err := meter.Int64Counter(
		"jatp.client.retries",
		metric.WithDescription("Total number of retried JATP attempts"),
		metric.WithUnit("{retry}"),
	)
	if err != nil {
		return nil, err
	}

	duration, err := meter.Float64Histogram(
		"jatp.client.duration_ms",
		metric.WithDescription("JATP call duration in milliseconds, retries included"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, err
	}

	return &metricsImpl{
		calls:    calls,
		errors:   errs,
		retries:  retries,
		duration: duration,
	}, nil
}

func callAttributes(meta CallMeta) []attribute.KeyValue {
	attrs := []attribute.KeyValue{
		attribute.String("rpc.method", meta.Method),
	}
	if meta.Service != "" {
		attrs = append(attrs, attribute.String("rpc.service", meta.Service))
	}
	return attrs
}

// RecordCall records metrics for one call.
func (m *metricsImpl) RecordCall(ctx context.Context, meta CallMeta, duration time.Duration, err error) {
	opt := metric.WithAttributes(callAttributes(meta)...)

	m.calls.Add(ctx, 1, opt)
	if err != nil {
		attrs := append(callAttributes(meta), errorAttributes(err)[1:]...)
		m.errors.Add(ctx, 1, metric.WithAttributes(attrs...))
	}

	m.duration.Record(ctx, float64(duration)/float64(time.Millisecond), opt)
}

// RecordRetry counts a retried attempt.
func (m *metricsImpl) RecordRetry(ctx context.Context, meta CallMeta, attempt int, err error) {
	m.retries.Add(ctx, 1, metric.WithAttributes(callAttributes(meta)...))
}

type noopMetrics struct{}

func (m *noopMetrics) RecordCall(ctx context.Context, meta CallMeta, duration time.Duration, err error) {
}

func (m *noopMetrics) RecordRetry(ctx context.Context, meta CallMeta, attempt int, err error) {}

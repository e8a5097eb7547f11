package observe

import (
	"context"
	"time"
)

// CallFunc is the signature of one JATP round trip as seen by Middleware.
type CallFunc func(ctx context.Context, meta CallMeta, payload map[string]any) (map[string]any, error)

// Middleware wraps JATP calls with observability (tracing, metrics, logging).
//
// Contract:
//   - Concurrency: Wrap() returns a thread-safe CallFunc.
//   - Context: Propagates context through tracing spans.
//   - Errors: Errors from wrapped function are recorded and propagated unchanged.
//   - Ownership: Payload and result maps are passed through without modification.
type Middleware struct {
	tracer  Tracer
	metrics Metrics
	logger  Logger
	now     func() time.Time
}

// NewMiddleware creates a new Middleware. Nil components are replaced with
// no-ops.
func NewMiddleware(tracer Tracer, metrics Metrics, logger Logger) *Middleware {
	if tracer == nil {
		tracer = newNoopTracer()
	}
	if metrics == nil {
		metrics = &noopMetrics{}
	}
	if logger == nil {
		logger = &noopLogger{}
	}
	return &Middleware{
		tracer:  tracer,
		metrics: metrics,
		logger:  logger,
		now:     time.Now,
	}
}

// NopMiddleware returns a Middleware that records nothing.
func NopMiddleware() *Middleware {
	return NewMiddleware(nil, nil, nil)
}

// Logger returns the middleware's logger.
func (m *Middleware) Logger() Logger {
	return m.logger
}

// Wrap wraps a CallFunc with tracing, metrics, and logging.
func (m *Middleware) Wrap(fn CallFunc) CallFunc {
	return func(ctx context.Context, meta CallMeta, payload map[string]any) (map[string]any, error) {
		ctx, span := m.tracer.StartSpan(ctx, meta)
		start := m.now()

		result, err := fn(ctx, meta, payload)

		duration := m.now().Sub(start)
		m.tracer.EndSpan(span, err)
		m.metrics.RecordCall(ctx, meta, duration, err)

		callLogger := m.logger.WithCall(meta)
		fields := []Field{
			{Key: "duration_ms", Value: float64(duration) / float64(time.Millisecond)},
		}
		if err != nil {
			fields = append(fields, Field{Key: "error", Value: err.Error()})
			callLogger.Error(ctx, "jatp call failed", fields...)
		} else {
			callLogger.Debug(ctx, "jatp call completed", fields...)
		}

		return result, err
	}
}

// RetryHook returns a callback suitable for resilience.RetryConfig.OnRetry
// that counts and logs retried attempts of one call.
func (m *Middleware) RetryHook(ctx context.Context, meta CallMeta) func(attempt int, err error, delay time.Duration) {
	return func(attempt int, err error, delay time.Duration) {
		m.metrics.RecordRetry(ctx, meta, attempt, err)
		m.logger.WithCall(meta).Warn(ctx, "retrying jatp call",
			Field{Key: "attempt", Value: attempt},
			Field{Key: "delay_ms", Value: float64(delay) / float64(time.Millisecond)},
			Field{Key: "error", Value: err.Error()},
		)
	}
}

// MiddlewareFromObserver creates a Middleware from an Observer.
func MiddlewareFromObserver(obs Observer) (*Middleware, error) {
	if obs == nil {
		return nil, ErrNilObserver
	}

	metrics, err := newMetrics(obs.Meter())
	if err != nil {
		return nil, err
	}

	return NewMiddleware(NewTracer(obs.Tracer()), metrics, obs.Logger()), nil
}

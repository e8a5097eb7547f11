package observe

import (
	"context"
	"errors"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	tracenoop "go.opentelemetry.io/otel/trace/noop"

	"github.com/jonwraymond/jatpclient/autherr"
)

// Tracer wraps OpenTelemetry tracing with call-specific span management.
//
// Contract:
// - Concurrency: implementations must be safe for concurrent use.
// - Context: StartSpan returns a context carrying the new span.
// - Errors: EndSpan must be best-effort and must not panic.
type Tracer interface {
	// StartSpan starts a client span for a JATP call.
	StartSpan(ctx context.Context, meta CallMeta) (context.Context, trace.Span)

	// EndSpan ends the span, recording any error.
	EndSpan(span trace.Span, err error)
}

type tracerImpl struct {
	tracer trace.Tracer
}

// NewTracer creates a Tracer on top of an OpenTelemetry tracer.
func NewTracer(t trace.Tracer) Tracer {
	if t == nil {
		return newNoopTracer()
	}
	return &tracerImpl{tracer: t}
}

// StartSpan starts a span with RPC attributes for the call.
func (t *tracerImpl) StartSpan(ctx context.Context, meta CallMeta) (context.Context, trace.Span) {
	attrs := []attribute.KeyValue{
		attribute.String("rpc.system", "jatp"),
		attribute.String("rpc.method", meta.Method),
		attribute.Bool("jatp.error", false),
	}
	if meta.Service != "" {
		attrs = append(attrs, attribute.String("rpc.service", meta.Service))
	}
	if meta.RequestID != "" {
		attrs = append(attrs, attribute.String("jatp.request_id", meta.RequestID))
	}
	if meta.Endpoint != "" {
		attrs = append(attrs, attribute.String("server.address", meta.Endpoint))
	}

	return t.tracer.Start(ctx, meta.SpanName(),
		trace.WithAttributes(attrs...),
		trace.WithSpanKind(trace.SpanKindClient),
	)
}

// EndSpan ends the span. Failed calls carry the error kind and wire code.
func (t *tracerImpl) EndSpan(span trace.Span, err error) {
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		span.SetAttributes(errorAttributes(err)...)
		span.RecordError(err)
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.End()
}

// errorAttributes describes err for spans and metrics.
func errorAttributes(err error) []attribute.KeyValue {
	attrs := []attribute.KeyValue{attribute.Bool("jatp.error", true)}
	var ae *autherr.Error
	if errors.As(err, &ae) {
		attrs = append(attrs, attribute.String("jatp.error.kind", ae.Kind.String()))
		if ae.Code != "" {
			attrs = append(attrs, attribute.String("jatp.error.code", ae.Code))
		}
	}
	return attrs
}

type noopTracer struct {
	noop trace.Tracer
}

func newNoopTracer() Tracer {
	return &noopTracer{
		noop: tracenoop.NewTracerProvider().Tracer("noop"),
	}
}

func (t *noopTracer) StartSpan(ctx context.Context, meta CallMeta) (context.Context, trace.Span) {
	return t.noop.Start(ctx, meta.SpanName())
}

func (t *noopTracer) EndSpan(span trace.Span, err error) {
	span.End()
}

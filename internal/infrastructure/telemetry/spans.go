package telemetry

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// TracerName names the tracer and meter used by application code.
const TracerName = "aurum-backend"

// Span attribute keys for sync work.
const (
	SpanAttrConnectorID = "connector_id"
	SpanAttrRunID       = "run_id"
	SpanAttrSourceType  = "source_type"
	SpanAttrEntityType  = "entity_type"
	SpanAttrPage        = "page"
	SpanAttrItemCount   = "item_count"
)

// SpanOption adjusts how StartSpan opens a span.
type SpanOption func(*spanConfig)

type spanConfig struct {
	kind  trace.SpanKind
	attrs []attribute.KeyValue
}

// WithAttribute sets an attribute at span start.
func WithAttribute(key string, value any) SpanOption {
	return func(c *spanConfig) {
		c.attrs = append(c.attrs, attr(key, value))
	}
}

// WithSpanKind overrides the default internal kind.
func WithSpanKind(kind trace.SpanKind) SpanOption {
	return func(c *spanConfig) {
		c.kind = kind
	}
}

// StartSpan opens a span on the global tracer provider. Callers end it.
func StartSpan(ctx context.Context, name string, opts ...SpanOption) (context.Context, trace.Span) {
	cfg := spanConfig{kind: trace.SpanKindInternal}
	for _, opt := range opts {
		opt(&cfg)
	}
	return otel.Tracer(TracerName).Start(ctx, name,
		trace.WithSpanKind(cfg.kind),
		trace.WithAttributes(cfg.attrs...),
	)
}

// StartServiceSpan opens a span named service.method.
func StartServiceSpan(ctx context.Context, service, method string, opts ...SpanOption) (context.Context, trace.Span) {
	return StartSpan(ctx, service+"."+method, opts...)
}

// SetAttribute sets one attribute on span.
func SetAttribute(span trace.Span, key string, value any) {
	if span != nil {
		span.SetAttributes(attr(key, value))
	}
}

// RecordError records err and marks span failed. A nil err is ignored.
func RecordError(span trace.Span, err error) {
	if span == nil || err == nil {
		return
	}
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}

// SetOK marks span successful.
func SetOK(span trace.Span) {
	if span != nil {
		span.SetStatus(codes.Ok, "")
	}
}

func attr(key string, value any) attribute.KeyValue {
	switch v := value.(type) {
	case string:
		return attribute.String(key, v)
	case int:
		return attribute.Int(key, v)
	case int64:
		return attribute.Int64(key, v)
	case float64:
		return attribute.Float64(key, v)
	case bool:
		return attribute.Bool(key, v)
	case fmt.Stringer:
		return attribute.String(key, v.String())
	default:
		return attribute.String(key, fmt.Sprint(v))
	}
}

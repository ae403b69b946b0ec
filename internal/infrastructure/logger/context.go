package logger

import (
	"context"

	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

type ctxKey int

const (
	loggerKey ctxKey = iota
	requestIDKey
)

// WithContext stores l in ctx.
func WithContext(ctx context.Context, l *zap.Logger) context.Context {
	return context.WithValue(ctx, loggerKey, l)
}

// FromContext returns the stored logger, or a no-op logger.
func FromContext(ctx context.Context) *zap.Logger {
	if l, ok := ctx.Value(loggerKey).(*zap.Logger); ok {
		return l
	}
	return zap.NewNop()
}

// WithRequestID tags l with the request id and stores both in ctx.
func WithRequestID(ctx context.Context, l *zap.Logger, requestID string) (context.Context, *zap.Logger) {
	ctx = context.WithValue(ctx, requestIDKey, requestID)
	l = l.With(zap.String("request_id", requestID))
	return WithContext(ctx, l), l
}

// WithConnectorID tags l with the connector id and stores it in ctx.
func WithConnectorID(ctx context.Context, l *zap.Logger, connectorID string) (context.Context, *zap.Logger) {
	l = l.With(zap.String("connector_id", connectorID))
	return WithContext(ctx, l), l
}

// WithRunID tags l with the sync run id and stores it in ctx.
func WithRunID(ctx context.Context, l *zap.Logger, runID string) (context.Context, *zap.Logger) {
	l = l.With(zap.String("run_id", runID))
	return WithContext(ctx, l), l
}

// RequestID returns the request id stored by WithRequestID.
func RequestID(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey).(string)
	return id
}

// TraceFields returns trace_id and span_id for the active span, if any.
func TraceFields(ctx context.Context) []zap.Field {
	sc := trace.SpanContextFromContext(ctx)
	if !sc.IsValid() {
		return nil
	}
	return []zap.Field{
		zap.String("trace_id", sc.TraceID().String()),
		zap.String("span_id", sc.SpanID().String()),
	}
}

package logger

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestFromContext_DefaultsToNop(t *testing.T) {
	log := FromContext(context.Background())
	assert.NotNil(t, log)
	assert.False(t, log.Core().Enabled(zap.ErrorLevel))
}

func TestContextTagging(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	ctx := context.Background()

	ctx, _ = WithRequestID(ctx, zap.New(core), "req-7")
	ctx, _ = WithConnectorID(ctx, FromContext(ctx), "conn-1")
	ctx, _ = WithRunID(ctx, FromContext(ctx), "run-9")
	FromContext(ctx).Info("page fetched")

	assert.Equal(t, "req-7", RequestID(ctx))
	entries := logs.All()
	if assert.Len(t, entries, 1) {
		assert.Equal(t, map[string]any{
			"request_id":   "req-7",
			"connector_id": "conn-1",
			"run_id":       "run-9",
		}, entries[0].ContextMap())
	}
}

func TestTraceFields(t *testing.T) {
	assert.Nil(t, TraceFields(context.Background()))

	tp := sdktrace.NewTracerProvider()
	defer func() { _ = tp.Shutdown(context.Background()) }()
	ctx, span := tp.Tracer("test").Start(context.Background(), "connector_sync.run")
	defer span.End()

	fields := TraceFields(ctx)
	if assert.Len(t, fields, 2) {
		assert.Equal(t, span.SpanContext().TraceID().String(), fields[0].String)
		assert.Equal(t, span.SpanContext().SpanID().String(), fields[1].String)
	}
}

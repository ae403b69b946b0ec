package telemetry

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.opentelemetry.io/otel/trace"
)

func installRecorder(t *testing.T) *tracetest.SpanRecorder {
	t.Helper()
	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	prev := otel.GetTracerProvider()
	otel.SetTracerProvider(tp)
	t.Cleanup(func() {
		otel.SetTracerProvider(prev)
		_ = tp.Shutdown(context.Background())
	})
	return recorder
}

func spanAttrs(span sdktrace.ReadOnlySpan) map[attribute.Key]attribute.Value {
	out := make(map[attribute.Key]attribute.Value)
	for _, kv := range span.Attributes() {
		out[kv.Key] = kv.Value
	}
	return out
}

func TestStartServiceSpan_SyncRun(t *testing.T) {
	recorder := installRecorder(t)
	connectorID := uuid.New()
	runID := uuid.New()

	ctx, span := StartServiceSpan(context.Background(), "connector_sync", "run",
		WithAttribute(SpanAttrConnectorID, connectorID))
	_, child := StartSpan(ctx, "connector_sync.fetch_page",
		WithAttribute(SpanAttrEntityType, "products"),
		WithAttribute(SpanAttrPage, 2))
	SetAttribute(child, SpanAttrItemCount, 50)
	child.End()
	SetAttribute(span, SpanAttrRunID, runID.String())
	SetOK(span)
	span.End()

	ended := recorder.Ended()
	require.Len(t, ended, 2)

	fetch, run := ended[0], ended[1]
	assert.Equal(t, "connector_sync.run", run.Name())
	assert.Equal(t, trace.SpanKindInternal, run.SpanKind())
	assert.Equal(t, codes.Ok, run.Status().Code)
	assert.Equal(t, connectorID.String(), spanAttrs(run)[SpanAttrConnectorID].AsString())
	assert.Equal(t, runID.String(), spanAttrs(run)[SpanAttrRunID].AsString())

	assert.Equal(t, run.SpanContext().SpanID(), fetch.Parent().SpanID())
	assert.Equal(t, int64(2), spanAttrs(fetch)[SpanAttrPage].AsInt64())
	assert.Equal(t, int64(50), spanAttrs(fetch)[SpanAttrItemCount].AsInt64())
}

func TestRecordError(t *testing.T) {
	recorder := installRecorder(t)

	_, span := StartSpan(context.Background(), "woocommerce.get", WithSpanKind(trace.SpanKindClient))
	RecordError(span, nil)
	RecordError(span, errors.New("store returned 502"))
	span.End()

	ended := recorder.Ended()
	require.Len(t, ended, 1)
	assert.Equal(t, trace.SpanKindClient, ended[0].SpanKind())
	assert.Equal(t, codes.Error, ended[0].Status().Code)
	assert.Equal(t, "store returned 502", ended[0].Status().Description)
	require.Len(t, ended[0].Events(), 1)
	assert.Equal(t, "exception", ended[0].Events()[0].Name)
}

func TestSpanHelpers_NilSpan(t *testing.T) {
	assert.NotPanics(t, func() {
		SetAttribute(nil, SpanAttrPage, 1)
		RecordError(nil, errors.New("boom"))
		SetOK(nil)
	})
}

func TestAttr(t *testing.T) {
	assert.Equal(t, attribute.StringValue("x"), attr("k", "x").Value)
	assert.Equal(t, attribute.Int64Value(3), attr("k", 3).Value)
	assert.Equal(t, attribute.BoolValue(true), attr("k", true).Value)
	assert.Equal(t, attribute.Float64Value(1.5), attr("k", 1.5).Value)
	assert.Equal(t, attribute.StringValue("[1 2]"), attr("k", []int{1, 2}).Value)
}

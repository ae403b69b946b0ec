package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/aurum/backend/internal/infrastructure/telemetry"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	"go.uber.org/zap"
)

// meteredEngine serves routes behind the metrics middleware and returns a
// reader over everything it recorded.
func meteredEngine(t *testing.T, routes func(*gin.Engine)) (*gin.Engine, func() map[string]metricdata.Aggregation) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = mp.Shutdown(context.Background()) })

	mw, err := HTTPMetricsFromMeter(mp.Meter("http.server"))
	require.NoError(t, err)

	engine := gin.New()
	engine.Use(mw)
	routes(engine)

	return engine, func() map[string]metricdata.Aggregation {
		var rm metricdata.ResourceMetrics
		require.NoError(t, reader.Collect(context.Background(), &rm))
		out := map[string]metricdata.Aggregation{}
		for _, sm := range rm.ScopeMetrics {
			for _, m := range sm.Metrics {
				out[m.Name] = m.Data
			}
		}
		return out
	}
}

func hit(engine *gin.Engine, path string) {
	engine.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, path, nil))
}

func TestHTTPMetrics_NotExporting(t *testing.T) {
	gin.SetMode(gin.TestMode)
	mw, err := HTTPMetrics(telemetry.NewMeterProviderFromSDK(nil, zap.NewNop()))
	require.NoError(t, err)

	engine := gin.New()
	engine.Use(mw)
	engine.GET("/ping", func(c *gin.Context) { c.Status(http.StatusOK) })

	w := httptest.NewRecorder()
	engine.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ping", nil))
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestHTTPMetrics_ByRouteTemplateAndStatus(t *testing.T) {
	engine, collect := meteredEngine(t, func(e *gin.Engine) {
		e.GET("/api/v1/connectors/:id", func(c *gin.Context) {
			if c.Param("id") == "gone" {
				c.Status(http.StatusNotFound)
				return
			}
			c.JSON(http.StatusOK, gin.H{"id": c.Param("id")})
		})
	})

	hit(engine, "/api/v1/connectors/1")
	hit(engine, "/api/v1/connectors/2")
	hit(engine, "/api/v1/connectors/gone")

	data := collect()

	requests, ok := data["http_server_requests_total"].(metricdata.Sum[int64])
	require.True(t, ok)
	byStatus := map[int64]int64{}
	for _, dp := range requests.DataPoints {
		route, _ := dp.Attributes.Value(telemetry.AttrHTTPRoute)
		assert.Equal(t, "/api/v1/connectors/:id", route.AsString())
		status, _ := dp.Attributes.Value(telemetry.AttrHTTPStatusCode)
		byStatus[status.AsInt64()] += dp.Value
	}
	assert.Equal(t, map[int64]int64{200: 2, 404: 1}, byStatus)

	latency, ok := data["http_server_request_duration_seconds"].(metricdata.Histogram[float64])
	require.True(t, ok)
	require.Len(t, latency.DataPoints, 1)
	assert.Equal(t, uint64(3), latency.DataPoints[0].Count)

	assert.Contains(t, data, "http_server_response_size_bytes")

	inflight, ok := data["http_server_inflight_requests"].(metricdata.Sum[int64])
	require.True(t, ok)
	require.Len(t, inflight.DataPoints, 1)
	assert.Zero(t, inflight.DataPoints[0].Value)
}

func TestHTTPMetrics_UnmatchedRoute(t *testing.T) {
	engine, collect := meteredEngine(t, func(*gin.Engine) {})
	hit(engine, "/api/v1/connectors/1/nowhere")

	requests, ok := collect()["http_server_requests_total"].(metricdata.Sum[int64])
	require.True(t, ok)
	require.Len(t, requests.DataPoints, 1)
	route, _ := requests.DataPoints[0].Attributes.Value(telemetry.AttrHTTPRoute)
	assert.Equal(t, unmatchedRoute, route.AsString())
}

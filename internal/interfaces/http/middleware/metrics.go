package middleware

import (
	"time"

	"github.com/aurum/backend/internal/infrastructure/telemetry"
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const unmatchedRoute = "unmatched"

var responseSizeBuckets = []float64{256, 1 << 10, 4 << 10, 16 << 10, 64 << 10, 256 << 10, 1 << 20, 4 << 20}

// HTTPMetrics records request rate, latency, response size and in-flight
// requests on the provider's meter. It passes requests straight through when
// the provider does not export.
func HTTPMetrics(mp *telemetry.MeterProvider) (gin.HandlerFunc, error) {
	if !mp.IsEnabled() {
		return func(c *gin.Context) { c.Next() }, nil
	}
	return HTTPMetricsFromMeter(mp.Meter("http.server"))
}

// HTTPMetricsFromMeter builds the metrics middleware on meter.
func HTTPMetricsFromMeter(meter metric.Meter) (gin.HandlerFunc, error) {
	requests, err := telemetry.NewCounter(meter, "http_server_requests_total", "HTTP requests served", "{request}")
	if err != nil {
		return nil, err
	}
	latency, err := telemetry.NewHistogram(meter, telemetry.HistogramOpts{
		Name:        "http_server_request_duration_seconds",
		Description: "Time from routing to the last byte written",
		Unit:        "s",
		Boundaries:  telemetry.HTTPDurationBuckets,
	})
	if err != nil {
		return nil, err
	}
	size, err := telemetry.NewHistogram(meter, telemetry.HistogramOpts{
		Name:        "http_server_response_size_bytes",
		Description: "Response body size",
		Unit:        "By",
		Boundaries:  responseSizeBuckets,
	})
	if err != nil {
		return nil, err
	}
	inflight, err := meter.Int64UpDownCounter("http_server_inflight_requests",
		metric.WithDescription("Requests currently being served"),
		metric.WithUnit("{request}"))
	if err != nil {
		return nil, err
	}

	return func(c *gin.Context) {
		ctx := c.Request.Context()
		began := time.Now()
		inflight.Add(ctx, 1)
		defer inflight.Add(ctx, -1)

		c.Next()

		// Route templates keep connector ids out of attribute values.
		route := c.FullPath()
		if route == "" {
			route = unmatchedRoute
		}
		attrs := []attribute.KeyValue{
			telemetry.AttrHTTPMethod.String(c.Request.Method),
			telemetry.AttrHTTPRoute.String(route),
		}
		requests.Inc(ctx, append(attrs, telemetry.AttrHTTPStatusCode.Int(c.Writer.Status()))...)
		latency.RecordDuration(ctx, time.Since(began), attrs...)
		if n := c.Writer.Size(); n > 0 {
			size.Record(ctx, float64(n), attrs...)
		}
	}, nil
}

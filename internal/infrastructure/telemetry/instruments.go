package telemetry

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Metric attribute keys. Connector and run ids are kept off metrics to bound
// cardinality; they only appear on spans.
var (
	AttrHTTPMethod     = attribute.Key("http.method")
	AttrHTTPStatusCode = attribute.Key("http.status_code")
	AttrHTTPRoute      = attribute.Key("http.route")

	AttrDBOperation = attribute.Key("db.operation")
	AttrDBTable     = attribute.Key("db.table")
	AttrDBState     = attribute.Key("db.pool.state")

	AttrSourceType      = attribute.Key("source_type")
	AttrEntityType      = attribute.Key("entity_type")
	AttrRecordStatus    = attribute.Key("record_status")
	AttrRunStatus       = attribute.Key("run_status")
	AttrConnectorStatus = attribute.Key("connector_status")
)

// Histogram bucket boundaries, in seconds.
var (
	HTTPDurationBuckets    = []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10}
	DBDurationBuckets      = []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5}
	SyncRunDurationBuckets = []float64{1, 5, 15, 30, 60, 120, 300, 600, 1800}
)

// Counter is a monotonically increasing int64 instrument.
type Counter struct {
	inner metric.Int64Counter
}

// NewCounter registers an int64 counter on meter.
func NewCounter(meter metric.Meter, name, description, unit string) (*Counter, error) {
	c, err := meter.Int64Counter(name, metric.WithDescription(description), metric.WithUnit(unit))
	if err != nil {
		return nil, fmt.Errorf("counter %s: %w", name, err)
	}
	return &Counter{inner: c}, nil
}

// Add adds n.
func (c *Counter) Add(ctx context.Context, n int64, attrs ...attribute.KeyValue) {
	c.inner.Add(ctx, n, metric.WithAttributes(attrs...))
}

// Inc adds one.
func (c *Counter) Inc(ctx context.Context, attrs ...attribute.KeyValue) {
	c.Add(ctx, 1, attrs...)
}

// HistogramOpts describes a float64 histogram.
type HistogramOpts struct {
	Name        string
	Description string
	Unit        string
	Boundaries  []float64
}

// Histogram records float64 distributions such as latencies.
type Histogram struct {
	inner metric.Float64Histogram
}

// NewHistogram registers a histogram; explicit boundaries are optional.
func NewHistogram(meter metric.Meter, opts HistogramOpts) (*Histogram, error) {
	hopts := []metric.Float64HistogramOption{
		metric.WithDescription(opts.Description),
		metric.WithUnit(opts.Unit),
	}
	if len(opts.Boundaries) > 0 {
		hopts = append(hopts, metric.WithExplicitBucketBoundaries(opts.Boundaries...))
	}
	h, err := meter.Float64Histogram(opts.Name, hopts...)
	if err != nil {
		return nil, fmt.Errorf("histogram %s: %w", opts.Name, err)
	}
	return &Histogram{inner: h}, nil
}

// Record records v.
func (h *Histogram) Record(ctx context.Context, v float64, attrs ...attribute.KeyValue) {
	h.inner.Record(ctx, v, metric.WithAttributes(attrs...))
}

// RecordDuration records d in seconds.
func (h *Histogram) RecordDuration(ctx context.Context, d time.Duration, attrs ...attribute.KeyValue) {
	h.Record(ctx, d.Seconds(), attrs...)
}

// Gauge holds the last sampled int64 value per attribute set.
type Gauge struct {
	inner metric.Int64Gauge
}

// NewGauge registers a synchronous int64 gauge.
func NewGauge(meter metric.Meter, name, description, unit string) (*Gauge, error) {
	g, err := meter.Int64Gauge(name, metric.WithDescription(description), metric.WithUnit(unit))
	if err != nil {
		return nil, fmt.Errorf("gauge %s: %w", name, err)
	}
	return &Gauge{inner: g}, nil
}

// Record sets the current value.
func (g *Gauge) Record(ctx context.Context, v int64, attrs ...attribute.KeyValue) {
	g.inner.Record(ctx, v, metric.WithAttributes(attrs...))
}

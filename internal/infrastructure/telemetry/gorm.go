package telemetry

import (
	"context"
	"database/sql"
	"strings"
	"sync"
	"time"

	"github.com/uptrace/opentelemetry-go-extra/otelgorm"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// gormHook registers fn under name relative to one GORM processor.
type gormHook func(name string, fn func(*gorm.DB)) error

type gormOp struct {
	op            string
	before, after gormHook
}

// gormOps lists the processors connector repositories go through.
func gormOps(db *gorm.DB) []gormOp {
	cb := db.Callback()
	return []gormOp{
		{"create",
			func(n string, f func(*gorm.DB)) error { return cb.Create().Before("gorm:create").Register(n, f) },
			func(n string, f func(*gorm.DB)) error { return cb.Create().After("gorm:create").Register(n, f) }},
		{"select",
			func(n string, f func(*gorm.DB)) error { return cb.Query().Before("gorm:query").Register(n, f) },
			func(n string, f func(*gorm.DB)) error { return cb.Query().After("gorm:query").Register(n, f) }},
		{"update",
			func(n string, f func(*gorm.DB)) error { return cb.Update().Before("gorm:update").Register(n, f) },
			func(n string, f func(*gorm.DB)) error { return cb.Update().After("gorm:update").Register(n, f) }},
		{"delete",
			func(n string, f func(*gorm.DB)) error { return cb.Delete().Before("gorm:delete").Register(n, f) },
			func(n string, f func(*gorm.DB)) error { return cb.Delete().After("gorm:delete").Register(n, f) }},
		{"row",
			func(n string, f func(*gorm.DB)) error { return cb.Row().Before("gorm:row").Register(n, f) },
			func(n string, f func(*gorm.DB)) error { return cb.Row().After("gorm:row").Register(n, f) }},
		{"raw",
			func(n string, f func(*gorm.DB)) error { return cb.Raw().Before("gorm:raw").Register(n, f) },
			func(n string, f func(*gorm.DB)) error { return cb.Raw().After("gorm:raw").Register(n, f) }},
	}
}

type startKey struct{ plugin string }

func markStart(key startKey) func(*gorm.DB) {
	return func(db *gorm.DB) {
		if db.Statement.Context != nil {
			db.Statement.Context = context.WithValue(db.Statement.Context, key, time.Now())
		}
	}
}

func elapsed(db *gorm.DB, key startKey) (time.Duration, bool) {
	if db.Statement.Context == nil {
		return 0, false
	}
	start, ok := db.Statement.Context.Value(key).(time.Time)
	if !ok {
		return 0, false
	}
	return time.Since(start), true
}

// statementOp names the SQL verb; raw and row statements are classified by their text.
func statementOp(op, sql string) string {
	if op != "raw" && op != "row" {
		return op
	}
	verb, _, _ := strings.Cut(strings.TrimSpace(sql), " ")
	switch v := strings.ToLower(verb); v {
	case "select", "insert", "update", "delete":
		return v
	default:
		return "other"
	}
}

// ---------------------------------------------------------------------------
// Tracing
// ---------------------------------------------------------------------------

// DBTracingConfig controls otelgorm spans.
type DBTracingConfig struct {
	Enabled          bool
	LogFullSQL       bool
	WithoutVariables bool
	SlowQueryThresh  time.Duration
	DBSystem         string
}

// DefaultDBTracingConfig returns tracing disabled with variables hidden.
func DefaultDBTracingConfig() DBTracingConfig {
	return DBTracingConfig{
		SlowQueryThresh:  200 * time.Millisecond,
		DBSystem:         "postgresql",
		WithoutVariables: true,
	}
}

// DBTracingPlugin attaches otelgorm and flags slow statements on their spans.
type DBTracingPlugin struct {
	cfg    DBTracingConfig
	logger *zap.Logger
}

// NewDBTracingPlugin creates a tracing plugin.
func NewDBTracingPlugin(cfg DBTracingConfig, logger *zap.Logger) *DBTracingPlugin {
	return &DBTracingPlugin{cfg: cfg, logger: logger}
}

var tracingStart = startKey{"tracing"}

// RegisterOtelGorm installs the plugin on db. It is a no-op when disabled.
func (p *DBTracingPlugin) RegisterOtelGorm(db *gorm.DB) error {
	if !p.cfg.Enabled {
		return nil
	}

	opts := []otelgorm.Option{otelgorm.WithDBName(p.cfg.DBSystem)}
	if p.cfg.WithoutVariables || !p.cfg.LogFullSQL {
		opts = append(opts, otelgorm.WithoutQueryVariables())
	}
	if err := db.Use(otelgorm.NewPlugin(opts...)); err != nil {
		return err
	}

	for _, o := range gormOps(db) {
		if err := o.before("telemetry:trace_start_"+o.op, markStart(tracingStart)); err != nil {
			return err
		}
		if err := o.after("telemetry:trace_slow_"+o.op, p.flagSlow); err != nil {
			return err
		}
	}

	p.logger.Info("Database tracing enabled",
		zap.Bool("log_full_sql", p.cfg.LogFullSQL),
		zap.Duration("slow_query_threshold", p.cfg.SlowQueryThresh),
	)
	return nil
}

func (p *DBTracingPlugin) flagSlow(db *gorm.DB) {
	d, ok := elapsed(db, tracingStart)
	if !ok || p.cfg.SlowQueryThresh <= 0 || d < p.cfg.SlowQueryThresh {
		return
	}
	trace.SpanFromContext(db.Statement.Context).SetAttributes(
		attribute.Bool("db.slow_query", true),
		attribute.Int64("db.duration_ms", d.Milliseconds()),
	)
	p.logger.Warn("Slow database query",
		zap.String("table", db.Statement.Table),
		zap.Duration("duration", d),
		zap.Int64("rows", db.Statement.RowsAffected),
	)
}

// ---------------------------------------------------------------------------
// Metrics
// ---------------------------------------------------------------------------

// DBMetricsConfig controls query and pool metrics.
type DBMetricsConfig struct {
	Enabled            bool
	SlowQueryThreshold time.Duration
	PoolStatsInterval  time.Duration
}

// DefaultDBMetricsConfig enables metrics with a 200ms slow threshold and 15s pool sampling.
func DefaultDBMetricsConfig() DBMetricsConfig {
	return DBMetricsConfig{
		Enabled:            true,
		SlowQueryThreshold: 200 * time.Millisecond,
		PoolStatsInterval:  15 * time.Second,
	}
}

// DBMetrics records query latency per operation and table, and samples pool usage.
type DBMetrics struct {
	cfg    DBMetricsConfig
	logger *zap.Logger
	sqlDB  *sql.DB

	queries  *Counter
	slow     *Counter
	latency  *Histogram
	pool     *Gauge
	poolSize *Gauge

	stop     chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

var metricsStart = startKey{"metrics"}

// NewDBMetrics registers the database instruments on meter.
func NewDBMetrics(meter metric.Meter, cfg DBMetricsConfig, logger *zap.Logger) (*DBMetrics, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.SlowQueryThreshold <= 0 {
		cfg.SlowQueryThreshold = 200 * time.Millisecond
	}
	if cfg.PoolStatsInterval <= 0 {
		cfg.PoolStatsInterval = 15 * time.Second
	}

	m := &DBMetrics{cfg: cfg, logger: logger, stop: make(chan struct{})}
	var err error
	if m.queries, err = NewCounter(meter, "db_query_total", "Database statements by operation and table", "{query}"); err != nil {
		return nil, err
	}
	if m.slow, err = NewCounter(meter, "db_slow_query_total", "Statements slower than the slow query threshold", "{query}"); err != nil {
		return nil, err
	}
	if m.latency, err = NewHistogram(meter, HistogramOpts{
		Name:        "db_query_duration_seconds",
		Description: "Database statement latency",
		Unit:        "s",
		Boundaries:  DBDurationBuckets,
	}); err != nil {
		return nil, err
	}
	if m.pool, err = NewGauge(meter, "db_pool_connections", "Pool connections by state", "{connection}"); err != nil {
		return nil, err
	}
	if m.poolSize, err = NewGauge(meter, "db_pool_connections_max", "Maximum open connections", "{connection}"); err != nil {
		return nil, err
	}
	return m, nil
}

// Name implements gorm.Plugin.
func (m *DBMetrics) Name() string {
	return "telemetry:db_metrics"
}

// Initialize implements gorm.Plugin.
func (m *DBMetrics) Initialize(db *gorm.DB) error {
	for _, o := range gormOps(db) {
		op := o.op
		if err := o.before("telemetry:metrics_start_"+op, markStart(metricsStart)); err != nil {
			return err
		}
		if err := o.after("telemetry:metrics_record_"+op, func(db *gorm.DB) {
			if d, ok := elapsed(db, metricsStart); ok {
				m.RecordQuery(db.Statement.Context, statementOp(op, db.Statement.SQL.String()), db.Statement.Table, d)
			}
		}); err != nil {
			return err
		}
	}
	return nil
}

// RecordQuery records one statement.
func (m *DBMetrics) RecordQuery(ctx context.Context, op, table string, d time.Duration) {
	attrs := []attribute.KeyValue{AttrDBOperation.String(op), AttrDBTable.String(table)}
	m.queries.Inc(ctx, attrs...)
	m.latency.RecordDuration(ctx, d, attrs...)
	if d >= m.cfg.SlowQueryThreshold {
		m.slow.Inc(ctx, attrs...)
	}
}

// StartPoolStatsCollection samples pool stats until ctx ends or Stop is called.
func (m *DBMetrics) StartPoolStatsCollection(ctx context.Context) {
	if m.sqlDB == nil {
		return
	}
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		ticker := time.NewTicker(m.cfg.PoolStatsInterval)
		defer ticker.Stop()
		for {
			m.samplePool(ctx)
			select {
			case <-ctx.Done():
				return
			case <-m.stop:
				return
			case <-ticker.C:
			}
		}
	}()
}

func (m *DBMetrics) samplePool(ctx context.Context) {
	stats := m.sqlDB.Stats()
	m.pool.Record(ctx, int64(stats.InUse), AttrDBState.String("in_use"))
	m.pool.Record(ctx, int64(stats.Idle), AttrDBState.String("idle"))
	m.poolSize.Record(ctx, int64(stats.MaxOpenConnections))
}

// Stop ends pool sampling and waits for the sampler to exit.
func (m *DBMetrics) Stop() {
	m.stopOnce.Do(func() { close(m.stop) })
	m.wg.Wait()
}

// RegisterDBMetrics installs DBMetrics on db. It returns nil when metrics are
// disabled or the meter provider does not export.
func RegisterDBMetrics(db *gorm.DB, mp *MeterProvider, cfg DBMetricsConfig, logger *zap.Logger) (*DBMetrics, error) {
	if !cfg.Enabled || mp == nil || !mp.IsEnabled() {
		return nil, nil
	}
	m, err := NewDBMetrics(mp.Meter("db.client"), cfg, logger)
	if err != nil {
		return nil, err
	}
	if m.sqlDB, err = db.DB(); err != nil {
		return nil, err
	}
	if err := db.Use(m); err != nil {
		return nil, err
	}
	logger.Info("Database metrics registered", zap.Duration("slow_query_threshold", m.cfg.SlowQueryThreshold))
	return m, nil
}

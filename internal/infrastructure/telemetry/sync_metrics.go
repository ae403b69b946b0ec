package telemetry

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"

	"github.com/aurum/backend/internal/domain/connector"
)

// ErrMeterNil is returned by NewSyncMetrics without a meter.
var ErrMeterNil = errors.New("NewSyncMetrics: meter cannot be nil")

// SyncMetrics provides connector sync metrics.
// It tracks record outcomes, run outcomes and durations, and periodically
// samples connector and staged record counts.
type SyncMetrics struct {
	meter  metric.Meter
	logger *zap.Logger

	// Counter metrics (monotonically increasing)
	recordsTotal *Counter
	runsTotal    *Counter

	// Histogram metrics
	runDuration *Histogram

	// Gauge metrics (point-in-time values)
	connectorsGauge    *Gauge
	stagedRecordsGauge *Gauge

	// Periodic collector
	stopChan    chan struct{}
	stopOnce    sync.Once
	collectOnce sync.Once

	provider ConnectorMetricsProvider
}

// SyncMetricsConfig holds configuration for sync metrics.
type SyncMetricsConfig struct {
	Meter    metric.Meter
	Logger   *zap.Logger
	Provider ConnectorMetricsProvider
}

// NewSyncMetrics creates a new SyncMetrics instance.
func NewSyncMetrics(cfg SyncMetricsConfig) (*SyncMetrics, error) {
	if cfg.Meter == nil {
		return nil, ErrMeterNil
	}

	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	sm := &SyncMetrics{
		meter:    cfg.Meter,
		logger:   logger,
		stopChan: make(chan struct{}),
		provider: cfg.Provider,
	}

	var err error
	sm.recordsTotal, err = NewCounter(
		cfg.Meter,
		"connector_sync_records_total",
		"Total number of external records processed by sync runs",
		"{records}",
	)
	if err != nil {
		return nil, err
	}

	sm.runsTotal, err = NewCounter(
		cfg.Meter,
		"connector_sync_runs_total",
		"Total number of finished sync runs",
		"{runs}",
	)
	if err != nil {
		return nil, err
	}

	sm.runDuration, err = NewHistogram(cfg.Meter, HistogramOpts{
		Name:        "connector_sync_run_duration_seconds",
		Description: "Duration of finished sync runs",
		Unit:        "s",
		Boundaries:  SyncRunDurationBuckets,
	})
	if err != nil {
		return nil, err
	}

	sm.connectorsGauge, err = NewGauge(
		cfg.Meter,
		"connector_connectors",
		"Number of connectors per status",
		"{connectors}",
	)
	if err != nil {
		return nil, err
	}

	sm.stagedRecordsGauge, err = NewGauge(
		cfg.Meter,
		"connector_external_records",
		"Number of staged external records per entity type and status",
		"{records}",
	)
	if err != nil {
		return nil, err
	}

	return sm, nil
}

// =============================================================================
// Sync Events
// =============================================================================

// RecordRecord counts one staged record
func (sm *SyncMetrics) RecordRecord(ctx context.Context, source connector.SourceType, entity connector.EntityType, status connector.RecordStatus) {
	sm.recordsTotal.Inc(ctx,
		AttrSourceType.String(string(source)),
		AttrEntityType.String(string(entity)),
		AttrRecordStatus.String(string(status)),
	)
}

// RecordRun counts a finished run and records its duration
func (sm *SyncMetrics) RecordRun(ctx context.Context, source connector.SourceType, status connector.RunStatus, duration time.Duration) {
	attrs := []attribute.KeyValue{
		AttrSourceType.String(string(source)),
		AttrRunStatus.String(string(status)),
	}
	sm.runsTotal.Inc(ctx, attrs...)
	sm.runDuration.RecordDuration(ctx, duration, attrs...)
}

// =============================================================================
// Periodic Collection
// =============================================================================

// StartPeriodicCollection samples connector and record counts every interval
// (default: 5 minutes). It is non-blocking; use Stop() to end collection.
func (sm *SyncMetrics) StartPeriodicCollection(ctx context.Context, interval time.Duration) {
	sm.collectOnce.Do(func() {
		if interval <= 0 {
			interval = 5 * time.Minute
		}
		go sm.runPeriodicCollection(ctx, interval)
	})
}

func (sm *SyncMetrics) runPeriodicCollection(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	sm.Collect(ctx)

	for {
		select {
		case <-sm.stopChan:
			sm.logger.Info("Stopping periodic sync metrics collection")
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			sm.Collect(ctx)
		}
	}
}

// Collect samples the gauges once
func (sm *SyncMetrics) Collect(ctx context.Context) {
	if sm.provider == nil {
		sm.logger.Debug("No connector metrics provider configured, skipping collection")
		return
	}

	byStatus, err := sm.provider.CountConnectorsByStatus(ctx)
	if err != nil {
		sm.logger.Warn("Failed to count connectors", zap.Error(err))
	} else {
		for status, count := range byStatus {
			sm.connectorsGauge.Record(ctx, count, AttrConnectorStatus.String(status))
		}
	}

	counts, err := sm.provider.CountRecordsByStatus(ctx)
	if err != nil {
		sm.logger.Warn("Failed to count external records", zap.Error(err))
		return
	}
	for _, c := range counts {
		sm.stagedRecordsGauge.Record(ctx, c.Count,
			AttrEntityType.String(c.EntityType),
			AttrRecordStatus.String(c.Status),
		)
	}
}

// Stop stops the periodic collection.
func (sm *SyncMetrics) Stop() {
	sm.stopOnce.Do(func() {
		close(sm.stopChan)
	})
}

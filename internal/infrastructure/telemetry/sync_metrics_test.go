package telemetry

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	"go.uber.org/zap/zaptest"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/aurum/backend/internal/domain/connector"
)

// fakeConnectorMetricsProvider returns fixed counts
type fakeConnectorMetricsProvider struct {
	calls      atomic.Int32
	connectors map[string]int64
	records    []RecordCount
	err        error
}

func (f *fakeConnectorMetricsProvider) CountConnectorsByStatus(context.Context) (map[string]int64, error) {
	f.calls.Add(1)
	if f.err != nil {
		return nil, f.err
	}
	return f.connectors, nil
}

func (f *fakeConnectorMetricsProvider) CountRecordsByStatus(context.Context) ([]RecordCount, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.records, nil
}

func newTestSyncMetrics(t *testing.T, provider ConnectorMetricsProvider) (*SyncMetrics, *sdkmetric.ManualReader) {
	t.Helper()
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = mp.Shutdown(context.Background()) })

	sm, err := NewSyncMetrics(SyncMetricsConfig{
		Meter:    mp.Meter("test.sync"),
		Logger:   zaptest.NewLogger(t),
		Provider: provider,
	})
	require.NoError(t, err)
	return sm, reader
}

func collectMetric(t *testing.T, reader *sdkmetric.ManualReader, name string) (metricdata.Metrics, bool) {
	t.Helper()
	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if m.Name == name {
				return m, true
			}
		}
	}
	return metricdata.Metrics{}, false
}

func attrValue(set attribute.Set, key attribute.Key) string {
	v, _ := set.Value(key)
	return v.AsString()
}

func TestNewSyncMetrics_NilMeter(t *testing.T) {
	sm, err := NewSyncMetrics(SyncMetricsConfig{})

	require.Error(t, err)
	assert.Nil(t, sm)
	assert.Equal(t, "NewSyncMetrics: meter cannot be nil", err.Error())
}

func TestSyncMetrics_RecordRecord(t *testing.T) {
	sm, reader := newTestSyncMetrics(t, nil)
	ctx := context.Background()

	sm.RecordRecord(ctx, connector.SourceTypeWooCommerce, connector.EntityTypeProduct, connector.RecordStatusMapped)
	sm.RecordRecord(ctx, connector.SourceTypeWooCommerce, connector.EntityTypeProduct, connector.RecordStatusMapped)
	sm.RecordRecord(ctx, connector.SourceTypeWooCommerce, connector.EntityTypeOrder, connector.RecordStatusFailed)

	m, ok := collectMetric(t, reader, "connector_sync_records_total")
	require.True(t, ok)
	sum, ok := m.Data.(metricdata.Sum[int64])
	require.True(t, ok)
	require.Len(t, sum.DataPoints, 2)

	byEntity := map[string]int64{}
	for _, dp := range sum.DataPoints {
		assert.Equal(t, "woocommerce", attrValue(dp.Attributes, AttrSourceType))
		byEntity[attrValue(dp.Attributes, AttrEntityType)+"/"+attrValue(dp.Attributes, AttrRecordStatus)] = dp.Value
	}
	assert.Equal(t, map[string]int64{"product/mapped": 2, "order/failed": 1}, byEntity)
}

func TestSyncMetrics_RecordRun(t *testing.T) {
	sm, reader := newTestSyncMetrics(t, nil)
	ctx := context.Background()

	sm.RecordRun(ctx, connector.SourceTypeWooCommerce, connector.RunStatusSuccess, 42*time.Second)
	sm.RecordRun(ctx, connector.SourceTypeWooCommerce, connector.RunStatusFailed, 3*time.Second)

	metrics := collect(t, reader)
	require.Contains(t, metrics, "connector_sync_runs_total")
	require.Contains(t, metrics, "connector_sync_run_duration_seconds")

	m := metrics["connector_sync_run_duration_seconds"]
	hist, ok := m.Data.(metricdata.Histogram[float64])
	require.True(t, ok)
	require.Len(t, hist.DataPoints, 2)
	for _, dp := range hist.DataPoints {
		assert.Equal(t, uint64(1), dp.Count)
		switch attrValue(dp.Attributes, AttrRunStatus) {
		case "success":
			assert.Equal(t, 42.0, dp.Sum)
		case "failed":
			assert.Equal(t, 3.0, dp.Sum)
		default:
			t.Errorf("unexpected run status attribute")
		}
	}
}

func TestSyncMetrics_Collect(t *testing.T) {
	provider := &fakeConnectorMetricsProvider{
		connectors: map[string]int64{"active": 3, "disabled": 1},
		records: []RecordCount{
			{EntityType: "product", Status: "mapped", Count: 120},
			{EntityType: "order", Status: "failed", Count: 4},
		},
	}
	sm, reader := newTestSyncMetrics(t, provider)

	sm.Collect(context.Background())

	m, ok := collectMetric(t, reader, "connector_connectors")
	require.True(t, ok)
	gauge, ok := m.Data.(metricdata.Gauge[int64])
	require.True(t, ok)
	byStatus := map[string]int64{}
	for _, dp := range gauge.DataPoints {
		byStatus[attrValue(dp.Attributes, AttrConnectorStatus)] = dp.Value
	}
	assert.Equal(t, map[string]int64{"active": 3, "disabled": 1}, byStatus)

	m, ok = collectMetric(t, reader, "connector_external_records")
	require.True(t, ok)
	gauge, ok = m.Data.(metricdata.Gauge[int64])
	require.True(t, ok)
	assert.Len(t, gauge.DataPoints, 2)
}

func TestSyncMetrics_CollectTolerates(t *testing.T) {
	t.Run("no provider", func(t *testing.T) {
		sm, reader := newTestSyncMetrics(t, nil)
		sm.Collect(context.Background())
		_, ok := collectMetric(t, reader, "connector_connectors")
		assert.False(t, ok)
	})

	t.Run("provider error", func(t *testing.T) {
		provider := &fakeConnectorMetricsProvider{err: errors.New("db down")}
		sm, reader := newTestSyncMetrics(t, provider)
		sm.Collect(context.Background())
		_, ok := collectMetric(t, reader, "connector_connectors")
		assert.False(t, ok)
		assert.Equal(t, int32(1), provider.calls.Load())
	})
}

func TestSyncMetrics_PeriodicCollection(t *testing.T) {
	provider := &fakeConnectorMetricsProvider{connectors: map[string]int64{"active": 1}}
	sm, _ := newTestSyncMetrics(t, provider)

	sm.StartPeriodicCollection(context.Background(), 10*time.Millisecond)
	sm.StartPeriodicCollection(context.Background(), 10*time.Millisecond)

	require.Eventually(t, func() bool {
		return provider.calls.Load() >= 2
	}, time.Second, 5*time.Millisecond)

	sm.Stop()
	sm.Stop()
}

func TestGormConnectorMetricsProvider(t *testing.T) {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, db.Exec(`CREATE TABLE connectors (id TEXT PRIMARY KEY, status TEXT)`).Error)
	require.NoError(t, db.Exec(`CREATE TABLE external_records (id TEXT PRIMARY KEY, entity_type TEXT, status TEXT)`).Error)
	require.NoError(t, db.Exec(`INSERT INTO connectors VALUES ('a','active'),('b','active'),('c','disabled')`).Error)
	require.NoError(t, db.Exec(`INSERT INTO external_records VALUES
		('1','product','mapped'),('2','product','mapped'),('3','product','failed'),('4','order','mapped')`).Error)

	provider := NewGormConnectorMetricsProvider(db)
	ctx := context.Background()

	byStatus, err := provider.CountConnectorsByStatus(ctx)
	require.NoError(t, err)
	assert.Equal(t, map[string]int64{"active": 2, "disabled": 1}, byStatus)

	records, err := provider.CountRecordsByStatus(ctx)
	require.NoError(t, err)
	assert.Equal(t, []RecordCount{
		{EntityType: "order", Status: "mapped", Count: 1},
		{EntityType: "product", Status: "failed", Count: 1},
		{EntityType: "product", Status: "mapped", Count: 2},
	}, records)
}

package telemetry

import (
	"context"

	"gorm.io/gorm"
)

// RecordCount is the number of staged records with one entity type and status
type RecordCount struct {
	EntityType string `gorm:"column:entity_type"`
	Status     string `gorm:"column:status"`
	Count      int64  `gorm:"column:count"`
}

// ConnectorMetricsProvider supplies aggregate counts for gauge collection.
// It lets the telemetry layer sample sync state without depending on repositories.
type ConnectorMetricsProvider interface {
	CountConnectorsByStatus(ctx context.Context) (map[string]int64, error)
	CountRecordsByStatus(ctx context.Context) ([]RecordCount, error)
}

// GormConnectorMetricsProvider implements ConnectorMetricsProvider using GORM.
// It aggregates the connectors and external_records tables directly.
type GormConnectorMetricsProvider struct {
	db *gorm.DB
}

// NewGormConnectorMetricsProvider creates a new GormConnectorMetricsProvider.
func NewGormConnectorMetricsProvider(db *gorm.DB) *GormConnectorMetricsProvider {
	return &GormConnectorMetricsProvider{db: db}
}

// CountConnectorsByStatus returns the number of connectors per status.
func (p *GormConnectorMetricsProvider) CountConnectorsByStatus(ctx context.Context) (map[string]int64, error) {
	type result struct {
		Status string `gorm:"column:status"`
		Count  int64  `gorm:"column:count"`
	}

	var results []result
	err := p.db.WithContext(ctx).
		Table("connectors").
		Select("status, COUNT(*) AS count").
		Group("status").
		Scan(&results).Error
	if err != nil {
		return nil, err
	}

	counts := make(map[string]int64, len(results))
	for _, r := range results {
		counts[r.Status] = r.Count
	}
	return counts, nil
}

// CountRecordsByStatus returns staged record counts per entity type and status.
func (p *GormConnectorMetricsProvider) CountRecordsByStatus(ctx context.Context) ([]RecordCount, error) {
	var results []RecordCount
	err := p.db.WithContext(ctx).
		Table("external_records").
		Select("entity_type, status, COUNT(*) AS count").
		Group("entity_type, status").
		Order("entity_type, status").
		Scan(&results).Error
	if err != nil {
		return nil, err
	}
	return results, nil
}

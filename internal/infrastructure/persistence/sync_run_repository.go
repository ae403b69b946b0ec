package persistence

import (
	"context"

	"github.com/aurum/backend/internal/domain/connector"
	"github.com/aurum/backend/internal/infrastructure/persistence/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// GormSyncRunRepository implements connector.SyncRunRepository using GORM
type GormSyncRunRepository struct {
	db *gorm.DB
}

// NewGormSyncRunRepository creates a new GormSyncRunRepository
func NewGormSyncRunRepository(db *gorm.DB) *GormSyncRunRepository {
	return &GormSyncRunRepository{db: db}
}

var _ connector.SyncRunRepository = (*GormSyncRunRepository)(nil)

// Create inserts a new run
func (r *GormSyncRunRepository) Create(ctx context.Context, run *connector.SyncRun) error {
	return r.db.WithContext(ctx).Create(models.SyncRunModelFromDomain(run)).Error
}

// Update writes the terminal state of a run. Only runs still in the running
// state are updated, so a run is finalized at most once.
func (r *GormSyncRunRepository) Update(ctx context.Context, run *connector.SyncRun) error {
	model := models.SyncRunModelFromDomain(run)
	result := r.db.WithContext(ctx).
		Model(&models.SyncRunModel{}).
		Where("id = ? AND status = ?", run.ID, connector.RunStatusRunning).
		Select("status", "finished_at", "stats", "error").
		Updates(model)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return connector.ErrRunAlreadyFinished
	}
	return nil
}

// FindByConnectorID returns up to limit runs of a connector, newest first
func (r *GormSyncRunRepository) FindByConnectorID(ctx context.Context, connectorID uuid.UUID, limit int) ([]connector.SyncRun, error) {
	query := r.db.WithContext(ctx).
		Where("connector_id = ?", connectorID).
		Order("started_at DESC")
	if limit > 0 {
		query = query.Limit(limit)
	}

	var runModels []models.SyncRunModel
	if err := query.Find(&runModels).Error; err != nil {
		return nil, err
	}

	runs := make([]connector.SyncRun, len(runModels))
	for i, model := range runModels {
		runs[i] = *model.ToDomain()
	}
	return runs, nil
}

// FindLatestByConnectorIDs returns the most recent run of each connector in one query.
// Connectors that never ran are absent from the map.
func (r *GormSyncRunRepository) FindLatestByConnectorIDs(ctx context.Context, connectorIDs []uuid.UUID) (map[uuid.UUID]*connector.SyncRun, error) {
	latest := make(map[uuid.UUID]*connector.SyncRun, len(connectorIDs))
	if len(connectorIDs) == 0 {
		return latest, nil
	}

	var runModels []models.SyncRunModel
	if err := r.db.WithContext(ctx).
		Where("connector_id IN ?", connectorIDs).
		Where("started_at = (SELECT MAX(r2.started_at) FROM connector_sync_runs r2 WHERE r2.connector_id = connector_sync_runs.connector_id)").
		Order("id ASC").
		Find(&runModels).Error; err != nil {
		return nil, err
	}
	for i := range runModels {
		if _, seen := latest[runModels[i].ConnectorID]; seen {
			continue
		}
		latest[runModels[i].ConnectorID] = runModels[i].ToDomain()
	}
	return latest, nil
}

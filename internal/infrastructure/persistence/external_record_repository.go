package persistence

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/aurum/backend/internal/domain/connector"
	"github.com/aurum/backend/internal/infrastructure/persistence/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ErrExternalRecordNotFound is returned by FindByKey when no record has the key
var ErrExternalRecordNotFound = errors.New("persistence: external record not found")

// GormExternalRecordRepository implements connector.ExternalRecordRepository using GORM
type GormExternalRecordRepository struct {
	db *gorm.DB
}

// NewGormExternalRecordRepository creates a new GormExternalRecordRepository
func NewGormExternalRecordRepository(db *gorm.DB) *GormExternalRecordRepository {
	return &GormExternalRecordRepository{db: db}
}

var _ connector.ExternalRecordRepository = (*GormExternalRecordRepository)(nil)

// Upsert inserts the record or overwrites the row with the same
// (connector_id, entity_type, external_id). The row keeps its original id.
func (r *GormExternalRecordRepository) Upsert(ctx context.Context, record *connector.ExternalRecord) error {
	model, err := models.ExternalRecordModelFromDomain(record)
	if err != nil {
		return fmt.Errorf("encode external record %s/%s: %w", record.EntityType, record.ExternalID, err)
	}
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "connector_id"}, {Name: "entity_type"}, {Name: "external_id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"raw_payload",
			"mapped_payload",
			"status",
			"sync_run_id",
			"updated_at",
		}),
	}).Create(model).Error
}

// FindByKey finds a record by its natural key
func (r *GormExternalRecordRepository) FindByKey(ctx context.Context, connectorID uuid.UUID, entity connector.EntityType, externalID string) (*connector.ExternalRecord, error) {
	var model models.ExternalRecordModel
	if err := r.db.WithContext(ctx).
		Where("connector_id = ? AND entity_type = ? AND external_id = ?", connectorID, entity, externalID).
		First(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrExternalRecordNotFound
		}
		return nil, err
	}
	return model.ToDomain(), nil
}

// CountByStatus counts the records of one connector and entity type per status
func (r *GormExternalRecordRepository) CountByStatus(ctx context.Context, connectorID uuid.UUID, entity connector.EntityType) (map[connector.RecordStatus]int64, error) {
	var rows []struct {
		Status connector.RecordStatus
		Count  int64
	}
	if err := r.db.WithContext(ctx).
		Model(&models.ExternalRecordModel{}).
		Select("status, COUNT(*) AS count").
		Where("connector_id = ? AND entity_type = ?", connectorID, entity).
		Group("status").
		Scan(&rows).Error; err != nil {
		return nil, err
	}

	counts := make(map[connector.RecordStatus]int64, len(rows))
	for _, row := range rows {
		counts[row.Status] = row.Count
	}
	return counts, nil
}

// ---------------------------------------------------------------------------
// GormExternalReferenceRepository
// ---------------------------------------------------------------------------

// GormExternalReferenceRepository implements connector.ExternalReferenceRepository using GORM
type GormExternalReferenceRepository struct {
	db *gorm.DB
}

// NewGormExternalReferenceRepository creates a new GormExternalReferenceRepository
func NewGormExternalReferenceRepository(db *gorm.DB) *GormExternalReferenceRepository {
	return &GormExternalReferenceRepository{db: db}
}

var _ connector.ExternalReferenceRepository = (*GormExternalReferenceRepository)(nil)

// FindInternalID returns the internal id mapped to an external id, or nil
func (r *GormExternalReferenceRepository) FindInternalID(ctx context.Context, source connector.SourceType, entity connector.EntityType, externalID string) (*uuid.UUID, error) {
	var model models.ExternalReferenceModel
	err := r.db.WithContext(ctx).
		Where("source = ? AND entity_type = ? AND external_id = ?", source, entity, externalID).
		Take(&model).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &model.InternalID, nil
}

// ---------------------------------------------------------------------------
// GormUserLookupRepository
// ---------------------------------------------------------------------------

// GormUserLookupRepository implements connector.UserLookupRepository using GORM
type GormUserLookupRepository struct {
	db *gorm.DB
}

// NewGormUserLookupRepository creates a new GormUserLookupRepository
func NewGormUserLookupRepository(db *gorm.DB) *GormUserLookupRepository {
	return &GormUserLookupRepository{db: db}
}

var _ connector.UserLookupRepository = (*GormUserLookupRepository)(nil)

// FindIDByEmail matches emails case-insensitively and returns nil on a miss
func (r *GormUserLookupRepository) FindIDByEmail(ctx context.Context, email string) (*uuid.UUID, error) {
	var model models.UserEmailModel
	err := r.db.WithContext(ctx).
		Where("LOWER(email) = ?", strings.ToLower(strings.TrimSpace(email))).
		Take(&model).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &model.ID, nil
}

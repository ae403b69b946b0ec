package persistence

import (
	"context"
	"errors"

	"github.com/aurum/backend/internal/domain/connector"
	"github.com/aurum/backend/internal/infrastructure/persistence/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// GormConnectorRepository implements connector.ConnectorRepository using GORM
type GormConnectorRepository struct {
	db *gorm.DB
}

// NewGormConnectorRepository creates a new GormConnectorRepository
func NewGormConnectorRepository(db *gorm.DB) *GormConnectorRepository {
	return &GormConnectorRepository{db: db}
}

var _ connector.ConnectorRepository = (*GormConnectorRepository)(nil)

// ---------------------------------------------------------------------------
// ConnectorReader implementation
// ---------------------------------------------------------------------------

// FindByID finds a connector by its ID
func (r *GormConnectorRepository) FindByID(ctx context.Context, id uuid.UUID) (*connector.Connector, error) {
	var model models.ConnectorModel
	if err := r.db.WithContext(ctx).First(&model, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, connector.ErrConnectorNotFound
		}
		return nil, err
	}
	return model.ToDomain(), nil
}

// FindAll returns every connector, oldest first
func (r *GormConnectorRepository) FindAll(ctx context.Context) ([]connector.Connector, error) {
	var connectorModels []models.ConnectorModel
	if err := r.db.WithContext(ctx).
		Order("created_at ASC").
		Find(&connectorModels).Error; err != nil {
		return nil, err
	}
	return toConnectors(connectorModels), nil
}

// FindByStatus returns the connectors in the given status, oldest first
func (r *GormConnectorRepository) FindByStatus(ctx context.Context, status connector.Status) ([]connector.Connector, error) {
	var connectorModels []models.ConnectorModel
	if err := r.db.WithContext(ctx).
		Where("status = ?", status).
		Order("created_at ASC").
		Find(&connectorModels).Error; err != nil {
		return nil, err
	}
	return toConnectors(connectorModels), nil
}

func toConnectors(connectorModels []models.ConnectorModel) []connector.Connector {
	connectors := make([]connector.Connector, len(connectorModels))
	for i, model := range connectorModels {
		connectors[i] = *model.ToDomain()
	}
	return connectors
}

// ---------------------------------------------------------------------------
// ConnectorWriter implementation
// ---------------------------------------------------------------------------

// Create inserts the connector, its credential and its sync config in one transaction
func (r *GormConnectorRepository) Create(ctx context.Context, c *connector.Connector, cred *connector.Credential, cfg *connector.SyncConfig) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(models.ConnectorModelFromDomain(c)).Error; err != nil {
			return err
		}
		if err := tx.Create(models.CredentialModelFromDomain(cred)).Error; err != nil {
			return err
		}
		return tx.Create(models.SyncConfigModelFromDomain(cfg)).Error
	})
}

// Save updates every column of an existing connector
func (r *GormConnectorRepository) Save(ctx context.Context, c *connector.Connector) error {
	model := models.ConnectorModelFromDomain(c)
	result := r.db.WithContext(ctx).
		Model(&models.ConnectorModel{}).
		Where("id = ?", c.ID).
		Select("source_type", "name", "base_url", "status", "last_test_at", "updated_at").
		Updates(model)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return connector.ErrConnectorNotFound
	}
	return nil
}

// ---------------------------------------------------------------------------
// GormCredentialRepository
// ---------------------------------------------------------------------------

// GormCredentialRepository implements connector.CredentialRepository using GORM
type GormCredentialRepository struct {
	db *gorm.DB
}

// NewGormCredentialRepository creates a new GormCredentialRepository
func NewGormCredentialRepository(db *gorm.DB) *GormCredentialRepository {
	return &GormCredentialRepository{db: db}
}

var _ connector.CredentialRepository = (*GormCredentialRepository)(nil)

// FindByConnectorID finds the credential of a connector
func (r *GormCredentialRepository) FindByConnectorID(ctx context.Context, connectorID uuid.UUID) (*connector.Credential, error) {
	var model models.CredentialModel
	if err := r.db.WithContext(ctx).First(&model, "connector_id = ?", connectorID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, connector.ErrCredentialNotFound
		}
		return nil, err
	}
	return model.ToDomain(), nil
}

// Save inserts or replaces the credential of a connector
func (r *GormCredentialRepository) Save(ctx context.Context, cred *connector.Credential) error {
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "connector_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"key_ciphertext", "secret_ciphertext", "updated_at"}),
	}).Create(models.CredentialModelFromDomain(cred)).Error
}

// ---------------------------------------------------------------------------
// GormSyncConfigRepository
// ---------------------------------------------------------------------------

// GormSyncConfigRepository implements connector.SyncConfigRepository using GORM
type GormSyncConfigRepository struct {
	db *gorm.DB
}

// NewGormSyncConfigRepository creates a new GormSyncConfigRepository
func NewGormSyncConfigRepository(db *gorm.DB) *GormSyncConfigRepository {
	return &GormSyncConfigRepository{db: db}
}

var _ connector.SyncConfigRepository = (*GormSyncConfigRepository)(nil)

// FindByConnectorID finds the sync config of a connector
func (r *GormSyncConfigRepository) FindByConnectorID(ctx context.Context, connectorID uuid.UUID) (*connector.SyncConfig, error) {
	var model models.SyncConfigModel
	if err := r.db.WithContext(ctx).First(&model, "connector_id = ?", connectorID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, connector.ErrSyncConfigNotFound
		}
		return nil, err
	}
	return model.ToDomain(), nil
}

// FindByConnectorIDs loads the configs of several connectors in one query.
// Connectors without a config are absent from the map.
func (r *GormSyncConfigRepository) FindByConnectorIDs(ctx context.Context, connectorIDs []uuid.UUID) (map[uuid.UUID]*connector.SyncConfig, error) {
	configs := make(map[uuid.UUID]*connector.SyncConfig, len(connectorIDs))
	if len(connectorIDs) == 0 {
		return configs, nil
	}

	var configModels []models.SyncConfigModel
	if err := r.db.WithContext(ctx).
		Where("connector_id IN ?", connectorIDs).
		Find(&configModels).Error; err != nil {
		return nil, err
	}
	for i := range configModels {
		configs[configModels[i].ConnectorID] = configModels[i].ToDomain()
	}
	return configs, nil
}

// Save inserts or replaces the sync config of a connector
func (r *GormSyncConfigRepository) Save(ctx context.Context, cfg *connector.SyncConfig) error {
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "connector_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"sync_products", "sync_orders", "mapping_rules", "updated_at"}),
	}).Create(models.SyncConfigModelFromDomain(cfg)).Error
}

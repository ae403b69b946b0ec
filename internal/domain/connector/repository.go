package connector

import (
	"context"

	"github.com/google/uuid"
)

// ConnectorReader defines read operations for connectors
type ConnectorReader interface {
	// FindByID returns ErrConnectorNotFound when absent
	FindByID(ctx context.Context, id uuid.UUID) (*Connector, error)
	FindAll(ctx context.Context) ([]Connector, error)
	FindByStatus(ctx context.Context, status Status) ([]Connector, error)
}

// ConnectorWriter defines write operations for connectors
type ConnectorWriter interface {
	// Create persists a new connector with its credential and sync config atomically
	Create(ctx context.Context, c *Connector, cred *Credential, cfg *SyncConfig) error
	Save(ctx context.Context, c *Connector) error
}

// ConnectorRepository combines connector reads and writes
type ConnectorRepository interface {
	ConnectorReader
	ConnectorWriter
}

// CredentialRepository stores encrypted credentials
type CredentialRepository interface {
	// FindByConnectorID returns ErrCredentialNotFound when absent
	FindByConnectorID(ctx context.Context, connectorID uuid.UUID) (*Credential, error)
	Save(ctx context.Context, cred *Credential) error
}

// SyncConfigRepository stores per-connector sync configuration
type SyncConfigRepository interface {
	// FindByConnectorID returns ErrSyncConfigNotFound when absent
	FindByConnectorID(ctx context.Context, connectorID uuid.UUID) (*SyncConfig, error)
	FindByConnectorIDs(ctx context.Context, connectorIDs []uuid.UUID) (map[uuid.UUID]*SyncConfig, error)
	Save(ctx context.Context, cfg *SyncConfig) error
}

// SyncRunRepository stores run history
type SyncRunRepository interface {
	Create(ctx context.Context, run *SyncRun) error
	Update(ctx context.Context, run *SyncRun) error
	// FindByConnectorID returns runs newest first
	FindByConnectorID(ctx context.Context, connectorID uuid.UUID, limit int) ([]SyncRun, error)
	FindLatestByConnectorIDs(ctx context.Context, connectorIDs []uuid.UUID) (map[uuid.UUID]*SyncRun, error)
}

// ExternalRecordRepository stores staged external records
type ExternalRecordRepository interface {
	// Upsert inserts or overwrites the record keyed by (ConnectorID, EntityType, ExternalID)
	Upsert(ctx context.Context, record *ExternalRecord) error
	FindByKey(ctx context.Context, connectorID uuid.UUID, entity EntityType, externalID string) (*ExternalRecord, error)
	CountByStatus(ctx context.Context, connectorID uuid.UUID, entity EntityType) (map[RecordStatus]int64, error)
}

// ExternalReferenceRepository reads the external→internal crosswalk
type ExternalReferenceRepository interface {
	// FindInternalID returns nil when there is no reference
	FindInternalID(ctx context.Context, source SourceType, entity EntityType, externalID string) (*uuid.UUID, error)
}

// UserLookupRepository resolves internal users for order enrichment
type UserLookupRepository interface {
	// FindIDByEmail returns nil when no user has the email
	FindIDByEmail(ctx context.Context, email string) (*uuid.UUID, error)
}

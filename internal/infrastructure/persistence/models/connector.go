// Package models holds the GORM rows of the connector schema and their
// mappers to domain entities. Domain types carry no ORM tags.
package models

import (
	"encoding/json"
	"time"

	"github.com/aurum/backend/internal/domain/connector"
	"github.com/google/uuid"
)

// ---------------------------------------------------------------------------
// ConnectorModel
// ---------------------------------------------------------------------------

// ConnectorModel is the persistence model for the Connector entity.
type ConnectorModel struct {
	ID         uuid.UUID            `gorm:"type:uuid;primary_key"`
	SourceType connector.SourceType `gorm:"type:varchar(32);not null"`
	Name       string               `gorm:"type:varchar(100);not null"`
	BaseURL    string               `gorm:"type:varchar(500);not null"`
	Status     connector.Status     `gorm:"type:varchar(16);not null;index"`
	LastTestAt *time.Time
	CreatedAt  time.Time `gorm:"not null"`
	UpdatedAt  time.Time `gorm:"not null"`
}

// TableName returns the table name for GORM
func (ConnectorModel) TableName() string {
	return "connectors"
}

// ToDomain converts the persistence model to a domain Connector
func (m *ConnectorModel) ToDomain() *connector.Connector {
	return &connector.Connector{
		ID:         m.ID,
		SourceType: m.SourceType,
		Name:       m.Name,
		BaseURL:    m.BaseURL,
		Status:     m.Status,
		LastTestAt: m.LastTestAt,
		CreatedAt:  m.CreatedAt,
		UpdatedAt:  m.UpdatedAt,
	}
}

// ConnectorModelFromDomain creates a persistence model from a domain Connector
func ConnectorModelFromDomain(c *connector.Connector) *ConnectorModel {
	return &ConnectorModel{
		ID:         c.ID,
		SourceType: c.SourceType,
		Name:       c.Name,
		BaseURL:    c.BaseURL,
		Status:     c.Status,
		LastTestAt: c.LastTestAt,
		CreatedAt:  c.CreatedAt,
		UpdatedAt:  c.UpdatedAt,
	}
}

// ---------------------------------------------------------------------------
// CredentialModel
// ---------------------------------------------------------------------------

// CredentialModel stores the encrypted key pair of a connector. Only ciphertext is persisted.
type CredentialModel struct {
	ConnectorID      uuid.UUID `gorm:"type:uuid;primary_key"`
	KeyCiphertext    string    `gorm:"type:text;not null"`
	SecretCiphertext string    `gorm:"type:text;not null"`
	UpdatedAt        time.Time `gorm:"not null"`
}

// TableName returns the table name for GORM
func (CredentialModel) TableName() string {
	return "connector_credentials"
}

// ToDomain converts the persistence model to a domain Credential
func (m *CredentialModel) ToDomain() *connector.Credential {
	return &connector.Credential{
		ConnectorID:      m.ConnectorID,
		KeyCiphertext:    m.KeyCiphertext,
		SecretCiphertext: m.SecretCiphertext,
		UpdatedAt:        m.UpdatedAt,
	}
}

// CredentialModelFromDomain creates a persistence model from a domain Credential
func CredentialModelFromDomain(c *connector.Credential) *CredentialModel {
	return &CredentialModel{
		ConnectorID:      c.ConnectorID,
		KeyCiphertext:    c.KeyCiphertext,
		SecretCiphertext: c.SecretCiphertext,
		UpdatedAt:        c.UpdatedAt,
	}
}

// ---------------------------------------------------------------------------
// SyncConfigModel
// ---------------------------------------------------------------------------

// SyncConfigModel is the persistence model for SyncConfig
type SyncConfigModel struct {
	ConnectorID  uuid.UUID `gorm:"type:uuid;primary_key"`
	SyncProducts bool      `gorm:"not null"`
	SyncOrders   bool      `gorm:"not null"`
	// MappingRules is the raw rules document; NULL means built-in defaults
	MappingRules *string   `gorm:"type:text"`
	UpdatedAt    time.Time `gorm:"not null"`
}

// TableName returns the table name for GORM
func (SyncConfigModel) TableName() string {
	return "connector_sync_configs"
}

// ToDomain converts the persistence model to a domain SyncConfig
func (m *SyncConfigModel) ToDomain() *connector.SyncConfig {
	cfg := &connector.SyncConfig{
		ConnectorID:  m.ConnectorID,
		SyncProducts: m.SyncProducts,
		SyncOrders:   m.SyncOrders,
		UpdatedAt:    m.UpdatedAt,
	}
	if m.MappingRules != nil {
		cfg.MappingRules = *m.MappingRules
	}
	return cfg
}

// SyncConfigModelFromDomain creates a persistence model from a domain SyncConfig
func SyncConfigModelFromDomain(c *connector.SyncConfig) *SyncConfigModel {
	m := &SyncConfigModel{
		ConnectorID:  c.ConnectorID,
		SyncProducts: c.SyncProducts,
		SyncOrders:   c.SyncOrders,
		UpdatedAt:    c.UpdatedAt,
	}
	if c.HasCustomRules() {
		rules := c.MappingRules
		m.MappingRules = &rules
	}
	return m
}

// ---------------------------------------------------------------------------
// SyncRunModel
// ---------------------------------------------------------------------------

// SyncRunModel is the persistence model for SyncRun
type SyncRunModel struct {
	ID          uuid.UUID           `gorm:"type:uuid;primary_key"`
	ConnectorID uuid.UUID           `gorm:"type:uuid;not null;index:idx_sync_runs_connector_started,priority:1"`
	Status      connector.RunStatus `gorm:"type:varchar(16);not null"`
	StartedAt   time.Time           `gorm:"not null;index:idx_sync_runs_connector_started,priority:2"`
	FinishedAt  *time.Time
	StatsJSON   string `gorm:"type:jsonb;column:stats;not null"`
	Error       string `gorm:"type:text"`
}

// TableName returns the table name for GORM
func (SyncRunModel) TableName() string {
	return "connector_sync_runs"
}

// ToDomain converts the persistence model to a domain SyncRun
func (m *SyncRunModel) ToDomain() *connector.SyncRun {
	run := &connector.SyncRun{
		ID:          m.ID,
		ConnectorID: m.ConnectorID,
		Status:      m.Status,
		StartedAt:   m.StartedAt,
		FinishedAt:  m.FinishedAt,
		Stats:       connector.RunStats{},
		Error:       m.Error,
	}
	if m.StatsJSON != "" {
		var stats connector.RunStats
		if err := json.Unmarshal([]byte(m.StatsJSON), &stats); err == nil && stats != nil {
			run.Stats = stats
		}
	}
	return run
}

// SyncRunModelFromDomain creates a persistence model from a domain SyncRun
func SyncRunModelFromDomain(r *connector.SyncRun) *SyncRunModel {
	m := &SyncRunModel{
		ID:          r.ID,
		ConnectorID: r.ConnectorID,
		Status:      r.Status,
		StartedAt:   r.StartedAt,
		FinishedAt:  r.FinishedAt,
		StatsJSON:   "{}",
		Error:       r.Error,
	}
	if len(r.Stats) > 0 {
		if data, err := json.Marshal(r.Stats); err == nil {
			m.StatsJSON = string(data)
		}
	}
	return m
}

// ---------------------------------------------------------------------------
// ExternalRecordModel
// ---------------------------------------------------------------------------

// ExternalRecordModel stages one mapped external item.
// (connector_id, entity_type, external_id) is unique so re-syncs overwrite in place.
type ExternalRecordModel struct {
	ID            uuid.UUID              `gorm:"type:uuid;primary_key"`
	ConnectorID   uuid.UUID              `gorm:"type:uuid;not null;uniqueIndex:uq_external_records_key,priority:1"`
	EntityType    connector.EntityType   `gorm:"type:varchar(16);not null;uniqueIndex:uq_external_records_key,priority:2"`
	ExternalID    string                 `gorm:"type:varchar(128);not null;uniqueIndex:uq_external_records_key,priority:3"`
	RawPayload    string                 `gorm:"type:jsonb;not null"`
	MappedPayload string                 `gorm:"type:jsonb;not null"`
	Status        connector.RecordStatus `gorm:"type:varchar(16);not null;index"`
	SyncRunID     *uuid.UUID             `gorm:"type:uuid;index"`
	UpdatedAt     time.Time              `gorm:"not null"`
}

// TableName returns the table name for GORM
func (ExternalRecordModel) TableName() string {
	return "external_records"
}

// ToDomain converts the persistence model to a domain ExternalRecord
func (m *ExternalRecordModel) ToDomain() *connector.ExternalRecord {
	return &connector.ExternalRecord{
		ID:            m.ID,
		ConnectorID:   m.ConnectorID,
		EntityType:    m.EntityType,
		ExternalID:    m.ExternalID,
		RawPayload:    decodePayload(m.RawPayload),
		MappedPayload: decodePayload(m.MappedPayload),
		Status:        m.Status,
		SyncRunID:     m.SyncRunID,
		UpdatedAt:     m.UpdatedAt,
	}
}

// ExternalRecordModelFromDomain creates a persistence model from a domain ExternalRecord
func ExternalRecordModelFromDomain(r *connector.ExternalRecord) (*ExternalRecordModel, error) {
	raw, err := encodePayload(r.RawPayload)
	if err != nil {
		return nil, err
	}
	mapped, err := encodePayload(r.MappedPayload)
	if err != nil {
		return nil, err
	}
	return &ExternalRecordModel{
		ID:            r.ID,
		ConnectorID:   r.ConnectorID,
		EntityType:    r.EntityType,
		ExternalID:    r.ExternalID,
		RawPayload:    raw,
		MappedPayload: mapped,
		Status:        r.Status,
		SyncRunID:     r.SyncRunID,
		UpdatedAt:     r.UpdatedAt,
	}, nil
}

func encodePayload(payload map[string]any) (string, error) {
	if payload == nil {
		return "{}", nil
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func decodePayload(data string) map[string]any {
	payload := map[string]any{}
	if data == "" {
		return payload
	}
	_ = json.Unmarshal([]byte(data), &payload)
	return payload
}

// ---------------------------------------------------------------------------
// Read-only projections
// ---------------------------------------------------------------------------

// ExternalReferenceModel is the external to internal id crosswalk
type ExternalReferenceModel struct {
	Source     connector.SourceType `gorm:"type:varchar(32);primary_key"`
	EntityType connector.EntityType `gorm:"type:varchar(16);primary_key"`
	ExternalID string               `gorm:"type:varchar(128);primary_key"`
	InternalID uuid.UUID            `gorm:"type:uuid;not null"`
}

// TableName returns the table name for GORM
func (ExternalReferenceModel) TableName() string {
	return "external_references"
}

// UserEmailModel is the projection of the users table used for email lookup
type UserEmailModel struct {
	ID    uuid.UUID `gorm:"type:uuid;primary_key"`
	Email string    `gorm:"type:varchar(255);not null;uniqueIndex"`
}

// TableName returns the table name for GORM
func (UserEmailModel) TableName() string {
	return "users"
}

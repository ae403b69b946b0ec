package connector

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// RecordStatus is the mapping outcome of a staged external record
type RecordStatus string

const (
	RecordStatusPending RecordStatus = "pending"
	RecordStatusMapped  RecordStatus = "mapped"
	RecordStatusFailed  RecordStatus = "failed"
)

// IsValid returns true if the status is known
func (s RecordStatus) IsValid() bool {
	switch s {
	case RecordStatusPending, RecordStatusMapped, RecordStatusFailed:
		return true
	default:
		return false
	}
}

// String returns the string representation of RecordStatus
func (s RecordStatus) String() string {
	return string(s)
}

// MappingErrorsField is the mapped payload key carrying per-record errors
const MappingErrorsField = "errors"

// ExternalRecord is the staged outcome of mapping one external item.
// Identity is (ConnectorID, EntityType, ExternalID); re-syncs overwrite in place.
type ExternalRecord struct {
	ID            uuid.UUID
	ConnectorID   uuid.UUID
	EntityType    EntityType
	ExternalID    string
	RawPayload    map[string]any
	MappedPayload map[string]any
	Status        RecordStatus
	SyncRunID     *uuid.UUID
	UpdatedAt     time.Time
}

// NewExternalRecord builds a staged record from a mapping result.
// A record with errors is failed and carries the errors inside its mapped payload.
func NewExternalRecord(
	connectorID uuid.UUID,
	entity EntityType,
	externalID string,
	raw RawRecord,
	result MappingResult,
	runID *uuid.UUID,
) *ExternalRecord {
	status := RecordStatusMapped
	mapped := result.Payload
	if mapped == nil {
		mapped = map[string]any{}
	}
	if len(result.Errors) > 0 {
		status = RecordStatusFailed
		errs := make([]string, len(result.Errors))
		copy(errs, result.Errors)
		mapped[MappingErrorsField] = errs
	}

	return &ExternalRecord{
		ID:            uuid.New(),
		ConnectorID:   connectorID,
		EntityType:    entity,
		ExternalID:    externalID,
		RawPayload:    raw,
		MappedPayload: mapped,
		Status:        status,
		SyncRunID:     runID,
		UpdatedAt:     time.Now(),
	}
}

// ExternalReference is a crosswalk entry from an external entity id to an internal id.
// It is populated elsewhere and only read by this context.
type ExternalReference struct {
	Source     SourceType
	EntityType EntityType
	ExternalID string
	InternalID uuid.UUID
}

// ExternalIDField is the raw payload key holding the platform's stable id
const ExternalIDField = "id"

// ExternalIDFrom renders an identifier value as text. Nil, blank and
// composite values are not identifiers.
func ExternalIDFrom(value any) (string, bool) {
	switch value.(type) {
	case nil, map[string]any, []any:
		return "", false
	}
	id := strings.TrimSpace(stringify(value))
	return id, id != ""
}

package connector

import (
	"errors"

	"github.com/aurum/backend/internal/domain/shared"
)

// ---------------------------------------------------------------------------
// Lookup errors
// ---------------------------------------------------------------------------

var (
	ErrConnectorNotFound  = shared.NewDomainError("NOT_FOUND", "connector: connector not found")
	ErrCredentialNotFound = shared.NewDomainError("NOT_FOUND", "connector: credential not found")
	ErrSyncConfigNotFound = shared.NewDomainError("NOT_FOUND", "connector: sync config not found")
)

// ---------------------------------------------------------------------------
// Validation errors
// ---------------------------------------------------------------------------

var (
	ErrInvalidSourceType   = shared.NewDomainError("INVALID_INPUT", "connector: invalid source type")
	ErrInvalidBaseURL      = shared.NewDomainError("INVALID_INPUT", "connector: base URL must be an absolute http(s) URL")
	ErrInvalidConnectorID  = shared.NewDomainError("INVALID_INPUT", "connector: invalid connector ID")
	ErrMissingCredentials  = shared.NewDomainError("INVALID_INPUT", "connector: consumer key and secret are required")
	ErrInvalidMappingRules = shared.NewDomainError("INVALID_INPUT", "connector: invalid mapping rules document")
	ErrInvalidEntityType   = shared.NewDomainError("INVALID_INPUT", "connector: invalid entity type")
)

// ---------------------------------------------------------------------------
// State errors
// ---------------------------------------------------------------------------

var (
	ErrRunAlreadyFinished = shared.NewDomainError("INVALID_STATE", "connector: sync run already finished")
	ErrConnectorDisabled  = shared.NewDomainError("INVALID_STATE", "connector: connector is disabled")
)

// ---------------------------------------------------------------------------
// Infrastructure errors
// ---------------------------------------------------------------------------

var (
	ErrUnsupportedSource       = errors.New("connector: no client factory registered for source type")
	ErrExternalRequestFailed   = errors.New("connector: external request failed")
	ErrExternalInvalidResponse = errors.New("connector: invalid external response")
	ErrExternalUnavailable     = errors.New("connector: external platform unavailable")
	ErrCredentialDecrypt       = errors.New("connector: credential decryption failed")
)

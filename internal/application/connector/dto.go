package connector

import (
	"time"

	"github.com/aurum/backend/internal/domain/connector"
	"github.com/google/uuid"
)

const (
	// DefaultPerPage is the page size used when a sync request leaves it unset
	DefaultPerPage = 50
	// MaxPerPage is the largest page size the WooCommerce API accepts
	MaxPerPage = 100
	// DefaultRunHistoryLimit bounds ListSyncRuns when no limit is given
	DefaultRunHistoryLimit = 20
)

// CreateConnectorRequest represents a request to register a new connector
type CreateConnectorRequest struct {
	SourceType     string `json:"source_type" binding:"required,oneof=woocommerce"`
	Name           string `json:"name" binding:"max=100"`
	BaseURL        string `json:"base_url" binding:"required,url,max=500"`
	ConsumerKey    string `json:"consumer_key" binding:"required,max=200"`
	ConsumerSecret string `json:"consumer_secret" binding:"required,max=200"`
	SyncProducts   bool   `json:"sync_products"`
	SyncOrders     bool   `json:"sync_orders"`
}

// UpdateConnectorRequest merges into an existing connector. Nil fields are left as-is.
type UpdateConnectorRequest struct {
	Name           *string `json:"name" binding:"omitempty,max=100"`
	BaseURL        *string `json:"base_url" binding:"omitempty,url,max=500"`
	ConsumerKey    *string `json:"consumer_key" binding:"omitempty,max=200"`
	ConsumerSecret *string `json:"consumer_secret" binding:"omitempty,max=200"`
	SyncProducts   *bool   `json:"sync_products"`
	SyncOrders     *bool   `json:"sync_orders"`
}

// UpdateMappingRulesRequest replaces the custom mapping rule document.
// An empty document restores the built-in rules.
type UpdateMappingRulesRequest struct {
	Rules string `json:"rules"`
}

// SyncRequest selects what a sync run pulls. The connector's sync config is a
// ceiling: a flag set here cannot enable an entity type the config disables.
type SyncRequest struct {
	SyncProducts  bool       `json:"sync_products"`
	SyncOrders    bool       `json:"sync_orders"`
	ModifiedAfter *time.Time `json:"modified_after"`
	PerPage       int        `json:"per_page" binding:"omitempty,min=1,max=100"`
}

// FullSyncRequest requests every entity type the connector allows
func FullSyncRequest() SyncRequest {
	return SyncRequest{SyncProducts: true, SyncOrders: true}
}

func (r SyncRequest) pageSize() int {
	switch {
	case r.PerPage <= 0:
		return DefaultPerPage
	case r.PerPage > MaxPerPage:
		return MaxPerPage
	default:
		return r.PerPage
	}
}

// SyncOutcome is the result of a finished run
type SyncOutcome struct {
	RunID  uuid.UUID           `json:"run_id"`
	Status connector.RunStatus `json:"status"`
	Stats  connector.RunStats  `json:"stats"`
}

// TestResult reports a connection test. Failures are values, not errors.
type TestResult struct {
	Success  bool      `json:"success"`
	Message  string    `json:"message"`
	TestedAt time.Time `json:"tested_at"`
}

// SyncRunResponse represents a sync run in API responses
type SyncRunResponse struct {
	ID          uuid.UUID          `json:"id"`
	ConnectorID uuid.UUID          `json:"connector_id"`
	Status      string             `json:"status"`
	StartedAt   time.Time          `json:"started_at"`
	FinishedAt  *time.Time         `json:"finished_at,omitempty"`
	Stats       connector.RunStats `json:"stats"`
	Error       string             `json:"error,omitempty"`
}

// ConnectorSummary represents a connector in API responses. It never carries credentials.
type ConnectorSummary struct {
	ID             uuid.UUID        `json:"id"`
	SourceType     string           `json:"source_type"`
	Name           string           `json:"name"`
	BaseURL        string           `json:"base_url"`
	Status         string           `json:"status"`
	LastTestAt     *time.Time       `json:"last_test_at,omitempty"`
	SyncProducts   bool             `json:"sync_products"`
	SyncOrders     bool             `json:"sync_orders"`
	HasCustomRules bool             `json:"has_custom_rules"`
	LastRun        *SyncRunResponse `json:"last_run,omitempty"`
	CreatedAt      time.Time        `json:"created_at"`
	UpdatedAt      time.Time        `json:"updated_at"`
}

// ToSyncRunResponse converts a domain SyncRun to a response
func ToSyncRunResponse(run *connector.SyncRun) SyncRunResponse {
	stats := run.Stats
	if stats == nil {
		stats = connector.RunStats{}
	}
	return SyncRunResponse{
		ID:          run.ID,
		ConnectorID: run.ConnectorID,
		Status:      run.Status.String(),
		StartedAt:   run.StartedAt,
		FinishedAt:  run.FinishedAt,
		Stats:       stats,
		Error:       run.Error,
	}
}

// ToConnectorSummary composes a summary from a connector, its config and its latest run.
// cfg and lastRun may be nil.
func ToConnectorSummary(c *connector.Connector, cfg *connector.SyncConfig, lastRun *connector.SyncRun) ConnectorSummary {
	summary := ConnectorSummary{
		ID:         c.ID,
		SourceType: c.SourceType.String(),
		Name:       c.Name,
		BaseURL:    c.BaseURL,
		Status:     c.Status.String(),
		LastTestAt: c.LastTestAt,
		CreatedAt:  c.CreatedAt,
		UpdatedAt:  c.UpdatedAt,
	}
	if cfg != nil {
		summary.SyncProducts = cfg.SyncProducts
		summary.SyncOrders = cfg.SyncOrders
		summary.HasCustomRules = cfg.HasCustomRules()
	}
	if lastRun != nil {
		run := ToSyncRunResponse(lastRun)
		summary.LastRun = &run
	}
	return summary
}

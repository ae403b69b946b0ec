package handler

import (
	"errors"
	"io"
	"time"

	connectorapp "github.com/aurum/backend/internal/application/connector"
	"github.com/aurum/backend/internal/infrastructure/logger"
	"github.com/aurum/backend/internal/infrastructure/scheduler"
	"github.com/aurum/backend/internal/interfaces/http/dto"
	"github.com/aurum/backend/internal/interfaces/http/router"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// SyncQueue hands syncs to the background scheduler
type SyncQueue interface {
	ScheduleSync(connectorID uuid.UUID, req connectorapp.SyncRequest) (*scheduler.SyncJob, error)
	GetJobHistoryByConnector(connectorID uuid.UUID, limit int) []*scheduler.SyncJob
}

var (
	_ SyncQueue        = (*scheduler.SyncScheduler)(nil)
	_ router.Registrar = (*ConnectorHandler)(nil)
	_ router.Registrar = (*HealthHandler)(nil)
)

// ConnectorHandler serves the connector management API
type ConnectorHandler struct {
	BaseHandler
	service connectorapp.ConnectorService
	queue   SyncQueue
}

// ConnectorHandlerOption configures a ConnectorHandler
type ConnectorHandlerOption func(*ConnectorHandler)

// WithSyncQueue enables ?async=true on the sync endpoint and the jobs endpoint
func WithSyncQueue(queue SyncQueue) ConnectorHandlerOption {
	return func(h *ConnectorHandler) {
		h.queue = queue
	}
}

// NewConnectorHandler creates a new ConnectorHandler
func NewConnectorHandler(service connectorapp.ConnectorService, opts ...ConnectorHandlerOption) *ConnectorHandler {
	h := &ConnectorHandler{service: service}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// RegisterRoutes mounts the connector routes under /connectors
func (h *ConnectorHandler) RegisterRoutes(rg *gin.RouterGroup) {
	g := rg.Group("/connectors")
	g.GET("", h.List)
	g.POST("", h.Create)
	g.GET("/:id", h.Get)
	g.PUT("/:id", h.Update)
	g.PUT("/:id/mapping-rules", h.UpdateMappingRules)
	g.POST("/:id/disable", h.Disable)
	g.POST("/:id/test", h.Test)
	g.POST("/:id/sync", h.Sync)
	g.GET("/:id/runs", h.ListRuns)
	g.GET("/:id/jobs", h.ListJobs)
}

// SyncResultResponse is returned for a sync that ran inline
type SyncResultResponse struct {
	RunID  uuid.UUID `json:"run_id"`
	Status string    `json:"status"`
}

// SyncJobResponse represents a scheduler job in API responses
type SyncJobResponse struct {
	ID          uuid.UUID  `json:"id"`
	ConnectorID uuid.UUID  `json:"connector_id"`
	Status      string     `json:"status"`
	Error       string     `json:"error,omitempty"`
	RetryCount  int        `json:"retry_count"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	RunID       *uuid.UUID `json:"run_id,omitempty"`
	RunStatus   string     `json:"run_status,omitempty"`
}

func toSyncJobResponse(job *scheduler.SyncJob) SyncJobResponse {
	return SyncJobResponse{
		ID:          job.ID,
		ConnectorID: job.ConnectorID,
		Status:      string(job.Status),
		Error:       job.Error,
		RetryCount:  job.RetryCount,
		StartedAt:   job.StartedAt,
		CompletedAt: job.CompletedAt,
		RunID:       job.RunID,
		RunStatus:   string(job.RunStatus),
	}
}

// connectorLogger returns the request logger tagged with the connector id
func connectorLogger(c *gin.Context, id uuid.UUID) *zap.Logger {
	ctx := c.Request.Context()
	_, log := logger.WithConnectorID(ctx, logger.FromContext(ctx), id.String())
	return log
}

// List returns every connector with its latest run
func (h *ConnectorHandler) List(c *gin.Context) {
	summaries, err := h.service.ListConnectors(c.Request.Context())
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.SuccessList(c, summaries, len(summaries), 0)
}

// Get returns one connector
func (h *ConnectorHandler) Get(c *gin.Context) {
	id, ok := h.ParseConnectorID(c)
	if !ok {
		return
	}
	summary, err := h.service.GetConnector(c.Request.Context(), id)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, summary)
}

// Create registers a connector. The response never echoes credentials.
func (h *ConnectorHandler) Create(c *gin.Context) {
	var req connectorapp.CreateConnectorRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.BindError(c, err)
		return
	}

	summary, err := h.service.CreateConnector(c.Request.Context(), req)
	if err != nil {
		h.HandleError(c, err)
		return
	}

	connectorLogger(c, summary.ID).Info("Connector created",
		zap.String("source_type", summary.SourceType))
	h.Created(c, summary)
}

// Update merges connection settings and flags into a connector
func (h *ConnectorHandler) Update(c *gin.Context) {
	id, ok := h.ParseConnectorID(c)
	if !ok {
		return
	}
	var req connectorapp.UpdateConnectorRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.BindError(c, err)
		return
	}

	summary, err := h.service.UpdateConnector(c.Request.Context(), id, req)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, summary)
}

// UpdateMappingRules replaces the connector's custom mapping rules
func (h *ConnectorHandler) UpdateMappingRules(c *gin.Context) {
	id, ok := h.ParseConnectorID(c)
	if !ok {
		return
	}
	var req connectorapp.UpdateMappingRulesRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.BindError(c, err)
		return
	}

	summary, err := h.service.UpdateMappingRules(c.Request.Context(), id, req)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, summary)
}

// Disable soft-disables a connector
func (h *ConnectorHandler) Disable(c *gin.Context) {
	id, ok := h.ParseConnectorID(c)
	if !ok {
		return
	}
	summary, err := h.service.DisableConnector(c.Request.Context(), id)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	connectorLogger(c, id).Info("Connector disabled")
	h.Success(c, summary)
}

// Test probes the external platform. A failed probe is still a 200 with success=false.
func (h *ConnectorHandler) Test(c *gin.Context) {
	id, ok := h.ParseConnectorID(c)
	if !ok {
		return
	}
	result, err := h.service.TestConnector(c.Request.Context(), id)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, result)
}

// Sync runs a sync inline, or queues it when ?async=true.
// An empty body requests a full sync.
func (h *ConnectorHandler) Sync(c *gin.Context) {
	id, ok := h.ParseConnectorID(c)
	if !ok {
		return
	}

	var query dto.SyncQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		h.BindError(c, err)
		return
	}

	var req connectorapp.SyncRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		if !errors.Is(err, io.EOF) {
			h.BindError(c, err)
			return
		}
		req = connectorapp.FullSyncRequest()
	}

	log := connectorLogger(c, id)

	if query.Async {
		if h.queue == nil {
			h.ServiceUnavailable(c, "Background sync is not enabled")
			return
		}
		job, err := h.queue.ScheduleSync(id, req)
		if err != nil {
			h.HandleError(c, err)
			return
		}
		log.Info("Sync queued", zap.String("job_id", job.ID.String()))
		h.Accepted(c, SyncJobResponse{
			ID:          job.ID,
			ConnectorID: job.ConnectorID,
			Status:      string(scheduler.SyncJobStatusPending),
		})
		return
	}

	outcome, err := h.service.SyncConnector(c.Request.Context(), id, req)
	if err != nil {
		log.Warn("Sync failed", zap.Error(err))
		h.HandleError(c, err)
		return
	}
	h.Success(c, SyncResultResponse{RunID: outcome.RunID, Status: outcome.Status.String()})
}

// ListRuns returns the connector's run history, newest first
func (h *ConnectorHandler) ListRuns(c *gin.Context) {
	id, ok := h.ParseConnectorID(c)
	if !ok {
		return
	}
	var query dto.RunsQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		h.BindError(c, err)
		return
	}
	limit := query.Limit
	if limit == 0 {
		limit = connectorapp.DefaultRunHistoryLimit
	}

	runs, err := h.service.ListSyncRuns(c.Request.Context(), id, limit)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.SuccessList(c, runs, len(runs), limit)
}

// ListJobs returns finished scheduler jobs for the connector
func (h *ConnectorHandler) ListJobs(c *gin.Context) {
	id, ok := h.ParseConnectorID(c)
	if !ok {
		return
	}
	if h.queue == nil {
		h.SuccessList(c, []SyncJobResponse{}, 0, 0)
		return
	}
	var query dto.RunsQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		h.BindError(c, err)
		return
	}

	jobs := h.queue.GetJobHistoryByConnector(id, query.Limit)
	resp := make([]SyncJobResponse, len(jobs))
	for i, job := range jobs {
		resp[i] = toSyncJobResponse(job)
	}
	h.SuccessList(c, resp, len(resp), query.Limit)
}

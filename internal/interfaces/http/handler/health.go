package handler

import (
	"context"
	"net/http"
	"runtime"
	"time"

	"github.com/aurum/backend/internal/interfaces/http/dto"
	"github.com/gin-gonic/gin"
)

// Pinger is satisfied by *sql.DB and *persistence.Database
type Pinger interface {
	PingContext(ctx context.Context) error
}

// SchedulerState reports whether background syncs are running
type SchedulerState interface {
	IsRunning() bool
}

// HealthHandler serves liveness and build information
type HealthHandler struct {
	BaseHandler
	db          Pinger
	scheduler   SchedulerState
	version     string
	startTime   time.Time
	pingTimeout time.Duration
}

// NewHealthHandler creates a new HealthHandler. scheduler may be nil.
func NewHealthHandler(db Pinger, scheduler SchedulerState, version string) *HealthHandler {
	return &HealthHandler{
		db:          db,
		scheduler:   scheduler,
		version:     version,
		startTime:   time.Now(),
		pingTimeout: 2 * time.Second,
	}
}

// HealthResponse is the body of GET /health
type HealthResponse struct {
	Status    string `json:"status"`
	Database  string `json:"database"`
	Scheduler string `json:"scheduler"`
	Timestamp string `json:"timestamp"`
}

// SystemInfoResponse represents the system information response
type SystemInfoResponse struct {
	Name      string `json:"name"`
	Version   string `json:"version"`
	GoVersion string `json:"go_version"`
	Uptime    string `json:"uptime"`
}

// RegisterRoutes mounts /system/info
func (h *HealthHandler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("/system/info", h.Info)
}

// Health pings the database. It answers 503 when the ping fails.
func (h *HealthHandler) Health(c *gin.Context) {
	resp := HealthResponse{
		Status:    "ok",
		Database:  "up",
		Scheduler: "disabled",
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}
	if h.scheduler != nil {
		resp.Scheduler = "stopped"
		if h.scheduler.IsRunning() {
			resp.Scheduler = "running"
		}
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), h.pingTimeout)
	defer cancel()
	if err := h.db.PingContext(ctx); err != nil {
		resp.Status = "degraded"
		resp.Database = "down"
		c.JSON(http.StatusServiceUnavailable, dto.Response{Success: false, Data: resp})
		return
	}

	h.Success(c, resp)
}

// Info returns the build version and uptime
func (h *HealthHandler) Info(c *gin.Context) {
	h.Success(c, SystemInfoResponse{
		Name:      "Aurum Connector API",
		Version:   h.version,
		GoVersion: runtime.Version(),
		Uptime:    time.Since(h.startTime).Round(time.Second).String(),
	})
}

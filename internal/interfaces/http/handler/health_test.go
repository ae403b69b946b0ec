package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubPinger struct {
	err error
}

func (p stubPinger) PingContext(context.Context) error {
	return p.err
}

type stubScheduler bool

func (s stubScheduler) IsRunning() bool {
	return bool(s)
}

func serveHealth(h *HealthHandler) *httptest.ResponseRecorder {
	r := gin.New()
	r.GET("/health", h.Health)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	return w
}

func TestHealthHandler_Health(t *testing.T) {
	t.Run("database up", func(t *testing.T) {
		w := serveHealth(NewHealthHandler(stubPinger{}, stubScheduler(true), "1.2.0"))

		require.Equal(t, http.StatusOK, w.Code)
		var resp APIResponse[HealthResponse]
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.True(t, resp.Success)
		assert.Equal(t, "ok", resp.Data.Status)
		assert.Equal(t, "up", resp.Data.Database)
		assert.Equal(t, "running", resp.Data.Scheduler)
	})

	t.Run("database down", func(t *testing.T) {
		w := serveHealth(NewHealthHandler(stubPinger{err: errors.New("dial tcp: refused")}, nil, "1.2.0"))

		require.Equal(t, http.StatusServiceUnavailable, w.Code)
		var resp APIResponse[HealthResponse]
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.False(t, resp.Success)
		assert.Equal(t, "down", resp.Data.Database)
		assert.Equal(t, "disabled", resp.Data.Scheduler)
		assert.NotContains(t, w.Body.String(), "refused")
	})

	t.Run("scheduler stopped", func(t *testing.T) {
		w := serveHealth(NewHealthHandler(stubPinger{}, stubScheduler(false), "1.2.0"))

		var resp APIResponse[HealthResponse]
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.Equal(t, "stopped", resp.Data.Scheduler)
	})
}

func TestHealthHandler_Info(t *testing.T) {
	h := NewHealthHandler(stubPinger{}, nil, "1.2.0")
	r := gin.New()
	h.RegisterRoutes(r.Group("/api/v1"))

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/system/info", nil))

	require.Equal(t, http.StatusOK, w.Code)
	var resp APIResponse[SystemInfoResponse]
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "Aurum Connector API", resp.Data.Name)
	assert.Equal(t, "1.2.0", resp.Data.Version)
	assert.NotEmpty(t, resp.Data.GoVersion)
}

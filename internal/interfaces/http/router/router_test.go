package router

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type registrarFunc func(rg *gin.RouterGroup)

func (f registrarFunc) RegisterRoutes(rg *gin.RouterGroup) { f(rg) }

func get(engine *gin.Engine, method, path string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	engine.ServeHTTP(w, httptest.NewRequest(method, path, nil))
	return w
}

func TestRouter_Mount(t *testing.T) {
	engine := gin.New()
	engine.GET("/health", func(c *gin.Context) { c.Status(http.StatusOK) })

	connectors := registrarFunc(func(rg *gin.RouterGroup) {
		g := rg.Group("/connectors")
		g.GET("", func(c *gin.Context) { c.String(http.StatusOK, "list") })
		g.POST("/:id/sync", func(c *gin.Context) { c.String(http.StatusAccepted, "sync "+c.Param("id")) })
	})
	system := registrarFunc(func(rg *gin.RouterGroup) {
		rg.GET("/system/info", func(c *gin.Context) { c.Status(http.StatusOK) })
	})

	api := New(engine, WithMiddleware(func(c *gin.Context) {
		c.Header("X-API", "1")
		c.Next()
	})).Mount(connectors, system)
	assert.Equal(t, "/api/v1", api.BasePath())

	w := get(engine, http.MethodGet, "/api/v1/connectors")
	assert.Equal(t, "list", w.Body.String())
	assert.Equal(t, "1", w.Header().Get("X-API"))

	w = get(engine, http.MethodPost, "/api/v1/connectors/7/sync")
	assert.Equal(t, http.StatusAccepted, w.Code)
	assert.Equal(t, "sync 7", w.Body.String())

	assert.Equal(t, http.StatusOK, get(engine, http.MethodGet, "/api/v1/system/info").Code)

	w = get(engine, http.MethodGet, "/health")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, w.Header().Get("X-API"), "API middleware stays off non-API routes")

	assert.Equal(t, http.StatusNotFound, get(engine, http.MethodGet, "/connectors").Code)
}

func TestRouter_Version(t *testing.T) {
	engine := gin.New()
	api := New(engine, WithVersion("v2")).Mount()
	assert.Equal(t, "/api/v2", api.BasePath())
}

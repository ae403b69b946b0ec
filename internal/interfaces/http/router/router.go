// Package router mounts handler route sets under the versioned API prefix.
package router

import (
	"github.com/gin-gonic/gin"
)

// Registrar is a handler that owns a set of routes.
type Registrar interface {
	RegisterRoutes(rg *gin.RouterGroup)
}

// Router mounts registrars under /api/<version>.
type Router struct {
	engine  *gin.Engine
	version string
	use     []gin.HandlerFunc
}

type Option func(*Router)

// WithVersion replaces the default "v1" prefix segment.
func WithVersion(version string) Option {
	return func(r *Router) { r.version = version }
}

// WithMiddleware adds handlers that run for API routes only, leaving
// /health and /metrics untouched.
func WithMiddleware(mw ...gin.HandlerFunc) Option {
	return func(r *Router) { r.use = append(r.use, mw...) }
}

func New(engine *gin.Engine, opts ...Option) *Router {
	r := &Router{engine: engine, version: "v1"}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Mount registers every registrar on the API group and returns the group.
func (r *Router) Mount(registrars ...Registrar) *gin.RouterGroup {
	api := r.engine.Group("/api/"+r.version, r.use...)
	for _, reg := range registrars {
		reg.RegisterRoutes(api)
	}
	return api
}

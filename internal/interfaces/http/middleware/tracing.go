// Package middleware provides gin middleware for the connector management API.
package middleware

import (
	"net/http"

	"github.com/aurum/backend/internal/infrastructure/telemetry"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// MaxRequestIDLength caps request ids copied from headers into spans and logs.
const MaxRequestIDLength = 128

const spanAttrRequestID = "request_id"

// Tracing starts a server span per request, named after the route template
// ("POST /api/v1/connectors/:id/sync"). Disabled, it only calls the next handler.
func Tracing(serviceName string, enabled bool) gin.HandlerFunc {
	if !enabled {
		return func(c *gin.Context) { c.Next() }
	}
	return otelgin.Middleware(serviceName)
}

// SpanEnricher tags the request span with the request id and a well-formed
// connector id, and marks it failed for 4xx and 5xx responses. It must run
// after Tracing and RequestID.
func SpanEnricher() gin.HandlerFunc {
	return func(c *gin.Context) {
		span := trace.SpanFromContext(c.Request.Context())
		if !span.IsRecording() {
			c.Next()
			return
		}

		if id := getRequestID(c); id != "" {
			telemetry.SetAttribute(span, spanAttrRequestID, id)
		}
		if id := c.Param("id"); id != "" {
			if _, err := uuid.Parse(id); err == nil {
				telemetry.SetAttribute(span, telemetry.SpanAttrConnectorID, id)
			}
		}

		c.Next()

		status := c.Writer.Status()
		if status >= http.StatusBadRequest {
			span.SetStatus(codes.Error, statusDescription(status))
			telemetry.SetAttribute(span, string(telemetry.AttrHTTPStatusCode), status)
		}
	}
}

func statusDescription(status int) string {
	switch {
	case status == http.StatusBadGateway:
		return "External Platform Error"
	case status >= http.StatusInternalServerError:
		return "Internal Server Error"
	case status == http.StatusNotFound:
		return "Not Found"
	case status == http.StatusTooManyRequests:
		return "Rate Limited"
	default:
		return "Client Error"
	}
}

// getRequestID returns the id RequestID stored, else the inbound header cut
// to MaxRequestIDLength.
func getRequestID(c *gin.Context) string {
	if id := c.GetString(RequestIDContextKey); id != "" {
		return id
	}
	id := c.GetHeader(RequestIDHeader)
	if len(id) > MaxRequestIDLength {
		id = id[:MaxRequestIDLength]
	}
	return id
}

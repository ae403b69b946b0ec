package handler

import (
	"errors"
	"fmt"
	"net/http"

	connectorapp "github.com/aurum/backend/internal/application/connector"
	"github.com/aurum/backend/internal/domain/connector"
	"github.com/aurum/backend/internal/domain/shared"
	"github.com/aurum/backend/internal/infrastructure/scheduler"
	"github.com/aurum/backend/internal/interfaces/http/dto"
	"github.com/aurum/backend/internal/interfaces/http/middleware"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// BaseHandler provides common handler utilities
type BaseHandler struct{}

// getRequestID returns the id set by the RequestID middleware, else the inbound header
func getRequestID(c *gin.Context) string {
	if id := c.GetString(middleware.RequestIDContextKey); id != "" {
		return id
	}
	return c.GetHeader(middleware.RequestIDHeader)
}

// Success sends a success response
func (h *BaseHandler) Success(c *gin.Context, data any) {
	c.JSON(http.StatusOK, dto.NewSuccessResponse(data))
}

// SuccessList sends a bounded list with its size and limit
func (h *BaseHandler) SuccessList(c *gin.Context, data any, total, limit int) {
	c.JSON(http.StatusOK, dto.NewListResponse(data, int64(total), limit))
}

// Created sends a 201 created response
func (h *BaseHandler) Created(c *gin.Context, data any) {
	c.JSON(http.StatusCreated, dto.NewSuccessResponse(data))
}

// Accepted sends a 202 accepted response
func (h *BaseHandler) Accepted(c *gin.Context, data any) {
	c.JSON(http.StatusAccepted, dto.NewSuccessResponse(data))
}

// Error sends an error response with the given status code
func (h *BaseHandler) Error(c *gin.Context, statusCode int, code, message string) {
	c.JSON(statusCode, dto.NewErrorResponseWithRequestID(code, message, getRequestID(c)))
}

// BadRequest sends a 400 bad request response
func (h *BaseHandler) BadRequest(c *gin.Context, message string) {
	h.Error(c, http.StatusBadRequest, dto.ErrCodeBadRequest, message)
}

// NotFound sends a 404 not found response
func (h *BaseHandler) NotFound(c *gin.Context, message string) {
	h.Error(c, http.StatusNotFound, dto.ErrCodeNotFound, message)
}

// InternalError sends a 500 internal server error response
func (h *BaseHandler) InternalError(c *gin.Context, message string) {
	h.Error(c, http.StatusInternalServerError, dto.ErrCodeInternal, message)
}

// ServiceUnavailable sends a 503 response
func (h *BaseHandler) ServiceUnavailable(c *gin.Context, message string) {
	h.Error(c, http.StatusServiceUnavailable, dto.ErrCodeUnavailable, message)
}

// BindError answers a failed ShouldBind call: field errors get a detailed
// 400, malformed bodies a plain one.
func (h *BaseHandler) BindError(c *gin.Context, err error) {
	if middleware.IsValidationError(err) {
		middleware.HandleValidationError(c, err)
		return
	}
	h.Error(c, http.StatusBadRequest, dto.ErrCodeInvalidJSON, "Malformed request body")
}

// ParseConnectorID binds and parses the :id path parameter.
// It writes the 400 response itself and returns false on failure.
func (h *BaseHandler) ParseConnectorID(c *gin.Context) (uuid.UUID, bool) {
	var req dto.IDRequest
	if err := c.ShouldBindUri(&req); err != nil {
		h.BindError(c, err)
		return uuid.Nil, false
	}
	id, err := uuid.Parse(req.ID)
	if err != nil {
		h.BadRequest(c, "Invalid connector ID")
		return uuid.Nil, false
	}
	return id, true
}

// HandleError maps service and infrastructure errors to HTTP responses.
// Unknown errors become a 500 without leaking their text.
func (h *BaseHandler) HandleError(c *gin.Context, err error) {
	if err == nil {
		return
	}

	if middleware.IsValidationError(err) {
		middleware.HandleValidationError(c, err)
		return
	}

	runID, recorded := connectorapp.IsRunFailure(err)

	var domainErr *shared.DomainError
	if errors.As(err, &domainErr) {
		code := dto.NormalizeErrorCode(domainErr.Code)
		message := domainErr.Message
		if recorded {
			message = fmt.Sprintf("Sync run %s failed: %s", runID, message)
		}
		h.Error(c, dto.GetHTTPStatus(code), code, message)
		return
	}

	switch {
	case errors.Is(err, connector.ErrExternalRequestFailed),
		errors.Is(err, connector.ErrExternalInvalidResponse),
		errors.Is(err, connector.ErrExternalUnavailable):
		message := "External platform request failed"
		if recorded {
			message = fmt.Sprintf("Sync run %s failed: external platform request failed", runID)
		}
		h.Error(c, http.StatusBadGateway, dto.ErrCodeExternal, message)
	case errors.Is(err, connector.ErrUnsupportedSource):
		h.Error(c, http.StatusBadRequest, dto.ErrCodeInvalidInput, "Unsupported source type")
	case errors.Is(err, scheduler.ErrSyncAlreadyQueued):
		h.Error(c, http.StatusConflict, dto.ErrCodeSyncQueued, "A sync is already queued for this connector")
	case errors.Is(err, scheduler.ErrJobQueueFull):
		h.Error(c, http.StatusServiceUnavailable, dto.ErrCodeQueueFull, "Sync queue is full")
	case errors.Is(err, scheduler.ErrSchedulerNotRunning):
		h.ServiceUnavailable(c, "Sync scheduler is not running")
	case recorded:
		h.InternalError(c, fmt.Sprintf("Sync run %s failed", runID))
	default:
		h.InternalError(c, "An unexpected error occurred")
	}
}

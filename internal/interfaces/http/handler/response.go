package handler

import "github.com/aurum/backend/internal/interfaces/http/dto"

// APIResponse is the typed shape of dto.Response for client code and tests
type APIResponse[T any] struct {
	Success bool           `json:"success"`
	Data    T              `json:"data,omitempty"`
	Error   *dto.ErrorInfo `json:"error,omitempty"`
	Meta    *dto.Meta      `json:"meta,omitempty"`
}

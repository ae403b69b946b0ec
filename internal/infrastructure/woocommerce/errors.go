package woocommerce

import (
	"fmt"
	"net/http"

	"github.com/aurum/backend/internal/domain/connector"
)

const maxErrorBodyInMessage = 512

// APIError is a non-2xx response from the store
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	body := e.Body
	if len(body) > maxErrorBodyInMessage {
		body = body[:maxErrorBodyInMessage] + "..."
	}
	return fmt.Sprintf("woocommerce: %d %s: %s", e.StatusCode, http.StatusText(e.StatusCode), body)
}

// Unwrap lets callers match connector.ErrExternalRequestFailed
func (e *APIError) Unwrap() error {
	return connector.ErrExternalRequestFailed
}

// IsAuthError reports whether the store rejected the credentials
func (e *APIError) IsAuthError() bool {
	return e.StatusCode == http.StatusUnauthorized || e.StatusCode == http.StatusForbidden
}

// serverSide reports whether the status points at the store rather than the request
func (e *APIError) serverSide() bool {
	return e.StatusCode >= http.StatusInternalServerError || e.StatusCode == http.StatusTooManyRequests
}

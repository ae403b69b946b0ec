package connector

import (
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
)

// ---------------------------------------------------------------------------
// SourceType
// ---------------------------------------------------------------------------

// SourceType identifies the kind of external platform a connector talks to
type SourceType string

const (
	// SourceTypeWooCommerce represents a WooCommerce store (WordPress REST API)
	SourceTypeWooCommerce SourceType = "woocommerce"
)

// IsValid returns true if the source type is known
func (s SourceType) IsValid() bool {
	switch s {
	case SourceTypeWooCommerce:
		return true
	default:
		return false
	}
}

// String returns the string representation of SourceType
func (s SourceType) String() string {
	return string(s)
}

// DisplayName returns a human-readable name for the source type
func (s SourceType) DisplayName() string {
	switch s {
	case SourceTypeWooCommerce:
		return "WooCommerce"
	default:
		return string(s)
	}
}

// ---------------------------------------------------------------------------
// Status
// ---------------------------------------------------------------------------

// Status is the operational state of a connector
type Status string

const (
	StatusActive   Status = "active"
	StatusDisabled Status = "disabled"
	StatusError    Status = "error"
)

// IsValid returns true if the status is known
func (s Status) IsValid() bool {
	switch s {
	case StatusActive, StatusDisabled, StatusError:
		return true
	default:
		return false
	}
}

// String returns the string representation of Status
func (s Status) String() string {
	return string(s)
}

// ---------------------------------------------------------------------------
// Connector Entity
// ---------------------------------------------------------------------------

// Connector is a configured link to one external platform instance.
// Connectors are never physically deleted; they are disabled instead.
type Connector struct {
	ID         uuid.UUID
	SourceType SourceType
	Name       string
	BaseURL    string
	Status     Status
	// LastTestAt is the time of the last successful connectivity test
	LastTestAt *time.Time
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// NewConnector creates an active connector after validating its source and URL
func NewConnector(sourceType SourceType, name, baseURL string) (*Connector, error) {
	if !sourceType.IsValid() {
		return nil, ErrInvalidSourceType
	}
	normalized, err := NormalizeBaseURL(baseURL)
	if err != nil {
		return nil, err
	}
	name = strings.TrimSpace(name)
	if name == "" {
		name = sourceType.DisplayName()
	}

	now := time.Now()
	return &Connector{
		ID:         uuid.New(),
		SourceType: sourceType,
		Name:       name,
		BaseURL:    normalized,
		Status:     StatusActive,
		CreatedAt:  now,
		UpdatedAt:  now,
	}, nil
}

// UpdateBaseURL replaces the base URL
func (c *Connector) UpdateBaseURL(baseURL string) error {
	normalized, err := NormalizeBaseURL(baseURL)
	if err != nil {
		return err
	}
	c.BaseURL = normalized
	c.UpdatedAt = time.Now()
	return nil
}

// Rename changes the display name; blank names are ignored
func (c *Connector) Rename(name string) {
	name = strings.TrimSpace(name)
	if name == "" {
		return
	}
	c.Name = name
	c.UpdatedAt = time.Now()
}

// MarkTested records a successful connectivity test and reactivates the connector
func (c *Connector) MarkTested(at time.Time) {
	c.Status = StatusActive
	c.LastTestAt = &at
	c.UpdatedAt = at
}

// Disable takes the connector out of scheduled synchronization
func (c *Connector) Disable() {
	c.Status = StatusDisabled
	c.UpdatedAt = time.Now()
}

// IsActive returns true if the connector participates in scheduled syncs
func (c *Connector) IsActive() bool {
	return c.Status == StatusActive
}

// NormalizeBaseURL validates that raw is an absolute http(s) URL and strips trailing slashes
func NormalizeBaseURL(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return "", ErrInvalidBaseURL
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", ErrInvalidBaseURL
	}
	return strings.TrimRight(raw, "/"), nil
}

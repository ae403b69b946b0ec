package connector

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// ---------------------------------------------------------------------------
// EntityType
// ---------------------------------------------------------------------------

// EntityType is the kind of external resource being synced
type EntityType string

const (
	EntityTypeProduct EntityType = "product"
	EntityTypeOrder   EntityType = "order"
)

// AllEntityTypes returns every entity type in sync order
func AllEntityTypes() []EntityType {
	return []EntityType{EntityTypeProduct, EntityTypeOrder}
}

// IsValid returns true if the entity type is known
func (e EntityType) IsValid() bool {
	return e == EntityTypeProduct || e == EntityTypeOrder
}

// String returns the string representation of EntityType
func (e EntityType) String() string {
	return string(e)
}

// ---------------------------------------------------------------------------
// SyncConfig Entity
// ---------------------------------------------------------------------------

// SyncConfig holds the per-connector entity flags and the optional custom
// mapping rules document. An empty MappingRules means built-in defaults.
type SyncConfig struct {
	ConnectorID  uuid.UUID
	SyncProducts bool
	SyncOrders   bool
	MappingRules string
	UpdatedAt    time.Time
}

// NewSyncConfig creates a sync config with no custom rules
func NewSyncConfig(connectorID uuid.UUID, syncProducts, syncOrders bool) *SyncConfig {
	return &SyncConfig{
		ConnectorID:  connectorID,
		SyncProducts: syncProducts,
		SyncOrders:   syncOrders,
		UpdatedAt:    time.Now(),
	}
}

// Enabled reports whether the config allows syncing the entity type
func (c *SyncConfig) Enabled(entity EntityType) bool {
	switch entity {
	case EntityTypeProduct:
		return c.SyncProducts
	case EntityTypeOrder:
		return c.SyncOrders
	default:
		return false
	}
}

// EffectiveEntities returns the entity types to sync for a request.
// The config is a ceiling: a request cannot enable what the config disables.
func (c *SyncConfig) EffectiveEntities(requestProducts, requestOrders bool) []EntityType {
	entities := make([]EntityType, 0, 2)
	if requestProducts && c.SyncProducts {
		entities = append(entities, EntityTypeProduct)
	}
	if requestOrders && c.SyncOrders {
		entities = append(entities, EntityTypeOrder)
	}
	return entities
}

// SetFlags updates the entity flags; nil leaves a flag unchanged
func (c *SyncConfig) SetFlags(syncProducts, syncOrders *bool) {
	if syncProducts != nil {
		c.SyncProducts = *syncProducts
	}
	if syncOrders != nil {
		c.SyncOrders = *syncOrders
	}
	c.UpdatedAt = time.Now()
}

// ReplaceMappingRules stores a validated rules document; blank clears it
func (c *SyncConfig) ReplaceMappingRules(doc string) error {
	doc = strings.TrimSpace(doc)
	if doc != "" {
		if _, err := ParseRuleSets(doc); err != nil {
			return err
		}
	}
	c.MappingRules = doc
	c.UpdatedAt = time.Now()
	return nil
}

// HasCustomRules reports whether a custom rules document is stored
func (c *SyncConfig) HasCustomRules() bool {
	return strings.TrimSpace(c.MappingRules) != ""
}

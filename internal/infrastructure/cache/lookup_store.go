// Package cache provides the read-through cache in front of the connector lookup resolver.
package cache

import (
	"context"
	"time"
)

// LookupStore is a string key/value store with per-entry expiry
type LookupStore interface {
	// Get returns the value and true on a hit
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string, ttl time.Duration) error
	Close() error
}

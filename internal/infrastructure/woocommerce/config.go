// Package woocommerce implements the external client for WooCommerce stores
// over the REST API v3.
package woocommerce

import "time"

const (
	// DefaultAPIPrefix is the REST namespace of WooCommerce API v3
	DefaultAPIPrefix = "/wp-json/wc/v3"

	// TotalPagesHeader carries the total page count of a list response
	TotalPagesHeader = "X-WP-TotalPages"

	// DefaultMaxResponseBytes caps a single response body
	DefaultMaxResponseBytes = 10 << 20
)

// Config holds WooCommerce client configuration
type Config struct {
	APIPrefix        string
	Timeout          time.Duration
	MaxResponseBytes int64
	UserAgent        string

	// RateLimit is the sustained requests per second per connector. Zero disables pacing.
	RateLimit float64
	RateBurst int

	Breaker BreakerConfig
}

// BreakerConfig configures the per-connector circuit breaker
type BreakerConfig struct {
	Enabled bool
	// MaxRequests is the number of probes allowed while half-open
	MaxRequests uint32
	// Interval resets the failure counts while closed
	Interval time.Duration
	// OpenTimeout is how long the breaker stays open before probing
	OpenTimeout time.Duration
	// ConsecutiveFailures trips the breaker
	ConsecutiveFailures uint32
}

// DefaultConfig returns the default client configuration
func DefaultConfig() Config {
	return Config{
		APIPrefix:        DefaultAPIPrefix,
		Timeout:          30 * time.Second,
		MaxResponseBytes: DefaultMaxResponseBytes,
		UserAgent:        "aurum-connector/1.0",
		Breaker: BreakerConfig{
			Enabled:             true,
			MaxRequests:         1,
			Interval:            time.Minute,
			OpenTimeout:         2 * time.Minute,
			ConsecutiveFailures: 5,
		},
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.APIPrefix == "" {
		c.APIPrefix = d.APIPrefix
	}
	if c.Timeout <= 0 {
		c.Timeout = d.Timeout
	}
	if c.MaxResponseBytes <= 0 {
		c.MaxResponseBytes = d.MaxResponseBytes
	}
	if c.UserAgent == "" {
		c.UserAgent = d.UserAgent
	}
	if c.RateLimit > 0 && c.RateBurst <= 0 {
		c.RateBurst = 1
	}
	if c.Breaker.MaxRequests == 0 {
		c.Breaker.MaxRequests = d.Breaker.MaxRequests
	}
	if c.Breaker.OpenTimeout <= 0 {
		c.Breaker.OpenTimeout = d.Breaker.OpenTimeout
	}
	if c.Breaker.ConsecutiveFailures == 0 {
		c.Breaker.ConsecutiveFailures = d.Breaker.ConsecutiveFailures
	}
	return c
}

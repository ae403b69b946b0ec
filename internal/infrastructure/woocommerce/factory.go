package woocommerce

import (
	"net/http"
	"sync"

	"github.com/aurum/backend/internal/domain/connector"
	"github.com/google/uuid"
	gobreaker "github.com/sony/gobreaker/v2"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// Factory builds WooCommerce clients. Clients of the same connector share a
// circuit breaker and a rate limiter so a failing store trips once for every
// caller.
type Factory struct {
	cfg       Config
	transport http.RoundTripper
	logger    *zap.Logger
	mu        sync.Mutex
	breakers  map[uuid.UUID]*gobreaker.CircuitBreaker[*response]
	limiters  map[uuid.UUID]*rate.Limiter
}

var _ connector.ClientFactory = (*Factory)(nil)

// NewFactory creates a new Factory
func NewFactory(cfg Config, logger *zap.Logger) *Factory {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Factory{
		cfg:      cfg.withDefaults(),
		logger:   logger,
		breakers: make(map[uuid.UUID]*gobreaker.CircuitBreaker[*response]),
		limiters: make(map[uuid.UUID]*rate.Limiter),
	}
}

// SetTransport overrides the HTTP transport of every client built afterwards
func (f *Factory) SetTransport(rt http.RoundTripper) {
	f.transport = rt
}

// SourceType returns woocommerce
func (f *Factory) SourceType() connector.SourceType {
	return connector.SourceTypeWooCommerce
}

// NewClient builds a client for one connector
func (f *Factory) NewClient(connectorID uuid.UUID, baseURL string, creds connector.ClientCredentials) (connector.ExternalClient, error) {
	client, err := NewClient(baseURL, creds, f.cfg)
	if err != nil {
		return nil, err
	}
	if f.transport != nil {
		client.httpClient.Transport = f.transport
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	if f.cfg.Breaker.Enabled {
		client.breaker = f.breakerFor(connectorID)
	}
	if f.cfg.RateLimit > 0 {
		limiter, ok := f.limiters[connectorID]
		if !ok {
			limiter = rate.NewLimiter(rate.Limit(f.cfg.RateLimit), f.cfg.RateBurst)
			f.limiters[connectorID] = limiter
		}
		client.limiter = limiter
	}
	return client, nil
}

// breakerFor returns the connector's breaker. Caller holds f.mu.
func (f *Factory) breakerFor(connectorID uuid.UUID) *gobreaker.CircuitBreaker[*response] {
	if cb, ok := f.breakers[connectorID]; ok {
		return cb
	}

	settings := f.cfg.Breaker
	cb := gobreaker.NewCircuitBreaker[*response](gobreaker.Settings{
		Name:        "woocommerce-" + connectorID.String(),
		MaxRequests: settings.MaxRequests,
		Interval:    settings.Interval,
		Timeout:     settings.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= settings.ConsecutiveFailures
		},
		IsSuccessful: breakerSuccess,
		OnStateChange: func(name string, from, to gobreaker.State) {
			f.logger.Warn("woocommerce circuit breaker state changed",
				zap.String("breaker", name),
				zap.String("connector_id", connectorID.String()),
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)
		},
	})
	f.breakers[connectorID] = cb
	return cb
}

// BreakerState returns the breaker state of a connector, or closed when none exists yet
func (f *Factory) BreakerState(connectorID uuid.UUID) gobreaker.State {
	f.mu.Lock()
	defer f.mu.Unlock()
	if cb, ok := f.breakers[connectorID]; ok {
		return cb.State()
	}
	return gobreaker.StateClosed
}

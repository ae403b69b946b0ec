package cache

import (
	"context"
	"strings"
	"time"

	"github.com/aurum/backend/internal/domain/connector"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// DefaultLookupTTL is used when the resolver is built with a zero TTL
const DefaultLookupTTL = 10 * time.Minute

// CachedLookupResolver is a read-through cache in front of a LookupResolver.
// Only hits are cached: a miss may become a hit once the user or product is created.
// Cache failures degrade to the wrapped resolver.
type CachedLookupResolver struct {
	next   connector.LookupResolver
	store  LookupStore
	ttl    time.Duration
	logger *zap.Logger
}

var _ connector.LookupResolver = (*CachedLookupResolver)(nil)

// NewCachedLookupResolver wraps next with store
func NewCachedLookupResolver(next connector.LookupResolver, store LookupStore, ttl time.Duration, logger *zap.Logger) *CachedLookupResolver {
	if ttl <= 0 {
		ttl = DefaultLookupTTL
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CachedLookupResolver{next: next, store: store, ttl: ttl, logger: logger}
}

// ResolveUserIDByEmail resolves through the cache keyed by the normalized email
func (r *CachedLookupResolver) ResolveUserIDByEmail(ctx context.Context, email string) (*uuid.UUID, error) {
	normalized := strings.ToLower(strings.TrimSpace(email))
	if normalized == "" {
		return r.next.ResolveUserIDByEmail(ctx, email)
	}
	return r.resolve(ctx, "user:"+normalized, func() (*uuid.UUID, error) {
		return r.next.ResolveUserIDByEmail(ctx, email)
	})
}

// ResolveProductIDByExternalID resolves through the cache keyed by source and external id
func (r *CachedLookupResolver) ResolveProductIDByExternalID(ctx context.Context, source connector.SourceType, externalID string) (*uuid.UUID, error) {
	trimmed := strings.TrimSpace(externalID)
	if trimmed == "" {
		return r.next.ResolveProductIDByExternalID(ctx, source, externalID)
	}
	return r.resolve(ctx, "product:"+source.String()+":"+trimmed, func() (*uuid.UUID, error) {
		return r.next.ResolveProductIDByExternalID(ctx, source, externalID)
	})
}

func (r *CachedLookupResolver) resolve(ctx context.Context, key string, load func() (*uuid.UUID, error)) (*uuid.UUID, error) {
	cached, hit, err := r.store.Get(ctx, key)
	if err != nil {
		r.logger.Warn("lookup cache read failed", zap.Error(err))
	}
	if hit {
		if id, parseErr := uuid.Parse(cached); parseErr == nil {
			return &id, nil
		}
		r.logger.Warn("discarding malformed lookup cache entry")
	}

	id, err := load()
	if err != nil || id == nil {
		return id, err
	}

	if err := r.store.Set(ctx, key, id.String(), r.ttl); err != nil {
		r.logger.Warn("lookup cache write failed", zap.Error(err))
	}
	return id, nil
}

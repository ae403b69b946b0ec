package cache

import (
	"fmt"

	"github.com/aurum/backend/internal/infrastructure/config"
	"go.uber.org/zap"
)

// LookupStoreFactory creates lookup stores based on configuration
type LookupStoreFactory struct {
	redisConfig           config.RedisConfig
	logger                *zap.Logger
	allowInMemoryFallback bool
}

// LookupStoreFactoryOption is a functional option for configuring the factory
type LookupStoreFactoryOption func(*LookupStoreFactory)

// WithLogger sets the logger for the factory
func WithLogger(logger *zap.Logger) LookupStoreFactoryOption {
	return func(f *LookupStoreFactory) {
		f.logger = logger
	}
}

// WithInMemoryFallback controls whether to fall back to an in-memory store when Redis is unavailable.
// Default is true.
func WithInMemoryFallback(allow bool) LookupStoreFactoryOption {
	return func(f *LookupStoreFactory) {
		f.allowInMemoryFallback = allow
	}
}

// NewLookupStoreFactory creates a new factory
func NewLookupStoreFactory(cfg config.RedisConfig, opts ...LookupStoreFactoryOption) *LookupStoreFactory {
	f := &LookupStoreFactory{
		redisConfig:           cfg,
		logger:                zap.NewNop(),
		allowInMemoryFallback: true,
	}

	for _, opt := range opts {
		opt(f)
	}

	return f
}

// CreateRedisStore creates a Redis-backed lookup store
func (f *LookupStoreFactory) CreateRedisStore() (LookupStore, error) {
	store, err := NewRedisLookupStore(RedisConfig{
		Addr:     f.redisConfig.Addr(),
		Password: f.redisConfig.Password,
		DB:       f.redisConfig.DB,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Redis lookup store: %w", err)
	}
	return store, nil
}

// CreateStore tries Redis first and falls back to memory when allowed
func (f *LookupStoreFactory) CreateStore() (LookupStore, error) {
	store, err := f.CreateRedisStore()
	if err == nil {
		f.logger.Info("using Redis lookup cache", zap.String("addr", f.redisConfig.Addr()))
		return store, nil
	}

	if !f.allowInMemoryFallback {
		return nil, fmt.Errorf("Redis required for lookup cache but unavailable: %w", err)
	}

	f.logger.Warn("Redis unavailable, falling back to in-memory lookup cache", zap.Error(err))
	return NewInMemoryLookupStore(), nil
}

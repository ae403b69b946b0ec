package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const defaultLookupKeyPrefix = "connector:lookup:"

// RedisLookupStore implements LookupStore using Redis so resolved ids are
// shared by every instance running syncs
type RedisLookupStore struct {
	client    *redis.Client
	keyPrefix string
}

// RedisConfig holds Redis connection configuration
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// NewRedisLookupStore connects to Redis and verifies the connection
func NewRedisLookupStore(cfg RedisConfig) (*RedisLookupStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return &RedisLookupStore{
		client:    client,
		keyPrefix: defaultLookupKeyPrefix,
	}, nil
}

// NewRedisLookupStoreWithClient creates a store with an existing Redis client
func NewRedisLookupStoreWithClient(client *redis.Client, keyPrefix string) *RedisLookupStore {
	if keyPrefix == "" {
		keyPrefix = defaultLookupKeyPrefix
	}
	return &RedisLookupStore{
		client:    client,
		keyPrefix: keyPrefix,
	}
}

// Get reads a cached value
func (s *RedisLookupStore) Get(ctx context.Context, key string) (string, bool, error) {
	value, err := s.client.Get(ctx, s.keyPrefix+key).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("failed to read lookup cache: %w", err)
	}
	return value, true, nil
}

// Set writes a value with a TTL
func (s *RedisLookupStore) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	if err := s.client.Set(ctx, s.keyPrefix+key, value, ttl).Err(); err != nil {
		return fmt.Errorf("failed to write lookup cache: %w", err)
	}
	return nil
}

// Close closes the Redis client
func (s *RedisLookupStore) Close() error {
	return s.client.Close()
}

var _ LookupStore = (*RedisLookupStore)(nil)

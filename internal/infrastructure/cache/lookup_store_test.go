package cache

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/aurum/backend/internal/infrastructure/config"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func TestInMemoryLookupStore(t *testing.T) {
	store := NewInMemoryLookupStore()
	defer store.Close()
	ctx := context.Background()

	t.Run("miss on unknown key", func(t *testing.T) {
		_, hit, err := store.Get(ctx, "nope")
		require.NoError(t, err)
		assert.False(t, hit)
	})

	t.Run("hit until expiry", func(t *testing.T) {
		require.NoError(t, store.Set(ctx, "k", "v", 20*time.Millisecond))

		value, hit, err := store.Get(ctx, "k")
		require.NoError(t, err)
		assert.True(t, hit)
		assert.Equal(t, "v", value)

		time.Sleep(30 * time.Millisecond)
		_, hit, err = store.Get(ctx, "k")
		require.NoError(t, err)
		assert.False(t, hit)

		store.cleanup()
		assert.Equal(t, 0, store.Size())
	})

	t.Run("close is idempotent", func(t *testing.T) {
		s := NewInMemoryLookupStore()
		assert.NoError(t, s.Close())
		assert.NoError(t, s.Close())
	})
}

func TestRedisLookupStore_Unreachable(t *testing.T) {
	client := redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 50 * time.Millisecond,
		MaxRetries:  -1,
	})
	store := NewRedisLookupStoreWithClient(client, "")
	defer store.Close()
	ctx := context.Background()

	_, hit, err := store.Get(ctx, "user:a@b.c")
	assert.Error(t, err)
	assert.False(t, hit)
	assert.Error(t, store.Set(ctx, "user:a@b.c", "x", time.Minute))
}

func TestLookupStoreFactory(t *testing.T) {
	unreachable := config.RedisConfig{Host: "127.0.0.1", Port: 1}

	t.Run("falls back to memory", func(t *testing.T) {
		factory := NewLookupStoreFactory(unreachable, WithLogger(zaptest.NewLogger(t)))
		store, err := factory.CreateStore()
		require.NoError(t, err)
		defer store.Close()
		assert.IsType(t, &InMemoryLookupStore{}, store)
	})

	t.Run("fails without fallback", func(t *testing.T) {
		factory := NewLookupStoreFactory(unreachable, WithInMemoryFallback(false))
		_, err := factory.CreateStore()
		assert.Error(t, err)
	})
}

func TestRedisLookupStore_Integration(t *testing.T) {
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" || testing.Short() {
		t.Skip("set REDIS_ADDR to run Redis integration tests")
	}

	store, err := NewRedisLookupStore(RedisConfig{Addr: addr})
	require.NoError(t, err)
	defer store.Close()
	ctx := context.Background()

	key := "test:" + time.Now().Format(time.RFC3339Nano)
	_, hit, err := store.Get(ctx, key)
	require.NoError(t, err)
	assert.False(t, hit)

	require.NoError(t, store.Set(ctx, key, "value", time.Minute))
	value, hit, err := store.Get(ctx, key)
	require.NoError(t, err)
	assert.True(t, hit)
	assert.Equal(t, "value", value)
}

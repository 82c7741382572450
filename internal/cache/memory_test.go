package cache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryCache_SetAndGet(t *testing.T) {
	cache := NewMemoryCache()
	ctx := context.Background()

	value := []byte("payload")
	require.NoError(t, cache.Set(ctx, "key", value, 0))
	value[0] = 'X'

	retrieved, err := cache.Get(ctx, "key")
	require.NoError(t, err)
	assert.Equal(t, []byte("payload"), retrieved)
}

func TestMemoryCache_Expiration(t *testing.T) {
	cache := NewMemoryCache()
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	cache.now = func() time.Time { return now }
	ctx := context.Background()

	require.NoError(t, cache.Set(ctx, "short", []byte("v"), time.Minute))
	require.NoError(t, cache.Set(ctx, "forever", []byte("v"), 0))

	now = now.Add(2 * time.Minute)

	_, err := cache.Get(ctx, "short")
	assert.True(t, IsCacheMiss(err))

	exists, err := cache.Exists(ctx, "forever")
	require.NoError(t, err)
	assert.True(t, exists)
}

func TestMemoryCache_ClearRespectsPrefix(t *testing.T) {
	shared := NewMemoryCacheWithConfig(Config{Prefix: "a:"})
	ctx := context.Background()

	require.NoError(t, shared.Set(ctx, "k", []byte("1"), 0))
	shared.data["b:k"] = cacheItem{value: []byte("2")}

	require.NoError(t, shared.Clear(ctx))

	_, err := shared.Get(ctx, "k")
	assert.True(t, IsCacheMiss(err))
	assert.Contains(t, shared.data, "b:k")
}

func TestMemoryCache_CanceledContext(t *testing.T) {
	cache := NewMemoryCache()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := cache.Get(ctx, "key")
	assert.ErrorIs(t, err, context.Canceled)
	assert.ErrorIs(t, cache.Set(ctx, "key", nil, 0), context.Canceled)
	assert.ErrorIs(t, cache.Delete(ctx, "key"), context.Canceled)
}

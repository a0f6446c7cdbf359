package catalog

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryCache_ExpiresAfterTTL(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2025, 3, 3, 8, 0, 0, 0, time.UTC)
	cache := NewMemoryCache(time.Hour)
	cache.now = func() time.Time { return now }

	cache.Set(ctx, "group:4", []byte(`[1]`))

	got, ok := cache.Get(ctx, "group:4")
	require.True(t, ok)
	assert.Equal(t, []byte(`[1]`), got)

	now = now.Add(59 * time.Minute)
	_, ok = cache.Get(ctx, "group:4")
	assert.True(t, ok)

	now = now.Add(time.Minute)
	_, ok = cache.Get(ctx, "group:4")
	assert.False(t, ok)
	assert.Equal(t, 0, cache.Len())
}

func TestMemoryCache_Flush(t *testing.T) {
	ctx := context.Background()
	cache := NewMemoryCache(time.Hour)
	cache.Set(ctx, "a", []byte("1"))
	cache.Set(ctx, "b", []byte("2"))

	require.NoError(t, cache.Flush(ctx))
	_, ok := cache.Get(ctx, "a")
	assert.False(t, ok)
}

func newRedisCache(t *testing.T, ttl time.Duration) (*RedisCache, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewRedisCacheFromClient(client, ttl, nil), mr
}

func TestRedisCache_SetGetAndTTL(t *testing.T) {
	ctx := context.Background()
	cache, mr := newRedisCache(t, 10*time.Minute)

	cache.Set(ctx, "origin:1", []byte(`{"id":1}`))

	got, ok := cache.Get(ctx, "origin:1")
	require.True(t, ok)
	assert.JSONEq(t, `{"id":1}`, string(got))
	assert.True(t, mr.Exists("catalog:origin:1"))

	mr.FastForward(11 * time.Minute)
	_, ok = cache.Get(ctx, "origin:1")
	assert.False(t, ok)
}

func TestRedisCache_FlushOnlyCatalogKeys(t *testing.T) {
	ctx := context.Background()
	cache, mr := newRedisCache(t, time.Hour)

	cache.Set(ctx, "group:1", []byte("[]"))
	cache.Set(ctx, "group:2", []byte("[]"))
	require.NoError(t, mr.Set("session:abc", "keep"))

	require.NoError(t, cache.Flush(ctx))

	assert.False(t, mr.Exists("catalog:group:1"))
	assert.False(t, mr.Exists("catalog:group:2"))
	assert.True(t, mr.Exists("session:abc"))
}

func TestRedisCache_UnavailableIsAMiss(t *testing.T) {
	ctx := context.Background()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	t.Cleanup(func() { _ = client.Close() })
	cache := NewRedisCacheFromClient(client, time.Hour, nil)
	mr.Close()

	cache.Set(ctx, "group:1", []byte("[]"))
	_, ok := cache.Get(ctx, "group:1")
	assert.False(t, ok)
}

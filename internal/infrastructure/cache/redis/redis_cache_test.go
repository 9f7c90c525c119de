package redis

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type cachedStats struct {
	AverageScore float64 `json:"average_score"`
	Count        int     `json:"count"`
}

func newTestCache(t *testing.T) (*RedisCache, *miniredis.Miniredis) {
	t.Helper()

	mr := miniredis.RunT(t)
	cache, err := NewRedisCache(Options{Addr: mr.Addr(), TTL: time.Minute, PoolSize: 2})
	require.NoError(t, err)
	t.Cleanup(func() { _ = cache.Close() })

	return cache, mr
}

func TestRedisCache_SetGet(t *testing.T) {
	cache, mr := newTestCache(t)
	ctx := context.Background()

	require.NoError(t, cache.Set(ctx, "stats:summary", cachedStats{AverageScore: 71.5, Count: 3}))

	var got cachedStats
	require.NoError(t, cache.Get(ctx, "stats:summary", &got))
	assert.Equal(t, cachedStats{AverageScore: 71.5, Count: 3}, got)

	mr.FastForward(2 * time.Minute)
	assert.ErrorIs(t, cache.Get(ctx, "stats:summary", &got), ErrCacheMiss)
}

func TestRedisCache_InvalidateNamespace(t *testing.T) {
	cache, mr := newTestCache(t)
	ctx := context.Background()

	require.NoError(t, cache.Set(ctx, "stats:summary", 1))
	require.NoError(t, cache.Set(ctx, "other", 3))
	for i := 0; i < invalidateBatch+5; i++ {
		require.NoError(t, cache.Set(ctx, fmt.Sprintf("report:%d:20", i), i))
	}

	require.NoError(t, cache.InvalidateNamespace(ctx, "report"))
	require.NoError(t, cache.InvalidateNamespace(ctx, "missing"))

	assert.True(t, mr.Exists("stats:summary"))
	assert.False(t, mr.Exists("report:0:20"))
	assert.False(t, mr.Exists(fmt.Sprintf("report:%d:20", invalidateBatch+4)))
	assert.True(t, mr.Exists("other"))

	require.NoError(t, cache.Delete(ctx, "other"))
	assert.False(t, mr.Exists("other"))
}

func TestRedisCache_KeyPrefix(t *testing.T) {
	mr := miniredis.RunT(t)
	cache, err := NewRedisCache(Options{Addr: mr.Addr(), TTL: time.Minute, KeyPrefix: "staging:"})
	require.NoError(t, err)
	t.Cleanup(func() { _ = cache.Close() })
	ctx := context.Background()

	require.NoError(t, cache.Set(ctx, "stats:summary", 5))
	assert.True(t, mr.Exists("staging:stats:summary"))

	var got int
	require.NoError(t, cache.Get(ctx, "stats:summary", &got))
	assert.Equal(t, 5, got)

	require.NoError(t, cache.InvalidateNamespace(ctx, "stats"))
	assert.False(t, mr.Exists("staging:stats:summary"))
}

func TestRedisCache_UndecodablePayloadIsDropped(t *testing.T) {
	cache, mr := newTestCache(t)
	require.NoError(t, mr.Set("report:30:10", "not-json"))

	var got cachedStats
	assert.Error(t, cache.Get(context.Background(), "report:30:10", &got))
	assert.False(t, mr.Exists("report:30:10"))
}

func TestNewRedisCache_Unreachable(t *testing.T) {
	mr := miniredis.RunT(t)
	addr := mr.Addr()
	mr.Close()

	_, err := NewRedisCache(Options{Addr: addr, DialTimeout: 100 * time.Millisecond})
	assert.Error(t, err)
}

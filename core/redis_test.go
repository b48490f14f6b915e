package core

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func newTestRedis(t *testing.T) (*miniredis.Miniredis, *RedisCache) {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err, "Failed to start miniredis")
	t.Cleanup(mr.Close)

	cache := NewRedisCache(mr.Addr(), "", 0, 10, zaptest.NewLogger(t).Sugar())
	t.Cleanup(func() { cache.Close() })
	return mr, cache
}

func TestRedisCache_SetExists(t *testing.T) {
	mr, cache := newTestRedis(t)
	ctx := context.Background()

	require.NoError(t, cache.Set(ctx, "k", map[string]int{"value": 42}, time.Minute))
	assert.Equal(t, `{"value":42}`, mustGet(t, mr, "k"))

	exists, err := cache.Exists(ctx, "k")
	require.NoError(t, err)
	assert.True(t, exists)

	mr.FastForward(61 * time.Second)
	exists, err = cache.Exists(ctx, "k")
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestRedisCache_Set_Unmarshalable(t *testing.T) {
	_, cache := newTestRedis(t)
	assert.Error(t, cache.Set(context.Background(), "k", make(chan int), time.Minute))
}

func mustGet(t *testing.T, mr *miniredis.Miniredis, key string) string {
	t.Helper()
	v, err := mr.Get(key)
	require.NoError(t, err)
	return v
}

func TestRedisCache_IncrWithExpiry(t *testing.T) {
	mr, cache := newTestRedis(t)
	ctx := context.Background()
	key := GetRateLimitKey("auth", "10.0.0.1")

	for i := int64(1); i <= 3; i++ {
		count, err := cache.IncrWithExpiry(ctx, key, time.Minute)
		require.NoError(t, err)
		assert.Equal(t, i, count)
	}
	assert.Equal(t, time.Minute, mr.TTL(key))

	// Window elapsed: counter starts over
	mr.FastForward(61 * time.Second)
	count, err := cache.IncrWithExpiry(ctx, key, time.Minute)
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)
}

func TestRedisCache_IncrWithExpiry_RestoresMissingTTL(t *testing.T) {
	mr, cache := newTestRedis(t)
	ctx := context.Background()
	key := GetRateLimitKey("auth", "10.0.0.2")

	// A counter left without a TTL must not block the client forever
	require.NoError(t, mr.Set(key, "5"))
	assert.Equal(t, time.Duration(0), mr.TTL(key))

	count, err := cache.IncrWithExpiry(ctx, key, time.Minute)
	require.NoError(t, err)
	assert.Equal(t, int64(6), count)
	assert.Equal(t, time.Minute, mr.TTL(key))

	// An existing TTL is left alone
	mr.FastForward(30 * time.Second)
	_, err = cache.IncrWithExpiry(ctx, key, time.Minute)
	require.NoError(t, err)
	assert.Equal(t, 30*time.Second, mr.TTL(key))
}

func TestRedisCache_IncrWithExpiry_Unreachable(t *testing.T) {
	mr, cache := newTestRedis(t)
	mr.Close()

	_, err := cache.IncrWithExpiry(context.Background(), "k", time.Minute)
	assert.Error(t, err)
}

func TestRedisCache_Ping(t *testing.T) {
	mr, cache := newTestRedis(t)
	assert.NoError(t, cache.Ping(context.Background()))

	mr.Close()
	assert.Error(t, cache.Ping(context.Background()))
}

func TestCacheKeys(t *testing.T) {
	assert.Equal(t, "ratelimit:auth:1.2.3.4", GetRateLimitKey("auth", "1.2.3.4"))
	assert.Equal(t, "revoked:abc", GetRevokedTokenKey("abc"))
}

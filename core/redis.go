package core

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"chatapp/metrics"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// RedisCache is a small Redis wrapper used for state shared between
// server instances (rate limit counters, revoked tokens).
type RedisCache struct {
	client *redis.Client
	logger *zap.SugaredLogger
}

// NewRedisCache creates a new Redis cache instance
func NewRedisCache(addr, password string, db, poolSize int, logger *zap.SugaredLogger) *RedisCache {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
		PoolSize: poolSize,
	})

	return &RedisCache{
		client: client,
		logger: logger,
	}
}

// Ping tests the Redis connection
func (rc *RedisCache) Ping(ctx context.Context) error {
	return rc.client.Ping(ctx).Err()
}

// Close closes the Redis connection
func (rc *RedisCache) Close() error {
	return rc.client.Close()
}

// Set stores a JSON-encoded value with expiration
func (rc *RedisCache) Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		metrics.CacheErrors.WithLabelValues("redis", "marshal").Inc()
		return fmt.Errorf("failed to marshal cache value for key %s: %w", key, err)
	}

	if err := rc.client.Set(ctx, key, data, expiration).Err(); err != nil {
		metrics.CacheErrors.WithLabelValues("redis", "set").Inc()
		return err
	}
	return nil
}

// Exists checks if a key exists in the cache
func (rc *RedisCache) Exists(ctx context.Context, key string) (bool, error) {
	count, err := rc.client.Exists(ctx, key).Result()
	return count > 0, err
}

// IncrWithExpiry increments the counter at key and returns the new count.
// INCR and EXPIRE NX run in one transaction, so a counter never outlives
// its window even when it was left without a TTL.
func (rc *RedisCache) IncrWithExpiry(ctx context.Context, key string, window time.Duration) (int64, error) {
	var incr *redis.IntCmd
	_, err := rc.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		incr = pipe.Incr(ctx, key)
		pipe.ExpireNX(ctx, key, window)
		return nil
	})
	if err != nil {
		metrics.CacheErrors.WithLabelValues("redis", "incr").Inc()
		return 0, err
	}
	return incr.Val(), nil
}

// Cache key prefixes
const (
	CacheKeyRateLimitPrefix    = "ratelimit:"
	CacheKeyRevokedTokenPrefix = "revoked:"
)

// GetRateLimitKey generates the counter key for a rate limit tier and client
func GetRateLimitKey(tier, client string) string {
	return CacheKeyRateLimitPrefix + tier + ":" + client
}

// GetRevokedTokenKey generates the key marking a JWT ID as revoked
func GetRevokedTokenKey(jti string) string {
	return CacheKeyRevokedTokenPrefix + jti
}

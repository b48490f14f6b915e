package api

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"time"

	"chatapp/core"
	"chatapp/metrics"
	"chatapp/util/goroutine"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// RateLimiterTier names a rate limiting tier
type RateLimiterTier string

// RateLimitTierAuth covers login and signup, keyed by client IP
const RateLimitTierAuth RateLimiterTier = "auth"

// limiterIdleTTL is how long an unused in-memory limiter is kept
const limiterIdleTTL = time.Hour

// RateLimiterConfig holds configuration for a rate limiting tier
type RateLimiterConfig struct {
	Limit  int           // Maximum requests per window
	Window time.Duration // Time window
	Burst  int           // Burst allowance for the in-memory token bucket
}

type limiterEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// RateLimiter limits requests per key. With Redis it counts in a fixed
// window shared by all instances; without Redis, or when Redis fails, it
// falls back to an in-memory token bucket.
type RateLimiter struct {
	config    RateLimiterConfig
	tier      RateLimiterTier
	limiters  map[string]*limiterEntry
	mu        sync.Mutex
	redis     *core.RedisCache
	logger    *zap.SugaredLogger
	stopCh    chan struct{}
	stopOnce  sync.Once
	cleanupWg sync.WaitGroup
}

// NewRateLimiter creates a rate limiter for a tier. redis may be nil.
func NewRateLimiter(tier RateLimiterTier, config RateLimiterConfig, redis *core.RedisCache, logger *zap.SugaredLogger) *RateLimiter {
	if config.Burst <= 0 {
		config.Burst = config.Limit
	}
	rl := &RateLimiter{
		config:   config,
		tier:     tier,
		limiters: make(map[string]*limiterEntry),
		redis:    redis,
		logger:   logger,
		stopCh:   make(chan struct{}),
	}

	rl.cleanupWg.Add(1)
	go rl.cleanup()

	return rl
}

// Allow reports whether a request for key may proceed
func (rl *RateLimiter) Allow(ctx context.Context, key string) bool {
	if rl.redis != nil {
		allowed, err := rl.allowRedis(ctx, key)
		if err == nil {
			return allowed
		}
		rl.logger.Warnw("Redis rate limit check failed, falling back to memory",
			"tier", rl.tier,
			"error", err)
	}
	return rl.allowMemory(key)
}

func (rl *RateLimiter) allowMemory(key string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	entry, exists := rl.limiters[key]
	if !exists {
		entry = &limiterEntry{
			limiter: rate.NewLimiter(
				rate.Limit(float64(rl.config.Limit)/rl.config.Window.Seconds()),
				rl.config.Burst,
			),
		}
		rl.limiters[key] = entry
	}
	entry.lastSeen = time.Now()

	return entry.limiter.Allow()
}

func (rl *RateLimiter) allowRedis(ctx context.Context, key string) (bool, error) {
	count, err := rl.redis.IncrWithExpiry(ctx, core.GetRateLimitKey(string(rl.tier), key), rl.config.Window)
	if err != nil {
		return false, err
	}
	return count <= int64(rl.config.Limit), nil
}

// cleanup periodically removes idle in-memory limiters
func (rl *RateLimiter) cleanup() {
	defer rl.cleanupWg.Done()
	defer goroutine.Recover("rate-limiter-cleanup", rl.logger)
	ticker := time.NewTicker(limiterIdleTTL)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			rl.evictIdle(time.Now())
		case <-rl.stopCh:
			return
		}
	}
}

func (rl *RateLimiter) evictIdle(now time.Time) {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	for key, entry := range rl.limiters {
		if now.Sub(entry.lastSeen) > limiterIdleTTL {
			delete(rl.limiters, key)
		}
	}
}

// Close stops the cleanup goroutine. Safe to call more than once.
func (rl *RateLimiter) Close() {
	rl.stopOnce.Do(func() { close(rl.stopCh) })
	rl.cleanupWg.Wait()
}

// authRateLimitMiddleware limits login and signup attempts per client IP
func (a *API) authRateLimitMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip := getRealIP(r, a.config.HTTP.TrustProxy, a.config.HTTP.TrustedProxyNetworks)

		if !a.authLimiter.Allow(r.Context(), ip) {
			a.writeRateLimitResponse(w, a.authLimiter)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// writeRateLimitResponse writes a 429 rate_limited response with rate limit headers
func (a *API) writeRateLimitResponse(w http.ResponseWriter, rl *RateLimiter) {
	metrics.RateLimited.WithLabelValues(string(rl.tier)).Inc()

	w.Header().Set("X-RateLimit-Limit", strconv.Itoa(rl.config.Limit))
	w.Header().Set("X-RateLimit-Remaining", "0")
	w.Header().Set("X-RateLimit-Reset", fmt.Sprintf("%d", time.Now().Add(rl.config.Window).Unix()))
	w.Header().Set("Retry-After", strconv.Itoa(int(rl.config.Window.Seconds())))

	writeError(w, http.StatusTooManyRequests, CodeRateLimited, "Too many requests, please try again later", nil, a.logger)
}

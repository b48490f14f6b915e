package bootstrap

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"time"

	"chatapp/config"
	"chatapp/core"
	"chatapp/storage"

	"go.uber.org/zap"
)

const (
	// maxReconnectBackoff caps the pause between background connect rounds
	maxReconnectBackoff = time.Minute
	redisPingTimeout    = 3 * time.Second
)

// InitDatabase creates the connector for the configured driver. Nothing is
// dialed until Connect.
func InitDatabase(cfg *config.Config, sugar *zap.SugaredLogger) (*storage.Connector, error) {
	conn, err := storage.NewConnector(cfg, sugar)
	if err != nil {
		return nil, fmt.Errorf("failed to create database connector: %w", err)
	}
	return conn, nil
}

// ConnectDatabase runs one connect sequence (with the configured retries)
// and logs the outcome
func ConnectDatabase(ctx context.Context, conn *storage.Connector, cfg *config.Config, sugar *zap.SugaredLogger) storage.ConnectResult {
	result := conn.Connect(ctx)
	if result.Connected {
		sugar.Infow("Database connected",
			"driver", result.Driver,
			"attempts", result.Attempts,
			"duration", result.Duration)
		return result
	}

	sugar.Errorw("Database connection failed",
		"driver", result.Driver,
		"attempts", result.Attempts,
		"duration", result.Duration,
		"error", result.Err,
		"remediation", classifyDatabaseError(cfg, databaseHost(cfg), result.Err))
	return result
}

// connectUntilReady repeats connect sequences with a growing pause until
// one succeeds or ctx is cancelled
func connectUntilReady(ctx context.Context, conn *storage.Connector, cfg *config.Config, sugar *zap.SugaredLogger) storage.ConnectResult {
	backoff := cfg.Database.RetryDelay
	if backoff <= 0 {
		backoff = time.Second
	}

	for {
		result := ConnectDatabase(ctx, conn, cfg, sugar)
		if result.Connected || ctx.Err() != nil {
			return result
		}

		sugar.Warnw("Serving without a database, will retry",
			"driver", result.Driver,
			"next_round_in", backoff)

		select {
		case <-ctx.Done():
			return result
		case <-time.After(backoff):
		}

		backoff *= 2
		if backoff > maxReconnectBackoff {
			backoff = maxReconnectBackoff
		}
	}
}

// printFatalDatabaseError writes the classified failure to stderr for the
// require policy, where the process is about to exit
func printFatalDatabaseError(cfg *config.Config, err error) {
	fmt.Fprintf(os.Stderr, "\n========================================\n")
	fmt.Fprintf(os.Stderr, "FATAL: Database Connection Failed\n")
	fmt.Fprintf(os.Stderr, "========================================\n")
	fmt.Fprintf(os.Stderr, "%s\n", classifyDatabaseError(cfg, databaseHost(cfg), err))
	fmt.Fprintf(os.Stderr, "========================================\n\n")
}

// InitRedis connects to Redis when REDIS_ADDR is set. A failed ping is not
// fatal: rate limiting and token revocation fall back to process memory.
func InitRedis(ctx context.Context, cfg *config.Config, sugar *zap.SugaredLogger) *core.RedisCache {
	if !cfg.RedisEnabled() {
		sugar.Info("Redis not configured, using in-memory rate limiting")
		return nil
	}

	redis := core.NewRedisCache(
		cfg.RateLimit.Redis.Addr,
		cfg.RateLimit.Redis.Password,
		cfg.RateLimit.Redis.DB,
		cfg.RateLimit.Redis.PoolSize,
		sugar)

	pingCtx, cancel := context.WithTimeout(ctx, redisPingTimeout)
	defer cancel()
	if err := redis.Ping(pingCtx); err != nil {
		sugar.Warnw("Redis unreachable, using in-memory rate limiting",
			"addr", cfg.RateLimit.Redis.Addr,
			"error", err)
		_ = redis.Close()
		return nil
	}

	sugar.Infow("Redis connected", "addr", cfg.RateLimit.Redis.Addr)
	return redis
}

// databaseHost describes the database location without credentials
func databaseHost(cfg *config.Config) string {
	if cfg.Database.Driver == config.DriverSQLite {
		return cfg.Database.SQLitePath
	}
	parsed, err := url.Parse(cfg.Database.URI)
	if err != nil || parsed.Host == "" {
		return "unknown"
	}
	return parsed.Host
}

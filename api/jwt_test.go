package api

import (
	"context"
	"testing"
	"time"

	"chatapp/core"

	"github.com/alicebob/miniredis/v2"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestGenerateAndValidateJWT(t *testing.T) {
	cfg := newTestConfig()

	token, claims, err := generateJWT("user-1", cfg)
	require.NoError(t, err)
	assert.NotEmpty(t, token)
	assert.Len(t, claims.ID, 64)

	parsed, err := validateJWT(token, cfg)
	require.NoError(t, err)
	assert.Equal(t, "user-1", parsed.UserID)
	assert.Equal(t, claims.ID, parsed.ID)
	assert.WithinDuration(t, time.Now().Add(cfg.Auth.JWTExpiry), parsed.ExpiresAt.Time, 2*time.Second)
}

func TestValidateJWT_Rejects(t *testing.T) {
	cfg := newTestConfig()
	secret := []byte(cfg.Auth.JWTSecret)

	sign := func(method jwt.SigningMethod, key interface{}, claims *Claims) string {
		s, err := jwt.NewWithClaims(method, claims).SignedString(key)
		require.NoError(t, err)
		return s
	}
	valid := func() *Claims {
		return &Claims{
			UserID: "user-1",
			RegisteredClaims: jwt.RegisteredClaims{
				ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
				Issuer:    tokenIssuer,
				ID:        "jti",
			},
		}
	}

	expired := valid()
	expired.ExpiresAt = jwt.NewNumericDate(time.Now().Add(-time.Minute))

	wrongIssuer := valid()
	wrongIssuer.Issuer = "someone-else"

	noExpiry := valid()
	noExpiry.ExpiresAt = nil

	noUser := valid()
	noUser.UserID = ""

	tests := map[string]string{
		"expired":      sign(jwt.SigningMethodHS256, secret, expired),
		"wrong issuer": sign(jwt.SigningMethodHS256, secret, wrongIssuer),
		"no expiry":    sign(jwt.SigningMethodHS256, secret, noExpiry),
		"no user":      sign(jwt.SigningMethodHS256, secret, noUser),
		"wrong secret": sign(jwt.SigningMethodHS256, []byte("another-secret-another-secret-xx"), valid()),
		"none alg":     sign(jwt.SigningMethodNone, jwt.UnsafeAllowNoneSignatureType, valid()),
		"malformed":    "not.a.jwt",
	}

	for name, token := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := validateJWT(token, cfg)
			assert.Error(t, err)
		})
	}
}

func TestGenerateJTI_Unique(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		jti, err := generateJTI()
		require.NoError(t, err)
		assert.False(t, seen[jti])
		seen[jti] = true
	}
}

func TestTokenRevocation_Memory(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	assert.False(t, env.api.isTokenRevoked(ctx, "jti-1"))
	env.api.revokeToken(ctx, "jti-1", time.Now().Add(time.Hour))
	assert.True(t, env.api.isTokenRevoked(ctx, "jti-1"))

	// Entries past their expiry no longer count and are purged
	env.api.revokeToken(ctx, "jti-2", time.Now().Add(-time.Second))
	assert.False(t, env.api.isTokenRevoked(ctx, "jti-2"))

	env.api.cleanupExpiredTokens()
	_, exists := env.api.tokenBlacklist.Load("jti-2")
	assert.False(t, exists)
	_, exists = env.api.tokenBlacklist.Load("jti-1")
	assert.True(t, exists)
}

func TestTokenRevocation_SharedThroughRedis(t *testing.T) {
	mr := miniredis.RunT(t)
	logger := zap.NewNop().Sugar()
	redis := core.NewRedisCache(mr.Addr(), "", 0, 5, logger)
	t.Cleanup(func() { redis.Close() })

	first := newTestEnvWithConfig(t, newTestConfig(), redis)
	second := newTestEnvWithConfig(t, newTestConfig(), redis)
	ctx := context.Background()

	first.api.revokeToken(ctx, "shared-jti", time.Now().Add(time.Hour))
	assert.True(t, mr.Exists(core.GetRevokedTokenKey("shared-jti")))
	assert.True(t, second.api.isTokenRevoked(ctx, "shared-jti"))
	assert.False(t, second.api.isTokenRevoked(ctx, "other-jti"))
}

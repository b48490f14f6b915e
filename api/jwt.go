package api

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"chatapp/config"
	"chatapp/core"

	"github.com/golang-jwt/jwt/v5"
)

// tokenIssuer is the iss claim of session tokens
const tokenIssuer = "chat-api"

// Claims represents the session JWT claims
type Claims struct {
	UserID string `json:"userId"`
	jwt.RegisteredClaims
}

// generateJWT issues a session token for userID, valid for cfg.Auth.JWTExpiry
func generateJWT(userID string, cfg *config.Config) (string, *Claims, error) {
	jti, err := generateJTI()
	if err != nil {
		return "", nil, fmt.Errorf("failed to generate token ID: %w", err)
	}

	now := time.Now()
	claims := &Claims{
		UserID: userID,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(cfg.Auth.JWTExpiry)),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			Issuer:    tokenIssuer,
			Subject:   userID,
			ID:        jti,
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(cfg.Auth.JWTSecret))
	if err != nil {
		return "", nil, fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, claims, nil
}

// validateJWT parses and verifies a session token. Expiry and not-before are
// enforced by the parser.
func validateJWT(tokenString string, cfg *config.Config) (*Claims, error) {
	claims := &Claims{}

	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return []byte(cfg.Auth.JWTSecret), nil
	}, jwt.WithIssuer(tokenIssuer), jwt.WithExpirationRequired())
	if err != nil {
		return nil, err
	}
	if !token.Valid {
		return nil, errors.New("invalid token")
	}
	if claims.UserID == "" {
		return nil, errors.New("token has no user")
	}
	return claims, nil
}

// generateJTI generates a unique JWT ID with 256-bit entropy
func generateJTI() (string, error) {
	bytes := make([]byte, 32)
	if _, err := rand.Read(bytes); err != nil {
		return "", err
	}
	return hex.EncodeToString(bytes), nil
}

// revokeToken blacklists a JTI until the token would have expired anyway.
// With Redis configured the revocation is shared across instances.
func (a *API) revokeToken(ctx context.Context, jti string, expiresAt time.Time) {
	a.tokenBlacklist.Store(jti, expiresAt)

	if a.redis == nil {
		return
	}
	ttl := time.Until(expiresAt)
	if ttl <= 0 {
		return
	}
	if err := a.redis.Set(ctx, core.GetRevokedTokenKey(jti), true, ttl); err != nil {
		a.logger.Warnw("Failed to store token revocation in Redis", "error", err)
	}
}

// isTokenRevoked checks the local blacklist, then Redis when configured
func (a *API) isTokenRevoked(ctx context.Context, jti string) bool {
	if value, exists := a.tokenBlacklist.Load(jti); exists {
		expiresAt, ok := value.(time.Time)
		if !ok {
			return true
		}
		return time.Now().Before(expiresAt)
	}

	if a.redis == nil {
		return false
	}
	revoked, err := a.redis.Exists(ctx, core.GetRevokedTokenKey(jti))
	if err != nil {
		a.logger.Warnw("Redis revocation check failed, using local blacklist only", "error", err)
		return false
	}
	return revoked
}

// cleanupExpiredTokens removes naturally expired tokens from the blacklist
func (a *API) cleanupExpiredTokens() {
	now := time.Now()
	cleaned := 0

	a.tokenBlacklist.Range(func(key, value interface{}) bool {
		expiresAt, ok := value.(time.Time)
		if !ok || now.After(expiresAt) {
			a.tokenBlacklist.Delete(key)
			cleaned++
		}
		return true
	})

	if cleaned > 0 {
		a.logger.Infow("Cleaned up expired tokens from blacklist", "count", cleaned)
	}
}

package api

import (
	"context"
	"net/http"
	"time"

	"chatapp/core"
	"chatapp/metrics"
)

// protectRoute requires a valid session cookie and places the user in the
// request context
func (a *API) protectRoute(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := GetCookies(r.Context())[core.AuthCookieName]
		if token == "" {
			writeError(w, http.StatusUnauthorized, CodeUnauthorized, "Unauthorized - No Token Provided", nil, a.logger)
			return
		}

		claims, err := validateJWT(token, a.config)
		if err != nil {
			writeError(w, http.StatusUnauthorized, CodeUnauthorized, "Unauthorized - Invalid Token", err, a.logger)
			return
		}
		if a.isTokenRevoked(r.Context(), claims.ID) {
			writeError(w, http.StatusUnauthorized, CodeUnauthorized, "Unauthorized - Invalid Token", nil, a.logger)
			return
		}

		user, err := a.lookupUser(r.Context(), claims.UserID)
		if err != nil {
			writeStorageError(w, err, a.logger)
			return
		}

		next.ServeHTTP(w, r.WithContext(WithUser(r.Context(), user)))
	})
}

// lookupUser resolves a user ID through the short-lived user cache
func (a *API) lookupUser(ctx context.Context, userID string) (*core.User, error) {
	if cached, ok := a.userCache.Get(userID); ok {
		metrics.UserCacheLookups.WithLabelValues("hit").Inc()
		user := cached
		return &user, nil
	}
	metrics.UserCacheLookups.WithLabelValues("miss").Inc()

	ctx, cancel := context.WithTimeout(ctx, core.DBOperationTimeout)
	defer cancel()

	user, err := a.users.GetUserByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	a.cacheUser(user)
	return user, nil
}

// cacheUser stores a copy of user without the password hash
func (a *API) cacheUser(user *core.User) {
	entry := *user
	entry.Password = ""
	a.userCache.Add(entry.ID, entry)
}

// setAuthCookie sets the session cookie for a freshly issued token
func (a *API) setAuthCookie(w http.ResponseWriter, token string) {
	http.SetCookie(w, &http.Cookie{
		Name:     core.AuthCookieName,
		Value:    token,
		Path:     "/",
		MaxAge:   int(a.config.Auth.JWTExpiry / time.Second),
		HttpOnly: true,
		Secure:   a.config.IsProduction(),
		SameSite: http.SameSiteStrictMode,
	})
}

// clearAuthCookie expires the session cookie
func (a *API) clearAuthCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     core.AuthCookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   a.config.IsProduction(),
		SameSite: http.SameSiteStrictMode,
	})
}

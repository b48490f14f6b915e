package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"chatapp/config"
	"chatapp/core"
	"chatapp/storage"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSignup_Success(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(jsonRequest(t, http.MethodPost, "/api/auth/signup", map[string]string{
		"fullName": "Ada Lovelace",
		"email":    "Ada@Example.com",
		"password": "secret123",
	}))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.NotEmpty(t, body["_id"])
	assert.Equal(t, "ada@example.com", body["email"])
	assert.Equal(t, "Ada Lovelace", body["fullName"])
	assert.NotContains(t, body, "password")

	cookie := findCookie(rec, core.AuthCookieName)
	require.NotNil(t, cookie)
	assert.NotEmpty(t, cookie.Value)
	assert.True(t, cookie.HttpOnly)
	assert.Equal(t, http.SameSiteStrictMode, cookie.SameSite)
	assert.False(t, cookie.Secure, "secure cookies only in production")
	assert.Equal(t, 3600, cookie.MaxAge)

	stored, err := env.users.GetUserByEmail(context.Background(), "ada@example.com")
	require.NoError(t, err)
	assert.NotEqual(t, "secret123", stored.Password)
}

func TestSignup_SecureCookieInProduction(t *testing.T) {
	cfg := newTestConfig()
	cfg.NodeEnv = "production"
	env := newTestEnvWithConfig(t, cfg, nil)

	rec := env.do(jsonRequest(t, http.MethodPost, "/api/auth/signup", map[string]string{
		"fullName": "Ada", "email": "ada@example.com", "password": "secret123",
	}))
	require.Equal(t, http.StatusCreated, rec.Code)

	cookie := findCookie(rec, core.AuthCookieName)
	require.NotNil(t, cookie)
	assert.True(t, cookie.Secure)
}

func TestSignup_Validation(t *testing.T) {
	tests := []struct {
		name    string
		body    map[string]string
		message string
	}{
		{"missing all", map[string]string{}, "All fields are required"},
		{"missing password", map[string]string{"fullName": "A", "email": "a@example.com"}, "All fields are required"},
		{"blank name", map[string]string{"fullName": "  ", "email": "a@example.com", "password": "secret123"}, "All fields are required"},
		{"missing field beats bad email", map[string]string{"fullName": "A", "email": "nope"}, "All fields are required"},
		{"short password", map[string]string{"fullName": "A", "email": "a@example.com", "password": "12345"}, "Password must be at least 6 characters"},
		{"bad email", map[string]string{"fullName": "A", "email": "nope", "password": "secret123"}, "Invalid email format"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t)
			rec := env.do(jsonRequest(t, http.MethodPost, "/api/auth/signup", tt.body))

			assert.Equal(t, http.StatusBadRequest, rec.Code)
			resp := decodeError(t, rec)
			assert.Equal(t, tt.message, resp.Message)
			assert.Equal(t, CodeValidationFailed, resp.Code)
		})
	}
}

func TestSignup_EmptyBody(t *testing.T) {
	env := newTestEnv(t)

	req := httptest.NewRequest(http.MethodPost, "/api/auth/signup", nil)
	rec := env.do(req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "All fields are required", decodeError(t, rec).Message)
}

func TestSignup_DuplicateEmail(t *testing.T) {
	env := newTestEnv(t)
	env.createUser(t, "Ada", "ada@example.com")

	rec := env.do(jsonRequest(t, http.MethodPost, "/api/auth/signup", map[string]string{
		"fullName": "Other", "email": "ADA@example.com", "password": "secret123",
	}))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	resp := decodeError(t, rec)
	assert.Equal(t, "Email already exists", resp.Message)
	assert.Equal(t, CodeConflict, resp.Code)
}

func TestSignup_DatabaseUnavailable(t *testing.T) {
	env := newTestEnv(t)
	env.users.Err = storage.ErrDatabaseUnavailable

	rec := env.do(jsonRequest(t, http.MethodPost, "/api/auth/signup", map[string]string{
		"fullName": "Ada", "email": "ada@example.com", "password": "secret123",
	}))

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, CodeDatabaseUnavailable, decodeError(t, rec).Code)
}

func TestLogin(t *testing.T) {
	env := newTestEnv(t)
	user, _ := env.createUser(t, "Ada", "ada@example.com")

	t.Run("success", func(t *testing.T) {
		rec := env.do(jsonRequest(t, http.MethodPost, "/api/auth/login", map[string]string{
			"email": "ADA@example.com", "password": testPassword,
		}))
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

		var body core.User
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
		assert.Equal(t, user.ID, body.ID)
		assert.Empty(t, body.Password)
		assert.NotNil(t, findCookie(rec, core.AuthCookieName))
	})

	t.Run("wrong password", func(t *testing.T) {
		rec := env.do(jsonRequest(t, http.MethodPost, "/api/auth/login", map[string]string{
			"email": "ada@example.com", "password": "wrong-password",
		}))
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Equal(t, "Invalid credentials", decodeError(t, rec).Message)
		assert.Nil(t, findCookie(rec, core.AuthCookieName))
	})

	t.Run("unknown email", func(t *testing.T) {
		rec := env.do(jsonRequest(t, http.MethodPost, "/api/auth/login", map[string]string{
			"email": "nobody@example.com", "password": testPassword,
		}))
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Equal(t, "Invalid credentials", decodeError(t, rec).Message)
	})
}

func TestLogin_RateLimited(t *testing.T) {
	cfg := newTestConfig()
	cfg.RateLimit.Auth.Limit = 2
	cfg.RateLimit.Auth.Burst = 2
	env := newTestEnvWithConfig(t, cfg, nil)

	body := map[string]string{"email": "a@example.com", "password": "whatever"}
	for i := 0; i < 2; i++ {
		rec := env.do(jsonRequest(t, http.MethodPost, "/api/auth/login", body))
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	}

	rec := env.do(jsonRequest(t, http.MethodPost, "/api/auth/login", body))
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, CodeRateLimited, decodeError(t, rec).Code)
	assert.Equal(t, "2", rec.Header().Get("X-RateLimit-Limit"))
	assert.Equal(t, "0", rec.Header().Get("X-RateLimit-Remaining"))

	// Logout is not rate limited
	rec = env.do(httptest.NewRequest(http.MethodPost, "/api/auth/logout", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestCheck(t *testing.T) {
	env := newTestEnv(t)
	user, token := env.createUser(t, "Ada", "ada@example.com")

	rec := env.do(withSession(httptest.NewRequest(http.MethodGet, "/api/auth/check", nil), token))
	require.Equal(t, http.StatusOK, rec.Code)

	var body core.User
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, user.ID, body.ID)
	assert.Equal(t, "ada@example.com", body.Email)
}

func TestProtectRoute_Errors(t *testing.T) {
	env := newTestEnv(t)
	user, token := env.createUser(t, "Ada", "ada@example.com")

	t.Run("no token", func(t *testing.T) {
		rec := env.do(httptest.NewRequest(http.MethodGet, "/api/auth/check", nil))
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		resp := decodeError(t, rec)
		assert.Equal(t, "Unauthorized - No Token Provided", resp.Message)
		assert.Equal(t, CodeUnauthorized, resp.Code)
	})

	t.Run("invalid token", func(t *testing.T) {
		rec := env.do(withSession(httptest.NewRequest(http.MethodGet, "/api/auth/check", nil), "garbage"))
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		assert.Equal(t, "Unauthorized - Invalid Token", decodeError(t, rec).Message)
	})

	t.Run("token signed with another secret", func(t *testing.T) {
		other := newTestConfig()
		other.Auth.JWTSecret = "a-completely-different-secret-value!!"
		forged, _, err := generateJWT(user.ID, other)
		require.NoError(t, err)

		rec := env.do(withSession(httptest.NewRequest(http.MethodGet, "/api/auth/check", nil), forged))
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("user deleted", func(t *testing.T) {
		ghost, ghostToken := env.createUser(t, "Ghost", "ghost@example.com")
		env.users.DeleteUser(ghost.ID)

		rec := env.do(withSession(httptest.NewRequest(http.MethodGet, "/api/auth/check", nil), ghostToken))
		assert.Equal(t, http.StatusNotFound, rec.Code)
		assert.Equal(t, "User not found", decodeError(t, rec).Message)
	})

	// The valid token still works
	rec := env.do(withSession(httptest.NewRequest(http.MethodGet, "/api/auth/check", nil), token))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestLogout_RevokesToken(t *testing.T) {
	env := newTestEnv(t)
	_, token := env.createUser(t, "Ada", "ada@example.com")

	rec := env.do(withSession(httptest.NewRequest(http.MethodPost, "/api/auth/logout", nil), token))
	require.Equal(t, http.StatusOK, rec.Code)

	var body MessageResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "Logged out successfully", body.Message)

	cookie := findCookie(rec, core.AuthCookieName)
	require.NotNil(t, cookie)
	assert.Empty(t, cookie.Value)
	assert.Equal(t, -1, cookie.MaxAge)

	rec = env.do(withSession(httptest.NewRequest(http.MethodGet, "/api/auth/check", nil), token))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "Unauthorized - Invalid Token", decodeError(t, rec).Message)
}

func TestUpdateProfile(t *testing.T) {
	env := newTestEnv(t)
	user, token := env.createUser(t, "Ada", "ada@example.com")

	t.Run("missing pic", func(t *testing.T) {
		req := withSession(jsonRequest(t, http.MethodPut, "/api/auth/update-profile", map[string]string{}), token)
		rec := env.do(req)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Equal(t, "Profile pic is required", decodeError(t, rec).Message)
	})

	t.Run("success", func(t *testing.T) {
		req := withSession(jsonRequest(t, http.MethodPut, "/api/auth/update-profile", map[string]string{
			"profilePic": "https://cdn.example.com/ada.png",
		}), token)
		rec := env.do(req)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

		var body core.User
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
		assert.Equal(t, user.ID, body.ID)
		assert.Equal(t, "https://cdn.example.com/ada.png", body.ProfilePic)
	})

	t.Run("check reflects update", func(t *testing.T) {
		rec := env.do(withSession(httptest.NewRequest(http.MethodGet, "/api/auth/check", nil), token))
		require.Equal(t, http.StatusOK, rec.Code)

		var body core.User
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
		assert.Equal(t, "https://cdn.example.com/ada.png", body.ProfilePic)
	})

	t.Run("requires auth", func(t *testing.T) {
		rec := env.do(jsonRequest(t, http.MethodPut, "/api/auth/update-profile", map[string]string{"profilePic": "x"}))
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})
}

func TestRoutes_MethodNotAllowed(t *testing.T) {
	env := newTestEnv(t)

	tests := []struct {
		method string
		path   string
	}{
		{http.MethodGet, "/api/auth/login"},
		{http.MethodDelete, "/api/auth/login"},
		{http.MethodDelete, "/api/auth/check"},
		{http.MethodGet, "/api/auth/update-profile"},
		{http.MethodDelete, "/api/messages/users"},
		{http.MethodPut, "/api/messages/send/abc"},
		{http.MethodDelete, "/health"},
		{http.MethodDelete, "/health/live"},
		{http.MethodPost, "/health/ready"},
		{http.MethodDelete, "/metrics"},
	}

	for _, tt := range tests {
		t.Run(tt.method+" "+tt.path, func(t *testing.T) {
			rec := env.do(httptest.NewRequest(tt.method, tt.path, nil))
			assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
			assert.Equal(t, CodeMethodNotAllowed, decodeError(t, rec).Code)
		})
	}
}

func TestRoutes_NotFoundUnderGroups(t *testing.T) {
	env := newTestEnv(t)

	for _, path := range []string{"/api/auth/nope", "/api/messages/a/b/c", "/health/nope", "/nope"} {
		t.Run(path, func(t *testing.T) {
			rec := env.do(httptest.NewRequest(http.MethodGet, path, nil))
			assert.Equal(t, http.StatusNotFound, rec.Code)
			assert.Equal(t, CodeNotFound, decodeError(t, rec).Code)
			assert.Equal(t, config.DevelopmentOrigin, rec.Header().Get("Access-Control-Allow-Origin"))
		})
	}
}

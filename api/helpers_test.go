package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"chatapp/config"
	"chatapp/core"
	"chatapp/storage"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

const testPassword = "secret123"

func newTestConfig() *config.Config {
	cfg := &config.Config{}
	cfg.Port = 4000
	cfg.Auth.JWTSecret = "test-secret-that-is-long-enough-for-hs256"
	cfg.Auth.JWTExpiry = time.Hour
	cfg.Auth.BcryptCost = bcrypt.MinCost
	cfg.HTTP.JSONBodyLimit = 1 << 20
	cfg.HTTP.ReadHeaderTimeout = 5 * time.Second
	cfg.RateLimit.Auth.Limit = 1000
	cfg.RateLimit.Auth.Window = time.Minute
	cfg.RateLimit.Auth.Burst = 1000
	cfg.Cache.UserSize = 128
	cfg.Cache.UserTTL = time.Minute
	return cfg
}

// fakeDBStatus is a DatabaseStatus with a settable state
type fakeDBStatus struct {
	mu      sync.Mutex
	state   storage.State
	pingErr error
}

func (f *fakeDBStatus) State() storage.State {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state
}

func (f *fakeDBStatus) Driver() string { return "mongodb" }

func (f *fakeDBStatus) Ping(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.pingErr
}

func (f *fakeDBStatus) set(state storage.State, pingErr error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.state = state
	f.pingErr = pingErr
}

type testEnv struct {
	cfg      *config.Config
	api      *API
	users    *storage.MockUserStorage
	messages *storage.MockMessageStorage
	db       *fakeDBStatus
	hub      *Hub
}

func newTestEnv(t *testing.T) *testEnv {
	return newTestEnvWithConfig(t, newTestConfig(), nil)
}

func newTestEnvWithConfig(t *testing.T, cfg *config.Config, redis *core.RedisCache) *testEnv {
	t.Helper()
	logger := zap.NewNop().Sugar()

	hub := NewHub(logger, context.Background())
	go hub.Start()
	t.Cleanup(hub.Stop)

	env := &testEnv{
		cfg:      cfg,
		users:    storage.NewMockUserStorage(),
		messages: storage.NewMockMessageStorage(),
		db:       &fakeDBStatus{state: storage.StateConnected},
		hub:      hub,
	}
	env.api = NewAPI(cfg, env.users, env.messages, env.db, hub, redis, logger)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = env.api.Stop(ctx)
	})
	return env
}

// createUser stores a user with testPassword and returns it with a session token
func (e *testEnv) createUser(t *testing.T, fullName, email string) (*core.User, string) {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte(testPassword), bcrypt.MinCost)
	require.NoError(t, err)

	user := core.NewUser(fullName, email, string(hash))
	require.NoError(t, e.users.CreateUser(context.Background(), user))

	token, _, err := generateJWT(user.ID, e.cfg)
	require.NoError(t, err)
	return user, token
}

func (e *testEnv) do(req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	e.api.Handler().ServeHTTP(rec, req)
	return rec
}

func jsonRequest(t *testing.T, method, path string, body interface{}) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	return req
}

func withSession(req *http.Request, token string) *http.Request {
	req.AddCookie(&http.Cookie{Name: core.AuthCookieName, Value: token})
	return req
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) ErrorResponse {
	t.Helper()
	var resp ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp), "body: %s", rec.Body.String())
	return resp
}

func findCookie(rec *httptest.ResponseRecorder, name string) *http.Cookie {
	for _, c := range rec.Result().Cookies() {
		if c.Name == name {
			return c
		}
	}
	return nil
}

// Package api implements the HTTP surface of the chat backend: the
// middleware chain, the /api/auth, /api/messages and /health route groups,
// the /ws realtime endpoint and /metrics.
package api

import (
	"context"
	"net"
	"net/http"
	"sync"
	"time"

	"chatapp/config"
	"chatapp/core"
	"chatapp/storage"
	"chatapp/util/goroutine"

	"github.com/go-playground/validator/v10"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// tokenCleanupInterval is how often expired revocations are purged
const tokenCleanupInterval = 15 * time.Minute

// API holds the HTTP server and its collaborators
type API struct {
	router  *mux.Router
	handler http.Handler
	server  *http.Server

	config   *config.Config
	logger   *zap.SugaredLogger
	users    storage.UserStorage
	messages storage.MessageStorage
	db       DatabaseStatus
	hub      *Hub
	redis    *core.RedisCache

	authLimiter    *RateLimiter
	userCache      *expirable.LRU[string, core.User]
	tokenBlacklist sync.Map // jti -> expiry time.Time
	validate       *validator.Validate
	upgrader       websocket.Upgrader
	startTime      time.Time

	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// NewAPI creates the API and mounts every route. redis may be nil.
func NewAPI(cfg *config.Config, users storage.UserStorage, messages storage.MessageStorage, db DatabaseStatus, hub *Hub, redis *core.RedisCache, logger *zap.SugaredLogger) *API {
	a := &API{
		router:   mux.NewRouter(),
		config:   cfg,
		logger:   logger,
		users:    users,
		messages: messages,
		db:       db,
		hub:      hub,
		redis:    redis,
		authLimiter: NewRateLimiter(RateLimitTierAuth, RateLimiterConfig{
			Limit:  cfg.RateLimit.Auth.Limit,
			Window: cfg.RateLimit.Auth.Window,
			Burst:  cfg.RateLimit.Auth.Burst,
		}, redis, logger),
		userCache: expirable.NewLRU[string, core.User](cfg.Cache.UserSize, nil, cfg.Cache.UserTTL),
		validate:  newValidator(),
		upgrader:  newUpgrader(cfg.AllowedOrigin()),
		startTime: time.Now(),
		stopCh:    make(chan struct{}),
	}
	a.setupRoutes()
	a.server = &http.Server{
		Handler:           a.handler,
		ReadHeaderTimeout: cfg.HTTP.ReadHeaderTimeout,
	}

	a.wg.Add(1)
	go a.tokenCleanupLoop()

	return a
}

// setupRoutes builds the middleware chain and mounts the route groups.
//
// Request flow: request ID and metrics, panic recovery, CORS (so that
// preflights and unmatched paths still carry CORS headers), then inside the
// router JSON body parsing and cookie parsing.
func (a *API) setupRoutes() {
	a.router.Use(a.jsonBodyMiddleware)
	a.router.Use(a.cookieMiddleware)

	setFallbackHandlers(a.router)

	auth := a.router.PathPrefix("/api/auth").Subrouter()
	setFallbackHandlers(auth)
	auth.Handle("/signup", a.authRateLimitMiddleware(http.HandlerFunc(a.signup))).Methods(http.MethodPost)
	auth.Handle("/login", a.authRateLimitMiddleware(http.HandlerFunc(a.login))).Methods(http.MethodPost)
	auth.HandleFunc("/logout", a.logout).Methods(http.MethodPost)
	auth.Handle("/update-profile", a.protectRoute(http.HandlerFunc(a.updateProfile))).Methods(http.MethodPut)
	auth.Handle("/check", a.protectRoute(http.HandlerFunc(a.checkAuth))).Methods(http.MethodGet)

	messages := a.router.PathPrefix("/api/messages").Subrouter()
	setFallbackHandlers(messages)
	messages.Use(a.protectRoute)
	messages.HandleFunc("/users", a.getUsersForSidebar).Methods(http.MethodGet)
	messages.HandleFunc("/send/{id}", a.sendMessage).Methods(http.MethodPost)
	messages.HandleFunc("/{id}", a.getMessages).Methods(http.MethodGet)

	health := a.router.PathPrefix("/health").Subrouter()
	setFallbackHandlers(health)
	health.HandleFunc("", a.healthCheck).Methods(http.MethodGet)
	health.HandleFunc("/live", a.liveness).Methods(http.MethodGet)
	health.HandleFunc("/ready", a.readiness).Methods(http.MethodGet)

	a.router.HandleFunc("/ws", a.serveWs).Methods(http.MethodGet)
	a.router.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)

	a.handler = a.requestIDMiddleware(a.errorRecoveryMiddleware(a.corsMiddleware(a.router)))
}

// setFallbackHandlers installs the JSON 404 and 405 responses. A subrouter
// answers unmatched requests under its prefix itself, so each one needs them.
func setFallbackHandlers(router *mux.Router) {
	router.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusNotFound, CodeNotFound, "Route not found", nil, nil)
	})
	router.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, CodeMethodNotAllowed, "Method not allowed", nil, nil)
	})
}

// Handler returns the root HTTP handler
func (a *API) Handler() http.Handler {
	return a.handler
}

// Serve accepts connections on an already bound listener until Stop is
// called. It returns http.ErrServerClosed after a graceful stop.
func (a *API) Serve(listener net.Listener) error {
	return a.server.Serve(listener)
}

// Stop drains in-flight requests within ctx and stops background workers
func (a *API) Stop(ctx context.Context) error {
	a.stopOnce.Do(func() { close(a.stopCh) })
	a.authLimiter.Close()

	err := a.server.Shutdown(ctx)
	a.wg.Wait()
	return err
}

func (a *API) tokenCleanupLoop() {
	defer a.wg.Done()
	defer goroutine.Recover("token-cleanup", a.logger)
	ticker := time.NewTicker(tokenCleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			a.cleanupExpiredTokens()
		case <-a.stopCh:
			return
		}
	}
}

package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"chatapp/api"
	"chatapp/config"
	"chatapp/core"
	"chatapp/storage"
	"chatapp/util/goroutine"

	"go.uber.org/zap"
)

// App represents the chat server with all its components.
type App struct {
	Config *config.Config
	Logger *zap.Logger
	Sugar  *zap.SugaredLogger

	Database  *storage.Connector
	Redis     *core.RedisCache
	Hub       *api.Hub
	APIServer *api.API

	listener net.Listener

	// ctx is cancelled at shutdown to stop background work
	ctx    context.Context
	cancel context.CancelFunc

	workers      *goroutine.Group
	serveErr     chan error
	started      bool
	shutdownOnce sync.Once
}

// NewApp loads configuration and builds every component. Nothing listens
// or dials the database until Start.
func NewApp(ctx context.Context) (*App, error) {
	cfg, err := InitConfig()
	if err != nil {
		return nil, err
	}

	logger, _, err := InitLogger(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}

	return NewAppWithConfig(ctx, cfg, logger)
}

// NewAppWithConfig builds the application from an already loaded config
func NewAppWithConfig(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*App, error) {
	sugar := logger.Sugar()
	sugar.Info("Chat server starting...")
	logConfig(cfg, sugar)

	appCtx, cancel := context.WithCancel(ctx)
	app := &App{
		Config:   cfg,
		Logger:   logger,
		Sugar:    sugar,
		ctx:      appCtx,
		cancel:   cancel,
		workers:  goroutine.NewGroup(sugar),
		serveErr: make(chan error, 1),
	}

	db, err := InitDatabase(cfg, sugar)
	if err != nil {
		cancel()
		return nil, err
	}
	app.Database = db

	app.Redis = InitRedis(appCtx, cfg, sugar)

	app.Hub = api.NewHub(sugar, appCtx)
	app.APIServer = api.NewAPI(cfg, db.Users(), db.Messages(), db, app.Hub, app.Redis, sugar)

	return app, nil
}

// Start binds the listener, starts serving and then starts the database
// connection. Under the tolerate policy the connection runs in the
// background; under require Start returns an error if it fails.
func (a *App) Start(ctx context.Context) error {
	a.started = true
	a.workers.Go("ws-hub", a.Hub.Start)

	listener, err := net.Listen("tcp", a.Config.ListenAddr())
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", a.Config.ListenAddr(), err)
	}
	a.listener = listener

	a.Sugar.Infof("server is running on PORT:%d", a.Port())

	a.workers.Go("http-server", func() {
		if err := a.APIServer.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.Sugar.Errorw("HTTP server failed", "error", err)
			a.serveErr <- err
		}
	})

	switch a.Config.Database.StartupPolicy {
	case config.StartupPolicyRequire:
		result := ConnectDatabase(ctx, a.Database, a.Config, a.Sugar)
		if !result.Connected {
			printFatalDatabaseError(a.Config, result.Err)
			return fmt.Errorf("database required at startup: %w", result.Err)
		}
	default:
		a.workers.Go("db-connect", func() {
			connectUntilReady(a.ctx, a.Database, a.Config, a.Sugar)
		})
	}

	return nil
}

// Port returns the bound TCP port, or 0 before Start
func (a *App) Port() int {
	if a.listener == nil {
		return 0
	}
	if addr, ok := a.listener.Addr().(*net.TCPAddr); ok {
		return addr.Port
	}
	return a.Config.Port
}

// WaitForShutdown blocks until SIGINT/SIGTERM or until the HTTP server
// fails. It returns the server error in the latter case.
func (a *App) WaitForShutdown() error {
	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(c)

	select {
	case sig := <-c:
		a.Sugar.Infow("Shutdown signal received", "signal", sig.String())
		return nil
	case err := <-a.serveErr:
		return err
	case <-a.ctx.Done():
		return nil
	}
}

// Shutdown gracefully stops every component within SHUTDOWN_TIMEOUT. Safe
// to call more than once.
func (a *App) Shutdown() {
	a.shutdownOnce.Do(a.shutdown)
}

func (a *App) shutdown() {
	a.Sugar.Info("Shutting down...")

	ctx, cancel := context.WithTimeout(context.Background(), a.Config.HTTP.ShutdownTimeout)
	defer cancel()

	// Phase 1 - Stop accepting requests and drain in-flight ones
	a.Sugar.Info("Phase 1: Stopping API server...")
	if err := a.APIServer.Stop(ctx); err != nil {
		a.Sugar.Errorw("Failed to stop API server", "error", err)
	}

	// Phase 2 - Close websocket clients
	a.Sugar.Info("Phase 2: Closing websocket clients...")
	if a.started {
		a.Hub.Stop()
	}

	// Phase 3 - Stop background work (database reconnects)
	a.Sugar.Info("Phase 3: Waiting for background goroutines...")
	a.cancel()
	select {
	case <-a.workers.WaitChan():
		a.Sugar.Info("All background goroutines stopped")
	case <-ctx.Done():
		a.Sugar.Warn("Background goroutine shutdown timed out")
	}

	// Phase 4 - Close connections
	a.Sugar.Info("Phase 4: Closing database connections...")
	if err := a.Database.Close(ctx); err != nil {
		a.Sugar.Errorw("Failed to close database", "error", err)
	}
	if a.Redis != nil {
		if err := a.Redis.Close(); err != nil {
			a.Sugar.Errorw("Failed to close Redis", "error", err)
		}
	}

	a.Sugar.Info("Shutdown complete")
	_ = a.Logger.Sync()
}

package storage

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"chatapp/config"
	"chatapp/core"
	"chatapp/metrics"

	"go.uber.org/zap"
)

// State is the lifecycle state of the database connection
type State int32

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
	StateFailed
)

var allStates = []State{StateDisconnected, StateConnecting, StateConnected, StateFailed}

// String returns the string representation
func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// ConnectResult is the outcome of a connection attempt sequence
type ConnectResult struct {
	Driver    string
	Connected bool
	Attempts  int
	Duration  time.Duration
	Err       error
}

// Opener opens and verifies a database. ctx bounds a single attempt.
type Opener func(ctx context.Context) (Database, error)

// ConnectorOptions controls the retry behaviour of a Connector
type ConnectorOptions struct {
	Driver     string
	Timeout    time.Duration // per attempt
	Retries    int           // additional attempts after the first
	RetryDelay time.Duration
}

// Connector owns the database connection lifecycle. It can be used before
// the connection is established: the gated stores it hands out return
// ErrDatabaseUnavailable until Connect succeeds.
type Connector struct {
	opts   ConnectorOptions
	open   Opener
	logger *zap.SugaredLogger

	state atomic.Int32

	mu     sync.RWMutex
	db     Database
	result ConnectResult
}

// NewConnector creates a connector for the driver selected in cfg
func NewConnector(cfg *config.Config, logger *zap.SugaredLogger) (*Connector, error) {
	var open Opener
	switch cfg.Database.Driver {
	case config.DriverMongoDB:
		open = func(ctx context.Context) (Database, error) {
			db, err := NewMongoDB(ctx, cfg.Database.URI, cfg.Database.Name, cfg.Database.MaxPoolSize, logger)
			if err != nil {
				return nil, err
			}
			return db, nil
		}
	case config.DriverSQLite:
		open = func(ctx context.Context) (Database, error) {
			db, err := NewSQLite(ctx, cfg.Database.SQLitePath, logger)
			if err != nil {
				return nil, err
			}
			return db, nil
		}
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownDriver, cfg.Database.Driver)
	}

	return NewConnectorWithOpener(ConnectorOptions{
		Driver:     cfg.Database.Driver,
		Timeout:    cfg.Database.ConnectTimeout,
		Retries:    cfg.Database.ConnectRetries,
		RetryDelay: cfg.Database.RetryDelay,
	}, open, logger), nil
}

// NewConnectorWithOpener creates a connector with a custom opener
func NewConnectorWithOpener(opts ConnectorOptions, open Opener, logger *zap.SugaredLogger) *Connector {
	c := &Connector{
		opts:   opts,
		open:   open,
		logger: logger,
	}
	c.setState(StateDisconnected)
	return c
}

// Connect tries to open the database, retrying up to the configured number
// of times. It returns immediately if already connected. Cancelling ctx
// stops further retries.
func (c *Connector) Connect(ctx context.Context) ConnectResult {
	if c.State() == StateConnected {
		return c.LastResult()
	}

	start := time.Now()
	c.setState(StateConnecting)

	result := ConnectResult{Driver: c.opts.Driver}
	var lastErr error

	for attempt := 0; attempt <= c.opts.Retries; attempt++ {
		if attempt > 0 {
			c.logger.Infow("Retrying database connection",
				"driver", c.opts.Driver,
				"attempt", attempt+1,
				"max_attempts", c.opts.Retries+1,
				"delay", c.opts.RetryDelay)
			select {
			case <-ctx.Done():
				lastErr = ctx.Err()
			case <-time.After(c.opts.RetryDelay):
			}
			if ctx.Err() != nil {
				break
			}
		}

		result.Attempts++
		attemptCtx, cancel := context.WithTimeout(ctx, c.opts.Timeout)
		db, err := c.open(attemptCtx)
		cancel()

		if err == nil {
			metrics.DatabaseConnectAttempts.WithLabelValues(c.opts.Driver, "success").Inc()
			result.Connected = true
			result.Duration = time.Since(start)

			c.mu.Lock()
			c.db = db
			c.result = result
			c.mu.Unlock()
			c.setState(StateConnected)
			return result
		}

		metrics.DatabaseConnectAttempts.WithLabelValues(c.opts.Driver, "failure").Inc()
		lastErr = err
		c.logger.Warnw("Database connection attempt failed",
			"driver", c.opts.Driver,
			"attempt", attempt+1,
			"error", err)

		if ctx.Err() != nil {
			break
		}
	}

	result.Duration = time.Since(start)
	result.Err = fmt.Errorf("failed to connect to %s after %d attempts: %w", c.opts.Driver, result.Attempts, lastErr)

	c.mu.Lock()
	c.result = result
	c.mu.Unlock()
	c.setState(StateFailed)
	return result
}

// State returns the current connection state. Safe for concurrent use.
func (c *Connector) State() State {
	return State(c.state.Load())
}

// Driver returns the configured driver name
func (c *Connector) Driver() string {
	return c.opts.Driver
}

// LastResult returns the result of the most recent Connect call
func (c *Connector) LastResult() ConnectResult {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.result
}

// Database returns the connected database or ErrDatabaseUnavailable
func (c *Connector) Database() (Database, error) {
	if c.State() != StateConnected {
		return nil, ErrDatabaseUnavailable
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.db == nil {
		return nil, ErrDatabaseUnavailable
	}
	return c.db, nil
}

// Ping checks the live connection
func (c *Connector) Ping(ctx context.Context) error {
	db, err := c.Database()
	if err != nil {
		return err
	}
	return db.HealthCheck(ctx)
}

// Close disconnects the database if connected
func (c *Connector) Close(ctx context.Context) error {
	c.mu.Lock()
	db := c.db
	c.db = nil
	c.mu.Unlock()

	c.setState(StateDisconnected)
	if db == nil {
		return nil
	}
	return db.Close(ctx)
}

// Users returns a user store that is usable before the connection exists
func (c *Connector) Users() UserStorage {
	return &gatedUsers{c: c}
}

// Messages returns a message store that is usable before the connection exists
func (c *Connector) Messages() MessageStorage {
	return &gatedMessages{c: c}
}

func (c *Connector) setState(s State) {
	c.state.Store(int32(s))
	for _, st := range allStates {
		value := 0.0
		if st == s {
			value = 1
		}
		metrics.DatabaseState.WithLabelValues(c.opts.Driver, st.String()).Set(value)
	}
}

// gatedUsers resolves the user store on every call
type gatedUsers struct {
	c *Connector
}

func (g *gatedUsers) store() (UserStorage, error) {
	db, err := g.c.Database()
	if err != nil {
		return nil, err
	}
	return db.Users(), nil
}

func (g *gatedUsers) CreateUser(ctx context.Context, user *core.User) error {
	s, err := g.store()
	if err != nil {
		return err
	}
	return s.CreateUser(ctx, user)
}

func (g *gatedUsers) GetUserByID(ctx context.Context, id string) (*core.User, error) {
	s, err := g.store()
	if err != nil {
		return nil, err
	}
	return s.GetUserByID(ctx, id)
}

func (g *gatedUsers) GetUserByEmail(ctx context.Context, email string) (*core.User, error) {
	s, err := g.store()
	if err != nil {
		return nil, err
	}
	return s.GetUserByEmail(ctx, email)
}

func (g *gatedUsers) UpdateProfilePic(ctx context.Context, id, profilePic string) (*core.User, error) {
	s, err := g.store()
	if err != nil {
		return nil, err
	}
	return s.UpdateProfilePic(ctx, id, profilePic)
}

func (g *gatedUsers) ListUsersExcept(ctx context.Context, id string) ([]core.User, error) {
	s, err := g.store()
	if err != nil {
		return nil, err
	}
	return s.ListUsersExcept(ctx, id)
}

// gatedMessages resolves the message store on every call
type gatedMessages struct {
	c *Connector
}

func (g *gatedMessages) store() (MessageStorage, error) {
	db, err := g.c.Database()
	if err != nil {
		return nil, err
	}
	return db.Messages(), nil
}

func (g *gatedMessages) CreateMessage(ctx context.Context, msg *core.Message) error {
	s, err := g.store()
	if err != nil {
		return err
	}
	return s.CreateMessage(ctx, msg)
}

func (g *gatedMessages) GetConversation(ctx context.Context, userA, userB string) ([]core.Message, error) {
	s, err := g.store()
	if err != nil {
		return nil, err
	}
	return s.GetConversation(ctx, userA, userB)
}

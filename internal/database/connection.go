package database

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/surrealdb/surrealdb.go"

	"github.com/nfrund/scriptops/internal/config"
)

const (
	defaultHealthInterval = 30 * time.Second
	healthCheckTimeout    = 5 * time.Second
)

// DBConnection is the part of a managed connection the executor needs.
type DBConnection interface {
	WithConnection(ctx context.Context, fn func(*surrealdb.DB) error) error
	Close(ctx context.Context) error
	IsHealthy() bool
	GetDBQueryTimeout() time.Duration
	GetDBExecuteTimeout() time.Duration
}

// Connection owns a single SurrealDB session. When a call fails because the
// socket went away the session is re-established, but the call is not
// repeated: a statement may have reached the server before the reply was lost.
type Connection struct {
	cfg            config.Provider
	backoff        backoff
	healthInterval time.Duration
	log            *slog.Logger
	reconnect      func(context.Context) error

	mu         sync.RWMutex
	db         *surrealdb.DB
	healthy    bool
	reconnects int

	done      chan struct{}
	closeOnce sync.Once
}

var _ DBConnection = (*Connection)(nil)

// ConnectionOption configures a Connection.
type ConnectionOption func(*Connection)

// WithHealthInterval sets how often StartMonitoring probes the server.
func WithHealthInterval(d time.Duration) ConnectionOption {
	return func(c *Connection) {
		if d > 0 {
			c.healthInterval = d
		}
	}
}

// WithLogger sets the logger for connection events.
func WithLogger(l *slog.Logger) ConnectionOption {
	return func(c *Connection) {
		if l != nil {
			c.log = l.With(slog.String("component", "database"))
		}
	}
}

func withBackoff(b backoff) ConnectionOption {
	return func(c *Connection) { c.backoff = b }
}

// NewConnection creates an unconnected Connection; call Connect before use.
func NewConnection(cfg config.Provider, opts ...ConnectionOption) *Connection {
	c := &Connection{
		cfg:            cfg,
		backoff:        defaultBackoff(),
		healthInterval: defaultHealthInterval,
		log:            slog.Default().With(slog.String("component", "database")),
		done:           make(chan struct{}),
	}
	c.reconnect = c.redial
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Connect opens the session. It is a no-op when already connected.
func (c *Connection) Connect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.db != nil {
		return nil
	}
	return c.dialLocked(ctx)
}

// WithConnection runs fn once with the current session. When fn fails with a
// connection error the session is re-established with backoff before the
// error is returned, so the caller's next attempt gets a live session.
func (c *Connection) WithConnection(ctx context.Context, fn func(*surrealdb.DB) error) error {
	db := c.session()
	if db == nil {
		return NewDBError(ErrNotConnected, "database not connected")
	}

	err := fn(db)
	if err == nil || !isConnectionError(err) {
		return err
	}

	c.log.LogAttrs(ctx, slog.LevelWarn, "Lost database connection, reconnecting",
		slog.String("event", "db_reconnect_triggered"),
		slog.String("error", err.Error()),
	)
	if dialErr := c.backoff.retry(ctx, c.log, func() error { return c.reconnect(ctx) }); dialErr != nil {
		c.log.LogAttrs(ctx, slog.LevelError, "Database reconnect failed",
			slog.String("event", "db_reconnect_failure"),
			slog.String("error", dialErr.Error()),
		)
	}
	return err
}

// StartMonitoring probes the server in the background until Close, and
// re-establishes the session when a probe fails.
func (c *Connection) StartMonitoring() {
	go c.monitor()
}

// Close ends monitoring and the session. It is safe to call more than once.
func (c *Connection) Close(ctx context.Context) error {
	c.closeOnce.Do(func() { close(c.done) })

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.db == nil {
		return nil
	}
	err := c.db.Close(ctx)
	c.db = nil
	c.healthy = false
	return err
}

// Shutdown lets dependency containers close the connection.
func (c *Connection) Shutdown(ctx context.Context) error {
	return c.Close(ctx)
}

// IsHealthy reports the result of the last connect or probe.
func (c *Connection) IsHealthy() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.healthy
}

// Reconnects returns how many times the session has been re-established.
func (c *Connection) Reconnects() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.reconnects
}

// GetDBQueryTimeout implements DBConnection.
func (c *Connection) GetDBQueryTimeout() time.Duration { return c.cfg.GetDBQueryTimeout() }

// GetDBExecuteTimeout implements DBConnection.
func (c *Connection) GetDBExecuteTimeout() time.Duration { return c.cfg.GetDBExecuteTimeout() }

func (c *Connection) session() *surrealdb.DB {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.db
}

func (c *Connection) redial(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.dialLocked(ctx); err != nil {
		return err
	}
	c.reconnects++
	return nil
}

// dialLocked replaces the session. c.mu must be held.
func (c *Connection) dialLocked(ctx context.Context) error {
	if c.db != nil {
		_ = c.db.Close(ctx)
		c.db = nil
	}

	attrs := []slog.Attr{
		slog.String("db_url", redactDBURL(c.cfg.GetDBURL())),
		slog.String("namespace", c.cfg.GetDBNs()),
		slog.String("database", c.cfg.GetDBDb()),
	}
	db, err := dial(ctx, c.cfg)
	if err != nil {
		c.healthy = false
		c.log.LogAttrs(ctx, slog.LevelError, "Failed to connect to database",
			append(attrs, slog.String("event", "db_connect_failure"), slog.String("error", err.Error()))...)
		return err
	}

	c.db = db
	c.healthy = true
	c.log.LogAttrs(ctx, slog.LevelDebug, "Database connection established",
		append(attrs, slog.String("event", "db_connect_success"))...)
	return nil
}

func (c *Connection) monitor() {
	ticker := time.NewTicker(c.healthInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.done:
			return
		case <-ticker.C:
			c.probe()
		}
	}
}

func (c *Connection) probe() {
	ctx, cancel := context.WithTimeout(context.Background(), healthCheckTimeout)
	defer cancel()

	err := c.Ping(ctx)
	if err == nil {
		return
	}
	c.log.LogAttrs(ctx, slog.LevelWarn, "Database health check failed, reconnecting",
		slog.String("event", "db_health_check_failure"),
		slog.String("error", err.Error()),
	)
	if err := c.backoff.retry(ctx, c.log, func() error { return c.reconnect(ctx) }); err != nil {
		c.log.LogAttrs(ctx, slog.LevelError, "Database reconnect failed",
			slog.String("event", "db_reconnect_failure"),
			slog.String("error", err.Error()),
		)
	}
}

// Ping asks the server for its version, the cheapest round trip it offers,
// and records the outcome.
func (c *Connection) Ping(ctx context.Context) error {
	db := c.session()
	if db == nil {
		c.setHealthy(false)
		return ErrNotConnected
	}
	if _, err := db.Version(ctx); err != nil {
		c.setHealthy(false)
		return fmt.Errorf("version probe: %w", err)
	}
	c.setHealthy(true)
	return nil
}

func (c *Connection) setHealthy(v bool) {
	c.mu.Lock()
	c.healthy = v
	c.mu.Unlock()
}

// connectionErrorMarkers are message fragments of transport failures. Query
// errors never contain them.
var connectionErrorMarkers = []string{
	"connection refused",
	"connection reset",
	"broken pipe",
	"use of closed network connection",
	"unexpected eof",
	"websocket: close",
}

func isConnectionError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrNotConnected) {
		return true
	}
	msg := strings.ToLower(err.Error())
	for _, m := range connectionErrorMarkers {
		if strings.Contains(msg, m) {
			return true
		}
	}
	return false
}

// redactDBURL hides the password of a database URL for logging.
func redactDBURL(dbURL string) string {
	u, err := url.Parse(dbURL)
	if err != nil {
		return "invalid-url"
	}
	return u.Redacted()
}

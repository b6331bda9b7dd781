// Package storage owns the single database connection shared by the
// pipeline. Queries are serialized; a lost connection is discovered lazily on
// the next query, reopened and the query retried.
package storage

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/bstardust/photo-gps-resolver/internal/logger"
	"github.com/bstardust/photo-gps-resolver/internal/metrics"
	"github.com/bstardust/photo-gps-resolver/pkg/common"
)

// State of the connector
type State int

const (
	Disconnected State = iota
	Connected
)

func (s State) String() string {
	if s == Connected {
		return "connected"
	}
	return "disconnected"
}

// RowsFunc consumes the rows of a query. It may run more than once when the
// query is retried, so it must not accumulate across calls.
type RowsFunc func(Rows) error

// Connector is safe for concurrent use
type Connector struct {
	mu     sync.Mutex
	dial   Dialer
	sess   Session
	retry  RetryConfig
	tunnel *Tunnel
	sleep  func(context.Context, time.Duration) error
}

// Config for a connector backed by pgx
type Config struct {
	DSN    string
	Tunnel *TunnelConfig
	Retry  RetryConfig
}

// New creates a disconnected connector. Nothing is dialed until the first
// query.
func New(cfg Config) (*Connector, error) {
	var tunnel *Tunnel
	if cfg.Tunnel != nil {
		tunnel = NewTunnel(*cfg.Tunnel)
	}

	dial, err := PgxDialer(cfg.DSN, tunnel)
	if err != nil {
		return nil, err
	}

	c := NewWithDialer(dial, cfg.Retry)
	c.tunnel = tunnel
	return c, nil
}

// NewWithDialer creates a connector that opens sessions with dial
func NewWithDialer(dial Dialer, retry RetryConfig) *Connector {
	if retry.MaxAttempts <= 0 {
		retry.MaxAttempts = DefaultRetryConfig().MaxAttempts
	}
	return &Connector{
		dial:  dial,
		retry: retry,
		sleep: sleepContext,
	}
}

// State reports whether a session is currently held
func (c *Connector) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.sess == nil || c.sess.IsClosed() {
		return Disconnected
	}
	return Connected
}

// Execute runs a parameterized query and hands its rows to scan, which may be
// nil for statements without results
func (c *Connector) Execute(ctx context.Context, query string, params []any, scan RowsFunc) error {
	return c.run(ctx, "execute", func(s Session) error {
		rows, err := s.Query(ctx, query, params...)
		if err != nil {
			return err
		}
		defer rows.Close()

		if scan != nil {
			if err := scan(rows); err != nil {
				return err
			}
		} else {
			for rows.Next() {
			}
		}

		rows.Close()
		return rows.Err()
	})
}

// Exec runs a statement and returns the number of affected rows
func (c *Connector) Exec(ctx context.Context, query string, params ...any) (int64, error) {
	var affected int64
	err := c.run(ctx, "exec", func(s Session) error {
		n, err := s.Exec(ctx, query, params...)
		affected = n
		return err
	})
	return affected, err
}

// Add executes a statement and commits it
func (c *Connector) Add(ctx context.Context, query string, params ...any) error {
	return c.run(ctx, "add", func(s Session) error {
		return s.ExecTx(ctx, query, params...)
	})
}

// Close drops the session and the tunnel
func (c *Connector) Close(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.dropLocked(ctx)
	if c.tunnel != nil {
		return c.tunnel.Close()
	}
	return nil
}

func (c *Connector) run(ctx context.Context, op string, fn func(Session) error) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	var err error
	for attempt := 1; attempt <= c.retry.MaxAttempts; attempt++ {
		if attempt > 1 {
			metrics.StorageRetries.Inc()
			logger.Info("Trying to %s the query again (attempt %d/%d)", op, attempt, c.retry.MaxAttempts)
			if serr := c.sleep(ctx, c.retry.backoff(attempt-1)); serr != nil {
				return common.NewStorageError(op, false, serr)
			}
		}

		if err = c.connectLocked(ctx); err != nil {
			if !IsTransient(err) {
				return common.NewStorageError(op, false, err)
			}
			logger.Warn("Cannot connect to the database: %v", err)
			continue
		}

		err = fn(c.sess)
		if err == nil {
			return nil
		}

		if !IsTransient(err) {
			logger.Error("Query failed: %v", err)
			return common.NewStorageError(op, false, err)
		}

		logger.Warn("Lost connection to the database: %v", err)
		c.dropLocked(ctx)
	}

	logger.Error("Ran out of %d attempts to %s the query", c.retry.MaxAttempts, op)
	return common.NewStorageError(op, true, fmt.Errorf("gave up after %d attempts: %w", c.retry.MaxAttempts, err))
}

func (c *Connector) connectLocked(ctx context.Context) error {
	if c.sess != nil && !c.sess.IsClosed() {
		return nil
	}
	c.sess = nil

	logger.Info("Connecting to the database...")
	sess, err := c.dial(ctx)
	if err != nil {
		return err
	}

	metrics.StorageReconnects.Inc()
	c.sess = sess
	logger.Info("Connected to the database")
	return nil
}

func (c *Connector) dropLocked(ctx context.Context) {
	if c.sess == nil {
		return
	}
	if err := c.sess.Close(ctx); err != nil {
		logger.Debug("Closing broken session: %v", err)
	}
	c.sess = nil
}

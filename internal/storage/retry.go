package storage

import (
	"context"
	"errors"
	"io"
	"math"
	"math/rand"
	"net"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
)

// RetryConfig defines how the connector reacts to a lost connection
type RetryConfig struct {
	// MaxAttempts is the total number of tries for one query, first included
	MaxAttempts int

	// InitialBackoff is the pause before the first retry
	InitialBackoff time.Duration

	// MaxBackoff caps the pause between retries
	MaxBackoff time.Duration

	// BackoffFactor multiplies the pause after each retry
	BackoffFactor float64
}

// DefaultRetryConfig returns a default retry configuration
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:    3,
		InitialBackoff: 200 * time.Millisecond,
		MaxBackoff:     2 * time.Second,
		BackoffFactor:  2.0,
	}
}

// ErrSessionClosed is returned by sessions used after their connection died
var ErrSessionClosed = errors.New("database session is closed")

// Postgres SQLSTATEs meaning the server went away rather than the query failed
var transientCodes = map[string]bool{
	"57P01": true, // admin_shutdown
	"57P02": true, // crash_shutdown
	"57P03": true, // cannot_connect_now
}

// IsTransient reports whether err is a connection-level failure worth a
// reconnect, as opposed to an error in the query itself
func IsTransient(err error) bool {
	if err == nil {
		return false
	}

	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return strings.HasPrefix(pgErr.Code, "08") || transientCodes[pgErr.Code]
	}

	if errors.Is(err, ErrSessionClosed) ||
		errors.Is(err, io.EOF) ||
		errors.Is(err, io.ErrUnexpectedEOF) ||
		errors.Is(err, net.ErrClosed) {
		return true
	}

	if pgconn.SafeToRetry(err) {
		return true
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}

	lowerErr := strings.ToLower(err.Error())
	return strings.Contains(lowerErr, "conn closed") ||
		strings.Contains(lowerErr, "connection reset") ||
		strings.Contains(lowerErr, "connection refused") ||
		strings.Contains(lowerErr, "broken pipe") ||
		strings.Contains(lowerErr, "server has gone away") ||
		strings.Contains(lowerErr, "server closed the connection")
}

// backoff calculates the pause before retry number attempt (1-based)
func (rc RetryConfig) backoff(attempt int) time.Duration {
	if rc.InitialBackoff <= 0 {
		return 0
	}

	backoff := float64(rc.InitialBackoff) * math.Pow(rc.BackoffFactor, float64(attempt-1))

	// ±20% jitter
	jitter := (rand.Float64() * 0.4) - 0.2
	backoff = backoff * (1 + jitter)

	if rc.MaxBackoff > 0 && backoff > float64(rc.MaxBackoff) {
		backoff = float64(rc.MaxBackoff)
	}

	return time.Duration(backoff)
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	select {
	case <-time.After(d):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

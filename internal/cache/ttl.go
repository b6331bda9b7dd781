// Package cache memoizes expensive lookups for a bounded time window.
//
// Keys must come from a small bounded set (device names, country and
// language pairs, fixed query identifiers). Entries are never evicted;
// an entry older than its TTL is simply recomputed on the next request.
package cache

import (
	"fmt"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"golang.org/x/sync/singleflight"

	"github.com/bstardust/photo-gps-resolver/internal/logger"
	"github.com/bstardust/photo-gps-resolver/internal/metrics"
)

// Clock returns the current time. Tests inject a fake one.
type Clock func() time.Time

type entry[V any] struct {
	value      V
	computedAt time.Time
}

// TTLCache is safe for concurrent use
type TTLCache[V any] struct {
	name    string
	clock   Clock
	mu      sync.Mutex
	entries map[string]entry[V]
	group   singleflight.Group
}

// New creates a cache. A nil clock means time.Now.
func New[V any](name string, clock Clock) *TTLCache[V] {
	if clock == nil {
		clock = time.Now
	}
	return &TTLCache[V]{
		name:    name,
		clock:   clock,
		entries: make(map[string]entry[V]),
	}
}

// GetOrCompute returns the value cached under key when it is younger than
// ttl. Otherwise compute runs, and on success its result is stored with the
// current time. Concurrent callers missing on the same key share one compute
// call. Errors are returned to every waiting caller and never cached.
func (c *TTLCache[V]) GetOrCompute(key string, ttl time.Duration, compute func() (V, error)) (V, error) {
	if v, ok := c.lookup(key, ttl); ok {
		metrics.CacheRequests.WithLabelValues(c.name, "hit").Inc()
		return v, nil
	}

	res, err, _ := c.group.Do(key, func() (interface{}, error) {
		if v, ok := c.lookup(key, ttl); ok {
			return v, nil
		}

		metrics.CacheRequests.WithLabelValues(c.name, "miss").Inc()
		v, err := compute()
		if err != nil {
			return v, err
		}

		c.mu.Lock()
		c.entries[key] = entry[V]{value: v, computedAt: c.clock()}
		c.mu.Unlock()

		return v, nil
	})
	if err != nil {
		var zero V
		return zero, err
	}

	return res.(V), nil
}

func (c *TTLCache[V]) lookup(key string, ttl time.Duration) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok {
		var zero V
		return zero, false
	}

	age := c.clock().Sub(e.computedAt)
	if age >= ttl {
		var zero V
		return zero, false
	}

	logger.Debug("Cache %s hit for %s, %s until recompute", c.name, key, (ttl - age).Round(time.Second))
	return e.value, true
}

// Invalidate drops the entry for key
func (c *TTLCache[V]) Invalidate(key string) {
	c.mu.Lock()
	delete(c.entries, key)
	c.mu.Unlock()
}

// Key builds a composite key from an operation name and its arguments.
// The arguments are JSON encoded as one array, so strings containing
// separators can't collide with a different argument list.
func Key(op string, args ...interface{}) string {
	data, err := json.Marshal(args)
	if err != nil {
		return op + "|" + fmt.Sprint(args...)
	}
	return op + "|" + string(data)
}

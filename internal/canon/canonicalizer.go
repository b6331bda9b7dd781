// Package canon replaces vendor device strings with their canonical names.
package canon

import (
	"context"
	"strings"

	"github.com/bstardust/photo-gps-resolver/internal/logger"
	"github.com/bstardust/photo-gps-resolver/internal/metrics"
	"github.com/bstardust/photo-gps-resolver/internal/storage"
)

const lookupQuery = `SELECT canonical_tag FROM device_aliases WHERE raw_tag = $1 LIMIT 1`

// Querier is the part of the storage connector the canonicalizer needs
type Querier interface {
	Execute(ctx context.Context, query string, params []any, scan storage.RowsFunc) error
}

// Canonicalizer looks device strings up in the alias table
type Canonicalizer struct {
	db Querier
}

// New creates a canonicalizer reading aliases through db
func New(db Querier) *Canonicalizer {
	return &Canonicalizer{db: db}
}

// Canonicalize returns tags in the same order with known aliases replaced.
// Empty entries pass through. A failed lookup keeps the original string.
func (c *Canonicalizer) Canonicalize(ctx context.Context, tags ...string) []string {
	out := make([]string, len(tags))

	for i, tag := range tags {
		tag = strings.TrimSpace(tag)
		out[i] = tag
		if tag == "" {
			continue
		}

		logger.Debug("Looking up alias for %q", tag)
		canonical, found, err := c.lookup(ctx, tag)
		if err != nil {
			metrics.AliasLookupFailures.Inc()
			logger.Error("Can't check the tag %q because of a database error: %v", tag, err)
			logger.Warn("Tag %q will stay as is", tag)
			continue
		}
		if found {
			logger.Info("Tag %q canonicalized to %q", tag, canonical)
			out[i] = canonical
		}
	}

	return out
}

func (c *Canonicalizer) lookup(ctx context.Context, tag string) (string, bool, error) {
	var (
		canonical string
		found     bool
	)

	err := c.db.Execute(ctx, lookupQuery, []any{tag}, func(rows storage.Rows) error {
		found = false
		for rows.Next() {
			if err := rows.Scan(&canonical); err != nil {
				return err
			}
			found = true
		}
		return nil
	})
	if err != nil {
		return "", false, err
	}

	return canonical, found && canonical != "", nil
}

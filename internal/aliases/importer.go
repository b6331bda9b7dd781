// Package aliases loads device alias tables into storage.
package aliases

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"github.com/goccy/go-json"

	"github.com/bstardust/photo-gps-resolver/internal/logger"
	"github.com/bstardust/photo-gps-resolver/pkg/models"
	"github.com/bstardust/photo-gps-resolver/pkg/s3client"
)

const upsertQuery = `INSERT INTO device_aliases (raw_tag, canonical_tag) VALUES ($1, $2)
	ON CONFLICT (raw_tag) DO UPDATE SET canonical_tag = EXCLUDED.canonical_tag`

var (
	// ErrSourceNotFound is returned when the alias object does not exist
	ErrSourceNotFound = errors.New("alias source not found")
	// ErrSourceDenied is returned when the object store rejects the credentials
	ErrSourceDenied = errors.New("access to alias source denied")
)

// Store is the part of the storage connector the importer needs
type Store interface {
	Add(ctx context.Context, query string, params ...any) error
}

// Opener reads an object from a bucket
type Opener interface {
	Open(ctx context.Context, bucket, key string) (io.ReadCloser, error)
}

// Importer upserts alias tables
type Importer struct {
	db      Store
	objects Opener
}

// NewImporter creates an importer. objects may be nil when only local files
// are imported.
func NewImporter(db Store, objects Opener) *Importer {
	return &Importer{db: db, objects: objects}
}

// Import reads a JSON object mapping raw tags to canonical names from a local
// path or an s3://bucket/key URL and upserts every pair. It returns the number
// of pairs written before the first failure.
func (i *Importer) Import(ctx context.Context, source string) (int, error) {
	r, err := i.open(ctx, source)
	if err != nil {
		return 0, err
	}
	defer r.Close()

	aliases, err := Parse(r)
	if err != nil {
		return 0, fmt.Errorf("failed to parse %s: %w", source, err)
	}

	logger.Info("Importing %d aliases from %s", len(aliases), source)

	for n, a := range aliases {
		if err := i.db.Add(ctx, upsertQuery, a.RawTag, a.CanonicalTag); err != nil {
			return n, fmt.Errorf("failed to import alias %q: %w", a.RawTag, err)
		}
		logger.Debug("%q -> %q", a.RawTag, a.CanonicalTag)
	}

	return len(aliases), nil
}

func (i *Importer) open(ctx context.Context, source string) (io.ReadCloser, error) {
	if bucket, key, ok := s3client.ParseURL(source); ok {
		if i.objects == nil {
			return nil, fmt.Errorf("S3 is not configured, can't read %s", source)
		}
		r, err := i.objects.Open(ctx, bucket, key)
		switch {
		case err == nil:
			return r, nil
		case s3client.IsNotFoundError(err):
			return nil, fmt.Errorf("%w: %s (%s)", ErrSourceNotFound, source, s3client.FormatError(err))
		case s3client.IsAuthError(err):
			return nil, fmt.Errorf("%w: %s (%s)", ErrSourceDenied, source, s3client.FormatError(err))
		}
		return nil, fmt.Errorf("failed to read %s: %w", source, err)
	}

	f, err := os.Open(source)
	if err != nil {
		return nil, fmt.Errorf("failed to open alias file: %w", err)
	}
	return f, nil
}

// Parse decodes {"raw tag": "canonical name", ...}. Blank keys or values are
// skipped and the result is ordered by raw tag.
func Parse(r io.Reader) ([]models.DeviceAlias, error) {
	var table map[string]string
	if err := json.NewDecoder(r).Decode(&table); err != nil {
		return nil, err
	}

	aliases := make([]models.DeviceAlias, 0, len(table))
	for raw, canonical := range table {
		raw, canonical = strings.TrimSpace(raw), strings.TrimSpace(canonical)
		if raw == "" || canonical == "" {
			logger.Warn("Skipping incomplete alias %q -> %q", raw, canonical)
			continue
		}
		aliases = append(aliases, models.DeviceAlias{RawTag: raw, CanonicalTag: canonical})
	}

	sort.Slice(aliases, func(a, b int) bool {
		return aliases[a].RawTag < aliases[b].RawTag
	})
	return aliases, nil
}

// Package stats answers aggregation questions over the recorded queries:
// the most popular devices and countries and how many other users share a
// camera, lens or country. Results are cached for a short window.
package stats

import (
	"context"
	"fmt"
	"time"

	"github.com/bstardust/photo-gps-resolver/internal/cache"
	"github.com/bstardust/photo-gps-resolver/internal/logger"
	"github.com/bstardust/photo-gps-resolver/internal/storage"
	"github.com/bstardust/photo-gps-resolver/pkg/models"
)

const (
	DefaultTTL      = 5 * time.Minute
	DefaultTopLimit = 30
)

// Column of query_records that can be aggregated
type Column string

const (
	ColumnCamera    Column = "camera_name"
	ColumnLens      Column = "lens_name"
	ColumnCountryEn Column = "country_en"
	ColumnCountryRu Column = "country_ru"
)

// Valid reports whether c is one of the aggregatable columns
func (c Column) Valid() bool {
	switch c {
	case ColumnCamera, ColumnLens, ColumnCountryEn, ColumnCountryRu:
		return true
	}
	return false
}

// CountryColumn returns the country column matching the user language
func CountryColumn(lang models.Lang) Column {
	if lang == models.LangRussian {
		return ColumnCountryRu
	}
	return ColumnCountryEn
}

// Entry is one line of a roster
type Entry struct {
	Rank  int    `json:"rank"`
	Value string `json:"value"`
	Count int64  `json:"count"`
}

// Roster is a 1-indexed list ordered by descending count
type Roster []Entry

// Empty reports that nothing has been recorded yet
func (r Roster) Empty() bool {
	return len(r) == 0
}

// Store is the part of the storage connector the engine needs
type Store interface {
	Execute(ctx context.Context, query string, params []any, scan storage.RowsFunc) error
	Add(ctx context.Context, query string, params ...any) error
}

// Config for the engine
type Config struct {
	TTL         time.Duration
	TopLimit    int
	AdminChatID int64
	Clock       cache.Clock
}

// Engine is safe for concurrent use
type Engine struct {
	db          Store
	ttl         time.Duration
	limit       int
	adminChatID int64
	clock       cache.Clock

	rosters *cache.TTLCache[Roster]
	counts  *cache.TTLCache[int64]
}

// NewEngine creates an engine reading through db
func NewEngine(db Store, cfg Config) *Engine {
	if cfg.TTL <= 0 {
		cfg.TTL = DefaultTTL
	}
	if cfg.TopLimit <= 0 {
		cfg.TopLimit = DefaultTopLimit
	}
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}

	return &Engine{
		db:          db,
		ttl:         cfg.TTL,
		limit:       cfg.TopLimit,
		adminChatID: cfg.AdminChatID,
		clock:       cfg.Clock,
		rosters:     cache.New[Roster]("most_popular", cfg.Clock),
		counts:      cache.New[int64]("count_sharing", cfg.Clock),
	}
}

// MostPopular returns up to limit most frequent non-null values of column.
// A limit of zero means the configured default. An empty roster is not an
// error.
func (e *Engine) MostPopular(ctx context.Context, column Column, limit int) (Roster, error) {
	if !column.Valid() {
		return nil, fmt.Errorf("column %q can't be aggregated", column)
	}
	if limit <= 0 {
		limit = e.limit
	}

	key := cache.Key("most_popular", string(column), limit)
	return e.rosters.GetOrCompute(key, e.ttl, func() (Roster, error) {
		return e.mostPopular(ctx, column, limit)
	})
}

// TopCountries returns the country roster in the user language
func (e *Engine) TopCountries(ctx context.Context, lang models.Lang, limit int) (Roster, error) {
	return e.MostPopular(ctx, CountryColumn(lang), limit)
}

func (e *Engine) mostPopular(ctx context.Context, column Column, limit int) (Roster, error) {
	query := fmt.Sprintf(
		`SELECT %[1]s, count(*) AS n FROM query_records WHERE %[1]s IS NOT NULL
		 GROUP BY %[1]s ORDER BY n DESC, %[1]s LIMIT $1`, column)

	var roster Roster
	err := e.db.Execute(ctx, query, []any{limit}, func(rows storage.Rows) error {
		roster = roster[:0]
		for rows.Next() {
			var (
				value string
				count int64
			)
			if err := rows.Scan(&value, &count); err != nil {
				return err
			}
			if value == "" {
				continue
			}
			roster = append(roster, Entry{Rank: len(roster) + 1, Value: value, Count: count})
		}
		return rows.Err()
	})
	if err != nil {
		return nil, err
	}

	logger.Debug("Most popular %s: %d entries", column, len(roster))
	return roster, nil
}

// CountSharingFeature returns how many users other than the requester have
// recorded value in column. Zero when nobody else has.
func (e *Engine) CountSharingFeature(ctx context.Context, value string, column Column) (int64, error) {
	if !column.Valid() {
		return 0, fmt.Errorf("column %q can't be aggregated", column)
	}
	if value == "" {
		return 0, nil
	}

	key := cache.Key("count_sharing", string(column), value)
	return e.counts.GetOrCompute(key, e.ttl, func() (int64, error) {
		return e.countSharing(ctx, value, column)
	})
}

func (e *Engine) countSharing(ctx context.Context, value string, column Column) (int64, error) {
	query := fmt.Sprintf(`SELECT count(DISTINCT chat_id) FROM query_records WHERE %s = $1`, column)

	var users int64
	err := e.db.Execute(ctx, query, []any{value}, func(rows storage.Rows) error {
		users = 0
		for rows.Next() {
			if err := rows.Scan(&users); err != nil {
				return err
			}
		}
		return rows.Err()
	})
	if err != nil {
		return 0, err
	}

	if users <= 1 {
		return 0, nil
	}
	return users - 1, nil
}

// Forget drops the cached sharing counts for the camera, lens and country
// of meta so the next request sees a newly saved query.
func (e *Engine) Forget(meta *models.ResolvedMetadata) {
	for column, value := range map[Column]string{
		ColumnCamera:    meta.Camera,
		ColumnLens:      meta.Lens,
		ColumnCountryEn: meta.CountryIn(models.LangEnglish),
	} {
		if value != "" {
			e.counts.Invalidate(cache.Key("count_sharing", string(column), value))
		}
	}
}

// Shared holds the number of other users sharing each feature of a photo
type Shared struct {
	Camera  int64 `json:"camera"`
	Lens    int64 `json:"lens"`
	Country int64 `json:"country"`
}

// SharedFeatures counts the users sharing the camera, lens and country of
// meta. Countries are compared by their English name so the count does not
// depend on the requester language. The first storage error is returned with
// whatever was counted before it.
func (e *Engine) SharedFeatures(ctx context.Context, meta *models.ResolvedMetadata) (Shared, error) {
	var (
		shared Shared
		err    error
	)

	if shared.Camera, err = e.CountSharingFeature(ctx, meta.Camera, ColumnCamera); err != nil {
		return shared, err
	}
	if shared.Lens, err = e.CountSharingFeature(ctx, meta.Lens, ColumnLens); err != nil {
		return shared, err
	}
	if shared.Country, err = e.CountSharingFeature(ctx, meta.CountryIn(models.LangEnglish), ColumnCountryEn); err != nil {
		return shared, err
	}

	return shared, nil
}

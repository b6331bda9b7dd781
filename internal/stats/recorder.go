package stats

import (
	"context"
	"time"

	"github.com/bstardust/photo-gps-resolver/internal/cache"
	"github.com/bstardust/photo-gps-resolver/internal/logger"
	"github.com/bstardust/photo-gps-resolver/pkg/models"
)

const insertQuery = `INSERT INTO query_records
	(chat_id, camera_name, lens_name, country_en, country_ru, captured_at)
	VALUES ($1, $2, $3, $4, $5, $6)`

// Recorder persists one QueryRecord per processed photo
type Recorder struct {
	db     Store
	clock  cache.Clock
	engine *Engine
}

// NewRecorder creates a recorder writing through db. A nil clock means
// time.Now. When engine is set, its cached sharing counts for a saved
// photo are dropped.
func NewRecorder(db Store, clock cache.Clock, engine *Engine) *Recorder {
	if clock == nil {
		clock = time.Now
	}
	return &Recorder{db: db, clock: clock, engine: engine}
}

// Save writes the camera, lens and country of meta. Coordinates and the
// address are never stored.
func (r *Recorder) Save(ctx context.Context, meta *models.ResolvedMetadata) error {
	rec := models.NewQueryRecord(meta, r.clock().UTC())

	if err := r.db.Add(ctx, insertQuery,
		rec.ChatID, rec.CameraName, rec.LensName, rec.CountryEn, rec.CountryRu, rec.CapturedAt,
	); err != nil {
		logger.Error("Failed to save query of chat %d: %v", meta.ChatID, err)
		return err
	}

	if r.engine != nil {
		r.engine.Forget(meta)
	}

	logger.Debug("Saved query of chat %d", meta.ChatID)
	return nil
}

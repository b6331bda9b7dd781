package cli

import (
	"context"
	"fmt"
	"io"

	"github.com/goccy/go-json"

	"github.com/bstardust/photo-gps-resolver/internal/canon"
	"github.com/bstardust/photo-gps-resolver/internal/config"
	"github.com/bstardust/photo-gps-resolver/internal/geocode"
	"github.com/bstardust/photo-gps-resolver/internal/logger"
	"github.com/bstardust/photo-gps-resolver/internal/metadata"
	"github.com/bstardust/photo-gps-resolver/internal/pipeline"
	"github.com/bstardust/photo-gps-resolver/internal/stats"
	"github.com/bstardust/photo-gps-resolver/internal/storage"
)

// app holds the wired components shared by the commands
type app struct {
	db        *storage.Connector
	engine    *stats.Engine
	recorder  *stats.Recorder
	extractor *metadata.Extractor
}

func newApp(cfg *config.Config) (*app, error) {
	db, err := storage.New(cfg.StorageConfig())
	if err != nil {
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}

	engine := stats.NewEngine(db, stats.Config{
		TTL:         cfg.Cache.TTL,
		TopLimit:    cfg.Stats.TopLimit,
		AdminChatID: cfg.Stats.AdminChatID,
	})

	return &app{
		db:        db,
		engine:    engine,
		recorder:  stats.NewRecorder(db, nil, engine),
		extractor: metadata.NewExtractor(canon.New(db), geocode.New(cfg.GeocodeConfig())),
	}, nil
}

// processor returns the per-photo pipeline. Without save nothing is written
// and no sharing counts are reported.
func (a *app) processor(save bool) *pipeline.Processor {
	if !save {
		return pipeline.NewProcessor(a.extractor, nil, nil)
	}
	return pipeline.NewProcessor(a.extractor, a.recorder, a.engine)
}

func (a *app) Close(ctx context.Context) {
	if err := a.db.Close(ctx); err != nil {
		logger.Warn("Failed to close database connection: %v", err)
	}
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

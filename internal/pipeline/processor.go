// Package pipeline runs one photo through extraction, persistence and the
// sharing statistics.
package pipeline

import (
	"context"
	"fmt"
	"io"

	"github.com/bstardust/photo-gps-resolver/internal/logger"
	"github.com/bstardust/photo-gps-resolver/internal/stats"
	"github.com/bstardust/photo-gps-resolver/pkg/models"
)

// Extractor resolves the metadata of one photo
type Extractor interface {
	ExtractFromReader(ctx context.Context, r io.Reader, chatID int64, lang models.Lang) (*models.ResolvedMetadata, error)
}

// Saver persists a processed photo
type Saver interface {
	Save(ctx context.Context, meta *models.ResolvedMetadata) error
}

// Sharer counts the users sharing the features of a photo
type Sharer interface {
	SharedFeatures(ctx context.Context, meta *models.ResolvedMetadata) (stats.Shared, error)
}

// Request is one photo submitted by a user
type Request struct {
	ChatID int64
	Lang   models.Lang
	Photo  io.Reader
	// Name identifies the photo in logs and results
	Name string
}

// Result is what the transport renders
type Result struct {
	Name     string                   `json:"name,omitempty"`
	Metadata *models.ResolvedMetadata `json:"metadata,omitempty"`
	Shared   *stats.Shared            `json:"shared,omitempty"`
	Saved    bool                     `json:"saved"`

	// Warnings lists enrichment steps that failed without failing the photo
	Warnings []string `json:"warnings,omitempty"`
	Error    string   `json:"error,omitempty"`
}

// Processor is safe for concurrent use when its collaborators are
type Processor struct {
	extractor Extractor
	saver     Saver
	sharer    Sharer
}

// NewProcessor creates a processor. A nil saver skips persistence and a nil
// sharer skips the sharing counts.
func NewProcessor(extractor Extractor, saver Saver, sharer Sharer) *Processor {
	return &Processor{
		extractor: extractor,
		saver:     saver,
		sharer:    sharer,
	}
}

// Process extracts the photo metadata, records the query and counts the
// users sharing its features. Only extraction errors fail the call; storage
// failures after a successful extraction are reported as warnings on a
// partial result.
//
// Sharing counts exclude the requester's own saved row, so they are only
// computed once the query has been saved.
func (p *Processor) Process(ctx context.Context, req Request) (*Result, error) {
	meta, err := p.extractor.ExtractFromReader(ctx, req.Photo, req.ChatID, req.Lang)
	if err != nil {
		return nil, err
	}

	res := &Result{Name: req.Name, Metadata: meta}

	if p.saver != nil {
		if err := p.saver.Save(ctx, meta); err != nil {
			res.Warnings = append(res.Warnings, fmt.Sprintf("query not saved: %v", err))
		} else {
			res.Saved = true
		}
	}

	if p.sharer != nil && res.Saved {
		shared, err := p.sharer.SharedFeatures(ctx, meta)
		if err != nil {
			res.Warnings = append(res.Warnings, fmt.Sprintf("sharing statistics unavailable: %v", err))
		} else {
			res.Shared = &shared
		}
	}

	if len(res.Warnings) > 0 {
		logger.Warn("Photo %s of chat %d processed with warnings: %v", req.Name, req.ChatID, res.Warnings)
	}
	return res, nil
}

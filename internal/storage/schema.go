package storage

import (
	"context"
	"fmt"

	"github.com/bstardust/photo-gps-resolver/internal/logger"
)

var schema = []string{
	`CREATE TABLE IF NOT EXISTS device_aliases (
		raw_tag       TEXT PRIMARY KEY,
		canonical_tag TEXT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS query_records (
		id          BIGSERIAL PRIMARY KEY,
		chat_id     BIGINT NOT NULL,
		camera_name TEXT NULL,
		lens_name   TEXT NULL,
		country_en  TEXT NULL,
		country_ru  TEXT NULL,
		captured_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE INDEX IF NOT EXISTS query_records_captured_at_idx ON query_records (captured_at)`,
	`CREATE INDEX IF NOT EXISTS query_records_chat_id_idx ON query_records (chat_id)`,
}

// EnsureSchema creates the alias and statistics tables when missing
func EnsureSchema(ctx context.Context, c *Connector) error {
	for _, stmt := range schema {
		if _, err := c.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("failed to apply schema: %w", err)
		}
	}
	logger.Info("Database schema is up to date")
	return nil
}

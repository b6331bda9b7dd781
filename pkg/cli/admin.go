package cli

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/bstardust/photo-gps-resolver/internal/aliases"
	"github.com/bstardust/photo-gps-resolver/internal/config"
	"github.com/bstardust/photo-gps-resolver/internal/logger"
	"github.com/bstardust/photo-gps-resolver/internal/storage"
	"github.com/bstardust/photo-gps-resolver/pkg/s3client"
)

func newStatsCommand(cfg *config.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show photo, user and camera totals",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cfg)
			if err != nil {
				return err
			}
			defer a.Close(context.Background())

			s, err := a.engine.AdminStats(cmd.Context())
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), s)
		},
	}
}

func newSchemaCommand(cfg *config.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "schema",
		Short: "Create the database tables if they are missing",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := storage.New(cfg.StorageConfig())
			if err != nil {
				return err
			}
			defer db.Close(context.Background())

			return storage.EnsureSchema(cmd.Context(), db)
		},
	}
}

func newAliasesCommand(cfg *config.Config) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "aliases",
		Short: "Manage device aliases",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "import <aliases.json | s3://bucket/key>",
		Short: "Upsert a JSON object of raw device tags to canonical names",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := storage.New(cfg.StorageConfig())
			if err != nil {
				return err
			}
			defer db.Close(context.Background())

			var objects aliases.Opener
			if cfg.S3Enabled() {
				client, err := s3client.New(cfg.S3ClientConfig())
				if err != nil {
					return fmt.Errorf("failed to initialize S3 client: %w", err)
				}
				objects = client
			}

			n, err := aliases.NewImporter(db, objects).Import(cmd.Context(), args[0])
			if err != nil {
				switch {
				case errors.Is(err, aliases.ErrSourceNotFound):
					logger.Error("Alias import failed: check the bucket and key of %s", args[0])
				case errors.Is(err, aliases.ErrSourceDenied):
					logger.Error("Alias import failed: check s3.access_key and s3.secret_key")
				default:
					logger.Error("Alias import failed: %s", s3client.FormatError(err))
				}
				return fmt.Errorf("imported %d aliases before the failure: %w", n, err)
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Imported %d aliases\n", n)
			return nil
		},
	})

	return cmd
}

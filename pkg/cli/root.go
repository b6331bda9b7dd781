// pkg/cli/root.go
package cli

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/bstardust/photo-gps-resolver/internal/config"
	"github.com/bstardust/photo-gps-resolver/internal/logger"
	"github.com/bstardust/photo-gps-resolver/internal/metrics"
)

type globalFlags struct {
	configPath  string
	logLevel    string
	logFormat   string
	metricsAddr string
}

func Execute() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle interruption signals
	signalCh := make(chan os.Signal, 1)
	signal.Notify(signalCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-signalCh
		logger.Info("Received interrupt signal, shutting down gracefully...")
		cancel()
	}()

	if err := NewRootCommand().ExecuteContext(ctx); err != nil {
		logger.Error("Error executing command: %v", err)
		os.Exit(1)
	}
}

// NewRootCommand builds the command tree
func NewRootCommand() *cobra.Command {
	flags := &globalFlags{}
	cfg := config.New()

	rootCmd := &cobra.Command{
		Use:   "photogps",
		Short: "Resolve photo EXIF metadata into locations and device statistics",
		Long: `Reads camera, lens and GPS data from photos, resolves coordinates to an
address and country, canonicalizes device names and keeps per-device
statistics in PostgreSQL.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			loaded, err := config.Load(flags.configPath)
			if err != nil {
				return err
			}
			applyFlags(cmd, flags, loaded)
			if err := loaded.Validate(); err != nil {
				return err
			}
			*cfg = *loaded

			logger.SetFormat(cfg.Log.Format)
			logger.SetLevel(cfg.Log.Level)

			if cfg.Metrics.Addr != "" {
				serveMetrics(cmd.Context(), cfg.Metrics.Addr)
			}
			return nil
		},
	}

	// Global flags
	rootCmd.PersistentFlags().StringVar(&flags.configPath, "config", "", "Path to a YAML, TOML or JSON config file")
	rootCmd.PersistentFlags().StringVar(&flags.logLevel, "log-level", "info", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&flags.logFormat, "log-format", "json", "Log format (json, console)")
	rootCmd.PersistentFlags().StringVar(&flags.metricsAddr, "metrics-addr", "", "Serve Prometheus metrics on this address, e.g. :9090")

	// Add commands
	rootCmd.AddCommand(
		newInspectCommand(cfg),
		newTopCommand(cfg),
		newStatsCommand(cfg),
		newAliasesCommand(cfg),
		newSchemaCommand(cfg),
	)

	return rootCmd
}

// applyFlags lets explicitly set flags win over file and environment
func applyFlags(cmd *cobra.Command, flags *globalFlags, cfg *config.Config) {
	pf := cmd.Flags()
	if pf.Changed("log-level") {
		cfg.Log.Level = flags.logLevel
	}
	if pf.Changed("log-format") {
		cfg.Log.Format = flags.logFormat
	}
	if pf.Changed("metrics-addr") {
		cfg.Metrics.Addr = flags.metricsAddr
	}
}

func serveMetrics(ctx context.Context, addr string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		logger.Info("Serving metrics on %s", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("Metrics server failed: %v", err)
		}
	}()

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()
}

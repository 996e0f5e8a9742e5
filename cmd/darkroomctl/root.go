package main

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/DukeRupert/darkroom/internal"
	"github.com/DukeRupert/darkroom/internal/repository"
	"github.com/DukeRupert/darkroom/internal/storage"
)

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:          "darkroomctl",
	Short:        "Maintenance tasks for the darkroom photo gallery",
	SilenceUsage: true,
}

var verbose bool

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "log at debug level to stderr")
}

// commandLogger logs to stderr so stdout stays machine readable.
func commandLogger(cmd *cobra.Command, cfg *internal.Config) *slog.Logger {
	level := "warn"
	if verbose {
		level = "debug"
	}
	return internal.NewLogger(cmd.ErrOrStderr(), cfg.Env, level)
}

func loadConfig() (*internal.Config, error) {
	cfg, err := internal.NewConfig()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	return cfg, nil
}

func openRouter(cfg *internal.Config, logger *slog.Logger) (*storage.Router, error) {
	router, err := storage.NewRouterFromConfig(cfg.StorageConfig(nil), logger)
	if err != nil {
		return nil, fmt.Errorf("open storage: %w", err)
	}
	return router, nil
}

func openDatabase(ctx context.Context, cfg *internal.Config) (*sql.DB, error) {
	if !cfg.HasDatabase() {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}
	db, err := repository.Open(ctx, cfg.DatabaseUrl)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := internal.RunMigrations(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrate database: %w", err)
	}
	return db, nil
}

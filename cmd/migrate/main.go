package main

import (
	"context"
	"fmt"
	"os"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"station-climate/internal/config"
	"station-climate/internal/repository"
	"station-climate/pkg/database"
	"station-climate/pkg/metrics"
)

var version = "1.0.0"

func newMigrateCmd() *cobra.Command {
	var statusOnly bool

	cmd := &cobra.Command{
		Use:           "migrate",
		Short:         "Create or upgrade the weather store schema",
		Version:       version,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runMigrate(cmd.Context(), cmd, statusOnly)
		},
	}
	cmd.Flags().BoolVar(&statusOnly, "status", false, "print the current schema version without migrating")

	return cmd
}

func runMigrate(ctx context.Context, cmd *cobra.Command, statusOnly bool) error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	logger := cfg.Logging.NewLogger("weather-migrate", version)
	logger.SetOutput(cmd.ErrOrStderr())
	defer func() { _ = logger.Sync() }()

	collector := metrics.NewCollectorWithRegistry("weather_migrate", prometheus.NewRegistry())

	db, err := database.Open(ctx, cfg.Database.ConnectionConfig(), logger, collector)
	if err != nil {
		return fmt.Errorf("connect to database: %w", err)
	}
	defer db.Close()

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Connected to %s database\n", db.DriverName())

	repo := repository.NewWeatherRepository(db, logger, collector)

	before, err := repo.SchemaVersion(ctx)
	if err != nil {
		return fmt.Errorf("read schema version: %w", err)
	}
	if statusOnly {
		fmt.Fprintf(out, "Schema version: %d\n", before)
		return nil
	}

	if err := repo.Migrate(ctx); err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}

	after, err := repo.SchemaVersion(ctx)
	if err != nil {
		return fmt.Errorf("read schema version: %w", err)
	}

	if after == before {
		fmt.Fprintf(out, "Schema already at version %d\n", after)
	} else {
		fmt.Fprintf(out, "Migrated schema from version %d to %d\n", before, after)
	}
	return nil
}

func main() {
	if err := newMigrateCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

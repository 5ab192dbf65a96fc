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
	"station-climate/pkg/logging"
	"station-climate/pkg/metrics"
)

var version = "1.0.0"

// app carries what every subcommand needs once configuration is loaded
type app struct {
	cfg     *config.Config
	logger  *logging.StructuredLogger
	metrics *metrics.Collector
}

func newRootCmd() *cobra.Command {
	a := &app{}

	root := &cobra.Command{
		Use:           "ingester",
		Short:         "Load station weather files and derive annual statistics",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.LoadConfig()
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			if err := cfg.Validate(); err != nil {
				return fmt.Errorf("invalid configuration: %w", err)
			}
			a.cfg = cfg

			// stdout is reserved for the run summary
			a.logger = cfg.Logging.NewLogger("weather-ingester", version)
			a.logger.SetOutput(cmd.ErrOrStderr())

			// A batch process has no scrape endpoint; keep its collectors off the default registry.
			a.metrics = metrics.NewCollectorWithRegistry("weather_ingester", prometheus.NewRegistry())
			return nil
		},
		PersistentPostRun: func(*cobra.Command, []string) {
			if a.logger != nil {
				_ = a.logger.Sync()
			}
		},
	}

	root.AddCommand(newIngestCmd(a), newAggregateCmd(a))
	return root
}

// openRepository connects to the configured store, applying migrations
// first when database.auto_migrate is set. The returned func closes the
// connection.
func (a *app) openRepository(ctx context.Context) (repository.WeatherRepository, func(), error) {
	db, err := database.Open(ctx, a.cfg.Database.ConnectionConfig(), a.logger, a.metrics)
	if err != nil {
		return nil, nil, fmt.Errorf("connect to database: %w", err)
	}
	closeDB := func() { _ = db.Close() }

	repo := repository.NewWeatherRepository(db, a.logger, a.metrics)
	if a.cfg.Database.AutoMigrate {
		if err := repo.Migrate(ctx); err != nil {
			closeDB()
			return nil, nil, fmt.Errorf("migrate schema: %w", err)
		}
	}

	return repo, closeDB, nil
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

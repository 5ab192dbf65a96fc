package main

import (
	"errors"
	"fmt"
	"io"
	"os/signal"
	"sort"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"station-climate/internal/models"
	"station-climate/internal/repository"
	"station-climate/internal/services"
	"station-climate/pkg/logging"
)

// maxListedFailures caps the failed files printed in the run summary
const maxListedFailures = 10

type ingestFlags struct {
	batchSize int
	workers   int
	dryRun    bool
	aggregate bool
}

func newIngestCmd(a *app) *cobra.Command {
	var flags ingestFlags

	cmd := &cobra.Command{
		Use:   "ingest [path]",
		Short: "Ingest a station file or every .txt file in a directory",
		Long: `Ingest daily station records into the weather store.

Each file is named <station_id>.txt and holds one tab-separated line per day:
date (YYYYMMDD), max temp, min temp, precipitation. -9999 marks a missing value.
Records already stored for the same station and date are skipped, so re-running
an ingestion is safe.

When path is omitted the configured ingestion.data_dir is used.

Examples:
  # Ingest the default data directory and refresh annual statistics
  ingester ingest --aggregate

  # Validate a single file without writing anything
  ingester ingest wx_data/USC00110072.txt --dry-run

  # Four files at a time, 5000 records per transaction
  ingester ingest ./wx_data --workers 4 --batch-size 5000`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runIngest(cmd, args, flags)
		},
	}

	f := cmd.Flags()
	f.IntVar(&flags.batchSize, "batch-size", 0, "records per insert transaction (overrides config)")
	f.IntVar(&flags.workers, "workers", 0, "files ingested concurrently (overrides config)")
	f.BoolVar(&flags.dryRun, "dry-run", false, "parse and validate only, write nothing")
	f.BoolVar(&flags.aggregate, "aggregate", false, "recompute annual statistics after ingestion")

	return cmd
}

func (a *app) runIngest(cmd *cobra.Command, args []string, flags ingestFlags) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if flags.dryRun && flags.aggregate {
		return errors.New("--aggregate cannot be combined with --dry-run")
	}

	opts := services.IngestionOptions{
		BatchSize: a.cfg.Ingestion.BatchSize,
		Workers:   a.cfg.Ingestion.Workers,
		DryRun:    flags.dryRun,
	}
	if cmd.Flags().Changed("batch-size") {
		if flags.batchSize < 1 {
			return fmt.Errorf("--batch-size must be >= 1, got %d", flags.batchSize)
		}
		opts.BatchSize = flags.batchSize
	}
	if cmd.Flags().Changed("workers") {
		if flags.workers < 1 {
			return fmt.Errorf("--workers must be >= 1, got %d", flags.workers)
		}
		opts.Workers = flags.workers
	}

	path := a.cfg.Ingestion.DataDir
	if len(args) == 1 {
		path = args[0]
	}

	// A dry run never touches the store, so it works without one.
	var repo repository.WeatherRepository
	if !opts.DryRun {
		r, closeDB, err := a.openRepository(ctx)
		if err != nil {
			return err
		}
		defer closeDB()
		repo = r
	}

	ingestion := services.NewIngestionService(repo, a.logger, a.metrics, opts)
	effective := ingestion.Options()
	a.logger.Info(ctx, "[INGESTER_START] Starting weather data ingestion", logging.Fields{
		"version":    version,
		"path":       path,
		"batch_size": effective.BatchSize,
		"workers":    effective.Workers,
		"dry_run":    effective.DryRun,
		"aggregate":  flags.aggregate,
	})

	summary, err := ingestion.IngestPath(ctx, path)
	if summary != nil {
		printRunSummary(cmd.OutOrStdout(), summary)
	}
	if err != nil {
		return fmt.Errorf("ingestion failed: %w", err)
	}

	if flags.aggregate {
		if err := a.aggregate(ctx, repo, cmd.OutOrStdout()); err != nil {
			return err
		}
	}

	a.logger.Info(ctx, "[INGESTER_COMPLETE] Ingestion finished", logging.Fields{
		"run_id":           summary.RunID,
		"files_failed":     summary.FilesFailed,
		"records_inserted": summary.RecordsInserted,
		"duration_seconds": summary.Duration().Seconds(),
	})

	if summary.FilesFailed > 0 {
		return fmt.Errorf("%d of %d files failed", summary.FilesFailed, summary.FilesProcessed)
	}
	return nil
}

func printRunSummary(w io.Writer, s *models.RunSummary) {
	title := "INGESTION COMPLETE"
	if s.DryRun {
		title += " (DRY RUN)"
	}

	fmt.Fprintln(w, strings.Repeat("=", 80))
	fmt.Fprintln(w, title)
	fmt.Fprintln(w, strings.Repeat("=", 80))
	fmt.Fprintf(w, "Run ID:             %s\n", s.RunID)
	fmt.Fprintf(w, "Files Processed:    %d\n", s.FilesProcessed)
	fmt.Fprintf(w, "Files Succeeded:    %d\n", s.FilesSucceeded)
	fmt.Fprintf(w, "Files Failed:       %d\n", s.FilesFailed)
	fmt.Fprintf(w, "Records Processed:  %d\n", s.RecordsProcessed)
	fmt.Fprintf(w, "Records Inserted:   %d\n", s.RecordsInserted)
	fmt.Fprintf(w, "Records Skipped:    %d\n", s.RecordsSkipped)
	fmt.Fprintf(w, "Records Rejected:   %d\n", s.RecordsRejected)
	fmt.Fprintf(w, "Duration:           %v\n", s.Duration())
	if secs := s.Duration().Seconds(); secs > 0 {
		fmt.Fprintf(w, "Records/Second:     %.2f\n", float64(s.RecordsProcessed)/secs)
	}

	if len(s.RejectedByReason) > 0 {
		kinds := make([]string, 0, len(s.RejectedByReason))
		for kind := range s.RejectedByReason {
			kinds = append(kinds, string(kind))
		}
		sort.Strings(kinds)

		fmt.Fprintln(w, "\nRejected by reason:")
		for _, kind := range kinds {
			fmt.Fprintf(w, "  %-20s %d\n", kind, s.RejectedByReason[models.ErrorKind(kind)])
		}
	}

	if s.FilesFailed > 0 {
		fmt.Fprintf(w, "\nFailed files (%d):\n", s.FilesFailed)
		listed := 0
		for _, f := range s.Files {
			if f.Succeeded {
				continue
			}
			if listed == maxListedFailures {
				fmt.Fprintf(w, "  ... and %d more\n", s.FilesFailed-listed)
				break
			}
			fmt.Fprintf(w, "  - %s: %s\n", f.Path, f.Error)
			listed++
		}
	}
}

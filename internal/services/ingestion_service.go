package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"golang.org/x/sync/errgroup"

	"station-climate/internal/models"
	"station-climate/internal/repository"
	"station-climate/pkg/logging"
	"station-climate/pkg/metrics"
)

// Ingestion defaults
const (
	DefaultBatchSize = 1000
	DefaultWorkers   = 1
)

// ErrNoInputFiles is returned when a directory holds no station files
var ErrNoInputFiles = errors.New("no station files found")

// IngestionOptions tunes an IngestionService
type IngestionOptions struct {
	BatchSize int  // records per insert transaction
	Workers   int  // files ingested concurrently
	DryRun    bool // parse and validate only
}

func (o IngestionOptions) withDefaults() IngestionOptions {
	if o.BatchSize <= 0 {
		o.BatchSize = DefaultBatchSize
	}
	if o.Workers <= 0 {
		o.Workers = DefaultWorkers
	}
	return o
}

// IngestionService loads station files into the weather store
type IngestionService struct {
	repo    repository.WeatherRepository
	logger  *logging.StructuredLogger
	metrics *metrics.Collector
	opts    IngestionOptions
	clock   clockwork.Clock
}

// NewIngestionService creates a new ingestion service
func NewIngestionService(repo repository.WeatherRepository, logger *logging.StructuredLogger, metricsCollector *metrics.Collector, opts IngestionOptions) *IngestionService {
	return &IngestionService{
		repo:    repo,
		logger:  logger,
		metrics: metricsCollector,
		opts:    opts.withDefaults(),
		clock:   clockwork.NewRealClock(),
	}
}

// SetClock replaces the clock used for run timestamps
func (s *IngestionService) SetClock(clock clockwork.Clock) {
	s.clock = clock
}

// Options returns the effective options
func (s *IngestionService) Options() IngestionOptions {
	return s.opts
}

// StationIDFromPath derives the station id from a file name, extension stripped
func StationIDFromPath(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// IngestPath ingests path as a single file or, when it is a directory,
// every .txt file directly inside it.
func (s *IngestionService) IngestPath(ctx context.Context, path string) (*models.RunSummary, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", models.ErrFileUnreadable, err)
	}
	if info.IsDir() {
		return s.IngestDirectory(ctx, path)
	}
	return s.IngestFile(ctx, path)
}

// IngestFile ingests one station file. A file that cannot be read is
// reported as failed in the summary, not as an error.
func (s *IngestionService) IngestFile(ctx context.Context, path string) (*models.RunSummary, error) {
	return s.run(ctx, []string{path})
}

// IngestDirectory ingests every .txt file in dir in name order
func (s *IngestionService) IngestDirectory(ctx context.Context, dir string) (*models.RunSummary, error) {
	files, err := filepath.Glob(filepath.Join(dir, "*.txt"))
	if err != nil {
		return nil, fmt.Errorf("failed to read directory: %w", err)
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("%w in %s", ErrNoInputFiles, dir)
	}
	sort.Strings(files)

	s.logger.Info(ctx, "[INGEST_FILES] Found data files", logging.Fields{
		"data_dir":   dir,
		"file_count": len(files),
		"stage":      "FILE_DISCOVERY",
	})

	return s.run(ctx, files)
}

func (s *IngestionService) run(ctx context.Context, files []string) (*models.RunSummary, error) {
	summary := models.NewRunSummary(uuid.NewString(), s.clock.Now().UTC(), s.opts.DryRun)
	timer := s.metrics.NewTimer(s.metrics.IngestionDuration)

	runLog := s.logger.WithFields(logging.Fields{"run_id": summary.RunID})
	runLog.Info(ctx, "[INGEST_START] Starting data ingestion", logging.Fields{
		"files":      len(files),
		"batch_size": s.opts.BatchSize,
		"workers":    s.opts.Workers,
		"dry_run":    s.opts.DryRun,
		"stage":      "INITIALIZATION",
	})

	if !s.opts.DryRun {
		if err := s.repo.HealthCheck(ctx); err != nil {
			summary.Finish(s.clock.Now().UTC())
			runLog.Error(ctx, "[INGEST_ABORT] Store unavailable before ingestion", logging.Fields{}, err)
			return summary, err
		}
	}

	// Slots keep per-file results in input order regardless of completion order.
	results := make([]*models.FileSummary, len(files))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.opts.Workers)
	for i, path := range files {
		g.Go(func() error {
			if gctx.Err() != nil {
				return nil
			}
			fs, err := s.ingestFile(gctx, path)
			results[i] = fs
			return err
		})
	}
	err := g.Wait()

	for _, fs := range results {
		if fs != nil {
			summary.AddFile(*fs)
		}
	}
	summary.Finish(s.clock.Now().UTC())
	timer.ObserveDuration()

	fields := logging.Fields{
		"files_processed":   summary.FilesProcessed,
		"files_succeeded":   summary.FilesSucceeded,
		"files_failed":      summary.FilesFailed,
		"records_processed": summary.RecordsProcessed,
		"records_inserted":  summary.RecordsInserted,
		"records_skipped":   summary.RecordsSkipped,
		"records_rejected":  summary.RecordsRejected,
		"duration_seconds":  summary.Duration().Seconds(),
		"stage":             "COMPLETE",
	}
	if err != nil {
		runLog.Error(ctx, "[INGEST_ABORT] Data ingestion aborted", fields, err)
		return summary, err
	}

	runLog.Info(ctx, "[INGEST_COMPLETE] Data ingestion completed", fields)
	return summary, nil
}

// ingestFile streams one file through the parser and validator and writes
// valid records in chunks. The returned error is non-nil only when the
// whole run must stop.
func (s *IngestionService) ingestFile(ctx context.Context, path string) (fs *models.FileSummary, runErr error) {
	start := s.clock.Now()
	stationID := StationIDFromPath(path)
	fs = &models.FileSummary{Path: path, StationID: stationID}
	fileLog := s.logger.WithFields(logging.Fields{"file_path": path, "station_id": stationID})

	defer func() {
		fs.Duration = s.clock.Since(start)
		s.metrics.RecordFileOutcome(fs.Succeeded)
		s.metrics.RecordIngestedRecords(fs.RecordsInserted, fs.RecordsSkipped, fs.RecordsRejected)
	}()

	file, err := os.Open(path)
	if err != nil {
		s.failFile(ctx, fileLog, fs, fmt.Errorf("%w: %v", models.ErrFileUnreadable, err))
		return fs, nil
	}
	defer file.Close()

	batch := make([]*models.WeatherRecord, 0, s.opts.BatchSize)
	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		res, err := s.repo.InsertRecordsBatch(ctx, batch)
		if err != nil {
			return err
		}
		fs.RecordsInserted += res.Inserted
		fs.RecordsSkipped += res.Skipped
		if res.Skipped > 0 {
			fileLog.Debug(ctx, "[INGEST_SKIP] Records already stored", logging.Fields{
				"reason":  string(models.KindDuplicateKey),
				"skipped": res.Skipped,
			})
		}
		batch = batch[:0]
		return nil
	}

	lines := newLineReader(file, MaxLineBytes)
	lineNumber := 0
	for {
		line, err := lines.next()
		if errors.Is(err, io.EOF) {
			break
		}
		lineNumber++

		var record *models.WeatherRecord
		switch {
		case errors.Is(err, errLineTooLong):
			fs.RecordsProcessed++
			err = &models.ValidationError{
				Kind:    models.KindMalformedLine,
				Field:   "line",
				Message: fmt.Sprintf("line longer than %d bytes", MaxLineBytes),
			}
		case err != nil:
			// Keep what was already read before giving up on the file.
			if flushErr := flush(); flushErr != nil {
				return fs, s.writeFailed(ctx, fileLog, fs, flushErr)
			}
			s.failFile(ctx, fileLog, fs, fmt.Errorf("%w: %v", models.ErrFileUnreadable, err))
			return fs, nil
		case strings.TrimSpace(line) == "":
			continue
		default:
			fs.RecordsProcessed++
			record, err = parseRecord(line, stationID)
		}

		if err != nil {
			kind := models.KindOf(err)
			fs.Reject(kind)
			s.metrics.RecordIngestionError(string(kind))
			fileLog.Debug(ctx, "[INGEST_REJECT] Record rejected", logging.Fields{
				"line":   lineNumber,
				"reason": string(kind),
				"detail": err.Error(),
			})
			continue
		}

		if s.opts.DryRun {
			continue
		}

		batch = append(batch, record)
		if len(batch) >= s.opts.BatchSize {
			if err := flush(); err != nil {
				return fs, s.writeFailed(ctx, fileLog, fs, err)
			}
		}
	}

	if err := flush(); err != nil {
		return fs, s.writeFailed(ctx, fileLog, fs, err)
	}

	fs.Succeeded = true
	fileLog.Info(ctx, "[INGEST_FILE_SUCCESS] File ingested successfully", logging.Fields{
		"records_processed": fs.RecordsProcessed,
		"records_inserted":  fs.RecordsInserted,
		"records_skipped":   fs.RecordsSkipped,
		"records_rejected":  fs.RecordsRejected,
		"stage":             "FILE_COMPLETE",
	})
	return fs, nil
}

func parseRecord(line, stationID string) (*models.WeatherRecord, error) {
	raw, err := models.ParseLine(line)
	if err != nil {
		return nil, err
	}
	return raw.Normalize(stationID)
}

// writeFailed decides whether a chunk write failure fails only this file
// or the whole run. Chunks committed before the failure stay in the store.
func (s *IngestionService) writeFailed(ctx context.Context, fileLog *logging.ContextLogger, fs *models.FileSummary, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		fs.Error = ctxErr.Error()
		return ctxErr
	}

	err = storeError(ctx, s.repo, err)
	if errors.Is(err, models.ErrStoreUnavailable) {
		fs.Error = err.Error()
		s.metrics.RecordIngestionError(string(models.KindStoreUnavailable))
		fileLog.Error(ctx, "[INGEST_STORE_ERROR] Store unavailable during ingestion", logging.Fields{
			"stage": "FILE_PROCESSING",
		}, err)
		return fmt.Errorf("ingestion of %s aborted: %w", fs.Path, err)
	}

	s.failFile(ctx, fileLog, fs, fmt.Errorf("%w: %v", models.ErrFileUnreadable, err))
	return nil
}

func (s *IngestionService) failFile(ctx context.Context, fileLog *logging.ContextLogger, fs *models.FileSummary, err error) {
	fs.Succeeded = false
	fs.Error = err.Error()
	s.metrics.RecordIngestionError("file_error")
	fileLog.Error(ctx, "[INGEST_FILE_ERROR] File ingestion failed", logging.Fields{
		"stage": "FILE_PROCESSING",
	}, err)
}

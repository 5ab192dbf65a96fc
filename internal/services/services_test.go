package services

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/require"

	"station-climate/internal/repository"
	"station-climate/pkg/database"
	"station-climate/pkg/logging"
	"station-climate/pkg/metrics"
)

var testNow = time.Date(2024, 5, 1, 9, 30, 0, 0, time.UTC)

type testEnv struct {
	db      *database.DB
	repo    repository.WeatherRepository
	logger  *logging.StructuredLogger
	metrics *metrics.Collector
	clock   *clockwork.FakeClock
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	logger := logging.NewNop()
	collector := metrics.NewCollectorForTesting()

	cfg := &database.Config{
		Driver:         database.DriverSQLite,
		Path:           filepath.Join(t.TempDir(), "weather.db"),
		ConnectTimeout: time.Second,
	}
	db, err := database.Open(context.Background(), cfg, logger, collector)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	repo := repository.NewWeatherRepository(db, logger, collector)
	require.NoError(t, repo.Migrate(context.Background()))

	return &testEnv{
		db:      db,
		repo:    repo,
		logger:  logger,
		metrics: collector,
		clock:   clockwork.NewFakeClockAt(testNow),
	}
}

func (e *testEnv) ingestion(opts IngestionOptions) *IngestionService {
	svc := NewIngestionService(e.repo, e.logger, e.metrics, opts)
	svc.SetClock(e.clock)
	return svc
}

func writeStationFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

package services

import (
	"context"
	"fmt"
	"time"

	"github.com/jonboulle/clockwork"

	"station-climate/internal/models"
	"station-climate/internal/repository"
	"station-climate/pkg/logging"
	"station-climate/pkg/metrics"
)

// RecordQuery selects weather records. Empty filters match everything.
type RecordQuery struct {
	StationID string
	Date      string // YYYY-MM-DD
	Page      models.PageRequest
}

// StatsQuery selects annual statistics
type StatsQuery struct {
	StationID string
	Year      *int
	Page      models.PageRequest
}

// WeatherService answers read queries over records and statistics
type WeatherService struct {
	repo    repository.WeatherRepository
	logger  *logging.StructuredLogger
	metrics *metrics.Collector
	clock   clockwork.Clock
}

// NewWeatherService creates a new weather service
func NewWeatherService(repo repository.WeatherRepository, logger *logging.StructuredLogger, metricsCollector *metrics.Collector) *WeatherService {
	return &WeatherService{
		repo:    repo,
		logger:  logger,
		metrics: metricsCollector,
		clock:   clockwork.NewRealClock(),
	}
}

// SetClock replaces the clock used for query timestamps
func (s *WeatherService) SetClock(clock clockwork.Clock) {
	s.clock = clock
}

// Now returns the current time from the service clock
func (s *WeatherService) Now() time.Time {
	return s.clock.Now().UTC()
}

// ListRecords returns one page of weather records ordered by station and date
func (s *WeatherService) ListRecords(ctx context.Context, q RecordQuery) (*models.Page[*models.WeatherRecord], error) {
	page, err := models.NewPagination(q.Page.Page, q.Page.PageSize)
	if err != nil {
		return nil, err
	}

	filter := repository.RecordFilter{
		StationID: optionalString(q.StationID),
		Date:      optionalString(q.Date),
		Limit:     page.PageSize,
		Offset:    page.Offset(),
	}

	records, total, err := s.repo.GetRecords(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("failed to list weather records: %w", storeError(ctx, s.repo, err))
	}

	s.logger.Debug(ctx, "[QUERY_RECORDS] Weather records listed", logging.Fields{
		"station_id": q.StationID,
		"date":       q.Date,
		"page":       page.Page,
		"page_size":  page.PageSize,
		"returned":   len(records),
		"total":      total,
	})

	return models.NewPage(records, page, total, s.Now()), nil
}

// ListAnnualStats returns one page of annual statistics ordered by station and year
func (s *WeatherService) ListAnnualStats(ctx context.Context, q StatsQuery) (*models.Page[*models.AnnualStat], error) {
	page, err := models.NewPagination(q.Page.Page, q.Page.PageSize)
	if err != nil {
		return nil, err
	}

	filter := repository.StatsFilter{
		StationID: optionalString(q.StationID),
		Year:      q.Year,
		Limit:     page.PageSize,
		Offset:    page.Offset(),
	}

	stats, total, err := s.repo.GetAnnualStats(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("failed to list annual statistics: %w", storeError(ctx, s.repo, err))
	}

	s.logger.Debug(ctx, "[QUERY_STATS] Annual statistics listed", logging.Fields{
		"station_id": q.StationID,
		"page":       page.Page,
		"page_size":  page.PageSize,
		"returned":   len(stats),
		"total":      total,
	})

	return models.NewPage(stats, page, total, s.Now()), nil
}

// HealthCheck reports store reachability
func (s *WeatherService) HealthCheck(ctx context.Context) error {
	return s.repo.HealthCheck(ctx)
}

// optionalString treats only "" as absent; filters match exactly otherwise
func optionalString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

package services

import (
	"context"
	"fmt"

	"github.com/jonboulle/clockwork"

	"station-climate/internal/models"
	"station-climate/internal/repository"
	"station-climate/pkg/logging"
	"station-climate/pkg/metrics"
)

// StatisticsService recomputes annual weather statistics
type StatisticsService struct {
	repo    repository.WeatherRepository
	logger  *logging.StructuredLogger
	metrics *metrics.Collector
	policy  models.PrecipitationPolicy
	clock   clockwork.Clock
}

// NewStatisticsService creates a new statistics service
func NewStatisticsService(repo repository.WeatherRepository, logger *logging.StructuredLogger, metricsCollector *metrics.Collector, policy models.PrecipitationPolicy) *StatisticsService {
	if policy == "" {
		policy = models.PrecipitationJoint
	}
	return &StatisticsService{
		repo:    repo,
		logger:  logger,
		metrics: metricsCollector,
		policy:  policy,
		clock:   clockwork.NewRealClock(),
	}
}

// SetClock replaces the clock used for run timestamps
func (s *StatisticsService) SetClock(clock clockwork.Clock) {
	s.clock = clock
}

// Policy returns the precipitation policy in use
func (s *StatisticsService) Policy() models.PrecipitationPolicy {
	return s.policy
}

// CalculateAllStatistics recomputes every (station, year) statistic from
// the stored records and replaces the previous values. Running it twice
// over the same records yields the same rows.
func (s *StatisticsService) CalculateAllStatistics(ctx context.Context) (*models.AggregationSummary, error) {
	summary := &models.AggregationSummary{StartedAt: s.clock.Now().UTC()}
	timer := s.metrics.NewTimer(s.metrics.AggregationDuration)

	s.logger.Info(ctx, "[STATS_CALC_START] Starting statistics calculation", logging.Fields{
		"precipitation_policy": string(s.policy),
		"stage":                "INITIALIZATION",
	})

	stats, err := s.repo.ComputeAnnualStats(ctx, s.policy)
	if err != nil {
		err = storeError(ctx, s.repo, err)
		s.logger.Error(ctx, "[STATS_CALC_ERROR] Failed to calculate statistics", logging.Fields{
			"stage": "CALCULATION",
		}, err)
		return nil, fmt.Errorf("failed to compute statistics: %w", err)
	}

	if err := s.repo.UpsertAnnualStats(ctx, stats); err != nil {
		err = storeError(ctx, s.repo, err)
		s.logger.Error(ctx, "[STATS_SAVE_ERROR] Failed to save statistics", logging.Fields{
			"rows":  len(stats),
			"stage": "PERSIST",
		}, err)
		return nil, fmt.Errorf("failed to save statistics: %w", err)
	}

	stations := make(map[string]struct{})
	for _, st := range stats {
		stations[st.StationID] = struct{}{}
	}

	summary.StationYears = len(stats)
	summary.Stations = len(stations)
	summary.Duration = s.clock.Since(summary.StartedAt)
	timer.ObserveDuration()
	s.metrics.AggregationRowsTotal.Add(float64(len(stats)))

	s.logger.Info(ctx, "[STATS_CALC_COMPLETE] Statistics calculation completed", logging.Fields{
		"total_stations":   summary.Stations,
		"total_statistics": summary.StationYears,
		"duration_seconds": summary.Duration.Seconds(),
		"stage":            "COMPLETE",
	})

	return summary, nil
}

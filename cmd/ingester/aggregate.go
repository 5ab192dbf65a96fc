package main

import (
	"context"
	"fmt"
	"io"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"station-climate/internal/models"
	"station-climate/internal/repository"
	"station-climate/internal/services"
)

func newAggregateCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "aggregate",
		Short: "Recompute annual statistics for every station and year",
		Long: `Recompute per station and year averages of the daily max and min
temperatures (degrees Celsius) and total precipitation (centimetres) from all
stored records, replacing any previously stored statistics.

The precipitation policy comes from aggregation.precipitation_policy.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			repo, closeDB, err := a.openRepository(ctx)
			if err != nil {
				return err
			}
			defer closeDB()

			return a.aggregate(ctx, repo, cmd.OutOrStdout())
		},
	}
}

func (a *app) aggregate(ctx context.Context, repo repository.WeatherRepository, w io.Writer) error {
	stats := services.NewStatisticsService(repo, a.logger, a.metrics, a.cfg.Aggregation.Policy())

	summary, err := stats.CalculateAllStatistics(ctx)
	if err != nil {
		return fmt.Errorf("aggregation failed: %w", err)
	}

	printAggregationSummary(w, summary, stats.Policy())
	return nil
}

func printAggregationSummary(w io.Writer, s *models.AggregationSummary, policy models.PrecipitationPolicy) {
	fmt.Fprintln(w, "\n"+strings.Repeat("=", 80))
	fmt.Fprintln(w, "STATISTICS COMPLETE")
	fmt.Fprintln(w, strings.Repeat("=", 80))
	fmt.Fprintf(w, "Station-Years:      %d\n", s.StationYears)
	fmt.Fprintf(w, "Stations:           %d\n", s.Stations)
	fmt.Fprintf(w, "Precipitation:      %s\n", policy)
	fmt.Fprintf(w, "Duration:           %v\n", s.Duration)
}

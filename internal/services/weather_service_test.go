package services

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"station-climate/internal/models"
)

// seedRecords ingests n consecutive days for station starting 1990-01-01
func seedRecords(t *testing.T, env *testEnv, station string, n int) {
	t.Helper()
	var b strings.Builder
	start := time.Date(1990, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < n; i++ {
		fmt.Fprintf(&b, "%s\t%d\t%d\t%d\n", start.AddDate(0, 0, i).Format("20060102"), i, -i, i%7)
	}
	path := writeStationFile(t, t.TempDir(), station+".txt", b.String())
	_, err := env.ingestion(IngestionOptions{}).IngestFile(context.Background(), path)
	require.NoError(t, err)
}

func newWeatherService(env *testEnv) *WeatherService {
	svc := NewWeatherService(env.repo, env.logger, env.metrics)
	svc.SetClock(env.clock)
	return svc
}

func TestListRecords_Pagination(t *testing.T) {
	env := newTestEnv(t)
	seedRecords(t, env, "S1", 250)
	svc := newWeatherService(env)
	ctx := context.Background()

	tests := []struct {
		page     int
		wantRows int
	}{
		{1, 100},
		{2, 100},
		{3, 50},
		{4, 0},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprintf("page %d", tt.page), func(t *testing.T) {
			result, err := svc.ListRecords(ctx, RecordQuery{
				StationID: "S1",
				Page:      models.PageRequest{Page: tt.page, PageSize: 100},
			})
			require.NoError(t, err)
			assert.Len(t, result.Data, tt.wantRows)
			assert.NotNil(t, result.Data)
			assert.Equal(t, models.PageInfo{Page: tt.page, PageSize: 100, TotalPages: 3, TotalRecords: 250}, result.Pagination)
			assert.Equal(t, testNow, result.QueryTime)
		})
	}
}

func TestListRecords_OrderAcrossPages(t *testing.T) {
	env := newTestEnv(t)
	seedRecords(t, env, "B", 3)
	seedRecords(t, env, "A", 3)
	svc := newWeatherService(env)

	var got []string
	for page := 1; page <= 3; page++ {
		result, err := svc.ListRecords(context.Background(), RecordQuery{Page: models.PageRequest{Page: page, PageSize: 2}})
		require.NoError(t, err)
		for _, r := range result.Data {
			got = append(got, r.StationID+"@"+r.Date)
		}
	}

	assert.Equal(t, []string{
		"A@1990-01-01", "A@1990-01-02", "A@1990-01-03",
		"B@1990-01-01", "B@1990-01-02", "B@1990-01-03",
	}, got)
}

func TestListRecords_Filters(t *testing.T) {
	env := newTestEnv(t)
	seedRecords(t, env, "A", 5)
	seedRecords(t, env, "B", 5)
	svc := newWeatherService(env)
	ctx := context.Background()
	page := models.PageRequest{Page: 1, PageSize: 10}

	result, err := svc.ListRecords(ctx, RecordQuery{Date: "1990-01-03", Page: page})
	require.NoError(t, err)
	assert.Equal(t, 2, result.Pagination.TotalRecords)

	result, err = svc.ListRecords(ctx, RecordQuery{StationID: "A", Date: "1990-01-03", Page: page})
	require.NoError(t, err)
	require.Len(t, result.Data, 1)
	assert.Equal(t, 2, *result.Data[0].MaxTemp)

	result, err = svc.ListRecords(ctx, RecordQuery{StationID: "UNKNOWN", Page: page})
	require.NoError(t, err)
	assert.Empty(t, result.Data)
	assert.Equal(t, 0, result.Pagination.TotalPages)
	assert.Equal(t, 0, result.Pagination.TotalRecords)

	result, err = svc.ListRecords(ctx, RecordQuery{Date: "not-a-date", Page: page})
	require.NoError(t, err)
	assert.Empty(t, result.Data)
}

func TestListRecords_FiltersMatchExactly(t *testing.T) {
	env := newTestEnv(t)
	seedRecords(t, env, "USC00110072", 3)
	svc := newWeatherService(env)
	ctx := context.Background()
	page := models.PageRequest{Page: 1, PageSize: 10}

	for _, q := range []RecordQuery{
		{StationID: " USC00110072", Page: page},
		{StationID: "USC00110072 ", Page: page},
		{StationID: "usc00110072", Page: page},
		{Date: " 1990-01-01", Page: page},
	} {
		result, err := svc.ListRecords(ctx, q)
		require.NoError(t, err)
		assert.Empty(t, result.Data, "%+v", q)
		assert.Equal(t, 0, result.Pagination.TotalRecords)
	}

	stats, err := svc.ListAnnualStats(ctx, StatsQuery{StationID: " USC00110072", Page: page})
	require.NoError(t, err)
	assert.Empty(t, stats.Data)
}

func TestListRecords_InvalidPagination(t *testing.T) {
	env := newTestEnv(t)
	svc := newWeatherService(env)

	for _, page := range []models.PageRequest{{Page: 1, PageSize: 0}, {Page: -1, PageSize: -1}} {
		_, err := svc.ListRecords(context.Background(), RecordQuery{Page: page})
		assert.ErrorIs(t, err, models.ErrInvalidParameter, "%+v", page)
	}
}

func TestListRecords_PageBelowOneIsFirstPage(t *testing.T) {
	env := newTestEnv(t)
	seedRecords(t, env, "S1", 5)
	svc := newWeatherService(env)

	for _, p := range []int{0, -3} {
		result, err := svc.ListRecords(context.Background(), RecordQuery{Page: models.PageRequest{Page: p, PageSize: 2}})
		require.NoError(t, err)
		assert.Equal(t, 1, result.Pagination.Page)
		require.Len(t, result.Data, 2)
		assert.Equal(t, "1990-01-01", result.Data[0].Date)
	}
}

func TestListRecords_HugePageIsEmpty(t *testing.T) {
	env := newTestEnv(t)
	seedRecords(t, env, "S1", 250)
	svc := newWeatherService(env)
	page := models.PageRequest{Page: 184467440737095517, PageSize: 100}

	result, err := svc.ListRecords(context.Background(), RecordQuery{Page: page})
	require.NoError(t, err)
	assert.Empty(t, result.Data)
	assert.Equal(t, models.PageInfo{Page: page.Page, PageSize: 100, TotalPages: 3, TotalRecords: 250}, result.Pagination)

	stats, err := svc.ListAnnualStats(context.Background(), StatsQuery{Page: page})
	require.NoError(t, err)
	assert.Empty(t, stats.Data)
}

func TestListRecords_ClampsPageSize(t *testing.T) {
	env := newTestEnv(t)
	svc := newWeatherService(env)

	result, err := svc.ListRecords(context.Background(), RecordQuery{Page: models.PageRequest{Page: 1, PageSize: 5000}})
	require.NoError(t, err)
	assert.Equal(t, models.MaxPageSize, result.Pagination.PageSize)
}

func TestListAnnualStats(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	dir := t.TempDir()
	writeStationFile(t, dir, "A.txt", "19850101\t10\t0\t5\n19860101\t20\t0\t5\n")
	writeStationFile(t, dir, "B.txt", "19850101\t30\t0\t5\n")
	_, err := env.ingestion(IngestionOptions{}).IngestDirectory(ctx, dir)
	require.NoError(t, err)
	_, err = NewStatisticsService(env.repo, env.logger, env.metrics, "").CalculateAllStatistics(ctx)
	require.NoError(t, err)

	svc := newWeatherService(env)
	page := models.PageRequest{Page: 1, PageSize: 10}

	result, err := svc.ListAnnualStats(ctx, StatsQuery{Page: page})
	require.NoError(t, err)
	require.Len(t, result.Data, 3)
	assert.Equal(t, "A", result.Data[0].StationID)
	assert.Equal(t, 1985, result.Data[0].Year)
	assert.Equal(t, 1986, result.Data[1].Year)
	assert.Equal(t, "B", result.Data[2].StationID)

	year := 1985
	result, err = svc.ListAnnualStats(ctx, StatsQuery{Year: &year, Page: page})
	require.NoError(t, err)
	assert.Equal(t, 2, result.Pagination.TotalRecords)

	result, err = svc.ListAnnualStats(ctx, StatsQuery{StationID: "B", Year: &year, Page: page})
	require.NoError(t, err)
	require.Len(t, result.Data, 1)
	assert.InDelta(t, 3.0, *result.Data[0].AvgMaxTemp, 1e-9)

	year = 1700
	result, err = svc.ListAnnualStats(ctx, StatsQuery{Year: &year, Page: page})
	require.NoError(t, err)
	assert.Empty(t, result.Data)
}

func TestWeatherService_StoreUnavailable(t *testing.T) {
	env := newTestEnv(t)
	svc := newWeatherService(env)
	require.NoError(t, svc.HealthCheck(context.Background()))
	require.NoError(t, env.db.Close())

	_, err := svc.ListRecords(context.Background(), RecordQuery{Page: models.PageRequest{Page: 1, PageSize: 10}})
	assert.ErrorIs(t, err, models.ErrStoreUnavailable)

	_, err = svc.ListAnnualStats(context.Background(), StatsQuery{Page: models.PageRequest{Page: 1, PageSize: 10}})
	assert.ErrorIs(t, err, models.ErrStoreUnavailable)

	assert.ErrorIs(t, svc.HealthCheck(context.Background()), models.ErrStoreUnavailable)
}

package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"station-climate/internal/models"
	"station-climate/internal/repository"
	"station-climate/internal/services"
	"station-climate/pkg/database"
	"station-climate/pkg/logging"
	"station-climate/pkg/metrics"
)

var testNow = time.Date(2024, 5, 1, 9, 30, 0, 0, time.UTC)

type apiEnv struct {
	db      *database.DB
	repo    repository.WeatherRepository
	handler http.Handler
}

func newAPIEnv(t *testing.T) *apiEnv {
	t.Helper()
	logger := logging.NewNop()
	reg := prometheus.NewRegistry()
	collector := metrics.NewCollectorWithRegistry("test", reg)

	db, err := database.Open(context.Background(), &database.Config{
		Driver:         database.DriverSQLite,
		Path:           filepath.Join(t.TempDir(), "weather.db"),
		ConnectTimeout: time.Second,
	}, logger, collector)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	repo := repository.NewWeatherRepository(db, logger, collector)
	require.NoError(t, repo.Migrate(context.Background()))

	weatherService := services.NewWeatherService(repo, logger, collector)
	weatherService.SetClock(clockwork.NewFakeClockAt(testNow))

	h := NewWeatherHandler(weatherService, logger, collector, "1.0.0")
	return &apiEnv{
		db:      db,
		repo:    repo,
		handler: NewRouter(h, []string{"https://climate.example"}, promhttp.HandlerFor(reg, promhttp.HandlerOpts{})),
	}
}

func (e *apiEnv) seed(t *testing.T, files map[string]string) {
	t.Helper()
	dir := t.TempDir()
	for name, content := range files {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644))
	}
	logger := logging.NewNop()
	collector := metrics.NewCollectorForTesting()

	_, err := services.NewIngestionService(e.repo, logger, collector, services.IngestionOptions{}).IngestDirectory(context.Background(), dir)
	require.NoError(t, err)
	_, err = services.NewStatisticsService(e.repo, logger, collector, models.PrecipitationJoint).CalculateAllStatistics(context.Background())
	require.NoError(t, err)
}

func (e *apiEnv) get(t *testing.T, target string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, target, nil)
	rec := httptest.NewRecorder()
	e.handler.ServeHTTP(rec, req)
	return rec
}

type pageBody[T any] struct {
	Data       []T             `json:"data"`
	Pagination models.PageInfo `json:"pagination"`
	QueryTime  string          `json:"query_time"`
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func TestGetRecords(t *testing.T) {
	env := newAPIEnv(t)
	env.seed(t, map[string]string{
		"USC00110072.txt": "20040101\t28\t-330\t0\n20040102\t-9999\t-9999\t-9999\n",
	})

	rec := env.get(t, "/api/weather?station_id=USC00110072&date=2004-01-01")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	assert.NotEmpty(t, rec.Header().Get(RequestIDHeader))

	assert.JSONEq(t, `{
		"data": [{"station_id": "USC00110072", "date": "2004-01-01", "max_temp": 28, "min_temp": -330, "precipitation": 0}],
		"pagination": {"page": 1, "pageSize": 100, "totalPages": 1, "totalRecords": 1},
		"query_time": "2024-05-01T09:30:00Z"
	}`, rec.Body.String())

	rec = env.get(t, "/api/weather?station_id=%20USC00110072")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, decode[pageBody[models.WeatherRecord]](t, rec).Data)

	rec = env.get(t, "/api/weather?date=2004-01-02")
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode[pageBody[map[string]interface{}]](t, rec)
	require.Len(t, body.Data, 1)
	assert.Nil(t, body.Data[0]["max_temp"])
	assert.Contains(t, body.Data[0], "max_temp")
}

func TestGetRecords_Pagination(t *testing.T) {
	env := newAPIEnv(t)
	var b strings.Builder
	start := time.Date(1990, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 250; i++ {
		fmt.Fprintf(&b, "%s\t1\t1\t1\n", start.AddDate(0, 0, i).Format("20060102"))
	}
	env.seed(t, map[string]string{"S1.txt": b.String()})

	tests := []struct {
		query    string
		wantRows int
		wantPage int
		wantSize int
		pages    int
	}{
		{"page=3&pageSize=100", 50, 3, 100, 3},
		{"page=4&pageSize=100", 0, 4, 100, 3},
		{"pageSize=5000", 250, 1, 1000, 1},
		{"page=0&pageSize=100", 100, 1, 100, 3},
		{"page=184467440737095517&pageSize=100", 0, 184467440737095517, 100, 3},
		{"", 100, 1, 100, 3},
	}
	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			rec := env.get(t, "/api/weather?"+tt.query)
			require.Equal(t, http.StatusOK, rec.Code)
			body := decode[pageBody[models.WeatherRecord]](t, rec)
			assert.Len(t, body.Data, tt.wantRows)
			assert.NotNil(t, body.Data)
			assert.Equal(t, models.PageInfo{Page: tt.wantPage, PageSize: tt.wantSize, TotalPages: tt.pages, TotalRecords: 250}, body.Pagination)
		})
	}
}

func TestGetRecords_InvalidParameters(t *testing.T) {
	env := newAPIEnv(t)

	for _, target := range []string{
		"/api/weather?page=abc",
		"/api/weather?pageSize=0",
		"/api/weather?pageSize=-5",
		"/api/weather/stats?year=nineteen",
		"/api/weather/stats?pageSize=-1",
	} {
		t.Run(target, func(t *testing.T) {
			rec := env.get(t, target)
			require.Equal(t, http.StatusBadRequest, rec.Code)
			body := decode[ErrorResponse](t, rec)
			assert.Equal(t, http.StatusBadRequest, body.Code)
			assert.Equal(t, "Bad Request", body.Error)
			assert.NotEmpty(t, body.Message)
		})
	}
}

func TestGetAnnualStats(t *testing.T) {
	env := newAPIEnv(t)
	env.seed(t, map[string]string{
		"USC00110072.txt": "20040101\t28\t-330\t0\n",
		"USC00110187.txt": "20040101\t10\t0\t5\n20050101\t20\t0\t5\n",
	})

	rec := env.get(t, "/api/weather/stats?station_id=USC00110072&year=2004")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{
		"data": [{"station_id": "USC00110072", "year": 2004, "avg_max_temp": 2.8, "avg_min_temp": -33, "total_precipitation": 0}],
		"pagination": {"page": 1, "pageSize": 100, "totalPages": 1, "totalRecords": 1},
		"query_time": "2024-05-01T09:30:00Z"
	}`, rec.Body.String())

	rec = env.get(t, "/api/weather/stats?year=2004&pageSize=1&page=2")
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode[pageBody[models.AnnualStat]](t, rec)
	require.Len(t, body.Data, 1)
	assert.Equal(t, "USC00110187", body.Data[0].StationID)
	assert.Equal(t, 2, body.Pagination.TotalPages)

	rec = env.get(t, "/api/weather/stats?station_id=NOPE")
	require.Equal(t, http.StatusOK, rec.Code)
	body = decode[pageBody[models.AnnualStat]](t, rec)
	assert.Empty(t, body.Data)
	assert.Equal(t, 0, body.Pagination.TotalRecords)
}

func TestHealthCheck(t *testing.T) {
	env := newAPIEnv(t)

	rec := env.get(t, "/health")
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode[HealthResponse](t, rec)
	assert.Equal(t, HealthResponse{
		Status:    "healthy",
		Service:   ServiceName,
		Version:   "1.0.0",
		Timestamp: "2024-05-01T09:30:00Z",
		Database:  "connected",
	}, body)

	require.NoError(t, env.db.Close())
	rec = env.get(t, "/health")
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
	body = decode[HealthResponse](t, rec)
	assert.Equal(t, "unhealthy", body.Status)
}

func TestStoreUnavailableReturns503(t *testing.T) {
	env := newAPIEnv(t)
	require.NoError(t, env.db.Close())

	for _, target := range []string{"/api/weather", "/api/weather/stats"} {
		rec := env.get(t, target)
		assert.Equal(t, http.StatusServiceUnavailable, rec.Code, target)
		body := decode[ErrorResponse](t, rec)
		assert.Equal(t, http.StatusServiceUnavailable, body.Code)
	}
}

func TestRequestIDPropagation(t *testing.T) {
	env := newAPIEnv(t)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set(RequestIDHeader, "req-123")
	rec := httptest.NewRecorder()
	env.handler.ServeHTTP(rec, req)

	assert.Equal(t, "req-123", rec.Header().Get(RequestIDHeader))
}

func TestCORS(t *testing.T) {
	env := newAPIEnv(t)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("Origin", "https://climate.example")
	rec := httptest.NewRecorder()
	env.handler.ServeHTTP(rec, req)
	assert.Equal(t, "https://climate.example", rec.Header().Get("Access-Control-Allow-Origin"))

	req = httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("Origin", "https://elsewhere.example")
	rec = httptest.NewRecorder()
	env.handler.ServeHTTP(rec, req)
	assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestOpenAPIAndMetrics(t *testing.T) {
	env := newAPIEnv(t)

	rec := env.get(t, PathOpenAPI)
	require.Equal(t, http.StatusOK, rec.Code)
	doc := decode[map[string]interface{}](t, rec)
	assert.Equal(t, "3.0.3", doc["openapi"])
	paths, ok := doc["paths"].(map[string]interface{})
	require.True(t, ok)
	assert.Contains(t, paths, PathRecords)
	assert.Contains(t, paths, PathStats)

	rec = env.get(t, PathMetrics)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "test_api_requests_total")
}

func TestMethodNotAllowed(t *testing.T) {
	env := newAPIEnv(t)

	req := httptest.NewRequest(http.MethodPost, PathRecords, nil)
	rec := httptest.NewRecorder()
	env.handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

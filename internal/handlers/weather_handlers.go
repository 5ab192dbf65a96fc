package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	"station-climate/internal/models"
	"station-climate/internal/services"
	"station-climate/pkg/logging"
	"station-climate/pkg/metrics"
)

// ServiceName is reported by the health endpoint
const ServiceName = "weather-data-api"

// Endpoint paths
const (
	PathRecords = "/api/weather"
	PathStats   = "/api/weather/stats"
	PathHealth  = "/health"
	PathOpenAPI = "/api/docs/openapi.json"
	PathMetrics = "/metrics"
)

// WeatherHandler handles weather API endpoints
type WeatherHandler struct {
	weatherService *services.WeatherService
	logger         *logging.StructuredLogger
	metrics        *metrics.Collector
	version        string
}

// NewWeatherHandler creates a new weather handler
func NewWeatherHandler(
	weatherService *services.WeatherService,
	logger *logging.StructuredLogger,
	metricsCollector *metrics.Collector,
	version string,
) *WeatherHandler {
	return &WeatherHandler{
		weatherService: weatherService,
		logger:         logger,
		metrics:        metricsCollector,
		version:        version,
	}
}

// ErrorResponse represents an API error response
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Code    int    `json:"code"`
}

// HealthResponse is the body of GET /health
type HealthResponse struct {
	Status    string `json:"status"`
	Service   string `json:"service"`
	Version   string `json:"version"`
	Timestamp string `json:"timestamp"`
	Database  string `json:"database"`
}

// GetRecords handles GET /api/weather
func (h *WeatherHandler) GetRecords(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	startTime := time.Now()

	defer func() {
		h.metrics.APIRequestDuration.WithLabelValues(PathRecords).Observe(time.Since(startTime).Seconds())
	}()

	query := r.URL.Query()
	page, err := models.ParsePageRequest(query.Get("page"), query.Get("pageSize"))
	if err != nil {
		h.handleError(w, r, PathRecords, err)
		return
	}

	result, err := h.weatherService.ListRecords(ctx, services.RecordQuery{
		StationID: query.Get("station_id"),
		Date:      query.Get("date"),
		Page:      page,
	})
	if err != nil {
		h.handleError(w, r, PathRecords, err)
		return
	}

	h.metrics.RecordAPIRequest(PathRecords, r.Method, "200")
	h.sendJSON(w, result, http.StatusOK)
}

// GetAnnualStats handles GET /api/weather/stats
func (h *WeatherHandler) GetAnnualStats(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	startTime := time.Now()

	defer func() {
		h.metrics.APIRequestDuration.WithLabelValues(PathStats).Observe(time.Since(startTime).Seconds())
	}()

	query := r.URL.Query()
	page, err := models.ParsePageRequest(query.Get("page"), query.Get("pageSize"))
	if err != nil {
		h.handleError(w, r, PathStats, err)
		return
	}

	year, err := models.ParseOptionalInt("year", query.Get("year"))
	if err != nil {
		h.handleError(w, r, PathStats, err)
		return
	}

	result, err := h.weatherService.ListAnnualStats(ctx, services.StatsQuery{
		StationID: query.Get("station_id"),
		Year:      year,
		Page:      page,
	})
	if err != nil {
		h.handleError(w, r, PathStats, err)
		return
	}

	h.metrics.RecordAPIRequest(PathStats, r.Method, "200")
	h.sendJSON(w, result, http.StatusOK)
}

// HealthCheck handles GET /health
func (h *WeatherHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	resp := HealthResponse{
		Status:    "healthy",
		Service:   ServiceName,
		Version:   h.version,
		Timestamp: h.weatherService.Now().Format(time.RFC3339),
		Database:  "connected",
	}
	status := http.StatusOK

	if err := h.weatherService.HealthCheck(ctx); err != nil {
		h.logger.Warn(ctx, "[HEALTH_CHECK_FAILED] Store unreachable", logging.Fields{
			"error": err.Error(),
		})
		resp.Status = "unhealthy"
		resp.Database = "unavailable"
		status = http.StatusServiceUnavailable
	}

	h.logger.Debug(ctx, "[HEALTH_CHECK] Health check requested", logging.Fields{"status": resp.Status})
	h.metrics.RecordAPIRequest(PathHealth, r.Method, strconv.Itoa(status))
	h.sendJSON(w, resp, status)
}

// handleError maps an error to its HTTP status and writes the error body
func (h *WeatherHandler) handleError(w http.ResponseWriter, r *http.Request, endpoint string, err error) {
	ctx := r.Context()

	var (
		status  int
		errType string
		message string
	)
	switch {
	case errors.Is(err, models.ErrInvalidParameter):
		status, errType, message = http.StatusBadRequest, "invalid_parameter", err.Error()
	case errors.Is(err, models.ErrStoreUnavailable):
		status, errType, message = http.StatusServiceUnavailable, "store_unavailable", "data store unavailable"
	default:
		status, errType, message = http.StatusInternalServerError, "internal_error", "failed to retrieve data"
	}

	if status >= http.StatusInternalServerError {
		h.logger.Error(ctx, "[API_ERROR] Request failed", logging.Fields{
			"endpoint": endpoint,
			"query":    r.URL.RawQuery,
			"status":   status,
		}, err)
	} else {
		h.logger.Debug(ctx, "[API_BAD_REQUEST] Rejected request", logging.Fields{
			"endpoint": endpoint,
			"query":    r.URL.RawQuery,
			"reason":   err.Error(),
		})
	}

	h.metrics.RecordAPIError(errType, endpoint)
	h.sendError(w, r, endpoint, message, status)
}

// sendJSON sends a JSON response
func (h *WeatherHandler) sendJSON(w http.ResponseWriter, data interface{}, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Warn(context.Background(), "[API_ENCODE_ERROR] Failed to write response", logging.Fields{"error": err.Error()})
	}
}

// sendError sends an error response
func (h *WeatherHandler) sendError(w http.ResponseWriter, r *http.Request, endpoint, message string, statusCode int) {
	h.metrics.RecordAPIRequest(endpoint, r.Method, strconv.Itoa(statusCode))

	response := ErrorResponse{
		Error:   http.StatusText(statusCode),
		Message: message,
		Code:    statusCode,
	}

	h.sendJSON(w, response, statusCode)
}

// RegisterRoutes registers all weather API routes
func (h *WeatherHandler) RegisterRoutes(router *mux.Router) {
	router.HandleFunc(PathRecords, h.GetRecords).Methods(http.MethodGet)
	router.HandleFunc(PathStats, h.GetAnnualStats).Methods(http.MethodGet)
	router.HandleFunc(PathHealth, h.HealthCheck).Methods(http.MethodGet)
	router.HandleFunc(PathOpenAPI, h.OpenAPISpec).Methods(http.MethodGet)
}

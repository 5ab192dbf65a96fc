package handlers

import (
	"net/http"

	"github.com/go-chi/cors"
	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"station-climate/pkg/logging"
)

// RequestIDHeader carries the request id in both directions
const RequestIDHeader = "X-Request-ID"

// NewRouter wires the API routes, the metrics endpoint, request ids and CORS.
// A nil metricsHandler leaves /metrics unregistered.
func NewRouter(h *WeatherHandler, allowedOrigins []string, metricsHandler http.Handler) http.Handler {
	router := mux.NewRouter()
	router.Use(requestIDMiddleware)

	h.RegisterRoutes(router)
	if metricsHandler != nil {
		router.Handle(PathMetrics, metricsHandler).Methods(http.MethodGet)
	}

	if len(allowedOrigins) == 0 {
		allowedOrigins = []string{"*"}
	}
	corsMiddleware := cors.Handler(cors.Options{
		AllowedOrigins: allowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type", RequestIDHeader},
		ExposedHeaders: []string{RequestIDHeader},
		MaxAge:         300,
	})

	return corsMiddleware(router)
}

// requestIDMiddleware propagates or assigns a request id and stores it in
// the request context for log entries.
func requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(RequestIDHeader)
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set(RequestIDHeader, id)
		next.ServeHTTP(w, r.WithContext(logging.WithRequestID(r.Context(), id)))
	})
}

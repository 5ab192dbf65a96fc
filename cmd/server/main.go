package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"station-climate/internal/config"
	"station-climate/internal/handlers"
	"station-climate/internal/repository"
	"station-climate/internal/services"
	"station-climate/pkg/database"
	"station-climate/pkg/logging"
	"station-climate/pkg/metrics"
)

var version = "1.0.0"

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Invalid configuration: %v\n", err)
		os.Exit(1)
	}

	logger := cfg.Logging.NewLogger(handlers.ServiceName, version)
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger.Info(ctx, "[STARTUP] Starting weather data API server", logging.Fields{
		"version":     version,
		"server_addr": cfg.Server.Addr(),
		"db_driver":   cfg.Database.Driver,
		"db_name":     cfg.Database.Database,
	})

	metricsCollector := metrics.NewCollector("weather_api")

	db, err := database.Open(ctx, cfg.Database.ConnectionConfig(), logger, metricsCollector)
	if err != nil {
		logger.Fatal(ctx, "[STARTUP_ERROR] Failed to connect to database", logging.Fields{}, err)
	}
	defer db.Close()

	weatherRepo := repository.NewWeatherRepository(db, logger, metricsCollector)
	if cfg.Database.AutoMigrate {
		if err := weatherRepo.Migrate(ctx); err != nil {
			logger.Fatal(ctx, "[STARTUP_ERROR] Failed to migrate schema", logging.Fields{}, err)
		}
	}

	weatherService := services.NewWeatherService(weatherRepo, logger, metricsCollector)
	weatherHandler := handlers.NewWeatherHandler(weatherService, logger, metricsCollector, version)

	server := &http.Server{
		Addr:         cfg.Server.Addr(),
		Handler:      handlers.NewRouter(weatherHandler, cfg.Server.AllowedOrigins, promhttp.Handler()),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	serverErr := make(chan error, 1)
	go func() {
		logger.Info(ctx, "[SERVER_START] HTTP server listening", logging.Fields{
			"address": server.Addr,
		})

		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	select {
	case err := <-serverErr:
		if err != nil {
			logger.Fatal(ctx, "[SERVER_ERROR] Server failed", logging.Fields{}, err)
		}
	case <-ctx.Done():
	}

	logger.Info(context.Background(), "[SHUTDOWN] Shutting down server...", logging.Fields{
		"timeout_seconds": cfg.Server.ShutdownTimeout.Seconds(),
	})

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error(shutdownCtx, "[SHUTDOWN_ERROR] Server forced to shutdown", logging.Fields{}, err)
	}

	logger.Info(context.Background(), "[SHUTDOWN_COMPLETE] Server stopped", logging.Fields{})
}

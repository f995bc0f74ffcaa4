package api

import (
	"net/http"

	"log/slog"

	"github.com/safetycheck/safetycheck/internal/auth"
	"github.com/safetycheck/safetycheck/internal/metrics"
	"github.com/safetycheck/safetycheck/internal/pipeline"
)

// SetupRoutes configures all API routes
func SetupRoutes(mux *http.ServeMux, p *pipeline.Pipeline, collector *metrics.Collector, authConfig auth.Config, version string, logger *slog.Logger) {
	handler := NewHandler(p, collector, version, logger)
	authHandler := NewAuthHandler(authConfig, logger)

	authMiddleware := auth.Middleware(authConfig)

	// Public routes
	mux.HandleFunc("/healthz", handler.HealthzHandler)
	mux.HandleFunc("/api/info", handler.InfoHandler)
	mux.HandleFunc("/api/analyze", handler.AnalyzeHandler)
	mux.HandleFunc("/api/stats", handler.StatsHandler)
	mux.HandleFunc("/api/auth/login", authHandler.Login)

	// Admin routes (JWT protected)
	mux.Handle("/api/admin/cache/clear", authMiddleware(http.HandlerFunc(handler.CacheClearHandler)))

	// Prometheus registry
	if collector != nil {
		mux.Handle("/metrics", collector.Handler())
	}
}

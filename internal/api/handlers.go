package api

import (
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"log/slog"

	"github.com/safetycheck/safetycheck/internal/auth"
	"github.com/safetycheck/safetycheck/internal/metrics"
	"github.com/safetycheck/safetycheck/internal/models"
	"github.com/safetycheck/safetycheck/internal/pipeline"
)

// maxRequestBody bounds the /api/analyze body; dominated by image_b64.
const maxRequestBody = 16 << 20

type Handler struct {
	pipeline  *pipeline.Pipeline
	collector *metrics.Collector
	logger    *slog.Logger
	version   string
	startTime time.Time
}

func NewHandler(p *pipeline.Pipeline, collector *metrics.Collector, version string, logger *slog.Logger) *Handler {
	return &Handler{
		pipeline:  p,
		collector: collector,
		logger:    logger,
		version:   version,
		startTime: time.Now(),
	}
}

// AnalyzeResponse is the envelope for POST /api/analyze.
type AnalyzeResponse struct {
	Success    bool                         `json:"success"`
	Cached     bool                         `json:"cached"`
	Data       *models.SafetyAnalysisResult `json:"data,omitempty"`
	Warnings   []string                     `json:"warnings,omitempty"`
	Error      string                       `json:"error,omitempty"`
	RetryAfter int                          `json:"retry_after_seconds,omitempty"`
}

// AnalyzeHandler handles POST /api/analyze
func (h *Handler) AnalyzeHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBody)

	var req AnalyzeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, AnalyzeResponse{Error: "invalid request body"}, h.logger)
		return
	}

	image, err := ValidateAnalyzeRequest(&req)
	if err != nil {
		var violation *models.SchemaViolationError
		if errors.As(err, &violation) {
			writeJSON(w, http.StatusBadRequest, AnalyzeResponse{Error: violation.Error()}, h.logger)
			return
		}
		writeJSON(w, http.StatusBadRequest, AnalyzeResponse{Error: "invalid request"}, h.logger)
		return
	}

	identity := requestIdentity(r)

	outcome, err := h.pipeline.Process(r.Context(), pipeline.Submission{
		URL:          req.URL,
		Text:         req.Text,
		Context:      req.Context,
		Image:        image,
		PlatformHint: models.Platform(req.PlatformHint),
		Identity:     identity,
	})
	if err != nil {
		var denied *models.RateLimitExceededError
		if errors.As(err, &denied) {
			seconds := int(denied.RetryAfter.Seconds()) + 1
			w.Header().Set("Retry-After", strconv.Itoa(seconds))
			writeJSON(w, http.StatusTooManyRequests, AnalyzeResponse{
				Error:      "rate limit exceeded",
				RetryAfter: seconds,
			}, h.logger)
			return
		}

		h.logger.Error("analysis pipeline failed", "error", err)
		writeJSON(w, http.StatusInternalServerError, AnalyzeResponse{Error: "analysis failed"}, h.logger)
		return
	}

	writeJSON(w, http.StatusOK, AnalyzeResponse{
		Success:  true,
		Cached:   outcome.Cached,
		Data:     outcome.Result,
		Warnings: outcome.Warnings,
	}, h.logger)
}

// StatsResponse is the GET /api/stats body.
type StatsResponse struct {
	TotalRequests   int64   `json:"total_requests"`
	AvgLatencyMS    float64 `json:"avg_latency_ms"`
	CacheHits       int64   `json:"cache_hits"`
	CacheMisses     int64   `json:"cache_misses"`
	CacheHitRate    float64 `json:"cache_hit_rate"`
	APIInvocations  int64   `json:"api_invocations"`
	HourlyRemaining int     `json:"hourly_remaining"`
	DailyRemaining  int     `json:"daily_remaining"`
	UptimeSeconds   int64   `json:"uptime_seconds"`
}

// StatsHandler handles GET /api/stats
func (h *Handler) StatsHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	stats := h.pipeline.Stats()
	hourly, daily := h.pipeline.RateLimitRemaining(requestIdentity(r))

	resp := StatsResponse{
		CacheHits:       stats.Cache.Hits,
		CacheMisses:     stats.Cache.Misses,
		CacheHitRate:    stats.CacheHitRate,
		APIInvocations:  stats.APIInvocations,
		HourlyRemaining: hourly,
		DailyRemaining:  daily,
		UptimeSeconds:   int64(time.Since(h.startTime).Seconds()),
	}
	if h.collector != nil {
		snap := h.collector.Snapshot()
		resp.TotalRequests = snap.TotalRequests
		resp.AvgLatencyMS = snap.AvgLatencyMS
	}

	writeJSON(w, http.StatusOK, resp, h.logger)
}

// HealthzHandler handles GET /healthz
func (h *Handler) HealthzHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"}, h.logger)
}

// InfoHandler handles GET /api/info
func (h *Handler) InfoHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"service":        "safetycheck",
		"version":        h.version,
		"uptime_seconds": int64(time.Since(h.startTime).Seconds()),
	}, h.logger)
}

// CacheClearHandler handles POST /api/admin/cache/clear
func (h *Handler) CacheClearHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	if err := h.pipeline.ClearCache(r.Context()); err != nil {
		h.logger.Error("cache clear failed", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]any{"success": false}, h.logger)
		return
	}

	subject, _ := auth.SubjectFromContext(r.Context())
	h.logger.Info("result cache cleared", "subject", subject)
	writeJSON(w, http.StatusOK, map[string]any{"success": true}, h.logger)
}

// requestIdentity derives the rate-limit identity: a hashed API key when the
// caller presents one, the client IP otherwise.
func requestIdentity(r *http.Request) string {
	if key := r.Header.Get("X-API-Key"); key != "" {
		return "key:" + auth.HashAPIKey(key)
	}

	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		if first, _, ok := strings.Cut(fwd, ","); ok {
			return "ip:" + strings.TrimSpace(first)
		}
		return "ip:" + strings.TrimSpace(fwd)
	}

	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return "ip:" + r.RemoteAddr
	}
	return "ip:" + host
}

func writeJSON(w http.ResponseWriter, status int, body any, logger *slog.Logger) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		logger.Error("failed to encode response", "error", err)
	}
}

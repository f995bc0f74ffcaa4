package metrics

import (
	"net/http"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector exposes Prometheus metrics for inbound HTTP traffic and the
// analysis pipeline.
type Collector struct {
	registry        *prometheus.Registry
	requestDuration *prometheus.HistogramVec
	requestTotal    *prometheus.CounterVec

	cacheHits        prometheus.Counter
	cacheMisses      prometheus.Counter
	apiInvocations   prometheus.Counter
	rateLimitDenials prometheus.Counter
	analysisDuration prometheus.Histogram

	// request totals kept separately for the JSON stats endpoint
	totalRequests  atomic.Int64
	totalLatencyMS atomic.Int64
}

// NewCollector constructs a collector with its own registry.
func NewCollector() (*Collector, error) {
	registry := prometheus.NewRegistry()

	requestDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "safetycheck",
		Subsystem: "http",
		Name:      "request_duration_seconds",
		Help:      "Latency distribution for inbound HTTP requests.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	requestTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "safetycheck",
		Subsystem: "http",
		Name:      "requests_total",
		Help:      "Total number of inbound HTTP requests.",
	}, []string{"method", "path", "status"})

	cacheHits := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "safetycheck",
		Subsystem: "result_cache",
		Name:      "hits_total",
		Help:      "Result cache hits.",
	})

	cacheMisses := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "safetycheck",
		Subsystem: "result_cache",
		Name:      "misses_total",
		Help:      "Result cache misses.",
	})

	apiInvocations := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "safetycheck",
		Subsystem: "analysis",
		Name:      "api_invocations_total",
		Help:      "Analyses completed via the reasoning API.",
	})

	rateLimitDenials := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "safetycheck",
		Subsystem: "ratelimit",
		Name:      "denials_total",
		Help:      "Requests denied by the rate limiter.",
	})

	analysisDuration := prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "safetycheck",
		Subsystem: "analysis",
		Name:      "duration_seconds",
		Help:      "End-to-end pipeline latency per analyzed submission.",
		Buckets:   []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
	})

	for _, c := range []prometheus.Collector{
		requestDuration, requestTotal, cacheHits, cacheMisses,
		apiInvocations, rateLimitDenials, analysisDuration,
	} {
		if err := registry.Register(c); err != nil {
			return nil, err
		}
	}

	return &Collector{
		registry:         registry,
		requestDuration:  requestDuration,
		requestTotal:     requestTotal,
		cacheHits:        cacheHits,
		cacheMisses:      cacheMisses,
		apiInvocations:   apiInvocations,
		rateLimitDenials: rateLimitDenials,
		analysisDuration: analysisDuration,
	}, nil
}

// Handler returns the /metrics endpoint handler.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

// InstrumentHandler wraps a handler to record HTTP metrics.
func (c *Collector) InstrumentHandler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		rw := &responseWriter{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(rw, r)

		elapsed := time.Since(start)
		status := strconv.Itoa(rw.status)
		path := r.URL.Path

		c.requestTotal.WithLabelValues(r.Method, path, status).Inc()
		c.requestDuration.WithLabelValues(r.Method, path, status).Observe(elapsed.Seconds())

		c.totalRequests.Add(1)
		c.totalLatencyMS.Add(elapsed.Milliseconds())
	})
}

// RecordCacheHit counts a result cache hit.
func (c *Collector) RecordCacheHit() { c.cacheHits.Inc() }

// RecordCacheMiss counts a result cache miss.
func (c *Collector) RecordCacheMiss() { c.cacheMisses.Inc() }

// RecordAPIInvocation counts one completed reasoning-API analysis.
func (c *Collector) RecordAPIInvocation() { c.apiInvocations.Inc() }

// RecordRateLimitDenial counts a denied submission.
func (c *Collector) RecordRateLimitDenial() { c.rateLimitDenials.Inc() }

// RecordAnalysisDuration observes one pipeline run.
func (c *Collector) RecordAnalysisDuration(d time.Duration) {
	c.analysisDuration.Observe(d.Seconds())
}

// Snapshot summarizes request totals for the JSON stats endpoint.
type Snapshot struct {
	TotalRequests int64   `json:"total_requests"`
	AvgLatencyMS  float64 `json:"avg_latency_ms"`
}

// Snapshot returns current request totals.
func (c *Collector) Snapshot() Snapshot {
	total := c.totalRequests.Load()
	snap := Snapshot{TotalRequests: total}
	if total > 0 {
		snap.AvgLatencyMS = float64(c.totalLatencyMS.Load()) / float64(total)
	}
	return snap
}

type responseWriter struct {
	http.ResponseWriter
	status int
}

func (w *responseWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

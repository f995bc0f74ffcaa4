package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"log/slog"

	"github.com/safetycheck/safetycheck/internal/adapters"
	"github.com/safetycheck/safetycheck/internal/auth"
	"github.com/safetycheck/safetycheck/internal/mediacache"
	"github.com/safetycheck/safetycheck/internal/mediaproc"
	"github.com/safetycheck/safetycheck/internal/models"
	"github.com/safetycheck/safetycheck/internal/pipeline"
	"github.com/safetycheck/safetycheck/internal/ratelimit"
	"github.com/safetycheck/safetycheck/internal/resultcache"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type stubAnalyzer struct {
	calls atomic.Int64
}

func (a *stubAnalyzer) Analyze(context.Context, *models.CanonicalPost) (*models.SafetyAnalysisResult, error) {
	a.calls.Add(1)
	return &models.SafetyAnalysisResult{
		RiskScore:         0.9,
		RiskLevel:         models.RiskCritical,
		Summary:           "test result",
		KeySignals:        []string{"a", "b"},
		FactChecks:        []models.FactCheck{},
		AnalysisTimestamp: time.Now().UTC(),
		ModelVersion:      "stub",
	}, nil
}

func (a *stubAnalyzer) Invocations() int64 { return a.calls.Load() }

var testAuthConfig = auth.Config{
	JWTSecret:     "test-secret",
	AdminPassword: "test-password",
	TokenDuration: time.Hour,
}

func newTestMux(t *testing.T, limiter *ratelimit.Limiter) (*http.ServeMux, *stubAnalyzer) {
	t.Helper()

	logger := testLogger()
	mcache, err := mediacache.New(mediacache.Options{Dir: t.TempDir()}, logger)
	if err != nil {
		t.Fatalf("media cache: %v", err)
	}
	if limiter == nil {
		limiter = ratelimit.New(0, 0)
	}

	analyzer := &stubAnalyzer{}
	p := pipeline.New(
		adapters.NewRegistry(logger),
		mediaproc.New(mcache, mediaproc.NewStaticExtractor(), logger),
		resultcache.NewMemoryCache(time.Hour),
		limiter,
		analyzer,
		nil,
		logger,
	)

	mux := http.NewServeMux()
	SetupRoutes(mux, p, nil, testAuthConfig, "test", logger)
	return mux, analyzer
}

func postAnalyze(t *testing.T, mux *http.ServeMux, body AnalyzeRequest, headers map[string]string) (*httptest.ResponseRecorder, AnalyzeResponse) {
	t.Helper()

	raw, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("marshal request: %v", err)
	}

	req := httptest.NewRequest(http.MethodPost, "/api/analyze", bytes.NewReader(raw))
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	var resp AnalyzeResponse
	if rec.Body.Len() > 0 {
		json.Unmarshal(rec.Body.Bytes(), &resp)
	}
	return rec, resp
}

func TestAnalyzeHandler_TextSubmission(t *testing.T) {
	mux, analyzer := newTestMux(t, nil)

	rec, resp := postAnalyze(t, mux, AnalyzeRequest{Text: "URGENT! Send Bitcoin now!"}, nil)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if !resp.Success {
		t.Error("expected success")
	}
	if resp.Cached {
		t.Error("first submission must not be cached")
	}
	if resp.Data == nil || resp.Data.RiskLevel != models.RiskCritical {
		t.Errorf("unexpected data %+v", resp.Data)
	}
	if analyzer.Invocations() != 1 {
		t.Errorf("expected 1 analysis, got %d", analyzer.Invocations())
	}
}

func TestAnalyzeHandler_CachedResubmission(t *testing.T) {
	mux, analyzer := newTestMux(t, nil)

	body := AnalyzeRequest{Text: "same thing twice"}
	postAnalyze(t, mux, body, nil)
	rec, resp := postAnalyze(t, mux, body, nil)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if !resp.Cached {
		t.Error("expected cached=true on resubmission")
	}
	if analyzer.Invocations() != 1 {
		t.Errorf("expected single analysis, got %d", analyzer.Invocations())
	}
}

func TestAnalyzeHandler_ValidationFailure(t *testing.T) {
	mux, analyzer := newTestMux(t, nil)

	rec, resp := postAnalyze(t, mux, AnalyzeRequest{URL: "http://127.0.0.1/internal"}, nil)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
	if resp.Error == "" {
		t.Error("expected error message in envelope")
	}
	if analyzer.Invocations() != 0 {
		t.Error("invalid input must not reach the analyzer")
	}
}

func TestAnalyzeHandler_MalformedBody(t *testing.T) {
	mux, _ := newTestMux(t, nil)

	req := httptest.NewRequest(http.MethodPost, "/api/analyze", bytes.NewReader([]byte("{not json")))
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", rec.Code)
	}
}

func TestAnalyzeHandler_MethodNotAllowed(t *testing.T) {
	mux, _ := newTestMux(t, nil)

	req := httptest.NewRequest(http.MethodGet, "/api/analyze", nil)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	if rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("expected 405, got %d", rec.Code)
	}
}

func TestAnalyzeHandler_RateLimited(t *testing.T) {
	mux, _ := newTestMux(t, ratelimit.New(1, 10))

	postAnalyze(t, mux, AnalyzeRequest{Text: "first unique text"}, nil)
	rec, resp := postAnalyze(t, mux, AnalyzeRequest{Text: "second unique text"}, nil)

	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", rec.Code)
	}
	if resp.RetryAfter <= 0 {
		t.Errorf("expected positive retry_after_seconds, got %d", resp.RetryAfter)
	}
	if rec.Header().Get("Retry-After") == "" {
		t.Error("expected Retry-After header")
	}
}

func TestAnalyzeHandler_APIKeyIsolatesIdentities(t *testing.T) {
	mux, _ := newTestMux(t, ratelimit.New(1, 10))

	rec1, _ := postAnalyze(t, mux, AnalyzeRequest{Text: "first distinct"}, map[string]string{"X-API-Key": "key-a"})
	rec2, _ := postAnalyze(t, mux, AnalyzeRequest{Text: "second distinct"}, map[string]string{"X-API-Key": "key-b"})

	if rec1.Code != http.StatusOK || rec2.Code != http.StatusOK {
		t.Errorf("expected both keys to have independent budgets, got %d and %d", rec1.Code, rec2.Code)
	}
}

func TestRequestIdentity(t *testing.T) {
	withKey := httptest.NewRequest(http.MethodPost, "/api/analyze", nil)
	withKey.Header.Set("X-API-Key", "secret-key")
	keyIdentity := requestIdentity(withKey)
	if keyIdentity == "key:secret-key" {
		t.Error("raw API key must not be used as identity")
	}
	if keyIdentity[:4] != "key:" {
		t.Errorf("expected key-based identity, got %q", keyIdentity)
	}

	withIP := httptest.NewRequest(http.MethodPost, "/api/analyze", nil)
	withIP.RemoteAddr = "203.0.113.7:51234"
	if got := requestIdentity(withIP); got != "ip:203.0.113.7" {
		t.Errorf("expected ip identity, got %q", got)
	}

	forwarded := httptest.NewRequest(http.MethodPost, "/api/analyze", nil)
	forwarded.Header.Set("X-Forwarded-For", "198.51.100.9, 10.0.0.1")
	if got := requestIdentity(forwarded); got != "ip:198.51.100.9" {
		t.Errorf("expected forwarded ip identity, got %q", got)
	}
}

func TestStatsHandler(t *testing.T) {
	mux, _ := newTestMux(t, nil)

	postAnalyze(t, mux, AnalyzeRequest{Text: "stats sample"}, nil)
	postAnalyze(t, mux, AnalyzeRequest{Text: "stats sample"}, nil)

	req := httptest.NewRequest(http.MethodGet, "/api/stats", nil)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	var stats StatsResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &stats); err != nil {
		t.Fatalf("decode stats: %v", err)
	}
	if stats.APIInvocations != 1 {
		t.Errorf("expected 1 invocation, got %d", stats.APIInvocations)
	}
	if stats.CacheHits < 1 {
		t.Errorf("expected cache hits recorded, got %d", stats.CacheHits)
	}
	if stats.HourlyRemaining <= 0 || stats.DailyRemaining <= 0 {
		t.Errorf("expected positive remaining budgets, got %d/%d", stats.HourlyRemaining, stats.DailyRemaining)
	}
}

func TestHealthz(t *testing.T) {
	mux, _ := newTestMux(t, nil)

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rec.Code)
	}
}

func TestLoginAndCacheClear(t *testing.T) {
	mux, _ := newTestMux(t, nil)

	t.Run("clear without token", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/api/admin/cache/clear", nil)
		rec := httptest.NewRecorder()
		mux.ServeHTTP(rec, req)
		if rec.Code != http.StatusUnauthorized {
			t.Errorf("expected 401, got %d", rec.Code)
		}
	})

	t.Run("wrong password", func(t *testing.T) {
		body, _ := json.Marshal(LoginRequest{Password: "wrong"})
		req := httptest.NewRequest(http.MethodPost, "/api/auth/login", bytes.NewReader(body))
		rec := httptest.NewRecorder()
		mux.ServeHTTP(rec, req)
		if rec.Code != http.StatusUnauthorized {
			t.Errorf("expected 401, got %d", rec.Code)
		}
	})

	t.Run("login then clear", func(t *testing.T) {
		body, _ := json.Marshal(LoginRequest{Password: "test-password"})
		req := httptest.NewRequest(http.MethodPost, "/api/auth/login", bytes.NewReader(body))
		rec := httptest.NewRecorder()
		mux.ServeHTTP(rec, req)
		if rec.Code != http.StatusOK {
			t.Fatalf("login failed with %d", rec.Code)
		}

		var login LoginResponse
		if err := json.Unmarshal(rec.Body.Bytes(), &login); err != nil {
			t.Fatalf("decode login response: %v", err)
		}

		clearReq := httptest.NewRequest(http.MethodPost, "/api/admin/cache/clear", nil)
		clearReq.Header.Set("Authorization", "Bearer "+login.Token)
		clearRec := httptest.NewRecorder()
		mux.ServeHTTP(clearRec, clearReq)

		if clearRec.Code != http.StatusOK {
			t.Errorf("expected 200, got %d: %s", clearRec.Code, clearRec.Body.String())
		}
	})
}

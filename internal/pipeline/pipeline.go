package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/safetycheck/safetycheck/internal/adapters"
	"github.com/safetycheck/safetycheck/internal/analysis"
	"github.com/safetycheck/safetycheck/internal/mediaproc"
	"github.com/safetycheck/safetycheck/internal/metrics"
	"github.com/safetycheck/safetycheck/internal/models"
	"github.com/safetycheck/safetycheck/internal/ratelimit"
	"github.com/safetycheck/safetycheck/internal/resultcache"
)

// Submission is one analysis request after transport-level validation.
// Exactly one of URL, Text or Image carries the content; Context optionally
// adds submitter-provided framing. Identity keys the rate limiter.
type Submission struct {
	URL          string
	Text         string
	Context      string
	Image        []byte
	PlatformHint models.Platform
	Identity     string
}

// Outcome is the pipeline's answer for a submission.
type Outcome struct {
	Result      *models.SafetyAnalysisResult
	Post        *models.CanonicalPost
	Fingerprint string
	Cached      bool

	// Warnings lists non-fatal degradations, e.g. an unreachable source
	// that forced a minimal-post analysis.
	Warnings []string
}

// Pipeline runs a submission through extraction, media enrichment, cache
// lookup, rate limiting and analysis.
type Pipeline struct {
	registry *adapters.Registry
	media    *mediaproc.Processor
	cache    resultcache.Cache
	limiter  *ratelimit.Limiter
	analyzer analysis.Analyzer
	metrics  *metrics.Collector
	logger   *slog.Logger

	mu    sync.Mutex
	locks map[string]*fingerprintLock
}

// fingerprintLock serializes analysis per content fingerprint so concurrent
// identical submissions usually cost a single API call.
type fingerprintLock struct {
	mu   sync.Mutex
	refs int
}

// New wires the pipeline. The metrics collector may be nil.
func New(registry *adapters.Registry, media *mediaproc.Processor, cache resultcache.Cache, limiter *ratelimit.Limiter, analyzer analysis.Analyzer, collector *metrics.Collector, logger *slog.Logger) *Pipeline {
	return &Pipeline{
		registry: registry,
		media:    media,
		cache:    cache,
		limiter:  limiter,
		analyzer: analyzer,
		metrics:  collector,
		logger:   logger,
		locks:    make(map[string]*fingerprintLock),
	}
}

// Process runs the full flow for one submission. Extraction and media
// failures degrade to a minimal post; a rate-limit denial surfaces as
// RateLimitExceededError; analysis exhaustion surfaces as the neutral
// fallback result inside a normal outcome.
func (p *Pipeline) Process(ctx context.Context, sub Submission) (*Outcome, error) {
	start := time.Now()

	post, warnings := p.resolve(ctx, sub)
	post.Normalize()

	p.media.EnrichPost(ctx, post)

	if len(sub.Image) > 0 {
		meta, features := p.media.ProcessBytes(ctx, sub.Image, models.MediaTypeImage)
		post.MediaItems = append(post.MediaItems, meta)
		post.MediaFeatures = append(post.MediaFeatures, features)
	}

	fingerprint := resultcache.Fingerprint(post)

	if cached, err := p.lookup(ctx, fingerprint); err == nil && cached != nil {
		return &Outcome{
			Result:      cached,
			Post:        post,
			Fingerprint: fingerprint,
			Cached:      true,
			Warnings:    warnings,
		}, nil
	}

	decision := p.limiter.Check(sub.Identity)
	if !decision.Allowed {
		if p.metrics != nil {
			p.metrics.RecordRateLimitDenial()
		}
		return nil, &models.RateLimitExceededError{
			Identity:   sub.Identity,
			RetryAfter: decision.RetryAfter,
		}
	}

	release := p.lockFingerprint(fingerprint)
	defer release()

	// Another request may have finished this fingerprint while we waited.
	if cached, err := p.lookup(ctx, fingerprint); err == nil && cached != nil {
		return &Outcome{
			Result:      cached,
			Post:        post,
			Fingerprint: fingerprint,
			Cached:      true,
			Warnings:    warnings,
		}, nil
	}

	result, err := p.analyzer.Analyze(ctx, post)
	if err != nil {
		return nil, fmt.Errorf("analysis failed: %w", err)
	}

	if p.metrics != nil {
		p.metrics.RecordAPIInvocation()
		p.metrics.RecordAnalysisDuration(time.Since(start))
	}

	if err := p.cache.Store(ctx, fingerprint, result); err != nil {
		p.logger.Warn("result cache store failed",
			"fingerprint", fingerprint,
			"error", err)
	}

	p.logger.Info("analysis complete",
		"post_id", post.PostID,
		"platform", post.PlatformName,
		"risk_level", result.RiskLevel,
		"duration_ms", time.Since(start).Milliseconds())

	return &Outcome{
		Result:      result,
		Post:        post,
		Fingerprint: fingerprint,
		Warnings:    warnings,
	}, nil
}

// resolve extracts a canonical post from the submission, degrading adapter
// failures into a minimal post plus a warning.
func (p *Pipeline) resolve(ctx context.Context, sub Submission) (*models.CanonicalPost, []string) {
	if sub.URL == "" {
		return p.registry.RawText().ExtractFromText(sub.Text, sub.Context), nil
	}

	adapter := p.registry.ForURL(sub.URL)
	if sub.PlatformHint != "" && sub.PlatformHint != models.PlatformUnknown {
		if hinted := p.registry.ForPlatform(sub.PlatformHint); hinted != nil {
			adapter = hinted
		}
	}

	post, err := adapter.Extract(ctx, sub.URL)

	var warnings []string
	if err != nil {
		p.logger.Warn("extraction degraded",
			"url", sub.URL,
			"platform", adapter.PlatformName(),
			"error", err)
		warnings = append(warnings, fmt.Sprintf("source extraction incomplete: %v", err))
	}
	if post == nil {
		post = p.registry.RawText().ExtractFromText(sub.URL, sub.Context)
		post.RawURL = sub.URL
	}
	if sub.Context != "" && post.ReplyContext == "" {
		post.ReplyContext = sub.Context
	}

	return post, warnings
}

// lookup consults the result cache and records the hit/miss metric. Cache
// backend errors count as misses.
func (p *Pipeline) lookup(ctx context.Context, fingerprint string) (*models.SafetyAnalysisResult, error) {
	result, found, err := p.cache.Lookup(ctx, fingerprint)
	if err != nil {
		p.logger.Warn("result cache lookup failed",
			"fingerprint", fingerprint,
			"error", err)
		return nil, err
	}
	if !found {
		if p.metrics != nil {
			p.metrics.RecordCacheMiss()
		}
		return nil, nil
	}

	if p.metrics != nil {
		p.metrics.RecordCacheHit()
	}
	return result, nil
}

// lockFingerprint acquires the per-fingerprint mutex, creating it on first
// use and dropping it once the last holder releases.
func (p *Pipeline) lockFingerprint(fingerprint string) func() {
	p.mu.Lock()
	l := p.locks[fingerprint]
	if l == nil {
		l = &fingerprintLock{}
		p.locks[fingerprint] = l
	}
	l.refs++
	p.mu.Unlock()

	l.mu.Lock()

	return func() {
		l.mu.Unlock()

		p.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(p.locks, fingerprint)
		}
		p.mu.Unlock()
	}
}

// Stats aggregates pipeline counters for the stats endpoint.
type Stats struct {
	Cache          resultcache.Stats `json:"cache"`
	CacheHitRate   float64           `json:"cache_hit_rate"`
	APIInvocations int64             `json:"api_invocations"`
}

// Stats returns a point-in-time counter snapshot.
func (p *Pipeline) Stats() Stats {
	cacheStats := p.cache.Stats()
	return Stats{
		Cache:          cacheStats,
		CacheHitRate:   cacheStats.HitRate(),
		APIInvocations: p.analyzer.Invocations(),
	}
}

// ClearCache empties the result cache.
func (p *Pipeline) ClearCache(ctx context.Context) error {
	return p.cache.Clear(ctx)
}

// RateLimitRemaining reports current limiter headroom for an identity.
func (p *Pipeline) RateLimitRemaining(identity string) (hourly, daily int) {
	return p.limiter.Remaining(identity)
}

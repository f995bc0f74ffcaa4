package resultcache

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/safetycheck/safetycheck/internal/models"
)

// DefaultTTL is the lifetime of a cached result unless configured otherwise.
const DefaultTTL = time.Hour

// Cache maps a content fingerprint to a previously computed analysis result.
// Expired entries behave as misses. Implementations must be safe for
// concurrent use.
type Cache interface {
	// Lookup returns the cached result for a fingerprint, or found=false on
	// a miss or an expired entry.
	Lookup(ctx context.Context, fingerprint string) (result *models.SafetyAnalysisResult, found bool, err error)

	// Store writes a result under a fingerprint with the cache's TTL. The
	// last writer for a fingerprint wins.
	Store(ctx context.Context, fingerprint string, result *models.SafetyAnalysisResult) error

	// Clear removes all entries immediately, independent of TTL.
	Clear(ctx context.Context) error

	// Stats reports hit/miss counters accumulated since process start.
	Stats() Stats
}

// Stats carries cache observability counters.
type Stats struct {
	Hits   int64 `json:"hits"`
	Misses int64 `json:"misses"`
}

// HitRate returns hits / (hits+misses), or 0 when the cache is untouched.
func (s Stats) HitRate() float64 {
	total := s.Hits + s.Misses
	if total == 0 {
		return 0
	}
	return float64(s.Hits) / float64(total)
}

// counters tracks hits and misses atomically; embedded by both backends.
type counters struct {
	hits   atomic.Int64
	misses atomic.Int64
}

func (c *counters) recordHit()  { c.hits.Add(1) }
func (c *counters) recordMiss() { c.misses.Add(1) }

func (c *counters) Stats() Stats {
	return Stats{Hits: c.hits.Load(), Misses: c.misses.Load()}
}

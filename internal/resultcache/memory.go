package resultcache

import (
	"context"
	"sync"
	"time"

	"github.com/safetycheck/safetycheck/internal/models"
)

// MemoryCache is the in-process result cache backend.
type MemoryCache struct {
	mu      sync.Mutex
	entries map[string]memoryEntry
	ttl     time.Duration
	now     func() time.Time

	counters
}

type memoryEntry struct {
	result    models.SafetyAnalysisResult
	expiresAt time.Time
}

// NewMemoryCache creates an in-process cache. A non-positive ttl falls back
// to DefaultTTL.
func NewMemoryCache(ttl time.Duration) *MemoryCache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &MemoryCache{
		entries: make(map[string]memoryEntry),
		ttl:     ttl,
		now:     time.Now,
	}
}

// Lookup returns the cached result for a fingerprint. Expired entries are
// deleted on the spot and reported as misses.
func (c *MemoryCache) Lookup(_ context.Context, fingerprint string) (*models.SafetyAnalysisResult, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.entries[fingerprint]
	if !ok {
		c.recordMiss()
		return nil, false, nil
	}

	if c.now().After(entry.expiresAt) {
		delete(c.entries, fingerprint)
		c.recordMiss()
		return nil, false, nil
	}

	c.recordHit()
	result := entry.result
	return &result, true, nil
}

// Store writes a result under a fingerprint. The value is copied so later
// caller mutations cannot corrupt the cached entry.
func (c *MemoryCache) Store(_ context.Context, fingerprint string, result *models.SafetyAnalysisResult) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries[fingerprint] = memoryEntry{
		result:    *result,
		expiresAt: c.now().Add(c.ttl),
	}

	c.pruneExpiredLocked()
	return nil
}

// Clear drops every entry immediately.
func (c *MemoryCache) Clear(_ context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries = make(map[string]memoryEntry)
	return nil
}

// Len reports the number of live entries, expired ones included until pruned.
func (c *MemoryCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// pruneExpiredLocked evicts expired entries. Caller must hold the lock.
func (c *MemoryCache) pruneExpiredLocked() {
	now := c.now()
	for fp, entry := range c.entries {
		if now.After(entry.expiresAt) {
			delete(c.entries, fp)
		}
	}
}

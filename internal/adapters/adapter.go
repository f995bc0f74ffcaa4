package adapters

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"log/slog"
	"regexp"
	"strings"

	"github.com/safetycheck/safetycheck/internal/models"
)

// Adapter normalizes platform content into a CanonicalPost. Extract may
// return a typed adapter error together with a best-effort minimal post;
// callers degrade on those errors instead of failing the pipeline.
type Adapter interface {
	PlatformName() models.Platform
	Matches(url string) bool
	Extract(ctx context.Context, url string) (*models.CanonicalPost, error)
}

// Registry resolves the adapter for a submission. Selection is first match
// wins over the registration order; unmatched URLs fall through to the
// raw-text adapter.
type Registry struct {
	adapters []Adapter
	rawText  *RawTextAdapter
}

// NewRegistry builds the default registry with all platform adapters.
func NewRegistry(logger *slog.Logger) *Registry {
	return &Registry{
		adapters: []Adapter{
			NewRedditAdapter(logger),
			NewTwitterAdapter(logger),
		},
		rawText: NewRawTextAdapter(),
	}
}

// Register adds an adapter ahead of the defaults, so it wins pattern
// matching against them.
func (r *Registry) Register(a Adapter) {
	r.adapters = append([]Adapter{a}, r.adapters...)
}

// ForURL returns the first adapter whose pattern matches, or the raw-text
// adapter when none does.
func (r *Registry) ForURL(url string) Adapter {
	for _, a := range r.adapters {
		if a.Matches(url) {
			return a
		}
	}
	return r.rawText
}

// ForPlatform returns the adapter registered under a platform name, or nil.
// Used to honour an explicit platform hint from the caller.
func (r *Registry) ForPlatform(name models.Platform) Adapter {
	for _, a := range r.adapters {
		if a.PlatformName() == name {
			return a
		}
	}
	return nil
}

// RawText returns the passthrough adapter for text-only submissions.
func (r *Registry) RawText() *RawTextAdapter {
	return r.rawText
}

var (
	hashtagRegex = regexp.MustCompile(`#(\w+)`)
	mentionRegex = regexp.MustCompile(`@(\w+)`)
	linkRegex    = regexp.MustCompile(`https?://\S+`)
)

// extractHashtags pulls hashtag labels out of free text.
func extractHashtags(text string) []string {
	var tags []string
	for _, m := range hashtagRegex.FindAllStringSubmatch(text, -1) {
		tags = append(tags, m[1])
	}
	return tags
}

// extractMentions pulls @-mention handles out of free text.
func extractMentions(text string) []string {
	var mentions []string
	for _, m := range mentionRegex.FindAllStringSubmatch(text, -1) {
		mentions = append(mentions, m[1])
	}
	return mentions
}

// shortDigest derives a stable short identifier from arbitrary input, used
// for post IDs when the source did not yield one.
func shortDigest(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:6])
}

// extractLinks pulls external URLs out of free text, deduplicated.
func extractLinks(text string) []string {
	seen := make(map[string]bool)
	var links []string
	for _, l := range linkRegex.FindAllString(text, -1) {
		l = strings.TrimRight(l, ".,;:!?)")
		if !seen[l] {
			seen[l] = true
			links = append(links, l)
		}
	}
	return links
}

package adapters

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/safetycheck/safetycheck/internal/models"
)

// RawTextAdapter is the passthrough for text-only submissions and the
// fallback when no platform pattern matches a URL.
type RawTextAdapter struct{}

// NewRawTextAdapter constructs the passthrough adapter.
func NewRawTextAdapter() *RawTextAdapter {
	return &RawTextAdapter{}
}

func (a *RawTextAdapter) PlatformName() models.Platform {
	return models.PlatformUnknown
}

// Matches never matches; the registry selects this adapter only as fallback.
func (a *RawTextAdapter) Matches(string) bool {
	return false
}

// Extract treats an unmatched URL as opaque text and records it as raw_url.
func (a *RawTextAdapter) Extract(_ context.Context, url string) (*models.CanonicalPost, error) {
	post := a.ExtractFromText(url, "")
	post.RawURL = url
	return post, nil
}

// ExtractFromText builds a post directly from submitted text. The optional
// context string (e.g. a caption accompanying an uploaded image) is kept as
// reply context for the prompt.
func (a *RawTextAdapter) ExtractFromText(text, contextText string) *models.CanonicalPost {
	now := time.Now().UTC()
	post := &models.CanonicalPost{
		PostID:        "raw-" + uuid.NewString(),
		PostText:      text,
		PlatformName:  models.PlatformUnknown,
		Timestamp:     &now,
		Hashtags:      extractHashtags(text),
		Mentions:      extractMentions(text),
		ExternalLinks: extractLinks(text),
		ReplyContext:  contextText,
	}
	post.Normalize()
	return post
}

package adapters

import (
	"context"
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/safetycheck/safetycheck/internal/models"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestRegistry_ForURL(t *testing.T) {
	registry := NewRegistry(testLogger())

	tests := []struct {
		url      string
		expected models.Platform
	}{
		{"https://www.reddit.com/r/golang/comments/abc123/some_post/", models.PlatformReddit},
		{"https://old.reddit.com/r/news/comments/xyz789", models.PlatformReddit},
		{"https://twitter.com/someone/status/1234567890", models.PlatformTwitter},
		{"https://x.com/someone/status/1234567890", models.PlatformTwitter},
		{"https://example.com/blog/post", models.PlatformUnknown},
		{"not a url at all", models.PlatformUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.url, func(t *testing.T) {
			adapter := registry.ForURL(tt.url)
			if adapter.PlatformName() != tt.expected {
				t.Errorf("ForURL(%q) selected %q, want %q", tt.url, adapter.PlatformName(), tt.expected)
			}
		})
	}
}

type fakeAdapter struct {
	platform models.Platform
	pattern  string
}

func (f fakeAdapter) PlatformName() models.Platform { return f.platform }
func (f fakeAdapter) Matches(url string) bool       { return strings.Contains(url, f.pattern) }
func (f fakeAdapter) Extract(_ context.Context, url string) (*models.CanonicalPost, error) {
	return &models.CanonicalPost{PostID: "fake", RawURL: url, PlatformName: f.platform}, nil
}

func TestRegistry_RegisterTakesPriority(t *testing.T) {
	registry := NewRegistry(testLogger())
	registry.Register(fakeAdapter{platform: models.PlatformTikTok, pattern: "reddit.com"})

	adapter := registry.ForURL("https://www.reddit.com/r/golang/comments/abc123/some_post/")
	if adapter.PlatformName() != models.PlatformTikTok {
		t.Errorf("expected registered adapter to win matching, got %q", adapter.PlatformName())
	}
}

func TestRegistry_ForPlatform(t *testing.T) {
	registry := NewRegistry(testLogger())

	if a := registry.ForPlatform(models.PlatformReddit); a == nil || a.PlatformName() != models.PlatformReddit {
		t.Error("expected reddit adapter for reddit hint")
	}
	if a := registry.ForPlatform(models.PlatformTikTok); a != nil {
		t.Error("expected nil for unregistered platform")
	}
}

func TestRawTextAdapter_ExtractFromText(t *testing.T) {
	adapter := NewRawTextAdapter()

	post := adapter.ExtractFromText("Check out #crypto deal from @scammer at https://evil.example.com/offer now!", "found in a DM")

	if post.PlatformName != models.PlatformUnknown {
		t.Errorf("expected unknown platform, got %q", post.PlatformName)
	}
	if !strings.HasPrefix(post.PostID, "raw-") {
		t.Errorf("expected generated post id, got %q", post.PostID)
	}
	if len(post.Hashtags) != 1 || post.Hashtags[0] != "crypto" {
		t.Errorf("expected hashtag [crypto], got %v", post.Hashtags)
	}
	if len(post.Mentions) != 1 || post.Mentions[0] != "scammer" {
		t.Errorf("expected mention [scammer], got %v", post.Mentions)
	}
	if len(post.ExternalLinks) != 1 || post.ExternalLinks[0] != "https://evil.example.com/offer" {
		t.Errorf("expected trimmed link, got %v", post.ExternalLinks)
	}
	if post.ReplyContext != "found in a DM" {
		t.Errorf("expected reply context preserved, got %q", post.ReplyContext)
	}
	if post.AdapterVersion != models.DefaultAdapterVersion {
		t.Errorf("expected default adapter version, got %q", post.AdapterVersion)
	}
}

func TestRawTextAdapter_DistinctIDs(t *testing.T) {
	adapter := NewRawTextAdapter()

	a := adapter.ExtractFromText("same text", "")
	b := adapter.ExtractFromText("same text", "")
	if a.PostID == b.PostID {
		t.Error("expected unique post ids per submission")
	}
}

func TestExtractLinks_Dedup(t *testing.T) {
	links := extractLinks("see https://a.example.com and https://a.example.com again plus https://b.example.com.")
	if len(links) != 2 {
		t.Fatalf("expected 2 unique links, got %v", links)
	}
	if links[1] != "https://b.example.com" {
		t.Errorf("expected trailing punctuation trimmed, got %q", links[1])
	}
}

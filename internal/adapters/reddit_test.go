package adapters

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/safetycheck/safetycheck/internal/models"
)

const redditListingJSON = `[
  {"data": {"children": [{"data": {
    "id": "abc123",
    "title": "Guaranteed 10x returns!",
    "selftext": "Send Bitcoin to this address https://scam.example.com/wallet",
    "author": "throwaway99",
    "created_utc": 1735689600,
    "ups": 15000,
    "num_comments": 420,
    "subreddit": "investing",
    "post_hint": "image",
    "url": "https://i.redd.it/proof.jpg"
  }}]}},
  {"data": {"children": [
    {"data": {"body": "This is a scam"}},
    {"data": {"body": "[removed]"}},
    {"data": {"body": "Reported"}},
    {"data": {"body": "Classic ponzi"}},
    {"data": {"body": "Do not send money"}},
    {"data": {"body": "Mods?"}},
    {"data": {"body": "Sixth comment should be dropped"}}
  ]}}
]`

func redditTestAdapter(srv *httptest.Server) *RedditAdapter {
	adapter := NewRedditAdapter(testLogger())
	adapter.endpoint = func(string) string { return srv.URL }
	return adapter
}

func TestRedditExtract_FullPost(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(redditListingJSON))
	}))
	defer srv.Close()

	adapter := redditTestAdapter(srv)
	post, err := adapter.Extract(context.Background(), "https://www.reddit.com/r/investing/comments/abc123/guaranteed/")
	if err != nil {
		t.Fatalf("extract failed: %v", err)
	}

	if post.PostID != "reddit-abc123" {
		t.Errorf("unexpected post id %q", post.PostID)
	}
	if post.PlatformName != models.PlatformReddit {
		t.Errorf("unexpected platform %q", post.PlatformName)
	}
	if post.Engagement.UpvoteBucket != models.CountBucket10KTo100K {
		t.Errorf("expected upvote bucket 10k-100k, got %q", post.Engagement.UpvoteBucket)
	}
	if post.Engagement.CommentBucket != models.CountBucket100To1K {
		t.Errorf("expected comment bucket 100-1k, got %q", post.Engagement.CommentBucket)
	}
	if len(post.MediaItems) != 1 || post.MediaItems[0].MediaType != models.MediaTypeImage {
		t.Errorf("expected one image media item, got %v", post.MediaItems)
	}
	if len(post.SampledComments) != models.MaxSampledComments {
		t.Errorf("expected %d comments, got %d", models.MaxSampledComments, len(post.SampledComments))
	}
	for _, c := range post.SampledComments {
		if c == "[removed]" {
			t.Error("removed comment leaked into sample")
		}
	}
	if len(post.ExternalLinks) != 1 {
		t.Errorf("expected scam link extracted, got %v", post.ExternalLinks)
	}
	if post.Timestamp == nil {
		t.Error("expected timestamp set from created_utc")
	}
	if post.AuthorMetadata.AccountAgeBucket != models.AccountAgeUnknown {
		t.Errorf("expected unknown account age, got %q", post.AuthorMetadata.AccountAgeBucket)
	}
}

func TestRedditExtract_NotFoundDegrades(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	adapter := redditTestAdapter(srv)
	post, err := adapter.Extract(context.Background(), "https://www.reddit.com/r/x/comments/gone1/deleted/")

	var unavailable *models.ContentUnavailableError
	if !errors.As(err, &unavailable) {
		t.Fatalf("expected ContentUnavailableError, got %v", err)
	}
	if post == nil {
		t.Fatal("expected minimal post alongside error")
	}
	if post.PostID == "" || post.PostText == "" || post.PlatformName != models.PlatformReddit {
		t.Errorf("minimal post incomplete: %+v", post)
	}
}

func TestRedditExtract_RemovedPost(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`[{"data":{"children":[{"data":{"id":"r1","title":"t","selftext":"[removed]"}}]}}]`))
	}))
	defer srv.Close()

	adapter := redditTestAdapter(srv)
	_, err := adapter.Extract(context.Background(), "https://www.reddit.com/r/x/comments/r1/removed/")

	var unavailable *models.ContentUnavailableError
	if !errors.As(err, &unavailable) {
		t.Fatalf("expected ContentUnavailableError, got %v", err)
	}
}

func TestRedditExtract_ServerErrorDegrades(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	adapter := redditTestAdapter(srv)
	post, err := adapter.Extract(context.Background(), "https://www.reddit.com/r/x/comments/e1/error/")

	var unreachable *models.UnreachableSourceError
	if !errors.As(err, &unreachable) {
		t.Fatalf("expected UnreachableSourceError, got %v", err)
	}
	if post == nil || post.PostText == "" {
		t.Error("expected minimal post alongside error")
	}
}

func TestRedditExtract_RejectsForeignURL(t *testing.T) {
	adapter := NewRedditAdapter(testLogger())
	_, err := adapter.Extract(context.Background(), "https://example.com/not/reddit")

	var unsupported *models.UnsupportedURLError
	if !errors.As(err, &unsupported) {
		t.Fatalf("expected UnsupportedURLError, got %v", err)
	}
}

package mediaproc

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/safetycheck/safetycheck/internal/mediacache"
	"github.com/safetycheck/safetycheck/internal/models"
)

type failingExtractor struct{}

func (failingExtractor) Extract(context.Context, string, models.MediaType) (*models.MediaFeatures, error) {
	return nil, errors.New("extractor offline")
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestProcessor(t *testing.T, extractor FeatureExtractor) *Processor {
	t.Helper()
	cache, err := mediacache.New(mediacache.Options{Dir: t.TempDir(), MaxSizeMB: 10}, testLogger())
	if err != nil {
		t.Fatalf("failed to create media cache: %v", err)
	}
	return New(cache, extractor, testLogger())
}

func TestProcessMedia_Success(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("pixels"))
	}))
	defer srv.Close()

	proc := newTestProcessor(t, NewStaticExtractor())

	meta, features := proc.ProcessMedia(context.Background(), srv.URL+"/pic.jpg", models.MediaTypeImage)

	if meta.Hash == "" {
		t.Error("expected content hash on metadata")
	}
	if meta.SizeBytes != int64(len("pixels")) {
		t.Errorf("expected size %d, got %d", len("pixels"), meta.SizeBytes)
	}
	if features == nil {
		t.Fatal("expected features from extractor")
	}
	if features.Caption == "" {
		t.Error("expected non-empty caption")
	}
}

func TestProcessMedia_DownloadFailureDegrades(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	proc := newTestProcessor(t, NewStaticExtractor())

	meta, features := proc.ProcessMedia(context.Background(), srv.URL+"/gone.png", models.MediaTypeImage)

	if features != nil {
		t.Error("expected absent features on download failure")
	}
	if meta.URL == "" || meta.MediaType != models.MediaTypeImage {
		t.Error("expected metadata to retain url and type")
	}
	if meta.Hash != "" {
		t.Error("expected no hash on failed download")
	}
}

func TestProcessMedia_ExtractorFailureDegrades(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("pixels"))
	}))
	defer srv.Close()

	proc := newTestProcessor(t, failingExtractor{})

	meta, features := proc.ProcessMedia(context.Background(), srv.URL+"/pic.jpg", models.MediaTypeImage)

	if features != nil {
		t.Error("expected absent features on extractor failure")
	}
	if meta.Hash == "" {
		t.Error("expected hash even when extraction fails")
	}
}

func TestEnrichPost_AllItemsComplete(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/bad" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.Write([]byte("content-" + r.URL.Path))
	}))
	defer srv.Close()

	proc := newTestProcessor(t, NewStaticExtractor())

	post := &models.CanonicalPost{
		PostID:       "p1",
		PlatformName: models.PlatformReddit,
		MediaItems: []models.MediaMetadata{
			{MediaType: models.MediaTypeImage, URL: srv.URL + "/a.jpg"},
			{MediaType: models.MediaTypeImage, URL: srv.URL + "/bad"},
			{MediaType: models.MediaTypeGIF, URL: srv.URL + "/c.gif"},
		},
	}

	proc.EnrichPost(context.Background(), post)

	if len(post.MediaItems) != 3 {
		t.Fatalf("expected 3 media items, got %d", len(post.MediaItems))
	}
	if post.MediaItems[0].Hash == "" || post.MediaItems[2].Hash == "" {
		t.Error("expected hashes on successful items")
	}
	if post.MediaItems[1].Hash != "" {
		t.Error("expected no hash on failed item")
	}
	if len(post.MediaFeatures) != 3 {
		t.Fatalf("expected one features entry per media item, got %d", len(post.MediaFeatures))
	}
	if post.MediaFeatures[0] == nil || post.MediaFeatures[2] == nil {
		t.Error("expected features on successful items")
	}
	if post.MediaFeatures[1] != nil {
		t.Error("expected nil features on failed item")
	}
}

func TestEnrichPost_FailedFirstItemKeepsAlignment(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/missing.jpg" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.Write([]byte("pixels"))
	}))
	defer srv.Close()

	proc := newTestProcessor(t, NewStaticExtractor())

	post := &models.CanonicalPost{
		PostID:       "p1",
		PlatformName: models.PlatformReddit,
		MediaItems: []models.MediaMetadata{
			{MediaType: models.MediaTypeImage, URL: srv.URL + "/missing.jpg"},
			{MediaType: models.MediaTypeGIF, URL: srv.URL + "/second.gif"},
		},
	}

	proc.EnrichPost(context.Background(), post)

	if len(post.MediaFeatures) != 2 {
		t.Fatalf("expected one features entry per media item, got %d", len(post.MediaFeatures))
	}
	if post.MediaFeatures[0] != nil {
		t.Errorf("failed item must carry no features, got %+v", post.MediaFeatures[0])
	}
	if post.MediaFeatures[1] == nil {
		t.Fatal("expected features on the surviving item")
	}
	if !strings.Contains(post.MediaFeatures[1].Caption, "animated image") {
		t.Errorf("surviving item's features misattributed, caption %q", post.MediaFeatures[1].Caption)
	}
}

func TestEnrichPost_NoMedia(t *testing.T) {
	proc := newTestProcessor(t, NewStaticExtractor())
	post := &models.CanonicalPost{PostID: "p1"}

	proc.EnrichPost(context.Background(), post)

	if len(post.MediaFeatures) != 0 {
		t.Errorf("expected no features, got %d", len(post.MediaFeatures))
	}
}

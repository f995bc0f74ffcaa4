package adapters

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"path"
	"regexp"
	"strings"
	"time"

	"github.com/safetycheck/safetycheck/internal/models"
)

const redditAdapterVersion = "1.1"

var redditURLPattern = regexp.MustCompile(`(?i)^https?://(www\.|old\.)?reddit\.com/r/[^/]+/comments/([a-z0-9]+)`)

// RedditAdapter extracts posts through Reddit's public JSON endpoints.
type RedditAdapter struct {
	client   *http.Client
	logger   *slog.Logger
	endpoint func(postURL string) string
}

// NewRedditAdapter constructs the Reddit adapter.
func NewRedditAdapter(logger *slog.Logger) *RedditAdapter {
	return &RedditAdapter{
		client: &http.Client{Timeout: 15 * time.Second},
		logger: logger,
		endpoint: func(postURL string) string {
			return strings.TrimRight(postURL, "/") + ".json"
		},
	}
}

func (a *RedditAdapter) PlatformName() models.Platform {
	return models.PlatformReddit
}

func (a *RedditAdapter) Matches(url string) bool {
	return redditURLPattern.MatchString(url)
}

// redditListing mirrors the slice of the public JSON API this adapter reads.
type redditListing struct {
	Data struct {
		Children []struct {
			Data redditThing `json:"data"`
		} `json:"children"`
	} `json:"data"`
}

type redditThing struct {
	ID          string  `json:"id"`
	Title       string  `json:"title"`
	SelfText    string  `json:"selftext"`
	Body        string  `json:"body"`
	Author      string  `json:"author"`
	CreatedUTC  float64 `json:"created_utc"`
	Ups         int64   `json:"ups"`
	NumComments int64   `json:"num_comments"`
	Subreddit   string  `json:"subreddit"`
	PostHint    string  `json:"post_hint"`
	URL         string  `json:"url"`
	Removed     string  `json:"removed_by_category"`
}

// Extract fetches a post and its top comments. On failure a minimal post is
// returned alongside the typed error so the caller can degrade.
func (a *RedditAdapter) Extract(ctx context.Context, postURL string) (*models.CanonicalPost, error) {
	if !a.Matches(postURL) {
		return a.minimalPost(postURL), &models.UnsupportedURLError{URL: postURL}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, a.endpoint(postURL), nil)
	if err != nil {
		return a.minimalPost(postURL), &models.UnreachableSourceError{URL: postURL, Err: err}
	}
	req.Header.Set("User-Agent", "safetycheck/1.0")

	resp, err := a.client.Do(req)
	if err != nil {
		return a.minimalPost(postURL), &models.UnreachableSourceError{URL: postURL, Err: err}
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return a.minimalPost(postURL), &models.ContentUnavailableError{URL: postURL, Reason: "post not found"}
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		return a.minimalPost(postURL), &models.UnreachableSourceError{URL: postURL, Err: fmt.Errorf("status %d", resp.StatusCode)}
	}

	var listings []redditListing
	if err := json.NewDecoder(resp.Body).Decode(&listings); err != nil {
		return a.minimalPost(postURL), &models.UnreachableSourceError{URL: postURL, Err: fmt.Errorf("decode listing: %w", err)}
	}
	if len(listings) == 0 || len(listings[0].Data.Children) == 0 {
		return a.minimalPost(postURL), &models.ContentUnavailableError{URL: postURL, Reason: "empty listing"}
	}

	thing := listings[0].Data.Children[0].Data

	if thing.Removed != "" || thing.SelfText == "[removed]" || thing.SelfText == "[deleted]" {
		return a.minimalPost(postURL), &models.ContentUnavailableError{URL: postURL, Reason: "post removed"}
	}

	text := thing.Title
	if thing.SelfText != "" {
		text += "\n\n" + thing.SelfText
	}

	post := &models.CanonicalPost{
		PostID:         "reddit-" + thing.ID,
		PostText:       text,
		PlatformName:   models.PlatformReddit,
		RawURL:         postURL,
		AdapterVersion: redditAdapterVersion,
		Hashtags:       extractHashtags(text),
		Mentions:       extractMentions(text),
		ExternalLinks:  extractLinks(thing.SelfText),
		Engagement: models.EngagementMetrics{
			UpvoteBucket:  models.BucketCount(thing.Ups),
			CommentBucket: models.BucketCount(thing.NumComments),
		},
		AuthorMetadata: models.AuthorMetadata{
			// Post listings do not expose account age or karma; leave
			// the buckets unknown rather than fetching author profiles.
			AccountAgeBucket: models.AccountAgeUnknown,
			KarmaBucket:      models.CountBucketUnobserved,
		},
	}

	if thing.CreatedUTC > 0 {
		ts := time.Unix(int64(thing.CreatedUTC), 0).UTC()
		post.Timestamp = &ts
	}

	if media := redditMediaItem(thing); media != nil {
		post.MediaItems = append(post.MediaItems, *media)
	}

	if len(listings) > 1 {
		post.SampledComments = redditComments(listings[1], models.MaxSampledComments)
	}

	post.Normalize()
	return post, nil
}

// redditMediaItem derives a media attachment from the post's link target.
func redditMediaItem(thing redditThing) *models.MediaMetadata {
	if thing.URL == "" {
		return nil
	}

	ext := strings.ToLower(path.Ext(thing.URL))
	switch {
	case ext == ".gif":
		return &models.MediaMetadata{MediaType: models.MediaTypeGIF, URL: thing.URL}
	case ext == ".jpg" || ext == ".jpeg" || ext == ".png" || ext == ".webp" || thing.PostHint == "image":
		return &models.MediaMetadata{MediaType: models.MediaTypeImage, URL: thing.URL}
	case thing.PostHint == "hosted:video":
		return &models.MediaMetadata{MediaType: models.MediaTypeVideo, URL: thing.URL}
	default:
		return nil
	}
}

// redditComments collects top-level comment bodies up to the cap.
func redditComments(listing redditListing, limit int) []string {
	var comments []string
	for _, child := range listing.Data.Children {
		body := strings.TrimSpace(child.Data.Body)
		if body == "" || body == "[removed]" || body == "[deleted]" {
			continue
		}
		comments = append(comments, body)
		if len(comments) >= limit {
			break
		}
	}
	return comments
}

// minimalPost is the degradation target for failed extractions.
func (a *RedditAdapter) minimalPost(postURL string) *models.CanonicalPost {
	post := &models.CanonicalPost{
		PostID:       "reddit-unresolved-" + shortDigest(postURL),
		PostText:     "(content unavailable)",
		PlatformName: models.PlatformReddit,
		RawURL:       postURL,
	}
	post.Normalize()
	return post
}

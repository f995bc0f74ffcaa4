package adapters

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/safetycheck/safetycheck/internal/models"
)

const twitterAdapterVersion = "1.1"

var (
	twitterURLPattern = regexp.MustCompile(`(?i)^https?://(www\.)?(twitter\.com|x\.com)/([^/]+)/status(es)?/(\d+)`)

	htmlTagRegex    = regexp.MustCompile(`<[^>]+>`)
	htmlBreakRegex  = regexp.MustCompile(`(?i)<br\s*/?>`)
	htmlEntityPairs = strings.NewReplacer("&amp;", "&", "&lt;", "<", "&gt;", ">", "&quot;", `"`, "&#39;", "'", "&mdash;", "-")
)

// TwitterAdapter extracts tweets through the public oEmbed endpoint, which
// needs no API credentials. Only the tweet text and author name are
// available there; engagement stays unknown.
type TwitterAdapter struct {
	client    *http.Client
	logger    *slog.Logger
	oembedURL string
}

// NewTwitterAdapter constructs the Twitter/X adapter.
func NewTwitterAdapter(logger *slog.Logger) *TwitterAdapter {
	return &TwitterAdapter{
		client:    &http.Client{Timeout: 15 * time.Second},
		logger:    logger,
		oembedURL: "https://publish.twitter.com/oembed",
	}
}

func (a *TwitterAdapter) PlatformName() models.Platform {
	return models.PlatformTwitter
}

func (a *TwitterAdapter) Matches(url string) bool {
	return twitterURLPattern.MatchString(url)
}

// Extract resolves a tweet URL. On any fetch failure a minimal post keyed by
// the status ID is returned alongside the typed error.
func (a *TwitterAdapter) Extract(ctx context.Context, postURL string) (*models.CanonicalPost, error) {
	m := twitterURLPattern.FindStringSubmatch(postURL)
	if m == nil {
		post := &models.CanonicalPost{
			PostID:       "twitter-unresolved-" + shortDigest(postURL),
			PostText:     "(content unavailable)",
			PlatformName: models.PlatformTwitter,
			RawURL:       postURL,
		}
		post.Normalize()
		return post, &models.UnsupportedURLError{URL: postURL}
	}
	statusID := m[5]

	minimal := func() *models.CanonicalPost {
		post := &models.CanonicalPost{
			PostID:       "twitter-" + statusID,
			PostText:     "(content unavailable)",
			PlatformName: models.PlatformTwitter,
			RawURL:       postURL,
		}
		post.Normalize()
		return post
	}

	endpoint := fmt.Sprintf("%s?url=%s&omit_script=true", a.oembedURL, url.QueryEscape(postURL))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return minimal(), &models.UnreachableSourceError{URL: postURL, Err: err}
	}
	req.Header.Set("User-Agent", "safetycheck/1.0")

	resp, err := a.client.Do(req)
	if err != nil {
		return minimal(), &models.UnreachableSourceError{URL: postURL, Err: err}
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return minimal(), &models.ContentUnavailableError{URL: postURL, Reason: "tweet deleted or account private"}
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		return minimal(), &models.UnreachableSourceError{URL: postURL, Err: fmt.Errorf("status %d", resp.StatusCode)}
	}

	var payload struct {
		HTML       string `json:"html"`
		AuthorName string `json:"author_name"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return minimal(), &models.UnreachableSourceError{URL: postURL, Err: fmt.Errorf("decode oembed: %w", err)}
	}

	text := stripHTML(payload.HTML)
	if text == "" {
		return minimal(), &models.ContentUnavailableError{URL: postURL, Reason: "empty oembed body"}
	}

	post := &models.CanonicalPost{
		PostID:         "twitter-" + statusID,
		PostText:       text,
		PlatformName:   models.PlatformTwitter,
		RawURL:         postURL,
		AdapterVersion: twitterAdapterVersion,
		Hashtags:       extractHashtags(text),
		Mentions:       extractMentions(text),
		ExternalLinks:  extractLinks(text),
		AuthorMetadata: models.AuthorMetadata{
			AccountAgeBucket: models.AccountAgeUnknown,
			FollowerBucket:   models.CountBucketUnobserved,
		},
	}
	post.Normalize()
	return post, nil
}

// stripHTML reduces the oEmbed blockquote to plain tweet text.
func stripHTML(html string) string {
	text := htmlBreakRegex.ReplaceAllString(html, "\n")
	text = htmlTagRegex.ReplaceAllString(text, " ")
	text = htmlEntityPairs.Replace(text)
	return strings.TrimSpace(whitespaceCollapse(text))
}

var multiSpaceRegex = regexp.MustCompile(`[ \t]+`)

func whitespaceCollapse(s string) string {
	return multiSpaceRegex.ReplaceAllString(s, " ")
}

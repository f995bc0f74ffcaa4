package models

import (
	"time"
)

// CanonicalPost is the platform-neutral representation of one social-media
// post. Every adapter normalizes into this shape before analysis.
type CanonicalPost struct {
	PostID          string            `json:"post_id"`
	PostText        string            `json:"post_text"`
	PlatformName    Platform          `json:"platform_name"`
	Timestamp       *time.Time        `json:"timestamp,omitempty"`
	Language        string            `json:"language,omitempty"`
	AuthorMetadata  AuthorMetadata    `json:"author_metadata,omitempty"`
	Engagement      EngagementMetrics `json:"engagement_metrics,omitempty"`
	MediaItems      []MediaMetadata   `json:"media_items,omitempty"`
	MediaFeatures   []*MediaFeatures  `json:"media_features,omitempty"`
	ExternalLinks   []string          `json:"external_links,omitempty"`
	Hashtags        []string          `json:"hashtags,omitempty"`
	Mentions        []string          `json:"mentions,omitempty"`
	SampledComments []string          `json:"sampled_comments,omitempty"`
	ReplyContext    string            `json:"reply_context,omitempty"`
	RawURL          string            `json:"raw_url,omitempty"`
	AdapterVersion  string            `json:"adapter_version"`
}

// Platform identifies the source platform of a post.
type Platform string

const (
	PlatformReddit    Platform = "reddit"
	PlatformTwitter   Platform = "twitter"
	PlatformTikTok    Platform = "tiktok"
	PlatformFacebook  Platform = "facebook"
	PlatformInstagram Platform = "instagram"
	PlatformYouTube   Platform = "youtube"
	PlatformUnknown   Platform = "unknown"
)

// MaxSampledComments caps how many comments travel with a post. Extras are
// truncated, never rejected.
const MaxSampledComments = 5

// DefaultAdapterVersion is applied when an adapter does not set its own.
const DefaultAdapterVersion = "1.0"

// AuthorMetadata carries privacy-preserving signals about the post author.
// Exact ages and counts never appear here; only coarse buckets.
type AuthorMetadata struct {
	AccountAgeBucket AccountAgeBucket `json:"account_age_bucket,omitempty"`
	KarmaBucket      CountBucket      `json:"karma_bucket,omitempty"`
	FollowerBucket   CountBucket      `json:"follower_bucket,omitempty"`
	Verified         bool             `json:"verified,omitempty"`
}

// AccountAgeBucket is a coarse classification of account age.
type AccountAgeBucket string

const (
	AccountAgeNew         AccountAgeBucket = "new"         // under 30 days
	AccountAgeRecent      AccountAgeBucket = "recent"      // under 6 months
	AccountAgeEstablished AccountAgeBucket = "established" // under 2 years
	AccountAgeVeteran     AccountAgeBucket = "veteran"     // 2 years or more
	AccountAgeUnknown     AccountAgeBucket = "unknown"
)

// CountBucket is a coarse classification of karma or follower counts.
type CountBucket string

const (
	CountBucket0To100     CountBucket = "0-100"
	CountBucket100To1K    CountBucket = "100-1k"
	CountBucket1KTo10K    CountBucket = "1k-10k"
	CountBucket10KTo100K  CountBucket = "10k-100k"
	CountBucketOver100K   CountBucket = "100k+"
	CountBucketUnobserved CountBucket = "unknown"
)

// BucketAccountAge converts an account creation time into its coarse bucket.
func BucketAccountAge(createdAt time.Time, now time.Time) AccountAgeBucket {
	if createdAt.IsZero() || createdAt.After(now) {
		return AccountAgeUnknown
	}

	age := now.Sub(createdAt)
	switch {
	case age < 30*24*time.Hour:
		return AccountAgeNew
	case age < 180*24*time.Hour:
		return AccountAgeRecent
	case age < 2*365*24*time.Hour:
		return AccountAgeEstablished
	default:
		return AccountAgeVeteran
	}
}

// BucketCount converts an exact karma/follower count into its coarse bucket.
func BucketCount(count int64) CountBucket {
	switch {
	case count < 0:
		return CountBucketUnobserved
	case count < 100:
		return CountBucket0To100
	case count < 1000:
		return CountBucket100To1K
	case count < 10000:
		return CountBucket1KTo10K
	case count < 100000:
		return CountBucket10KTo100K
	default:
		return CountBucketOver100K
	}
}

// EngagementMetrics carries bucketed engagement signals for a post.
type EngagementMetrics struct {
	UpvoteBucket  CountBucket `json:"upvote_bucket,omitempty"`
	CommentBucket CountBucket `json:"comment_bucket,omitempty"`
	ShareBucket   CountBucket `json:"share_bucket,omitempty"`
	ViewBucket    CountBucket `json:"view_bucket,omitempty"`
}

// MediaMetadata describes one media item attached to a post.
type MediaMetadata struct {
	MediaType    MediaType `json:"media_type"`
	URL          string    `json:"url"`
	Hash         string    `json:"hash,omitempty"`
	Width        int       `json:"width,omitempty"`
	Height       int       `json:"height,omitempty"`
	SizeBytes    int64     `json:"size_bytes,omitempty"`
	ThumbnailURL string    `json:"thumbnail_url,omitempty"`
}

// MediaType classifies an attached media item.
type MediaType string

const (
	MediaTypeImage MediaType = "image"
	MediaTypeVideo MediaType = "video"
	MediaTypeGIF   MediaType = "gif"
	MediaTypeNone  MediaType = "none"
)

// MediaFeatures holds derived textual features for one media item. Raw pixels
// never leave the media layer; only these features reach the analysis prompt.
// Created once by the media processor and immutable afterwards. On a post the
// slice is index-aligned with MediaItems; a nil entry means no features could
// be derived for that item.
type MediaFeatures struct {
	Caption         string   `json:"caption,omitempty"`
	OCRText         string   `json:"ocr_text,omitempty"`
	DetectedObjects []string `json:"detected_objects,omitempty"`
	NSFWScore       float64  `json:"nsfw_score,omitempty"`
	FaceDetected    bool     `json:"face_detected,omitempty"`
}

// Normalize enforces the post invariants in place: the comment cap, the
// default adapter version, and a non-empty platform name.
func (p *CanonicalPost) Normalize() {
	if len(p.SampledComments) > MaxSampledComments {
		p.SampledComments = p.SampledComments[:MaxSampledComments]
	}
	if p.AdapterVersion == "" {
		p.AdapterVersion = DefaultAdapterVersion
	}
	if p.PlatformName == "" {
		p.PlatformName = PlatformUnknown
	}
}

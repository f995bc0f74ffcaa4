package models

import (
	"fmt"
	"time"
)

// UnsupportedURLError indicates no adapter's URL pattern matched the input.
type UnsupportedURLError struct {
	URL string
}

func (e *UnsupportedURLError) Error() string {
	return fmt.Sprintf("unsupported url: %s", e.URL)
}

// ContentUnavailableError indicates the source exists but the content was
// deleted or made private.
type ContentUnavailableError struct {
	URL    string
	Reason string
}

func (e *ContentUnavailableError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("content unavailable at %s: %s", e.URL, e.Reason)
	}
	return fmt.Sprintf("content unavailable at %s", e.URL)
}

// UnreachableSourceError indicates a network or auth failure while reaching
// the platform source.
type UnreachableSourceError struct {
	URL string
	Err error
}

func (e *UnreachableSourceError) Error() string {
	return fmt.Sprintf("source unreachable at %s: %v", e.URL, e.Err)
}

func (e *UnreachableSourceError) Unwrap() error { return e.Err }

// DownloadError indicates a media fetch failed with a non-2xx status or a
// timeout. The media processor treats this as "features unavailable".
type DownloadError struct {
	URL        string
	StatusCode int
	Err        error
}

func (e *DownloadError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("download failed for %s: status %d", e.URL, e.StatusCode)
	}
	return fmt.Sprintf("download failed for %s: %v", e.URL, e.Err)
}

func (e *DownloadError) Unwrap() error { return e.Err }

// MalformedResponseError indicates the reasoning API returned output that
// violates the result schema. Triggers the fallback result, never a retry.
type MalformedResponseError struct {
	Detail string
	Err    error
}

func (e *MalformedResponseError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("malformed analysis response: %s: %v", e.Detail, e.Err)
	}
	return fmt.Sprintf("malformed analysis response: %s", e.Detail)
}

func (e *MalformedResponseError) Unwrap() error { return e.Err }

// TransientAPIError indicates a retryable reasoning-API failure (timeout,
// 5xx, or an explicit rate-limit response).
type TransientAPIError struct {
	Err error
}

func (e *TransientAPIError) Error() string {
	return fmt.Sprintf("transient api error: %v", e.Err)
}

func (e *TransientAPIError) Unwrap() error { return e.Err }

// RateLimitExceededError is surfaced directly to the caller when an identity
// exceeds its hourly or daily ceiling. Never retried internally.
type RateLimitExceededError struct {
	Identity   string
	RetryAfter time.Duration
}

func (e *RateLimitExceededError) Error() string {
	return fmt.Sprintf("rate limit exceeded, retry after %s", e.RetryAfter.Round(time.Second))
}

// SchemaViolationError indicates malformed input to the pipeline. Fails fast
// and is never silently coerced.
type SchemaViolationError struct {
	Field  string
	Detail string
}

func (e *SchemaViolationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Detail)
}

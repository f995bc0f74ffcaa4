package api

import (
	"encoding/base64"
	"net"
	"net/url"
	"strings"

	"github.com/safetycheck/safetycheck/internal/models"
)

const (
	maxURLLength     = 2048
	maxTextLength    = 10000
	maxContextLength = 2000
	// 10 MB decoded; base64 inflates by 4/3
	maxImageB64Length = 14 << 20
)

// AnalyzeRequest is the POST /api/analyze body.
type AnalyzeRequest struct {
	URL          string `json:"url,omitempty"`
	Text         string `json:"text,omitempty"`
	ImageB64     string `json:"image_b64,omitempty"`
	Context      string `json:"context,omitempty"`
	PlatformHint string `json:"platform_hint,omitempty"`
}

// ValidateAnalyzeRequest enforces the input contract. It returns the decoded
// image bytes for image submissions so the handler does not decode twice.
func ValidateAnalyzeRequest(req *AnalyzeRequest) ([]byte, error) {
	provided := 0
	for _, v := range []string{req.URL, req.Text, req.ImageB64} {
		if v != "" {
			provided++
		}
	}
	if provided == 0 {
		return nil, &models.SchemaViolationError{Field: "url", Detail: "one of url, text or image_b64 is required"}
	}
	if provided > 1 {
		return nil, &models.SchemaViolationError{Field: "url", Detail: "url, text and image_b64 are mutually exclusive"}
	}

	if req.URL != "" {
		if err := validateSubmissionURL(req.URL); err != nil {
			return nil, err
		}
	}

	if req.Text != "" {
		if err := validateText("text", req.Text, maxTextLength); err != nil {
			return nil, err
		}
	}

	if req.Context != "" {
		if err := validateText("context", req.Context, maxContextLength); err != nil {
			return nil, err
		}
	}

	if req.PlatformHint != "" && !validPlatformHint(req.PlatformHint) {
		return nil, &models.SchemaViolationError{Field: "platform_hint", Detail: "unknown platform"}
	}

	var image []byte
	if req.ImageB64 != "" {
		if len(req.ImageB64) > maxImageB64Length {
			return nil, &models.SchemaViolationError{Field: "image_b64", Detail: "image exceeds maximum size"}
		}
		decoded, err := base64.StdEncoding.DecodeString(req.ImageB64)
		if err != nil {
			return nil, &models.SchemaViolationError{Field: "image_b64", Detail: "invalid base64 encoding"}
		}
		if len(decoded) == 0 {
			return nil, &models.SchemaViolationError{Field: "image_b64", Detail: "image is empty"}
		}
		image = decoded
	}

	return image, nil
}

// validateSubmissionURL rejects malformed URLs and anything that could be
// turned into a request against internal infrastructure.
func validateSubmissionURL(raw string) error {
	if len(raw) > maxURLLength {
		return &models.SchemaViolationError{Field: "url", Detail: "url exceeds maximum length"}
	}
	if strings.ContainsRune(raw, 0) {
		return &models.SchemaViolationError{Field: "url", Detail: "url contains null bytes"}
	}

	parsed, err := url.Parse(raw)
	if err != nil {
		return &models.SchemaViolationError{Field: "url", Detail: "invalid url format"}
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return &models.SchemaViolationError{Field: "url", Detail: "url must use http or https scheme"}
	}
	if parsed.Host == "" {
		return &models.SchemaViolationError{Field: "url", Detail: "url must have a host"}
	}

	host := parsed.Hostname()
	if isInternalHost(host) {
		return &models.SchemaViolationError{Field: "url", Detail: "url resolves to an internal address"}
	}

	return nil
}

// isInternalHost reports whether a hostname names the local machine or a
// private network range.
func isInternalHost(host string) bool {
	lowered := strings.ToLower(host)
	if lowered == "localhost" || strings.HasSuffix(lowered, ".localhost") || lowered == "metadata.google.internal" {
		return true
	}

	ip := net.ParseIP(host)
	if ip == nil {
		return false
	}

	return ip.IsLoopback() || ip.IsPrivate() || ip.IsLinkLocalUnicast() || ip.IsUnspecified()
}

func validateText(field, value string, maxLen int) error {
	if strings.TrimSpace(value) == "" {
		return &models.SchemaViolationError{Field: field, Detail: "must not be empty or whitespace"}
	}
	if strings.ContainsRune(value, 0) {
		return &models.SchemaViolationError{Field: field, Detail: "must not contain null bytes"}
	}
	if len(value) > maxLen {
		return &models.SchemaViolationError{Field: field, Detail: "exceeds maximum length"}
	}
	return nil
}

func validPlatformHint(hint string) bool {
	switch models.Platform(hint) {
	case models.PlatformReddit, models.PlatformTwitter, models.PlatformTikTok,
		models.PlatformFacebook, models.PlatformInstagram, models.PlatformYouTube,
		models.PlatformUnknown:
		return true
	}
	return false
}

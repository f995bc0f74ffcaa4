package resultcache

import (
	"crypto/sha256"
	"encoding/hex"
	"regexp"
	"sort"
	"strings"

	"github.com/safetycheck/safetycheck/internal/models"
)

var whitespaceRegex = regexp.MustCompile(`\s+`)

// Fingerprint computes the cache key for a post: a SHA-256 digest over a
// canonical serialization of the analysis-relevant fields. Two submissions
// that normalize identically share a fingerprint regardless of original URL.
func Fingerprint(post *models.CanonicalPost) string {
	parts := []string{
		normalizeText(post.PostText),
		string(post.PlatformName),
	}

	// Media participates through content hashes, sorted so attachment order
	// does not change the key.
	hashes := make([]string, 0, len(post.MediaItems))
	for _, m := range post.MediaItems {
		if m.Hash != "" {
			hashes = append(hashes, m.Hash)
		}
	}
	sort.Strings(hashes)
	parts = append(parts, hashes...)

	digest := sha256.Sum256([]byte(strings.Join(parts, "\x00")))
	return hex.EncodeToString(digest[:])
}

// normalizeText collapses runs of whitespace and trims the ends so that
// cosmetic spacing differences do not defeat the cache.
func normalizeText(text string) string {
	return strings.TrimSpace(whitespaceRegex.ReplaceAllString(text, " "))
}

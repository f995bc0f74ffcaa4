package mediaproc

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/safetycheck/safetycheck/internal/models"
)

// FeatureExtractor turns a downloaded media file into textual features.
// The concrete captioning/OCR implementation lives behind this interface;
// the pipeline only ever sees the derived features.
type FeatureExtractor interface {
	Extract(ctx context.Context, localPath string, mediaType models.MediaType) (*models.MediaFeatures, error)
}

// StaticExtractor is the built-in extractor used when no captioning backend
// is configured. It produces a generic caption so the analysis prompt still
// reflects that media was attached.
type StaticExtractor struct{}

// NewStaticExtractor returns the default extractor.
func NewStaticExtractor() *StaticExtractor {
	return &StaticExtractor{}
}

// Extract produces a minimal feature set describing the attachment.
func (e *StaticExtractor) Extract(_ context.Context, localPath string, mediaType models.MediaType) (*models.MediaFeatures, error) {
	kind := "attachment"
	switch mediaType {
	case models.MediaTypeImage:
		kind = "image"
	case models.MediaTypeVideo:
		kind = "video"
	case models.MediaTypeGIF:
		kind = "animated image"
	}

	return &models.MediaFeatures{
		Caption: fmt.Sprintf("%s attachment (%s), content not analyzed", kind, filepath.Ext(localPath)),
	}, nil
}

package mediaproc

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"log/slog"
	"os"
	"sync"

	"github.com/safetycheck/safetycheck/internal/mediacache"
	"github.com/safetycheck/safetycheck/internal/models"
)

// Processor downloads media through the cache and runs feature extraction.
// Every failure below this layer degrades to "features absent"; the post's
// analysis never aborts because an attachment could not be enriched.
type Processor struct {
	cache     *mediacache.Cache
	extractor FeatureExtractor
	logger    *slog.Logger
}

// New constructs a media processor.
func New(cache *mediacache.Cache, extractor FeatureExtractor, logger *slog.Logger) *Processor {
	return &Processor{
		cache:     cache,
		extractor: extractor,
		logger:    logger,
	}
}

// ProcessMedia downloads one media item and extracts its features. The
// returned metadata always carries the input URL and type; hash, size and
// features are filled in on a best-effort basis.
func (p *Processor) ProcessMedia(ctx context.Context, mediaURL string, mediaType models.MediaType) (models.MediaMetadata, *models.MediaFeatures) {
	meta := models.MediaMetadata{
		MediaType: mediaType,
		URL:       mediaURL,
	}

	localPath, hash, err := p.cache.DownloadAndCache(ctx, mediaURL)
	if err != nil {
		p.logger.Warn("media download failed, continuing without features",
			"url", mediaURL,
			"error", err)
		return meta, nil
	}

	meta.Hash = hash
	if info, err := os.Stat(localPath); err == nil {
		meta.SizeBytes = info.Size()
	}

	features, err := p.extractor.Extract(ctx, localPath, mediaType)
	if err != nil {
		p.logger.Warn("feature extraction failed, continuing without features",
			"url", mediaURL,
			"error", err)
		return meta, nil
	}

	return meta, features
}

// ProcessBytes runs feature extraction over media supplied inline with the
// submission instead of fetched from a URL. The bytes are staged in a temp
// file for the extractor and removed afterwards.
func (p *Processor) ProcessBytes(ctx context.Context, data []byte, mediaType models.MediaType) (models.MediaMetadata, *models.MediaFeatures) {
	sum := sha256.Sum256(data)
	meta := models.MediaMetadata{
		MediaType: mediaType,
		Hash:      hex.EncodeToString(sum[:]),
		SizeBytes: int64(len(data)),
	}

	tmp, err := os.CreateTemp("", "safetycheck-inline-*")
	if err != nil {
		p.logger.Warn("inline media staging failed, continuing without features",
			"error", err)
		return meta, nil
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		p.logger.Warn("inline media staging failed, continuing without features",
			"error", err)
		return meta, nil
	}
	tmp.Close()

	features, err := p.extractor.Extract(ctx, tmp.Name(), mediaType)
	if err != nil {
		p.logger.Warn("feature extraction failed, continuing without features",
			"hash", meta.Hash,
			"error", err)
		return meta, nil
	}

	return meta, features
}

// EnrichPost processes all media items of a post concurrently and attaches
// the outcomes in place. It returns only after every item has completed or
// failed gracefully. MediaFeatures stays index-aligned with MediaItems; an
// item whose download or extraction failed gets a nil entry.
func (p *Processor) EnrichPost(ctx context.Context, post *models.CanonicalPost) {
	if len(post.MediaItems) == 0 {
		return
	}

	featuresByItem := make([]*models.MediaFeatures, len(post.MediaItems))

	var wg sync.WaitGroup
	for i := range post.MediaItems {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			item := post.MediaItems[i]
			meta, features := p.ProcessMedia(ctx, item.URL, item.MediaType)

			// Preserve adapter-provided fields the processor does not learn
			meta.Width = item.Width
			meta.Height = item.Height
			meta.ThumbnailURL = item.ThumbnailURL

			post.MediaItems[i] = meta
			featuresByItem[i] = features
		}(i)
	}
	wg.Wait()

	post.MediaFeatures = featuresByItem
}

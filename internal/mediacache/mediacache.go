package mediacache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/safetycheck/safetycheck/internal/models"
)

const (
	defaultMaxSizeMB     = 500
	defaultFetchTimeout  = 30 * time.Second
	maxDownloadBytes     = 50 << 20 // refuse pathological media payloads
	defaultFileExtension = ".bin"
	shardPrefixLength    = 2
	dirPermissions       = 0o755
	filePermissions      = 0o644
)

// Cache is a content-addressed store for downloaded media. Files are keyed by
// the SHA-256 of their bytes, so identical media fetched from different URLs
// is stored once. The store is bounded; least-recently-used entries are
// evicted when the bound would be exceeded.
type Cache struct {
	dir      string
	maxBytes int64
	client   *http.Client
	logger   *slog.Logger

	mu         sync.Mutex
	entries    map[string]*entry
	totalBytes int64
	inflight   map[string]*inflightFetch
}

type entry struct {
	path     string
	size     int64
	lastUsed time.Time
}

// inflightFetch lets concurrent callers for one URL share a single download.
type inflightFetch struct {
	done chan struct{}
	path string
	hash string
	err  error
}

// Options configures a Cache.
type Options struct {
	Dir          string
	MaxSizeMB    int64
	FetchTimeout time.Duration
}

// New creates a media cache rooted at opts.Dir, indexing any files that
// survived a previous process.
func New(opts Options, logger *slog.Logger) (*Cache, error) {
	if opts.Dir == "" {
		return nil, fmt.Errorf("media cache dir is required")
	}
	if opts.MaxSizeMB <= 0 {
		opts.MaxSizeMB = defaultMaxSizeMB
	}
	if opts.FetchTimeout <= 0 {
		opts.FetchTimeout = defaultFetchTimeout
	}

	if err := os.MkdirAll(opts.Dir, dirPermissions); err != nil {
		return nil, fmt.Errorf("create media cache dir: %w", err)
	}

	c := &Cache{
		dir:      opts.Dir,
		maxBytes: opts.MaxSizeMB << 20,
		client:   &http.Client{Timeout: opts.FetchTimeout},
		logger:   logger,
		entries:  make(map[string]*entry),
		inflight: make(map[string]*inflightFetch),
	}

	if err := c.indexExisting(); err != nil {
		return nil, err
	}

	return c, nil
}

// DownloadAndCache fetches a URL and stores its bytes under their content
// hash, returning the local path and the hash. Concurrent calls for the same
// URL share one network fetch; the later caller waits for the first.
func (c *Cache) DownloadAndCache(ctx context.Context, mediaURL string) (string, string, error) {
	c.mu.Lock()
	if fl, ok := c.inflight[mediaURL]; ok {
		c.mu.Unlock()
		select {
		case <-fl.done:
			return fl.path, fl.hash, fl.err
		case <-ctx.Done():
			return "", "", &models.DownloadError{URL: mediaURL, Err: ctx.Err()}
		}
	}

	fl := &inflightFetch{done: make(chan struct{})}
	c.inflight[mediaURL] = fl
	c.mu.Unlock()

	fl.path, fl.hash, fl.err = c.fetch(ctx, mediaURL)
	close(fl.done)

	c.mu.Lock()
	delete(c.inflight, mediaURL)
	c.mu.Unlock()

	return fl.path, fl.hash, fl.err
}

func (c *Cache) fetch(ctx context.Context, mediaURL string) (string, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, mediaURL, nil)
	if err != nil {
		return "", "", &models.DownloadError{URL: mediaURL, Err: err}
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return "", "", &models.DownloadError{URL: mediaURL, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", "", &models.DownloadError{URL: mediaURL, StatusCode: resp.StatusCode}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxDownloadBytes+1))
	if err != nil {
		return "", "", &models.DownloadError{URL: mediaURL, Err: err}
	}
	if len(body) > maxDownloadBytes {
		return "", "", &models.DownloadError{URL: mediaURL, Err: fmt.Errorf("payload exceeds %d bytes", maxDownloadBytes)}
	}

	digest := sha256.Sum256(body)
	hash := hex.EncodeToString(digest[:])

	c.mu.Lock()
	defer c.mu.Unlock()

	// Identical content already on disk, whatever URL it came from
	if existing, ok := c.entries[hash]; ok {
		existing.lastUsed = time.Now()
		return existing.path, hash, nil
	}

	path := c.pathFor(hash, mediaURL)
	if err := os.MkdirAll(filepath.Dir(path), dirPermissions); err != nil {
		return "", "", fmt.Errorf("create shard dir: %w", err)
	}
	if err := os.WriteFile(path, body, filePermissions); err != nil {
		return "", "", fmt.Errorf("write media file: %w", err)
	}

	c.entries[hash] = &entry{path: path, size: int64(len(body)), lastUsed: time.Now()}
	c.totalBytes += int64(len(body))

	c.evictLocked()

	c.logger.Debug("cached media",
		"hash", hash[:12],
		"size_bytes", len(body),
		"total_bytes", c.totalBytes)

	return path, hash, nil
}

// pathFor shards files by the first two hash characters and preserves the
// original extension when the URL carries one.
func (c *Cache) pathFor(hash, mediaURL string) string {
	ext := defaultFileExtension
	if u, err := url.Parse(mediaURL); err == nil {
		if e := strings.ToLower(filepath.Ext(u.Path)); e != "" && len(e) <= 5 {
			ext = e
		}
	}
	return filepath.Join(c.dir, hash[:shardPrefixLength], hash+ext)
}

// evictLocked removes least-recently-used entries until the store fits its
// bound. Caller must hold the lock.
func (c *Cache) evictLocked() {
	for c.totalBytes > c.maxBytes && len(c.entries) > 1 {
		var oldestHash string
		var oldest *entry
		for h, e := range c.entries {
			if oldest == nil || e.lastUsed.Before(oldest.lastUsed) {
				oldestHash, oldest = h, e
			}
		}
		if oldest == nil {
			return
		}

		if err := os.Remove(oldest.path); err != nil && !os.IsNotExist(err) {
			c.logger.Warn("failed to remove evicted media file", "path", oldest.path, "error", err)
		}
		c.totalBytes -= oldest.size
		delete(c.entries, oldestHash)

		c.logger.Debug("evicted media entry", "hash", oldestHash[:12], "size_bytes", oldest.size)
	}
}

// indexExisting rebuilds the in-memory index from files left by a previous
// run. File names are the content hash plus extension.
func (c *Cache) indexExisting() error {
	err := filepath.WalkDir(c.dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return err
		}

		info, err := d.Info()
		if err != nil {
			return nil
		}

		name := d.Name()
		hash := strings.TrimSuffix(name, filepath.Ext(name))
		if len(hash) != sha256.Size*2 {
			return nil
		}

		c.entries[hash] = &entry{path: path, size: info.Size(), lastUsed: info.ModTime()}
		c.totalBytes += info.Size()
		return nil
	})
	if err != nil {
		return fmt.Errorf("index media cache: %w", err)
	}

	if len(c.entries) > 0 {
		c.logger.Info("indexed existing media cache", "entries", len(c.entries), "total_bytes", c.totalBytes)
	}

	c.mu.Lock()
	c.evictLocked()
	c.mu.Unlock()

	return nil
}

// Stats reports current occupancy.
func (c *Cache) Stats() (entries int, totalBytes int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries), c.totalBytes
}

// Package cache remembers expensive pipeline products: downloaded videos and
// per-stage results keyed by content hash. Entries carry the path they vouch
// for and are revalidated against the filesystem on every lookup, so a wiped
// working directory degrades to cache misses instead of broken runs.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"
)

const (
	// DefaultTTL bounds how long cached media stays addressable.
	DefaultTTL = 7 * 24 * time.Hour
	// StatusTTL bounds short-lived progress markers.
	StatusTTL = 5 * time.Minute
)

// ErrMiss is returned by backends for absent keys.
var ErrMiss = errors.New("cache miss")

// Backend is the minimal key-value surface the cache needs. Redis backs it
// in production, an in-memory map in tests.
type Backend interface {
	Get(ctx context.Context, key string) (string, error)
	SetEx(ctx context.Context, key, value string, ttl time.Duration) error
	Del(ctx context.Context, keys ...string) error
	Scan(ctx context.Context, pattern string) ([]string, error)
}

// Entry is one cached product.
type Entry struct {
	Path      string            `json:"verified_path"`
	Meta      map[string]string `json:"meta,omitempty"`
	CreatedAt time.Time         `json:"created_at"`
}

type MediaCache struct {
	backend Backend
	log     *slog.Logger
}

func New(backend Backend, log *slog.Logger) *MediaCache {
	return &MediaCache{backend: backend, log: log}
}

// downloadKey addresses a fetched video by who asked for what. The raw URL
// is hashed so keys stay bounded and scan-safe.
func downloadKey(platform, userID, rawURL string) string {
	sum := sha256.Sum256([]byte(rawURL))
	return fmt.Sprintf("media:download:%s:%s:%s", platform, userID, hex.EncodeToString(sum[:]))
}

func stageKey(stage, contentHash string) string {
	return fmt.Sprintf("media:stage:%s:%s", stage, contentHash)
}

func statusKey(runID string) string {
	return fmt.Sprintf("media:status:%s", runID)
}

func publishKey(platform, userID, clipHash string) string {
	return fmt.Sprintf("media:pub:%s:%s:%s", platform, userID, clipHash)
}

// GetDownload returns the cached local copy of a previously fetched URL, or
// false when absent or no longer on disk.
func (c *MediaCache) GetDownload(ctx context.Context, platform, userID, rawURL string) (*Entry, bool) {
	return c.lookup(ctx, downloadKey(platform, userID, rawURL))
}

// PutDownload records a fetched video under its request identity.
func (c *MediaCache) PutDownload(ctx context.Context, platform, userID, rawURL, path string, meta map[string]string) error {
	return c.store(ctx, downloadKey(platform, userID, rawURL), path, meta, DefaultTTL)
}

// GetStage returns the cached result of a stage run against specific content.
func (c *MediaCache) GetStage(ctx context.Context, stage, contentHash string) (*Entry, bool) {
	return c.lookup(ctx, stageKey(stage, contentHash))
}

// PutStage records a stage product for content-addressed reuse.
func (c *MediaCache) PutStage(ctx context.Context, stage, contentHash, path string, meta map[string]string) error {
	return c.store(ctx, stageKey(stage, contentHash), path, meta, DefaultTTL)
}

// SetStatus publishes a short-lived progress marker for a run.
func (c *MediaCache) SetStatus(ctx context.Context, runID, status string) error {
	return c.backend.SetEx(ctx, statusKey(runID), status, StatusTTL)
}

// GetStatus reads a run's progress marker.
func (c *MediaCache) GetStatus(ctx context.Context, runID string) (string, bool) {
	val, err := c.backend.Get(ctx, statusKey(runID))
	if err != nil {
		return "", false
	}
	return val, true
}

// SetPublishStatus remembers the outcome of publishing a specific clip to a
// platform, so repeated runs can see what already went out recently.
func (c *MediaCache) SetPublishStatus(ctx context.Context, platform, userID, clipHash, status string) error {
	return c.backend.SetEx(ctx, publishKey(platform, userID, clipHash), status, StatusTTL)
}

// GetPublishStatus reads the last recorded publish outcome for a clip.
func (c *MediaCache) GetPublishStatus(ctx context.Context, platform, userID, clipHash string) (string, bool) {
	val, err := c.backend.Get(ctx, publishKey(platform, userID, clipHash))
	if err != nil {
		return "", false
	}
	return val, true
}

// Sweep walks all media entries and drops the ones whose file no longer
// verifies. Returns how many entries were removed.
func (c *MediaCache) Sweep(ctx context.Context) (int, error) {
	keys, err := c.backend.Scan(ctx, "media:download:*")
	if err != nil {
		return 0, fmt.Errorf("scan downloads: %w", err)
	}
	stageKeys, err := c.backend.Scan(ctx, "media:stage:*")
	if err != nil {
		return 0, fmt.Errorf("scan stages: %w", err)
	}
	keys = append(keys, stageKeys...)

	removed := 0
	for _, key := range keys {
		raw, err := c.backend.Get(ctx, key)
		if err != nil {
			continue
		}
		var entry Entry
		if err := json.Unmarshal([]byte(raw), &entry); err != nil || !pathVerifies(entry.Path) {
			if err := c.backend.Del(ctx, key); err == nil {
				removed++
			}
		}
	}

	if removed > 0 {
		c.log.Info("cache sweep removed stale entries", "removed", removed, "scanned", len(keys))
	}
	return removed, nil
}

func (c *MediaCache) lookup(ctx context.Context, key string) (*Entry, bool) {
	raw, err := c.backend.Get(ctx, key)
	if err != nil {
		if !errors.Is(err, ErrMiss) {
			c.log.Warn("cache lookup failed", "key", key, "error", err)
		}
		return nil, false
	}

	var entry Entry
	if err := json.Unmarshal([]byte(raw), &entry); err != nil {
		c.backend.Del(ctx, key)
		return nil, false
	}

	if !pathVerifies(entry.Path) {
		c.log.Info("cached file vanished, evicting", "key", key, "path", entry.Path)
		c.backend.Del(ctx, key)
		return nil, false
	}
	return &entry, true
}

func (c *MediaCache) store(ctx context.Context, key, path string, meta map[string]string, ttl time.Duration) error {
	entry := Entry{Path: path, Meta: meta, CreatedAt: time.Now()}
	raw, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("marshal cache entry: %w", err)
	}
	return c.backend.SetEx(ctx, key, string(raw), ttl)
}

// pathVerifies requires an existing, non-empty regular file.
func pathVerifies(path string) bool {
	if path == "" {
		return false
	}
	info, err := os.Stat(path)
	return err == nil && info.Mode().IsRegular() && info.Size() > 0
}

// HashFile content-addresses a file with SHA-256.
func HashFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("open for hashing: %w", err)
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", fmt.Errorf("hash %s: %w", path, err)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

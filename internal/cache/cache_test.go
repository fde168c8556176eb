package cache

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func tempVideo(t *testing.T, name string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte("fake video bytes"), 0o644); err != nil {
		t.Fatalf("write temp video: %v", err)
	}
	return path
}

func TestDownloadRoundTrip(t *testing.T) {
	ctx := context.Background()
	c := New(NewMemoryBackend(), discardLogger())
	video := tempVideo(t, "clip.mp4")

	if _, ok := c.GetDownload(ctx, "tiktok", "u1", "https://example.com/v/1"); ok {
		t.Fatal("unexpected hit on empty cache")
	}

	err := c.PutDownload(ctx, "tiktok", "u1", "https://example.com/v/1", video, map[string]string{"quality": "hd"})
	if err != nil {
		t.Fatalf("PutDownload: %v", err)
	}

	entry, ok := c.GetDownload(ctx, "tiktok", "u1", "https://example.com/v/1")
	if !ok {
		t.Fatal("expected cache hit")
	}
	if entry.Path != video {
		t.Errorf("path = %q, want %q", entry.Path, video)
	}
	if entry.Meta["quality"] != "hd" {
		t.Errorf("meta = %v, want quality=hd", entry.Meta)
	}

	// Same URL for a different user is a separate entry.
	if _, ok := c.GetDownload(ctx, "tiktok", "u2", "https://example.com/v/1"); ok {
		t.Error("cache must not share entries across users")
	}
}

func TestLookupEvictsVanishedFile(t *testing.T) {
	ctx := context.Background()
	backend := NewMemoryBackend()
	c := New(backend, discardLogger())
	video := tempVideo(t, "clip.mp4")

	if err := c.PutDownload(ctx, "youtube", "u1", "url", video, nil); err != nil {
		t.Fatalf("PutDownload: %v", err)
	}
	os.Remove(video)

	if _, ok := c.GetDownload(ctx, "youtube", "u1", "url"); ok {
		t.Fatal("entry with missing file must be a miss")
	}

	// The stale key is gone, not just skipped.
	keys, _ := backend.Scan(ctx, "media:download:*")
	if len(keys) != 0 {
		t.Errorf("stale key not evicted: %v", keys)
	}
}

func TestLookupRejectsEmptyFile(t *testing.T) {
	ctx := context.Background()
	c := New(NewMemoryBackend(), discardLogger())

	empty := filepath.Join(t.TempDir(), "empty.mp4")
	if err := os.WriteFile(empty, nil, 0o644); err != nil {
		t.Fatalf("write empty file: %v", err)
	}

	if err := c.PutDownload(ctx, "tiktok", "u1", "url", empty, nil); err != nil {
		t.Fatalf("PutDownload: %v", err)
	}
	if _, ok := c.GetDownload(ctx, "tiktok", "u1", "url"); ok {
		t.Error("zero-byte file must not verify")
	}
}

func TestStageEntries(t *testing.T) {
	ctx := context.Background()
	c := New(NewMemoryBackend(), discardLogger())
	product := tempVideo(t, "segmented.mp4")

	hash, err := HashFile(product)
	if err != nil {
		t.Fatalf("HashFile: %v", err)
	}

	if err := c.PutStage(ctx, "segment", hash, product, nil); err != nil {
		t.Fatalf("PutStage: %v", err)
	}
	if _, ok := c.GetStage(ctx, "segment", hash); !ok {
		t.Error("expected stage hit")
	}
	if _, ok := c.GetStage(ctx, "analyze", hash); ok {
		t.Error("stages must not share entries")
	}
}

func TestStatusExpires(t *testing.T) {
	ctx := context.Background()
	backend := NewMemoryBackend()
	c := New(backend, discardLogger())

	if err := c.SetStatus(ctx, "run-1", "segmenting"); err != nil {
		t.Fatalf("SetStatus: %v", err)
	}
	if status, ok := c.GetStatus(ctx, "run-1"); !ok || status != "segmenting" {
		t.Fatalf("GetStatus = %q, %v", status, ok)
	}

	backend.now = func() time.Time { return time.Now().Add(StatusTTL + time.Second) }
	if _, ok := c.GetStatus(ctx, "run-1"); ok {
		t.Error("status should expire after its TTL")
	}
}

func TestPublishStatus(t *testing.T) {
	ctx := context.Background()
	backend := NewMemoryBackend()
	c := New(backend, discardLogger())

	if _, ok := c.GetPublishStatus(ctx, "tiktok", "u1", "hash-1"); ok {
		t.Fatal("unexpected hit before any publish")
	}

	if err := c.SetPublishStatus(ctx, "tiktok", "u1", "hash-1", "published"); err != nil {
		t.Fatalf("SetPublishStatus: %v", err)
	}
	if status, ok := c.GetPublishStatus(ctx, "tiktok", "u1", "hash-1"); !ok || status != "published" {
		t.Fatalf("GetPublishStatus = %q, %v", status, ok)
	}

	// Platforms do not share outcomes for the same clip.
	if _, ok := c.GetPublishStatus(ctx, "youtube", "u1", "hash-1"); ok {
		t.Error("publish status leaked across platforms")
	}

	backend.now = func() time.Time { return time.Now().Add(StatusTTL + time.Second) }
	if _, ok := c.GetPublishStatus(ctx, "tiktok", "u1", "hash-1"); ok {
		t.Error("publish status should expire after its TTL")
	}
}

func TestSweepRemovesStaleEntries(t *testing.T) {
	ctx := context.Background()
	backend := NewMemoryBackend()
	c := New(backend, discardLogger())

	alive := tempVideo(t, "alive.mp4")
	dead := tempVideo(t, "dead.mp4")

	if err := c.PutDownload(ctx, "tiktok", "u1", "url-alive", alive, nil); err != nil {
		t.Fatalf("PutDownload: %v", err)
	}
	if err := c.PutDownload(ctx, "tiktok", "u1", "url-dead", dead, nil); err != nil {
		t.Fatalf("PutDownload: %v", err)
	}
	os.Remove(dead)

	removed, err := c.Sweep(ctx)
	if err != nil {
		t.Fatalf("Sweep: %v", err)
	}
	if removed != 1 {
		t.Errorf("removed = %d, want 1", removed)
	}
	if _, ok := c.GetDownload(ctx, "tiktok", "u1", "url-alive"); !ok {
		t.Error("live entry must survive the sweep")
	}
}

func TestHashFile(t *testing.T) {
	a := tempVideo(t, "a.mp4")

	h1, err := HashFile(a)
	if err != nil {
		t.Fatalf("HashFile: %v", err)
	}
	h2, err := HashFile(a)
	if err != nil {
		t.Fatalf("HashFile: %v", err)
	}
	if h1 != h2 {
		t.Error("hashing the same file twice must agree")
	}

	b := filepath.Join(t.TempDir(), "b.mp4")
	if err := os.WriteFile(b, []byte("different bytes"), 0o644); err != nil {
		t.Fatalf("write file: %v", err)
	}
	h3, err := HashFile(b)
	if err != nil {
		t.Fatalf("HashFile: %v", err)
	}
	if h1 == h3 {
		t.Error("different content must hash differently")
	}
}

// Package ingest validates and stages source videos before the pipeline
// touches them. Each call is independent; there is no ingest state.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/h2non/filetype"
	gonanoid "github.com/matoous/go-nanoid/v2"

	"github.com/maheshrc27/clippost/internal/ffmpeg"
	"github.com/maheshrc27/clippost/internal/models"
)

const MaxFileSizeBytes = 500 * 1024 * 1024 // 500 MB

var (
	ErrNotFound             = errors.New("source file not found")
	ErrUnsupportedExtension = errors.New("unsupported file extension")
	ErrUnsupportedMime      = errors.New("unsupported mime type")
	ErrTooLarge             = errors.New("file exceeds maximum size")
)

var allowedExtensions = map[string]bool{
	".mp4":  true,
	".mov":  true,
	".avi":  true,
	".mkv":  true,
	".webm": true,
	".flv":  true,
	".wmv":  true,
}

var allowedMimeTypes = map[string]bool{
	"video/mp4":        true,
	"video/quicktime":  true,
	"video/x-msvideo":  true,
	"video/x-matroska": true,
	"video/webm":       true,
	"video/x-flv":      true,
	"video/x-ms-wmv":   true,
}

// IngestLocal validates a local file and copies it into stagingDir. On
// success the returned SourceVideo points at the staged copy.
func IngestLocal(ctx context.Context, srcPath, stagingDir string) (*models.SourceVideo, error) {
	info, err := os.Stat(srcPath)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, srcPath)
	}

	ext := strings.ToLower(filepath.Ext(srcPath))
	if !allowedExtensions[ext] {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedExtension, ext)
	}

	if info.Size() > MaxFileSizeBytes {
		return nil, fmt.Errorf("%w: %d bytes", ErrTooLarge, info.Size())
	}

	mime, err := sniffMime(srcPath)
	if err != nil {
		return nil, err
	}

	if err := os.MkdirAll(stagingDir, 0o755); err != nil {
		return nil, fmt.Errorf("create staging dir: %w", err)
	}

	destPath := filepath.Join(stagingDir, stagedName(filepath.Base(srcPath)))
	if err := copyFile(srcPath, destPath); err != nil {
		return nil, fmt.Errorf("stage file: %w", err)
	}

	return describe(ctx, destPath, info.Size(), mime, ext)
}

// IngestURL streams a remote resource into stagingDir and applies the same
// validations as IngestLocal. A file that fails validation is deleted before
// the error is returned.
func IngestURL(ctx context.Context, rawURL, stagingDir string) (*models.SourceVideo, error) {
	name := remoteFilename(rawURL)
	ext := strings.ToLower(filepath.Ext(name))
	if !allowedExtensions[ext] {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedExtension, ext)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}

	client := &http.Client{Timeout: 10 * time.Minute}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", rawURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch %s: status %d", rawURL, resp.StatusCode)
	}

	if err := os.MkdirAll(stagingDir, 0o755); err != nil {
		return nil, fmt.Errorf("create staging dir: %w", err)
	}

	destPath := filepath.Join(stagingDir, stagedName(name))
	out, err := os.Create(destPath)
	if err != nil {
		return nil, fmt.Errorf("create staged file: %w", err)
	}

	written, err := io.Copy(out, io.LimitReader(resp.Body, MaxFileSizeBytes+1))
	out.Close()
	if err != nil {
		os.Remove(destPath)
		return nil, fmt.Errorf("download %s: %w", rawURL, err)
	}
	if written > MaxFileSizeBytes {
		os.Remove(destPath)
		return nil, fmt.Errorf("%w: more than %d bytes", ErrTooLarge, MaxFileSizeBytes)
	}

	mime, err := sniffMime(destPath)
	if err != nil {
		os.Remove(destPath)
		return nil, err
	}

	source, err := describe(ctx, destPath, written, mime, ext)
	if err != nil {
		os.Remove(destPath)
		return nil, err
	}
	return source, nil
}

func describe(ctx context.Context, path string, size int64, mime, ext string) (*models.SourceVideo, error) {
	probed, err := ffmpeg.Probe(ctx, path)
	if err != nil {
		return nil, fmt.Errorf("probe staged file: %w", err)
	}

	slog.Info("video staged",
		"path", path,
		"size_bytes", size,
		"duration_s", probed.Duration,
		"has_audio", probed.HasAudio)

	return &models.SourceVideo{
		Path:         path,
		SizeBytes:    size,
		Mime:         mime,
		ContainerExt: ext,
		DurationS:    probed.Duration,
		Width:        probed.Width,
		Height:       probed.Height,
		HasAudio:     probed.HasAudio,
	}, nil
}

func sniffMime(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("%w: %s", ErrNotFound, path)
	}
	defer f.Close()

	head := make([]byte, 261)
	n, err := f.Read(head)
	if err != nil && err != io.EOF {
		return "", fmt.Errorf("read header: %w", err)
	}

	kind, err := filetype.Match(head[:n])
	if err != nil {
		return "", fmt.Errorf("sniff mime: %w", err)
	}
	if kind == filetype.Unknown || !allowedMimeTypes[kind.MIME.Value] {
		return "", fmt.Errorf("%w: %s", ErrUnsupportedMime, kind.MIME.Value)
	}
	return kind.MIME.Value, nil
}

func stagedName(base string) string {
	suffix, err := gonanoid.New(8)
	if err != nil {
		suffix = fmt.Sprintf("%d", time.Now().UnixNano()%1e8)
	}
	return fmt.Sprintf("%s_%s_%s", time.Now().Format("20060102T150405"), suffix, base)
}

func remoteFilename(rawURL string) string {
	trimmed := strings.SplitN(rawURL, "?", 2)[0]
	name := filepath.Base(trimmed)
	if name == "" || name == "." || name == "/" || !strings.Contains(name, ".") {
		return "downloaded_video.mp4"
	}
	return name
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}

	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		os.Remove(dst)
		return err
	}
	return out.Close()
}

// Package segmenter splits a source video into clips, either at evenly
// spaced points or at the midpoints of detected silences.
package segmenter

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/maheshrc27/clippost/internal/ffmpeg"
	"github.com/maheshrc27/clippost/internal/models"
)

// ErrSegment marks fatal segmentation failures; the pipeline aborts the run
// when it sees one.
var ErrSegment = errors.New("segmentation failed")

// Options control how split points are chosen.
type Options struct {
	MaxClipDuration  float64
	MinClipDuration  float64
	SplitOnSilence   bool
	SilenceThreshold float64
	SilenceDuration  float64
}

// DefaultOptions matches the pipeline's command-line defaults.
func DefaultOptions() Options {
	return Options{
		MaxClipDuration:  60,
		MinClipDuration:  5,
		SplitOnSilence:   false,
		SilenceThreshold: 0.03,
		SilenceDuration:  0.5,
	}
}

// Segment cuts the source into clips under outputDir and returns a report
// describing them. Clips are written sequentially; a failed write aborts the
// whole stage.
func Segment(ctx context.Context, source *models.SourceVideo, outputDir string, opts Options) (*models.SplitReport, error) {
	if source.DurationS <= 0 {
		return nil, fmt.Errorf("%w: source has no duration", ErrSegment)
	}

	points, err := splitPoints(ctx, source, opts)
	if err != nil {
		return nil, err
	}
	points = FilterMinDuration(points, opts.MinClipDuration)
	if len(points) < 2 {
		// Shorter than the minimum clip length; keep the whole video as one clip.
		points = []float64{0, source.DurationS}
	}

	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		return nil, fmt.Errorf("%w: create output dir: %v", ErrSegment, err)
	}

	base := strings.TrimSuffix(filepath.Base(source.Path), filepath.Ext(source.Path))
	clips := make([]models.Clip, 0, len(points)-1)

	for i := 0; i < len(points)-1; i++ {
		start, end := points[i], points[i+1]
		clipPath := filepath.Join(outputDir, fmt.Sprintf("%s_clip_%03d.mp4", base, i+1))

		slog.Info("writing clip",
			"index", i+1,
			"total", len(points)-1,
			"start_s", start,
			"end_s", end)

		if err := ffmpeg.ExtractSubclip(ctx, source.Path, clipPath, start, end-start); err != nil {
			return nil, fmt.Errorf("%w: clip %d: %v", ErrSegment, i+1, err)
		}

		clips = append(clips, models.Clip{
			Index:     i + 1,
			Path:      clipPath,
			StartS:    start,
			EndS:      end,
			DurationS: end - start,
		})
	}

	return &models.SplitReport{
		Success:       true,
		Clips:         clips,
		SplitPoints:   points,
		OutputDir:     outputDir,
		TotalDuration: source.DurationS,
	}, nil
}

// splitPoints picks candidate cut positions. The silence path falls back to
// even spacing when the source has no audio or no silences were found.
func splitPoints(ctx context.Context, source *models.SourceVideo, opts Options) ([]float64, error) {
	if opts.SplitOnSilence && source.HasAudio {
		samples, err := ffmpeg.ExtractMonoPCM(ctx, source.Path, SilenceSampleRate)
		if err != nil {
			return nil, fmt.Errorf("%w: decode audio: %v", ErrSegment, err)
		}

		segments := DetectSilence(samples, opts.SilenceThreshold, opts.SilenceDuration, source.DurationS)
		if mids := Midpoints(segments); len(mids) > 0 {
			return boundedPoints(mids, source.DurationS), nil
		}
		slog.Info("no silences detected, falling back to even spacing")
	}

	return EvenSplitPoints(source.DurationS, opts.MaxClipDuration), nil
}

// EvenSplitPoints spaces ceil(duration/max)+1 points evenly over [0, duration].
func EvenSplitPoints(duration, maxClipDuration float64) []float64 {
	n := int(math.Ceil(duration / maxClipDuration))
	if n < 1 {
		n = 1
	}

	points := make([]float64, n+1)
	for i := 0; i <= n; i++ {
		points[i] = duration * float64(i) / float64(n)
	}
	return points
}

// FilterMinDuration drops points left to right so that no two consecutive
// survivors are closer than minDuration. Earlier points always win over
// later ones.
func FilterMinDuration(points []float64, minDuration float64) []float64 {
	if len(points) == 0 {
		return points
	}

	filtered := points[:1]
	for _, p := range points[1:] {
		if p-filtered[len(filtered)-1] >= minDuration {
			filtered = append(filtered, p)
		}
	}
	return filtered
}

// boundedPoints sorts candidate interior points and brackets them with the
// video's start and end.
func boundedPoints(mids []float64, duration float64) []float64 {
	interior := make([]float64, 0, len(mids))
	for _, m := range mids {
		if m > 0 && m < duration {
			interior = append(interior, m)
		}
	}
	sort.Float64s(interior)

	points := make([]float64, 0, len(interior)+2)
	points = append(points, 0)
	points = append(points, interior...)
	return append(points, duration)
}

// Package analyzer samples frames from clips, computes cheap local
// heuristics over them and assembles the textual context the text generator
// prompts with. An optional vision model enriches the context; everything
// else runs locally.
package analyzer

import (
	"bytes"
	"context"
	"fmt"
	"image"
	_ "image/jpeg"
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/maheshrc27/clippost/internal/ffmpeg"
	"github.com/maheshrc27/clippost/internal/models"
)

type Analyzer interface {
	AnalyzeClip(ctx context.Context, clip models.Clip, userDescription string) ([]models.FrameSample, string, error)
}

// Describer turns a handful of sampled frames into a short scene
// description. It is optional; a nil Describer leaves clip context to the
// local heuristics alone.
type Describer interface {
	DescribeFrames(ctx context.Context, frames [][]byte) (string, error)
}

type analyzer struct {
	faces  *faceDetector
	vision Describer
	log    *slog.Logger
}

// New builds an analyzer. cascadePath may be empty, in which case face
// detection is disabled rather than failing the stage. vision may be nil.
func New(cascadePath string, vision Describer, log *slog.Logger) Analyzer {
	a := &analyzer{vision: vision, log: log}
	if cascadePath == "" {
		return a
	}

	faces, err := newFaceDetector(cascadePath)
	if err != nil {
		log.Warn("face detection disabled", "error", err)
		return a
	}
	a.faces = faces
	return a
}

// AnalyzeClip extracts evenly spaced frames from the clip, analyzes each one
// and returns the samples plus the assembled text-generation context.
// Frames that fail to decode are skipped; the stage only errors when the clip
// itself is unreadable.
func (a *analyzer) AnalyzeClip(ctx context.Context, clip models.Clip, userDescription string) ([]models.FrameSample, string, error) {
	if clip.DurationS <= 0 {
		return nil, "", fmt.Errorf("clip %d has no duration", clip.Index)
	}

	n := FrameCount(clip.DurationS)
	timestamps := SampleTimestamps(clip.DurationS, n)

	samples := make([]models.FrameSample, 0, n)
	for _, ts := range timestamps {
		data, err := ffmpeg.ExtractFrame(ctx, clip.Path, ts)
		if err != nil {
			a.log.Debug("frame extraction failed", "clip", clip.Index, "timestamp", ts, "error", err)
			continue
		}

		img, _, err := image.Decode(bytes.NewReader(data))
		if err != nil {
			a.log.Debug("frame decode failed", "clip", clip.Index, "timestamp", ts, "error", err)
			continue
		}

		analysis := a.analyzeFrame(img)
		bounds := img.Bounds()
		samples = append(samples, models.FrameSample{
			ClipIndex:     clip.Index,
			TimestampS:    ts,
			PositionLabel: positionLabel(ts, clip.DurationS),
			Resolution:    fmt.Sprintf("%dx%d", bounds.Dx(), bounds.Dy()),
			ImageBytes:    data,
			Analysis:      analysis,
		})
	}

	a.log.Info("clip analyzed",
		"clip", clip.Index,
		"frames_sampled", len(samples),
		"frames_requested", n)

	notes := a.visionNotes(ctx, clip, samples)
	return samples, AssembleContext(userDescription, notes, samples, clip.Path), nil
}

// visionNotes describes up to the first three sampled frames with the
// configured vision model, one call per frame. A missing model or a failed
// call just means fewer notes.
func (a *analyzer) visionNotes(ctx context.Context, clip models.Clip, samples []models.FrameSample) []string {
	if a.vision == nil {
		return nil
	}

	var notes []string
	for i, s := range samples {
		if i == 3 {
			break
		}
		desc, err := a.vision.DescribeFrames(ctx, [][]byte{s.ImageBytes})
		if err != nil {
			a.log.Debug("vision description unavailable", "clip", clip.Index, "frame", i, "error", err)
			continue
		}
		if desc = strings.TrimSpace(desc); desc != "" {
			notes = append(notes, desc)
		}
	}
	return notes
}

func (a *analyzer) analyzeFrame(img image.Image) models.FrameAnalysis {
	gray, w, h := grayPlane(img)

	bright := brightness(gray)
	colors := meanColors(img)
	edges := edgeDensity(gray, w, h)
	numFaces := a.faces.count(gray, w, h)
	_, hasText := detectTextRegions(gray, w, h)

	analysis := models.FrameAnalysis{
		Brightness:  bright,
		ColorMeans:  colors,
		EdgeDensity: edges,
		HasFaces:    numFaces > 0,
		NumFaces:    numFaces,
		HasText:     hasText,
	}
	analysis.Summary = frameSummary(analysis)
	return analysis
}

// FrameCount scales the number of sampled frames with clip length.
func FrameCount(duration float64) int {
	switch {
	case duration > 60:
		return 15
	case duration > 30:
		return 10
	default:
		return 5
	}
}

// SampleTimestamps spreads n timestamps evenly over the clip's interior,
// avoiding the first and last instants where decoders often return nothing.
func SampleTimestamps(duration float64, n int) []float64 {
	out := make([]float64, n)
	for i := 0; i < n; i++ {
		out[i] = duration * float64(i+1) / float64(n+1)
	}
	return out
}

func positionLabel(ts, duration float64) string {
	switch frac := ts / duration; {
	case frac < 1.0/3:
		return "start"
	case frac < 2.0/3:
		return "middle"
	default:
		return "end"
	}
}

// frameSummary composes a neutral description of one frame. Lighting and
// composition are bucketed; no mood is inferred from lighting or colour.
func frameSummary(a models.FrameAnalysis) string {
	parts := []string{lightingBucket(a.Brightness)}

	if tone := colorTone(a.ColorMeans); tone != "" {
		parts = append(parts, tone)
	}

	switch {
	case a.EdgeDensity < 0.05:
		parts = append(parts, "simple composition")
	case a.EdgeDensity > 0.2:
		parts = append(parts, "detailed composition")
	}

	switch {
	case a.NumFaces == 1:
		parts = append(parts, "shows 1 person")
	case a.NumFaces > 1:
		parts = append(parts, fmt.Sprintf("shows %d people", a.NumFaces))
	}

	if a.HasText {
		parts = append(parts, "contains text")
	}
	return strings.Join(parts, ", ")
}

func lightingBucket(brightness float64) string {
	switch {
	case brightness < 0.2:
		return "low lighting"
	case brightness < 0.4:
		return "dim lighting"
	case brightness > 0.8:
		return "bright lighting"
	case brightness > 0.6:
		return "well-lit"
	default:
		return "moderate lighting"
	}
}

// colorTone names the dominant colour when one channel clearly leads, or a
// two-channel blend. Muted frames get no tone phrase.
func colorTone(c models.ColorMeans) string {
	if c.R <= 0.3 && c.G <= 0.3 && c.B <= 0.3 {
		return ""
	}
	switch {
	case c.R > c.G*1.2 && c.R > c.B*1.2:
		return "warm color tones"
	case c.G > c.R*1.2 && c.G > c.B*1.2:
		return "green color tones"
	case c.B > c.R*1.2 && c.B > c.G*1.2:
		return "cool color tones"
	case c.R > 0.6 && c.G > 0.6 && c.B < 0.5:
		return "warm yellow tones"
	case c.R > 0.6 && c.B > 0.6 && c.G < 0.5:
		return "purple tones"
	case c.G > 0.6 && c.B > 0.6 && c.R < 0.5:
		return "teal tones"
	}
	return ""
}

// AssembleContext builds the text-generation context for a clip. Sections
// appear in a fixed order, each omitted when empty: the user's description,
// vision analysis bullets, then one caption per sampled frame. When nothing
// was produced the cleaned clip filename stands in.
func AssembleContext(userDescription string, visionNotes []string, samples []models.FrameSample, clipPath string) string {
	var sections []string

	if userDescription != "" {
		sections = append(sections, "User description: "+userDescription)
	}

	if len(visionNotes) > 0 {
		lines := []string{"Vision analysis:"}
		for _, note := range visionNotes {
			lines = append(lines, "- "+note)
		}
		sections = append(sections, strings.Join(lines, "\n"))
	}

	if len(samples) > 0 {
		lines := []string{"Local frame captions:"}
		for i, s := range samples {
			lines = append(lines, fmt.Sprintf("- Frame %d (%s): %s", i+1, s.PositionLabel, s.Analysis.Summary))
		}
		sections = append(sections, strings.Join(lines, "\n"))
	}

	if len(sections) == 0 {
		return CleanName(clipPath)
	}
	return strings.Join(sections, "\n")
}

// CleanName turns a clip path into a readable description: base name without
// extension, separators replaced with spaces.
func CleanName(path string) string {
	base := filepath.Base(path)
	base = strings.TrimSuffix(base, filepath.Ext(base))
	base = strings.NewReplacer("_", " ", "-", " ").Replace(base)
	if base = strings.TrimSpace(base); base == "" || base == "." {
		return "video clip"
	}
	return base
}

package analyzer

import (
	"context"
	"errors"
	"image"
	"image/color"
	"io"
	"log/slog"
	"math"
	"strings"
	"testing"

	"github.com/maheshrc27/clippost/internal/models"
)

func TestFrameCount(t *testing.T) {
	tests := []struct {
		duration float64
		want     int
	}{
		{duration: 5, want: 5},
		{duration: 30, want: 5},
		{duration: 30.1, want: 10},
		{duration: 60, want: 10},
		{duration: 61, want: 15},
		{duration: 300, want: 15},
	}

	for _, tt := range tests {
		if got := FrameCount(tt.duration); got != tt.want {
			t.Errorf("FrameCount(%v) = %d, want %d", tt.duration, got, tt.want)
		}
	}
}

func TestSampleTimestamps(t *testing.T) {
	got := SampleTimestamps(30, 5)
	want := []float64{5, 10, 15, 20, 25}
	if len(got) != len(want) {
		t.Fatalf("got %d timestamps, want %d", len(got), len(want))
	}
	for i := range want {
		if math.Abs(got[i]-want[i]) > 1e-9 {
			t.Errorf("timestamp[%d] = %v, want %v", i, got[i], want[i])
		}
	}
}

func TestSampleTimestampsStayInterior(t *testing.T) {
	for _, duration := range []float64{1, 12.5, 45, 90} {
		for _, ts := range SampleTimestamps(duration, FrameCount(duration)) {
			if ts <= 0 || ts >= duration {
				t.Errorf("duration %v: timestamp %v outside (0, %v)", duration, ts, duration)
			}
		}
	}
}

func uniformImage(w, h int, c color.RGBA) image.Image {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetRGBA(x, y, c)
		}
	}
	return img
}

func TestBrightnessExtremes(t *testing.T) {
	black, _, _ := grayPlane(uniformImage(16, 16, color.RGBA{A: 255}))
	if b := brightness(black); b != 0 {
		t.Errorf("black frame brightness = %v, want 0", b)
	}

	white, _, _ := grayPlane(uniformImage(16, 16, color.RGBA{R: 255, G: 255, B: 255, A: 255}))
	if b := brightness(white); b < 0.98 {
		t.Errorf("white frame brightness = %v, want near 1", b)
	}
}

func TestMeanColors(t *testing.T) {
	c := meanColors(uniformImage(8, 8, color.RGBA{R: 204, G: 51, B: 0, A: 255}))
	if math.Abs(c.R-0.8) > 0.01 || math.Abs(c.G-0.2) > 0.01 || math.Abs(c.B) > 0.01 {
		t.Errorf("mean colors = %+v, want roughly {0.8 0.2 0}", c)
	}
}

func TestLightingBucket(t *testing.T) {
	tests := []struct {
		brightness float64
		want       string
	}{
		{0.1, "low lighting"},
		{0.3, "dim lighting"},
		{0.5, "moderate lighting"},
		{0.7, "well-lit"},
		{0.9, "bright lighting"},
	}
	for _, tt := range tests {
		if got := lightingBucket(tt.brightness); got != tt.want {
			t.Errorf("lightingBucket(%v) = %q, want %q", tt.brightness, got, tt.want)
		}
	}
}

func TestFrameSummaryNeutralLanguage(t *testing.T) {
	summary := frameSummary(models.FrameAnalysis{
		Brightness:  0.1,
		ColorMeans:  models.ColorMeans{R: 0.5, G: 0.2, B: 0.2},
		EdgeDensity: 0.3,
		NumFaces:    2,
		HasText:     true,
	})

	for _, want := range []string{"low lighting", "warm color tones", "detailed composition", "shows 2 people", "contains text"} {
		if !strings.Contains(summary, want) {
			t.Errorf("summary %q missing %q", summary, want)
		}
	}
	for _, banned := range []string{"dark", "moody", "spooky", "mysterious"} {
		if strings.Contains(summary, banned) {
			t.Errorf("summary %q infers mood with %q", summary, banned)
		}
	}
}

func TestFrameSummarySimpleComposition(t *testing.T) {
	summary := frameSummary(models.FrameAnalysis{Brightness: 0.5, EdgeDensity: 0.01})
	if !strings.Contains(summary, "simple composition") {
		t.Errorf("summary %q missing composition bucket", summary)
	}
	if strings.Contains(summary, "tones") {
		t.Errorf("muted frame should have no tone phrase: %q", summary)
	}
}

func TestEdgeDensityUniformFrame(t *testing.T) {
	gray, w, h := grayPlane(uniformImage(32, 32, color.RGBA{R: 128, G: 128, B: 128, A: 255}))
	if d := edgeDensity(gray, w, h); d != 0 {
		t.Errorf("uniform frame edge density = %v, want 0", d)
	}
}

func TestEdgeDensityVerticalBoundary(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 32, 32))
	for y := 0; y < 32; y++ {
		for x := 0; x < 32; x++ {
			if x < 16 {
				img.SetRGBA(x, y, color.RGBA{A: 255})
			} else {
				img.SetRGBA(x, y, color.RGBA{R: 255, G: 255, B: 255, A: 255})
			}
		}
	}

	gray, w, h := grayPlane(img)
	if d := edgeDensity(gray, w, h); d <= 0 {
		t.Errorf("hard boundary edge density = %v, want > 0", d)
	}
}

func TestDetectTextRegionsBlankFrame(t *testing.T) {
	gray, w, h := grayPlane(uniformImage(64, 64, color.RGBA{R: 255, G: 255, B: 255, A: 255}))
	boxes, has := detectTextRegions(gray, w, h)
	if boxes != 0 || has {
		t.Errorf("blank frame text regions = (%d, %v), want (0, false)", boxes, has)
	}
}

func TestDetectTextRegionsGlyphRows(t *testing.T) {
	// Four wide dark bars on a white background, shaped like text lines.
	img := image.NewRGBA(image.Rect(0, 0, 200, 120))
	for y := 0; y < 120; y++ {
		for x := 0; x < 200; x++ {
			img.SetRGBA(x, y, color.RGBA{R: 255, G: 255, B: 255, A: 255})
		}
	}
	for row := 0; row < 4; row++ {
		top := 10 + row*28
		for y := top; y < top+14; y++ {
			for x := 20; x < 120; x++ {
				img.SetRGBA(x, y, color.RGBA{A: 255})
			}
		}
	}

	gray, w, h := grayPlane(img)
	boxes, has := detectTextRegions(gray, w, h)
	if boxes != 4 {
		t.Errorf("got %d boxes, want 4", boxes)
	}
	if !has {
		t.Error("expected text to be detected")
	}
}

func TestAssembleContextOrder(t *testing.T) {
	samples := []models.FrameSample{
		{PositionLabel: "start", Analysis: models.FrameAnalysis{Summary: "well-lit, shows 1 person"}},
		{PositionLabel: "end", Analysis: models.FrameAnalysis{Summary: "dim lighting, contains text"}},
	}
	notes := []string{"a cook plates a dish", "a close-up of the finished plate"}

	got := AssembleContext("my cooking tutorial", notes, samples, "clips/tutorial_clip_001.mp4")

	userIdx := strings.Index(got, "User description: my cooking tutorial")
	visionIdx := strings.Index(got, "Vision analysis:\n- a cook plates a dish\n- a close-up of the finished plate")
	framesIdx := strings.Index(got, "Local frame captions:\n- Frame 1 (start): well-lit, shows 1 person\n- Frame 2 (end): dim lighting, contains text")

	if userIdx < 0 || visionIdx < 0 || framesIdx < 0 {
		t.Fatalf("context missing a section:\n%s", got)
	}
	if !(userIdx < visionIdx && visionIdx < framesIdx) {
		t.Errorf("sections out of order (user=%d vision=%d frames=%d):\n%s", userIdx, visionIdx, framesIdx, got)
	}
}

func TestAssembleContextSkipsEmptySections(t *testing.T) {
	samples := []models.FrameSample{
		{PositionLabel: "middle", Analysis: models.FrameAnalysis{Summary: "moderate lighting"}},
	}

	got := AssembleContext("", nil, samples, "clip.mp4")
	if strings.Contains(got, "User description") || strings.Contains(got, "Vision analysis") {
		t.Errorf("empty sections should be omitted:\n%s", got)
	}
	if !strings.HasPrefix(got, "Local frame captions:") {
		t.Errorf("frame captions should lead when nothing else was produced:\n%s", got)
	}
}

func TestAssembleContextFilenameFallback(t *testing.T) {
	got := AssembleContext("", nil, nil, "/out/clips/beach_day-highlights_clip_002.mp4")
	if got != "beach day highlights clip 002" {
		t.Errorf("fallback = %q, want the cleaned filename", got)
	}
}

func TestCleanName(t *testing.T) {
	tests := []struct {
		path, want string
	}{
		{"videos/summer_trip.mp4", "summer trip"},
		{"a-b_c.mov", "a b c"},
		{"", "video clip"},
	}
	for _, tt := range tests {
		if got := CleanName(tt.path); got != tt.want {
			t.Errorf("CleanName(%q) = %q, want %q", tt.path, got, tt.want)
		}
	}
}

type fakeDescriber struct {
	descs []string
	err   error
	calls int
}

func (f *fakeDescriber) DescribeFrames(ctx context.Context, frames [][]byte) (string, error) {
	f.calls++
	if f.err != nil {
		return "", f.err
	}
	return f.descs[(f.calls-1)%len(f.descs)], nil
}

func TestVisionNotesLimitsCalls(t *testing.T) {
	vision := &fakeDescriber{descs: []string{"a surfer rides a wave", "the surfer wipes out", "a crowd on the beach"}}
	a := &analyzer{vision: vision, log: slog.New(slog.NewTextHandler(io.Discard, nil))}

	samples := make([]models.FrameSample, 5)
	for i := range samples {
		samples[i].ImageBytes = []byte{byte(i)}
	}

	notes := a.visionNotes(context.Background(), models.Clip{Index: 1}, samples)
	if len(notes) != 3 {
		t.Fatalf("got %d notes, want 3: %v", len(notes), notes)
	}
	if vision.calls != 3 {
		t.Errorf("made %d vision calls, want 3", vision.calls)
	}
	if notes[0] != "a surfer rides a wave" {
		t.Errorf("first note = %q", notes[0])
	}
}

func TestVisionNotesFailureIsSilent(t *testing.T) {
	vision := &fakeDescriber{err: errors.New("quota exceeded")}
	a := &analyzer{vision: vision, log: slog.New(slog.NewTextHandler(io.Discard, nil))}

	samples := []models.FrameSample{{ImageBytes: []byte{1}}}
	if notes := a.visionNotes(context.Background(), models.Clip{Index: 1}, samples); notes != nil {
		t.Errorf("failed vision calls produced notes: %v", notes)
	}
}

func TestVisionNotesWithoutModel(t *testing.T) {
	a := &analyzer{log: slog.New(slog.NewTextHandler(io.Discard, nil))}
	samples := []models.FrameSample{{ImageBytes: []byte{1}}}
	if notes := a.visionNotes(context.Background(), models.Clip{Index: 1}, samples); notes != nil {
		t.Errorf("vision notes without a model: %v", notes)
	}
}

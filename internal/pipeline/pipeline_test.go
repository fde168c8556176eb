package pipeline

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/maheshrc27/clippost/internal/cache"
	"github.com/maheshrc27/clippost/internal/models"
	"github.com/maheshrc27/clippost/internal/textgen"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fakeAnalyzer struct {
	context  string
	err      error
	lastDesc string
}

func (f *fakeAnalyzer) AnalyzeClip(ctx context.Context, clip models.Clip, userDescription string) ([]models.FrameSample, string, error) {
	f.lastDesc = userDescription
	if f.err != nil {
		return nil, "", f.err
	}
	return []models.FrameSample{{ClipIndex: clip.Index}}, f.context, nil
}

type fakeGenerator struct{}

func (fakeGenerator) Generate(ctx context.Context, clipContext string, opts textgen.Options) *models.GeneratedText {
	return &models.GeneratedText{
		Captions: []string{"caption for " + clipContext},
		Hashtags: []string{"#clip"},
		Platforms: map[string]models.PlatformText{
			"tiktok": {Caption: "caption", Hashtags: []string{"#clip"}},
		},
	}
}

func newTestPipeline() *Pipeline {
	mc := cache.New(cache.NewMemoryBackend(), discardLogger())
	return New(mc, &fakeAnalyzer{context: "bright video clip"}, fakeGenerator{}, nil, discardLogger())
}

func TestRunFailsCleanlyOnMissingInput(t *testing.T) {
	p := newTestPipeline()

	result := p.Run(context.Background(), Options{
		VideoPath: filepath.Join(t.TempDir(), "does-not-exist.mp4"),
		OutputDir: t.TempDir(),
	})

	if result.Success {
		t.Error("run with a missing input must not succeed")
	}
	if result.Upload.Success {
		t.Error("upload report must record the failure")
	}
	if result.Error == "" {
		t.Error("run error must be set")
	}
	if result.EndedAt.Before(result.StartedAt) {
		t.Error("timestamps not stamped")
	}
}

func TestProcessClipWithoutPublishing(t *testing.T) {
	p := newTestPipeline()
	clip := models.Clip{Index: 1, Path: "clip_001.mp4", StartS: 0, EndS: 30, DurationS: 30}

	result := p.processClip(context.Background(), clip, Options{}, discardLogger())

	if result.Context != "bright video clip" {
		t.Errorf("context = %q", result.Context)
	}
	if len(result.Text.Captions) == 0 {
		t.Error("clip result missing captions")
	}
	if result.Publish != nil {
		t.Error("publish map must be empty when posting is off")
	}
}

func TestProcessClipAnalysisFailureDegrades(t *testing.T) {
	mc := cache.New(cache.NewMemoryBackend(), discardLogger())
	p := New(mc, &fakeAnalyzer{err: os.ErrNotExist}, fakeGenerator{}, nil, discardLogger())

	clip := models.Clip{Index: 1, Path: "clip_001.mp4", DurationS: 30}
	result := p.processClip(context.Background(), clip, Options{}, discardLogger())

	if result.Context != "clip 001" {
		t.Errorf("failed analysis should fall back to the filename context, got %q", result.Context)
	}
	if len(result.Text.Captions) == 0 {
		t.Error("text generation must still run")
	}
}

func TestProcessClipAnalysisFailureKeepsDescription(t *testing.T) {
	mc := cache.New(cache.NewMemoryBackend(), discardLogger())
	p := New(mc, &fakeAnalyzer{err: os.ErrNotExist}, fakeGenerator{}, nil, discardLogger())

	clip := models.Clip{Index: 1, Path: "clip_001.mp4", DurationS: 30}
	result := p.processClip(context.Background(), clip, Options{Description: "a dog at the beach"}, discardLogger())

	if result.Context != "User description: a dog at the beach" {
		t.Errorf("fallback context must keep the user description, got %q", result.Context)
	}
}

func TestProcessClipPassesDescriptionToAnalyzer(t *testing.T) {
	mc := cache.New(cache.NewMemoryBackend(), discardLogger())
	an := &fakeAnalyzer{context: "ctx"}
	p := New(mc, an, fakeGenerator{}, nil, discardLogger())

	clip := models.Clip{Index: 1, Path: "clip_001.mp4", DurationS: 30}
	p.processClip(context.Background(), clip, Options{Description: "a dog at the beach"}, discardLogger())

	if an.lastDesc != "a dog at the beach" {
		t.Errorf("analyzer got description %q", an.lastDesc)
	}
}

func TestPublishWithoutPublisherConfigured(t *testing.T) {
	p := newTestPipeline()
	clip := models.Clip{Index: 1, Path: "clip_001.mp4", DurationS: 30}

	result := p.processClip(context.Background(), clip, Options{
		Post:      true,
		Platforms: []string{"tiktok", "youtube"},
	}, discardLogger())

	if len(result.Publish) != 2 {
		t.Fatalf("got %d publish results, want 2", len(result.Publish))
	}
	for platform, res := range result.Publish {
		if res.Success {
			t.Errorf("%s: publish without a publisher must fail", platform)
		}
	}
}

func TestCachedSplitRejectsMissingClips(t *testing.T) {
	mc := cache.New(cache.NewMemoryBackend(), discardLogger())
	p := New(mc, &fakeAnalyzer{}, fakeGenerator{}, nil, discardLogger())
	ctx := context.Background()

	clipPath := filepath.Join(t.TempDir(), "clip_001.mp4")
	if err := os.WriteFile(clipPath, []byte("bytes"), 0o644); err != nil {
		t.Fatalf("write clip: %v", err)
	}

	split := models.SplitReport{
		Success: true,
		Clips:   []models.Clip{{Index: 1, Path: clipPath, DurationS: 30}},
	}
	raw, _ := json.Marshal(split)
	meta := map[string]string{"split_report": string(raw)}
	if err := mc.PutStage(ctx, "segment", "hash1", clipPath, meta); err != nil {
		t.Fatalf("PutStage: %v", err)
	}

	if got := p.cachedSplit(ctx, "hash1"); got == nil {
		t.Fatal("expected cached split while clip exists")
	}

	os.Remove(clipPath)
	if got := p.cachedSplit(ctx, "hash1"); got != nil {
		t.Error("cached split with a missing clip file must be rejected")
	}
}

func TestWriteResults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "results.json")
	result := &models.RunResult{Success: true}

	if err := WriteResults(path, result); err != nil {
		t.Fatalf("WriteResults: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read results: %v", err)
	}

	var parsed models.RunResult
	if err := json.Unmarshal(data, &parsed); err != nil {
		t.Fatalf("results file is not valid JSON: %v", err)
	}
	if !parsed.Success {
		t.Error("success flag lost in round trip")
	}
}

// Package pipeline runs the full clip workflow: ingest a video, cut it into
// clips, analyze frames, generate text and optionally publish. Stage
// boundaries decide what is fatal: ingest and segmentation abort a run, text
// generation and publishing only degrade it.
package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	gonanoid "github.com/matoous/go-nanoid/v2"

	"github.com/maheshrc27/clippost/internal/analyzer"
	"github.com/maheshrc27/clippost/internal/cache"
	"github.com/maheshrc27/clippost/internal/ingest"
	"github.com/maheshrc27/clippost/internal/models"
	"github.com/maheshrc27/clippost/internal/publisher"
	"github.com/maheshrc27/clippost/internal/segmenter"
	"github.com/maheshrc27/clippost/internal/textgen"
)

// Options describe one run. Description is the user's own account of the
// video; it leads the prompt context when present.
type Options struct {
	VideoPath   string
	VideoURL    string
	OutputDir   string
	UserID      string
	Description string
	Segmenter   segmenter.Options
	TextGen     textgen.Options
	Post        bool
	Platforms   []string
}

type Pipeline struct {
	cache    *cache.MediaCache
	analyzer analyzer.Analyzer
	textgen  textgen.Generator
	pub      *publisher.Publisher
	log      *slog.Logger
}

// New wires a pipeline. pub may be nil when publishing is not configured;
// runs with Post set will then record failures per platform.
func New(mediaCache *cache.MediaCache, an analyzer.Analyzer, gen textgen.Generator, pub *publisher.Publisher, log *slog.Logger) *Pipeline {
	return &Pipeline{
		cache:    mediaCache,
		analyzer: an,
		textgen:  gen,
		pub:      pub,
		log:      log,
	}
}

// Run executes the workflow and always returns a complete RunResult; fatal
// stage errors are recorded in it rather than returned.
func (p *Pipeline) Run(ctx context.Context, opts Options) *models.RunResult {
	result := &models.RunResult{StartedAt: time.Now()}
	defer func() { result.EndedAt = time.Now() }()

	runID := newRunID()
	log := p.log.With("run", runID)

	p.setStatus(ctx, runID, "ingesting")
	source, err := p.ingest(ctx, opts)
	if err != nil {
		log.Error("ingest failed", "error", err)
		result.Upload = models.UploadReport{Success: false, Error: err.Error()}
		result.Error = err.Error()
		return result
	}
	result.Upload = models.UploadReport{Success: true, Source: source}

	p.setStatus(ctx, runID, "segmenting")
	split, err := p.segment(ctx, source, opts)
	if err != nil {
		log.Error("segmentation failed", "error", err)
		result.Split = models.SplitReport{Success: false, Error: err.Error()}
		result.Error = err.Error()
		return result
	}
	result.Split = *split

	for _, clip := range split.Clips {
		p.setStatus(ctx, runID, fmt.Sprintf("processing clip %d/%d", clip.Index, len(split.Clips)))
		result.Clips = append(result.Clips, p.processClip(ctx, clip, opts, log))
	}

	p.setStatus(ctx, runID, "done")
	result.Success = true
	return result
}

// ingest stages the input video, serving URL fetches from the media cache
// when the previous download still verifies.
func (p *Pipeline) ingest(ctx context.Context, opts Options) (*models.SourceVideo, error) {
	stagingDir := filepath.Join(opts.OutputDir, "source")

	if opts.VideoURL == "" {
		return ingest.IngestLocal(ctx, opts.VideoPath, stagingDir)
	}

	if entry, ok := p.cache.GetDownload(ctx, "url", opts.UserID, opts.VideoURL); ok {
		p.log.Info("serving download from cache", "url", opts.VideoURL, "path", entry.Path)
		return ingest.IngestLocal(ctx, entry.Path, stagingDir)
	}

	source, err := ingest.IngestURL(ctx, opts.VideoURL, stagingDir)
	if err != nil {
		return nil, err
	}

	if err := p.cache.PutDownload(ctx, "url", opts.UserID, opts.VideoURL, source.Path, nil); err != nil {
		p.log.Warn("could not cache download", "error", err)
	}
	return source, nil
}

// segment cuts the source, reusing a cached split of identical content when
// every clip file still verifies.
func (p *Pipeline) segment(ctx context.Context, source *models.SourceVideo, opts Options) (*models.SplitReport, error) {
	clipsDir := filepath.Join(opts.OutputDir, "clips")

	sourceHash, err := cache.HashFile(source.Path)
	if err != nil {
		p.log.Warn("could not hash source, skipping stage cache", "error", err)
		return segmenter.Segment(ctx, source, clipsDir, opts.Segmenter)
	}

	if cached := p.cachedSplit(ctx, sourceHash); cached != nil {
		p.log.Info("serving segmentation from cache", "hash", sourceHash, "clips", len(cached.Clips))
		return cached, nil
	}

	split, err := segmenter.Segment(ctx, source, clipsDir, opts.Segmenter)
	if err != nil {
		return nil, err
	}

	if raw, err := json.Marshal(split); err == nil && len(split.Clips) > 0 {
		meta := map[string]string{"split_report": string(raw)}
		if err := p.cache.PutStage(ctx, "segment", sourceHash, split.Clips[0].Path, meta); err != nil {
			p.log.Warn("could not cache segmentation", "error", err)
		}
	}
	return split, nil
}

func (p *Pipeline) cachedSplit(ctx context.Context, sourceHash string) *models.SplitReport {
	entry, ok := p.cache.GetStage(ctx, "segment", sourceHash)
	if !ok {
		return nil
	}

	var split models.SplitReport
	if err := json.Unmarshal([]byte(entry.Meta["split_report"]), &split); err != nil {
		return nil
	}

	for _, clip := range split.Clips {
		info, err := os.Stat(clip.Path)
		if err != nil || info.Size() == 0 {
			return nil
		}
	}
	return &split
}

func (p *Pipeline) processClip(ctx context.Context, clip models.Clip, opts Options, log *slog.Logger) models.ClipResult {
	samples, clipContext, err := p.analyzer.AnalyzeClip(ctx, clip, opts.Description)
	if err != nil {
		log.Warn("clip analysis failed, continuing with filename context", "clip", clip.Index, "error", err)
		clipContext = analyzer.AssembleContext(opts.Description, nil, nil, clip.Path)
	}
	log.Info("clip context", "clip", clip.Index, "frames", len(samples), "context", clipContext)

	text := p.textgen.Generate(ctx, clipContext, opts.TextGen)

	result := models.ClipResult{
		Clip:    clip,
		Context: clipContext,
		Text:    *text,
	}

	if opts.Post {
		result.Publish = p.publish(ctx, clip, text, opts)
	}
	return result
}

func (p *Pipeline) publish(ctx context.Context, clip models.Clip, text *models.GeneratedText, opts Options) map[string]models.PublishResult {
	if p.pub == nil {
		results := make(map[string]models.PublishResult, len(opts.Platforms))
		for _, platform := range opts.Platforms {
			results[platform] = models.PublishResult{
				Platform: platform,
				Success:  false,
				Error:    "publishing not configured",
			}
		}
		return results
	}

	req := publisher.Request{
		UserID:    opts.UserID,
		VideoPath: clip.Path,
		Caption:   text.Captions[0],
		Hashtags:  text.Hashtags,
		Overrides: text.Platforms,
	}
	results := p.pub.PublishAll(ctx, req, opts.Platforms)
	p.recordPublishStatus(ctx, clip, opts.UserID, results)
	return results
}

// recordPublishStatus stamps each platform outcome in the cache, keyed by the
// clip's content hash.
func (p *Pipeline) recordPublishStatus(ctx context.Context, clip models.Clip, userID string, results map[string]models.PublishResult) {
	clipHash, err := cache.HashFile(clip.Path)
	if err != nil {
		p.log.Debug("could not hash clip for publish status", "clip", clip.Index, "error", err)
		return
	}
	for platform, res := range results {
		status := "published"
		if !res.Success {
			status = "failed: " + res.Error
		}
		if err := p.cache.SetPublishStatus(ctx, platform, userID, clipHash, status); err != nil {
			p.log.Debug("could not record publish status", "platform", platform, "error", err)
		}
	}
}

func (p *Pipeline) setStatus(ctx context.Context, runID, status string) {
	if err := p.cache.SetStatus(ctx, runID, status); err != nil {
		p.log.Debug("could not publish status", "error", err)
	}
}

func newRunID() string {
	id, err := gonanoid.New(12)
	if err != nil {
		return fmt.Sprintf("run-%d", time.Now().UnixNano())
	}
	return id
}

// WriteResults persists the run record as indented JSON.
func WriteResults(path string, result *models.RunResult) error {
	data, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal results: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write results: %w", err)
	}
	return nil
}

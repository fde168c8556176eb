// Package queue defines the asynq task that runs a pipeline job out of
// process, plus the client used to enqueue it.
package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/hibiken/asynq"

	"github.com/maheshrc27/clippost/internal/pipeline"
	"github.com/maheshrc27/clippost/internal/segmenter"
	"github.com/maheshrc27/clippost/internal/textgen"
)

const TypeProcessVideo = "pipeline:process_video"

// ProcessVideoPayload is the serialized job body. It mirrors the command
// line options so a queued run and a local run behave identically.
type ProcessVideoPayload struct {
	UserID            string   `json:"user_id"`
	VideoPath         string   `json:"video_path,omitempty"`
	VideoURL          string   `json:"video_url,omitempty"`
	OutputDir         string   `json:"output_dir"`
	Description       string   `json:"description,omitempty"`
	MaxClipDuration   float64  `json:"max_clip_duration"`
	MinClipDuration   float64  `json:"min_clip_duration"`
	SplitOnSilence    bool     `json:"split_on_silence"`
	SilenceThreshold  float64  `json:"silence_threshold"`
	SilenceDuration   float64  `json:"silence_duration"`
	CaptionVariations int      `json:"caption_variations"`
	HashtagCount      int      `json:"hashtag_count"`
	Platforms         []string `json:"platforms"`
	Post              bool     `json:"post"`
}

// NewProcessVideoTask wraps a payload for enqueueing.
func NewProcessVideoTask(payload ProcessVideoPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal task payload: %w", err)
	}
	return asynq.NewTask(TypeProcessVideo, data,
		asynq.MaxRetry(2),
		asynq.Timeout(2*time.Hour),
	), nil
}

// Client enqueues pipeline jobs onto Redis.
type Client struct {
	inner *asynq.Client
}

func NewClient(redisAddr string) *Client {
	return &Client{inner: asynq.NewClient(asynq.RedisClientOpt{Addr: redisAddr})}
}

func (c *Client) EnqueueProcessVideo(ctx context.Context, payload ProcessVideoPayload) (string, error) {
	task, err := NewProcessVideoTask(payload)
	if err != nil {
		return "", err
	}

	info, err := c.inner.EnqueueContext(ctx, task)
	if err != nil {
		return "", fmt.Errorf("enqueue task: %w", err)
	}
	return info.ID, nil
}

func (c *Client) Close() error {
	return c.inner.Close()
}

// Handler executes queued pipeline jobs inside the worker.
type Handler struct {
	pipe *pipeline.Pipeline
	log  *slog.Logger
}

func NewHandler(pipe *pipeline.Pipeline, log *slog.Logger) *Handler {
	return &Handler{pipe: pipe, log: log}
}

// HandleProcessVideo runs one job. A failed run returns an error so asynq
// retries it; results are written next to the job's output directory either
// way.
func (h *Handler) HandleProcessVideo(ctx context.Context, task *asynq.Task) error {
	var payload ProcessVideoPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return fmt.Errorf("unmarshal payload: %v: %w", err, asynq.SkipRetry)
	}

	opts := payload.Options()
	h.log.Info("running queued pipeline job",
		"user", payload.UserID,
		"video", firstNonEmpty(payload.VideoPath, payload.VideoURL),
		"output", payload.OutputDir)

	result := h.pipe.Run(ctx, opts)

	resultsPath := filepath.Join(opts.OutputDir, "results.json")
	if err := pipeline.WriteResults(resultsPath, result); err != nil {
		h.log.Error("could not write results", "path", resultsPath, "error", err)
	}

	if !result.Success {
		return fmt.Errorf("pipeline run failed: %s", result.Error)
	}
	return nil
}

// Options converts the payload into pipeline options, applying defaults for
// zero-valued knobs.
func (p ProcessVideoPayload) Options() pipeline.Options {
	seg := segmenter.DefaultOptions()
	if p.MaxClipDuration > 0 {
		seg.MaxClipDuration = p.MaxClipDuration
	}
	if p.MinClipDuration > 0 {
		seg.MinClipDuration = p.MinClipDuration
	}
	seg.SplitOnSilence = p.SplitOnSilence
	if p.SilenceThreshold > 0 {
		seg.SilenceThreshold = p.SilenceThreshold
	}
	if p.SilenceDuration > 0 {
		seg.SilenceDuration = p.SilenceDuration
	}

	gen := textgen.DefaultOptions()
	if p.CaptionVariations > 0 {
		gen.Variations = p.CaptionVariations
	}
	if p.HashtagCount > 0 {
		gen.HashtagCount = p.HashtagCount
	}
	if len(p.Platforms) > 0 {
		gen.Platforms = p.Platforms
	}

	return pipeline.Options{
		VideoPath:   p.VideoPath,
		VideoURL:    p.VideoURL,
		OutputDir:   p.OutputDir,
		UserID:      p.UserID,
		Description: p.Description,
		Segmenter:   seg,
		TextGen:     gen,
		Post:        p.Post,
		Platforms:   gen.Platforms,
	}
}

func firstNonEmpty(a, b string) string {
	if a != "" {
		return a
	}
	return b
}

// Package textgen produces captions and hashtags for clips. It tries a chain
// of model providers and degrades to deterministic placeholder text, so the
// stage never fails a pipeline run.
package textgen

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	config "github.com/maheshrc27/clippost/configs"
	"github.com/maheshrc27/clippost/internal/models"
)

// Options control one generation call.
type Options struct {
	Variations   int
	HashtagCount int
	ToneStyle    string
	Platforms    []string
}

// DefaultOptions matches the pipeline's command-line defaults.
func DefaultOptions() Options {
	return Options{
		Variations:   3,
		HashtagCount: 10,
		ToneStyle:    "engaging",
		Platforms:    []string{"tiktok", "instagram", "youtube"},
	}
}

type Generator interface {
	Generate(ctx context.Context, clipContext string, opts Options) *models.GeneratedText
}

type generator struct {
	providers []Provider
	log       *slog.Logger
}

// New builds a generator whose provider chain starts with the configured
// provider and falls back through the others. Providers without an API key
// are left out of the chain entirely.
func New(cfg *config.Config, log *slog.Logger) Generator {
	available := map[string]Provider{}
	if cfg.OpenAIKey != "" {
		available["openai"] = NewOpenAI(cfg.OpenAIKey)
	}
	if cfg.GoogleAIKey != "" {
		available["gemini"] = NewGemini(cfg.GoogleAIKey)
	}
	if cfg.DeepseekKey != "" {
		available["deepseek"] = NewDeepseek(cfg.DeepseekKey)
	}

	var chain []Provider
	for _, name := range []string{cfg.AIProvider, "openai", "gemini", "deepseek"} {
		p, ok := available[name]
		if !ok {
			continue
		}
		delete(available, name)
		chain = append(chain, p)
	}

	return &generator{providers: chain, log: log}
}

// NewWithProviders is the constructor used by tests.
func NewWithProviders(providers []Provider, log *slog.Logger) Generator {
	return &generator{providers: providers, log: log}
}

// Generate returns captions, hashtags and per-platform variants for a clip.
// Provider failures are logged and absorbed; the result is always usable.
func (g *generator) Generate(ctx context.Context, clipContext string, opts Options) *models.GeneratedText {
	if opts.Variations < 1 {
		opts.Variations = 1
	}
	if opts.HashtagCount < 1 {
		opts.HashtagCount = 1
	}

	captions := g.captions(ctx, clipContext, opts)
	hashtags := g.hashtags(ctx, clipContext, opts.HashtagCount)

	platforms := make(map[string]models.PlatformText, len(opts.Platforms))
	for _, platform := range opts.Platforms {
		platforms[platform] = adaptForPlatform(platform, captions[0], hashtags)
	}

	return &models.GeneratedText{
		Captions:  captions,
		Hashtags:  hashtags,
		Platforms: platforms,
		ToneStyle: opts.ToneStyle,
	}
}

// captions asks the provider chain for variations, dedupes near-identical
// ones and refills to the requested count. A provider success that dedupe
// thinned out is padded with numbered alternatives of the survivor; a total
// provider failure falls back to deterministic placeholders.
func (g *generator) captions(ctx context.Context, clipContext string, opts Options) []string {
	raw, err := g.complete(ctx, captionPrompt(clipContext, opts.ToneStyle, opts.Variations))
	if err != nil {
		g.log.Warn("caption generation fell back to placeholders", "error", err)
		return placeholderCaptions(clipContext, opts.Variations)
	}

	captions := dedupeCaptions(parseCaptionLines(raw))
	if len(captions) == 0 {
		return placeholderCaptions(clipContext, opts.Variations)
	}

	for k := len(captions); k < opts.Variations; k++ {
		captions = append(captions, fmt.Sprintf("Alternative %d: %s", k+1, captions[0]))
	}
	return captions[:opts.Variations]
}

func (g *generator) hashtags(ctx context.Context, clipContext string, count int) []string {
	var raw []string
	resp, err := g.complete(ctx, hashtagPrompt(clipContext, count))
	if err != nil {
		g.log.Warn("hashtag generation fell back to placeholders", "error", err)
	} else {
		raw = parseHashtags(resp)
	}
	return NormalizeHashtags(raw, count)
}

// complete tries each provider in order and returns the first success.
func (g *generator) complete(ctx context.Context, prompt string) (string, error) {
	if len(g.providers) == 0 {
		return "", fmt.Errorf("no text providers configured")
	}

	var lastErr error
	for _, p := range g.providers {
		resp, err := p.Complete(ctx, prompt)
		if err != nil {
			g.log.Warn("provider failed, trying next", "provider", p.Name(), "error", err)
			lastErr = err
			continue
		}
		return resp, nil
	}
	return "", fmt.Errorf("all providers failed: %w", lastErr)
}

type platformLimits struct {
	captionRunes int
	maxHashtags  int
}

var limitsByPlatform = map[string]platformLimits{
	"tiktok":    {captionRunes: 150, maxHashtags: 5},
	"instagram": {captionRunes: 2200, maxHashtags: 30},
	"youtube":   {captionRunes: 100, maxHashtags: 15},
}

// adaptForPlatform trims the caption and hashtag list to a platform's limits.
// Unknown platforms pass through untouched.
func adaptForPlatform(platform, caption string, hashtags []string) models.PlatformText {
	limits, ok := limitsByPlatform[strings.ToLower(platform)]
	if !ok {
		return models.PlatformText{Caption: caption, Hashtags: hashtags}
	}

	runes := []rune(caption)
	if len(runes) > limits.captionRunes {
		caption = string(runes[:limits.captionRunes-3]) + "..."
	}

	if len(hashtags) > limits.maxHashtags {
		hashtags = hashtags[:limits.maxHashtags]
	}
	return models.PlatformText{Caption: caption, Hashtags: hashtags}
}

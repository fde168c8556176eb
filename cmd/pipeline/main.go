package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/joho/godotenv"

	config "github.com/maheshrc27/clippost/configs"
	"github.com/maheshrc27/clippost/internal/analyzer"
	"github.com/maheshrc27/clippost/internal/cache"
	"github.com/maheshrc27/clippost/internal/logging"
	"github.com/maheshrc27/clippost/internal/pipeline"
	"github.com/maheshrc27/clippost/internal/publisher"
	"github.com/maheshrc27/clippost/internal/queue"
	"github.com/maheshrc27/clippost/internal/segmenter"
	"github.com/maheshrc27/clippost/internal/storage"
	"github.com/maheshrc27/clippost/internal/textgen"
	"github.com/maheshrc27/clippost/internal/vault"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("Warning: Failed to load environment variables", err)
	}

	var (
		videoPath         = flag.String("video", "", "path to a local source video")
		videoURL          = flag.String("url", "", "url of a source video to download")
		outputDir         = flag.String("output", "output", "directory for clips and results")
		userID            = flag.String("user", "default", "user whose credentials are used for posting")
		description       = flag.String("description", "", "your own description of the video, used in caption prompts")
		maxDuration       = flag.Float64("max-duration", 60, "maximum clip length in seconds")
		minDuration       = flag.Float64("min-duration", 5, "minimum clip length in seconds")
		splitOnSilence    = flag.Bool("split-on-silence", false, "cut at silences instead of even spacing")
		silenceThreshold  = flag.Float64("silence-threshold", 0.03, "normalized amplitude below which audio counts as silent")
		silenceDuration   = flag.Float64("silence-duration", 0.5, "minimum silence length in seconds")
		captionVariations = flag.Int("caption-variations", 3, "caption variations to generate per clip")
		hashtagCount      = flag.Int("hashtags", 10, "hashtags to generate per clip")
		platformsFlag     = flag.String("platforms", "tiktok,instagram,youtube", "comma-separated target platforms")
		post              = flag.Bool("post", false, "publish clips after processing")
		enqueue           = flag.Bool("queue", false, "enqueue the job for the worker instead of running locally")
		logLevel          = flag.String("log-level", "info", "log level: debug, info, warn, error")
	)
	flag.Parse()

	if (*videoPath == "") == (*videoURL == "") {
		fmt.Fprintln(os.Stderr, "exactly one of --video or --url is required")
		flag.Usage()
		os.Exit(2)
	}

	cfg := config.LoadConfig()
	logger := logging.New(*logLevel)

	platforms := splitPlatforms(*platformsFlag)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if *enqueue {
		client := queue.NewClient(cfg.RedisURI)
		defer client.Close()

		id, err := client.EnqueueProcessVideo(ctx, queue.ProcessVideoPayload{
			UserID:            *userID,
			VideoPath:         *videoPath,
			VideoURL:          *videoURL,
			OutputDir:         *outputDir,
			Description:       *description,
			MaxClipDuration:   *maxDuration,
			MinClipDuration:   *minDuration,
			SplitOnSilence:    *splitOnSilence,
			SilenceThreshold:  *silenceThreshold,
			SilenceDuration:   *silenceDuration,
			CaptionVariations: *captionVariations,
			HashtagCount:      *hashtagCount,
			Platforms:         platforms,
			Post:              *post,
		})
		if err != nil {
			log.Fatalf("Failed to enqueue job: %v", err)
		}
		logger.Info("job enqueued", "task_id", id)
		return
	}

	mediaCache := openCache(ctx, cfg, logging.WithComponent(logger, "cache"))

	var pub *publisher.Publisher
	if *post {
		v, err := vault.Open(cfg.DataDir, cfg.SecretKey)
		if err != nil {
			log.Fatalf("Failed to open credential vault: %v", err)
		}

		deps := publisher.Deps{Config: cfg, Log: logging.WithComponent(logger, "publisher")}
		if r2, err := storage.NewR2Storage(cfg); err != nil {
			logger.Warn("object storage unavailable, instagram publishing will fail", "error", err)
		} else {
			deps.Storage = r2
		}
		pub = publisher.New(deps, v)
	}

	var vision analyzer.Describer
	if cfg.OpenAIKey != "" {
		vision = textgen.NewVisionDescriber(cfg.OpenAIKey)
	}

	pipe := pipeline.New(
		mediaCache,
		analyzer.New(cfg.FaceCascadePath, vision, logging.WithComponent(logger, "analyzer")),
		textgen.New(cfg, logging.WithComponent(logger, "textgen")),
		pub,
		logging.WithComponent(logger, "pipeline"),
	)

	result := pipe.Run(ctx, pipeline.Options{
		VideoPath:   *videoPath,
		VideoURL:    *videoURL,
		OutputDir:   *outputDir,
		UserID:      *userID,
		Description: *description,
		Segmenter: segmenter.Options{
			MaxClipDuration:  *maxDuration,
			MinClipDuration:  *minDuration,
			SplitOnSilence:   *splitOnSilence,
			SilenceThreshold: *silenceThreshold,
			SilenceDuration:  *silenceDuration,
		},
		TextGen: textgen.Options{
			Variations:   *captionVariations,
			HashtagCount: *hashtagCount,
			ToneStyle:    "engaging",
			Platforms:    platforms,
		},
		Post:      *post,
		Platforms: platforms,
	})

	resultsPath := filepath.Join(*outputDir, "results.json")
	if err := pipeline.WriteResults(resultsPath, result); err != nil {
		log.Fatalf("Failed to write results: %v", err)
	}
	logger.Info("results written", "path", resultsPath, "clips", len(result.Clips))

	if !result.Success {
		os.Exit(1)
	}
}

// openCache prefers Redis and falls back to an in-process cache so the CLI
// works on machines without one.
func openCache(ctx context.Context, cfg *config.Config, logger *slog.Logger) *cache.MediaCache {
	backend, err := cache.NewRedisBackend(ctx, cfg.RedisURI)
	if err != nil {
		logger.Warn("redis unavailable, using in-memory cache", "addr", cfg.RedisURI, "error", err)
		return cache.New(cache.NewMemoryBackend(), logger)
	}
	return cache.New(backend, logger)
}

func splitPlatforms(raw string) []string {
	var out []string
	for _, p := range strings.Split(raw, ",") {
		if p = strings.TrimSpace(strings.ToLower(p)); p != "" {
			out = append(out, p)
		}
	}
	return out
}

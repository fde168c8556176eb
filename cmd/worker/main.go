package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/hibiken/asynq"
	"github.com/joho/godotenv"
	"github.com/robfig/cron"

	config "github.com/maheshrc27/clippost/configs"
	"github.com/maheshrc27/clippost/internal/analyzer"
	"github.com/maheshrc27/clippost/internal/cache"
	"github.com/maheshrc27/clippost/internal/jobs"
	"github.com/maheshrc27/clippost/internal/logging"
	"github.com/maheshrc27/clippost/internal/oauth"
	"github.com/maheshrc27/clippost/internal/pipeline"
	"github.com/maheshrc27/clippost/internal/publisher"
	"github.com/maheshrc27/clippost/internal/queue"
	"github.com/maheshrc27/clippost/internal/storage"
	"github.com/maheshrc27/clippost/internal/textgen"
	"github.com/maheshrc27/clippost/internal/vault"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("Warning: Failed to load environment variables", err)
	}

	cfg := config.LoadConfig()
	logger := logging.New(os.Getenv("LOG_LEVEL"))

	backend, err := cache.NewRedisBackend(context.Background(), cfg.RedisURI)
	if err != nil {
		log.Fatalf("Redis is unreachable: %v", err)
	}
	defer backend.Close()
	mediaCache := cache.New(backend, logging.WithComponent(logger, "cache"))

	credVault, err := vault.Open(cfg.DataDir, cfg.SecretKey)
	if err != nil {
		log.Fatalf("Failed to open credential vault: %v", err)
	}

	deps := publisher.Deps{Config: cfg, Log: logging.WithComponent(logger, "publisher")}
	if r2, err := storage.NewR2Storage(cfg); err != nil {
		logger.Warn("object storage unavailable, instagram publishing will fail", "error", err)
	} else {
		deps.Storage = r2
	}
	pub := publisher.New(deps, credVault)

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

	// cron jobs
	exchanger := oauth.New(cfg)
	refreshJob := jobs.NewTokenRefreshJob(credVault, exchanger, logging.WithComponent(logger, "jobs"))

	c := cron.New()
	c.AddFunc("@every 00h10m00s", refreshJob.Run)
	c.AddFunc("@every 01h00m00s", func() {
		if _, err := mediaCache.Sweep(context.Background()); err != nil {
			logger.Error("cache sweep failed", "error", err)
		}
	})
	c.Start()
	defer c.Stop()

	handler := queue.NewHandler(pipe, logging.WithComponent(logger, "queue"))

	server := asynq.NewServer(asynq.RedisClientOpt{Addr: cfg.RedisURI}, asynq.Config{
		Concurrency: 2,
	})

	mux := asynq.NewServeMux()
	mux.HandleFunc(queue.TypeProcessVideo, handler.HandleProcessVideo)

	go func() {
		log.Println("Starting the Asynq server...")
		if err := server.Run(mux); err != nil {
			log.Fatalf("Could not start Asynq server: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down worker...")
	server.Shutdown()
	log.Println("Worker shutdown complete.")
}

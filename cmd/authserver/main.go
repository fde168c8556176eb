package main

import (
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/joho/godotenv"

	config "github.com/maheshrc27/clippost/configs"
	"github.com/maheshrc27/clippost/internal/api/handlers"
	"github.com/maheshrc27/clippost/internal/logging"
	"github.com/maheshrc27/clippost/internal/oauth"
	"github.com/maheshrc27/clippost/internal/vault"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("Warning: Failed to load environment variables", err)
	}

	cfg := config.LoadConfig()
	slogger := logging.New(os.Getenv("LOG_LEVEL"))

	if cfg.SecretKey == "" {
		log.Fatal("SECRET_KEY is required to sign oauth state")
	}

	credVault, err := vault.Open(cfg.DataDir, cfg.SecretKey)
	if err != nil {
		log.Fatalf("Failed to open credential vault: %v", err)
	}

	app := fiber.New(fiber.Config{
		ReadTimeout:  time.Minute,
		WriteTimeout: time.Minute,
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			log.Printf("Error: %v", err)
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
		},
	})

	app.Use(logger.New())
	app.Use(cors.New(cors.Config{
		AllowOriginsFunc: func(origin string) bool {
			return true
		},
		AllowMethods:     "GET,POST,OPTIONS",
		AllowHeaders:     "Origin, Content-Type, Accept, Authorization",
		AllowCredentials: true,
		MaxAge:           3600,
	}))

	auth := handlers.NewAuthHandler(cfg, oauth.New(cfg), credVault, slogger)
	app.Get("/auth/:platform", auth.StartAuth)
	app.Get("/auth/:platform/callback", auth.Callback)
	app.Get("/accounts", auth.ListAccounts)
	app.Post("/accounts/remove", auth.RemoveAccount)

	go func() {
		if err := app.Listen(":3000"); err != nil {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()
	log.Println("Auth server is running on http://localhost:3000")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down server...")
	if err := app.Shutdown(); err != nil {
		log.Fatalf("Failed to shut down server: %v", err)
	}
	log.Println("Server shutdown complete.")
}

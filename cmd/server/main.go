package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/sponge-dev/AIStoryBot/internal/config"
	"github.com/sponge-dev/AIStoryBot/internal/ollama"
	"github.com/sponge-dev/AIStoryBot/internal/repository"
	"github.com/sponge-dev/AIStoryBot/internal/services"
	"github.com/sponge-dev/AIStoryBot/internal/store"
	"github.com/sponge-dev/AIStoryBot/pkg/server"
)

func main() {
	var envFile = flag.String("env", "", "Optional .env file to load")
	flag.Parse()

	// Setup structured logging
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	// Load configuration
	cfg, err := config.Load(*envFile)
	if err != nil {
		slog.Error("Failed to load config", "error", err)
		os.Exit(1)
	}

	// Initialize database
	_ = os.MkdirAll(filepath.Dir(cfg.DBPath), 0755)
	db, err := store.Open(cfg.DBPath)
	if err != nil {
		slog.Error("Failed to open database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	db.Event("info", "startup", "Server starting", map[string]interface{}{
		"http_addr":  cfg.HTTPAddr,
		"ollama_url": cfg.OllamaURL,
		"output_dir": cfg.OutputDir,
		"db_path":    cfg.DBPath,
	})

	// Story archive directory
	if err := os.MkdirAll(cfg.OutputDir, 0755); err != nil {
		slog.Error("Failed to create output directory", "dir", cfg.OutputDir, "error", err)
		os.Exit(1)
	}

	// Initialize repository
	repo := repository.NewSQLiteRepository(db, cfg.OutputDir)

	// Initialize services
	ollamaClient := ollama.NewClient(cfg.OllamaURL, cfg.GenerateTimeout)
	generationService := services.NewGenerationService(ollamaClient, repo, cfg)
	statusService := services.NewStatusService(ollamaClient)
	speechService := services.NewSpeechService(cfg)

	db.Event("info", "services.init", "Initializing services", map[string]interface{}{
		"http_addr":     cfg.HTTPAddr,
		"nats_url":      cfg.NatsURL,
		"default_model": cfg.DefaultModel,
		"tts_enabled":   speechService.Configured(),
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Queue transport is optional: without NATS_URL the service runs as a
	// plain web front-end.
	if cfg.NatsURL != "" {
		natsService, err := services.NewNATSService(cfg, generationService, statusService)
		if err != nil {
			db.Event("error", "nats.failed", "NATS service initialization failed", map[string]interface{}{
				"nats_url": cfg.NatsURL,
				"error":    err.Error(),
			})
			slog.Error("Failed to create NATS service", "error", err)
			os.Exit(1)
		}

		go func() {
			if err := natsService.Start(ctx); err != nil {
				db.Event("error", "nats.failed", "NATS service failed", map[string]interface{}{
					"error": err.Error(),
				})
				slog.Error("NATS service failed", "error", err)
			}
		}()
	}

	// Start HTTP server
	httpServer := server.NewServer(cfg, generationService, statusService, speechService, repo)

	db.Event("info", "server.ready", "Server ready to accept requests", map[string]interface{}{
		"http_addr": cfg.HTTPAddr,
		"nats_url":  cfg.NatsURL,
	})

	go func() {
		if err := httpServer.Start(ctx); err != nil {
			db.Event("error", "http.failed", "HTTP server failed", map[string]interface{}{
				"error": err.Error(),
			})
			slog.Error("HTTP server failed", "error", err)
		}
	}()

	// Graceful shutdown
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig

	db.Event("info", "shutdown", "Server shutting down", nil)
	slog.Info("Shutting down server")
}

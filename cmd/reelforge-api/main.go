package main

import (
	"context"
	"database/sql"
	"flag"
	"log"
	"log/slog"
	"os"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"reelforge/internal/config"
	"reelforge/internal/content"
	server "reelforge/internal/http"
	"reelforge/internal/image"
	"reelforge/internal/migrate"
	"reelforge/internal/pipeline"
	"reelforge/internal/queue"
	"reelforge/internal/speech"
	"reelforge/internal/store"
	"reelforge/internal/video"
)

func main() {
	configPath := flag.String("config", "config/config.yaml", "path to config file")
	role := flag.String("role", "all", "process role: api|worker|all")
	flag.Parse()

	cfg := config.Load(*configPath)

	// Run migrations on a short-lived connection
	if err := migrate.Run(cfg.Database.DSN); err != nil {
		log.Fatalf("migrations failed: %v", err)
	}

	// Create a shared *sql.DB with pooling for the Store
	db, err := sql.Open("pgx", cfg.Database.DSN)
	if err != nil {
		log.Fatalf("open db failed: %v", err)
	}
	// Basic pool settings; adjust as needed
	db.SetMaxOpenConns(20)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(30 * time.Minute)

	st := store.New(db)

	// Ensure initial admin API key if configured
	if cfg.Auth.Enabled && cfg.Auth.InitialAdminKey != "" {
		if _, err := st.EnsureAdminAPIKey(context.Background(), cfg.Auth.InitialAdminKey, "initial-admin"); err != nil {
			log.Fatalf("ensure admin api key failed: %v", err)
		}
	}

	// Set up logger
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{}))

	q := queue.New(db, cfg.Worker.MaxTaskDeliveries)
	coord := pipeline.NewCoordinator(st, q, logger)

	rootCtx := context.Background()

	startWorker := func() {
		gen, provider, modelName, err := content.NewFromConfig(cfg)
		if err != nil {
			log.Fatalf("content provider setup failed: %v", err)
		}
		logger.Info("content provider ready", "provider", provider, "model", modelName)

		handlers := &pipeline.Handlers{
			Store:         st,
			Coord:         coord,
			Log:           logger,
			Content:       gen,
			Speech:        speech.New(cfg),
			Image:         image.New(cfg),
			Video:         video.New(cfg),
			StoragePath:   cfg.Storage.Path,
			AudioAttempts: cfg.TTS.MaxRetries,
			AudioDelay:    time.Duration(cfg.TTS.RetryDelayMs) * time.Millisecond,
			ImageAttempts: cfg.Image.MaxRetries,
			ImageDelay:    time.Duration(cfg.Image.RetryDelayMs) * time.Millisecond,
		}
		pipeline.StartWorker(rootCtx, cfg, q, handlers, logger)
	}

	switch *role {
	case "api":
		// API-only: do not start the pipeline worker.
		s := server.NewServer(cfg, st, coord, logger)
		if err := s.Listen(); err != nil {
			log.Fatalf("server failed: %v", err)
		}
	case "worker":
		// Worker-only: start the pipeline worker and block.
		startWorker()
		select {}
	case "all":
		// Default: run both API and worker in one process.
		startWorker()
		s := server.NewServer(cfg, st, coord, logger)
		if err := s.Listen(); err != nil {
			log.Fatalf("server failed: %v", err)
		}
	default:
		log.Fatalf("invalid role: %s (expected api|worker|all)", *role)
	}
}

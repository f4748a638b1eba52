// Package main implements the askdocs API server: account registration and
// login, PDF upload with synchronous indexing, and retrieval-augmented chat
// over the uploaded documents.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/askdocs/askdocs-backend/engine/ingest"
	"github.com/askdocs/askdocs-backend/engine/rag"
	"github.com/askdocs/askdocs-backend/engine/semantic"
	"github.com/askdocs/askdocs-backend/engine/store"
	"github.com/askdocs/askdocs-backend/pkg/auth"
	"github.com/askdocs/askdocs-backend/pkg/config"
	"github.com/askdocs/askdocs-backend/pkg/groq"
	"github.com/askdocs/askdocs-backend/pkg/metrics"
	"github.com/askdocs/askdocs-backend/pkg/ollama"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	cfg, err := config.Load()
	if err != nil {
		logger.Error("config load failed", "err", err)
		os.Exit(1)
	}

	if err := run(cfg, logger); err != nil {
		logger.Error("server exited with error", "err", err)
		os.Exit(1)
	}
}

func run(cfg config.Config, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// --- MongoDB ---
	db, err := store.New(ctx, cfg.MongoURI, cfg.MongoDB, logger)
	if err != nil {
		return fmt.Errorf("mongo connect: %w", err)
	}
	defer db.Close(context.Background())
	if err := db.EnsureIndexes(ctx); err != nil {
		return fmt.Errorf("mongo indexes: %w", err)
	}

	// --- Qdrant ---
	vectorStore, err := semantic.New(cfg.QdrantAddr, cfg.QdrantCollection)
	if err != nil {
		return fmt.Errorf("qdrant connect: %w", err)
	}
	defer vectorStore.Close()
	// Dimension mismatch against an existing collection is fatal here, before
	// any request is served.
	if err := vectorStore.EnsureCollection(ctx, cfg.EmbeddingDims); err != nil {
		return fmt.Errorf("qdrant collection: %w", err)
	}

	// --- Model clients ---
	embedder := ollama.NewEmbedClient(cfg.OllamaURL, cfg.EmbedModel)
	generator := groq.New(groq.DefaultBaseURL, cfg.GroqAPIKey, groq.Options{
		Model:       cfg.GroqModel,
		Temperature: cfg.GroqTemperature,
	})

	// --- Services ---
	registry := metrics.New()

	ragSvc := rag.New(embedder, vectorStore, generator, rag.Options{
		TopK:          cfg.TopK,
		SearchTimeout: cfg.SearchTimeout,
		LLMRate:       cfg.LLMRate,
		LLMBurst:      cfg.LLMBurst,
		Metrics:       registry,
	}, logger)

	ingestor := ingest.NewIngestor(ingest.Deps{
		Embedder:  embedder,
		Vectors:   vectorStore,
		ChunkSize: cfg.ChunkSize,
		Overlap:   cfg.ChunkOverlap,
		Metrics:   registry,
		Logger:    logger,
	})

	tokens := auth.NewTokens(cfg.JWTSecret, cfg.TokenTTL)

	app := &app{
		store:   db,
		rag:     ragSvc,
		ingest:  ingestor,
		tokens:  tokens,
		cfg:     cfg,
		metrics: registry,
		logger:  logger,
	}

	srv := &http.Server{
		Addr:         cfg.HTTPAddr,
		Handler:      app.router(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("api server starting", "addr", cfg.HTTPAddr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && err != http.ErrServerClosed {
			return err
		}
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	}

	shutCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	return srv.Shutdown(shutCtx)
}

// Command ingest runs the background ingestion worker: it consumes document
// jobs from NATS and indexes them, and optionally watches a drop folder where
// PDFs copied in are extracted and queued as jobs.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/nats-io/nats.go"

	"github.com/askdocs/askdocs-backend/engine/domain"
	"github.com/askdocs/askdocs-backend/engine/ingest"
	"github.com/askdocs/askdocs-backend/engine/semantic"
	"github.com/askdocs/askdocs-backend/pkg/config"
	"github.com/askdocs/askdocs-backend/pkg/metrics"
	"github.com/askdocs/askdocs-backend/pkg/natsutil"
	"github.com/askdocs/askdocs-backend/pkg/ollama"
	"github.com/askdocs/askdocs-backend/pkg/pdfx"
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
		logger.Error("worker exited with error", "err", err)
		os.Exit(1)
	}
}

func run(cfg config.Config, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	registry := metrics.New()

	// --- Qdrant ---
	vectorStore, err := semantic.New(cfg.QdrantAddr, cfg.QdrantCollection)
	if err != nil {
		return fmt.Errorf("qdrant connect: %w", err)
	}
	defer vectorStore.Close()
	if err := vectorStore.EnsureCollection(ctx, cfg.EmbeddingDims); err != nil {
		return fmt.Errorf("qdrant collection: %w", err)
	}
	logger.Info("connected to qdrant", "collection", cfg.QdrantCollection, "dims", cfg.EmbeddingDims)

	// --- Ollama ---
	embedder := ollama.NewEmbedClient(cfg.OllamaURL, cfg.EmbedModel)
	logger.Info("using ollama embeddings", "model", cfg.EmbedModel)

	ingestor := ingest.NewIngestor(ingest.Deps{
		Embedder:  embedder,
		Vectors:   vectorStore,
		ChunkSize: cfg.ChunkSize,
		Overlap:   cfg.ChunkOverlap,
		Metrics:   registry,
		Logger:    logger,
	})

	// --- NATS consumer ---
	nc, err := nats.Connect(cfg.NATSURL, nats.Name("askdocs-ingest"))
	if err != nil {
		return fmt.Errorf("nats connect: %w", err)
	}
	defer nc.Drain()

	sub, err := ingest.StartConsumer(nc, ingestor, logger)
	if err != nil {
		return fmt.Errorf("start consumer: %w", err)
	}
	defer sub.Unsubscribe()
	logger.Info("consuming ingest jobs", "subject", ingest.IngestSubject)

	// --- Drop folder watcher ---
	if cfg.WatchDir != "" {
		watcher, err := NewWatcher(WatcherDeps{
			Dir:     cfg.WatchDir,
			Extract: pdfx.ExtractFile,
			Publish: func(ctx context.Context, doc domain.Document) error {
				return natsutil.Publish(ctx, nc, ingest.IngestSubject, doc)
			},
			Metrics: registry,
			Logger:  logger,
		})
		if err != nil {
			return fmt.Errorf("watch %s: %w", cfg.WatchDir, err)
		}
		defer watcher.Close()
		go watcher.Run(ctx)
		logger.Info("watching drop folder", "dir", cfg.WatchDir)
	}

	<-ctx.Done()
	logger.Info("shutdown signal received")
	return nil
}

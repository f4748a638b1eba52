// Package ingest turns extracted document text into indexed chunk embeddings.
// The pipeline runs validation, chunking, embedding, and vector-store writes
// as composed stages; it is invoked synchronously on upload and asynchronously
// via a NATS consumer for bulk ingestion.
package ingest

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"

	"github.com/askdocs/askdocs-backend/engine/domain"
	"github.com/askdocs/askdocs-backend/engine/semantic"
	"github.com/askdocs/askdocs-backend/pkg/fn"
	"github.com/askdocs/askdocs-backend/pkg/metrics"
)

const (
	// IngestSubject is the NATS subject for documents awaiting ingestion.
	IngestSubject = "askdocs.ingest"
	// DLQSubject receives documents that failed MaxRetries times.
	DLQSubject = "askdocs.ingest.dlq"
	// MaxRetries before a document goes to the DLQ.
	MaxRetries = 3
	// EmbedBatchSize caps texts per embedding request.
	EmbedBatchSize = 64
	// EmbedWorkers bounds concurrent embedding batches for one document.
	EmbedWorkers = 2
)

// Embedder produces one fixed-dimensionality vector per input text.
// The same embedder must serve an index for its whole lifetime.
type Embedder interface {
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
}

// VectorWriter persists chunk embeddings.
type VectorWriter interface {
	Upsert(ctx context.Context, records []semantic.VectorRecord) error
}

// Deps holds the external dependencies for the ingestion pipeline.
type Deps struct {
	Embedder  Embedder
	Vectors   VectorWriter
	ChunkSize int
	Overlap   int
	Metrics   *metrics.Registry
	Logger    *slog.Logger
}

// Validate rejects documents with no extractable text before any work is done.
var Validate fn.Stage[domain.Document, domain.Document] = func(_ context.Context, doc domain.Document) fn.Result[domain.Document] {
	if err := domain.ValidateDocument(doc); err != nil {
		return fn.Err[domain.Document](err)
	}
	return fn.Ok(doc)
}

// NewChunk returns the stage that splits a document into overlapping chunks.
func NewChunk(chunkSize, overlap int) fn.Stage[domain.Document, ChunkedDoc] {
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}
	if overlap < 0 || overlap >= chunkSize {
		overlap = DefaultOverlap
	}
	return func(_ context.Context, doc domain.Document) fn.Result[ChunkedDoc] {
		pieces, err := Split(doc.Text, chunkSize, overlap)
		if err != nil {
			return fn.Err[ChunkedDoc](fmt.Errorf("ingest: chunk %s: %w", doc.ID, err))
		}
		chunks := make([]domain.Chunk, len(pieces))
		for i, p := range pieces {
			chunks[i] = domain.Chunk{Text: p, Index: i, DocID: doc.ID}
		}
		return fn.Ok(ChunkedDoc{Document: doc, Chunks: chunks})
	}
}

// NewEmbed returns the stage that embeds chunks in batches. Batches run with
// bounded concurrency and transient provider failures are retried.
func NewEmbed(client Embedder) fn.Stage[ChunkedDoc, EmbeddedDoc] {
	embedBatch := fn.RetryStage(fn.DefaultRetry,
		func(ctx context.Context, texts []string) fn.Result[[][]float32] {
			return fn.FromPair(client.EmbedBatch(ctx, texts))
		})

	return func(ctx context.Context, doc ChunkedDoc) fn.Result[EmbeddedDoc] {
		texts := fn.Map(doc.Chunks, func(c domain.Chunk) string { return c.Text })
		batches := fn.Chunk(texts, EmbedBatchSize)

		batched, err := fn.BatchStage(EmbedWorkers, embedBatch)(ctx, batches).Unwrap()
		if err != nil {
			return fn.Err[EmbeddedDoc](fmt.Errorf("ingest: embed %s: %w", doc.ID, err))
		}

		embeddings := make([][]float32, 0, len(doc.Chunks))
		for _, b := range batched {
			embeddings = append(embeddings, b...)
		}
		if len(embeddings) != len(doc.Chunks) {
			return fn.Errf[EmbeddedDoc]("ingest: embed %s: got %d vectors for %d chunks",
				doc.ID, len(embeddings), len(doc.Chunks))
		}
		return fn.Ok(EmbeddedDoc{ChunkedDoc: doc, Embeddings: embeddings})
	}
}

// NewStore returns the stage that writes chunk embeddings into the vector
// store. Every ingestion mints fresh point IDs, so re-ingesting identical
// text yields duplicate entries; dedup belongs to callers that want it.
func NewStore(vectors VectorWriter) fn.Stage[EmbeddedDoc, int] {
	return func(ctx context.Context, doc EmbeddedDoc) fn.Result[int] {
		records := make([]semantic.VectorRecord, len(doc.Chunks))
		for i, chunk := range doc.Chunks {
			records[i] = semantic.VectorRecord{
				ID:         uuid.NewString(),
				Embedding:  doc.Embeddings[i],
				Content:    chunk.Text,
				DocID:      doc.ID,
				Source:     doc.Source,
				ChunkIndex: chunk.Index,
			}
		}
		if err := vectors.Upsert(ctx, records); err != nil {
			return fn.Err[int](fmt.Errorf("ingest: store %s: %w", doc.ID, err))
		}
		return fn.Ok(len(records))
	}
}

// loggedTap returns a pass-through stage that logs entry and duration.
func loggedTap[T any](name string, log *slog.Logger) fn.Stage[T, T] {
	return func(_ context.Context, t T) fn.Result[T] {
		log.Debug("stage.enter", "stage", name)
		start := time.Now()
		defer func() {
			log.Debug("stage.exit", "stage", name, "duration", time.Since(start))
		}()
		return fn.Ok(t)
	}
}

// NewPipeline composes validate → chunk → embed → store, returning the
// number of chunks indexed.
func NewPipeline(deps Deps) fn.Stage[domain.Document, int] {
	log := deps.Logger
	if log == nil {
		log = slog.Default()
	}

	validated := fn.Then(loggedTap[domain.Document]("validate", log), Validate)
	chunked := fn.Then(validated, fn.TracedStage("ingest.chunk", NewChunk(deps.ChunkSize, deps.Overlap)))
	embedded := fn.Then(chunked, fn.TracedStage("ingest.embed", NewEmbed(deps.Embedder)))
	return fn.Then(embedded, fn.TracedStage("ingest.store", NewStore(deps.Vectors)))
}

// Ingestor is the synchronous ingestion entry point used by the upload API.
type Ingestor struct {
	pipeline fn.Stage[domain.Document, int]
	indexed  *metrics.Counter
	logger   *slog.Logger
}

// NewIngestor builds an Ingestor from pipeline dependencies.
func NewIngestor(deps Deps) *Ingestor {
	log := deps.Logger
	if log == nil {
		log = slog.Default()
	}
	reg := deps.Metrics
	if reg == nil {
		reg = metrics.New()
	}
	return &Ingestor{
		pipeline: NewPipeline(deps),
		indexed:  reg.Counter("ingest_chunks_indexed_total", "Chunks written to the vector index"),
		logger:   log,
	}
}

// Ingest runs one document through the pipeline and reports how many chunks
// were indexed. Failures surface to the caller: an upload that cannot be
// indexed must be visible to the uploader, not absorbed.
func (i *Ingestor) Ingest(ctx context.Context, doc domain.Document) (int, error) {
	start := time.Now()
	count, err := i.pipeline(ctx, doc).Unwrap()
	if err != nil {
		i.logger.Error("ingest failed", "doc_id", doc.ID, "err", err)
		return 0, err
	}
	i.indexed.Add(int64(count))
	i.logger.Info("ingest done", "doc_id", doc.ID, "chunks", count, "duration", time.Since(start))
	return count, nil
}

// dlqMessage is published to the DLQ on repeated failure.
type dlqMessage struct {
	Document domain.Document `json:"document"`
	Error    string          `json:"error"`
	Retries  int             `json:"retries"`
}

// StartConsumer subscribes the ingestor to the ingest subject with retry and
// dead-letter support. Transient failures requeue with an incremented retry
// header; documents that keep failing land on the DLQ for inspection.
func StartConsumer(nc *nats.Conn, ing *Ingestor, logger *slog.Logger) (*nats.Subscription, error) {
	if logger == nil {
		logger = slog.Default()
	}

	return nc.Subscribe(IngestSubject, func(msg *nats.Msg) {
		var doc domain.Document
		if err := json.Unmarshal(msg.Data, &doc); err != nil {
			logger.Error("ingest: unmarshal failed", "err", err)
			return
		}

		retries := 0
		if msg.Header != nil {
			if v := msg.Header.Get("X-Retry-Count"); v != "" {
				fmt.Sscanf(v, "%d", &retries)
			}
		}

		count, err := ing.Ingest(context.Background(), doc)
		if err == nil {
			logger.Info("ingest: consumed", "doc_id", doc.ID, "chunks", count)
			return
		}

		retries++
		logger.Error("ingest: pipeline failed", "doc_id", doc.ID, "retry", retries, "err", err)

		if retries >= MaxRetries {
			dlq := dlqMessage{Document: doc, Error: err.Error(), Retries: retries}
			data, _ := json.Marshal(dlq)
			if pubErr := nc.Publish(DLQSubject, data); pubErr != nil {
				logger.Error("ingest: DLQ publish failed", "err", pubErr)
			}
			return
		}

		retryMsg := nats.NewMsg(IngestSubject)
		retryMsg.Data = msg.Data
		retryMsg.Header = nats.Header{}
		retryMsg.Header.Set("X-Retry-Count", fmt.Sprintf("%d", retries))
		if pubErr := nc.PublishMsg(retryMsg); pubErr != nil {
			logger.Error("ingest: retry publish failed", "err", pubErr)
		}
	})
}

package ingest

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/askdocs/askdocs-backend/engine/domain"
	"github.com/askdocs/askdocs-backend/engine/semantic"
	"github.com/askdocs/askdocs-backend/pkg/metrics"
)

// --- fakes ---

type fakeEmbedder struct {
	mu    sync.Mutex
	dims  int
	calls int
	err   error
}

func (f *fakeEmbedder) EmbedBatch(_ context.Context, texts []string) ([][]float32, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	out := make([][]float32, len(texts))
	for i := range texts {
		vec := make([]float32, f.dims)
		vec[0] = float32(len(texts[i]))
		out[i] = vec
	}
	return out, nil
}

type fakeVectors struct {
	mu      sync.Mutex
	records []semantic.VectorRecord
	err     error
}

func (f *fakeVectors) Upsert(_ context.Context, records []semantic.VectorRecord) error {
	if f.err != nil {
		return f.err
	}
	f.mu.Lock()
	f.records = append(f.records, records...)
	f.mu.Unlock()
	return nil
}

func testDoc(text string) domain.Document {
	return domain.Document{ID: "doc-1", Title: "Weather", Source: "weather.pdf", Text: text}
}

// --- tests ---

func TestIngestSmallDocumentOneChunk(t *testing.T) {
	embedder := &fakeEmbedder{dims: 8}
	vectors := &fakeVectors{}
	ing := NewIngestor(Deps{Embedder: embedder, Vectors: vectors, ChunkSize: 1000, Overlap: 200})

	count, err := ing.Ingest(context.Background(), testDoc("The sky is blue. Water is wet."))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected 1 chunk indexed, got %d", count)
	}
	if len(vectors.records) != 1 {
		t.Fatalf("expected 1 record stored, got %d", len(vectors.records))
	}

	rec := vectors.records[0]
	if rec.DocID != "doc-1" || rec.Source != "weather.pdf" {
		t.Errorf("record provenance = %s/%s", rec.DocID, rec.Source)
	}
	if rec.Content != "The sky is blue. Water is wet." {
		t.Errorf("record content = %q", rec.Content)
	}
	if rec.ID == "" {
		t.Error("record should carry a point ID")
	}
}

func TestIngestEmptyDocumentSurfacesError(t *testing.T) {
	ing := NewIngestor(Deps{Embedder: &fakeEmbedder{dims: 4}, Vectors: &fakeVectors{}})

	_, err := ing.Ingest(context.Background(), testDoc("  \n  "))
	if !errors.Is(err, domain.ErrEmptyDocument) {
		t.Fatalf("expected ErrEmptyDocument, got %v", err)
	}
}

func TestIngestLargeDocumentBatchesEmbeddings(t *testing.T) {
	embedder := &fakeEmbedder{dims: 4}
	vectors := &fakeVectors{}
	ing := NewIngestor(Deps{Embedder: embedder, Vectors: vectors, ChunkSize: 100, Overlap: 10})

	text := strings.Repeat("some sentence about documents. ", 600)
	count, err := ing.Ingest(context.Background(), testDoc(text))
	if err != nil {
		t.Fatal(err)
	}
	if count <= EmbedBatchSize {
		t.Fatalf("test setup should produce more than one batch, got %d chunks", count)
	}
	if embedder.calls < 2 {
		t.Errorf("expected multiple embed batches, got %d calls", embedder.calls)
	}
	if len(vectors.records) != count {
		t.Errorf("stored %d records for %d chunks", len(vectors.records), count)
	}
	for i, rec := range vectors.records {
		if rec.ChunkIndex != i {
			t.Fatalf("record %d has chunk index %d", i, rec.ChunkIndex)
		}
	}
}

func TestIngestEmbedderFailurePropagates(t *testing.T) {
	embedder := &fakeEmbedder{dims: 4, err: errors.New("provider down")}
	ing := NewIngestor(Deps{Embedder: embedder, Vectors: &fakeVectors{}})

	_, err := ing.Ingest(context.Background(), testDoc("some text"))
	if err == nil {
		t.Fatal("expected error when embedder fails")
	}
	if !strings.Contains(err.Error(), "provider down") {
		t.Errorf("error should carry cause, got %v", err)
	}
}

func TestIngestStoreFailurePropagates(t *testing.T) {
	vectors := &fakeVectors{err: errors.New("qdrant unreachable")}
	ing := NewIngestor(Deps{Embedder: &fakeEmbedder{dims: 4}, Vectors: vectors})

	_, err := ing.Ingest(context.Background(), testDoc("some text"))
	if err == nil {
		t.Fatal("expected error when vector store fails")
	}
}

func TestIngestCountsIndexedChunks(t *testing.T) {
	reg := metrics.New()
	ing := NewIngestor(Deps{Embedder: &fakeEmbedder{dims: 4}, Vectors: &fakeVectors{}, ChunkSize: 100, Overlap: 10, Metrics: reg})

	text := strings.Repeat("some sentence about documents. ", 20)
	count, err := ing.Ingest(context.Background(), testDoc(text))
	if err != nil {
		t.Fatal(err)
	}

	counter := reg.Counter("ingest_chunks_indexed_total", "")
	if got := counter.Value(); got != int64(count) {
		t.Fatalf("indexed counter = %d, want %d", got, count)
	}

	// A failed run must not move the counter.
	failing := NewIngestor(Deps{Embedder: &fakeEmbedder{dims: 4, err: errors.New("provider down")}, Vectors: &fakeVectors{}, Metrics: reg})
	if _, err := failing.Ingest(context.Background(), testDoc("some text")); err == nil {
		t.Fatal("expected error when embedder fails")
	}
	if got := counter.Value(); got != int64(count) {
		t.Fatalf("counter moved on failure: %d, want %d", got, count)
	}
}

func TestReIngestProducesDuplicateEntries(t *testing.T) {
	embedder := &fakeEmbedder{dims: 4}
	vectors := &fakeVectors{}
	ing := NewIngestor(Deps{Embedder: embedder, Vectors: vectors})

	doc := testDoc("The sky is blue.")
	for i := 0; i < 2; i++ {
		if _, err := ing.Ingest(context.Background(), doc); err != nil {
			t.Fatal(err)
		}
	}
	if len(vectors.records) != 2 {
		t.Fatalf("expected 2 entries after re-ingest, got %d", len(vectors.records))
	}
	if vectors.records[0].ID == vectors.records[1].ID {
		t.Error("re-ingested chunks must get fresh point IDs")
	}
}

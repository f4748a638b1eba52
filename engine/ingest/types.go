package ingest

import "github.com/askdocs/askdocs-backend/engine/domain"

// ChunkedDoc is a document split into embeddable chunks.
type ChunkedDoc struct {
	domain.Document
	Chunks []domain.Chunk
}

// EmbeddedDoc is a chunked document with one embedding per chunk.
// Embeddings[i] belongs to Chunks[i].
type EmbeddedDoc struct {
	ChunkedDoc
	Embeddings [][]float32
}

// Receipt is the ingestion result reported back to the uploader.
type Receipt struct {
	DocID         string `json:"doc_id"`
	ChunksIndexed int    `json:"chunks_indexed"`
}

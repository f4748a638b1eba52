package semantic

// SearchResult is a single vector search hit, ordered by descending
// cosine similarity.
type SearchResult struct {
	ID         string  `json:"id"`
	Score      float32 `json:"score"`
	Content    string  `json:"content"`
	DocID      string  `json:"doc_id"`
	Source     string  `json:"source"`
	ChunkIndex int     `json:"chunk_index"`
}

// VectorRecord is a single chunk embedding to store. Payload carries the
// chunk text and provenance so search hits can be cited without a second
// lookup.
type VectorRecord struct {
	ID         string
	Embedding  []float32
	Content    string
	DocID      string
	Source     string
	ChunkIndex int
}

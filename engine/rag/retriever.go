package rag

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	gocache "github.com/patrickmn/go-cache"

	"github.com/askdocs/askdocs-backend/engine/semantic"
	"github.com/askdocs/askdocs-backend/pkg/metrics"
	"github.com/askdocs/askdocs-backend/pkg/resilience"
)

// Sentinel context strings. Callers detect the no-context case by string
// identity on NoContextSentinel; failure text shares its shape so the
// generation step treats both the same way.
const (
	NoContextSentinel     = "No relevant content found in the uploaded documents."
	unavailableSentinel   = "Document search is temporarily unavailable; no supporting context could be retrieved."
	embeddingFailSentinel = "The question could not be embedded for search; no supporting context could be retrieved."
)

// QueryEmbedder embeds a single query string.
type QueryEmbedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Searcher abstracts vector search over stored chunks.
type Searcher interface {
	Search(ctx context.Context, embedding []float32, topK int) ([]semantic.SearchResult, error)
}

// Retriever turns a question into an assembled context block. It never
// returns an error: retrieval failure degrades to a sentinel string so the
// answer pipeline always proceeds.
type Retriever struct {
	embed   QueryEmbedder
	search  Searcher
	breaker *resilience.Breaker
	cache   *gocache.Cache
	reg     *metrics.Registry
	topK    int
	timeout time.Duration
	logger  *slog.Logger
}

// NewRetriever creates a Retriever with the given retrieval policy. A zero
// topK falls back to the default of 5; a zero timeout to 5s. A nil registry
// gets a private one so callers without metrics pay nothing.
func NewRetriever(embed QueryEmbedder, search Searcher, topK int, timeout time.Duration, reg *metrics.Registry, logger *slog.Logger) *Retriever {
	if topK <= 0 {
		topK = 5
	}
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	if reg == nil {
		reg = metrics.New()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Retriever{
		embed:   embed,
		search:  search,
		breaker: resilience.NewBreaker(resilience.DefaultBreakerOpts),
		cache:   gocache.New(5*time.Minute, 10*time.Minute),
		reg:     reg,
		topK:    topK,
		timeout: timeout,
		logger:  logger,
	}
}

// Retrieve embeds the query, searches the index, and assembles the context
// block: each hit prefixed with a source label, blank-line separated, in
// index order. Zero hits yield NoContextSentinel; embed or index failures
// yield a descriptive sentinel of the same shape.
func (r *Retriever) Retrieve(ctx context.Context, query string) string {
	embedding, err := r.queryEmbedding(ctx, query)
	if err != nil {
		r.logger.Warn("retrieve: query embedding failed, degrading", "err", err)
		r.degraded("embed")
		return embeddingFailSentinel
	}

	searchCtx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	var results []semantic.SearchResult
	err = r.breaker.Call(searchCtx, func(ctx context.Context) error {
		var searchErr error
		results, searchErr = r.search.Search(ctx, embedding, r.topK)
		return searchErr
	})
	if err != nil {
		r.logger.Warn("retrieve: search failed, degrading", "err", err)
		r.degraded("search")
		return unavailableSentinel
	}

	if len(results) == 0 {
		return NoContextSentinel
	}
	return assembleContext(results)
}

// degraded counts one sentinel-context retrieval, labeled by failing stage.
func (r *Retriever) degraded(reason string) {
	name := metrics.WithLabels("rag_retrieval_degraded_total", "reason", reason)
	r.reg.Counter(name, "Retrievals that fell back to a sentinel context").Inc()
}

// queryEmbedding embeds a query, serving repeats from a short-lived cache.
// Embeddings are deterministic per model, so caching is safe.
func (r *Retriever) queryEmbedding(ctx context.Context, query string) ([]float32, error) {
	if cached, ok := r.cache.Get(query); ok {
		return cached.([]float32), nil
	}
	embedding, err := r.embed.Embed(ctx, query)
	if err != nil {
		return nil, err
	}
	r.cache.Set(query, embedding, gocache.DefaultExpiration)
	return embedding, nil
}

// assembleContext formats hits as labeled source blocks.
func assembleContext(results []semantic.SearchResult) string {
	blocks := make([]string, len(results))
	for i, res := range results {
		label := fmt.Sprintf("Source %d", i+1)
		if res.Source != "" {
			label += " (" + res.Source + ")"
		}
		blocks[i] = label + ":\n" + res.Content
	}
	return strings.Join(blocks, "\n\n")
}

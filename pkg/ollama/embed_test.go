package ollama

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func embedServer(t *testing.T, dims int) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/embeddings" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		var req struct {
			Model  string `json:"model"`
			Prompt string `json:"prompt"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatal(err)
		}
		if req.Model != "all-minilm" {
			t.Errorf("model = %s", req.Model)
		}
		vec := make([]float64, dims)
		// Deterministic per input so tests can assert equality.
		for i := range vec {
			vec[i] = float64(len(req.Prompt)+i) / 100
		}
		json.NewEncoder(w).Encode(map[string]any{"embedding": vec})
	}))
}

func TestEmbed(t *testing.T) {
	srv := embedServer(t, 384)
	defer srv.Close()

	c := NewEmbedClient(srv.URL, "all-minilm")
	vec, err := c.Embed(context.Background(), "what color is the sky?")
	if err != nil {
		t.Fatal(err)
	}
	if len(vec) != 384 {
		t.Fatalf("dims = %d", len(vec))
	}
}

func TestEmbedDeterministic(t *testing.T) {
	srv := embedServer(t, 16)
	defer srv.Close()

	c := NewEmbedClient(srv.URL, "all-minilm")
	a, err := c.Embed(context.Background(), "same text")
	if err != nil {
		t.Fatal(err)
	}
	b, err := c.Embed(context.Background(), "same text")
	if err != nil {
		t.Fatal(err)
	}
	for i := range a {
		if a[i] != b[i] {
			t.Fatalf("vectors differ at %d: %f vs %f", i, a[i], b[i])
		}
	}
}

func TestEmbedBatchOrder(t *testing.T) {
	srv := embedServer(t, 8)
	defer srv.Close()

	c := NewEmbedClient(srv.URL, "all-minilm")
	vecs, err := c.EmbedBatch(context.Background(), []string{"a", "longer text"})
	if err != nil {
		t.Fatal(err)
	}
	if len(vecs) != 2 {
		t.Fatalf("expected 2 vectors, got %d", len(vecs))
	}
	// Server encodes prompt length into the vector; order must be preserved.
	if vecs[0][0] >= vecs[1][0] {
		t.Error("batch order not preserved")
	}
}

func TestEmbedServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "model not found", http.StatusNotFound)
	}))
	defer srv.Close()

	c := NewEmbedClient(srv.URL, "all-minilm")
	if _, err := c.Embed(context.Background(), "x"); err == nil {
		t.Fatal("expected error on non-200 status")
	}
}

package groq

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/askdocs/askdocs-backend/engine/domain"
)

func TestProviderRole(t *testing.T) {
	tests := []struct {
		role domain.Role
		want string
	}{
		{domain.RoleSystem, "system"},
		{domain.RoleUser, "user"},
		{domain.RoleAssistant, "assistant"},
		{domain.Role("tool"), "user"},
		{domain.Role(""), "user"},
	}
	for _, tt := range tests {
		if got := providerRole(tt.role); got != tt.want {
			t.Errorf("providerRole(%q) = %q, want %q", tt.role, got, tt.want)
		}
	}
}

func TestComplete(t *testing.T) {
	var captured chatRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			t.Errorf("path = %s", r.URL.Path)
		}
		if auth := r.Header.Get("Authorization"); auth != "Bearer test-key" {
			t.Errorf("auth = %s", auth)
		}
		if err := json.NewDecoder(r.Body).Decode(&captured); err != nil {
			t.Fatal(err)
		}
		json.NewEncoder(w).Encode(map[string]any{
			"choices": []map[string]any{
				{"message": map[string]string{"role": "assistant", "content": "The sky is blue."}},
			},
		})
	}))
	defer srv.Close()

	c := New(srv.URL, "test-key", Options{Model: "llama-3.1-8b-instant", Temperature: 0.7, MaxTokens: 512})
	reply, err := c.Complete(context.Background(), []domain.Message{
		domain.System("answer from context"),
		domain.User("what color is the sky?"),
	})
	if err != nil {
		t.Fatal(err)
	}
	if reply != "The sky is blue." {
		t.Errorf("reply = %q", reply)
	}

	if captured.Model != "llama-3.1-8b-instant" {
		t.Errorf("model = %s", captured.Model)
	}
	if len(captured.Messages) != 2 {
		t.Fatalf("wire messages = %d", len(captured.Messages))
	}
	if captured.Messages[0].Role != "system" || captured.Messages[1].Role != "user" {
		t.Errorf("wire roles = %s/%s", captured.Messages[0].Role, captured.Messages[1].Role)
	}
}

func TestCompleteProviderError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, `{"error":{"message":"rate limit"}}`, http.StatusTooManyRequests)
	}))
	defer srv.Close()

	c := New(srv.URL, "k", DefaultOptions())
	_, err := c.Complete(context.Background(), []domain.Message{domain.User("q")})
	if !errors.Is(err, domain.ErrGeneration) {
		t.Fatalf("expected ErrGeneration, got %v", err)
	}
}

func TestCompleteEmptyChoices(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"choices": []any{}})
	}))
	defer srv.Close()

	c := New(srv.URL, "k", DefaultOptions())
	_, err := c.Complete(context.Background(), []domain.Message{domain.User("q")})
	if !errors.Is(err, domain.ErrGeneration) {
		t.Fatalf("expected ErrGeneration, got %v", err)
	}
}

func TestCompleteTransportError(t *testing.T) {
	c := New("http://127.0.0.1:1", "k", DefaultOptions())
	_, err := c.Complete(context.Background(), []domain.Message{domain.User("q")})
	if !errors.Is(err, domain.ErrGeneration) {
		t.Fatalf("expected ErrGeneration, got %v", err)
	}
}

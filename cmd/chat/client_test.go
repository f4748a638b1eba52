package main

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func testServer(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/auth/login", func(w http.ResponseWriter, r *http.Request) {
		var req authRequest
		json.NewDecoder(r.Body).Decode(&req)
		w.Header().Set("Content-Type", "application/json")
		if req.Password != "good" {
			w.WriteHeader(http.StatusUnauthorized)
			json.NewEncoder(w).Encode(map[string]string{"error": "invalid email or password"})
			return
		}
		json.NewEncoder(w).Encode(map[string]string{"access_token": "tok-" + req.Email})
	})
	mux.HandleFunc("POST /api/chat", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if r.Header.Get("Authorization") != "Bearer tok-alice" {
			w.WriteHeader(http.StatusUnauthorized)
			json.NewEncoder(w).Encode(map[string]string{"error": "invalid or expired token"})
			return
		}
		var req askRequest
		json.NewDecoder(r.Body).Decode(&req)
		json.NewEncoder(w).Encode(map[string]string{"answer": "echo: " + req.Question})
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestLoginAndAsk(t *testing.T) {
	srv := testServer(t)
	c := newClient(srv.URL, 5*time.Second)

	token, err := c.Login(context.Background(), "alice", "good")
	if err != nil {
		t.Fatal(err)
	}
	if token != "tok-alice" {
		t.Fatalf("token = %q", token)
	}

	answer, err := c.Ask(context.Background(), token, "what is up?")
	if err != nil {
		t.Fatal(err)
	}
	if answer != "echo: what is up?" {
		t.Fatalf("answer = %q", answer)
	}
}

func TestLoginRejected(t *testing.T) {
	srv := testServer(t)
	c := newClient(srv.URL, 5*time.Second)

	_, err := c.Login(context.Background(), "alice", "bad")
	if err == nil {
		t.Fatal("expected login error")
	}
	if !strings.Contains(err.Error(), "invalid email or password") {
		t.Errorf("err = %v", err)
	}
}

func TestAskWithBadToken(t *testing.T) {
	srv := testServer(t)
	c := newClient(srv.URL, 5*time.Second)

	_, err := c.Ask(context.Background(), "tok-mallory", "anything")
	if err == nil {
		t.Fatal("expected error for bad token")
	}
}

func TestServerUnreachable(t *testing.T) {
	c := newClient("http://127.0.0.1:1", 500*time.Millisecond)
	if _, err := c.Login(context.Background(), "a", "b"); err == nil {
		t.Fatal("expected connection error")
	}
}

package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// client is a thin typed wrapper over the askdocs HTTP API.
type client struct {
	baseURL string
	http    *http.Client
}

func newClient(baseURL string, timeout time.Duration) *client {
	return &client{
		baseURL: baseURL,
		http:    &http.Client{Timeout: timeout},
	}
}

type authRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type authResponse struct {
	Token string `json:"access_token"`
	Error string `json:"error"`
}

// Register creates an account and returns its access token.
func (c *client) Register(ctx context.Context, email, password string) (string, error) {
	return c.authenticate(ctx, "/api/auth/register", email, password)
}

// Login returns an access token for an existing account.
func (c *client) Login(ctx context.Context, email, password string) (string, error) {
	return c.authenticate(ctx, "/api/auth/login", email, password)
}

func (c *client) authenticate(ctx context.Context, path, email, password string) (string, error) {
	var resp authResponse
	status, err := c.post(ctx, path, "", authRequest{Email: email, Password: password}, &resp)
	if err != nil {
		return "", err
	}
	if status >= 400 || resp.Token == "" {
		return "", fmt.Errorf("%s: %s", path, apiError(status, resp.Error))
	}
	return resp.Token, nil
}

type askRequest struct {
	Question string `json:"question"`
}

type askResponse struct {
	Answer string `json:"answer"`
	Error  string `json:"error"`
}

// Ask sends one question and returns the answer.
func (c *client) Ask(ctx context.Context, token, question string) (string, error) {
	var resp askResponse
	status, err := c.post(ctx, "/api/chat", token, askRequest{Question: question}, &resp)
	if err != nil {
		return "", err
	}
	if status >= 400 {
		return "", fmt.Errorf("chat: %s", apiError(status, resp.Error))
	}
	return resp.Answer, nil
}

func (c *client) post(ctx context.Context, path, token string, body, out any) (int, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return 0, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return 0, err
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return resp.StatusCode, fmt.Errorf("decode response: %w", err)
	}
	return resp.StatusCode, nil
}

func apiError(status int, msg string) string {
	if msg == "" {
		return fmt.Sprintf("unexpected status %d", status)
	}
	return msg
}

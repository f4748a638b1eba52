// Package groq provides a chat-completions client for Groq's
// OpenAI-compatible API.
package groq

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/askdocs/askdocs-backend/engine/domain"
)

// DefaultBaseURL is the Groq API endpoint.
const DefaultBaseURL = "https://api.groq.com/openai/v1"

// Options fixes the generation parameters for a client's lifetime.
type Options struct {
	Model       string
	Temperature float32
	MaxTokens   int
}

// DefaultOptions returns the generation defaults.
func DefaultOptions() Options {
	return Options{
		Model:       "llama-3.1-8b-instant",
		Temperature: 0.7,
		MaxTokens:   1024,
	}
}

// Client calls the chat completions endpoint. One blocking request per
// Complete call, no internal retry: retrying is the caller's decision.
// Stateless apart from the shared http.Client; safe for concurrent use.
type Client struct {
	baseURL string
	apiKey  string
	opts    Options
	client  *http.Client
}

// New creates a Groq client. An empty baseURL uses the hosted API.
func New(baseURL, apiKey string, opts Options) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if opts.Model == "" {
		opts = DefaultOptions()
	}
	return &Client{
		baseURL: baseURL,
		apiKey:  apiKey,
		opts:    opts,
		client:  &http.Client{},
	}
}

// Model returns the configured model identifier.
func (c *Client) Model() string { return c.opts.Model }

type wireMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Temperature float32       `json:"temperature"`
	MaxTokens   int           `json:"max_tokens"`
	Messages    []wireMessage `json:"messages"`
}

type chatResponse struct {
	Choices []struct {
		Message wireMessage `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error"`
}

// providerRole maps the internal role taxonomy onto Groq's vocabulary.
// Unknown roles default to "user".
func providerRole(r domain.Role) string {
	switch r {
	case domain.RoleSystem:
		return "system"
	case domain.RoleAssistant:
		return "assistant"
	default:
		return "user"
	}
}

// Complete sends the conversation and returns the generated reply text.
// Any transport or provider failure comes back wrapped as
// domain.ErrGeneration for the caller to classify.
func (c *Client) Complete(ctx context.Context, messages []domain.Message) (string, error) {
	wire := make([]wireMessage, len(messages))
	for i, m := range messages {
		wire[i] = wireMessage{Role: providerRole(m.Role), Content: m.Content}
	}

	body, _ := json.Marshal(chatRequest{
		Model:       c.opts.Model,
		Temperature: c.opts.Temperature,
		MaxTokens:   c.opts.MaxTokens,
		Messages:    wire,
	})

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("groq: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("groq: %w: %w", domain.ErrGeneration, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", fmt.Errorf("groq: %w: status %d: %s", domain.ErrGeneration, resp.StatusCode, msg)
	}

	var result chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", fmt.Errorf("groq: %w: decode: %w", domain.ErrGeneration, err)
	}
	if result.Error != nil {
		return "", fmt.Errorf("groq: %w: %s", domain.ErrGeneration, result.Error.Message)
	}
	if len(result.Choices) == 0 {
		return "", fmt.Errorf("groq: %w: no choices in response", domain.ErrGeneration)
	}
	return result.Choices[0].Message.Content, nil
}

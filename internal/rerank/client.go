// Package rerank provides the optional Tier-2 stage: re-ordering the top-K
// Tier-1 posts via an external text-completion service, with defensive
// response parsing and a guaranteed fallback to the Tier-1 ordering.
package rerank

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// CompletionRequest is the generic request shape for a chat-completion
// provider.
type CompletionRequest struct {
	Model       string
	Temperature float64
	MaxTokens   int
	System      string
	User        string
}

// CompletionClient calls an external text-completion service and returns
// the raw completion text.
type CompletionClient interface {
	Complete(ctx context.Context, req CompletionRequest) (string, error)
}

// ClientConfig configures the HTTP completion client.
type ClientConfig struct {
	APIURL  string
	APIKey  string
	Timeout time.Duration
}

// HTTPClient is an OpenAI-compatible chat-completions client. Any provider
// exposing the /chat/completions shape works.
type HTTPClient struct {
	client *http.Client
	apiURL string
	apiKey string
}

// NewHTTPClient creates a completion client.
func NewHTTPClient(cfg ClientConfig) *HTTPClient {
	apiURL := strings.TrimRight(cfg.APIURL, "/")
	if apiURL == "" {
		apiURL = "https://api.openai.com/v1"
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &HTTPClient{
		client: &http.Client{Timeout: timeout},
		apiURL: apiURL,
		apiKey: cfg.APIKey,
	}
}

type chatRequest struct {
	Model       string        `json:"model"`
	Temperature float64       `json:"temperature"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
	Messages    []chatMessage `json:"messages"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

// Complete sends a single non-streaming chat completion request.
func (c *HTTPClient) Complete(ctx context.Context, req CompletionRequest) (string, error) {
	if req.Model == "" {
		return "", errors.New("completion model is required")
	}

	payload, err := json.Marshal(chatRequest{
		Model:       req.Model,
		Temperature: req.Temperature,
		MaxTokens:   req.MaxTokens,
		Messages: []chatMessage{
			{Role: "system", Content: req.System},
			{Role: "user", Content: req.User},
		},
	})
	if err != nil {
		return "", fmt.Errorf("completion: marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.apiURL+"/chat/completions", bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("completion: create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("completion: request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		body, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("completion: unexpected status %s: %s", resp.Status, strings.TrimSpace(string(body)))
	}

	var parsed chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return "", fmt.Errorf("completion: decode response: %w", err)
	}
	if len(parsed.Choices) == 0 {
		return "", errors.New("completion: response has no choices")
	}
	return parsed.Choices[0].Message.Content, nil
}

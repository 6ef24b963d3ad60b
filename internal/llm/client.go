package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/kalambet/persona/internal/fetch"
)

const (
	DefaultBaseURL = "https://api.x.ai/v1"
	DefaultModel   = "grok-2-latest"
)

// ErrNoChoices is returned when the provider answers 2xx without a choice.
var ErrNoChoices = errors.New("completion returned no choices")

// Attacher places the credential as a bearer token.
func Attacher() fetch.Attacher {
	return fetch.HeaderAttacher("Authorization", "Bearer ")
}

// Client talks to an OpenAI-compatible chat completion endpoint. Credential
// rotation and retries are handled by the fetcher.
type Client struct {
	fetcher *fetch.Fetcher
	baseURL string
	model   string
}

// NewClient creates a client. Empty baseURL or model fall back to the
// defaults.
func NewClient(f *fetch.Fetcher, baseURL, model string) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if model == "" {
		model = DefaultModel
	}
	return &Client{
		fetcher: f,
		baseURL: strings.TrimRight(baseURL, "/"),
		model:   model,
	}
}

// Model returns the model name used when a request leaves it empty.
func (c *Client) Model() string { return c.model }

// Complete sends req and returns the first choice's content verbatim.
func (c *Client) Complete(ctx context.Context, req ChatRequest) (string, error) {
	if req.Model == "" {
		req.Model = c.model
	}
	body, err := json.Marshal(req)
	if err != nil {
		return "", fmt.Errorf("marshaling request: %w", err)
	}

	resp, err := c.fetcher.Fetch(ctx, fetch.Request{
		Method: http.MethodPost,
		URL:    c.baseURL + "/chat/completions",
		Body:   body,
	})
	if err != nil {
		return "", err
	}

	var out ChatResponse
	if err := json.Unmarshal(resp.Body, &out); err != nil {
		return "", fmt.Errorf("decoding completion: %w", err)
	}
	if len(out.Choices) == 0 {
		return "", ErrNoChoices
	}
	if out.Usage != nil {
		slog.Debug("completion usage",
			"model", out.Model,
			"prompt_tokens", out.Usage.PromptTokens,
			"completion_tokens", out.Usage.CompletionTokens,
		)
	}
	return out.Choices[0].Message.Content, nil
}

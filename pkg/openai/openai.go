// Package openai is a narrow chat-completions client. The pipeline only ever
// needs one operation: send a system/user prompt pair and get text back.
package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/FranksOps/roost/pkg/httpclient"
)

const serviceName = "openai"

// Config sets up a Client.
type Config struct {
	APIKey  string
	BaseURL string // default https://api.openai.com/v1
	Model   string // default gpt-4o
	Timeout time.Duration
}

// Client calls the chat completions endpoint.
type Client struct {
	cfg    Config
	http   *httpclient.Client
	logger *slog.Logger
}

// New creates a Client.
func New(cfg Config, logger *slog.Logger) (*Client, error) {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.openai.com/v1"
	}
	if cfg.Model == "" {
		cfg.Model = "gpt-4o"
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 60 * time.Second
	}

	hc, err := httpclient.New(httpclient.Config{Timeout: cfg.Timeout, MaxRedirects: 2})
	if err != nil {
		return nil, fmt.Errorf("openai client setup: %w", err)
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &Client{cfg: cfg, http: hc, logger: logger}, nil
}

type message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type completionRequest struct {
	Model          string          `json:"model"`
	Messages       []message       `json:"messages"`
	Temperature    float64         `json:"temperature"`
	ResponseFormat *responseFormat `json:"response_format,omitempty"`
}

type responseFormat struct {
	Type string `json:"type"`
}

type completionResponse struct {
	Choices []struct {
		Message message `json:"message"`
	} `json:"choices"`
}

// Complete sends a system/user prompt pair and returns the assistant text.
// When jsonMode is set, the request hints that the response must be a JSON
// object.
func (c *Client) Complete(ctx context.Context, system, user string, jsonMode bool) (string, error) {
	reqBody := completionRequest{
		Model: c.cfg.Model,
		Messages: []message{
			{Role: "system", Content: system},
			{Role: "user", Content: user},
		},
		Temperature: 0,
	}
	if jsonMode {
		reqBody.ResponseFormat = &responseFormat{Type: "json_object"}
	}

	data, err := json.Marshal(reqBody)
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+"/chat/completions", bytes.NewReader(data))
	if err != nil {
		return "", fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)

	resp, err := c.http.Do(ctx, req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return "", &httpclient.StatusError{
			Service:    serviceName,
			StatusCode: resp.StatusCode,
			Body:       string(body),
		}
	}

	var parsed completionResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return "", fmt.Errorf("unparseable completion response: %w", err)
	}
	if len(parsed.Choices) == 0 {
		return "", fmt.Errorf("completion returned no choices")
	}

	return parsed.Choices[0].Message.Content, nil
}

// Package llm wraps the OpenAI-compatible chat and embeddings endpoints the
// summarizer talks to, with model failover and tolerant response parsing for
// self-hosted backends that bend the contract.
package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"swvanews/internal/logger"
)

const (
	// DefaultBaseURL targets the hosted OpenAI API when no self-hosted
	// backend is configured.
	DefaultBaseURL = "https://api.openai.com"

	chatTemperature = 0.3
)

// Config holds the connection settings for one backend.
type Config struct {
	APIKey    string
	BaseURL   string
	Model     string
	MaxTokens int
}

// Client is a minimal OpenAI-compatible chat client.
type Client struct {
	http      *http.Client
	apiKey    string
	baseURL   string
	maxTokens int
}

// NewClient builds a client for cfg. BaseURL falls back to the hosted API.
func NewClient(cfg Config) *Client {
	base := strings.TrimRight(cfg.BaseURL, "/")
	if base == "" {
		base = DefaultBaseURL
	}
	return &Client{
		http:      &http.Client{Timeout: 120 * time.Second},
		apiKey:    cfg.APIKey,
		baseURL:   base,
		maxTokens: cfg.MaxTokens,
	}
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type responseFormat struct {
	Type string `json:"type"`
}

type chatRequest struct {
	Model          string          `json:"model"`
	Messages       []chatMessage   `json:"messages"`
	MaxTokens      int             `json:"max_tokens,omitempty"`
	Temperature    float64         `json:"temperature"`
	ResponseFormat *responseFormat `json:"response_format,omitempty"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Usage struct {
		TotalTokens int `json:"total_tokens"`
	} `json:"usage"`
}

// ChatResult is one completed chat call.
type ChatResult struct {
	Text       string
	TokensUsed int
	Model      string
}

// APIError is a non-2xx response from the backend.
type APIError struct {
	StatusCode int
	Code       string
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("llm backend returned %d: %s", e.StatusCode, e.Message)
}

// IsInvalidModel reports whether err means the requested model does not
// exist on this backend, which makes the model a failover candidate rather
// than a hard failure.
func IsInvalidModel(err error) bool {
	apiErr, ok := err.(*APIError)
	if !ok {
		return false
	}
	if apiErr.Code == "model_not_found" {
		return true
	}
	msg := strings.ToLower(apiErr.Message)
	return strings.Contains(msg, "model") &&
		(strings.Contains(msg, "not found") ||
			strings.Contains(msg, "does not exist") ||
			strings.Contains(msg, "invalid"))
}

// Chat issues one chat completion, preferring JSON response mode. Backends
// that reject response_format get one retry in plain text mode.
func (c *Client) Chat(ctx context.Context, model, system, user string) (*ChatResult, error) {
	result, err := c.chatOnce(ctx, model, system, user, true)
	if err != nil {
		if apiErr, ok := err.(*APIError); ok && apiErr.StatusCode == http.StatusBadRequest &&
			strings.Contains(strings.ToLower(apiErr.Message), "response_format") {
			logger.Warn("Backend rejected JSON response mode, retrying plain", "model", model)
			return c.chatOnce(ctx, model, system, user, false)
		}
		return nil, err
	}
	return result, nil
}

func (c *Client) chatOnce(ctx context.Context, model, system, user string, jsonMode bool) (*ChatResult, error) {
	reqBody := chatRequest{
		Model: model,
		Messages: []chatMessage{
			{Role: "system", Content: system},
			{Role: "user", Content: user},
		},
		MaxTokens:   c.maxTokens,
		Temperature: chatTemperature,
	}
	if jsonMode {
		reqBody.ResponseFormat = &responseFormat{Type: "json_object"}
	}

	var parsed chatResponse
	if err := c.post(ctx, "/v1/chat/completions", reqBody, &parsed); err != nil {
		return nil, err
	}
	if len(parsed.Choices) == 0 {
		return nil, fmt.Errorf("llm backend returned no choices for model %s", model)
	}
	return &ChatResult{
		Text:       parsed.Choices[0].Message.Content,
		TokensUsed: parsed.Usage.TotalTokens,
		Model:      model,
	}, nil
}

func (c *Client) post(ctx context.Context, path string, body any, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("llm request failed: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return &APIError{
			StatusCode: resp.StatusCode,
			Code:       errorCode(raw),
			Message:    errorMessage(raw),
		}
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

type apiErrorBody struct {
	Error struct {
		Message string `json:"message"`
		Code    string `json:"code"`
	} `json:"error"`
}

func errorCode(raw []byte) string {
	var body apiErrorBody
	if json.Unmarshal(raw, &body) == nil {
		return body.Error.Code
	}
	return ""
}

func errorMessage(raw []byte) string {
	var body apiErrorBody
	if json.Unmarshal(raw, &body) == nil && body.Error.Message != "" {
		return body.Error.Message
	}
	msg := string(raw)
	if len(msg) > 300 {
		msg = msg[:300]
	}
	return msg
}

// EstimateTokens approximates the token count of s at four characters per
// token.
func EstimateTokens(s string) int {
	return len(s) / 4
}

// TruncateContent cuts content to a soft token budget, preferring to end on
// a sentence boundary when one falls in the last fifth of the cut.
func TruncateContent(content string, maxTokens int) string {
	if EstimateTokens(content) <= maxTokens {
		return content
	}
	maxChars := maxTokens * 4
	truncated := content[:maxChars]
	if lastPeriod := strings.LastIndex(truncated, "."); float64(lastPeriod) > float64(maxChars)*0.8 {
		truncated = truncated[:lastPeriod+1]
	}
	return truncated + "..."
}

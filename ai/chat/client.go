// Package chat is a client for OpenAI-compatible chat completion endpoints
// (OpenAI, OpenRouter, Ollama's /v1 surface).
package chat

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/teranos/sentinel/errors"
	"github.com/teranos/sentinel/internal/httpclient"
	"github.com/teranos/sentinel/logger"
)

const (
	// DefaultModel is used when the configuration names none
	DefaultModel = "gpt-4o-mini"

	defaultTemperature = 0.2
	defaultMaxTokens   = 4096
	maxErrorBody       = 2048
)

// Config holds client configuration
type Config struct {
	BaseURL     string // including the /v1 prefix, e.g. https://api.openai.com/v1
	APIKey      string // empty for local servers
	Model       string
	Temperature *float64 // nil = 0.2
	MaxTokens   *int     // nil = 4096
	Title       string   // X-Title header, shown on gateway dashboards
	MaxRetries  int      // attempts for retryable failures (Default: 3)
	Client      httpclient.Doer
	Logger      *zap.SugaredLogger
	Sleep       func(ctx context.Context, d time.Duration) error
}

// Client sends chat completion requests.
type Client struct {
	config Config
	logger *zap.SugaredLogger
}

// NewClient creates a client. A nil Config.Client selects an SSRF-safe
// client with a two minute timeout.
func NewClient(config Config) *Client {
	if config.Model == "" {
		config.Model = DefaultModel
	}
	if config.Temperature == nil {
		t := defaultTemperature
		config.Temperature = &t
	}
	if config.MaxTokens == nil {
		n := defaultMaxTokens
		config.MaxTokens = &n
	}
	if config.MaxRetries <= 0 {
		config.MaxRetries = 3
	}
	if config.Client == nil {
		config.Client = httpclient.New(httpclient.Options{Timeout: 120 * time.Second})
	}
	if config.Sleep == nil {
		config.Sleep = sleepContext
	}
	config.BaseURL = strings.TrimSuffix(config.BaseURL, "/")
	return &Client{config: config, logger: logger.OrNop(config.Logger)}
}

// Model returns the configured model name
func (c *Client) Model() string {
	return c.config.Model
}

// ChatRequest is a high-level single-turn request
type ChatRequest struct {
	SystemPrompt string
	UserPrompt   string
	Temperature  *float64 // override
	MaxTokens    *int     // override
	Model        *string  // override
}

// ChatResponse is the assistant reply
type ChatResponse struct {
	Content string
	Model   string
	Usage   Usage
}

// Message is one chat message
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ChatCompletionRequest is the wire request body
type ChatCompletionRequest struct {
	Model       string    `json:"model"`
	Messages    []Message `json:"messages"`
	Temperature float64   `json:"temperature"`
	MaxTokens   int       `json:"max_tokens,omitempty"`
}

// ChatCompletionResponse is the wire response body
type ChatCompletionResponse struct {
	ID      string   `json:"id"`
	Model   string   `json:"model"`
	Choices []Choice `json:"choices"`
	Usage   Usage    `json:"usage"`
}

// Choice is one completion choice
type Choice struct {
	Index        int     `json:"index"`
	Message      Message `json:"message"`
	FinishReason string  `json:"finish_reason"`
}

// Usage is token accounting as reported by the server
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// Messages renders req as the message list sent on the wire: an optional
// system message followed by the user message.
func Messages(req ChatRequest) []Message {
	var msgs []Message
	if req.SystemPrompt != "" {
		msgs = append(msgs, Message{Role: "system", Content: req.SystemPrompt})
	}
	return append(msgs, Message{Role: "user", Content: req.UserPrompt})
}

// BuildRequest applies configured defaults and per-request overrides.
func (c *Client) BuildRequest(req ChatRequest) ChatCompletionRequest {
	out := ChatCompletionRequest{
		Model:       c.config.Model,
		Messages:    Messages(req),
		Temperature: *c.config.Temperature,
		MaxTokens:   *c.config.MaxTokens,
	}
	if req.Model != nil {
		out.Model = *req.Model
	}
	if req.Temperature != nil {
		out.Temperature = *req.Temperature
	}
	if req.MaxTokens != nil {
		out.MaxTokens = *req.MaxTokens
	}
	return out
}

// statusError is a non-2xx reply
type statusError struct {
	status int
	body   string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("chat completion failed with status %d: %s", e.status, e.body)
}

// CreateChatCompletion sends one request without retries.
func (c *Client) CreateChatCompletion(ctx context.Context, req ChatCompletionRequest) (*ChatCompletionResponse, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, errors.Wrap(err, "marshal request")
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.config.BaseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return nil, errors.Wrap(err, "create request")
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if c.config.APIKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.config.APIKey)
	}
	if c.config.Title != "" {
		httpReq.Header.Set("X-Title", c.config.Title)
	}

	resp, err := c.config.Client.Do(httpReq)
	if err != nil {
		return nil, errors.WrapTransient(err, "send request")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return nil, errors.WithStack(&statusError{status: resp.StatusCode, body: strings.TrimSpace(string(snippet))})
	}

	var out ChatCompletionResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, errors.Wrap(err, "decode response")
	}
	return &out, nil
}

// Chat sends req, retrying network failures, 429 and 5xx replies with a
// linear backoff.
func (c *Client) Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
	wire := c.BuildRequest(req)
	c.logger.Debugw("Chat request",
		"model", wire.Model,
		"max_tokens", wire.MaxTokens,
		"prompt_chars", len(req.SystemPrompt)+len(req.UserPrompt))

	var (
		resp *ChatCompletionResponse
		err  error
	)
	for attempt := 0; attempt < c.config.MaxRetries; attempt++ {
		if attempt > 0 {
			delay := time.Duration(attempt) * time.Second
			if serr := c.config.Sleep(ctx, delay); serr != nil {
				return nil, errors.Wrap(serr, "retry wait interrupted")
			}
		}
		resp, err = c.CreateChatCompletion(ctx, wire)
		if err == nil {
			break
		}
		c.logger.Warnw("Chat completion failed",
			"attempt", attempt+1,
			"model", wire.Model,
			logger.FieldError, err)
		if !retryable(err) || ctx.Err() != nil {
			return nil, err
		}
	}
	if err != nil {
		return nil, errors.Wrapf(err, "chat completion failed after %d attempts", c.config.MaxRetries)
	}
	if len(resp.Choices) == 0 {
		return nil, errors.New("no choices in chat completion response")
	}

	return &ChatResponse{
		Content: strings.TrimSpace(resp.Choices[0].Message.Content),
		Model:   firstNonEmpty(resp.Model, wire.Model),
		Usage:   resp.Usage,
	}, nil
}

// retryable reports whether a failure may succeed on a later attempt
func retryable(err error) bool {
	var se *statusError
	if errors.As(err, &se) {
		return se.status == http.StatusTooManyRequests || se.status >= 500
	}
	return errors.IsTransient(err)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

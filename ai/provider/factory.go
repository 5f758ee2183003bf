// Package provider selects and constructs the summarizer's chat backend from
// the [llm] configuration section.
package provider

import (
	"context"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/teranos/sentinel/ai/chat"
	"github.com/teranos/sentinel/am"
	"github.com/teranos/sentinel/errors"
	"github.com/teranos/sentinel/internal/httpclient"
)

// Provider is a chat backend type
type Provider string

const (
	// ProviderOpenAI is the OpenAI API
	ProviderOpenAI Provider = "openai"
	// ProviderOpenRouter is the OpenRouter gateway
	ProviderOpenRouter Provider = "openrouter"
	// ProviderOllama is a local Ollama server (OpenAI-compatible surface)
	ProviderOllama Provider = "ollama"
)

// default endpoints, without the /v1 suffix
var defaultBaseURLs = map[Provider]string{
	ProviderOpenAI:     "https://api.openai.com",
	ProviderOpenRouter: "https://openrouter.ai/api",
	ProviderOllama:     "http://localhost:11434",
}

var defaultModels = map[Provider]string{
	ProviderOpenAI:     "gpt-4o-mini",
	ProviderOpenRouter: "openai/gpt-4o-mini",
	ProviderOllama:     "llama3",
}

// AIClient is implemented by every chat backend
type AIClient interface {
	Chat(ctx context.Context, req chat.ChatRequest) (*chat.ChatResponse, error)
}

// ParseProvider converts a configuration string to a Provider
func ParseProvider(s string) (Provider, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "openai", "":
		return ProviderOpenAI, nil
	case "openrouter", "or":
		return ProviderOpenRouter, nil
	case "ollama", "local":
		return ProviderOllama, nil
	default:
		return "", errors.NewConfigError("unknown llm type %q (valid: openai, openrouter, ollama)", s)
	}
}

// BaseURL resolves the endpoint for p: the configured one or the backend
// default, always ending in /v1.
func BaseURL(p Provider, configured string) string {
	base := strings.TrimSuffix(configured, "/")
	if base == "" {
		base = defaultBaseURLs[p]
	}
	if !strings.HasSuffix(base, "/v1") {
		base += "/v1"
	}
	return base
}

// NewAIClient builds the configured backend. Hosted backends require an
// API key; Ollama runs on the local network, so private addresses are
// allowed for it only.
func NewAIClient(cfg am.LLMConfig, log *zap.SugaredLogger) (*chat.Client, error) {
	p, err := ParseProvider(cfg.Type)
	if err != nil {
		return nil, err
	}
	if p != ProviderOllama && cfg.APIKey == "" && !cfg.DryRun {
		return nil, errors.WithHint(
			errors.NewConfigError("llm type %s requires an api key", p),
			"set [llm] api_key or SENTINEL_LLM_API_KEY")
	}

	timeout := time.Duration(cfg.TimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 120 * time.Second
	}
	model := cfg.Model
	if model == "" {
		model = defaultModels[p]
	}
	var maxTokens *int
	if cfg.MaxTokens > 0 {
		n := cfg.MaxTokens
		maxTokens = &n
	}

	return chat.NewClient(chat.Config{
		BaseURL:   BaseURL(p, cfg.BaseURL),
		APIKey:    cfg.APIKey,
		Model:     model,
		MaxTokens: maxTokens,
		Title:     "sentinel",
		Client: httpclient.New(httpclient.Options{
			Timeout:        timeout,
			AllowPrivateIP: p == ProviderOllama,
		}),
		Logger: log,
	}), nil
}

var _ AIClient = (*chat.Client)(nil)

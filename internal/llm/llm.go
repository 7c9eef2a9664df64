// Package llm generates answers through the supported model providers.
//
// google uses the Gemini SDK; openai, openrouter and ollama share the
// OpenAI-compatible chat completions client; anthropic uses the Messages
// API.
package llm

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/kratos06/deepwiki-open/internal/config"
)

// Provider names.
const (
	ProviderGoogle     = "google"
	ProviderOpenAI     = "openai"
	ProviderOpenRouter = "openrouter"
	ProviderOllama     = "ollama"
	ProviderAnthropic  = "anthropic"
)

// ErrMissingAPIKey is returned by Generate when the provider needs a key
// and none was configured.
var ErrMissingAPIKey = errors.New("llm: missing API key")

// Generator produces a completion for a prompt.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
	// Name returns "provider/model".
	Name() string
}

// GeneratorFunc adapts a function to Generator.
type GeneratorFunc func(ctx context.Context, prompt string) (string, error)

func (f GeneratorFunc) Generate(ctx context.Context, prompt string) (string, error) {
	return f(ctx, prompt)
}

func (f GeneratorFunc) Name() string { return "func" }

// Settings carries per-provider connection details.
type Settings struct {
	APIKey    string
	BaseURL   string
	MaxTokens int64
}

// New returns a Generator for provider and model. A missing API key is
// not an error here; Generate reports it, so callers can still fall back
// to retrieval-only answers.
func New(provider, model string, s Settings) (Generator, error) {
	if model == "" {
		return nil, fmt.Errorf("llm: no model for provider %q", provider)
	}
	switch strings.ToLower(provider) {
	case ProviderGoogle:
		return &geminiGenerator{model: model, apiKey: s.APIKey}, nil
	case ProviderOpenAI, ProviderOpenRouter:
		return newOpenAIGenerator(provider, model, s.APIKey, s.BaseURL, true), nil
	case ProviderOllama:
		base := strings.TrimRight(s.BaseURL, "/")
		if base == "" {
			base = "http://localhost:11434"
		}
		if !strings.HasSuffix(base, "/v1") {
			base += "/v1"
		}
		// Ollama ignores the key but the client requires one.
		return newOpenAIGenerator(provider, model, "ollama", base, false), nil
	case ProviderAnthropic:
		maxTokens := s.MaxTokens
		if maxTokens <= 0 {
			maxTokens = 4096
		}
		return newAnthropicGenerator(model, s.APIKey, s.BaseURL, maxTokens), nil
	default:
		return nil, fmt.Errorf("llm: unknown provider %q", provider)
	}
}

// FromConfig resolves model defaults, base URLs and API keys for provider
// from cfg. An empty provider selects the configured default; an empty
// model selects the provider's default model.
func FromConfig(cfg *config.Config, provider, model string) (Generator, error) {
	if provider == "" {
		provider = cfg.Engine.DefaultProvider
	}
	pc, ok := cfg.Provider(provider)
	if !ok {
		return nil, fmt.Errorf("llm: unknown provider %q", provider)
	}
	if model == "" {
		model = pc.DefaultModel
	}
	var key string
	if pc.APIKeyEnv != "" {
		key = os.Getenv(pc.APIKeyEnv)
	}
	return New(provider, model, Settings{APIKey: key, BaseURL: pc.BaseURL})
}

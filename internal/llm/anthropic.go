package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

type anthropicGenerator struct {
	model     string
	maxTokens int64
	client    anthropic.Client
	hasKey    bool
}

func newAnthropicGenerator(model, apiKey, baseURL string, maxTokens int64) *anthropicGenerator {
	opts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}
	return &anthropicGenerator{
		model:     model,
		maxTokens: maxTokens,
		client:    anthropic.NewClient(opts...),
		hasKey:    apiKey != "",
	}
}

func (g *anthropicGenerator) Name() string { return ProviderAnthropic + "/" + g.model }

func (g *anthropicGenerator) Generate(ctx context.Context, prompt string) (string, error) {
	if !g.hasKey {
		return "", fmt.Errorf("%s: %w", ProviderAnthropic, ErrMissingAPIKey)
	}
	msg, err := g.client.Messages.New(ctx, anthropic.MessageNewParams{
		MaxTokens: g.maxTokens,
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)),
		},
		Model: anthropic.Model(g.model),
	})
	if err != nil {
		return "", fmt.Errorf("anthropic messages: %w", err)
	}

	var sb strings.Builder
	for _, block := range msg.Content {
		if block.Type == "text" {
			sb.WriteString(block.Text)
		}
	}
	if sb.Len() == 0 {
		return "", errors.New("anthropic: empty response")
	}
	return sb.String(), nil
}

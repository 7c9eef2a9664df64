package llm

import (
	"context"
	"errors"
	"fmt"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

type openAIGenerator struct {
	provider   string
	model      string
	client     openai.Client
	requireKey bool
	hasKey     bool
}

func newOpenAIGenerator(provider, model, apiKey, baseURL string, requireKey bool) *openAIGenerator {
	opts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}
	return &openAIGenerator{
		provider:   provider,
		model:      model,
		client:     openai.NewClient(opts...),
		requireKey: requireKey,
		hasKey:     apiKey != "",
	}
}

func (g *openAIGenerator) Name() string { return g.provider + "/" + g.model }

func (g *openAIGenerator) Generate(ctx context.Context, prompt string) (string, error) {
	if g.requireKey && !g.hasKey {
		return "", fmt.Errorf("%s: %w", g.provider, ErrMissingAPIKey)
	}
	resp, err := g.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.UserMessage(prompt),
		},
		Model: openai.ChatModel(g.model),
	})
	if err != nil {
		return "", fmt.Errorf("%s chat completion: %w", g.provider, err)
	}
	if len(resp.Choices) == 0 {
		return "", errors.New(g.provider + ": empty response")
	}
	return resp.Choices[0].Message.Content, nil
}

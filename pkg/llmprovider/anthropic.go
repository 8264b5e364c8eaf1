//go:build llm_anthropic

package llmprovider

// This file is grounded directly on the documented public API of
// github.com/anthropics/anthropic-sdk-go v1, since no repo in this
// project's reference corpus carries a concrete call site to imitate line
// for line.

import (
	"context"
	"fmt"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/selfheal/pipeline/pkg/intelligence"
)

// AnthropicProvider generates completions through the Messages API.
type AnthropicProvider struct {
	client anthropic.Client
	model  anthropic.Model
}

// NewAnthropicProvider builds a provider bound to one model name (e.g.
// "claude-sonnet-4-5"). apiKey is sent as the standard x-api-key header via
// option.WithAPIKey.
func NewAnthropicProvider(apiKey, model string) *AnthropicProvider {
	return &AnthropicProvider{
		client: anthropic.NewClient(option.WithAPIKey(apiKey)),
		model:  anthropic.Model(model),
	}
}

// Generate sends prompt as a single user message and returns the
// concatenated text of the response's content blocks.
func (p *AnthropicProvider) Generate(ctx context.Context, prompt string, maxTokens int, temperature float64) (string, error) {
	message, err := p.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:       p.model,
		MaxTokens:   int64(maxTokens),
		Temperature: anthropic.Float(temperature),
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)),
		},
	})
	if err != nil {
		return "", fmt.Errorf("llmprovider: anthropic messages.new: %w", err)
	}

	var out string
	for _, block := range message.Content {
		out += block.Text
	}
	return out, nil
}

// ModelName returns the model string this provider was constructed with.
func (p *AnthropicProvider) ModelName() string {
	return string(p.model)
}

func configured(providerName, apiKey, model string) (intelligence.LLMProvider, error) {
	if providerName != "anthropic" {
		return nil, fmt.Errorf("llmprovider: this binary only has llm_anthropic built in, cannot serve provider %q", providerName)
	}
	return NewAnthropicProvider(apiKey, model), nil
}

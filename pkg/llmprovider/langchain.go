//go:build llm_langchain

package llmprovider

import (
	"context"
	"fmt"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/ollama"

	"github.com/selfheal/pipeline/pkg/intelligence"
)

// LangchainProvider generates completions through langchaingo's llms.Model
// abstraction, backed here by a local Ollama server — demonstrating that
// intelligence.LLMProvider is satisfied equally by a hosted API
// (AnthropicProvider) and a self-hosted model, with no change to
// pkg/intelligence.
type LangchainProvider struct {
	model     llms.Model
	modelName string
}

// NewLangchainProvider builds a provider against an Ollama server at
// serverURL running modelName.
func NewLangchainProvider(serverURL, modelName string) (*LangchainProvider, error) {
	model, err := ollama.New(
		ollama.WithServerURL(serverURL),
		ollama.WithModel(modelName),
	)
	if err != nil {
		return nil, fmt.Errorf("llmprovider: construct ollama model: %w", err)
	}
	return &LangchainProvider{model: model, modelName: modelName}, nil
}

// Generate delegates to langchaingo's single-call completion helper.
func (p *LangchainProvider) Generate(ctx context.Context, prompt string, maxTokens int, temperature float64) (string, error) {
	completion, err := llms.GenerateFromSinglePrompt(ctx, p.model, prompt,
		llms.WithMaxTokens(maxTokens),
		llms.WithTemperature(temperature),
	)
	if err != nil {
		return "", fmt.Errorf("llmprovider: langchain generate: %w", err)
	}
	return completion, nil
}

// ModelName returns the Ollama model name this provider was constructed with.
func (p *LangchainProvider) ModelName() string {
	return p.modelName
}

func configured(providerName, serverURL, model string) (intelligence.LLMProvider, error) {
	if providerName != "langchain" {
		return nil, fmt.Errorf("llmprovider: this binary only has llm_langchain built in, cannot serve provider %q", providerName)
	}
	return NewLangchainProvider(serverURL, model)
}

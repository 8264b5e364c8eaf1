//go:build !llm_anthropic && !llm_langchain

package llmprovider

import (
	"fmt"

	"github.com/selfheal/pipeline/pkg/intelligence"
)

func configured(providerName, _, _ string) (intelligence.LLMProvider, error) {
	return nil, fmt.Errorf("llmprovider: no LLM adapter built into this binary; build with -tags llm_anthropic or -tags llm_langchain (requested provider %q)", providerName)
}

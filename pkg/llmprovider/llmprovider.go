// Package llmprovider holds concrete intelligence.LLMProvider adapters.
// They live outside pkg/intelligence because the core pipeline's
// RCA/Plan/Critic stages stay independent of any one LLM vendor: each
// adapter is gated behind its own build tag (llm_anthropic, llm_langchain)
// so a binary only links the SDK it actually uses. cmd/selfheal-server
// always calls Configured, which one of anthropic.go, langchain.go, or
// default.go implements depending on which build tag (if any) was passed
// to `go build`.
package llmprovider

import "github.com/selfheal/pipeline/pkg/intelligence"

// Configured builds the intelligence.LLMProvider selected by providerName
// ("anthropic" or "langchain") using the apiKeyOrServerURL and model this
// binary was configured with. Its implementation lives in exactly one of
// anthropic.go, langchain.go, or default.go, selected at compile time by
// build tag.
func Configured(providerName, apiKeyOrServerURL, model string) (intelligence.LLMProvider, error) {
	return configured(providerName, apiKeyOrServerURL, model)
}

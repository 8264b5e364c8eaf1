// Package intelligence wraps the RCA, Plan, and Critic LLM stages (spec
// §4.6) behind a common parse-validate-retry loop. Grounded on
// original_source's sre_agent/ai/{critic.py,plan_generator.py}: each stage
// sends an initial prompt, extracts the first JSON object from the raw
// completion (tolerating a markdown code fence), decodes it strictly
// (rejecting unknown fields), and on failure repairs the prompt with the
// previous error and output, up to max_retries attempts.
package intelligence

import "context"

// LLMProvider is the out-of-scope collaborator abstraction named by the
// spec; concrete adapters (Anthropic, LangChain-backed providers, etc.)
// live in pkg/llmprovider, outside this package's domain boundary.
type LLMProvider interface {
	Generate(ctx context.Context, prompt string, maxTokens int, temperature float64) (string, error)
	ModelName() string
}

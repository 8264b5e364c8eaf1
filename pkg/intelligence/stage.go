package intelligence

import (
	"context"

	"github.com/selfheal/pipeline/pkg/pipelineerr"
)

// validator is implemented by every stage schema; normalize performs any
// required sorting/deduplication (a no-op for RCAResult/CriticDecision,
// non-trivial for FixPlan) and returns an error if the decoded value
// violates a schema invariant the JSON decoder itself can't express (range
// checks, enum membership, cross-field coherence).
type validator interface {
	validate() error
}

// repairPrompt builds the retry prompt the original implementation sends on
// a parse/validation failure: the schema error plus the previous raw output,
// asking for a single corrected JSON object.
func repairPrompt(lastError, lastRaw string) string {
	return "Return JSON ONLY. Do not include markdown. Do not include commentary.\n\n" +
		"The previous output was invalid.\n\n" +
		"Error:\n" + lastError + "\n\n" +
		"Previous output:\n" + lastRaw + "\n\n" +
		"Return a single corrected JSON object that matches the required schema."
}

// runStage implements the common attempt <= max_retries parse-validate-retry
// loop (spec §4.6) for a stage whose result type is T. initialPrompt is the
// first attempt's prompt; on repair attempts runStage calls repairPrompt itself.
// normalize, when non-nil, runs after validate() succeeds and may itself
// fail (e.g. FixPlan's operations/files coherence check) — a normalize
// failure is treated the same as a validation failure and retried.
func runStage[T validator](
	ctx context.Context,
	provider LLMProvider,
	initialPrompt string,
	maxTokens int,
	maxRetries int,
	normalize func(*T) error,
) (T, error) {
	var zero T
	var lastError, lastRaw string

	for attempt := 0; attempt <= maxRetries; attempt++ {
		prompt := initialPrompt
		if attempt > 0 {
			prompt = repairPrompt(lastError, lastRaw)
		}

		raw, err := provider.Generate(ctx, prompt, maxTokens, 0.0)
		if err != nil {
			return zero, pipelineerr.Wrap(err, pipelineerr.KindTransient, "intelligence: llm generate failed")
		}
		lastRaw = raw

		jsonText := extractFirstJSONObject(raw)
		var value T
		if err := decodeStrict(jsonText, &value); err != nil {
			lastError = err.Error()
			continue
		}
		if err := value.validate(); err != nil {
			lastError = err.Error()
			continue
		}
		if normalize != nil {
			if err := normalize(&value); err != nil {
				lastError = err.Error()
				continue
			}
		}
		return value, nil
	}

	return zero, pipelineerr.New(pipelineerr.KindParse, "intelligence: failed to produce valid output after retries: "+lastError)
}

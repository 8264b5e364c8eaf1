package intelligence

import (
	"context"
	"fmt"

	"github.com/selfheal/pipeline/pkg/logparser"
)

// RCAStage runs root-cause analysis over a FailureContextBundle.
type RCAStage struct {
	Provider   LLMProvider
	MaxRetries int
	MaxTokens  int
}

// NewRCAStage returns an RCAStage with the original implementation's
// defaults (2 retries, 900 max tokens, matching PlanCritic.max_retries; the
// critic stage also uses 900 max tokens, the plan stage 1200).
func NewRCAStage(provider LLMProvider) *RCAStage {
	return &RCAStage{Provider: provider, MaxRetries: 2, MaxTokens: 900}
}

func (s *RCAStage) prompt(bundle logparser.FailureContextBundle) string {
	return fmt.Sprintf(
		"You are a CI/CD failure root-cause analyst. Return JSON ONLY matching the RCAResult schema "+
			"(classification, primary_hypothesis, alternative_hypotheses, affected_files, similar_incidents). "+
			"No markdown, no commentary.\n\n"+
			"Repository: %s\nBranch: %s\nJob: %s\n\nLog summary:\n%s\n",
		bundle.Repo, bundle.Branch, bundle.JobName, bundle.LogSummary,
	)
}

// Analyze produces an RCAResult for the given failure context, retrying the
// LLM call up to MaxRetries times on parse/schema failure.
func (s *RCAStage) Analyze(ctx context.Context, bundle logparser.FailureContextBundle) (RCAResult, error) {
	return runStage[RCAResult](ctx, s.Provider, s.prompt(bundle), s.MaxTokens, s.MaxRetries, nil)
}

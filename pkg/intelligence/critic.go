package intelligence

import (
	"context"
	"fmt"

	"github.com/selfheal/pipeline/pkg/logparser"
)

// CriticStage reviews a FixPlan for hallucination risk and internal
// consistency against the RCA result and failure context it was derived
// from. Grounded on original_source's ai/critic.py PlanCritic.review.
type CriticStage struct {
	Provider   LLMProvider
	MaxRetries int
	MaxTokens  int
}

// NewCriticStage returns a CriticStage with the original implementation's
// defaults (max_retries=2, max_tokens=900).
func NewCriticStage(provider LLMProvider) *CriticStage {
	return &CriticStage{Provider: provider, MaxRetries: 2, MaxTokens: 900}
}

func (s *CriticStage) prompt(rca RCAResult, bundle logparser.FailureContextBundle, plan FixPlan) string {
	return fmt.Sprintf(
		"You are a skeptical reviewer of an automated CI/CD fix plan. Return JSON ONLY matching "+
			"the CriticDecision schema (allowed, hallucination_risk, reasoning_consistency, issues, "+
			"requires_manual_review, recommended_label). No markdown, no commentary.\n\n"+
			"Root cause: %s\nPlan root cause: %s\nPlan category: %s\nFiles: %v\nOperations: %d\n",
		rca.PrimaryHypothesis.Description, plan.RootCause, plan.Category, plan.Files, len(plan.Operations),
	)
}

// Review produces a CriticDecision for the given plan.
func (s *CriticStage) Review(ctx context.Context, rca RCAResult, bundle logparser.FailureContextBundle, plan FixPlan) (CriticDecision, error) {
	return runStage[CriticDecision](ctx, s.Provider, s.prompt(rca, bundle, plan), s.MaxTokens, s.MaxRetries, nil)
}

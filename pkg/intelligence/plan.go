package intelligence

import (
	"context"
	"fmt"
)

// PlanStage generates a FixPlan from an RCAResult.
type PlanStage struct {
	Provider   LLMProvider
	MaxRetries int
	MaxTokens  int
}

// NewPlanStage returns a PlanStage with the original implementation's
// shared intelligence-stage defaults.
func NewPlanStage(provider LLMProvider) *PlanStage {
	return &PlanStage{Provider: provider, MaxRetries: 2, MaxTokens: 1200}
}

func (s *PlanStage) prompt(rca RCAResult) string {
	return fmt.Sprintf(
		"You are a CI/CD fix planner. Return JSON ONLY matching the FixPlan schema "+
			"(root_cause, category, confidence, files, operations — at most 10 operations, "+
			"every operation.file must appear in files). No markdown, no commentary.\n\n"+
			"Root cause hypothesis: %s\nCategory: %s\nConfidence: %.2f\n",
		rca.PrimaryHypothesis.Description, rca.Classification.Category, rca.Classification.Confidence,
	)
}

// Generate produces a normalized FixPlan: files deduplicated and sorted,
// operations validated against the declared file set and sorted by
// (file, type).
func (s *PlanStage) Generate(ctx context.Context, rca RCAResult) (FixPlan, error) {
	return runStage[FixPlan](ctx, s.Provider, s.prompt(rca), s.MaxTokens, s.MaxRetries,
		func(p *FixPlan) error { return p.normalize() })
}

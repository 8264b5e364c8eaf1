package consensus

import (
	"github.com/selfheal/pipeline/pkg/intelligence"
	"github.com/selfheal/pipeline/pkg/policy"
)

// DefaultVetoDangerThreshold is the danger-score above which a policy decision
// vetoes consensus outright even if individually "allowed" (spec §4.7 rule
// 1). Configurable per deployment; this is the documented default.
const DefaultVetoDangerThreshold = 80

// Evaluate merges the issue graph, plan, critic decision, and safety policy
// decision into a ConsensusDecision, following the five rules of spec §4.7
// in order.
func Evaluate(
	graph IssueGraph,
	plan intelligence.FixPlan,
	planValid bool,
	critic intelligence.CriticDecision,
	criticValid bool,
	policyDecision policy.Decision,
	vetoDangerThreshold int,
	thresholds Thresholds,
) Decision {
	metadata := map[string]string{}

	// Rule 1: safety veto.
	if !policyDecision.Allowed || policyDecision.DangerScore > vetoDangerThreshold {
		return Decision{
			State:    StateRejectedSafetyVeto,
			Metadata: metadata,
			Rejections: []Rejection{{
				Signal: "policy",
				Reason: "policy decision blocked or danger score exceeded veto threshold",
			}},
		}
	}

	// Rule 2+3: count agreement across four signals.
	totalSignals := 4
	agreeing := 0
	var rejections []Rejection

	if planValid && plan.Confidence >= thresholds.MinConfidence {
		agreeing++
	} else {
		reason := "plan schema invalid"
		if planValid {
			reason = "plan confidence below threshold"
		}
		rejections = append(rejections, Rejection{Signal: "plan.confidence", Reason: reason})
	}

	if criticValid && critic.Allowed {
		agreeing++
	} else {
		reason := "critic schema invalid"
		if criticValid {
			reason = "critic disallowed the plan"
		}
		rejections = append(rejections, Rejection{Signal: "critic.allowed", Reason: reason})
	}

	if criticValid && critic.ReasoningConsistency >= thresholds.MinConfidence {
		agreeing++
	} else {
		reason := "critic schema invalid"
		if criticValid {
			reason = "critic reasoning consistency below threshold"
		}
		rejections = append(rejections, Rejection{Signal: "critic.reasoning_consistency", Reason: reason})
	}

	if policyDecision.Allowed {
		agreeing++
	} else {
		rejections = append(rejections, Rejection{Signal: "policy.allowed", Reason: "policy decision disallowed"})
	}

	agreementRate := float64(agreeing) / float64(totalSignals)

	if !planValid || !criticValid {
		return Decision{
			State:         StateRejectedInvalidCandidates,
			AgreementRate: agreementRate,
			Rejections:    rejections,
			Metadata:      metadata,
		}
	}

	if agreementRate >= thresholds.MinAgreement {
		return Decision{
			State:         StateAccepted,
			AgreementRate: agreementRate,
			SelectedAgent: "planner",
			HasPlan:       true,
			Rejections:    rejections,
			Metadata:      metadata,
		}
	}

	return Decision{
		State:         StateRejectedLowAgreement,
		AgreementRate: agreementRate,
		Rejections:    rejections,
		Metadata:      metadata,
	}
}

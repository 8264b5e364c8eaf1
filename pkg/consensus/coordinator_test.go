package consensus

import (
	"testing"

	"github.com/selfheal/pipeline/pkg/intelligence"
	"github.com/selfheal/pipeline/pkg/policy"
	"github.com/stretchr/testify/assert"
)

func defaultThresholds() Thresholds {
	return Thresholds{MinAgreement: 0.75, MinConfidence: 0.6}
}

func TestEvaluateAcceptsWhenAllSignalsAgree(t *testing.T) {
	plan := intelligence.FixPlan{Confidence: 0.9}
	critic := intelligence.CriticDecision{Allowed: true, ReasoningConsistency: 0.9}
	pol := policy.Decision{Allowed: true, DangerScore: 5}

	decision := Evaluate(IssueGraph{}, plan, true, critic, true, pol, DefaultVetoDangerThreshold, defaultThresholds())
	assert.Equal(t, StateAccepted, decision.State)
	assert.Equal(t, "planner", decision.SelectedAgent)
	assert.Equal(t, 1.0, decision.AgreementRate)
}

func TestEvaluateRejectsOnSafetyVeto(t *testing.T) {
	pol := policy.Decision{Allowed: false}
	decision := Evaluate(IssueGraph{}, intelligence.FixPlan{}, true, intelligence.CriticDecision{}, true, pol, DefaultVetoDangerThreshold, defaultThresholds())
	assert.Equal(t, StateRejectedSafetyVeto, decision.State)
}

func TestEvaluateRejectsOnHighDangerScoreEvenIfAllowed(t *testing.T) {
	pol := policy.Decision{Allowed: true, DangerScore: 95}
	decision := Evaluate(IssueGraph{}, intelligence.FixPlan{}, true, intelligence.CriticDecision{}, true, pol, 80, defaultThresholds())
	assert.Equal(t, StateRejectedSafetyVeto, decision.State)
}

func TestEvaluateRejectsLowAgreementWhenSignalsDisagree(t *testing.T) {
	plan := intelligence.FixPlan{Confidence: 0.1}
	critic := intelligence.CriticDecision{Allowed: false, ReasoningConsistency: 0.1}
	pol := policy.Decision{Allowed: true, DangerScore: 5}

	decision := Evaluate(IssueGraph{}, plan, true, critic, true, pol, DefaultVetoDangerThreshold, defaultThresholds())
	assert.Equal(t, StateRejectedLowAgreement, decision.State)
	assert.Less(t, decision.AgreementRate, defaultThresholds().MinAgreement)
}

func TestEvaluateRejectsInvalidCandidatesWhenUpstreamParseFailed(t *testing.T) {
	pol := policy.Decision{Allowed: true, DangerScore: 5}
	decision := Evaluate(IssueGraph{}, intelligence.FixPlan{}, false, intelligence.CriticDecision{}, true, pol, DefaultVetoDangerThreshold, defaultThresholds())
	assert.Equal(t, StateRejectedInvalidCandidates, decision.State)
}

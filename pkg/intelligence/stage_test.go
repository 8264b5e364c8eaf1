package intelligence

import (
	"context"
	"testing"

	"github.com/selfheal/pipeline/pkg/logparser"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type scriptedProvider struct {
	responses []string
	calls     int
}

func (p *scriptedProvider) Generate(ctx context.Context, prompt string, maxTokens int, temperature float64) (string, error) {
	if p.calls >= len(p.responses) {
		return p.responses[len(p.responses)-1], nil
	}
	r := p.responses[p.calls]
	p.calls++
	return r, nil
}

func (p *scriptedProvider) ModelName() string { return "stub" }

func TestRCAStageParsesValidJSON(t *testing.T) {
	provider := &scriptedProvider{responses: []string{`{
		"classification": {"category": "dependency", "confidence": 0.9, "reasoning": "missing module", "indicators": ["ModuleNotFoundError"]},
		"primary_hypothesis": {"description": "missing package", "confidence": 0.85, "evidence": ["log line"]},
		"alternative_hypotheses": [],
		"affected_files": [],
		"similar_incidents": []
	}`}}

	stage := NewRCAStage(provider)
	result, err := stage.Analyze(context.Background(), testBundle())
	require.NoError(t, err)
	assert.Equal(t, CategoryDependency, result.Classification.Category)
	assert.Equal(t, 1, provider.calls)
}

func TestRCAStageRetriesOnBadJSON(t *testing.T) {
	provider := &scriptedProvider{responses: []string{
		"not json at all",
		`{"classification": {"category": "code", "confidence": 0.5, "reasoning": "r", "indicators": []}, "primary_hypothesis": {"description": "d", "confidence": 0.5, "evidence": []}, "alternative_hypotheses": [], "affected_files": [], "similar_incidents": []}`,
	}}
	stage := NewRCAStage(provider)
	result, err := stage.Analyze(context.Background(), testBundle())
	require.NoError(t, err)
	assert.Equal(t, CategoryCode, result.Classification.Category)
	assert.Equal(t, 2, provider.calls)
}

func TestRCAStageFailsAfterExhaustingRetries(t *testing.T) {
	provider := &scriptedProvider{responses: []string{"bad", "still bad", "also bad"}}
	stage := NewRCAStage(provider)
	stage.MaxRetries = 2
	_, err := stage.Analyze(context.Background(), testBundle())
	require.Error(t, err)
}

func TestRCAStageStripsMarkdownFence(t *testing.T) {
	provider := &scriptedProvider{responses: []string{
		"```json\n{\"classification\": {\"category\": \"test\", \"confidence\": 0.6, \"reasoning\": \"r\", \"indicators\": []}, \"primary_hypothesis\": {\"description\": \"d\", \"confidence\": 0.6, \"evidence\": []}, \"alternative_hypotheses\": [], \"affected_files\": [], \"similar_incidents\": []}\n```",
	}}
	stage := NewRCAStage(provider)
	result, err := stage.Analyze(context.Background(), testBundle())
	require.NoError(t, err)
	assert.Equal(t, CategoryTest, result.Classification.Category)
}

func TestPlanStageNormalizesFilesAndOperations(t *testing.T) {
	provider := &scriptedProvider{responses: []string{`{
		"root_cause": "missing dependency",
		"category": "dependency",
		"confidence": 0.8,
		"files": ["./b.py", "a.py", "a.py"],
		"operations": [
			{"type": "add_dependency", "file": "b.py", "details": {}, "rationale": "r", "evidence": []},
			{"type": "add_dependency", "file": "a.py", "details": {}, "rationale": "r", "evidence": []}
		]
	}`}}
	stage := NewPlanStage(provider)
	plan, err := stage.Generate(context.Background(), RCAResult{})
	require.NoError(t, err)
	assert.Equal(t, []string{"a.py", "b.py"}, plan.Files)
	require.Len(t, plan.Operations, 2)
	assert.Equal(t, "a.py", plan.Operations[0].File)
	assert.Equal(t, "b.py", plan.Operations[1].File)
}

func TestPlanStageRejectsOperationOnUndeclaredFile(t *testing.T) {
	provider := &scriptedProvider{responses: []string{
		`{"root_cause": "x", "category": "code", "confidence": 0.5, "files": ["a.py"], "operations": [{"type": "modify_code", "file": "b.py", "details": {}, "rationale": "r", "evidence": []}]}`,
	}}
	stage := NewPlanStage(provider)
	stage.MaxRetries = 0
	_, err := stage.Generate(context.Background(), RCAResult{})
	require.Error(t, err)
}

func TestCriticStageParsesValidJSON(t *testing.T) {
	provider := &scriptedProvider{responses: []string{
		`{"allowed": true, "hallucination_risk": 0.1, "reasoning_consistency": 0.9, "issues": [], "requires_manual_review": false, "recommended_label": "safe"}`,
	}}
	stage := NewCriticStage(provider)
	decision, err := stage.Review(context.Background(), RCAResult{}, testBundle(), FixPlan{})
	require.NoError(t, err)
	assert.True(t, decision.Allowed)
}

func testBundle() logparser.FailureContextBundle {
	return logparser.FailureContextBundle{Repo: "acme/widgets", Branch: "main", JobName: "test", LogSummary: "ModuleNotFoundError: No module named 'requests'"}
}

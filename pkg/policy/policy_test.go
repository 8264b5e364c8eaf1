package policy

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEvaluateDiffAllowsSmallSafeChange(t *testing.T) {
	e, err := New(DefaultSafetyPolicy())
	require.NoError(t, err)

	diff := "diff --git a/app/main.go b/app/main.go\n--- a/app/main.go\n+++ b/app/main.go\n@@ -1,2 +1,2 @@\n-foo()\n+bar()\n"
	decision, err := e.EvaluateDiff(context.Background(), diff)
	require.NoError(t, err)
	assert.True(t, decision.Allowed)
	assert.Empty(t, decision.BlockingViolations())
	assert.Equal(t, "safe", decision.PRLabel)
}

func TestEvaluateDiffBlocksForbiddenPath(t *testing.T) {
	e, err := New(DefaultSafetyPolicy())
	require.NoError(t, err)

	diff := "diff --git a/.github/workflows/ci.yml b/.github/workflows/ci.yml\n--- a/.github/workflows/ci.yml\n+++ b/.github/workflows/ci.yml\n@@ -1 +1 @@\n-a\n+b\n"
	decision, err := e.EvaluateDiff(context.Background(), diff)
	require.NoError(t, err)
	assert.False(t, decision.Allowed)
	require.Len(t, decision.BlockingViolations(), 1)
	assert.Equal(t, "forbidden_path", decision.BlockingViolations()[0].Code)
}

func TestEvaluateDiffBlocksSecretInAddedLine(t *testing.T) {
	e, err := New(DefaultSafetyPolicy())
	require.NoError(t, err)

	diff := "diff --git a/app/config.py b/app/config.py\n--- a/app/config.py\n+++ b/app/config.py\n@@ -1 +1,2 @@\n old = 1\n+password = \"hunter2\"\n"
	decision, err := e.EvaluateDiff(context.Background(), diff)
	require.NoError(t, err)
	assert.False(t, decision.Allowed)
	found := false
	for _, v := range decision.BlockingViolations() {
		if v.Code == "secret_detected" {
			found = true
		}
	}
	assert.True(t, found)
}

func TestEvaluateDiffBlocksOversizedPatch(t *testing.T) {
	policy := DefaultSafetyPolicy()
	policy.PatchLimits.MaxFiles = 1
	e, err := New(policy)
	require.NoError(t, err)

	diff := "diff --git a/a.go b/a.go\n--- a/a.go\n+++ a/a.go\n@@ -1 +1 @@\n-x\n+y\n" +
		"diff --git a/b.go b/b.go\n--- a/b.go\n+++ b/b.go\n@@ -1 +1 @@\n-x\n+y\n"
	decision, err := e.EvaluateDiff(context.Background(), diff)
	require.NoError(t, err)
	assert.False(t, decision.Allowed)
}

func TestEvaluateDiffRiskyPathRaisesDangerScore(t *testing.T) {
	e, err := New(DefaultSafetyPolicy())
	require.NoError(t, err)

	diff := "diff --git a/Dockerfile b/Dockerfile\n--- a/Dockerfile\n+++ b/Dockerfile\n@@ -1 +1 @@\n-FROM a\n+FROM b\n"
	decision, err := e.EvaluateDiff(context.Background(), diff)
	require.NoError(t, err)
	assert.True(t, decision.Allowed)
	assert.Greater(t, decision.DangerScore, 20)
	assert.NotEqual(t, "safe", decision.PRLabel)
}

func TestEvaluateIntentBlocksForbiddenTarget(t *testing.T) {
	e, err := New(DefaultSafetyPolicy())
	require.NoError(t, err)

	decision, err := e.EvaluateIntent(context.Background(), PlanIntent{
		TargetFiles:    []string{".env"},
		OperationTypes: []string{"modify_code"},
	})
	require.NoError(t, err)
	assert.False(t, decision.Allowed)
}

func TestEvaluateIntentScoresOperationWeights(t *testing.T) {
	e, err := New(DefaultSafetyPolicy())
	require.NoError(t, err)

	decision, err := e.EvaluateIntent(context.Background(), PlanIntent{
		TargetFiles:    []string{"app/main.go"},
		OperationTypes: []string{"modify_code"},
	})
	require.NoError(t, err)
	assert.True(t, decision.Allowed)
	assert.Equal(t, 15, decision.DangerScore)
}

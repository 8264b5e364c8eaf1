package consensus

import (
	"testing"

	"github.com/selfheal/pipeline/pkg/intelligence"
	"github.com/selfheal/pipeline/pkg/logparser"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildIssueGraphOrdersIssuesBySection(t *testing.T) {
	bundle := logparser.FailureContextBundle{
		EventID: "evt-1",
		Errors:  []logparser.LogError{{Kind: "python_exception", Message: "boom"}},
		BuildErrors: []logparser.BuildError{
			{File: "src/main.c", Line: 10, Column: 2, Level: "error", Message: "syntax error"},
		},
		TestFailures: []logparser.TestFailure{{TestName: "test_x", Message: "assert failed"}},
	}
	graph := BuildIssueGraph(bundle, intelligence.RCAResult{})

	require.Len(t, graph.Issues, 3)
	assert.Equal(t, "error_0", graph.Issues[0].IssueID)
	assert.Equal(t, "build_0", graph.Issues[1].IssueID)
	assert.Equal(t, "test_0", graph.Issues[2].IssueID)
	assert.Contains(t, graph.AffectedFiles, "src/main.c")
	assert.Equal(t, 3, graph.SeverityLevels["error"])
	require.Len(t, graph.DependencyLinks, 2)
	assert.Equal(t, "correlates_with", graph.DependencyLinks[0].Relation)
}

func TestBuildIssueGraphFallsBackWhenEmpty(t *testing.T) {
	bundle := logparser.FailureContextBundle{EventID: "evt-2", LogSummary: "generic failure"}
	graph := BuildIssueGraph(bundle, intelligence.RCAResult{})
	require.Len(t, graph.Issues, 1)
	assert.Equal(t, "fallback_0", graph.Issues[0].IssueID)
	assert.Equal(t, "generic failure", graph.Issues[0].Message)
}

func TestBuildIssueGraphUnwrapsJavaFrameLocation(t *testing.T) {
	file := fileFromFrame("com.example.App.main(App.java:20)")
	assert.Equal(t, "App.java", file)
}

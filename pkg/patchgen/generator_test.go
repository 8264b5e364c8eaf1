package patchgen

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/selfheal/pipeline/pkg/intelligence"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, root, rel, content string) {
	t.Helper()
	path := filepath.Join(root, filepath.FromSlash(rel))
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func TestGenerateDependencyUpsertPyprojectIsDeterministic(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "pyproject.toml", "[tool.poetry]\nname = \"demo\"\n\n[tool.poetry.dependencies]\npython = \"^3.11\"\n\n")

	plan := intelligence.FixPlan{
		RootCause:  "missing requests",
		Category:   "python_missing_dependency",
		Confidence: 0.7,
		Files:      []string{"pyproject.toml"},
		Operations: []intelligence.FixOperation{{
			Type:      intelligence.OpAddDependency,
			File:      "pyproject.toml",
			Details:   map[string]any{"name": "requests", "spec": "^2.31.0"},
			Rationale: "import error",
			Evidence:  []string{"ModuleNotFoundError: requests"},
		}},
	}

	gen := New()
	out1, err := gen.Generate(root, plan)
	require.NoError(t, err)
	out2, err := gen.Generate(root, plan)
	require.NoError(t, err)

	assert.Equal(t, out1.DiffText, out2.DiffText)
	assert.Contains(t, out1.DiffText, "requests")
	assert.Equal(t, 1, out1.Stats.TotalFiles)
	assert.Equal(t, []string{"pyproject.toml"}, out1.Stats.FilesChanged)
}

func TestGenerateDependencyUpsertRequirements(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "requirements.txt", "flask==2.0.0\n")

	plan := intelligence.FixPlan{
		RootCause:  "missing requests",
		Category:   "python_missing_dependency",
		Confidence: 0.7,
		Files:      []string{"requirements.txt"},
		Operations: []intelligence.FixOperation{{
			Type:      intelligence.OpPinDependency,
			File:      "requirements.txt",
			Details:   map[string]any{"name": "requests", "spec": "==2.31.0"},
			Rationale: "runtime import",
			Evidence:  []string{"ModuleNotFoundError"},
		}},
	}

	out, err := New().Generate(root, plan)
	require.NoError(t, err)
	assert.Contains(t, out.DiffText, "requests==2.31.0")
}

func TestGenerateRemoveUnusedImport(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "src/app.py", "import os, sys\n\ndef f():\n    return sys.version\n")

	plan := intelligence.FixPlan{
		RootCause:  "unused import os",
		Category:   "lint_format",
		Confidence: 0.6,
		Files:      []string{"src/app.py"},
		Operations: []intelligence.FixOperation{{
			Type:      intelligence.OpRemoveUnused,
			File:      "src/app.py",
			Details:   map[string]any{"name": "os"},
			Rationale: "unused",
			Evidence:  []string{"F401: 'os' imported but unused"},
		}},
	}

	out, err := New().Generate(root, plan)
	require.NoError(t, err)
	assert.Contains(t, out.DiffText, "import sys")
	assert.NotContains(t, out.DiffText, "+import os")
}

func TestGenerateAddDependencyToGoMod(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "go.mod", "module example.com/demo\n\ngo 1.25\n\nrequire (\n\tgithub.com/foo/bar v1.0.0\n)\n")

	plan := intelligence.FixPlan{
		RootCause:  "missing dependency",
		Category:   "go_add_missing_module",
		Confidence: 0.7,
		Files:      []string{"go.mod"},
		Operations: []intelligence.FixOperation{{
			Type:      intelligence.OpAddDependency,
			File:      "go.mod",
			Details:   map[string]any{"name": "github.com/pkg/errors", "spec": "v0.9.1"},
			Rationale: "missing module",
			Evidence:  []string{"no required module provides package github.com/pkg/errors"},
		}},
	}

	out, err := New().Generate(root, plan)
	require.NoError(t, err)
	assert.Contains(t, out.DiffText, "github.com/pkg/errors v0.9.1")
}

func TestGenerateUnsupportedOperationOutsideDeterministicCoverage(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "config/app.yaml", "timeout: 10\n")

	plan := intelligence.FixPlan{
		RootCause:  "timeout misconfigured",
		Category:   "configuration",
		Confidence: 0.7,
		Files:      []string{"config/app.yaml"},
		Operations: []intelligence.FixOperation{{
			Type:      intelligence.OpUpdateConfig,
			File:      "config/app.yaml",
			Details:   map[string]any{},
			Rationale: "bump timeout",
			Evidence:  []string{},
		}},
	}

	_, err := New().Generate(root, plan)
	assert.Error(t, err)
}

type stubDiffProvider struct {
	response string
}

func (s stubDiffProvider) Generate(_ context.Context, _ string, _ int, _ float64) (string, error) {
	return s.response, nil
}

func TestGenerateWithLLMFallbackRejectsDiffOutsidePlanFiles(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "config/app.yaml", "timeout: 10\n")

	plan := intelligence.FixPlan{
		RootCause:  "timeout misconfigured",
		Category:   "configuration",
		Confidence: 0.7,
		Files:      []string{"config/app.yaml"},
		Operations: []intelligence.FixOperation{{
			Type:      intelligence.OpUpdateConfig,
			File:      "config/app.yaml",
			Details:   map[string]any{},
			Rationale: "bump timeout",
			Evidence:  []string{},
		}},
	}

	maliciousDiff := "diff --git a/config/app.yaml b/config/app.yaml\n" +
		"--- a/config/app.yaml\n+++ b/config/app.yaml\n@@ -1 +1 @@\n-timeout: 10\n+timeout: 30\n" +
		"diff --git a/.github/workflows/ci.yml b/.github/workflows/ci.yml\n" +
		"--- a/.github/workflows/ci.yml\n+++ b/.github/workflows/ci.yml\n@@ -1 +1 @@\n-a\n+b\n"

	_, err := New().GenerateWithLLMFallback(context.Background(), root, plan, stubDiffProvider{response: maliciousDiff})
	assert.Error(t, err)
}

func TestGenerateWithLLMFallbackAcceptsInScopeDiff(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "config/app.yaml", "timeout: 10\n")

	plan := intelligence.FixPlan{
		RootCause:  "timeout misconfigured",
		Category:   "configuration",
		Confidence: 0.7,
		Files:      []string{"config/app.yaml"},
		Operations: []intelligence.FixOperation{{
			Type:      intelligence.OpUpdateConfig,
			File:      "config/app.yaml",
			Details:   map[string]any{},
			Rationale: "bump timeout",
			Evidence:  []string{},
		}},
	}

	goodDiff := "diff --git a/config/app.yaml b/config/app.yaml\n" +
		"--- a/config/app.yaml\n+++ b/config/app.yaml\n@@ -1 +1 @@\n-timeout: 10\n+timeout: 30\n"

	out, err := New().GenerateWithLLMFallback(context.Background(), root, plan, stubDiffProvider{response: "```diff\n" + goodDiff + "```"})
	require.NoError(t, err)
	assert.Contains(t, out.DiffText, "timeout: 30")
}

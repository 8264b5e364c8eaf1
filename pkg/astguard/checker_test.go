package astguard

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writePy(t *testing.T, root, rel, content string) {
	t.Helper()
	path := filepath.Join(root, rel)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func TestCheckPythonPassesWellFormedFile(t *testing.T) {
	root := t.TempDir()
	writePy(t, root, "app.py", "def f(a, b):\n    return [a, b]\n\n# a comment with ( unmatched paren\n")

	result := CheckPython(root, []string{"app.py"})
	assert.True(t, result.Passed)
	assert.Equal(t, []string{"app.py"}, result.CheckedFiles)
	assert.Empty(t, result.Issues)
}

func TestCheckPythonDetectsUnbalancedBracket(t *testing.T) {
	root := t.TempDir()
	writePy(t, root, "app.py", "def f(a, b):\n    return [a, b\n")

	result := CheckPython(root, []string{"app.py"})
	require.False(t, result.Passed)
	require.Len(t, result.Issues, 1)
	assert.Equal(t, "post_patch_parse", result.Issues[0].Phase)
}

func TestCheckPythonDetectsUnterminatedString(t *testing.T) {
	root := t.TempDir()
	writePy(t, root, "app.py", "message = \"hello\n")

	result := CheckPython(root, []string{"app.py"})
	require.False(t, result.Passed)
	assert.Contains(t, result.Issues[0].Message, "unterminated string literal")
}

func TestCheckPythonToleratesTripleQuotedDocstringsWithBrackets(t *testing.T) {
	root := t.TempDir()
	content := "def f():\n    \"\"\"Docstring with (parens) and [brackets].\"\"\"\n    return 1\n"
	writePy(t, root, "app.py", content)

	result := CheckPython(root, []string{"app.py"})
	assert.True(t, result.Passed)
}

func TestCheckPythonFlagsDisallowedConstruct(t *testing.T) {
	root := t.TempDir()
	writePy(t, root, "app.py", "import subprocess\n\ndef f():\n    subprocess.run(['ls'])\n")

	result := CheckPython(root, []string{"app.py"})
	require.False(t, result.Passed)
	assert.Contains(t, result.Issues[0].Message, "disallowed construct")
}

func TestCheckPythonIgnoresNonPythonFiles(t *testing.T) {
	root := t.TempDir()
	writePy(t, root, "README.md", "unbalanced ( paren")

	result := CheckPython(root, []string{"README.md"})
	assert.True(t, result.Passed)
	assert.Empty(t, result.CheckedFiles)
}

func TestCheckPythonDedupesAndSortsTouchedFiles(t *testing.T) {
	root := t.TempDir()
	writePy(t, root, "b.py", "x = 1\n")
	writePy(t, root, "a.py", "y = 2\n")

	result := CheckPython(root, []string{"b.py", "a.py", "b.py"})
	assert.Equal(t, []string{"a.py", "b.py"}, result.CheckedFiles)
}

func TestCheckPythonReportsReadFailure(t *testing.T) {
	root := t.TempDir()
	result := CheckPython(root, []string{"missing.py"})
	require.False(t, result.Passed)
	assert.Equal(t, "post_patch_read", result.Issues[0].Phase)
}

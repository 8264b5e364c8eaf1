package diffutil

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleDiff = `diff --git a/pyproject.toml b/pyproject.toml
index 111..222 100644
--- a/pyproject.toml
+++ b/pyproject.toml
@@ -10,3 +10,4 @@
 [tool.poetry.dependencies]
 python = "^3.11"
+requests = "^2.31.0"
\ No newline at end of file
diff --git a/.github/workflows/ci.yml b/.github/workflows/ci.yml
--- a/.github/workflows/ci.yml
+++ b/.github/workflows/ci.yml
@@ -1,2 +1,2 @@
-run: make test
+run: make test-fast
`

func TestParseCountsPerFile(t *testing.T) {
	parsed := Parse(sampleDiff)
	require.Equal(t, 2, parsed.TotalFiles)

	byPath := map[string]FileStat{}
	for _, f := range parsed.Files {
		byPath[f.Path] = f
	}

	pyproject := byPath["pyproject.toml"]
	assert.Equal(t, 1, pyproject.LinesAdded)
	assert.Equal(t, 0, pyproject.LinesRemoved)

	ci := byPath[".github/workflows/ci.yml"]
	assert.Equal(t, 1, ci.LinesAdded)
	assert.Equal(t, 1, ci.LinesRemoved)

	assert.Equal(t, 2, parsed.TotalLinesAdded)
	assert.Equal(t, 1, parsed.TotalLinesRemoved)
	assert.Equal(t, len(sampleDiff), parsed.DiffBytes)
}

func TestParseOrdersFilesLexicographically(t *testing.T) {
	parsed := Parse(sampleDiff)
	assert.Equal(t, ".github/workflows/ci.yml", parsed.Files[0].Path)
	assert.Equal(t, "pyproject.toml", parsed.Files[1].Path)
}

func TestNormalizePath(t *testing.T) {
	assert.Equal(t, "a/b/c.py", NormalizePath(`.\a\b\c.py`))
	assert.Equal(t, "a/b.py", NormalizePath("./a/b.py"))
	assert.Equal(t, "a/b.py", NormalizePath("a/b.py"))
}

func TestParseIgnoresNoNewlineMarker(t *testing.T) {
	diff := "diff --git a/x.txt b/x.txt\n--- a/x.txt\n+++ b/x.txt\n@@ -1 +1 @@\n-old\n+new\n\\ No newline at end of file\n"
	parsed := Parse(diff)
	require.Len(t, parsed.Files, 1)
	assert.Equal(t, 1, parsed.Files[0].LinesAdded)
	assert.Equal(t, 1, parsed.Files[0].LinesRemoved)
}

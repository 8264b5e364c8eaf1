package logparser

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildRecognizesPythonTraceback(t *testing.T) {
	log := "running tests\n" +
		"Traceback (most recent call last):\n" +
		`  File "app/main.py", line 12, in run` + "\n" +
		"    do_thing()\n" +
		"ModuleNotFoundError: No module named 'requests'\n"

	bundle := Build(log, 0, Metadata{EventID: "e1", Repo: "r"})
	require.Len(t, bundle.StackTraces, 1)
	assert.Equal(t, "python", bundle.StackTraces[0].Kind)
	assert.Equal(t, "ModuleNotFoundError: No module named 'requests'", bundle.StackTraces[0].Header)
	require.Len(t, bundle.Errors, 1)
	assert.Equal(t, "python_exception", bundle.Errors[0].Kind)
}

func TestBuildRecognizesGoPanic(t *testing.T) {
	log := "panic: runtime error: index out of range [3] with length 2\n\n" +
		"goroutine 1 [running]:\n" +
		"main.main()\n" +
		"\t/app/main.go:10 +0x1b\n"

	bundle := Build(log, 0, Metadata{})
	require.Len(t, bundle.StackTraces, 1)
	assert.Equal(t, "go", bundle.StackTraces[0].Kind)
	require.Len(t, bundle.StackTraces[0].Frames, 1)
	assert.Equal(t, "/app/main.go:10", bundle.StackTraces[0].Frames[0].Location)
}

func TestBuildRecognizesPytestFailure(t *testing.T) {
	log := "FAILED tests/test_x.py::test_add - AssertionError: assert 1 == 2\n"
	bundle := Build(log, 0, Metadata{})
	require.Len(t, bundle.TestFailures, 1)
	assert.Equal(t, "tests/test_x.py::test_add", bundle.TestFailures[0].TestName)
}

func TestBuildRecognizesGCCDiagnostic(t *testing.T) {
	log := "src/main.c:42:9: error: expected ';' before '}' token\n"
	bundle := Build(log, 0, Metadata{})
	require.Len(t, bundle.BuildErrors, 1)
	assert.Equal(t, "src/main.c", bundle.BuildErrors[0].File)
	assert.Equal(t, 42, bundle.BuildErrors[0].Line)
	assert.Equal(t, "error", bundle.BuildErrors[0].Level)
}

func TestBuildRecognizesJavaException(t *testing.T) {
	log := "Exception in thread \"main\" java.lang.NullPointerException: x is null\n" +
		"\tat com.example.App.main(App.java:20)\n"
	bundle := Build(log, 0, Metadata{})
	require.Len(t, bundle.StackTraces, 1)
	assert.Equal(t, "java", bundle.StackTraces[0].Kind)
	require.Len(t, bundle.StackTraces[0].Frames, 1)
}

func TestBuildTruncatesTailPreserved(t *testing.T) {
	log := "AAAAAAAAAA\nBBBBBBBBBB\n"
	bundle := Build(log, 10, Metadata{})
	assert.True(t, bundle.Truncated)
}

func TestBuildSummaryCapsAtN(t *testing.T) {
	log := ""
	for i := 0; i < 30; i++ {
		log += "FAILED tests/test_x.py::test_n - boom\n"
	}
	bundle := Build(log, 0, Metadata{})
	assert.LessOrEqual(t, len(bundle.TestFailures), 30)
	summaryLines := len(splitNonEmpty(bundle.LogSummary))
	assert.LessOrEqual(t, summaryLines, summaryLineCount)
}

func splitNonEmpty(s string) []string {
	var out []string
	cur := ""
	for _, r := range s {
		if r == '\n' {
			out = append(out, cur)
			cur = ""
			continue
		}
		cur += string(r)
	}
	if cur != "" {
		out = append(out, cur)
	}
	return out
}

package redact

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTextRedactsSecretAssignment(t *testing.T) {
	r := New(DefaultPatterns())
	out := r.Text(`password = "hunter2"`)
	assert.Equal(t, "[REDACTED]", out)
}

func TestTextRedactsGithubToken(t *testing.T) {
	r := New(DefaultPatterns())
	out := r.Text("token is ghp_" + stringsRepeat("a", 36) + " end")
	assert.NotContains(t, out, "ghp_")
	assert.Contains(t, out, "[REDACTED]")
}

func TestTextRedactsURLQueryToken(t *testing.T) {
	r := New(nil)
	out := r.Text("https://example.com/callback?token=abc123&other=1")
	assert.Equal(t, "https://example.com/callback?token=[REDACTED]&other=1", out)
}

func TestTextRedactsAuthHeader(t *testing.T) {
	r := New(nil)
	out := r.Text("Authorization: Bearer sometoken")
	assert.Equal(t, "Authorization [REDACTED]", out)
}

func TestIdempotence(t *testing.T) {
	r := New(DefaultPatterns())
	inputs := []string{
		`password = "hunter2"`,
		"https://x/y?token=abc",
		"plain text with no secrets",
	}
	for _, in := range inputs {
		once := r.Text(in)
		twice := r.Text(once)
		assert.Equal(t, once, twice, "redaction must be idempotent for %q", in)
	}
}

func TestAnyRecursesThroughMapsAndSlices(t *testing.T) {
	r := New(DefaultPatterns())
	in := map[string]any{
		"msg":   `password = "hunter2"`,
		"count": 3,
		"items": []any{"safe", `secret = "xyz"`},
	}
	out := r.Any(in).(map[string]any)
	require.Equal(t, "[REDACTED]", out["msg"])
	assert.Equal(t, 3, out["count"])
	items := out["items"].([]any)
	assert.Equal(t, "safe", items[0])
	assert.Equal(t, "[REDACTED]", items[1])
}

func stringsRepeat(s string, n int) string {
	out := make([]byte, 0, len(s)*n)
	for i := 0; i < n; i++ {
		out = append(out, s...)
	}
	return string(out)
}

// Package redact applies regex-based secret redaction to any value reachable
// from a pipeline output before it crosses an external boundary (API
// response, artifact, log line). Grounded in the teacher's pkg/masking
// (compiled-pattern-table service), simplified to the spec's fixed,
// policy-driven regex set — structural/code-aware maskers are not part of
// this domain (no Kubernetes Secret manifests flow through a CI/CD fix
// pipeline), so only the regex layer survives the transform.
package redact

import (
	"fmt"
	"log/slog"
	"regexp"
)

const replacement = "[REDACTED]"

// CompiledPattern holds a pre-compiled regex with a human label, used for
// reporting which rule fired (e.g. in tests and metrics) without re-deriving
// it from the regex source.
type CompiledPattern struct {
	Name  string
	Regex *regexp.Regexp
}

// Redactor applies a fixed, compiled regex set to strings and structured
// values. It is immutable after construction and safe for concurrent use.
type Redactor struct {
	patterns          []CompiledPattern
	urlTokenPattern   *regexp.Regexp
	headerTokenPattern *regexp.Regexp
}

// DefaultPatterns is the spec §4.13 regex set: password/api_key/secret/token
// assignments, GitHub PATs, Anthropic/OpenAI-style secret keys, PEM private
// keys. Additional patterns can be supplied via a SafetyPolicy's
// secrets.forbidden_patterns (see pkg/policy) and passed to New alongside
// these.
func DefaultPatterns() []string {
	return []string{
		`(?i)password\s*[=:]\s*['"][^'"]+['"]`,
		`(?i)api[_-]?key\s*[=:]\s*['"][^'"]+['"]`,
		`(?i)secret\s*[=:]\s*['"][^'"]+['"]`,
		`(?i)token\s*[=:]\s*['"][^'"]+['"]`,
		`(?i)aws_access_key_id\s*[=:]`,
		`(?i)aws_secret_access_key\s*[=:]`,
		`ghp_[A-Za-z0-9]{36}`,
		`sk-[A-Za-z0-9]{20,}`,
		`-----BEGIN\s+(RSA\s+)?PRIVATE\s+KEY-----`,
	}
}

// New compiles the given regex patterns (names default to "pattern_N" for
// patterns supplied as bare strings) plus the always-on URL-query-token and
// Authorization-header rules. Invalid patterns are logged and skipped,
// mirroring the teacher's compileBuiltinPatterns behavior.
func New(patterns []string) *Redactor {
	r := &Redactor{
		urlTokenPattern:    regexp.MustCompile(`(?i)\b(access_token|token|auth|authorization|signature|sig|key)=([^&\s]+)`),
		headerTokenPattern: regexp.MustCompile(`(?i)\b(authorization|x-api-key|x-auth-token):\s*(?:(?:bearer|basic|token)\s+)?\S+`),
	}
	for i, p := range patterns {
		compiled, err := regexp.Compile(p)
		if err != nil {
			slog.Error("redact: skipping invalid pattern", "pattern", p, "error", err)
			continue
		}
		r.patterns = append(r.patterns, CompiledPattern{Name: fmt.Sprintf("pattern_%d", i), Regex: compiled})
	}
	return r
}

// Text redacts secrets from a single string.
func (r *Redactor) Text(value string) string {
	out := r.urlTokenPattern.ReplaceAllString(value, "$1="+replacement)
	out = r.headerTokenPattern.ReplaceAllString(out, "$1 "+replacement)
	for _, p := range r.patterns {
		out = p.Regex.ReplaceAllString(out, replacement)
	}
	return out
}

// Any recursively redacts strings found anywhere in a JSON-shaped value
// (string, []any, map[string]any, or a struct already decoded to one of
// those via encoding/json). Non-string scalars pass through unchanged.
func (r *Redactor) Any(v any) any {
	switch x := v.(type) {
	case nil:
		return nil
	case string:
		return r.Text(x)
	case []any:
		out := make([]any, len(x))
		for i, item := range x {
			out[i] = r.Any(item)
		}
		return out
	case map[string]any:
		out := make(map[string]any, len(x))
		for k, item := range x {
			out[k] = r.Any(item)
		}
		return out
	default:
		return v
	}
}

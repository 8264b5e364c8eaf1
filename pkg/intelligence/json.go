package intelligence

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

// extractFirstJSONObject strips a leading/trailing markdown code fence (with
// or without a "json" language tag) and returns the substring between the
// first "{" and the last "}". If no braces are found, the trimmed input is
// returned as-is so the caller's JSON decode fails with a useful error.
func extractFirstJSONObject(raw string) string {
	text := strings.TrimSpace(raw)
	if strings.HasPrefix(text, "```") {
		text = strings.Trim(text, "`")
		text = strings.TrimPrefix(text, "json")
		text = strings.TrimSpace(text)
	}
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start == -1 || end == -1 || end <= start {
		return text
	}
	return text[start : end+1]
}

// decodeStrict JSON-decodes jsonText into v, rejecting any field not present
// in v's schema, per spec §4.6 "extra/unknown JSON fields are rejected".
func decodeStrict(jsonText string, v any) error {
	dec := json.NewDecoder(bytes.NewReader([]byte(jsonText)))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("decode: %w", err)
	}
	if dec.More() {
		return fmt.Errorf("decode: trailing data after JSON object")
	}
	return nil
}

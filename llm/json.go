package llm

import "strings"

// ExtractJSONArray locates the first bracketed array substring in
// free-form model output. The service tends to wrap JSON in prose;
// this is the best-effort first stage of response parsing, and callers
// follow it with strict per-record validation. Returns "" when no
// array-shaped substring exists.
func ExtractJSONArray(text string) string {
	start := strings.Index(text, "[")
	if start < 0 {
		return ""
	}
	end := strings.LastIndex(text, "]")
	if end < start {
		return ""
	}
	return text[start : end+1]
}

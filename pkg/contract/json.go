// Package contract recovers JSON from oracle output and escalates prompts
// until the output satisfies a stage's schema.
package contract

import (
	"encoding/json"
	"strings"
)

// ExtractJSON recovers a JSON object from text. It returns nil when no
// object can be recovered.
//
// Tiers, in order: the whole text, the span from the first '{' to the last
// '}', and that span with raw CR/LF inside string literals escaped.
func ExtractJSON(text string) map[string]any {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}
	if obj := parseObject(text); obj != nil {
		return obj
	}

	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start < 0 || end <= start {
		return nil
	}
	span := text[start : end+1]
	if obj := parseObject(span); obj != nil {
		return obj
	}
	return parseObject(escapeNewlinesInStrings(span))
}

func parseObject(s string) map[string]any {
	var obj map[string]any
	if err := json.Unmarshal([]byte(s), &obj); err != nil {
		return nil
	}
	return obj
}

// escapeNewlinesInStrings replaces raw CR and LF inside double-quoted
// strings with their escape sequences. Backslash escapes are honoured.
func escapeNewlinesInStrings(s string) string {
	var sb strings.Builder
	sb.Grow(len(s) + 16)
	inString := false
	escaped := false
	for _, r := range s {
		switch {
		case escaped:
			escaped = false
			sb.WriteRune(r)
		case r == '\\' && inString:
			escaped = true
			sb.WriteRune(r)
		case r == '"':
			inString = !inString
			sb.WriteRune(r)
		case inString && r == '\n':
			sb.WriteString(`\n`)
		case inString && r == '\r':
			sb.WriteString(`\r`)
		default:
			sb.WriteRune(r)
		}
	}
	return sb.String()
}

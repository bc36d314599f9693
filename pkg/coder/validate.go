package coder

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"
)

var (
	fenceOpen = regexp.MustCompile("^```[A-Za-z0-9_+.-]*[ \t]*\n")
	envLine   = regexp.MustCompile(`^(export\s+)?[A-Za-z_][A-Za-z0-9_.]*\s*=.*$`)
	hunkGate  = regexp.MustCompile(`@@ -\d+,\d+ \+\d+,\d+ @@`)
)

// StripFences removes a markdown code fence wrapped around text.
func StripFences(text string) string {
	t := strings.TrimSpace(text)
	if !strings.HasPrefix(t, "```") {
		return text
	}
	loc := fenceOpen.FindStringIndex(t)
	if loc == nil {
		return strings.Trim(t, "`")
	}
	body := t[loc[1]:]
	if i := strings.LastIndex(body, "```"); i >= 0 {
		body = body[:i]
	}
	return strings.TrimRight(body, " \t\n")
}

// Validate checks content against the syntax of format f.
func Validate(f Format, content string) error {
	switch f {
	case FormatJSON:
		if !json.Valid([]byte(content)) {
			return fmt.Errorf("%w: not valid JSON", ErrInvalidFormat)
		}
	case FormatYAML:
		var v any
		if err := yaml.Unmarshal([]byte(content), &v); err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidFormat, err)
		}
	case FormatEnv:
		for n, line := range strings.Split(content, "\n") {
			l := strings.TrimSpace(line)
			if l == "" || strings.HasPrefix(l, "#") || envLine.MatchString(l) {
				continue
			}
			return fmt.Errorf("%w: line %d is not KEY=VALUE", ErrInvalidFormat, n+1)
		}
	}
	return nil
}

// ValidDiff reports whether diff carries a unified hunk header.
func ValidDiff(diff string) bool {
	return hunkGate.MatchString(diff)
}

// NormalizeDiff rewrites the file headers of diff to a/<path> and b/<path>,
// adding them when missing, and guarantees a trailing newline.
func NormalizeDiff(path, diff string) string {
	path = strings.TrimPrefix(strings.ReplaceAll(path, "\\", "/"), "./")
	lines := strings.Split(strings.TrimRight(diff, "\n"), "\n")
	sawHeader := false
	for i := 0; i+1 < len(lines); i++ {
		if strings.HasPrefix(lines[i], "--- ") && strings.HasPrefix(lines[i+1], "+++ ") {
			lines[i] = "--- a/" + path
			lines[i+1] = "+++ b/" + path
			sawHeader = true
			i++
		}
	}
	if !sawHeader {
		start := 0
		for start < len(lines) && !strings.HasPrefix(lines[start], "@@") {
			start++
		}
		lines = append([]string{"--- a/" + path, "+++ b/" + path}, lines[start:]...)
	}
	return strings.Join(lines, "\n") + "\n"
}

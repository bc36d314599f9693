package coder

import (
	"fmt"
	"path"
	"regexp"
	"strconv"
	"strings"

	"agentflow/pkg/tools"
)

// toolPhrases are stripped from goals so the coder does not mistake a tool
// name for something to write. Dotted forms come first.
var toolPhrases = []string{
	" writing with safe_write.", " using safe_write.", " with safe_write.", " via safe_write.",
	" with write_file.", " using write_file.",
	" writing with safe_write", " using safe_write", " with safe_write", " via safe_write",
	" with write_file", " using write_file",
}

// SanitizeGoal removes the first tool reference phrase found in goal.
func SanitizeGoal(goal string) string {
	for _, p := range toolPhrases {
		if strings.Contains(goal, p) {
			return strings.TrimSpace(strings.Replace(goal, p, "", -1))
		}
	}
	return goal
}

const removalHint = "CRITICAL: This goal requires REMOVAL. You MUST remove the specified element(s) from the file. Do NOT add them."

var removalWords = []string{"remove", "delete", "eliminate", "drop"}

// RemovalHint returns the removal instruction when goal asks to take
// something out, or "".
func RemovalHint(goal string) string {
	lower := strings.ToLower(goal)
	for _, w := range removalWords {
		if strings.Contains(lower, w) {
			return removalHint
		}
	}
	return ""
}

// ErrorHint locates the failing frame of a Python traceback.
type ErrorHint struct {
	File     string `json:"error_file"`
	Function string `json:"error_function"`
	Expr     string `json:"error_expr,omitempty"`
	Line     int    `json:"error_line"`
}

var tracebackFrame = regexp.MustCompile(`File "([^"]+)", line (\d+), in ([^\n]+)`)

// ErrorHintFrom scans tool results, newest first, for an error_log.txt read
// that contains a traceback frame.
func ErrorHintFrom(results []tools.Result) *ErrorHint {
	for i := len(results) - 1; i >= 0; i-- {
		r := results[i]
		if !strings.HasSuffix(r.String("path"), "error_log.txt") {
			continue
		}
		content := r.String("content")
		if strings.TrimSpace(content) == "" {
			continue
		}
		m := tracebackFrame.FindStringSubmatch(content)
		if m == nil {
			continue
		}
		line, _ := strconv.Atoi(m[2])
		hint := &ErrorHint{File: m[1], Line: line, Function: strings.TrimSpace(m[3])}
		needle := fmt.Sprintf(`File "%s", line %s`, m[1], m[2])
		lines := strings.Split(strings.ReplaceAll(content, "\r\n", "\n"), "\n")
		for i, l := range lines {
			if strings.Contains(l, needle) && i+1 < len(lines) {
				hint.Expr = strings.TrimSpace(lines[i+1])
				break
			}
		}
		return hint
	}
	return nil
}

// Format is the content flavour of a target file.
type Format int

const (
	FormatText Format = iota
	FormatEnv
	FormatYAML
	FormatJSON
)

// FormatOf classifies p by extension.
func FormatOf(p string) Format {
	lower := strings.ToLower(p)
	switch {
	case strings.HasSuffix(lower, ".env") || path.Base(lower) == ".env":
		return FormatEnv
	case strings.HasSuffix(lower, ".yaml"), strings.HasSuffix(lower, ".yml"):
		return FormatYAML
	case strings.HasSuffix(lower, ".json"):
		return FormatJSON
	}
	return FormatText
}

func (f Format) String() string {
	switch f {
	case FormatEnv:
		return "env"
	case FormatYAML:
		return "yaml"
	case FormatJSON:
		return "json"
	}
	return "text"
}

// FormatInstruction describes the expected layout of the file at p.
func FormatInstruction(p string) string {
	switch FormatOf(p) {
	case FormatEnv:
		return "Environment file: one KEY=VALUE per line. Lines starting with # are comments."
	case FormatYAML:
		return "Valid YAML with 2-space indentation per level and key: value pairs."
	case FormatJSON:
		return "Valid JSON. Preserve every key the goal does not mention."
	}
	switch strings.ToLower(path.Ext(p)) {
	case ".py":
		return "Valid Python 3 source. Keep the existing imports and PEP 8 layout."
	case ".ini", ".cfg":
		return "INI layout: [section] headers followed by key = value lines."
	case ".toml":
		return "Valid TOML."
	case ".md":
		return "Markdown."
	}
	return "Plain text in the file's existing style."
}

func strictContentInstruction(f Format) string {
	switch f {
	case FormatEnv:
		return "STRICT: Output ONLY the full .env file content. One KEY=VALUE per line. No commentary, no code fences, no markdown."
	case FormatYAML:
		return "STRICT: Output ONLY the full YAML file content. Valid YAML, 2-space indentation per level, key: value format. No commentary, no code fences, no markdown."
	case FormatJSON:
		return "STRICT: Output ONLY the full JSON file content. Valid JSON, preserve all keys not in the goal, change only the key(s) requested. No commentary, no code fences, no markdown."
	}
	return "STRICT: Output ONLY the full file content. Respect format_instruction. No commentary, no code fences."
}

// Package coder synthesizes the payload of every mutating tool call: unified
// diffs, full file contents and literal replacements.
package coder

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"agentflow/pkg/config"
	"agentflow/pkg/contract"
	"agentflow/pkg/event"
	"agentflow/pkg/logx"
	"agentflow/pkg/stage"
	"agentflow/pkg/templates"
	"agentflow/pkg/tools"
)

var (
	// ErrEmptyContent is returned when both attempts produced no content.
	ErrEmptyContent = errors.New("coder produced empty content")
	// ErrInvalidFormat is returned when content fails its format check twice.
	ErrInvalidFormat = errors.New("coder produced content in an invalid format")
	// ErrInvalidDiff is returned when no attempt produced a unified diff.
	ErrInvalidDiff = errors.New("coder produced an invalid diff")
	// ErrInvalidReplace is returned when no attempt produced a usable old/new pair.
	ErrInvalidReplace = errors.New("coder produced no valid old/new pair")
)

// Request describes one payload to synthesize.
type Request struct {
	// Tool is used for attempt labels only.
	Tool string
	Goal string
	Path string
	// Current is the file content before the change, "" for new files.
	Current string
	// Evidence is the run's tool results, searched for a traceback hint.
	Evidence []tools.Result
}

type payload struct {
	ErrorHint         *ErrorHint `json:"error_hint,omitempty"`
	Goal              string     `json:"goal"`
	Path              string     `json:"path"`
	FileContent       string     `json:"file_content"`
	FormatInstruction string     `json:"format_instruction,omitempty"`
	Intent            string     `json:"intent,omitempty"`
	Instruction       string     `json:"instruction,omitempty"`
	Template          string     `json:"template,omitempty"`
	RemovalHint       string     `json:"removal_hint,omitempty"`
}

func (p payload) encode() string {
	b, err := json.Marshal(p)
	if err != nil {
		return p.Goal
	}
	return string(b)
}

// Coder calls the coder and debugger stages.
type Coder struct {
	inv    contract.Invoker
	sink   event.Sink
	logger *logx.Logger
}

// New creates a coder that reports raw output and attempts on sink.
func New(inv contract.Invoker, sink event.Sink) *Coder {
	if sink == nil {
		sink = event.Discard
	}
	return &Coder{inv: inv, sink: sink, logger: logx.NewLogger("coder")}
}

// attempt runs one coder call and reports it.
func (c *Coder) attempt(ctx context.Context, system string, p payload, tool string, n int) (string, error) {
	raw, err := c.inv.Invoke(ctx, config.StageCoder, stage.Messages(system, p.encode()))
	if err != nil {
		return "", fmt.Errorf("coder %s: %w", tool, err)
	}
	c.sink.Emit(event.KindCoderRaw, raw)
	c.sink.Emit(event.KindAttempt, fmt.Sprintf("coder:%s:%d", tool, n))
	return raw, nil
}

func basePayload(req Request) payload {
	return payload{
		Goal:              SanitizeGoal(req.Goal),
		Path:              req.Path,
		FileContent:       req.Current,
		FormatInstruction: FormatInstruction(req.Path),
		RemovalHint:       RemovalHint(req.Goal),
	}
}

func diffTemplate(path string) string {
	return "--- a/" + path + "\n" +
		"+++ b/" + path + "\n" +
		"@@ -1,3 +1,4 @@\n" +
		" line one\n" +
		" line two\n" +
		"+line two and a half\n" +
		" line three\n"
}

// Diff produces a unified diff for apply_patch_unified.
func (c *Coder) Diff(ctx context.Context, req Request) (string, error) {
	p := basePayload(req)
	p.Intent = "Produce a unified diff for the requested change."
	p.Instruction = "Produce a unified diff that applies the requested change to the target file. " +
		"Use the provided file_content as the exact current content. Follow format_instruction for the file type."
	p.Template = diffTemplate(req.Path)
	system := templates.Must(templates.CoderDiff, nil)

	for n := 1; n <= 2; n++ {
		if n == 2 {
			p.Instruction = "STRICT: Output ONLY a unified diff. Include file headers and a hunk header."
		}
		raw, err := c.attempt(ctx, system, p, toolOr(req.Tool, tools.ApplyPatchUnified), n)
		if err != nil {
			return "", err
		}
		diff := StripFences(raw)
		if diff != "" && ValidDiff(diff) {
			return NormalizeDiff(req.Path, diff), nil
		}
		c.logger.Debug("diff attempt %d for %s has no hunk header", n, req.Path)
	}
	return "", ErrInvalidDiff
}

func contentSystem(f Format) string {
	switch f {
	case FormatEnv:
		return templates.Must(templates.CoderEnv, nil)
	case FormatYAML:
		return templates.Must(templates.CoderYAML, nil)
	case FormatJSON:
		return templates.Must(templates.CoderJSON, nil)
	}
	return templates.Must(templates.CoderContent, nil)
}

// Content produces the full new content of req.Path for safe_write and
// write_file. The system prompt and the validation follow the file format.
func (c *Coder) Content(ctx context.Context, req Request) (string, error) {
	format := FormatOf(req.Path)
	p := basePayload(req)
	p.ErrorHint = ErrorHintFrom(req.Evidence)
	system := contentSystem(format)

	var lastErr error
	for n := 1; n <= 2; n++ {
		if n == 2 {
			p.Instruction = strictContentInstruction(format)
		}
		raw, err := c.attempt(ctx, system, p, toolOr(req.Tool, tools.SafeWrite), n)
		if err != nil {
			return "", err
		}
		content := StripFences(raw)
		if strings.TrimSpace(content) == "" {
			lastErr = ErrEmptyContent
			continue
		}
		if err := Validate(format, content); err != nil {
			c.logger.Debug("%s content attempt %d rejected: %v", format, n, err)
			lastErr = err
			continue
		}
		return withNewline(content), nil
	}
	return "", lastErr
}

// Replace produces the old and new text for replace_text. old is always an
// exact substring of req.Current.
func (c *Coder) Replace(ctx context.Context, req Request) (string, string, error) {
	p := basePayload(req)
	p.ErrorHint = ErrorHintFrom(req.Evidence)
	p.Intent = "Produce old/new for replace_text. Use file_content and goal to determine exact text to replace and replacement."
	p.Instruction = `Output JSON: {"old": "exact substring from file_content to replace", "new": "replacement"}. Match file_content exactly for old.`
	system := templates.Must(templates.CoderReplace, nil)

	for n := 1; n <= 2; n++ {
		if n == 2 {
			p.Instruction = `STRICT: Output ONLY valid JSON: {"old": "...", "new": "..."}. No markdown, no commentary.`
		}
		raw, err := c.attempt(ctx, system, p, toolOr(req.Tool, tools.ReplaceText), n)
		if err != nil {
			return "", "", err
		}
		obj := contract.ExtractJSON(raw)
		oldText, _ := obj["old"].(string)
		newText, _ := obj["new"].(string)
		if oldText != "" && newText != "" && strings.Contains(req.Current, oldText) {
			return oldText, newText, nil
		}
		c.logger.Debug("replace attempt %d for %s unusable", n, req.Path)
	}
	return "", "", ErrInvalidReplace
}

type debugPayload struct {
	Path         string `json:"path"`
	FileContent  string `json:"file_content"`
	ErrorMessage string `json:"error_message"`
}

// Debug asks the debugger stage for a corrected version of content given
// type-checker output. The result has code fences removed.
func (c *Coder) Debug(ctx context.Context, path, content, errorMessage string) (string, error) {
	b, err := json.Marshal(debugPayload{Path: path, FileContent: content, ErrorMessage: errorMessage})
	if err != nil {
		return "", err
	}
	raw, err := c.inv.Invoke(ctx, config.StageDebugger, stage.Messages(templates.Must(templates.Debugger, nil), string(b)))
	if err != nil {
		return "", fmt.Errorf("debugger: %w", err)
	}
	c.sink.Emit(event.KindCoderRaw, raw)
	fixed := StripFences(raw)
	if strings.TrimSpace(fixed) == "" {
		return "", nil
	}
	return withNewline(fixed), nil
}

func withNewline(s string) string {
	if strings.HasSuffix(s, "\n") {
		return s
	}
	return s + "\n"
}

func toolOr(name, def string) string {
	if name == "" {
		return def
	}
	return name
}

package executor

import (
	"context"
	"fmt"

	"agentflow/pkg/coder"
	"agentflow/pkg/tools"
)

// evidenceWindow bounds how many recent results feed the coder's error hint.
const evidenceWindow = 10

func (r *run) evidence() []tools.Result {
	entries := r.shared.Entries()
	if len(entries) > evidenceWindow {
		entries = entries[len(entries)-evidenceWindow:]
	}
	out := make([]tools.Result, len(entries))
	for i, e := range entries {
		out[i] = e.Result
	}
	return out
}

// current reads the file the coder will rewrite. Missing files read as "".
func (r *run) current(ctx context.Context, path string) string {
	res := r.e.registry.Dispatch(ctx, tools.ReadFile, map[string]any{"path": path})
	if !res.OK() {
		return ""
	}
	return res.String("content")
}

// synthesizeContent builds the call for a content tool. The path always
// comes from analysis and the payload always from the coder.
func (r *run) synthesizeContent(ctx context.Context, step PlanStep, path string) (ToolCall, error) {
	req := coder.Request{
		Tool:     step.Tool,
		Goal:     step.Goal,
		Path:     path,
		Evidence: r.evidence(),
	}
	switch step.Tool {
	case tools.ApplyWritePreview:
		return r.bridgePreview(ctx, step, req)
	case tools.ApplyPatchUnified:
		req.Current = r.current(ctx, path)
		diff, err := r.e.coder.Diff(ctx, req)
		if err != nil {
			return ToolCall{}, err
		}
		return ToolCall{Tool: step.Tool, Args: map[string]any{"path": path, "diff": diff}}, nil
	case tools.ReplaceText:
		req.Current = r.current(ctx, path)
		old, repl, err := r.e.coder.Replace(ctx, req)
		if err != nil {
			return ToolCall{}, err
		}
		return ToolCall{Tool: step.Tool, Args: map[string]any{"path": path, "old": old, "new": repl}}, nil
	}

	req.Current = r.current(ctx, path)
	content, err := r.e.coder.Content(ctx, req)
	if err != nil {
		return ToolCall{}, err
	}
	args := map[string]any{"path": path, "content": content}
	if step.Tool == tools.SafeWrite {
		args["dry_run"] = false
	}
	return ToolCall{Tool: step.Tool, Args: args}, nil
}

// bridgePreview applies the latest preview_write of path. Without a
// recorded hash a fresh preview is dispatched and recorded first.
func (r *run) bridgePreview(ctx context.Context, step PlanStep, req coder.Request) (ToolCall, error) {
	prev, ok := r.shared.LatestPreview(req.Path)
	content := prev.Content
	if !ok || content == "" {
		req.Current = r.current(ctx, req.Path)
		var err error
		if content, err = r.e.coder.Content(ctx, req); err != nil {
			return ToolCall{}, err
		}
	}

	hash := prev.Hash
	if !ok || hash == "" {
		res := r.dispatch(ctx, step, ToolCall{Tool: tools.PreviewWrite, Args: map[string]any{"path": req.Path, "content": content}})
		if !res.OK() {
			return ToolCall{}, fmt.Errorf("%w: %s: %s", ErrNoPreview, req.Path, res.Error())
		}
		hash = res.String("old_hash")
	}
	return ToolCall{Tool: tools.ApplyWritePreview, Args: map[string]any{
		"path":              req.Path,
		"content":           content,
		"expected_old_hash": hash,
	}}, nil
}

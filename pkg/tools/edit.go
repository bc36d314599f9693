package tools

import (
	"context"
	"io/fs"
	"os"
	"regexp"
	"strings"

	"agentflow/pkg/utils"
)

func (b *Toolbox) replaceText(_ context.Context, args map[string]any) Result {
	path := utils.StringArg(args, "path")
	old := utils.StringArg(args, "old")
	if path == "" || old == "" {
		return Failuref("path and old are required")
	}
	repl := utils.StringArg(args, "new")
	count := utils.IntArg(args, "count", -1)
	target := b.resolve(path)

	data, err := os.ReadFile(target)
	if err != nil {
		return Failure(err)
	}
	updated, n, err := replace(string(data), old, repl, count, utils.BoolArg(args, "regex", false))
	if err != nil {
		return Failure(err)
	}
	if n > 0 {
		if err := os.WriteFile(target, []byte(updated), 0o644); err != nil {
			return Failure(err)
		}
	}
	return Success(map[string]any{"path": path, "replacements": n})
}

// replace substitutes old with repl at most count times (all when count < 1)
// and returns the number of substitutions actually made.
func replace(data, old, repl string, count int, useRegex bool) (string, int, error) {
	if !useRegex {
		n := strings.Count(data, old)
		if count > 0 && n > count {
			n = count
		}
		if count < 1 {
			count = -1
		}
		return strings.Replace(data, old, repl, count), n, nil
	}

	rx, err := regexp.Compile(old)
	if err != nil {
		return "", 0, err
	}
	n := 0
	out := rx.ReplaceAllStringFunc(data, func(m string) string {
		if count > 0 && n >= count {
			return m
		}
		n++
		return rx.ReplaceAllString(m, repl)
	})
	return out, n, nil
}

func (b *Toolbox) replaceInRepo(_ context.Context, args map[string]any) Result {
	root := utils.StringArg(args, "root")
	if root == "" {
		root = "."
	}
	old := utils.StringArg(args, "old")
	if old == "" {
		return Failuref("old is required")
	}
	repl := utils.StringArg(args, "new")
	maxFiles := utils.IntArg(args, "max_files", 200)
	useRegex := utils.BoolArg(args, "regex", false)
	dryRun := utils.BoolArg(args, "dry_run", false)
	if useRegex {
		if _, err := regexp.Compile(old); err != nil {
			return Failure(err)
		}
	}

	changed := []map[string]any{}
	truncated := false
	var writeErr error
	err := walkFiles(b.resolve(root), func(path string) error {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil
		}
		updated, n, _ := replace(string(data), old, repl, -1, useRegex)
		if n == 0 {
			return nil
		}
		changed = append(changed, map[string]any{"path": b.display(path), "replacements": n})
		if !dryRun {
			if err := os.WriteFile(path, []byte(updated), 0o644); err != nil {
				writeErr = err
				return err
			}
		}
		if len(changed) >= maxFiles {
			truncated = true
			return fs.SkipAll
		}
		return nil
	})
	if writeErr != nil {
		return Failure(writeErr)
	}
	if err != nil {
		return Failure(err)
	}
	return Success(map[string]any{
		"root":          root,
		"dry_run":       dryRun,
		"files_touched": len(changed),
		"changed":       changed,
		"truncated":     truncated,
	})
}

func (b *Toolbox) insertText(_ context.Context, args map[string]any) Result {
	path := utils.StringArg(args, "path")
	if path == "" {
		return Failuref("path is required")
	}
	lineNo := utils.IntArg(args, "line_no", 1)
	if lineNo < 1 {
		return Failuref("line_no must be >= 1")
	}
	text := utils.StringArg(args, "text")
	position := utils.StringArg(args, "position")
	if position == "" {
		position = "before"
	}
	target := b.resolve(path)

	data, err := os.ReadFile(target)
	if err != nil {
		return Failure(err)
	}
	lines := strings.SplitAfter(string(data), "\n")
	if len(lines) > 0 && lines[len(lines)-1] == "" {
		lines = lines[:len(lines)-1]
	}

	idx := min(lineNo-1, len(lines))
	if position == "after" {
		idx = min(idx+1, len(lines))
	}
	indent := ""
	if len(lines) > 0 {
		ref := lines[min(lineNo-1, len(lines)-1)]
		indent = ref[:len(ref)-len(strings.TrimLeft(ref, " "))]
	}

	var insert []string
	for _, ln := range strings.Split(strings.TrimSuffix(text, "\n"), "\n") {
		if strings.TrimSpace(ln) != "" {
			ln = indent + ln
		}
		insert = append(insert, ln+"\n")
	}
	if idx == len(lines) && idx > 0 && !strings.HasSuffix(lines[idx-1], "\n") {
		lines[idx-1] += "\n"
	}
	out := make([]string, 0, len(lines)+len(insert))
	out = append(out, lines[:idx]...)
	out = append(out, insert...)
	out = append(out, lines[idx:]...)

	if err := os.WriteFile(target, []byte(strings.Join(out, "")), 0o644); err != nil {
		return Failure(err)
	}
	return Success(map[string]any{"path": path, "line_no": lineNo, "position": position})
}

// Package quality runs the post-write lint, format and type-check loop over
// Python files changed by a task.
package quality

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"strings"

	"agentflow/pkg/event"
	"agentflow/pkg/logx"
	"agentflow/pkg/tools"
)

// DefaultMaxDebuggerRetries bounds the type-check and fix rounds.
const DefaultMaxDebuggerRetries = 3

// Debugger returns corrected file content for a type-checker report.
type Debugger interface {
	Debug(ctx context.Context, path, content, errorMessage string) (string, error)
}

// Gate authorizes a call on a reported path. It sees the read_file call
// before the file is loaded and the safe_write call before it is
// dispatched. A non-nil error aborts the loop.
type Gate func(ctx context.Context, call tools.Call) error

// Fix is one debugger rewrite that was dispatched.
type Fix struct {
	Args   map[string]any
	Result tools.Result
	Path   string
}

// Loop lints, formats and type-checks modified Python files.
type Loop struct {
	registry   *tools.Registry
	debugger   Debugger
	sink       event.Sink
	logger     *logx.Logger
	maxRetries int
}

// New creates a loop. maxRetries < 1 selects DefaultMaxDebuggerRetries.
func New(registry *tools.Registry, debugger Debugger, sink event.Sink, maxRetries int) *Loop {
	if maxRetries < 1 {
		maxRetries = DefaultMaxDebuggerRetries
	}
	if sink == nil {
		sink = event.Discard
	}
	return &Loop{
		registry:   registry,
		debugger:   debugger,
		sink:       sink,
		logger:     logx.NewLogger("quality"),
		maxRetries: maxRetries,
	}
}

var mypyError = regexp.MustCompile(`(?m)^(.+?\.py):\d+:\s*error:`)

// AffectedPaths extracts the files mypy reported errors for. When no line
// matches, any modified path mentioned in output is used.
func AffectedPaths(output string, modified []string) []string {
	seen := map[string]bool{}
	for _, m := range mypyError.FindAllStringSubmatch(output, -1) {
		seen[strings.TrimSpace(m[1])] = true
	}
	if len(seen) == 0 {
		for _, p := range modified {
			if strings.Contains(output, p) {
				seen[p] = true
			}
		}
	}
	out := make([]string, 0, len(seen))
	for p := range seen {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}

func (l *Loop) dispatch(ctx context.Context, name string, args map[string]any) tools.Result {
	res := l.registry.Dispatch(ctx, name, args)
	l.sink.Emit(event.KindToolResult, res)
	return res
}

// Run checks paths and returns the debugger fixes it applied. Type errors
// that survive every round are reported through events only.
func (l *Loop) Run(ctx context.Context, paths []string, gate Gate) ([]Fix, error) {
	if len(paths) == 0 {
		return nil, nil
	}
	sorted := append([]string(nil), paths...)
	sort.Strings(sorted)
	joined := strings.Join(sorted, " ")

	l.sink.Emit(event.KindSystem, fmt.Sprintf("Post-write check: ruff check --fix on %d file(s)", len(sorted)))
	if res := l.dispatch(ctx, tools.RuffCheck, map[string]any{"args": "--fix " + joined}); !res.OK() {
		l.logger.Debug("ruff check reported problems: %s", res.Error())
	}
	l.sink.Emit(event.KindSystem, "Post-write check: ruff format")
	for _, p := range sorted {
		l.dispatch(ctx, tools.RuffFormat, map[string]any{"path": p})
	}

	var fixes []Fix
	for round := 1; round <= l.maxRetries; round++ {
		if err := ctx.Err(); err != nil {
			return fixes, err
		}
		l.sink.Emit(event.KindSystem, "Post-write check: mypy")
		res := l.dispatch(ctx, tools.MypyCheck, map[string]any{"args": joined})
		if res.OK() {
			return fixes, nil
		}
		report := res.String("stdout") + res.String("stderr")
		affected := AffectedPaths(report, sorted)
		if len(affected) == 0 {
			l.logger.Debug("mypy failed without attributable paths")
			return fixes, nil
		}

		l.sink.Emit(event.KindSystem, fmt.Sprintf("Debugger: fixing type errors in %d file(s), round %d", len(affected), round))
		for _, p := range affected {
			fix, err := l.fix(ctx, p, report, gate)
			if err != nil {
				return fixes, err
			}
			if fix != nil {
				fixes = append(fixes, *fix)
			}
		}
	}
	l.logger.Info("type errors remain after %d debugger rounds", l.maxRetries)
	return fixes, nil
}

func (l *Loop) fix(ctx context.Context, path, report string, gate Gate) (*Fix, error) {
	readArgs := map[string]any{"path": path}
	if err := gate(ctx, tools.Call{Tool: tools.ReadFile, Args: readArgs}); err != nil {
		return nil, fmt.Errorf("debugger fix for %s: %w", path, err)
	}
	read := l.registry.Dispatch(ctx, tools.ReadFile, readArgs)
	if !read.OK() {
		return nil, nil
	}
	content := read.String("content")
	fixed, err := l.debugger.Debug(ctx, path, content, report)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(fixed) == "" || strings.TrimSpace(fixed) == strings.TrimSpace(content) {
		return nil, nil
	}

	call := tools.Call{Tool: tools.SafeWrite, Args: map[string]any{"path": path, "content": fixed, "dry_run": false}}
	if err := gate(ctx, call); err != nil {
		return nil, fmt.Errorf("debugger fix for %s: %w", path, err)
	}
	l.sink.Emit(event.KindTool, call)
	res := l.dispatch(ctx, call.Tool, call.Args)
	return &Fix{Path: path, Args: call.Args, Result: res}, nil
}

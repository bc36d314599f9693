package tools

import (
	"context"
	"fmt"
	"strings"
	"time"

	execpkg "agentflow/pkg/exec"
	"agentflow/pkg/utils"
)

const (
	pythonTimeout = 120 * time.Second
	longTimeout   = 600 * time.Second
	formatTimeout = 60 * time.Second
)

func (b *Toolbox) module(ctx context.Context, module string, args []string, opts execpkg.Opts) Result {
	cmd := append([]string{b.python, "-m", module}, args...)
	return b.commandResult(ctx, cmd, opts)
}

func (b *Toolbox) pythonExec(ctx context.Context, args map[string]any) Result {
	code := utils.StringArg(args, "code")
	if code == "" {
		return Failuref("code is required")
	}
	paths := utils.StringsArg(args, "paths")
	if len(paths) == 0 {
		if p := utils.StringArg(args, "path"); p != "" {
			paths = []string{p}
		}
	}
	for _, p := range paths {
		if strings.HasSuffix(strings.ToLower(p), ".json") {
			return Result{
				"ok":         false,
				"returncode": 1,
				"stdout":     "",
				"stderr":     "python_exec cannot be run on .json files; use read_file or a .py script instead.",
				"error":      "python_exec cannot be run on .json files",
			}
		}
	}

	var src strings.Builder
	if len(paths) > 0 {
		src.WriteString("import importlib.util\n")
		for i, p := range paths {
			fmt.Fprintf(&src, "_spec_%d = importlib.util.spec_from_file_location(%q, %q)\n", i, fmt.Sprintf("_mod_%d", i), b.resolve(p))
			fmt.Fprintf(&src, "_mod_%d = importlib.util.module_from_spec(_spec_%d)\n", i, i)
			fmt.Fprintf(&src, "assert _spec_%d and _spec_%d.loader\n", i, i)
			fmt.Fprintf(&src, "_spec_%d.loader.exec_module(_mod_%d)\n", i, i)
			fmt.Fprintf(&src, "globals().update(_mod_%d.__dict__)\n", i)
		}
	}
	src.WriteString(code)

	opts := execpkg.Opts{WorkDir: b.baseDir, Timeout: timeoutArg(args, pythonTimeout), Stdin: src.String()}
	return b.commandResult(ctx, []string{b.python, "-"}, opts)
}

func (b *Toolbox) pythonRunFile(ctx context.Context, args map[string]any) Result {
	path := strings.TrimSpace(utils.StringArg(args, "path"))
	if !strings.HasSuffix(strings.ToLower(path), ".py") {
		return Result{
			"ok":         false,
			"returncode": -1,
			"stdout":     "",
			"stderr":     "python_run_file accepts only .py files. Do not pass .json, .yaml, .env or other non-Python files.",
			"error":      "not a .py file",
		}
	}
	opts := execpkg.Opts{WorkDir: b.baseDir, Timeout: timeoutArg(args, pythonTimeout)}
	return b.commandResult(ctx, []string{b.python, b.resolve(path)}, opts)
}

func (b *Toolbox) pipList(ctx context.Context, _ map[string]any) Result {
	return b.module(ctx, "pip", []string{"list"}, execpkg.Opts{WorkDir: b.baseDir, Timeout: pythonTimeout})
}

func (b *Toolbox) pipInstall(ctx context.Context, args map[string]any) Result {
	pkg := strings.TrimSpace(utils.StringArg(args, "package"))
	if pkg == "" {
		return Failuref("package is required")
	}
	return b.module(ctx, "pip", []string{"install", pkg}, execpkg.Opts{WorkDir: b.baseDir, Timeout: longTimeout})
}

func (b *Toolbox) pytestRun(ctx context.Context, args map[string]any) Result {
	return b.module(ctx, "pytest", strings.Fields(utils.StringArg(args, "args")), b.cwdOpts(args, longTimeout))
}

func (b *Toolbox) ruffCheck(ctx context.Context, args map[string]any) Result {
	opts := execpkg.Opts{WorkDir: b.baseDir, Timeout: timeoutArg(args, longTimeout)}
	return b.module(ctx, "ruff", append([]string{"check"}, strings.Fields(utils.StringArg(args, "args"))...), opts)
}

func (b *Toolbox) ruffFormat(ctx context.Context, args map[string]any) Result {
	path := utils.StringArg(args, "path")
	if path == "" {
		return Failuref("path is required")
	}
	opts := execpkg.Opts{WorkDir: b.baseDir, Timeout: timeoutArg(args, formatTimeout)}
	return b.module(ctx, "ruff", []string{"format", path}, opts)
}

func (b *Toolbox) mypyCheck(ctx context.Context, args map[string]any) Result {
	opts := execpkg.Opts{WorkDir: b.baseDir, Timeout: timeoutArg(args, longTimeout)}
	return b.module(ctx, "mypy", strings.Fields(utils.StringArg(args, "args")), opts)
}

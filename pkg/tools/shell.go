package tools

import (
	"context"
	"runtime"
	"strconv"
	"time"

	execpkg "agentflow/pkg/exec"
	"agentflow/pkg/utils"
)

const defaultCommandTimeout = 120 * time.Second

// commandResult runs cmd and maps the outcome onto the shared result shape:
// ok, returncode, stdout and stderr.
func (b *Toolbox) commandResult(ctx context.Context, cmd []string, opts execpkg.Opts) Result {
	res, err := b.exec.Run(ctx, cmd, opts)
	if err != nil {
		return Failure(err)
	}
	out := Result{
		"ok":         res.ExitCode == 0,
		"returncode": res.ExitCode,
		"stdout":     res.Stdout,
		"stderr":     res.Stderr,
	}
	if res.TimedOut {
		out["ok"] = false
		out["error"] = "command timed out after " + opts.Timeout.String()
	} else if res.ExitCode != 0 {
		out["error"] = "exit status " + strconv.Itoa(res.ExitCode)
	}
	return out
}

// cwdOpts roots a command at the cwd argument, or the workspace root.
func (b *Toolbox) cwdOpts(args map[string]any, timeout time.Duration) execpkg.Opts {
	dir := b.baseDir
	if cwd := utils.StringArg(args, "cwd"); cwd != "" {
		dir = b.resolve(cwd)
	}
	return execpkg.Opts{WorkDir: dir, Timeout: timeout}
}

func timeoutArg(args map[string]any, def time.Duration) time.Duration {
	if sec := utils.IntArg(args, "timeout_sec", 0); sec > 0 {
		return time.Duration(sec) * time.Second
	}
	return def
}

func shellCommand(command string) []string {
	if runtime.GOOS == "windows" {
		return []string{"cmd", "/C", command}
	}
	return []string{"sh", "-c", command}
}

func (b *Toolbox) runCommand(ctx context.Context, args map[string]any) Result {
	command := utils.StringArg(args, "command")
	if command == "" {
		return Failuref("command is required")
	}
	return b.commandResult(ctx, shellCommand(command), b.cwdOpts(args, timeoutArg(args, defaultCommandTimeout)))
}

func (b *Toolbox) gitStatus(ctx context.Context, args map[string]any) Result {
	return b.commandResult(ctx, []string{"git", "status", "-sb"}, b.cwdOpts(args, defaultCommandTimeout))
}

func (b *Toolbox) gitDiff(ctx context.Context, args map[string]any) Result {
	return b.commandResult(ctx, []string{"git", "diff"}, b.cwdOpts(args, defaultCommandTimeout))
}

func (b *Toolbox) gitLog(ctx context.Context, args map[string]any) Result {
	n := utils.IntArg(args, "max_count", 20)
	return b.commandResult(ctx, []string{"git", "log", "-n", strconv.Itoa(n), "--oneline"}, b.cwdOpts(args, defaultCommandTimeout))
}

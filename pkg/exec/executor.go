// Package exec runs external commands for workspace tools.
package exec

import (
	"context"
	"time"
)

// Executor runs a command and captures its output.
type Executor interface {
	// Run executes cmd. A non-zero exit status is reported in Result, not as an error.
	Run(ctx context.Context, cmd []string, opts Opts) (Result, error)

	// Name returns the executor name for logging.
	Name() string
}

// Opts contains options for command execution.
type Opts struct {
	// Env is appended to the current environment (KEY=VALUE).
	Env []string

	// Stdin is fed to the process when non-empty.
	Stdin string

	// WorkDir is the working directory for the command.
	WorkDir string

	// Timeout bounds execution. Zero means no limit beyond ctx.
	Timeout time.Duration
}

// Result contains the result of command execution.
type Result struct {
	Stdout   string
	Stderr   string
	Duration time.Duration
	ExitCode int
	TimedOut bool
}

// DefaultTimeout applies to tool commands that do not set their own.
const DefaultTimeout = 5 * time.Minute

// DefaultOpts returns options rooted at workDir with the default timeout.
func DefaultOpts(workDir string) Opts {
	return Opts{WorkDir: workDir, Timeout: DefaultTimeout}
}

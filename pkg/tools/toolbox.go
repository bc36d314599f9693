package tools

import (
	"os"
	"path/filepath"
	"strings"

	execpkg "agentflow/pkg/exec"
	"agentflow/pkg/logx"
)

// DefaultPython is the interpreter used by the Python tools.
const DefaultPython = "python3"

// Toolbox is the shared state behind the built-in tools: the workspace
// root, the command executor and the Python interpreter.
type Toolbox struct {
	exec    execpkg.Executor
	logger  *logx.Logger
	baseDir string
	python  string
}

// Option configures a Toolbox.
type Option func(*Toolbox)

// WithExecutor replaces the local command executor.
func WithExecutor(e execpkg.Executor) Option {
	return func(b *Toolbox) { b.exec = e }
}

// WithPython sets the Python interpreter command.
func WithPython(cmd string) Option {
	return func(b *Toolbox) {
		if cmd != "" {
			b.python = cmd
		}
	}
}

// NewToolbox creates a toolbox rooted at baseDir.
func NewToolbox(baseDir string, opts ...Option) *Toolbox {
	abs, err := filepath.Abs(baseDir)
	if err != nil {
		abs = baseDir
	}
	b := &Toolbox{
		exec:    execpkg.NewLocalExec(),
		logger:  logx.NewLogger("tools"),
		baseDir: abs,
		python:  DefaultPython,
	}
	for _, o := range opts {
		o(b)
	}
	return b
}

// BaseDir returns the absolute workspace root.
func (b *Toolbox) BaseDir() string { return b.baseDir }

// resolve maps a tool path onto the filesystem. Relative paths are taken
// from the workspace root.
func (b *Toolbox) resolve(p string) string {
	p = filepath.FromSlash(strings.TrimSpace(p))
	if p == "" {
		return b.baseDir
	}
	if filepath.IsAbs(p) {
		return filepath.Clean(p)
	}
	return filepath.Join(b.baseDir, p)
}

// display returns p relative to the workspace root with forward slashes
// when p lies inside it.
func (b *Toolbox) display(p string) string {
	rel, err := filepath.Rel(b.baseDir, p)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return filepath.ToSlash(p)
	}
	return filepath.ToSlash(rel)
}

func ensureParent(path string) error {
	return os.MkdirAll(filepath.Dir(path), 0o755)
}

// Package indexer builds the workspace index: the file list plus Python
// symbols extracted with tree-sitter.
package indexer

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"agentflow/pkg/logx"
	"agentflow/pkg/workspace"
)

// maxPythonSize skips symbol extraction for generated or vendored giants.
const maxPythonSize = 1 << 20

// DefaultMaxFiles bounds the file list when no limit is configured.
const DefaultMaxFiles = 5000

// skipDirs are never indexed.
var skipDirs = map[string]bool{
	".git": true, ".hg": true, ".svn": true, workspace.IndexDir: true, ".agentflow": true,
	"__pycache__": true, "node_modules": true, ".venv": true, "venv": true,
	".mypy_cache": true, ".ruff_cache": true, ".pytest_cache": true, ".tox": true,
}

// Indexer walks a workspace and writes its index.
type Indexer struct {
	logger   *logx.Logger
	maxFiles int
}

// New creates an indexer that stops listing files after maxFiles.
func New(maxFiles int) *Indexer {
	if maxFiles <= 0 {
		maxFiles = DefaultMaxFiles
	}
	return &Indexer{logger: logx.NewLogger("indexer"), maxFiles: maxFiles}
}

// Build walks base and returns a fresh index.
func (ix *Indexer) Build(ctx context.Context, base string) (*workspace.Index, error) {
	start := time.Now()
	out := workspace.Empty()

	err := filepath.WalkDir(base, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if path == base {
				return err
			}
			return nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if d.IsDir() {
			if path != base && (skipDirs[d.Name()] || strings.HasSuffix(d.Name(), ".egg-info")) {
				return filepath.SkipDir
			}
			return nil
		}
		if !d.Type().IsRegular() {
			return nil
		}
		if len(out.Files) >= ix.maxFiles {
			out.Truncated = true
			return fs.SkipAll
		}
		rel, err := filepath.Rel(base, path)
		if err != nil {
			return nil
		}
		rel = filepath.ToSlash(rel)
		out.Files = append(out.Files, rel)

		if strings.HasSuffix(rel, ".py") {
			if sym, ok := ix.pythonSymbols(ctx, path, rel); ok {
				out.PySymbols = append(out.PySymbols, sym)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	out.Timestamp = float64(time.Now().UnixNano()) / 1e9
	ix.logger.Debug("indexed %d files (%d python) in %v", len(out.Files), len(out.PySymbols), time.Since(start))
	return out, nil
}

func (ix *Indexer) pythonSymbols(ctx context.Context, path, rel string) (workspace.Symbols, bool) {
	info, err := os.Stat(path)
	if err != nil || info.Size() > maxPythonSize {
		return workspace.Symbols{}, false
	}
	src, err := os.ReadFile(path)
	if err != nil {
		return workspace.Symbols{}, false
	}
	outline, err := ParsePython(ctx, src)
	if err != nil {
		ix.logger.Debug("skip symbols for %s: %v", rel, err)
		return workspace.Symbols{}, false
	}
	classes, functions, globals := outline.Symbols()
	return workspace.Symbols{Path: rel, Classes: classes, Functions: functions, Globals: globals}, true
}

// Regenerate implements workspace.Regenerator.
func (ix *Indexer) Regenerate(ctx context.Context, base, out string) error {
	idx, err := ix.Build(ctx, base)
	if err != nil {
		return err
	}
	return workspace.Save(out, idx)
}

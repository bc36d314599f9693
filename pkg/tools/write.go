package tools

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"io/fs"
	"os"
	"strings"

	"github.com/pmezard/go-difflib/difflib"

	execpkg "agentflow/pkg/exec"
	"agentflow/pkg/utils"
)

// ContentHash is the hash used by preview_write and apply_write_preview.
func ContentHash(content string) string {
	sum := sha256.Sum256([]byte(content))
	return hex.EncodeToString(sum[:])
}

// UnifiedDiff renders the change from old to updated for path.
func UnifiedDiff(path, old, updated string) string {
	diff, err := difflib.GetUnifiedDiffString(difflib.UnifiedDiff{
		A:        difflib.SplitLines(old),
		B:        difflib.SplitLines(updated),
		FromFile: path,
		ToFile:   path,
		Context:  3,
	})
	if err != nil {
		return ""
	}
	return diff
}

// readExisting returns the file content or "" when the file does not exist.
func readExisting(path string) (string, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return "", nil
	}
	return string(data), err
}

func writeContent(path, content string) error {
	if err := ensureParent(path); err != nil {
		return err
	}
	return os.WriteFile(path, []byte(content), 0o644)
}

func (b *Toolbox) previewWrite(_ context.Context, args map[string]any) Result {
	path := utils.StringArg(args, "path")
	if path == "" {
		return Failuref("path is required")
	}
	content := utils.StringArg(args, "content")
	old, err := readExisting(b.resolve(path))
	if err != nil {
		return Failure(err)
	}
	return Success(map[string]any{
		"path":     path,
		"diff":     UnifiedDiff(path, old, content),
		"old_hash": ContentHash(old),
		"new_hash": ContentHash(content),
		"content":  content,
	})
}

func (b *Toolbox) applyWritePreview(_ context.Context, args map[string]any) Result {
	path := utils.StringArg(args, "path")
	if path == "" {
		return Failuref("path is required")
	}
	content := utils.StringArg(args, "content")
	expected := utils.StringArg(args, "expected_old_hash")
	target := b.resolve(path)

	old, err := readExisting(target)
	if err != nil {
		return Failure(err)
	}
	if current := ContentHash(old); expected != "" && current != expected {
		return Result{"ok": false, "error": "base hash mismatch: the file changed since the preview", "current_hash": current}
	}
	if err := writeContent(target, content); err != nil {
		return Failure(err)
	}
	return Success(map[string]any{"path": path, "bytes": len(content)})
}

func (b *Toolbox) safeWrite(_ context.Context, args map[string]any) Result {
	path := utils.StringArg(args, "path")
	if path == "" {
		return Failuref("path is required")
	}
	content := utils.StringArg(args, "content")
	dryRun := utils.BoolArg(args, "dry_run", false)
	target := b.resolve(path)

	old, err := readExisting(target)
	if err != nil {
		return Failure(err)
	}
	res := map[string]any{
		"path":     path,
		"dry_run":  dryRun,
		"diff":     UnifiedDiff(path, old, content),
		"old_hash": ContentHash(old),
		"new_hash": ContentHash(content),
	}
	if dryRun {
		return Success(res)
	}
	if err := writeContent(target, content); err != nil {
		return Failure(err)
	}
	res["bytes"] = len(content)
	return Success(res)
}

func (b *Toolbox) writeFile(_ context.Context, args map[string]any) Result {
	path := utils.StringArg(args, "path")
	if path == "" {
		return Failuref("path is required")
	}
	content := utils.StringArg(args, "content")
	if err := writeContent(b.resolve(path), content); err != nil {
		return Failure(err)
	}
	return Success(map[string]any{"path": path, "bytes": len(content)})
}

func (b *Toolbox) appendFile(_ context.Context, args map[string]any) Result {
	path := utils.StringArg(args, "path")
	if path == "" {
		return Failuref("path is required")
	}
	content := utils.StringArg(args, "content")
	target := b.resolve(path)
	if err := ensureParent(target); err != nil {
		return Failure(err)
	}
	f, err := os.OpenFile(target, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return Failure(err)
	}
	if _, err := f.WriteString(content); err != nil {
		f.Close()
		return Failure(err)
	}
	if err := f.Close(); err != nil {
		return Failure(err)
	}
	return Success(map[string]any{"path": path, "bytes": len(content)})
}

// applyPatchUnified feeds the diff to git apply from the workspace root.
func (b *Toolbox) applyPatchUnified(ctx context.Context, args map[string]any) Result {
	diff := utils.StringArg(args, "diff")
	if strings.TrimSpace(diff) == "" {
		return Failuref("diff is required")
	}
	if !strings.HasSuffix(diff, "\n") {
		diff += "\n"
	}
	opts := execpkg.DefaultOpts(b.baseDir)
	opts.Stdin = diff
	return b.commandResult(ctx, []string{"git", "apply", "--whitespace=nowarn", "--ignore-space-change", "--ignore-whitespace", "-"}, opts)
}

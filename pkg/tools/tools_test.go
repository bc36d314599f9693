package tools

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTree(t *testing.T, files map[string]string) string {
	t.Helper()
	dir := t.TempDir()
	for name, content := range files {
		path := filepath.Join(dir, filepath.FromSlash(name))
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	}
	return dir
}

func readBack(t *testing.T, dir, name string) string {
	t.Helper()
	data, err := os.ReadFile(filepath.Join(dir, filepath.FromSlash(name)))
	require.NoError(t, err)
	return string(data)
}

func TestRegistryCatalogue(t *testing.T) {
	r := NewDefaultRegistry(NewToolbox(t.TempDir()))
	names := r.Names()

	assert.Len(t, names, 39)
	assert.Equal(t, ListDir, names[0])
	assert.Equal(t, MypyCheck, names[len(names)-1])

	for _, name := range []string{SafeWrite, ApplyPatchUnified, RunCommand, PythonExec, PytestRun, ReplaceInRepo, DeletePath} {
		assert.True(t, r.RequiresApproval(name), name)
	}
	for _, name := range []string{ListDir, ReadFile, SearchText, PreviewWrite, GlobPaths, GitStatus, PythonASTOutline, PipList} {
		assert.False(t, r.RequiresApproval(name), name)
	}
	assert.True(t, r.RequiresApproval("no_such_tool"))

	descs := r.Descriptors(SafeWrite, RunCommand)
	assert.Len(t, descs, 37)
	for _, d := range descs {
		assert.NotEqual(t, SafeWrite, d.Name)
		assert.Equal(t, "object", d.Parameters.Type)
		assert.NotNil(t, d.Parameters.Required)
	}
}

func TestRegistryRegisterErrors(t *testing.T) {
	r := NewRegistry()
	require.Error(t, r.Register(nil))
	require.Error(t, r.Register(&Def{}))
	require.NoError(t, r.Register(&Def{ToolName: "x", Fn: func(context.Context, map[string]any) Result { return Success(nil) }}))
	require.Error(t, r.Register(&Def{ToolName: "x"}))
}

func TestDispatch(t *testing.T) {
	r := NewRegistry()
	r.MustRegister(
		&Def{ToolName: "boom", Fn: func(context.Context, map[string]any) Result { panic("kaput") }},
		&Def{ToolName: "bare", Fn: func(context.Context, map[string]any) Result { return Result{"value": 1} }},
	)

	res := r.Dispatch(context.Background(), "missing", nil)
	assert.False(t, res.OK())
	assert.Contains(t, res.Error(), "unknown tool")

	res = r.Dispatch(context.Background(), "boom", nil)
	assert.False(t, res.OK())
	assert.Contains(t, res.Error(), "kaput")

	res = r.Dispatch(context.Background(), "bare", nil)
	assert.False(t, res.OK())
	assert.Equal(t, 1, res.Int("value"))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.False(t, r.Dispatch(ctx, "bare", nil).OK())
}

func TestNormalizeName(t *testing.T) {
	tests := map[string]string{
		"  Read_File ":        "read_file",
		"functions.list_dir":  "list_dir",
		"search-text":         "search_text",
		"python ast outline":  "python_ast_outline",
		"FUNCTIONS.git_diff":  "git_diff",
	}
	for in, want := range tests {
		assert.Equal(t, want, NormalizeName(in), in)
	}
}

func TestSchemaHelpers(t *testing.T) {
	s := object([]string{"path"}, map[string]Property{"path": str("p"), "n": integer("n")})
	assert.True(t, s.Requires("path"))
	assert.False(t, s.Requires("n"))
	if diff := cmp.Diff(map[string]string{"path": "string", "n": "integer"}, s.Template()); diff != "" {
		t.Errorf("template mismatch (-want +got):\n%s", diff)
	}
}

func TestReadAndList(t *testing.T) {
	dir := writeTree(t, map[string]string{
		"a.txt":       "one\ntwo\nthree\nfour\n",
		"sub/b.py":    "print('b')\n",
		"sub/c/d.txt": "d\n",
	})
	r := NewDefaultRegistry(NewToolbox(dir))
	ctx := context.Background()

	res := r.Dispatch(ctx, ReadFile, map[string]any{"path": "a.txt"})
	require.True(t, res.OK(), res.Error())
	assert.Equal(t, "one\ntwo\nthree\nfour\n", res.String("content"))

	res = r.Dispatch(ctx, ReadFileLines, map[string]any{"path": "a.txt", "start_line": 2, "end_line": 3})
	require.True(t, res.OK(), res.Error())
	assert.Equal(t, []string{"two", "three"}, res["lines"])

	res = r.Dispatch(ctx, ReadFileLines, map[string]any{"path": "a.txt", "start_line": 3, "end_line": 1})
	assert.False(t, res.OK())

	res = r.Dispatch(ctx, CountDir, map[string]any{"path": "sub"})
	require.True(t, res.OK(), res.Error())
	assert.Equal(t, 1, res.Int("files"))
	assert.Equal(t, 1, res.Int("dirs"))

	res = r.Dispatch(ctx, ListDir, map[string]any{"path": "."})
	require.True(t, res.OK(), res.Error())
	assert.Len(t, res["entries"], 2)

	res = r.Dispatch(ctx, ReadFile, map[string]any{"path": "missing.txt"})
	assert.False(t, res.OK())
	assert.NotEmpty(t, res.Error())
}

func TestSearchText(t *testing.T) {
	dir := writeTree(t, map[string]string{
		"pkg/mod.py":           "def add(a, b):\n    return a + b\n",
		"pkg/other.py":         "x = add(1, 2)\n",
		".git/config":          "add = nothing\n",
		"__pycache__/m.pyc":    "add\n",
	})
	r := NewDefaultRegistry(NewToolbox(dir))

	res := r.Dispatch(context.Background(), SearchText, map[string]any{"path": ".", "pattern": "add("})
	require.True(t, res.OK(), res.Error())
	results := res["results"].([]map[string]any)
	require.Len(t, results, 2)
	assert.Equal(t, "pkg/mod.py", results[0]["file"])
	assert.Equal(t, 1, results[0]["line"])
	assert.Equal(t, "pkg/other.py", results[1]["file"])

	res = r.Dispatch(context.Background(), Search, map[string]any{"path": ".", "pattern": "add", "max_results": 1})
	require.True(t, res.OK())
	assert.Len(t, res["results"], 1)
}

func TestPreviewAndApply(t *testing.T) {
	dir := writeTree(t, map[string]string{"f.py": "a = 1\n"})
	r := NewDefaultRegistry(NewToolbox(dir))
	ctx := context.Background()

	prev := r.Dispatch(ctx, PreviewWrite, map[string]any{"path": "f.py", "content": "a = 2\n"})
	require.True(t, prev.OK(), prev.Error())
	assert.Contains(t, prev.String("diff"), "-a = 1")
	assert.Contains(t, prev.String("diff"), "+a = 2")
	assert.Equal(t, ContentHash("a = 1\n"), prev.String("old_hash"))
	assert.Equal(t, "a = 1\n", readBack(t, dir, "f.py"))

	require.NoError(t, os.WriteFile(filepath.Join(dir, "f.py"), []byte("a = 3\n"), 0o644))
	res := r.Dispatch(ctx, ApplyWritePreview, map[string]any{
		"path": "f.py", "content": "a = 2\n", "expected_old_hash": prev.String("old_hash"),
	})
	assert.False(t, res.OK())
	assert.Equal(t, ContentHash("a = 3\n"), res.String("current_hash"))
	assert.Equal(t, "a = 3\n", readBack(t, dir, "f.py"))

	res = r.Dispatch(ctx, ApplyWritePreview, map[string]any{
		"path": "f.py", "content": "a = 2\n", "expected_old_hash": ContentHash("a = 3\n"),
	})
	require.True(t, res.OK(), res.Error())
	assert.Equal(t, "a = 2\n", readBack(t, dir, "f.py"))
}

func TestSafeWrite(t *testing.T) {
	dir := t.TempDir()
	r := NewDefaultRegistry(NewToolbox(dir))
	ctx := context.Background()

	res := r.Dispatch(ctx, SafeWrite, map[string]any{"path": "new/x.py", "content": "x = 1\n", "dry_run": true})
	require.True(t, res.OK(), res.Error())
	assert.NoFileExists(t, filepath.Join(dir, "new", "x.py"))

	res = r.Dispatch(ctx, SafeWrite, map[string]any{"path": "new/x.py", "content": "x = 1\n"})
	require.True(t, res.OK(), res.Error())
	assert.Equal(t, "x = 1\n", readBack(t, dir, "new/x.py"))

	res = r.Dispatch(ctx, AppendFile, map[string]any{"path": "new/x.py", "content": "y = 2\n"})
	require.True(t, res.OK(), res.Error())
	assert.Equal(t, "x = 1\ny = 2\n", readBack(t, dir, "new/x.py"))
}

func TestReplaceText(t *testing.T) {
	dir := writeTree(t, map[string]string{"m.py": "v = 1\nv = 1\nw = 1\n"})
	r := NewDefaultRegistry(NewToolbox(dir))
	ctx := context.Background()

	res := r.Dispatch(ctx, ReplaceText, map[string]any{"path": "m.py", "old": "v = 1", "new": "v = 2", "count": 1})
	require.True(t, res.OK(), res.Error())
	assert.Equal(t, 1, res.Int("replacements"))
	assert.Equal(t, "v = 2\nv = 1\nw = 1\n", readBack(t, dir, "m.py"))

	res = r.Dispatch(ctx, ReplaceText, map[string]any{"path": "m.py", "old": "absent", "new": "x"})
	require.True(t, res.OK())
	assert.Equal(t, 0, res.Int("replacements"))

	res = r.Dispatch(ctx, ReplaceText, map[string]any{"path": "m.py", "old": `(\w) = 1`, "new": "$1 = 9", "regex": true})
	require.True(t, res.OK(), res.Error())
	assert.Equal(t, 2, res.Int("replacements"))
	assert.Equal(t, "v = 2\nv = 9\nw = 9\n", readBack(t, dir, "m.py"))
}

func TestReplaceInRepo(t *testing.T) {
	dir := writeTree(t, map[string]string{
		"a.py":     "old_name()\n",
		"b/c.py":   "old_name(); old_name()\n",
		"b/d.py":   "other\n",
		".git/HEAD": "old_name\n",
	})
	r := NewDefaultRegistry(NewToolbox(dir))
	ctx := context.Background()

	res := r.Dispatch(ctx, ReplaceInRepo, map[string]any{"root": ".", "old": "old_name", "new": "new_name", "dry_run": true})
	require.True(t, res.OK(), res.Error())
	assert.Equal(t, 2, res.Int("files_touched"))
	assert.Equal(t, "old_name()\n", readBack(t, dir, "a.py"))

	want := []map[string]any{
		{"path": "a.py", "replacements": 1},
		{"path": "b/c.py", "replacements": 2},
	}
	if diff := cmp.Diff(want, res["changed"]); diff != "" {
		t.Errorf("changed mismatch (-want +got):\n%s", diff)
	}

	res = r.Dispatch(ctx, ReplaceInRepo, map[string]any{"root": ".", "old": "old_name", "new": "new_name", "max_files": 1})
	require.True(t, res.OK(), res.Error())
	assert.Equal(t, true, res["truncated"])
	assert.Equal(t, "new_name()\n", readBack(t, dir, "a.py"))
	assert.Equal(t, "old_name\n", readBack(t, dir, ".git/HEAD"))
}

func TestInsertText(t *testing.T) {
	dir := writeTree(t, map[string]string{"f.py": "def f():\n    return 1\n"})
	r := NewDefaultRegistry(NewToolbox(dir))

	res := r.Dispatch(context.Background(), InsertText, map[string]any{"path": "f.py", "line_no": 2, "text": "x = 0"})
	require.True(t, res.OK(), res.Error())
	assert.Equal(t, "def f():\n    x = 0\n    return 1\n", readBack(t, dir, "f.py"))

	res = r.Dispatch(context.Background(), InsertText, map[string]any{"path": "f.py", "line_no": 3, "text": "pass", "position": "after"})
	require.True(t, res.OK(), res.Error())
	assert.Equal(t, "def f():\n    x = 0\n    return 1\n    pass\n", readBack(t, dir, "f.py"))
}

func TestPathTools(t *testing.T) {
	dir := writeTree(t, map[string]string{
		"src/a.py":     "a\n",
		"src/pkg/b.py": "b\n",
		"src/c.txt":    "c\n",
	})
	r := NewDefaultRegistry(NewToolbox(dir))
	ctx := context.Background()

	res := r.Dispatch(ctx, GlobPaths, map[string]any{"pattern": "src/**/*.py"})
	require.True(t, res.OK(), res.Error())
	assert.Equal(t, []string{"src/a.py", "src/pkg/b.py"}, res["paths"])

	res = r.Dispatch(ctx, Mkdir, map[string]any{"path": "out/deep"})
	require.True(t, res.OK(), res.Error())
	assert.DirExists(t, filepath.Join(dir, "out", "deep"))

	res = r.Dispatch(ctx, CopyPath, map[string]any{"src": "src/pkg", "dest": "out/pkg"})
	require.True(t, res.OK(), res.Error())
	assert.Equal(t, "b\n", readBack(t, dir, "out/pkg/b.py"))

	res = r.Dispatch(ctx, MovePath, map[string]any{"src": "src/c.txt", "dest": "out/c.txt"})
	require.True(t, res.OK(), res.Error())
	assert.NoFileExists(t, filepath.Join(dir, "src", "c.txt"))

	res = r.Dispatch(ctx, DeletePath, map[string]any{"path": "out"})
	assert.False(t, res.OK())
	res = r.Dispatch(ctx, DeletePath, map[string]any{"path": "out", "recursive": true})
	require.True(t, res.OK(), res.Error())
	assert.NoDirExists(t, filepath.Join(dir, "out"))

	res = r.Dispatch(ctx, FileHash, map[string]any{"path": "src/a.py"})
	require.True(t, res.OK(), res.Error())
	assert.Equal(t, ContentHash("a\n"), res.String("hash"))

	res = r.Dispatch(ctx, FileHash, map[string]any{"path": "src/a.py", "algo": "crc"})
	assert.False(t, res.OK())

	res = r.Dispatch(ctx, StatPath, map[string]any{"path": "src"})
	require.True(t, res.OK(), res.Error())
	assert.Equal(t, true, res["is_dir"])
}

func TestPythonAST(t *testing.T) {
	dir := writeTree(t, map[string]string{"calc.py": `import os
from typing import List


class Calc:
    def add(self, a, b):
        return a + b


async def fetch(url):
    return url


def helper():
    pass
`})
	r := NewDefaultRegistry(NewToolbox(dir))
	ctx := context.Background()

	res := r.Dispatch(ctx, PythonASTImports, map[string]any{"path": "calc.py"})
	require.True(t, res.OK(), res.Error())
	assert.Equal(t, []string{"os", "typing"}, res["imports"])

	res = r.Dispatch(ctx, PythonASTFind, map[string]any{"path": "calc.py", "symbol_type": "class"})
	require.True(t, res.OK(), res.Error())
	matches := res["matches"].([]map[string]any)
	require.Len(t, matches, 1)
	assert.Equal(t, "Calc", matches[0]["name"])
	assert.Equal(t, 5, matches[0]["lineno"])

	res = r.Dispatch(ctx, PythonASTFind, map[string]any{"path": "calc.py", "symbol_type": "asyncfunction"})
	require.True(t, res.OK(), res.Error())
	require.Len(t, res["matches"], 1)

	res = r.Dispatch(ctx, PythonASTFind, map[string]any{"path": "calc.py", "name": "helper"})
	require.True(t, res.OK(), res.Error())
	require.Len(t, res["matches"], 1)
}

func TestProjectDeps(t *testing.T) {
	dir := writeTree(t, map[string]string{
		"requirements.txt": "# pinned\nrequests==2.31\n\nrich\n",
		"pyproject.toml": `[project]
name = "demo"
dependencies = ["httpx>=0.27"]

[project.optional-dependencies]
dev = ["pytest"]

[tool.poetry.dependencies]
python = "^3.11"
click = "^8"
`,
	})
	r := NewDefaultRegistry(NewToolbox(dir))

	res := r.Dispatch(context.Background(), PythonProjectDeps, map[string]any{"root": "."})
	require.True(t, res.OK(), res.Error())
	assert.Equal(t, []string{"requests==2.31", "rich"}, res["requirements"])
	assert.Equal(t, []string{"httpx>=0.27"}, res["dependencies"])
	assert.Equal(t, map[string][]string{"dev": {"pytest"}}, res["optional"])
	assert.Equal(t, map[string]any{"click": "^8"}, res["tool_poetry"])
	assert.Equal(t, []string{"click", "httpx>=0.27"}, res["pyproject"])

	empty := r.Dispatch(context.Background(), PythonProjectDeps, map[string]any{"root": "missing"})
	require.True(t, empty.OK(), empty.Error())
	assert.Equal(t, []string{}, empty["requirements"])
}

func TestPythonGuards(t *testing.T) {
	r := NewDefaultRegistry(NewToolbox(t.TempDir()))
	ctx := context.Background()

	res := r.Dispatch(ctx, PythonExec, map[string]any{"code": "print(1)", "path": "data.json"})
	assert.False(t, res.OK())
	assert.Contains(t, res.String("stderr"), ".json")

	res = r.Dispatch(ctx, PythonRunFile, map[string]any{"path": "config.yaml"})
	assert.False(t, res.OK())
	assert.Equal(t, -1, res.Int("returncode"))
}

func TestRunCommand(t *testing.T) {
	if _, err := os.Stat("/bin/sh"); err != nil {
		t.Skip("no POSIX shell")
	}
	dir := t.TempDir()
	r := NewDefaultRegistry(NewToolbox(dir))

	res := r.Dispatch(context.Background(), RunCommand, map[string]any{"command": "echo hi"})
	require.True(t, res.OK(), res.Error())
	assert.Equal(t, "hi\n", res.String("stdout"))
	assert.Equal(t, 0, res.Int("returncode"))

	res = r.Dispatch(context.Background(), RunCommand, map[string]any{"command": "exit 3"})
	assert.False(t, res.OK())
	assert.Equal(t, 3, res.Int("returncode"))
}

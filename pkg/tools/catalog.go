package tools

// Tool names referenced by the pipeline.
const (
	ListDir           = "list_dir"
	CountDir          = "count_dir"
	ReadFile          = "read_file"
	ReadFileLines     = "read_file_lines"
	SearchText        = "search_text"
	Search            = "search"
	StatPath          = "stat_path"
	Stat              = "stat"
	PreviewWrite      = "preview_write"
	ApplyWritePreview = "apply_write_preview"
	SafeWrite         = "safe_write"
	ApplyPatchUnified = "apply_patch_unified"
	WriteFile         = "write_file"
	AppendFile        = "append_file"
	ReplaceText       = "replace_text"
	ReplaceInRepo     = "replace_in_repo"
	InsertText        = "insert_text"
	DeletePath        = "delete_path"
	MovePath          = "move_path"
	CopyPath          = "copy_path"
	Mkdir             = "mkdir"
	GlobPaths         = "glob_paths"
	FileHash          = "file_hash"
	RunCommand        = "run_command"
	GitStatus         = "git_status"
	GitDiff           = "git_diff"
	GitLog            = "git_log"
	PythonExec        = "python_exec"
	PythonASTOutline  = "python_ast_outline"
	PythonASTImports  = "python_ast_imports"
	PythonASTFind     = "python_ast_find"
	PythonProjectDeps = "python_project_deps"
	PythonRunFile     = "python_run_file"
	PipList           = "pip_list"
	PipInstall        = "pip_install"
	PytestRun         = "pytest_run"
	RuffCheck         = "ruff_check"
	RuffFormat        = "ruff_format"
	MypyCheck         = "mypy_check"
)

// WriteTools mutate a single file named by their "path" argument.
var WriteTools = map[string]bool{
	SafeWrite:         true,
	WriteFile:         true,
	ApplyPatchUnified: true,
	ReplaceText:       true,
	ApplyWritePreview: true,
	AppendFile:        true,
	InsertText:        true,
}

// ContentTools receive their payload from the coder, never from argument
// synthesis.
var ContentTools = map[string]bool{
	SafeWrite:         true,
	WriteFile:         true,
	ApplyPatchUnified: true,
	ReplaceText:       true,
	ApplyWritePreview: true,
}

func pathOnly(desc string) Schema {
	return object([]string{"path"}, map[string]Property{"path": str(desc)})
}

// NewDefaultRegistry registers the full built-in catalogue on b.
func NewDefaultRegistry(b *Toolbox) *Registry {
	search := object([]string{"path", "pattern"}, map[string]Property{
		"path":        str("Directory to search, relative to the workspace root"),
		"pattern":     str("Regular expression or literal text"),
		"max_results": integer("Maximum matches (default 20)"),
	})
	cwdOnly := object(nil, map[string]Property{"cwd": str("Working directory")})
	argsOnly := object(nil, map[string]Property{"args": str("Command line arguments")})

	r := NewRegistry()
	r.MustRegister(
		&Def{ToolName: ListDir, Desc: "List files and folders in a path. Returns the list; that is the result to report to the user.",
			Params: pathOnly("Directory path"), Fn: b.listDir},
		&Def{ToolName: CountDir, Desc: "Count files and folders in a path. Returns counts; that is the result to report.",
			Params: pathOnly("Directory path"), Fn: b.countDir},
		&Def{ToolName: ReadFile, Desc: "Read a text file. Returns the content; that is the result to report.",
			Params: pathOnly("File path"), Fn: b.readFile},
		&Def{ToolName: ReadFileLines, Desc: "Read a range of lines from a file. Returns the lines; that is the result to report.",
			Params: object([]string{"path", "start_line", "end_line"}, map[string]Property{
				"path": str("File path"), "start_line": integer("First line, 1-based"), "end_line": integer("Last line, inclusive"),
			}), Fn: b.readFileLines},
		&Def{ToolName: SearchText, Desc: "Search text inside files in a directory. Returns matches; that is the result to report.",
			Params: search, Fn: b.searchText},
		&Def{ToolName: Search, Desc: "Alias of search_text. Returns matches; that is the result to report.",
			Params: search, Fn: b.searchText},
		&Def{ToolName: StatPath, Desc: "File or directory info. Returns the info; that is the result to report.",
			Params: pathOnly("Path"), Fn: b.statPath},
		&Def{ToolName: Stat, Desc: "Alias of stat_path. Returns the info; that is the result to report.",
			Params: pathOnly("Path"), Fn: b.statPath},
		&Def{ToolName: PreviewWrite, Desc: "Show the diff between current and new content without writing. Returns the diff and base hash.",
			Params: object([]string{"path", "content"}, map[string]Property{"path": str("File path"), "content": str("Proposed full content")}),
			Fn:     b.previewWrite},
		&Def{ToolName: ApplyWritePreview, Desc: "Apply a previewed write if the file still has the previewed base hash (requires approval).",
			Params: object([]string{"path", "content", "expected_old_hash"}, map[string]Property{
				"path": str("File path"), "content": str("Full content"), "expected_old_hash": str("old_hash from preview_write"),
			}), Approval: true, Fn: b.applyWritePreview},
		&Def{ToolName: SafeWrite, Desc: "Write full file content (requires approval). Use for multi-line edits, new files, or changes that are not a simple literal replacement.",
			Params: object([]string{"path", "content"}, map[string]Property{
				"path": str("File path"), "content": str("Full new content"), "dry_run": boolean("Only compute the diff"),
			}), Approval: true, Fn: b.safeWrite},
		&Def{ToolName: ApplyPatchUnified, Desc: "Apply a unified diff with git apply (requires approval).",
			Params: object([]string{"path", "diff"}, map[string]Property{"path": str("File the diff targets"), "diff": str("Unified diff")}),
			Approval: true, Fn: b.applyPatchUnified},
		&Def{ToolName: WriteFile, Desc: "Write a text file (requires approval).",
			Params: object([]string{"path", "content"}, map[string]Property{"path": str("File path"), "content": str("Full content")}),
			Approval: true, Fn: b.writeFile},
		&Def{ToolName: AppendFile, Desc: "Append text to a file (requires approval).",
			Params: object([]string{"path", "content"}, map[string]Property{"path": str("File path"), "content": str("Text to append")}),
			Approval: true, Fn: b.appendFile},
		&Def{ToolName: ReplaceText, Desc: "Replace an exact literal string in a file (requires approval). Use when the goal says 'replace X with Y' and both are known.",
			Params: object([]string{"path", "old", "new"}, map[string]Property{
				"path": str("File path"), "old": str("Exact text to replace"), "new": str("Replacement"),
				"count": integer("Maximum replacements (default all)"), "regex": boolean("Treat old as a regular expression"),
			}), Approval: true, Fn: b.replaceText},
		&Def{ToolName: ReplaceInRepo, Desc: "Replace text across the repository (requires approval). Supports dry_run.",
			Params: object([]string{"root", "old", "new"}, map[string]Property{
				"root": str("Directory to scan"), "old": str("Text to replace"), "new": str("Replacement"),
				"max_files": integer("Stop after this many files (default 200)"), "regex": boolean("Regular expression"),
				"dry_run": boolean("Report without writing"),
			}), Approval: true, Fn: b.replaceInRepo},
		&Def{ToolName: InsertText, Desc: "Insert text at a specific line (requires approval).",
			Params: object([]string{"path", "line_no", "text"}, map[string]Property{
				"path": str("File path"), "line_no": integer("1-based line"), "text": str("Text to insert"),
				"position": str("before or after (default before)"),
			}), Approval: true, Fn: b.insertText},
		&Def{ToolName: DeletePath, Desc: "Delete a file or directory (requires approval).",
			Params: object([]string{"path"}, map[string]Property{"path": str("Path"), "recursive": boolean("Delete directories recursively")}),
			Approval: true, Fn: b.deletePath},
		&Def{ToolName: MovePath, Desc: "Move or rename a file or directory (requires approval).",
			Params: object([]string{"src", "dest"}, map[string]Property{"src": str("Source"), "dest": str("Destination")}),
			Approval: true, Fn: b.movePath},
		&Def{ToolName: CopyPath, Desc: "Copy a file or directory (requires approval).",
			Params: object([]string{"src", "dest"}, map[string]Property{"src": str("Source"), "dest": str("Destination")}),
			Approval: true, Fn: b.copyPath},
		&Def{ToolName: Mkdir, Desc: "Create a directory.",
			Params: object([]string{"path"}, map[string]Property{"path": str("Directory"), "parents": boolean("Create parents (default true)")}),
			Fn:     b.mkdir},
		&Def{ToolName: GlobPaths, Desc: "Expand a glob pattern (supports **) to a list of paths. Returns the list; that is the result to report.",
			Params: object([]string{"pattern"}, map[string]Property{"pattern": str("Glob pattern"), "recursive": boolean("Allow ** (default true)")}),
			Fn:     b.globPaths},
		&Def{ToolName: FileHash, Desc: "Compute a file hash. Returns the hash; that is the result to report.",
			Params: object([]string{"path"}, map[string]Property{"path": str("File path"), "algo": str("sha256, sha1, md5 or sha512")}),
			Fn:     b.fileHash},
		&Def{ToolName: RunCommand, Desc: "Run a shell command (requires approval).",
			Params: object([]string{"command"}, map[string]Property{
				"command": str("Shell command"), "cwd": str("Working directory"), "timeout_sec": integer("Timeout in seconds (default 120)"),
			}), Approval: true, Fn: b.runCommand},
		&Def{ToolName: GitStatus, Desc: "Show git status. Returns the status; that is the result to report.", Params: cwdOnly, Fn: b.gitStatus},
		&Def{ToolName: GitDiff, Desc: "Show git diff. Returns the diff; that is the result to report.", Params: cwdOnly, Fn: b.gitDiff},
		&Def{ToolName: GitLog, Desc: "Show the short git log. Returns the log; that is the result to report.",
			Params: object(nil, map[string]Property{"cwd": str("Working directory"), "max_count": integer("Entries (default 20)")}),
			Fn:     b.gitLog},
		&Def{ToolName: PythonExec, Desc: "Execute Python code (requires approval). Files in path or paths are loaded as modules first.",
			Params: object([]string{"code"}, map[string]Property{
				"code": str("Python source"), "path": str("Single module to load"),
				"paths": {Type: "array", Items: &Property{Type: "string"}, Description: "Modules to load"},
				"timeout_sec": integer("Timeout in seconds (default 120)"),
			}), Approval: true, Fn: b.pythonExec},
		&Def{ToolName: PythonASTOutline, Desc: "Outline the classes and functions of a Python file. Returns the outline; that is the result to report.",
			Params: pathOnly("Python file"), Fn: b.astOutline},
		&Def{ToolName: PythonASTImports, Desc: "List the imports of a Python file. Returns the imports; that is the result to report.",
			Params: pathOnly("Python file"), Fn: b.astImports},
		&Def{ToolName: PythonASTFind, Desc: "Find class or function definitions in a Python file. Without name, returns every symbol of the given type.",
			Params: object([]string{"path"}, map[string]Property{
				"path": str("Python file"), "name": str("Symbol name"), "symbol_type": str("class, function or asyncfunction"),
			}), Fn: b.astFind},
		&Def{ToolName: PythonProjectDeps, Desc: "Collect dependencies from requirements.txt and pyproject.toml. Returns the deps; that is the result to report.",
			Params: object([]string{"root"}, map[string]Property{"root": str("Project root")}), Fn: b.projectDeps},
		&Def{ToolName: PythonRunFile, Desc: "Run a Python file (requires approval).",
			Params: object([]string{"path"}, map[string]Property{"path": str("Python file"), "timeout_sec": integer("Timeout in seconds")}),
			Approval: true, Fn: b.pythonRunFile},
		&Def{ToolName: PipList, Desc: "List installed Python packages. Returns the list; that is the result to report.",
			Params: object(nil, map[string]Property{}), Fn: b.pipList},
		&Def{ToolName: PipInstall, Desc: "Install a Python package (requires approval).",
			Params: object([]string{"package"}, map[string]Property{"package": str("Package specifier")}),
			Approval: true, Fn: b.pipInstall},
		&Def{ToolName: PytestRun, Desc: "Run pytest (requires approval). Test modules are named test_*.py; pass the file in args, e.g. '-q tests/test_core.py'.",
			Params: object(nil, map[string]Property{"args": str("pytest arguments"), "cwd": str("Working directory")}),
			Approval: true, Fn: b.pytestRun},
		&Def{ToolName: RuffCheck, Desc: "Run ruff check (requires approval).", Params: argsOnly, Approval: true, Fn: b.ruffCheck},
		&Def{ToolName: RuffFormat, Desc: "Run ruff format on a path (requires approval).",
			Params: pathOnly("File or directory"), Approval: true, Fn: b.ruffFormat},
		&Def{ToolName: MypyCheck, Desc: "Run mypy (requires approval).", Params: argsOnly, Approval: true, Fn: b.mypyCheck},
	)
	return r
}

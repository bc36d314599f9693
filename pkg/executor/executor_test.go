package executor

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"agentflow/internal/mocks"
	"agentflow/pkg/coder"
	"agentflow/pkg/config"
	"agentflow/pkg/contract"
	"agentflow/pkg/event"
	execpkg "agentflow/pkg/exec"
	"agentflow/pkg/planner"
	"agentflow/pkg/quality"
	"agentflow/pkg/stage"
	"agentflow/pkg/tools"
	"agentflow/pkg/workspace"
)

type harness struct {
	dir    string
	client *mocks.MockLLMClient
	events *event.Recorder
	exec   *Executor
	ix     *workspace.Index
}

type fakeChecker struct {
	paths []string
	fixes []quality.Fix
	// gated calls are passed through the executor's gate in order.
	gated []tools.Call
}

func (f *fakeChecker) Run(ctx context.Context, paths []string, gate quality.Gate) ([]quality.Fix, error) {
	f.paths = append(f.paths, paths...)
	for _, call := range f.gated {
		if err := gate(ctx, call); err != nil {
			return nil, err
		}
	}
	return f.fixes, nil
}

func newHarness(t *testing.T, files map[string]string, checker PostWriteChecker, opts ...tools.Option) *harness {
	t.Helper()
	dir := t.TempDir()
	ix := &workspace.Index{}
	for name, content := range files {
		full := filepath.Join(dir, filepath.FromSlash(name))
		require.NoError(t, os.MkdirAll(filepath.Dir(full), 0o755))
		require.NoError(t, os.WriteFile(full, []byte(content), 0o644))
		ix.Files = append(ix.Files, name)
	}

	client := mocks.NewMockLLMClient()
	rec := &event.Recorder{}
	inv := stage.NewInvoker(client, config.Default(), rec)
	reg := tools.NewDefaultRegistry(tools.NewToolbox(dir, opts...))
	if checker == nil {
		checker = &fakeChecker{}
	}
	return &harness{
		dir:    dir,
		client: client,
		events: rec,
		exec:   New(inv, reg, coder.New(inv, rec), checker, rec, Options{BaseDir: dir}),
		ix:     ix,
	}
}

func (h *harness) read(t *testing.T, name string) string {
	t.Helper()
	b, err := os.ReadFile(filepath.Join(h.dir, filepath.FromSlash(name)))
	require.NoError(t, err)
	return string(b)
}

func (h *harness) run(goal string, approver Approver) (Outcome, error) {
	return h.exec.Run(context.Background(), planner.Task{Step: 1, Goal: goal}, h.ix, NewSharedContext(), approver)
}

func TestTransitions(t *testing.T) {
	assert.True(t, IsValidTransition(StatePlan, StateAnalyzePath))
	assert.True(t, IsValidTransition(StateRecord, StateAnalyzePath))
	assert.True(t, IsValidTransition(StateApprove, StateFailed))
	assert.False(t, IsValidTransition(StateDone, StateFailed))
	assert.False(t, IsValidTransition(StateAnalyzePath, StateDispatch))
	assert.False(t, IsValidTransition(StateSynthesizeArgs, StateDispatch))
}

func TestLibcalcScenario(t *testing.T) {
	checker := &fakeChecker{}
	h := newHarness(t, map[string]string{
		"src/libcalc/__init__.py": "",
		"src/libcalc/calc.py":     "def add(a, b):\n    return a + b\n",
		"tests/test_calc.py":      "from libcalc.calc import add\n",
	}, checker)
	h.client.
		Script(config.StagePlanner, `{"plan":[{"step":1,"tool":"read_file","goal":"Read calc.py"},{"step":2,"tool":"safe_write","goal":"Add subtract() writing with safe_write."}]}`).
		Script(config.StageToolAnalysis, `{"path":"src/libcalc/calc.py"}`, `{"path":"./src/libcalc/calc.py"}`).
		Script(config.StageToolArgument, `{"tool":"read_file","args":{}}`).
		Script(config.StageCoder, "```python\ndef add(a, b):\n    return a + b\n\n\ndef subtract(a, b):\n    return a - b\n```").
		Script(config.StageFinal, "Added subtract() to src/libcalc/calc.py.")

	approver := mocks.AllowAll()
	out, err := h.run("Add a subtract function to libcalc", approver)
	require.NoError(t, err)

	assert.Equal(t, "Added subtract() to src/libcalc/calc.py.", out.Final)
	assert.Contains(t, h.read(t, "src/libcalc/calc.py"), "def subtract(a, b):\n    return a - b\n")
	require.Len(t, out.Context, 2)
	assert.Equal(t, tools.ReadFile, out.Context[0].Tool)
	assert.Equal(t, "src/libcalc/calc.py", out.Context[0].Args["path"])
	assert.True(t, out.Context[1].Result.OK())
	assert.Equal(t, []string{tools.SafeWrite}, approver.Requested())
	assert.Equal(t, []string{"src/libcalc/calc.py"}, checker.paths)

	want := []State{
		StatePlan,
		StateAnalyzePath, StateSynthesizeArgs, StateApprove, StateDispatch, StateRecord,
		StateAnalyzePath, StateSynthesizeContent, StateApprove, StateDispatch, StateRecord,
		StatePostWriteCheck, StateFinalize, StateDone,
	}
	if diff := cmp.Diff(want, out.States); diff != "" {
		t.Errorf("states (-want +got):\n%s", diff)
	}
	assert.Equal(t, []string{"Added subtract() to src/libcalc/calc.py."}, h.events.OfKind(event.KindFinal))
	assert.Len(t, h.events.OfKind(event.KindToolAnalysisPrompt), 2)
}

// calcTests passes the libcalc tests only when add() returns a numeric sum.
type calcTests struct {
	cmds [][]string
}

func (c *calcTests) Name() string { return "calc-tests" }

func (c *calcTests) Run(_ context.Context, cmd []string, opts execpkg.Opts) (execpkg.Result, error) {
	c.cmds = append(c.cmds, cmd)
	src, err := os.ReadFile(filepath.Join(opts.WorkDir, "src", "libcalc", "calc.py"))
	if err != nil {
		return execpkg.Result{}, err
	}
	if strings.Contains(string(src), "str(") || !strings.Contains(string(src), "return a + b") {
		return execpkg.Result{ExitCode: 1, Stdout: "FAILED tests/test_calc.py::test_add - AssertionError: assert '23' == 5\n1 failed\n"}, nil
	}
	return execpkg.Result{Stdout: "1 passed in 0.01s\n"}, nil
}

func TestLibcalcFixThenTestsPass(t *testing.T) {
	checker := &fakeChecker{}
	runner := &calcTests{}
	h := newHarness(t, map[string]string{
		"src/libcalc/__init__.py": "",
		"src/libcalc/calc.py":     "def add(a, b):\n    return str(a) + str(b)\n",
		"tests/test_calc.py":      "from libcalc.calc import add\n\n\ndef test_add():\n    assert add(2, 3) == 5\n",
	}, checker, tools.WithExecutor(runner))

	before := h.exec.registry.Dispatch(context.Background(), tools.PytestRun, map[string]any{"args": "-q tests/test_calc.py"})
	require.False(t, before.OK(), "the fixture starts out broken")

	h.client.
		Script(config.StagePlanner, `{"plan":[`+
			`{"step":1,"tool":"read_file","goal":"Read calc.py"},`+
			`{"step":2,"tool":"safe_write","goal":"Fix add() in calc.py writing with safe_write."},`+
			`{"step":3,"tool":"pytest_run","goal":"Run the calc tests"}]}`).
		Script(config.StageToolAnalysis, `{"path":"src/libcalc/calc.py"}`, `{"path":"src/libcalc/calc.py"}`, `{"path":""}`).
		Script(config.StageToolArgument, `{"tool":"read_file","args":{}}`, `{"tool":"pytest_run","args":{"args":"-q tests/test_calc.py"}}`).
		Script(config.StageCoder, "```python\ndef add(a, b):\n    return a + b\n```").
		Script(config.StageFinal, "Fixed add(); 1 test passed.")

	approver := mocks.AllowAll()
	out, err := h.run("Fix add() so the calc tests pass", approver)
	require.NoError(t, err)

	fixed := h.read(t, "src/libcalc/calc.py")
	assert.Contains(t, fixed, "return a + b")
	assert.NotContains(t, fixed, "str(")
	require.Len(t, out.Context, 3)
	assert.Equal(t, []string{tools.ReadFile, tools.SafeWrite, tools.PytestRun},
		[]string{out.Context[0].Tool, out.Context[1].Tool, out.Context[2].Tool})
	assert.Contains(t, out.Context[0].Result.String("content"), "str(a)")
	pytest := out.Context[2]
	assert.True(t, pytest.Result.OK())
	assert.Contains(t, pytest.Result.String("stdout"), "1 passed")
	assert.Equal(t, h.dir, pytest.Args["cwd"])

	require.Len(t, runner.cmds, 2)
	assert.Equal(t, []string{tools.DefaultPython, "-m", "pytest", "-q", "tests/test_calc.py"}, runner.cmds[1])
	assert.Equal(t, []string{tools.SafeWrite, tools.PytestRun}, approver.Requested())
	assert.Equal(t, []string{"src/libcalc/calc.py"}, checker.paths)
	assert.Equal(t, "Fixed add(); 1 test passed.", out.Final)
}

func TestScopeAbort(t *testing.T) {
	h := newHarness(t, map[string]string{"src/calc.py": "x = 1\n"}, nil)
	h.client.
		Script(config.StagePlanner, `{"plan":[{"step":1,"tool":"safe_write","goal":"Write the secret"}]}`).
		Script(config.StageToolAnalysis, `{"path":"../outside/secret.py"}`)

	out, err := h.run("Write the secret", mocks.AllowAll())
	require.ErrorIs(t, err, ErrOutOfScope)
	assert.Empty(t, out.Context)
	assert.Empty(t, h.client.CallsFor(config.StageCoder))
	assert.Empty(t, h.events.OfKind(event.KindTool))
	assert.Equal(t, StateFailed, out.States[len(out.States)-1])
	_, statErr := os.Stat(filepath.Join(h.dir, "..", "outside", "secret.py"))
	assert.True(t, os.IsNotExist(statErr))
}

func TestScopeRejectsUnindexedPath(t *testing.T) {
	h := newHarness(t, map[string]string{"src/calc.py": "x = 1\n"}, nil)
	h.client.
		Script(config.StagePlanner, `{"plan":[{"step":1,"tool":"write_file","goal":"Create notes"}]}`).
		Script(config.StageToolAnalysis, `{"path":"notes.md"}`)

	_, err := h.run("Create notes", mocks.AllowAll())
	require.ErrorIs(t, err, ErrOutOfScope)
}

func TestArgumentStageNeverUsedForWrites(t *testing.T) {
	h := newHarness(t, map[string]string{"config.json": "{\"debug\": false}\n"}, nil)
	h.client.
		Script(config.StagePlanner, `{"plan":[{"step":1,"tool":"write_file","goal":"Enable debug"}]}`).
		Script(config.StageToolAnalysis, `{"path":"config.json"}`).
		Script(config.StageCoder, `{"debug": true}`).
		Script(config.StageFinal, "Enabled debug.")

	out, err := h.run("Enable debug in config.json", mocks.AllowAll())
	require.NoError(t, err)
	assert.Empty(t, h.client.CallsFor(config.StageToolArgument))
	assert.Equal(t, "{\"debug\": true}\n", h.read(t, "config.json"))
	require.Len(t, out.Context, 1)
	assert.Equal(t, "config.json", out.Context[0].Args["path"])
	assert.Equal(t, "config.json", out.Context[0].Result["path"])
}

func TestZeroEffect(t *testing.T) {
	h := newHarness(t, map[string]string{"a.txt": "hello\n"}, nil)
	h.client.
		Script(config.StagePlanner, `{"plan":[{"step":1,"tool":"replace_in_repo","goal":"Rename foo to bar"}]}`).
		Script(config.StageToolAnalysis, `{"path":""}`).
		Script(config.StageToolArgument, `{"tool":"replace_in_repo","args":{"root":".","old":"foo","new":"bar"}}`)

	out, err := h.run("Rename foo to bar everywhere", mocks.AllowAll())
	require.ErrorIs(t, err, ErrZeroEffect)
	require.Len(t, out.Context, 1, "the dispatched call is still recorded")
	assert.True(t, out.Context[0].Result.OK())
	assert.Empty(t, h.client.CallsFor(config.StageFinal))
}

func TestZeroEffectDetection(t *testing.T) {
	assert.ErrorIs(t, zeroEffect(tools.ReplaceText, tools.Result{"ok": true, "replacements": 0}), ErrZeroEffect)
	assert.NoError(t, zeroEffect(tools.ReplaceText, tools.Result{"ok": true, "replacements": 2}))
	assert.NoError(t, zeroEffect(tools.ReplaceText, tools.Result{"ok": false, "error": "boom"}))
	assert.ErrorIs(t, zeroEffect(tools.ReplaceInRepo, tools.Result{"ok": true, "changed": []any{}}), ErrZeroEffect)
	assert.NoError(t, zeroEffect(tools.ReplaceInRepo, tools.Result{"ok": true, "changed": []any{
		map[string]any{"path": "a.py", "replacements": float64(1)},
	}}))
}

func TestApprovalDenied(t *testing.T) {
	h := newHarness(t, map[string]string{"notes.txt": "old\n"}, nil)
	h.client.
		Script(config.StagePlanner, `{"plan":[{"step":1,"tool":"write_file","goal":"Rewrite notes"}]}`).
		Script(config.StageToolAnalysis, `{"path":"notes.txt"}`).
		Script(config.StageCoder, "new")

	out, err := h.run("Rewrite notes", mocks.DenyAll())
	require.ErrorIs(t, err, ErrApprovalDenied)
	assert.Equal(t, "old\n", h.read(t, "notes.txt"))
	assert.Empty(t, out.Context)
	assert.Len(t, h.events.OfKind(event.KindApprovalRequest), 1)
	assert.Empty(t, h.events.OfKind(event.KindTool))
}

func TestApprovalWithoutApprover(t *testing.T) {
	h := newHarness(t, map[string]string{"notes.txt": "old\n"}, nil)
	h.client.
		Script(config.StagePlanner, `{"plan":[{"step":1,"tool":"write_file","goal":"Rewrite notes"}]}`).
		Script(config.StageToolAnalysis, `{"path":"notes.txt"}`).
		Script(config.StageCoder, "new")

	_, err := h.run("Rewrite notes", nil)
	require.ErrorIs(t, err, ErrApprovalDenied)
}

func TestPreviewBridge(t *testing.T) {
	h := newHarness(t, map[string]string{"app.txt": "old\n"}, nil)
	h.client.
		Script(config.StagePlanner, `{"plan":[{"step":1,"tool":"preview_write","goal":"Preview"},{"step":2,"tool":"apply_write_preview","goal":"Apply"}]}`).
		Script(config.StageToolAnalysis, `{"path":"app.txt"}`, `{"path":"app.txt"}`).
		Script(config.StageToolArgument, `{"tool":"preview_write","args":{"path":"app.txt","content":"new\n"}}`).
		Script(config.StageFinal, "Applied.")

	out, err := h.run("Replace app.txt content", mocks.AllowAll())
	require.NoError(t, err)
	assert.Equal(t, "new\n", h.read(t, "app.txt"))
	assert.Empty(t, h.client.CallsFor(config.StageCoder))
	require.Len(t, out.Context, 2)
	assert.Equal(t, tools.ContentHash("old\n"), out.Context[1].Args["expected_old_hash"])
}

func TestPreviewBridgeWithoutPreview(t *testing.T) {
	h := newHarness(t, map[string]string{"app.txt": "old\n"}, nil)
	h.client.
		Script(config.StagePlanner, `{"plan":[{"step":1,"tool":"apply_write_preview","goal":"Apply"}]}`).
		Script(config.StageToolAnalysis, `{"path":"app.txt"}`).
		Script(config.StageCoder, "fresh").
		Script(config.StageFinal, "Applied.")

	out, err := h.run("Write fresh content", mocks.AllowAll())
	require.NoError(t, err)
	assert.Equal(t, "fresh\n", h.read(t, "app.txt"))
	require.Len(t, out.Context, 2)
	assert.Equal(t, tools.PreviewWrite, out.Context[0].Tool, "a fresh preview is dispatched and recorded")
	assert.Equal(t, tools.ApplyWritePreview, out.Context[1].Tool)
}

func TestUnknownToolAbortsTask(t *testing.T) {
	h := newHarness(t, nil, nil)
	bad := `{"plan":[{"step":1,"tool":"format_disk","goal":"x"}]}`
	h.client.Script(config.StagePlanner, bad, bad, bad)

	_, err := h.run("Do something", mocks.AllowAll())
	require.ErrorIs(t, err, ErrUnknownTool)
	require.ErrorIs(t, err, contract.ErrContract)
	assert.Len(t, h.client.CallsFor(config.StagePlanner), 3)
	assert.Len(t, h.events.OfKind(event.KindError), 1)
}

func TestPlanNormalizesToolNames(t *testing.T) {
	h := newHarness(t, map[string]string{"a.txt": "a\n"}, nil)
	h.client.
		Script(config.StagePlanner, `{"plan":[{"step":1,"tool":"functions.Read-File","goal":"Read"},{"step":2,"tool":"python_exec","goal":"Run code"}]}`).
		Script(config.StageToolAnalysis, `{"path":"a.txt"}`).
		Script(config.StageToolArgument, `{"tool":"read_file","args":{"path":"a.txt"}}`).
		Script(config.StageFinal, "Read a.txt.")

	out, err := h.run("Read a.txt", mocks.AllowAll())
	require.NoError(t, err)
	require.Len(t, out.Context, 1)
	assert.Equal(t, "a\n", out.Context[0].Result["content"])
	assert.Contains(t, strings.Join(h.events.OfKind(event.KindSystem), "\n"), "Skipping python_exec step 2")
}

func TestQualityFixesAreRecorded(t *testing.T) {
	checker := &fakeChecker{fixes: []quality.Fix{{
		Path:   "m.py",
		Args:   map[string]any{"path": "m.py", "content": "x: int = 1\n"},
		Result: tools.Result{"ok": true, "path": "m.py"},
	}}}
	h := newHarness(t, map[string]string{"m.py": "x = 1\n"}, checker)
	h.client.
		Script(config.StagePlanner, `{"plan":[{"step":1,"tool":"write_file","goal":"Annotate x"}]}`).
		Script(config.StageToolAnalysis, `{"path":"m.py"}`).
		Script(config.StageCoder, "x: int = 1").
		Script(config.StageFinal, "Annotated.")

	out, err := h.run("Annotate x", mocks.AllowAll())
	require.NoError(t, err)
	require.Len(t, out.Context, 2)
	assert.Equal(t, 0, out.Context[1].Step)
	assert.Equal(t, "debugger fix mypy: m.py", out.Context[1].Goal)
}

func TestQualityFixOutsideWorkspaceAborts(t *testing.T) {
	for _, target := range []string{"/etc/evil.py", "../outside/evil.py", "unindexed.py"} {
		t.Run(target, func(t *testing.T) {
			checker := &fakeChecker{gated: []tools.Call{
				{Tool: tools.ReadFile, Args: map[string]any{"path": target}},
				{Tool: tools.SafeWrite, Args: map[string]any{"path": target, "content": "x = 2\n"}},
			}}
			h := newHarness(t, map[string]string{"m.py": "x = 1\n"}, checker)
			h.client.
				Script(config.StagePlanner, `{"plan":[{"step":1,"tool":"write_file","goal":"Annotate x"}]}`).
				Script(config.StageToolAnalysis, `{"path":"m.py"}`).
				Script(config.StageCoder, "x: int = 1")

			approver := mocks.AllowAll()
			out, err := h.run("Annotate x", approver)
			require.ErrorIs(t, err, ErrOutOfScope)
			assert.Contains(t, err.Error(), target)
			require.Len(t, out.Context, 1)
			assert.Equal(t, []string{tools.WriteFile}, approver.Requested(), "no approval is asked for the fix")
			assert.Empty(t, h.client.CallsFor(config.StageFinal))
			assert.Equal(t, StateFailed, out.States[len(out.States)-1])
		})
	}
}

func TestQualityFixInScopeIsApproved(t *testing.T) {
	checker := &fakeChecker{gated: []tools.Call{
		{Tool: tools.ReadFile, Args: map[string]any{"path": "m.py"}},
		{Tool: tools.SafeWrite, Args: map[string]any{"path": "m.py", "content": "x: int = 1\n"}},
	}}
	h := newHarness(t, map[string]string{"m.py": "x = 1\n"}, checker)
	h.client.
		Script(config.StagePlanner, `{"plan":[{"step":1,"tool":"write_file","goal":"Annotate x"}]}`).
		Script(config.StageToolAnalysis, `{"path":"m.py"}`).
		Script(config.StageCoder, "x: int = 1").
		Script(config.StageFinal, "Annotated.")

	approver := mocks.AllowAll()
	_, err := h.run("Annotate x", approver)
	require.NoError(t, err)
	assert.Equal(t, []string{tools.WriteFile, tools.SafeWrite}, approver.Requested())
}

func TestReplaceInRepoRootOutsideWorkspace(t *testing.T) {
	for _, root := range []string{"../outside", "/etc"} {
		t.Run(root, func(t *testing.T) {
			h := newHarness(t, map[string]string{"a.txt": "foo\n"}, nil)
			h.client.
				Script(config.StagePlanner, `{"plan":[{"step":1,"tool":"replace_in_repo","goal":"Rename foo to bar"}]}`).
				Script(config.StageToolAnalysis, `{"path":""}`).
				Script(config.StageToolArgument, `{"tool":"replace_in_repo","args":{"root":"`+root+`","old":"foo","new":"bar"}}`)

			approver := mocks.AllowAll()
			out, err := h.run("Rename foo to bar everywhere", approver)
			require.ErrorIs(t, err, ErrOutOfScope)
			assert.Empty(t, out.Context, "nothing is dispatched")
			assert.Empty(t, approver.Requested())
			assert.Equal(t, "foo\n", h.read(t, "a.txt"))
		})
	}
}

func TestDecodeArgs(t *testing.T) {
	reg := tools.NewDefaultRegistry(tools.NewToolbox(t.TempDir()))
	desc := func(name string) tools.Descriptor {
		tool, ok := reg.Get(name)
		require.True(t, ok)
		return tools.Describe(tool)
	}

	args, err := decodeArgs(map[string]any{"tool": "pytest_run", "args": "-q tests/test_calc.py"}, desc(tools.PytestRun), "")
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"args": "-q tests/test_calc.py"}, args)

	_, err = decodeArgs(map[string]any{"tool": "read_file", "args": "a.txt"}, desc(tools.ReadFile), "")
	assert.Error(t, err)

	_, err = decodeArgs(map[string]any{"tool": "list_dir", "args": map[string]any{}}, desc(tools.ReadFile), "a.txt")
	assert.Error(t, err, "tool name must match")

	args, err = decodeArgs(map[string]any{"tool": "read_file"}, desc(tools.ReadFile), "a.txt")
	require.NoError(t, err)
	assert.Equal(t, "a.txt", args["path"])

	_, err = decodeArgs(map[string]any{"tool": "run_command", "args": map[string]any{"command": "  "}}, desc(tools.RunCommand), "")
	assert.Error(t, err)
}

func TestFinalPayload(t *testing.T) {
	cfg := config.Default().Executor
	big := strings.Repeat("x", 2000)
	var entries []ContextEntry
	for i := 1; i <= 25; i++ {
		entries = append(entries, ContextEntry{
			Step:   i,
			Tool:   tools.ReadFile,
			Goal:   "read",
			Args:   map[string]any{"path": "a.txt"},
			Result: tools.Result{"ok": true, "content": big},
		})
	}

	small, err := FinalPayload("goal", entries[:3], cfg)
	require.NoError(t, err)
	assert.Contains(t, small, strings.Repeat("x", cfg.FinalFieldLimit)+`\n... [truncated]`)
	assert.NotContains(t, small, big)
	assert.Equal(t, 2000, len(entries[0].Result.String("content")), "entries are not mutated")

	full, err := FinalPayload("goal", entries, cfg)
	require.NoError(t, err)
	assert.Equal(t, 10, strings.Count(full, `"tool":"read_file"`), "20 entries exceed the payload limit, so the tail of 10 is used")
	assert.Contains(t, full, `"step":25`)
	assert.NotContains(t, full, `"step":15}`)

	cfg.FinalPayloadLimit = 1 << 20
	wide, err := FinalPayload("goal", entries, cfg)
	require.NoError(t, err)
	assert.Equal(t, 20, strings.Count(wide, `"tool":"read_file"`))
}

func TestCancelledContextStopsBeforePlanning(t *testing.T) {
	h := newHarness(t, nil, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := h.exec.Run(ctx, planner.Task{Step: 1, Goal: "anything"}, h.ix, nil, nil)
	require.True(t, errors.Is(err, context.Canceled))
	assert.Empty(t, h.client.CallsFor(config.StagePlanner))
}

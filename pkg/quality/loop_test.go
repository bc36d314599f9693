package quality

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"agentflow/pkg/event"
	"agentflow/pkg/tools"
	"agentflow/pkg/utils"
)

type fakeTools struct {
	files    map[string]string
	mypy     []tools.Result
	calls    []string
	ruffArgs string
}

func (f *fakeTools) registry() *tools.Registry {
	reg := tools.NewRegistry()
	record := func(name string, fn func(args map[string]any) tools.Result) *tools.Def {
		return &tools.Def{ToolName: name, Fn: func(_ context.Context, args map[string]any) tools.Result {
			f.calls = append(f.calls, name)
			return fn(args)
		}}
	}
	reg.MustRegister(
		record(tools.RuffCheck, func(args map[string]any) tools.Result {
			f.ruffArgs = utils.StringArg(args, "args")
			return tools.Result{"ok": true}
		}),
		record(tools.RuffFormat, func(map[string]any) tools.Result { return tools.Result{"ok": true} }),
		record(tools.MypyCheck, func(map[string]any) tools.Result {
			if len(f.mypy) == 0 {
				return tools.Result{"ok": true, "stdout": "Success: no issues found"}
			}
			res := f.mypy[0]
			if len(f.mypy) > 1 {
				f.mypy = f.mypy[1:]
			}
			return res
		}),
		record(tools.ReadFile, func(args map[string]any) tools.Result {
			p := utils.StringArg(args, "path")
			content, ok := f.files[p]
			if !ok {
				return tools.Failuref("no such file: %s", p)
			}
			return tools.Result{"ok": true, "path": p, "content": content}
		}),
		record(tools.SafeWrite, func(args map[string]any) tools.Result {
			p := utils.StringArg(args, "path")
			f.files[p] = utils.StringArg(args, "content")
			return tools.Result{"ok": true, "path": p}
		}),
	)
	return reg
}

func (f *fakeTools) count(name string) int {
	n := 0
	for _, c := range f.calls {
		if c == name {
			n++
		}
	}
	return n
}

type fakeDebugger struct {
	err   error
	calls int
}

func (d *fakeDebugger) Debug(_ context.Context, _, content, _ string) (string, error) {
	if d.err != nil {
		return "", d.err
	}
	d.calls++
	return fmt.Sprintf("%s# fix %d\n", content, d.calls), nil
}

func allow(context.Context, tools.Call) error { return nil }

func mypyFailure(out string) tools.Result {
	return tools.Result{"ok": false, "error": "exit status 1", "stdout": out}
}

func TestAffectedPaths(t *testing.T) {
	tests := []struct {
		name     string
		output   string
		modified []string
		want     []string
	}{
		{
			name:   "error lines",
			output: "src/b.py:11: error: Name \"y\" is not defined\nsrc/a.py:3: error: Incompatible types\nsrc/b.py:10: note: see here\n",
			want:   []string{"src/a.py", "src/b.py"},
		},
		{
			name:     "fallback to modified paths",
			output:   "mypy: can't read file 'src/c.py'",
			modified: []string{"src/c.py", "src/d.py"},
			want:     []string{"src/c.py"},
		},
		{
			name:     "nothing attributable",
			output:   "internal error",
			modified: []string{"src/c.py"},
			want:     []string{},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, AffectedPaths(tt.output, tt.modified))
		})
	}
}

func TestLoopStopsWhenClean(t *testing.T) {
	ft := &fakeTools{files: map[string]string{"b.py": "x = 1\n", "a.py": "y = 2\n"}}
	rec := &event.Recorder{}
	dbg := &fakeDebugger{}

	fixes, err := New(ft.registry(), dbg, rec, 3).Run(context.Background(), []string{"b.py", "a.py"}, allow)
	require.NoError(t, err)
	assert.Empty(t, fixes)
	assert.Equal(t, "--fix a.py b.py", ft.ruffArgs)
	assert.Equal(t, 2, ft.count(tools.RuffFormat))
	assert.Equal(t, 1, ft.count(tools.MypyCheck))
	assert.Zero(t, dbg.calls)
	assert.Len(t, rec.OfKind(event.KindToolResult), 4)
}

func TestLoopRetryCeiling(t *testing.T) {
	ft := &fakeTools{
		files: map[string]string{"m.py": "x: int = 'a'\n"},
		mypy:  []tools.Result{mypyFailure("m.py:1: error: Incompatible types in assignment\n")},
	}
	dbg := &fakeDebugger{}
	var gated []tools.Call
	gate := func(_ context.Context, call tools.Call) error {
		gated = append(gated, call)
		return nil
	}

	fixes, err := New(ft.registry(), dbg, nil, 2).Run(context.Background(), []string{"m.py"}, gate)
	require.NoError(t, err, "remaining type errors are not fatal")
	assert.Equal(t, 2, ft.count(tools.MypyCheck))
	assert.Equal(t, 2, dbg.calls)
	require.Len(t, fixes, 2)
	assert.Equal(t, "m.py", fixes[0].Path)
	assert.True(t, fixes[1].Result.OK())
	require.Len(t, gated, 4)
	assert.Equal(t, tools.ReadFile, gated[0].Tool)
	assert.Equal(t, tools.SafeWrite, gated[1].Tool)
	assert.Contains(t, ft.files["m.py"], "# fix 2")
}

func TestLoopGateDenial(t *testing.T) {
	ft := &fakeTools{
		files: map[string]string{"m.py": "x = 1\n"},
		mypy:  []tools.Result{mypyFailure("m.py:1: error: bad\n")},
	}
	denied := errors.New("denied")
	deny := func(context.Context, tools.Call) error { return denied }

	fixes, err := New(ft.registry(), &fakeDebugger{}, nil, 3).Run(context.Background(), []string{"m.py"}, deny)
	require.ErrorIs(t, err, denied)
	assert.Empty(t, fixes)
	assert.Zero(t, ft.count(tools.SafeWrite))
	assert.Equal(t, "x = 1\n", ft.files["m.py"])
}

func TestLoopGateRejectsReportedPathOutsideWorkspace(t *testing.T) {
	ft := &fakeTools{
		files: map[string]string{"m.py": "x = 1\n", "/etc/evil.py": "import os\n"},
		mypy:  []tools.Result{mypyFailure("/etc/evil.py:1: error: bad\n")},
	}
	dbg := &fakeDebugger{}
	outside := errors.New("outside workspace")
	scoped := func(_ context.Context, call tools.Call) error {
		if strings.HasPrefix(utils.StringArg(call.Args, "path"), "/") {
			return outside
		}
		return nil
	}

	fixes, err := New(ft.registry(), dbg, nil, 3).Run(context.Background(), []string{"m.py"}, scoped)
	require.ErrorIs(t, err, outside)
	assert.Contains(t, err.Error(), "/etc/evil.py")
	assert.Empty(t, fixes)
	assert.Zero(t, ft.count(tools.ReadFile), "the reported file is never loaded")
	assert.Zero(t, ft.count(tools.SafeWrite))
	assert.Zero(t, dbg.calls)
	assert.Equal(t, "import os\n", ft.files["/etc/evil.py"])
}

func TestLoopDebuggerFailureIsFatal(t *testing.T) {
	ft := &fakeTools{
		files: map[string]string{"m.py": "x = 1\n"},
		mypy:  []tools.Result{mypyFailure("m.py:1: error: bad\n")},
	}
	boom := errors.New("oracle unavailable")

	_, err := New(ft.registry(), &fakeDebugger{err: boom}, nil, 3).Run(context.Background(), []string{"m.py"}, allow)
	require.ErrorIs(t, err, boom)
}

func TestLoopSkipsUnchangedContent(t *testing.T) {
	ft := &fakeTools{
		files: map[string]string{"m.py": "x = 1\n"},
		mypy:  []tools.Result{mypyFailure("m.py:1: error: bad\n")},
	}
	same := &echoDebugger{}

	fixes, err := New(ft.registry(), same, nil, 2).Run(context.Background(), []string{"m.py"}, allow)
	require.NoError(t, err)
	assert.Empty(t, fixes)
	assert.Zero(t, ft.count(tools.SafeWrite))
}

type echoDebugger struct{}

func (echoDebugger) Debug(_ context.Context, _, content, _ string) (string, error) {
	return "  " + content + "\n\n", nil
}

func TestLoopNoPaths(t *testing.T) {
	ft := &fakeTools{files: map[string]string{}}
	fixes, err := New(ft.registry(), &fakeDebugger{}, nil, 0).Run(context.Background(), nil, allow)
	require.NoError(t, err)
	assert.Nil(t, fixes)
	assert.Empty(t, ft.calls)
}

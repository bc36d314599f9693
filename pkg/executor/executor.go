// Package executor runs one task as a tool plan: plan the calls, choose each
// path, synthesize arguments or content, gate on approval, dispatch, record,
// check written Python files and report.
package executor

import (
	"context"
	"fmt"
	"path"
	"sort"
	"strings"

	"agentflow/pkg/coder"
	"agentflow/pkg/config"
	"agentflow/pkg/contract"
	"agentflow/pkg/event"
	"agentflow/pkg/logx"
	"agentflow/pkg/planner"
	"agentflow/pkg/quality"
	"agentflow/pkg/tools"
	"agentflow/pkg/utils"
	"agentflow/pkg/workspace"
)

// PlanStep is one planned tool call. Tool is a registered name.
type PlanStep struct {
	Tool string `json:"tool"`
	Goal string `json:"goal"`
	Step int    `json:"step"`
}

// ToolCall is a fully resolved invocation.
type ToolCall = tools.Call

// Approver decides whether a call that needs approval may run.
type Approver interface {
	Approve(ctx context.Context, call ToolCall) (bool, error)
}

// Synthesizer produces mutation payloads.
type Synthesizer interface {
	Diff(ctx context.Context, req coder.Request) (string, error)
	Content(ctx context.Context, req coder.Request) (string, error)
	Replace(ctx context.Context, req coder.Request) (string, string, error)
}

// PostWriteChecker runs the quality loop over modified Python files.
type PostWriteChecker interface {
	Run(ctx context.Context, paths []string, gate quality.Gate) ([]quality.Fix, error)
}

// Options configures an Executor.
type Options struct {
	// BaseDir is the default cwd for run_command and pytest_run.
	BaseDir string
	Final   config.ExecutorConfig
	// AutoApprove skips the approver. Requests are still emitted.
	AutoApprove bool
}

// Outcome is the result of one task.
type Outcome struct {
	Final   string         `json:"final"`
	Context []ContextEntry `json:"context"`
	States  []State        `json:"-"`
}

// Executor runs tasks against a tool registry.
type Executor struct {
	inv      contract.Invoker
	registry *tools.Registry
	coder    Synthesizer
	quality  PostWriteChecker
	sink     event.Sink
	logger   *logx.Logger
	opts     Options
}

// New creates an executor. quality may be nil to skip post-write checks.
func New(inv contract.Invoker, registry *tools.Registry, synth Synthesizer, checker PostWriteChecker, sink event.Sink, opts Options) *Executor {
	if sink == nil {
		sink = event.Discard
	}
	def := config.Default().Executor
	if opts.Final.FinalMaxEntries <= 0 {
		opts.Final.FinalMaxEntries = def.FinalMaxEntries
	}
	if opts.Final.FinalFieldLimit <= 0 {
		opts.Final.FinalFieldLimit = def.FinalFieldLimit
	}
	if opts.Final.FinalPayloadLimit <= 0 {
		opts.Final.FinalPayloadLimit = def.FinalPayloadLimit
	}
	if opts.Final.FinalTailEntries <= 0 {
		opts.Final.FinalTailEntries = def.FinalTailEntries
	}
	return &Executor{
		inv:      inv,
		registry: registry,
		coder:    synth,
		quality:  checker,
		sink:     sink,
		logger:   logx.NewLogger("executor"),
		opts:     opts,
	}
}

// run is the state of one task execution.
type run struct {
	e        *Executor
	ix       *workspace.Index
	shared   *SharedContext
	approver Approver
	m        *machine
	modified map[string]bool
	scope    string
	task     planner.Task
	entries  []ContextEntry
}

// Run executes task. Entries are appended to shared as they are recorded;
// Outcome.Context holds only this task's entries. On error the outcome
// still carries whatever was recorded.
func (e *Executor) Run(ctx context.Context, task planner.Task, ix *workspace.Index, shared *SharedContext, approver Approver) (Outcome, error) {
	if ix == nil {
		ix = workspace.Empty()
	}
	if shared == nil {
		shared = NewSharedContext()
	}
	r := &run{
		e:        e,
		ix:       ix,
		shared:   shared,
		approver: approver,
		m:        newMachine(),
		modified: map[string]bool{},
		scope:    fmt.Sprintf("task-%d", task.Step),
		task:     task,
	}

	final, err := r.execute(ctx)
	if err != nil {
		if terr := r.m.to(ctx, StateFailed, err.Error()); terr != nil {
			e.logger.Warn("%v", terr)
		}
		e.logger.Error("task %d failed: %v", task.Step, err)
	}
	return Outcome{Final: final, Context: r.entries, States: r.m.history}, err
}

func (r *run) execute(ctx context.Context) (string, error) {
	steps, err := r.plan(ctx)
	if err != nil {
		return "", err
	}
	for _, step := range steps {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		if step.Tool == tools.PythonExec {
			r.e.sink.Emit(event.KindSystem, fmt.Sprintf("Skipping python_exec step %d: %s", step.Step, step.Goal))
			continue
		}
		if err := r.step(ctx, step); err != nil {
			return "", fmt.Errorf("step %d (%s): %w", step.Step, step.Tool, err)
		}
	}

	if err := r.m.to(ctx, StatePostWriteCheck, fmt.Sprintf("%d python file(s) modified", len(r.modified))); err != nil {
		return "", err
	}
	if err := r.postWrite(ctx); err != nil {
		return "", err
	}
	if err := r.m.to(ctx, StateFinalize, "steps complete"); err != nil {
		return "", err
	}
	final, err := r.finalize(ctx)
	if err != nil {
		return "", err
	}
	return final, r.m.to(ctx, StateDone, "final answer ready")
}

func (r *run) step(ctx context.Context, step PlanStep) error {
	t, ok := r.e.registry.Get(step.Tool)
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownTool, step.Tool)
	}
	d := tools.Describe(t)

	if err := r.m.to(ctx, StateAnalyzePath, step.Goal); err != nil {
		return err
	}
	selected, err := r.analyze(ctx, step, d)
	if err != nil {
		return err
	}
	write := tools.WriteTools[step.Tool]
	if write {
		if err := r.checkScope(selected); err != nil {
			return err
		}
	}

	var call ToolCall
	if tools.ContentTools[step.Tool] {
		if err := r.m.to(ctx, StateSynthesizeContent, selected); err != nil {
			return err
		}
		call, err = r.synthesizeContent(ctx, step, selected)
	} else {
		if err := r.m.to(ctx, StateSynthesizeArgs, selected); err != nil {
			return err
		}
		var args map[string]any
		args, err = r.synthesizeArgs(ctx, step, d, selected)
		if err == nil && write {
			args["path"] = selected
		}
		call = ToolCall{Tool: step.Tool, Args: args}
	}
	if err != nil {
		return err
	}
	if call.Tool == tools.ReplaceInRepo {
		if root := utils.StringArg(call.Args, "root"); root != "" && !insideBase(root) {
			return fmt.Errorf("%w: root %s", ErrOutOfScope, root)
		}
	}
	r.defaultCwd(call)

	if err := r.m.to(ctx, StateApprove, call.Tool); err != nil {
		return err
	}
	if err := r.approve(ctx, call); err != nil {
		return err
	}

	if err := r.m.to(ctx, StateDispatch, call.Tool); err != nil {
		return err
	}
	res := r.dispatch(ctx, step, call)
	if err := zeroEffect(call.Tool, res); err != nil {
		return err
	}

	if err := r.m.to(ctx, StateRecord, call.Tool); err != nil {
		return err
	}
	r.track(call, selected, res)
	return nil
}

// checkScope enforces that writes stay on indexed or previewed paths. With
// an empty index any path under the base directory is accepted.
func (r *run) checkScope(p string) error {
	if p == "" {
		return fmt.Errorf("%w: no path selected", ErrOutOfScope)
	}
	if !insideBase(p) {
		return fmt.Errorf("%w: %s", ErrOutOfScope, p)
	}
	if r.ix.Contains(p) || r.shared.Previewed(p) || len(r.ix.Files) == 0 {
		return nil
	}
	return fmt.Errorf("%w: %s", ErrOutOfScope, p)
}

func insideBase(p string) bool {
	n := workspace.NormalizePath(p)
	if path.IsAbs(n) || n == ".." || strings.HasPrefix(n, "../") {
		return false
	}
	// Windows drive letters
	return !(len(n) > 1 && n[1] == ':')
}

// gate authorizes a call made by the quality loop. Its path must pass the
// same scope rules as a planned write before approval is asked for.
func (r *run) gate(ctx context.Context, call ToolCall) error {
	if err := r.checkScope(utils.StringArg(call.Args, "path")); err != nil {
		return err
	}
	return r.approve(ctx, call)
}

func (r *run) defaultCwd(call ToolCall) {
	if call.Tool != tools.RunCommand && call.Tool != tools.PytestRun {
		return
	}
	if r.e.opts.BaseDir != "" && utils.StringArg(call.Args, "cwd") == "" {
		call.Args["cwd"] = r.e.opts.BaseDir
	}
}

func (r *run) approve(ctx context.Context, call ToolCall) error {
	if !r.e.registry.RequiresApproval(call.Tool) {
		return nil
	}
	r.e.sink.Emit(event.KindApprovalRequest, call)
	if r.e.opts.AutoApprove {
		return nil
	}
	if r.approver == nil {
		return fmt.Errorf("%w: %s: no approver", ErrApprovalDenied, call.Tool)
	}
	ok, err := r.approver.Approve(ctx, call)
	if err != nil {
		return fmt.Errorf("%w: %s: %v", ErrApprovalDenied, call.Tool, err)
	}
	if !ok {
		return fmt.Errorf("%w: %s", ErrApprovalDenied, call.Tool)
	}
	return nil
}

// dispatch runs call and records the literal result.
func (r *run) dispatch(ctx context.Context, step PlanStep, call ToolCall) tools.Result {
	r.e.sink.Emit(event.KindTool, call)
	res := r.e.registry.Dispatch(ctx, call.Tool, call.Args)
	r.e.sink.Emit(event.KindToolResult, res)
	r.record(ContextEntry{Step: step.Step, Tool: call.Tool, Goal: step.Goal, Args: call.Args, Result: res})
	return res
}

func (r *run) record(e ContextEntry) {
	r.entries = append(r.entries, e)
	r.shared.Append(e)
}

// zeroEffect fails replacements that reported success without changing
// anything.
func zeroEffect(tool string, res tools.Result) error {
	if !res.OK() {
		return nil
	}
	switch tool {
	case tools.ReplaceText:
		if res.Int("replacements") == 0 {
			return fmt.Errorf("%w: replace_text made 0 replacements in %s", ErrZeroEffect, res.String("path"))
		}
	case tools.ReplaceInRepo:
		total := 0
		for _, c := range changedEntries(res) {
			total += utils.IntArg(c, "replacements", 0)
		}
		if total == 0 {
			return fmt.Errorf("%w: replace_in_repo changed no files", ErrZeroEffect)
		}
	}
	return nil
}

func changedEntries(res tools.Result) []map[string]any {
	switch v := res["changed"].(type) {
	case []map[string]any:
		return v
	case []any:
		out := make([]map[string]any, 0, len(v))
		for _, item := range v {
			if m, ok := item.(map[string]any); ok {
				out = append(out, m)
			}
		}
		return out
	}
	return nil
}

// track remembers Python files changed by a successful write.
func (r *run) track(call ToolCall, selected string, res tools.Result) {
	if !res.OK() {
		return
	}
	if call.Tool == tools.ReplaceInRepo {
		if utils.BoolArg(call.Args, "dry_run", false) {
			return
		}
		for _, c := range changedEntries(res) {
			if p := utils.StringArg(c, "path"); strings.HasSuffix(p, ".py") {
				r.modified[workspace.NormalizePath(p)] = true
			}
		}
		return
	}
	if !tools.WriteTools[call.Tool] || !strings.HasSuffix(selected, ".py") {
		return
	}
	if call.Tool == tools.SafeWrite && utils.BoolArg(call.Args, "dry_run", false) {
		return
	}
	r.modified[selected] = true
}

func (r *run) postWrite(ctx context.Context) error {
	if len(r.modified) == 0 || r.e.quality == nil {
		return nil
	}
	paths := make([]string, 0, len(r.modified))
	for p := range r.modified {
		paths = append(paths, p)
	}
	sort.Strings(paths)

	fixes, err := r.e.quality.Run(ctx, paths, r.gate)
	for _, f := range fixes {
		r.record(ContextEntry{
			Step:   0,
			Tool:   tools.SafeWrite,
			Goal:   "debugger fix mypy: " + f.Path,
			Args:   f.Args,
			Result: f.Result,
		})
	}
	return err
}

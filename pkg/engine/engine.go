// Package engine runs one request end to end: route, plan, execute every
// task and summarize. Progress is streamed as events on a channel owned by
// a single producer goroutine.
package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"agentflow/pkg/channels"
	"agentflow/pkg/coder"
	"agentflow/pkg/config"
	"agentflow/pkg/contract"
	"agentflow/pkg/event"
	"agentflow/pkg/eventlog"
	"agentflow/pkg/executor"
	"agentflow/pkg/logx"
	"agentflow/pkg/persistence"
	"agentflow/pkg/planner"
	"agentflow/pkg/quality"
	"agentflow/pkg/router"
	"agentflow/pkg/stage"
	"agentflow/pkg/summarizer"
	"agentflow/pkg/tools"
	"agentflow/pkg/workspace"
)

// ErrEmptyRequest is returned for a blank request.
var ErrEmptyRequest = errors.New("empty request")

// IndexSource provides the workspace index snapshot for a run.
type IndexSource interface {
	Snapshot(ctx context.Context) *workspace.Index
}

// Options wires an Engine.
type Options struct {
	Clients  stage.ClientSource
	Registry *tools.Registry
	// Index may be nil, in which case every run sees an empty index.
	Index IndexSource
	// Journal and EventLog are optional audit sinks.
	Journal  *persistence.Journal
	EventLog *eventlog.Writer
	BaseDir  string
	Config   config.Config
	// AutoApprove lets every call through without asking the approver.
	AutoApprove bool
}

// Engine runs requests. It holds no per-run state and may serve
// sequential or concurrent runs.
type Engine struct {
	opts   Options
	logger *logx.Logger
}

// New creates an engine.
func New(opts Options) *Engine {
	if opts.Registry == nil {
		opts.Registry = tools.NewDefaultRegistry(tools.NewToolbox(opts.BaseDir))
	}
	return &Engine{opts: opts, logger: logx.NewLogger("engine")}
}

// Registry returns the tool registry runs dispatch to.
func (e *Engine) Registry() *tools.Registry { return e.opts.Registry }

// Run starts a run and returns its event stream. The channel is closed when
// the run ends. A consumer that stops reading must cancel ctx.
func (e *Engine) Run(ctx context.Context, request string, approver executor.Approver) <-chan event.Event {
	stream := event.NewStream(ctx)
	runID := e.startRun(ctx, request)
	ctx = logx.WithRunID(ctx, runID)
	e.attachAudit(ctx, stream, runID)

	go func() {
		defer stream.Close()
		err := e.run(ctx, stream, runID, request, approver)
		e.finishRun(ctx, runID, err)
	}()
	return stream.Events()
}

func (e *Engine) startRun(ctx context.Context, request string) string {
	if e.opts.Journal == nil {
		return uuid.New().String()
	}
	id, err := e.opts.Journal.StartRun(ctx, request)
	if err != nil {
		e.logger.Warn("journal unavailable for this run: %v", err)
		return uuid.New().String()
	}
	return id
}

func (e *Engine) finishRun(ctx context.Context, runID string, err error) {
	status, msg := persistence.StatusSucceeded, ""
	switch {
	case err != nil && ctx.Err() != nil:
		status, msg = persistence.StatusCancelled, err.Error()
	case err != nil:
		status, msg = persistence.StatusFailed, err.Error()
	}
	if err != nil {
		e.logger.Warn("run %s %s: %v", runID, status, err)
	} else {
		e.logger.Info("run %s succeeded", runID)
	}
	if e.opts.Journal == nil {
		return
	}
	if jerr := e.opts.Journal.FinishRun(context.WithoutCancel(ctx), runID, status, msg); jerr != nil {
		e.logger.Warn("failed to close journal run %s: %v", runID, jerr)
	}
}

// components are built per run so every stage reports on the run's stream.
type components struct {
	inv        *stage.Invoker
	translator *stage.Translator
	router     *router.Router
	planner    *planner.Planner
	pipelines  *channels.Pipelines
	executor   *executor.Executor
	summarizer *summarizer.Summarizer
}

func (e *Engine) build(sink event.Sink) components {
	cfg := e.opts.Config
	inv := stage.NewInvoker(e.opts.Clients, cfg, sink)
	c := coder.New(inv, sink)
	loop := quality.New(e.opts.Registry, c, sink, cfg.Quality.MaxDebuggerRetries)
	return components{
		inv:        inv,
		translator: stage.NewTranslator(inv, cfg.ReplyLanguage),
		router:     router.New(inv, sink),
		planner:    planner.New(inv, sink),
		pipelines:  channels.New(inv, e.opts.Registry, sink),
		executor: executor.New(inv, e.opts.Registry, c, loop, sink, executor.Options{
			BaseDir:     e.opts.BaseDir,
			Final:       cfg.Executor,
			AutoApprove: e.opts.AutoApprove,
		}),
		summarizer: summarizer.New(inv, sink, cfg.Summarizer),
	}
}

func (e *Engine) run(ctx context.Context, sink event.Sink, runID, request string, approver executor.Approver) error {
	err := e.pipeline(ctx, sink, runID, request, approver)
	if err == nil {
		return nil
	}
	// The ladder already reported its terminal failure.
	var cerr *contract.Error
	if !errors.As(err, &cerr) {
		sink.Emit(event.KindError, err.Error())
	}
	return err
}

func (e *Engine) pipeline(ctx context.Context, sink event.Sink, runID, request string, approver executor.Approver) error {
	request = strings.TrimSpace(request)
	if request == "" {
		return ErrEmptyRequest
	}
	c := e.build(sink)

	english, err := c.translator.ToEnglish(ctx, request)
	if err != nil {
		return fmt.Errorf("translate request: %w", err)
	}

	ix := workspace.Empty()
	if e.opts.Index != nil {
		ix = e.opts.Index.Snapshot(ctx)
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	catalogue := e.opts.Registry.Descriptors()
	decision := c.router.Route(ctx, english, catalogue)
	if e.opts.Journal != nil {
		if err := e.opts.Journal.SetChannel(context.WithoutCancel(ctx), runID, string(decision.Channel)); err != nil {
			e.logger.Warn("journal: %v", err)
		}
	}

	tasks, err := e.tasks(ctx, c, decision.Channel, english, ix, catalogue)
	if err != nil {
		return err
	}
	sink.Emit(event.KindTasks, tasks)

	shared := executor.NewSharedContext()
	evidence := make([]summarizer.Evidence, 0, len(tasks))
	for _, task := range tasks {
		if err := ctx.Err(); err != nil {
			return err
		}
		outcome, err := c.executor.Run(ctx, task, ix, shared, approver)
		if err != nil {
			return fmt.Errorf("task %d: %w", task.Step, err)
		}
		evidence = append(evidence, Evidence(task, outcome))
	}

	summary, err := c.summarizer.Summarize(ctx, english, evidence)
	if err != nil {
		return fmt.Errorf("summarize: %w", err)
	}
	if c.translator.Enabled() {
		translated, err := c.translator.FromEnglish(ctx, summary)
		if err != nil {
			e.logger.Warn("reply translation failed, keeping English: %v", err)
		} else if strings.TrimSpace(translated) != "" && !stage.IsRefusal(translated) {
			summary = translated
		}
	}
	sink.Emit(event.KindSummary, summary)
	return nil
}

func (e *Engine) tasks(ctx context.Context, c components, ch router.Channel, request string, ix *workspace.Index, catalogue []tools.Descriptor) ([]planner.Task, error) {
	switch ch {
	case router.Debug:
		return c.pipelines.Debug(ctx, request, ix)
	case router.Explain:
		return c.pipelines.Explain(ctx, request, ix)
	case router.Tool:
		return c.planner.Plan(ctx, request, catalogue)
	}
	return c.pipelines.Project(ctx, request, ix)
}

// Evidence condenses a task outcome for the summarizer.
func Evidence(task planner.Task, outcome executor.Outcome) summarizer.Evidence {
	ev := summarizer.Evidence{Task: task.Goal, Final: outcome.Final}
	for _, entry := range outcome.Context {
		ts := summarizer.ToolSummary{
			Tool: entry.Tool,
			OK:   entry.Result.OK(),
		}
		if p, ok := entry.Args["path"].(string); ok {
			ts.Path = p
		}
		if !ts.OK {
			ts.Error = entry.Result.Error()
		}
		ev.Tools = append(ev.Tools, ts)
	}
	return ev
}

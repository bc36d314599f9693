package executor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"agentflow/pkg/config"
	"agentflow/pkg/contract"
	"agentflow/pkg/event"
	"agentflow/pkg/stage"
	"agentflow/pkg/templates"
	"agentflow/pkg/tools"
	"agentflow/pkg/utils"
	"agentflow/pkg/workspace"
)

const (
	planShape     = `{"plan": [{"step": 1, "tool": "<tool name>", "goal": "<goal>"}]}`
	analysisShape = `{"path": "<relative path>"}`
	argumentShape = `{"tool": "<tool name>", "args": {}}`
)

// placeholders replace payload parameters in the args template so the
// oracle never drafts content itself.
var placeholders = map[string]string{
	"content":           "__CONTENT__",
	"diff":              "__DIFF__",
	"expected_old_hash": "__EXPECTED_HASH__",
}

// stringArgsTools accept a bare command-line string as their arguments.
var stringArgsTools = map[string]bool{
	tools.PytestRun: true,
	tools.RuffCheck: true,
	tools.MypyCheck: true,
}

type planPayload struct {
	Goal  string             `json:"goal"`
	Tools []tools.Descriptor `json:"tools"`
}

type analysisPayload struct {
	ArgsTemplate   map[string]string   `json:"args_template"`
	Goal           string              `json:"goal"`
	WorkspaceFiles []string            `json:"workspace_files"`
	RepoIndex      []workspace.Symbols `json:"repo_index"`
	TestFiles      []string            `json:"test_files,omitempty"`
	Tool           tools.Descriptor    `json:"tool"`
}

type argumentPayload struct {
	ToolContext  tools.Result      `json:"tool_context,omitempty"`
	ArgsTemplate map[string]string `json:"args_template"`
	Goal         string            `json:"goal"`
	Path         string            `json:"path,omitempty"`
	TestFiles    []string          `json:"test_files,omitempty"`
	Tool         tools.Descriptor  `json:"tool"`
}

func encode(v any) (string, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func argsTemplate(d tools.Descriptor) map[string]string {
	tmpl := d.Parameters.Template()
	for k, v := range placeholders {
		if _, ok := tmpl[k]; ok {
			tmpl[k] = v
		}
	}
	return tmpl
}

// plan asks for the tool steps of the task goal.
func (r *run) plan(ctx context.Context) ([]PlanStep, error) {
	body, err := encode(planPayload{Goal: r.task.Goal, Tools: r.e.registry.Descriptors(tools.PythonExec)})
	if err != nil {
		return nil, err
	}
	ladder := contract.Ladder[[]PlanStep]{
		Name:      config.StagePlanner,
		Scope:     r.scope,
		Kind:      event.KindPlan,
		Messages:  stage.Messages(templates.Must(templates.Planner, nil), body),
		Strict:    stage.Messages(templates.Strict(templates.Planner, planShape, "Use only tool names from the input."), body),
		Decode:    r.decodePlan,
		RetrySame: true,
	}
	steps, _, err := ladder.Run(ctx, r.e.inv, r.e.sink)
	return steps, err
}

func (r *run) decodePlan(obj map[string]any) ([]PlanStep, error) {
	raw, ok := obj["plan"].([]any)
	if !ok || len(raw) == 0 {
		return nil, errors.New(`"plan" must be a non-empty array`)
	}
	steps := make([]PlanStep, 0, len(raw))
	for i, item := range raw {
		m, ok := item.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("plan[%d] is not an object", i)
		}
		name := tools.NormalizeName(utils.StringArg(m, "tool"))
		if !r.e.registry.Has(name) {
			return nil, fmt.Errorf("plan[%d]: %w: %q", i, ErrUnknownTool, name)
		}
		goal := strings.TrimSpace(utils.StringArg(m, "goal"))
		if goal == "" {
			goal = r.task.Goal
		}
		steps = append(steps, PlanStep{Step: utils.IntArg(m, "step", i+1), Tool: name, Goal: goal})
	}
	return steps, nil
}

// analyze selects the path a step operates on. The result is "" when the
// tool takes no path and none was offered.
func (r *run) analyze(ctx context.Context, step PlanStep, d tools.Descriptor) (string, error) {
	p := analysisPayload{
		Tool:           d,
		Goal:           step.Goal,
		ArgsTemplate:   argsTemplate(d),
		WorkspaceFiles: r.ix.Files,
		RepoIndex:      r.ix.PySymbols,
	}
	if step.Tool == tools.PytestRun {
		p.TestFiles = r.ix.TestFiles()
	}
	body, err := encode(p)
	if err != nil {
		return "", err
	}
	r.e.sink.Emit(event.KindToolAnalysisPrompt, body)

	ladder := contract.Ladder[string]{
		Name:     config.StageToolAnalysis,
		Scope:    step.Tool,
		Messages: stage.Messages(templates.Must(templates.ToolAnalysis, nil), body),
		Strict:   stage.Messages(templates.Strict(templates.ToolAnalysis, analysisShape, "Pick a path from workspace_files."), body),
		Decode: func(obj map[string]any) (string, error) {
			path := workspace.NormalizePath(utils.StringArg(obj, "path"))
			if path == "." {
				path = ""
			}
			if path == "" && d.Parameters.Requires("path") {
				return "", errors.New(`"path" is required for ` + d.Name)
			}
			return path, nil
		},
		RetrySame: true,
	}
	path, _, err := ladder.Run(ctx, r.e.inv, r.e.sink)
	return path, err
}

// synthesizeArgs asks for the arguments of a non-write tool.
func (r *run) synthesizeArgs(ctx context.Context, step PlanStep, d tools.Descriptor, path string) (map[string]any, error) {
	p := argumentPayload{
		Tool:         d,
		Goal:         step.Goal,
		Path:         path,
		ArgsTemplate: argsTemplate(d),
	}
	if path != "" {
		if prev, ok := r.shared.LatestPreview(path); ok {
			p.ToolContext = prev.Result
		}
	}
	if step.Tool == tools.PytestRun {
		p.TestFiles = r.ix.TestFiles()
	}
	body, err := encode(p)
	if err != nil {
		return nil, err
	}
	r.e.sink.Emit(event.KindToolArgumentPrompt, body)

	ladder := contract.Ladder[map[string]any]{
		Name:      config.StageToolArgument,
		Scope:     step.Tool,
		Messages:  stage.Messages(templates.Must(templates.ToolArgument, nil), body),
		Strict:    stage.Messages(templates.Strict(templates.ToolArgument, argumentShape, "\"tool\" must be "+step.Tool+"."), body),
		Decode:    func(obj map[string]any) (map[string]any, error) { return decodeArgs(obj, d, path) },
		RetrySame: true,
	}
	args, _, err := ladder.Run(ctx, r.e.inv, r.e.sink)
	return args, err
}

// decodeArgs validates a tool_argument answer. The selected path is filled
// in before required parameters are checked.
func decodeArgs(obj map[string]any, d tools.Descriptor, path string) (map[string]any, error) {
	if got := tools.NormalizeName(utils.StringArg(obj, "tool")); got != d.Name {
		return nil, fmt.Errorf("tool %q does not match %q", got, d.Name)
	}
	var args map[string]any
	switch v := obj["args"].(type) {
	case map[string]any:
		args = v
	case string:
		if !stringArgsTools[d.Name] {
			return nil, fmt.Errorf("args for %s must be an object", d.Name)
		}
		args = map[string]any{"args": v}
	case nil:
		args = map[string]any{}
	default:
		return nil, fmt.Errorf("args has unexpected type %T", v)
	}
	if _, ok := d.Parameters.Properties["path"]; ok && path != "" && utils.StringArg(args, "path") == "" {
		args["path"] = path
	}
	for _, req := range d.Parameters.Required {
		if isBlank(args[req]) {
			return nil, fmt.Errorf("required argument %q is missing", req)
		}
	}
	return args, nil
}

func isBlank(v any) bool {
	switch t := v.(type) {
	case nil:
		return true
	case string:
		return strings.TrimSpace(t) == ""
	case []any:
		return len(t) == 0
	}
	return false
}

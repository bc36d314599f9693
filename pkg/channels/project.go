package channels

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"agentflow/pkg/config"
	"agentflow/pkg/event"
	"agentflow/pkg/planner"
	"agentflow/pkg/templates"
	"agentflow/pkg/utils"
	"agentflow/pkg/workspace"
)

// Point is one work item of a project plan.
type Point struct {
	Module string `json:"module"`
	Goal   string `json:"goal"`
	Point  int    `json:"point"`
}

const (
	pointsShape    = `{"plan": [{"point": 1, "module": "<path from workspace_files>", "goal": "<goal>"}]}`
	structureShape = `{"structure": ["<path>"]}`
)

type managerPayload struct {
	Request        string   `json:"request"`
	WorkspaceFiles []string `json:"workspace_files"`
}

type plannerPayload struct {
	Request        string   `json:"request"`
	Plan           string   `json:"plan"`
	WorkspaceFiles []string `json:"workspace_files"`
}

type routePayload struct {
	Request string  `json:"request"`
	Plan    []Point `json:"plan"`
}

func decodePoints(obj map[string]any) ([]Point, error) {
	raw, ok := obj["plan"].([]any)
	if !ok || len(raw) == 0 {
		return nil, errors.New(`"plan" must be a non-empty array`)
	}
	out := make([]Point, 0, len(raw))
	for i, item := range raw {
		m, ok := item.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("plan[%d] is not an object", i)
		}
		pt := Point{
			Point:  utils.IntArg(m, "point", i+1),
			Module: strings.TrimSpace(utils.StringArg(m, "module")),
			Goal:   strings.TrimSpace(utils.StringArg(m, "goal")),
		}
		if pt.Module == "" && pt.Goal == "" {
			return nil, fmt.Errorf("plan[%d] has neither module nor goal", i)
		}
		out = append(out, pt)
	}
	return out, nil
}

func decodeStructure(obj map[string]any) ([]string, error) {
	if _, ok := obj["structure"].([]any); !ok {
		return nil, errors.New(`"structure" must be an array`)
	}
	return utils.StringsArg(obj, "structure"), nil
}

// RemapModules replaces modules that are not index paths with the first
// index path mentioned in request, or else the first index path. With an
// empty index modules are kept.
func RemapModules(points []Point, request string, ix *workspace.Index) []Point {
	if ix == nil || len(ix.Files) == 0 {
		return points
	}
	target, ok := ix.FirstMentioned(request)
	if !ok {
		target = ix.Files[0]
	}
	out := make([]Point, len(points))
	for i, pt := range points {
		if norm := workspace.NormalizePath(pt.Module); ix.Contains(norm) {
			pt.Module = norm
		} else {
			pt.Module = target
		}
		out[i] = pt
	}
	return out
}

// Project runs project_manager, project_planner and the advisory
// route_planner, and derives one task per plan point.
func (p *Pipelines) Project(ctx context.Context, request string, ix *workspace.Index) ([]planner.Task, error) {
	if ix == nil {
		ix = workspace.Empty()
	}
	plan, err := p.text(ctx, config.StageProjectManager, templates.ProjectManager,
		managerPayload{Request: request, WorkspaceFiles: ix.Files}, request)
	if err != nil {
		return nil, err
	}

	l, err := ladder(config.StageProjectPlanner, templates.ProjectPlanner,
		plannerPayload{Request: request, Plan: plan, WorkspaceFiles: ix.Files}, pointsShape, decodePoints)
	if err != nil {
		return nil, err
	}
	points, _, err := l.Run(ctx, p.inv, p.sink)
	if err != nil {
		return nil, err
	}
	points = RemapModules(points, request, ix)
	p.emit(config.StageProjectPlanner, points)

	p.routePlan(ctx, request, points)
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	tasks := make([]planner.Task, len(points))
	for i, pt := range points {
		goal := pt.Goal
		if goal == "" {
			goal = "Implement in " + pt.Module
		}
		tasks[i] = planner.Task{Goal: goal}
	}
	return finishTasks(tasks)
}

// routePlan is advisory: its output is emitted and never enforced, and
// failures are reported as system events.
func (p *Pipelines) routePlan(ctx context.Context, request string, points []Point) {
	l, err := ladder(config.StageRoutePlanner, templates.RoutePlanner, routePayload{Request: request, Plan: points}, structureShape, decodeStructure)
	if err != nil {
		p.logger.Warn("route_planner payload: %v", err)
		return
	}
	structure, _, err := l.Run(ctx, p.inv, advisory{p.sink})
	if err != nil {
		p.logger.Warn("route_planner failed (advisory): %v", err)
		return
	}
	p.emit(config.StageRoutePlanner, structure)
}

// advisory downgrades error events to system events.
type advisory struct{ event.Sink }

func (a advisory) Emit(kind event.Kind, payload any) {
	if kind == event.KindError {
		a.Sink.Emit(event.KindSystem, fmt.Sprintf("advisory stage failed: %v", payload))
		return
	}
	a.Sink.Emit(kind, payload)
}

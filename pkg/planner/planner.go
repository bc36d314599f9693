// Package planner decomposes a request into ordered tasks.
package planner

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"agentflow/pkg/config"
	"agentflow/pkg/contract"
	"agentflow/pkg/event"
	"agentflow/pkg/logx"
	"agentflow/pkg/stage"
	"agentflow/pkg/templates"
	"agentflow/pkg/tools"
	"agentflow/pkg/utils"
)

// ErrEmptyPlan is returned when no executable task remains.
var ErrEmptyPlan = errors.New("task plan is empty")

// Task is one unit of work for the tool plan executor. Steps are 1-based.
type Task struct {
	Goal       string `json:"goal"`
	ElementRef string `json:"element_ref,omitempty"`
	Step       int    `json:"step"`
}

const tasksShape = `{"tasks": [{"step": 1, "goal": "<outcome>"}]}`

// Planner calls the task_planner stage.
type Planner struct {
	inv    contract.Invoker
	sink   event.Sink
	logger *logx.Logger
}

// New creates a planner.
func New(inv contract.Invoker, sink event.Sink) *Planner {
	if sink == nil {
		sink = event.Discard
	}
	return &Planner{inv: inv, sink: sink, logger: logx.NewLogger("planner")}
}

type planPayload struct {
	Request string             `json:"request"`
	Tools   []tools.Descriptor `json:"tools,omitempty"`
}

// Plan returns the filtered, renumbered task list for request. catalogue is
// only passed for the tool channel.
func (p *Planner) Plan(ctx context.Context, request string, catalogue []tools.Descriptor) ([]Task, error) {
	body, err := json.Marshal(planPayload{Request: request, Tools: catalogue})
	if err != nil {
		return nil, err
	}
	ladder := contract.Ladder[[]Task]{
		Name:      config.StageTaskPlanner,
		Scope:     "global",
		Kind:      event.KindTaskPlan,
		Messages:  stage.Messages(templates.Must(templates.TaskPlanner, nil), string(body)),
		Strict:    stage.Messages(templates.Strict(templates.TaskPlanner, tasksShape, ""), string(body)),
		Decode:    DecodeTasks,
		RetrySame: true,
	}
	tasks, _, err := ladder.Run(ctx, p.inv, p.sink)
	if err != nil {
		return nil, err
	}

	kept := Filter(tasks, request)
	if dropped := len(tasks) - len(kept); dropped > 0 {
		p.logger.Debug("dropped %d report/summary task(s)", dropped)
	}
	kept = Renumber(kept)
	if err := Validate(kept); err != nil {
		return nil, err
	}
	return kept, nil
}

// DecodeTasks reads {"tasks": [...]} and rejects an empty list or a blank
// goal. Items may be objects or bare goal strings.
func DecodeTasks(obj map[string]any) ([]Task, error) {
	raw, ok := obj["tasks"].([]any)
	if !ok || len(raw) == 0 {
		return nil, errors.New(`"tasks" must be a non-empty array`)
	}
	out := make([]Task, 0, len(raw))
	for i, item := range raw {
		var t Task
		switch v := item.(type) {
		case string:
			t = Task{Goal: strings.TrimSpace(v)}
		case map[string]any:
			t = Task{
				Step:       utils.IntArg(v, "step", i+1),
				Goal:       strings.TrimSpace(utils.StringArg(v, "goal")),
				ElementRef: strings.TrimSpace(utils.StringArg(v, "element_ref")),
			}
		default:
			return nil, fmt.Errorf("tasks[%d] has unexpected type %T", i, item)
		}
		if t.Goal == "" {
			return nil, fmt.Errorf("tasks[%d] has an empty goal", i)
		}
		out = append(out, t)
	}
	return out, nil
}

// Filter drops tasks that only report or summarize, unless request asks
// for a report or summary itself.
func Filter(tasks []Task, request string) []Task {
	if mentionsReport(request) {
		return tasks
	}
	out := make([]Task, 0, len(tasks))
	for _, t := range tasks {
		if !mentionsReport(t.Goal) {
			out = append(out, t)
		}
	}
	return out
}

func mentionsReport(s string) bool {
	l := strings.ToLower(s)
	return strings.Contains(l, "report") || strings.Contains(l, "summary")
}

// Renumber assigns steps 1..n in order.
func Renumber(tasks []Task) []Task {
	out := make([]Task, len(tasks))
	for i, t := range tasks {
		t.Step = i + 1
		out[i] = t
	}
	return out
}

// Validate rejects an empty list or a blank goal.
func Validate(tasks []Task) error {
	if len(tasks) == 0 {
		return ErrEmptyPlan
	}
	for _, t := range tasks {
		if strings.TrimSpace(t.Goal) == "" {
			return fmt.Errorf("%w: task %d has no goal", ErrEmptyPlan, t.Step)
		}
	}
	return nil
}

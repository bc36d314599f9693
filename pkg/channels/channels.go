// Package channels implements the project, debug and explain pipelines.
// Each is a fixed chain of stages that ends in a task list.
package channels

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"agentflow/pkg/agent/llm"
	"agentflow/pkg/contract"
	"agentflow/pkg/event"
	"agentflow/pkg/logx"
	"agentflow/pkg/planner"
	"agentflow/pkg/stage"
	"agentflow/pkg/templates"
	"agentflow/pkg/tools"
	"agentflow/pkg/utils"
)

// Pipelines runs channel chains against one invoker and tool registry.
type Pipelines struct {
	inv      contract.Invoker
	registry *tools.Registry
	sink     event.Sink
	logger   *logx.Logger
}

// New creates the pipelines. registry serves Workspace Search.
func New(inv contract.Invoker, registry *tools.Registry, sink event.Sink) *Pipelines {
	if sink == nil {
		sink = event.Discard
	}
	return &Pipelines{inv: inv, registry: registry, sink: sink, logger: logx.NewLogger("channels")}
}

// stageOutput is the payload of pipeline events.
type stageOutput struct {
	Output any    `json:"output"`
	Stage  string `json:"stage"`
}

func (p *Pipelines) emit(stageName string, output any) {
	p.sink.Emit(event.KindPipeline, stageOutput{Stage: stageName, Output: output})
}

func messages(prompt templates.Name, payload any) ([]llm.CompletionMessage, string, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, "", err
	}
	return stage.Messages(templates.Must(prompt, nil), string(body)), string(body), nil
}

// text runs a free-text stage once. Empty output yields fallback.
func (p *Pipelines) text(ctx context.Context, stageName string, prompt templates.Name, payload any, fallback string) (string, error) {
	msgs, _, err := messages(prompt, payload)
	if err != nil {
		return "", err
	}
	out, err := p.inv.Invoke(ctx, stageName, msgs)
	if err != nil {
		return "", fmt.Errorf("%s: %w", stageName, err)
	}
	out = strings.TrimSpace(out)
	if out == "" {
		p.logger.Debug("%s returned nothing, keeping input", stageName)
		out = fallback
	}
	p.emit(stageName, out)
	return out, nil
}

// ladder builds a JSON stage ladder with the strict addendum for shape.
func ladder[T any](stageName string, prompt templates.Name, payload any, shape string, decode func(map[string]any) (T, error)) (contract.Ladder[T], error) {
	_, body, err := messages(prompt, payload)
	if err != nil {
		return contract.Ladder[T]{}, err
	}
	return contract.Ladder[T]{
		Name:      stageName,
		Scope:     "global",
		Kind:      event.KindPipeline,
		Messages:  stage.Messages(templates.Must(prompt, nil), body),
		Strict:    stage.Messages(templates.Strict(prompt, shape, ""), body),
		Decode:    decode,
		RetrySame: true,
	}, nil
}

// Element is a code element to locate.
type Element struct {
	Type   string `json:"type"`
	Search string `json:"search"`
}

const elementsShape = `{"elements": [{"type": "file|function|class|variable|text", "search": "<term>"}]}`

// decodeElements accepts an empty list; blank search terms are dropped.
func decodeElements(obj map[string]any) ([]Element, error) {
	raw, ok := obj["elements"].([]any)
	if !ok {
		return nil, errors.New(`"elements" must be an array`)
	}
	out := make([]Element, 0, len(raw))
	for _, item := range raw {
		m, ok := item.(map[string]any)
		if !ok {
			continue
		}
		e := Element{Type: strings.TrimSpace(utils.StringArg(m, "type")), Search: strings.TrimSpace(utils.StringArg(m, "search"))}
		if e.Search != "" {
			out = append(out, e)
		}
	}
	return out, nil
}

// finishTasks renumbers tasks and rejects an empty list.
func finishTasks(tasks []planner.Task) ([]planner.Task, error) {
	tasks = planner.Renumber(tasks)
	if err := planner.Validate(tasks); err != nil {
		return nil, err
	}
	return tasks, nil
}

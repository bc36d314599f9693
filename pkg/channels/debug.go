package channels

import (
	"context"

	"agentflow/pkg/config"
	"agentflow/pkg/planner"
	"agentflow/pkg/templates"
	"agentflow/pkg/workspace"
)

// MaxDebugTasks caps the fix plan.
const MaxDebugTasks = 3

const resolverShape = `{"tasks": [{"step": 1, "goal": "<file and change>"}]}`

type goalPayload struct {
	Request string `json:"request"`
}

type discoveryPayload struct {
	Goal           string   `json:"goal"`
	WorkspaceFiles []string `json:"workspace_files"`
}

type hitsPayload struct {
	Goal string `json:"goal"`
	Hits []Hit  `json:"hits"`
}

type resolverPayload struct {
	Goal      string `json:"goal"`
	Diagnosis string `json:"diagnosis"`
	Hits      []Hit  `json:"hits"`
}

// discover runs a discovery stage and searches for what it names.
func (p *Pipelines) discover(ctx context.Context, stageName string, prompt templates.Name, goal string, ix *workspace.Index) ([]Hit, error) {
	l, err := ladder(stageName, prompt, discoveryPayload{Goal: goal, WorkspaceFiles: ix.Files}, elementsShape, decodeElements)
	if err != nil {
		return nil, err
	}
	elements, _, err := l.Run(ctx, p.inv, p.sink)
	if err != nil {
		return nil, err
	}
	if len(elements) == 0 {
		p.logger.Debug("%s found nothing to search", stageName)
		return nil, nil
	}
	hits := p.Search(ctx, elements, ix)
	p.emit("search", hits)
	return hits, ctx.Err()
}

// Debug runs request_manager, discovery, Workspace Search, reasoner and
// plan_resolver. The result has one to three tasks.
func (p *Pipelines) Debug(ctx context.Context, request string, ix *workspace.Index) ([]planner.Task, error) {
	if ix == nil {
		ix = workspace.Empty()
	}
	goal, err := p.text(ctx, config.StageRequestManager, templates.RequestManager, goalPayload{Request: request}, request)
	if err != nil {
		return nil, err
	}
	hits, err := p.discover(ctx, config.StageDiscovery, templates.Discovery, goal, ix)
	if err != nil {
		return nil, err
	}
	diagnosis, err := p.text(ctx, config.StageReasoner, templates.Reasoner, hitsPayload{Goal: goal, Hits: hits}, goal)
	if err != nil {
		return nil, err
	}

	l, err := ladder(config.StagePlanResolver, templates.PlanResolver,
		resolverPayload{Goal: goal, Diagnosis: diagnosis, Hits: hits}, resolverShape, planner.DecodeTasks)
	if err != nil {
		return nil, err
	}
	tasks, _, err := l.Run(ctx, p.inv, p.sink)
	if err != nil {
		return nil, err
	}
	if len(tasks) > MaxDebugTasks {
		p.logger.Debug("plan_resolver returned %d tasks, keeping %d", len(tasks), MaxDebugTasks)
		tasks = tasks[:MaxDebugTasks]
	}
	return finishTasks(tasks)
}

package channels

import (
	"context"

	"agentflow/pkg/config"
	"agentflow/pkg/planner"
	"agentflow/pkg/templates"
	"agentflow/pkg/workspace"
)

const explainShape = `{"tasks": [{"step": 1, "goal": "<goal>", "element_ref": "<path or symbol>"}]}`

// Explain runs explainer, explain_discovery, Workspace Search and
// explain_planner. Tasks carry the element they concern.
func (p *Pipelines) Explain(ctx context.Context, request string, ix *workspace.Index) ([]planner.Task, error) {
	if ix == nil {
		ix = workspace.Empty()
	}
	goal, err := p.text(ctx, config.StageExplainer, templates.Explainer, goalPayload{Request: request}, request)
	if err != nil {
		return nil, err
	}
	hits, err := p.discover(ctx, config.StageExplainDiscovery, templates.ExplainDiscover, goal, ix)
	if err != nil {
		return nil, err
	}

	l, err := ladder(config.StageExplainPlanner, templates.ExplainPlanner, hitsPayload{Goal: goal, Hits: hits}, explainShape, planner.DecodeTasks)
	if err != nil {
		return nil, err
	}
	tasks, _, err := l.Run(ctx, p.inv, p.sink)
	if err != nil {
		return nil, err
	}
	return finishTasks(tasks)
}

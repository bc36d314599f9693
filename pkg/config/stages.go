package config

// Stage names known to the engine.
const (
	StageRouter           = "router"
	StageTaskPlanner      = "task_planner"
	StagePlanner          = "planner"
	StageToolAnalysis     = "tool_analysis"
	StageToolArgument     = "tool_argument"
	StageCoder            = "coder"
	StageDebugger         = "debugger"
	StageFinal            = "final"
	StageSummary          = "summary"
	StageTranslator       = "translator"
	StageProjectManager   = "project_manager"
	StageProjectPlanner   = "project_planner"
	StageRoutePlanner     = "route_planner"
	StageRequestManager   = "request_manager"
	StageDiscovery        = "discovery"
	StageReasoner         = "reasoner"
	StagePlanResolver     = "plan_resolver"
	StageExplainer        = "explainer"
	StageExplainDiscovery = "explain_discovery"
	StageExplainPlanner   = "explain_planner"
)

const (
	defaultNumCtx     = 4096
	defaultNumPredict = 4096
)

// AllStages lists every stage in pipeline order.
var AllStages = []string{
	StageRouter, StageTaskPlanner, StagePlanner, StageToolAnalysis, StageToolArgument,
	StageCoder, StageDebugger, StageFinal, StageSummary, StageTranslator,
	StageProjectManager, StageProjectPlanner, StageRoutePlanner,
	StageRequestManager, StageDiscovery, StageReasoner, StagePlanResolver,
	StageExplainer, StageExplainDiscovery, StageExplainPlanner,
}

// DefaultStages returns the per-stage token windows.
func DefaultStages() map[string]StageConfig {
	m := make(map[string]StageConfig, len(AllStages))
	for _, s := range AllStages {
		m[s] = StageConfig{NumCtx: defaultNumCtx, NumPredict: defaultNumPredict}
	}
	m[StageCoder] = StageConfig{NumCtx: 8192, NumPredict: 8192}
	m[StageDebugger] = StageConfig{NumCtx: 8192, NumPredict: 8192}
	m[StageReasoner] = StageConfig{NumCtx: 8192, NumPredict: 4096}
	m[StageRequestManager] = StageConfig{NumCtx: 4096, NumPredict: 1024}
	return m
}

// Package templates holds the embedded stage prompts.
package templates

import (
	"bytes"
	"embed"
	"fmt"
	"sync"
	"text/template"
)

//go:embed prompts/*.tpl.md
var promptFS embed.FS

// Name identifies a prompt template.
type Name string

const (
	Router          Name = "router.tpl.md"
	TaskPlanner     Name = "task_planner.tpl.md"
	Planner         Name = "planner.tpl.md"
	ToolAnalysis    Name = "tool_analysis.tpl.md"
	ToolArgument    Name = "tool_argument.tpl.md"
	StrictJSON      Name = "strict_json.tpl.md"
	CoderDiff       Name = "coder_diff.tpl.md"
	CoderContent    Name = "coder_content.tpl.md"
	CoderEnv        Name = "coder_env.tpl.md"
	CoderYAML       Name = "coder_yaml.tpl.md"
	CoderJSON       Name = "coder_json.tpl.md"
	CoderReplace    Name = "coder_replace.tpl.md"
	Debugger        Name = "debugger.tpl.md"
	Final           Name = "final.tpl.md"
	Summary         Name = "summary.tpl.md"
	SummaryChunk    Name = "summary_chunk.tpl.md"
	SummaryMerge    Name = "summary_merge.tpl.md"
	Translator      Name = "translator.tpl.md"
	ProjectManager  Name = "project_manager.tpl.md"
	ProjectPlanner  Name = "project_planner.tpl.md"
	RoutePlanner    Name = "route_planner.tpl.md"
	RequestManager  Name = "request_manager.tpl.md"
	Discovery       Name = "discovery.tpl.md"
	Reasoner        Name = "reasoner.tpl.md"
	PlanResolver    Name = "plan_resolver.tpl.md"
	Explainer       Name = "explainer.tpl.md"
	ExplainDiscover Name = "explain_discovery.tpl.md"
	ExplainPlanner  Name = "explain_planner.tpl.md"
)

// StrictData fills StrictJSON.
type StrictData struct {
	Shape string
	Note  string
}

// TranslatorData fills Translator.
type TranslatorData struct {
	Language string
}

// Renderer executes embedded prompt templates.
type Renderer struct {
	templates *template.Template
}

// NewRenderer parses every embedded prompt.
func NewRenderer() (*Renderer, error) {
	tmpl, err := template.New("").Option("missingkey=error").ParseFS(promptFS, "prompts/*.tpl.md")
	if err != nil {
		return nil, fmt.Errorf("failed to parse prompts: %w", err)
	}
	return &Renderer{templates: tmpl}, nil
}

// Render executes the named prompt with data.
func (r *Renderer) Render(name Name, data any) (string, error) {
	t := r.templates.Lookup(string(name))
	if t == nil {
		return "", fmt.Errorf("prompt %s not found", name)
	}
	var buf bytes.Buffer
	if err := t.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("failed to render prompt %s: %w", name, err)
	}
	return buf.String(), nil
}

var (
	defaultOnce     sync.Once
	defaultRenderer *Renderer
	errDefault      error
)

// Default returns the process-wide renderer.
func Default() (*Renderer, error) {
	defaultOnce.Do(func() {
		defaultRenderer, errDefault = NewRenderer()
	})
	return defaultRenderer, errDefault
}

// Must renders name with data on the default renderer and panics on error.
// Prompts are embedded at build time, so a failure here is a programming error.
func Must(name Name, data any) string {
	r, err := Default()
	if err != nil {
		panic(err)
	}
	out, err := r.Render(name, data)
	if err != nil {
		panic(err)
	}
	return out
}

// Strict returns base followed by the strict JSON addendum for shape.
func Strict(base Name, shape, note string) string {
	return Must(base, nil) + Must(StrictJSON, StrictData{Shape: shape, Note: note})
}

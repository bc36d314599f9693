package templates

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var allNames = []Name{
	Router, TaskPlanner, Planner, ToolAnalysis, ToolArgument, CoderDiff, CoderContent,
	CoderEnv, CoderYAML, CoderJSON, CoderReplace, Debugger, Final, Summary, SummaryChunk,
	SummaryMerge, ProjectManager, ProjectPlanner, RoutePlanner, RequestManager, Discovery,
	Reasoner, PlanResolver, Explainer, ExplainDiscover, ExplainPlanner,
}

func TestRenderStaticPrompts(t *testing.T) {
	r, err := NewRenderer()
	require.NoError(t, err)

	for _, name := range allNames {
		t.Run(string(name), func(t *testing.T) {
			out, err := r.Render(name, nil)
			require.NoError(t, err)
			assert.NotEmpty(t, strings.TrimSpace(out))
		})
	}
}

func TestRenderTranslator(t *testing.T) {
	r, err := NewRenderer()
	require.NoError(t, err)

	out, err := r.Render(Translator, TranslatorData{Language: "German"})
	require.NoError(t, err)
	assert.Contains(t, out, "into German")

	_, err = r.Render(Translator, map[string]string{})
	assert.Error(t, err, "missing key must fail")
}

func TestRenderUnknown(t *testing.T) {
	r, err := NewRenderer()
	require.NoError(t, err)
	_, err = r.Render("nope.tpl.md", nil)
	assert.Error(t, err)
}

func TestStrict(t *testing.T) {
	out := Strict(TaskPlanner, `{"tasks":[{"step":1,"goal":"..."}]}`, "")
	assert.True(t, strings.HasPrefix(out, Must(TaskPlanner, nil)))
	assert.Contains(t, out, "STRICT MODE")
	assert.Contains(t, out, `{"tasks":[{"step":1,"goal":"..."}]}`)
	assert.NotContains(t, out, "<no value>")

	withNote := Strict(Planner, `{"plan":[]}`, "Allowed tools: read_file")
	assert.Contains(t, withNote, "Allowed tools: read_file")
}

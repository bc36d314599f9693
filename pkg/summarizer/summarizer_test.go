package summarizer

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"agentflow/pkg/agent/llm"
	"agentflow/pkg/config"
	"agentflow/pkg/templates"
)

// promptInvoker answers by prompt template.
type promptInvoker struct {
	answers map[templates.Name]func() (string, error)
	calls   map[templates.Name]int
	mu      sync.Mutex
}

func newPromptInvoker() *promptInvoker {
	return &promptInvoker{answers: map[templates.Name]func() (string, error){}, calls: map[templates.Name]int{}}
}

func (p *promptInvoker) on(name templates.Name, fn func() (string, error)) *promptInvoker {
	p.answers[name] = fn
	return p
}

func (p *promptInvoker) Invoke(_ context.Context, stage string, msgs []llm.CompletionMessage) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if stage != config.StageSummary {
		return "", fmt.Errorf("unexpected stage %s", stage)
	}
	for _, name := range []templates.Name{templates.Summary, templates.SummaryChunk, templates.SummaryMerge} {
		if msgs[0].Content == templates.Must(name, nil) {
			p.calls[name]++
			if fn, ok := p.answers[name]; ok {
				return fn()
			}
			return "", errors.New("no answer")
		}
	}
	return "", errors.New("unknown prompt")
}

func fixed(s string) func() (string, error) { return func() (string, error) { return s, nil } }

func testConfig(budget int) config.SummarizerConfig {
	return config.SummarizerConfig{Budget: budget, MergeBudget: budget, Retries: 3, Backoff: config.Duration(time.Millisecond)}
}

func manyEvidence(n, width int) []Evidence {
	out := make([]Evidence, n)
	for i := range out {
		out[i] = Evidence{Task: fmt.Sprintf("task %d", i+1), Final: strings.Repeat("a", width)}
	}
	return out
}

func TestSingleCall(t *testing.T) {
	inv := newPromptInvoker().on(templates.Summary, fixed("Updated calc.py."))
	s := New(inv, nil, testConfig(12000))

	out, err := s.Summarize(context.Background(), "add subtract", []Evidence{{
		Task: "Add subtract", Final: "Done", Tools: []ToolSummary{{Tool: "safe_write", Path: "calc.py", OK: true}},
	}})
	require.NoError(t, err)
	assert.Equal(t, "Updated calc.py.", out)
	assert.Equal(t, 1, inv.calls[templates.Summary])
	assert.Zero(t, inv.calls[templates.SummaryChunk])
}

func TestChunkAndMerge(t *testing.T) {
	inv := newPromptInvoker().
		on(templates.SummaryChunk, fixed("part")).
		on(templates.SummaryMerge, fixed("merged report"))
	s := New(inv, nil, testConfig(600))

	out, err := s.Summarize(context.Background(), "refactor", manyEvidence(50, 100))
	require.NoError(t, err)
	assert.Equal(t, "merged report", out)
	assert.GreaterOrEqual(t, inv.calls[templates.SummaryChunk], 8)
	assert.Equal(t, 1, inv.calls[templates.SummaryMerge])
	assert.Zero(t, inv.calls[templates.Summary])
}

func TestChunkRespectsBudget(t *testing.T) {
	ev := manyEvidence(50, 100)
	chunks := Chunk("refactor", ev, 600)
	total := 0
	for _, c := range chunks {
		total += len(c)
		assert.LessOrEqual(t, size(evidencePayload{Request: "refactor", Evidence: c}), 600)
	}
	assert.Equal(t, 50, total)

	huge := []Evidence{{Task: "big", Final: strings.Repeat("b", 2000)}, {Task: "small"}}
	chunks = Chunk("r", huge, 600)
	require.Len(t, chunks, 2)
	assert.Equal(t, "big", chunks[0][0].Task)
}

func TestRecursesWhenMergeOverBudget(t *testing.T) {
	inv := newPromptInvoker().
		on(templates.SummaryChunk, fixed(strings.Repeat("s", 150))).
		on(templates.SummaryMerge, fixed("final"))
	s := New(inv, nil, testConfig(600))

	out, err := s.Summarize(context.Background(), "refactor", manyEvidence(50, 100))
	require.NoError(t, err)
	assert.Equal(t, "final", out)
	assert.Equal(t, 1, inv.calls[templates.SummaryMerge])
	assert.Greater(t, inv.calls[templates.SummaryChunk], 17, "a second chunking round ran over the synthetic evidence")
}

func TestFallbacks(t *testing.T) {
	down := func() (string, error) { return "", errors.New("503") }

	s := New(newPromptInvoker().on(templates.Summary, down), nil, testConfig(12000))
	out, err := s.Summarize(context.Background(), "r", manyEvidence(1, 10))
	require.NoError(t, err)
	assert.Equal(t, Fallback, out)

	inv := newPromptInvoker().on(templates.SummaryChunk, fixed("first part")).on(templates.SummaryMerge, down)
	out, err = New(inv, nil, testConfig(600)).Summarize(context.Background(), "r", manyEvidence(50, 100))
	require.NoError(t, err)
	assert.Equal(t, "first part", out)
	assert.Equal(t, 3, inv.calls[templates.SummaryMerge], "each call is retried")
}

func TestRetryRecovers(t *testing.T) {
	n := 0
	flaky := func() (string, error) {
		n++
		if n < 3 {
			return "", errors.New("connection reset")
		}
		return "ok", nil
	}
	inv := newPromptInvoker().on(templates.Summary, flaky)
	out, err := New(inv, nil, testConfig(12000)).Summarize(context.Background(), "r", nil)
	require.NoError(t, err)
	assert.Equal(t, "ok", out)
	assert.Equal(t, 3, inv.calls[templates.Summary])
}

func TestCancellationIsReturned(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	inv := newPromptInvoker().on(templates.Summary, func() (string, error) {
		cancel()
		return "", context.Canceled
	})
	_, err := New(inv, nil, testConfig(12000)).Summarize(ctx, "r", nil)
	require.ErrorIs(t, err, context.Canceled)
}

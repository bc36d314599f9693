// Package summarizer condenses a run's evidence into the final report,
// chunking and merging when the evidence exceeds the prompt budget.
package summarizer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"agentflow/pkg/config"
	"agentflow/pkg/contract"
	"agentflow/pkg/event"
	"agentflow/pkg/logx"
	"agentflow/pkg/stage"
	"agentflow/pkg/templates"
	"agentflow/pkg/utils"
)

// Fallback is returned when the single-shot summary cannot be produced.
const Fallback = "Summary unavailable."

// ToolSummary is the outcome of one tool call.
type ToolSummary struct {
	Tool  string `json:"tool"`
	Path  string `json:"path,omitempty"`
	Error string `json:"error,omitempty"`
	OK    bool   `json:"ok"`
}

// Evidence is what one task contributed to the run.
type Evidence struct {
	Task  string        `json:"task"`
	Final string        `json:"final"`
	Tools []ToolSummary `json:"tools,omitempty"`
}

type evidencePayload struct {
	Request  string     `json:"request"`
	Evidence []Evidence `json:"evidence"`
}

type mergePayload struct {
	Request   string   `json:"request"`
	Summaries []string `json:"summaries"`
}

// Summarizer calls the summary stage.
type Summarizer struct {
	inv    contract.Invoker
	sink   event.Sink
	logger *logx.Logger
	cfg    config.SummarizerConfig
}

// New creates a summarizer. Zero budgets and retries take the defaults.
func New(inv contract.Invoker, sink event.Sink, cfg config.SummarizerConfig) *Summarizer {
	def := config.Default().Summarizer
	if cfg.Budget <= 0 {
		cfg.Budget = def.Budget
	}
	if cfg.MergeBudget <= 0 {
		cfg.MergeBudget = def.MergeBudget
	}
	if cfg.Retries <= 0 {
		cfg.Retries = def.Retries
	}
	if cfg.Backoff < 0 {
		cfg.Backoff = 0
	}
	if sink == nil {
		sink = event.Discard
	}
	return &Summarizer{inv: inv, sink: sink, logger: logx.NewLogger("summarizer"), cfg: cfg}
}

func size(v any) int {
	b, err := json.Marshal(v)
	if err != nil {
		return 0
	}
	return len(b)
}

// Chunk groups evidence greedily so each chunk's payload stays within
// budget. An item that is too large on its own forms its own chunk.
func Chunk(request string, evidence []Evidence, budget int) [][]Evidence {
	var chunks [][]Evidence
	var cur []Evidence
	for _, e := range evidence {
		next := append(append([]Evidence(nil), cur...), e)
		if len(cur) > 0 && size(evidencePayload{Request: request, Evidence: next}) > budget {
			chunks = append(chunks, cur)
			cur = []Evidence{e}
			continue
		}
		cur = next
	}
	if len(cur) > 0 {
		chunks = append(chunks, cur)
	}
	return chunks
}

// Summarize returns the report for request. Only cancellation is returned
// as an error; oracle failures fall back to placeholder text.
func (s *Summarizer) Summarize(ctx context.Context, request string, evidence []Evidence) (string, error) {
	return s.summarize(ctx, request, evidence, 0)
}

func (s *Summarizer) summarize(ctx context.Context, request string, evidence []Evidence, depth int) (string, error) {
	whole := evidencePayload{Request: request, Evidence: evidence}
	if size(whole) <= s.cfg.Budget {
		out, err := s.call(ctx, templates.Summary, whole, "global")
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return "", ctxErr
			}
			s.logger.Warn("summary failed, using fallback: %v", err)
			return Fallback, nil
		}
		return out, nil
	}

	chunks := Chunk(request, evidence, s.cfg.Budget)
	logx.DebugFlow(ctx, "summarizer", "summary", "chunk", fmt.Sprintf("depth %d: %d chunks", depth, len(chunks)))
	summaries := make([]string, 0, len(chunks))
	for i, c := range chunks {
		out, err := s.call(ctx, templates.SummaryChunk, evidencePayload{Request: request, Evidence: c}, fmt.Sprintf("chunk-%d", i+1))
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return "", ctxErr
			}
			s.logger.Warn("chunk %d summary failed: %v", i+1, err)
			continue
		}
		summaries = append(summaries, out)
	}
	if len(summaries) == 0 {
		return Fallback, nil
	}

	merge := mergePayload{Request: request, Summaries: summaries}
	if size(merge) > s.cfg.MergeBudget {
		if len(summaries) < len(evidence) {
			synthetic := make([]Evidence, len(summaries))
			for i, sum := range summaries {
				synthetic[i] = Evidence{Task: fmt.Sprintf("summary %d", i+1), Final: sum}
			}
			return s.summarize(ctx, request, synthetic, depth+1)
		}
		// No reduction is possible; cut each summary to its share of the budget.
		share := (s.cfg.MergeBudget - size(mergePayload{Request: request})) / len(summaries)
		for i := range summaries {
			summaries[i] = utils.Truncate(summaries[i], max(share-len(utils.TruncateSuffix)-8, 0), utils.TruncateSuffix)
		}
		merge.Summaries = summaries
	}

	out, err := s.call(ctx, templates.SummaryMerge, merge, "merge")
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return "", ctxErr
		}
		s.logger.Warn("merge failed, using first summary: %v", err)
		return summaries[0], nil
	}
	return out, nil
}

// call invokes the summary stage with linear backoff between attempts.
func (s *Summarizer) call(ctx context.Context, prompt templates.Name, payload any, scope string) (string, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return "", err
	}
	msgs := stage.Messages(templates.Must(prompt, nil), string(body))

	var last error
	for attempt := 1; attempt <= s.cfg.Retries; attempt++ {
		out, err := s.inv.Invoke(ctx, config.StageSummary, msgs)
		if err == nil && strings.TrimSpace(out) != "" {
			s.sink.Emit(event.KindAttempt, fmt.Sprintf("%s:%s:%d", config.StageSummary, scope, attempt))
			return out, nil
		}
		if err == nil {
			err = errors.New("empty summary")
		}
		last = err
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		if attempt < s.cfg.Retries {
			if err := sleep(ctx, time.Duration(attempt)*s.cfg.Backoff.Std()); err != nil {
				return "", err
			}
		}
	}
	s.sink.Emit(event.KindAttempt, fmt.Sprintf("%s:%s:%d", config.StageSummary, scope, s.cfg.Retries))
	return "", last
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

package executor

import (
	"context"
	"encoding/json"
	"fmt"

	"agentflow/pkg/config"
	"agentflow/pkg/event"
	"agentflow/pkg/stage"
	"agentflow/pkg/templates"
	"agentflow/pkg/utils"
)

const finalInstruction = "Report what the tool calls achieved for the goal, based only on their results. " +
	"If no write or patch call succeeded, say so."

// truncatedFields are cut in both args and results of the final payload.
var truncatedFields = []string{"content", "stdout", "stderr"}

type finalPayload struct {
	Goal        string         `json:"goal"`
	Instruction string         `json:"instruction"`
	Context     []ContextEntry `json:"context"`
}

// FinalPayload renders the final-stage input from the tail of entries.
// Large fields are truncated, and when the result is still over the
// payload limit only the shorter tail is kept.
func FinalPayload(goal string, entries []ContextEntry, cfg config.ExecutorConfig) (string, error) {
	build := func(n int) (string, error) {
		tail := entries
		if len(tail) > n {
			tail = tail[len(tail)-n:]
		}
		trimmed := make([]ContextEntry, len(tail))
		for i, e := range tail {
			e.Args = truncateFields(e.Args, cfg.FinalFieldLimit)
			e.Result = truncateFields(e.Result, cfg.FinalFieldLimit)
			trimmed[i] = e
		}
		b, err := json.Marshal(finalPayload{Goal: goal, Instruction: finalInstruction, Context: trimmed})
		return string(b), err
	}

	out, err := build(cfg.FinalMaxEntries)
	if err != nil || len(out) <= cfg.FinalPayloadLimit {
		return out, err
	}
	return build(cfg.FinalTailEntries)
}

// truncateFields returns a copy of m with long text fields cut.
func truncateFields[M ~map[string]any](m M, limit int) M {
	if m == nil {
		return nil
	}
	out := make(M, len(m))
	for k, v := range m {
		out[k] = v
	}
	for _, k := range truncatedFields {
		if s, ok := out[k].(string); ok {
			out[k] = utils.Truncate(s, limit, utils.TruncateSuffix)
		}
	}
	return out
}

func (r *run) finalize(ctx context.Context) (string, error) {
	body, err := FinalPayload(r.task.Goal, r.shared.Entries(), r.e.opts.Final)
	if err != nil {
		return "", err
	}
	text, err := r.e.inv.Invoke(ctx, config.StageFinal, stage.Messages(templates.Must(templates.Final, nil), body))
	r.e.sink.Emit(event.KindAttempt, fmt.Sprintf("%s:%s:1", config.StageFinal, r.scope))
	if err != nil {
		return "", fmt.Errorf("%s: %w", config.StageFinal, err)
	}
	r.e.sink.Emit(event.KindFinal, text)
	return text, nil
}

package metrics

import (
	"sort"
	"sync"
	"time"
)

// StageTotals aggregates calls for one stage.
type StageTotals struct {
	Stage            string        `json:"stage"`
	Requests         int64         `json:"requests"`
	Errors           int64         `json:"errors"`
	PromptTokens     int64         `json:"prompt_tokens"`
	CompletionTokens int64         `json:"completion_tokens"`
	Duration         time.Duration `json:"duration"`
}

// InternalRecorder aggregates per-stage totals in memory for the run report.
type InternalRecorder struct {
	stages map[string]*StageTotals
	mu     sync.Mutex
}

// NewInternalRecorder creates an empty aggregator.
func NewInternalRecorder() *InternalRecorder {
	return &InternalRecorder{stages: make(map[string]*StageTotals)}
}

// ObserveRequest implements Recorder.
func (r *InternalRecorder) ObserveRequest(_, stage string, promptTokens, completionTokens int, success bool, _ string, duration time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	st, ok := r.stages[stage]
	if !ok {
		st = &StageTotals{Stage: stage}
		r.stages[stage] = st
	}
	st.Requests++
	st.Duration += duration
	if !success {
		st.Errors++
		return
	}
	st.PromptTokens += int64(promptTokens)
	st.CompletionTokens += int64(completionTokens)
}

// Snapshot returns totals sorted by stage name.
func (r *InternalRecorder) Snapshot() []StageTotals {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]StageTotals, 0, len(r.stages))
	for _, st := range r.stages {
		out = append(out, *st)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Stage < out[j].Stage })
	return out
}

// Package event defines the progress events a run streams to its host.
package event

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"
)

// Kind tags an event.
type Kind string

const (
	KindSystem             Kind = "system"
	KindChannel            Kind = "channel"
	KindTasks              Kind = "tasks"
	KindPlan               Kind = "plan"
	KindTaskPlan           Kind = "task_plan"
	KindPipeline           Kind = "pipeline"
	KindTokenUsage         Kind = "token_usage"
	KindTokenLimitPreview  Kind = "token_limit_preview"
	KindApprovalRequest    Kind = "approval_request"
	KindTool               Kind = "tool"
	KindToolResult         Kind = "tool_result"
	KindAttempt            Kind = "attempt"
	KindCoderRaw           Kind = "coder_raw"
	KindToolAnalysisPrompt Kind = "tool_analysis_prompt"
	KindToolArgumentPrompt Kind = "tool_argument_prompt"
	KindError              Kind = "error"
	KindFinal              Kind = "final"
	KindSummary            Kind = "summary"
)

// Event is one progress record. Payload is plain text or JSON.
type Event struct {
	Time    time.Time `json:"time"`
	Kind    Kind      `json:"kind"`
	Payload string    `json:"payload"`
	Seq     int64     `json:"seq"`
}

// Sink receives events. Payloads that are not strings are JSON encoded.
type Sink interface {
	Emit(kind Kind, payload any)
}

// Encode renders a payload as event text.
func Encode(payload any) string {
	switch p := payload.(type) {
	case string:
		return p
	case []byte:
		return string(p)
	case error:
		return p.Error()
	case fmt.Stringer:
		return p.String()
	}
	b, err := json.Marshal(payload)
	if err != nil {
		return fmt.Sprintf("%v", payload)
	}
	return string(b)
}

// Stream is a channel-backed Sink owned by a single producer. Emit blocks
// until the consumer reads or ctx ends; after ctx ends events are dropped.
type Stream struct {
	ctx       context.Context
	ch        chan Event
	observers []func(Event)
	seq       int64
	mu        sync.Mutex
	closed    bool
}

// NewStream creates an unbuffered stream bound to ctx.
func NewStream(ctx context.Context) *Stream {
	return &Stream{ctx: ctx, ch: make(chan Event)}
}

// Observe registers fn to see every event before it is delivered.
// Observers run on the producer goroutine and must not block.
func (s *Stream) Observe(fn func(Event)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.observers = append(s.observers, fn)
}

// Events is the consumer side.
func (s *Stream) Events() <-chan Event { return s.ch }

// Emit implements Sink.
func (s *Stream) Emit(kind Kind, payload any) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.seq++
	ev := Event{Seq: s.seq, Kind: kind, Payload: Encode(payload), Time: time.Now()}
	observers := s.observers
	s.mu.Unlock()

	for _, fn := range observers {
		fn(ev)
	}
	select {
	case s.ch <- ev:
	case <-s.ctx.Done():
	}
}

// Close ends the stream. Further Emit calls are ignored.
func (s *Stream) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.closed {
		s.closed = true
		close(s.ch)
	}
}

// Recorder is a Sink that keeps every event in memory.
type Recorder struct {
	events []Event
	mu     sync.Mutex
}

// Emit implements Sink.
func (r *Recorder) Emit(kind Kind, payload any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, Event{Seq: int64(len(r.events) + 1), Kind: kind, Payload: Encode(payload), Time: time.Now()})
}

// Events returns a copy of the recorded events.
func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Event(nil), r.events...)
}

// OfKind returns the payloads of recorded events with kind k.
func (r *Recorder) OfKind(k Kind) []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []string
	for _, e := range r.events {
		if e.Kind == k {
			out = append(out, e.Payload)
		}
	}
	return out
}

// Discard is a Sink that drops everything.
var Discard Sink = discard{}

type discard struct{}

func (discard) Emit(Kind, any) {}

package contract

import (
	"context"
	"errors"
	"fmt"

	"agentflow/pkg/agent/llm"
	"agentflow/pkg/event"
	"agentflow/pkg/logx"
)

// ErrContract marks output that never satisfied its stage schema.
var ErrContract = errors.New("contract violation")

// Error reports a terminal contract failure.
type Error struct {
	Last     error
	Stage    string
	Attempts int
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: invalid output after %d attempts: %v", e.Stage, e.Attempts, e.Last)
}

// Unwrap lets errors.Is match ErrContract and the last validation error.
func (e *Error) Unwrap() []error { return []error{ErrContract, e.Last} }

// Invoker performs one oracle call for a stage.
type Invoker interface {
	Invoke(ctx context.Context, stage string, messages []llm.CompletionMessage) (string, error)
}

// Ladder escalates one stage call: the normal prompt, optionally the same
// prompt again, then the strict prompt.
type Ladder[T any] struct {
	// Decode parses and validates one recovered object.
	Decode func(map[string]any) (T, error)
	// Name is the stage name passed to the invoker.
	Name string
	// Scope identifies the unit of work in attempt events, e.g. "task-2".
	Scope string
	// Kind tags the raw output events.
	Kind     event.Kind
	Messages []llm.CompletionMessage
	Strict   []llm.CompletionMessage
	// RetrySame repeats the normal prompt once before going strict.
	RetrySame bool
}

var logger = logx.NewLogger("contract")

// Run executes the ladder. It returns the decoded value and the number of
// oracle calls made. Invocation errors end the ladder immediately.
func (l Ladder[T]) Run(ctx context.Context, inv Invoker, sink event.Sink) (T, int, error) {
	var zero T
	tiers := [][]llm.CompletionMessage{l.Messages}
	if l.RetrySame {
		tiers = append(tiers, l.Messages)
	}
	if len(l.Strict) > 0 {
		tiers = append(tiers, l.Strict)
	}

	var last error
	for i, msgs := range tiers {
		n := i + 1
		if err := ctx.Err(); err != nil {
			return zero, i, err
		}
		raw, err := inv.Invoke(ctx, l.Name, msgs)
		if err != nil {
			sink.Emit(event.KindAttempt, l.attemptLabel(n))
			return zero, n, fmt.Errorf("%s: %w", l.Name, err)
		}
		if l.Kind != "" {
			sink.Emit(l.Kind, raw)
		}

		v, err := l.decode(raw)
		if err == nil {
			sink.Emit(event.KindAttempt, l.attemptLabel(n))
			return v, n, nil
		}
		last = err
		logger.Debug("%s attempt %d rejected: %v", l.Name, n, err)
	}

	attempts := len(tiers)
	sink.Emit(event.KindAttempt, l.attemptLabel(attempts))
	cerr := &Error{Stage: l.Name, Attempts: attempts, Last: last}
	sink.Emit(event.KindError, cerr.Error())
	return zero, attempts, cerr
}

func (l Ladder[T]) decode(raw string) (T, error) {
	var zero T
	obj := ExtractJSON(raw)
	if obj == nil {
		return zero, errors.New("no JSON object in output")
	}
	return l.Decode(obj)
}

func (l Ladder[T]) attemptLabel(n int) string {
	return fmt.Sprintf("%s:%s:%d", l.Name, l.Scope, n)
}

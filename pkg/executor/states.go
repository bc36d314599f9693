package executor

import (
	"context"
	"fmt"

	"agentflow/pkg/logx"
)

// State is a step of the per-task state machine.
type State string

// Executor states.
const (
	StatePlan              State = "PLAN"
	StateAnalyzePath       State = "ANALYZE_PATH"
	StateSynthesizeArgs    State = "SYNTHESIZE_ARGS"
	StateSynthesizeContent State = "SYNTHESIZE_CONTENT"
	StateApprove           State = "APPROVE"
	StateDispatch          State = "DISPATCH"
	StateRecord            State = "RECORD"
	StatePostWriteCheck    State = "POST_WRITE_CHECK"
	StateFinalize          State = "FINALIZE"
	StateFailed            State = "FAILED"
	StateDone              State = "DONE"
)

// Transitions is the canonical transition map. FAILED is reachable from
// every non-terminal state.
var Transitions = map[State][]State{
	StatePlan:              {StateAnalyzePath, StatePostWriteCheck},
	StateAnalyzePath:       {StateSynthesizeArgs, StateSynthesizeContent},
	StateSynthesizeArgs:    {StateApprove},
	StateSynthesizeContent: {StateApprove},
	StateApprove:           {StateDispatch},
	StateDispatch:          {StateRecord},
	StateRecord:            {StateAnalyzePath, StatePostWriteCheck},
	StatePostWriteCheck:    {StateFinalize},
	StateFinalize:          {StateDone},
}

// IsTerminal reports whether s ends the machine.
func (s State) IsTerminal() bool { return s == StateDone || s == StateFailed }

// IsValidTransition reports whether from may move to to.
func IsValidTransition(from, to State) bool {
	if to == StateFailed {
		return !from.IsTerminal()
	}
	for _, next := range Transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// machine tracks the current state and the path taken.
type machine struct {
	current State
	history []State
}

func newMachine() *machine {
	return &machine{current: StatePlan, history: []State{StatePlan}}
}

func (m *machine) to(ctx context.Context, next State, reason string) error {
	if !IsValidTransition(m.current, next) {
		return fmt.Errorf("invalid executor transition %s -> %s", m.current, next)
	}
	logx.DebugState(ctx, "executor", string(m.current), string(next), reason)
	m.current = next
	m.history = append(m.history, next)
	return nil
}

package mocks

import (
	"context"
	"sync"

	"agentflow/pkg/tools"
)

// Approver answers approval requests from a fixed decision or a function.
type Approver struct {
	// Decide overrides Allow when set.
	Decide func(call tools.Call) bool
	Calls  []tools.Call
	Allow  bool
	mu     sync.Mutex
}

// AllowAll returns an approver that accepts everything.
func AllowAll() *Approver { return &Approver{Allow: true} }

// DenyAll returns an approver that refuses everything.
func DenyAll() *Approver { return &Approver{} }

// Approve records call and returns the decision.
func (a *Approver) Approve(ctx context.Context, call tools.Call) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	a.Calls = append(a.Calls, call)
	if a.Decide != nil {
		return a.Decide(call), nil
	}
	return a.Allow, nil
}

// Requested returns the tool names that asked for approval, in order.
func (a *Approver) Requested() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	names := make([]string, len(a.Calls))
	for i, c := range a.Calls {
		names[i] = c.Tool
	}
	return names
}

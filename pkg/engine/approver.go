package engine

import (
	"context"

	"agentflow/pkg/executor"
)

// ChannelApprover hands approval requests to a host over a channel and
// waits for the host's answer. One request is outstanding at a time.
type ChannelApprover struct {
	requests chan executor.ToolCall
	replies  chan bool
}

// NewChannelApprover creates an approver with a single-slot reply channel.
func NewChannelApprover() *ChannelApprover {
	return &ChannelApprover{
		requests: make(chan executor.ToolCall),
		replies:  make(chan bool, 1),
	}
}

// Requests delivers calls awaiting a decision.
func (a *ChannelApprover) Requests() <-chan executor.ToolCall { return a.requests }

// Respond answers the outstanding request. A reply sent while no request
// is outstanding never answers a later one: it is discarded when the next
// request starts.
func (a *ChannelApprover) Respond(approved bool) {
	select {
	case a.replies <- approved:
	default:
	}
}

// Approve implements executor.Approver. Cancellation resolves to a denial.
func (a *ChannelApprover) Approve(ctx context.Context, call executor.ToolCall) (bool, error) {
	// Drop a stale answer left over from an abandoned request.
	select {
	case <-a.replies:
	default:
	}
	select {
	case a.requests <- call:
	case <-ctx.Done():
		return false, ctx.Err()
	}
	select {
	case ok := <-a.replies:
		return ok, nil
	case <-ctx.Done():
		return false, ctx.Err()
	}
}

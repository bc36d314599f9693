// Package pacing enforces a minimum interval between oracle requests.
package pacing

import (
	"context"
	"fmt"
	"sync"
	"time"

	"agentflow/pkg/agent/llm"
)

// Pacer spaces out calls so that consecutive requests start at least
// Interval apart. The zero Interval disables pacing.
type Pacer struct {
	last     time.Time
	now      func() time.Time
	Interval time.Duration
	mu       sync.Mutex
}

// NewPacer creates a pacer for the given interval.
func NewPacer(interval time.Duration) *Pacer {
	return &Pacer{Interval: interval, now: time.Now}
}

// Wait blocks until the next request may start, or ctx ends.
func (p *Pacer) Wait(ctx context.Context) error {
	if p.Interval <= 0 {
		return nil
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.last.IsZero() {
		if wait := p.Interval - p.now().Sub(p.last); wait > 0 {
			timer := time.NewTimer(wait)
			defer timer.Stop()
			select {
			case <-ctx.Done():
				return fmt.Errorf("pacing wait: %w", ctx.Err())
			case <-timer.C:
			}
		}
	}
	p.last = p.now()
	return nil
}

// Middleware waits on pacer before every request.
func Middleware(pacer *Pacer) llm.Middleware {
	return func(next llm.LLMClient) llm.LLMClient {
		return llm.WrapClient(
			func(ctx context.Context, req llm.CompletionRequest) (llm.CompletionResponse, error) {
				if err := pacer.Wait(ctx); err != nil {
					return llm.CompletionResponse{}, err
				}
				return next.Complete(ctx, req)
			},
			next.GetModelName,
		)
	}
}

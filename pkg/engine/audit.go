package engine

import (
	"context"

	"agentflow/pkg/event"
)

// attachAudit copies every event of a run to the configured audit sinks.
// Audit failures are logged and never affect the run.
func (e *Engine) attachAudit(ctx context.Context, stream *event.Stream, runID string) {
	// Recording continues after cancellation so the journal shows how far
	// the run got.
	bg := context.WithoutCancel(ctx)
	if w := e.opts.EventLog; w != nil {
		stream.Observe(func(ev event.Event) {
			if err := w.Write(runID, ev); err != nil {
				e.logger.Warn("event log: %v", err)
			}
		})
	}
	if j := e.opts.Journal; j != nil {
		stream.Observe(func(ev event.Event) {
			if err := j.RecordEvent(bg, runID, ev); err != nil {
				e.logger.Warn("journal: %v", err)
			}
		})
	}
}

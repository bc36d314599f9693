package executor

import "errors"

var (
	// ErrUnknownTool is returned when a plan names a tool that is not registered.
	ErrUnknownTool = errors.New("unknown tool")
	// ErrOutOfScope is returned when a write targets a path outside the workspace index.
	ErrOutOfScope = errors.New("path out of scope")
	// ErrApprovalDenied is returned when a call needing approval was refused,
	// no approver was available, or the wait was cancelled.
	ErrApprovalDenied = errors.New("approval denied")
	// ErrZeroEffect is returned when a replacement succeeded without changing anything.
	ErrZeroEffect = errors.New("mutation had no effect")
	// ErrNoPreview is returned when apply_write_preview has no preview to apply.
	ErrNoPreview = errors.New("no preview_write for path")
)

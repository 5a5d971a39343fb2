package remote

import (
	"context"
	"sync"
	"sync/atomic"
)

// FileDecision is a pre-file filter verdict.
type FileDecision int

const (
	FileContinue FileDecision = iota
	FileSkip
	FileCancel
)

// FileRef identifies a file about to be moved.
type FileRef struct {
	Operation  Operation
	SourcePath string
	TargetPath string
}

// FileFilter is consulted before each file.
type FileFilter func(ctx context.Context, ref FileRef) FileDecision

// Stop explains why Checkpoint halted an operation.
type Stop int

const (
	Proceed Stop = iota
	StopPaused
	StopCancelled
	StopTooManyErrors
)

// ControlOptions seed a control block.
type ControlOptions struct {
	// RestartAt is the last successful source path of a previous attempt.
	RestartAt string
	// MaxErrors stops the operation once this many files failed. Zero
	// disables the limit.
	MaxErrors int
	Filter    FileFilter
}

// Control is shared between the worker and the running client. All methods
// are safe for concurrent use.
type Control struct {
	paused    atomic.Bool
	cancelled atomic.Bool
	errors    atomic.Int64

	restartAt string
	maxErrors int

	mu     sync.RWMutex
	filter FileFilter
}

// NewControl builds a control block for one attempt.
func NewControl(opts ControlOptions) *Control {
	maxErrors := opts.MaxErrors
	if maxErrors < 0 {
		maxErrors = 0
	}
	return &Control{restartAt: opts.RestartAt, maxErrors: maxErrors, filter: opts.Filter}
}

// Pause asks the client to stop at the next file boundary.
func (c *Control) Pause() { c.paused.Store(true) }

// IsPaused reports whether Pause was called.
func (c *Control) IsPaused() bool { return c.paused.Load() }

// Cancel asks the client to abandon the operation at the next file boundary.
func (c *Control) Cancel() { c.cancelled.Store(true) }

// IsCancelled reports whether Cancel was called.
func (c *Control) IsCancelled() bool { return c.cancelled.Load() }

// RestartAt returns the restart cursor.
func (c *Control) RestartAt() string { return c.restartAt }

// MaxErrors returns the per-file error limit, zero meaning unlimited.
func (c *Control) MaxErrors() int { return c.maxErrors }

// RecordError counts a failed file and reports whether the limit is reached.
func (c *Control) RecordError() bool {
	n := c.errors.Add(1)
	return c.maxErrors > 0 && n >= int64(c.maxErrors)
}

// ErrorCount returns the failed files counted so far.
func (c *Control) ErrorCount() int {
	return int(c.errors.Load())
}

// Restarting reports whether sourcePath sorts at or before the restart cursor
// and so was already moved by an earlier attempt.
func (c *Control) Restarting(sourcePath string) bool {
	return c.restartAt != "" && sourcePath <= c.restartAt
}

// Checkpoint is polled by clients between files. Cancellation wins over
// pause; the error limit is checked last.
func (c *Control) Checkpoint(ctx context.Context) Stop {
	switch {
	case c.IsCancelled():
		return StopCancelled
	case ctx.Err() != nil:
		return StopCancelled
	case c.IsPaused():
		return StopPaused
	case c.maxErrors > 0 && c.ErrorCount() >= c.maxErrors:
		return StopTooManyErrors
	}
	return Proceed
}

// SetFilter replaces the pre-file filter.
func (c *Control) SetFilter(filter FileFilter) {
	c.mu.Lock()
	c.filter = filter
	c.mu.Unlock()
}

// Decide runs the pre-file filter, continuing when none is set.
func (c *Control) Decide(ctx context.Context, ref FileRef) FileDecision {
	c.mu.RLock()
	filter := c.filter
	c.mu.RUnlock()
	if filter == nil {
		return FileContinue
	}
	return filter(ctx, ref)
}

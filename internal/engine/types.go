package engine

import (
	"time"

	"conveyor/internal/queue"
	"conveyor/internal/remote"
)

// RunningStatus is the engine-level execution state.
type RunningStatus string

const (
	RunningIdle       RunningStatus = "IDLE"
	RunningProcessing RunningStatus = "PROCESSING"
	RunningPaused     RunningStatus = "PAUSED"
)

// ErrorStatus is the worst outcome seen since the last enqueue.
type ErrorStatus string

const (
	ErrorOK      ErrorStatus = "OK"
	ErrorWarning ErrorStatus = "WARNING"
	ErrorError   ErrorStatus = "ERROR"
)

func errorStatusFor(status queue.Status) ErrorStatus {
	switch status {
	case queue.StatusError:
		return ErrorError
	case queue.StatusWarning:
		return ErrorWarning
	default:
		return ErrorOK
	}
}

func (s ErrorStatus) rank() int {
	switch s {
	case ErrorError:
		return 2
	case ErrorWarning:
		return 1
	default:
		return 0
	}
}

// Progress is one remote progress value tagged with the transfer it belongs to.
type Progress struct {
	TransferID int64
	AttemptID  int64
	Status     remote.Status
}

// Finished reports a closed attempt.
type Finished struct {
	Transfer queue.Transfer
	Attempt  queue.Attempt
	Duration time.Duration
}

// Summary is a point-in-time view of the engine.
type Summary struct {
	Running   RunningStatus
	Error     ErrorStatus
	Active    *queue.Transfer
	LastError string
	Stats     queue.Stats
}

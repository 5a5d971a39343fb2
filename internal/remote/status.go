package remote

import "time"

// Operation names the remote action a request performs.
type Operation string

const (
	OpPut       Operation = "PUT"
	OpGet       Operation = "GET"
	OpReplicate Operation = "REPLICATE"
	OpCopy      Operation = "COPY"
)

// CallbackType separates whole-operation progress from per-file progress.
type CallbackType string

const (
	CallbackOverall CallbackType = "OVERALL"
	CallbackFile    CallbackType = "FILE"
)

// CallbackState is the phase a progress value reports.
type CallbackState string

const (
	StateInProgress CallbackState = "IN_PROGRESS"
	StateSuccess    CallbackState = "SUCCESS"
	StateFailure    CallbackState = "FAILURE"
	StateSkipped    CallbackState = "SKIPPED"
	StateRestarting CallbackState = "RESTARTING"
	StateCancelled  CallbackState = "CANCELLED"
	StatePaused     CallbackState = "PAUSED"
)

// Status is one immutable progress notification.
type Status struct {
	Type       CallbackType
	State      CallbackState
	Operation  Operation
	SourcePath string
	TargetPath string
	Resource   string
	IsFile     bool
	// TotalFiles is the client's count of files in the whole operation.
	TotalFiles int
	// FilesSoFar counts files finished, skipped, or failed so far.
	FilesSoFar int
	BytesSoFar int64
	TotalBytes int64
	Error      string
	Time       time.Time
}

// Sink receives progress values on the goroutine running the operation.
type Sink interface {
	Progress(Status)
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(Status)

// Progress implements Sink.
func (f SinkFunc) Progress(s Status) {
	if f != nil {
		f(s)
	}
}

// Discard is a Sink that drops every value.
var Discard Sink = SinkFunc(nil)

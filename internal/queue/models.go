package queue

import (
	"strings"
	"time"
)

// TransferType selects the remote operation a transfer performs.
type TransferType string

const (
	TypePut       TransferType = "PUT"
	TypeGet       TransferType = "GET"
	TypeReplicate TransferType = "REPLICATE"
	TypeCopy      TransferType = "COPY"
	TypeSynch     TransferType = "SYNCH"
)

// State is the lifecycle position of a transfer.
type State string

const (
	StateEnqueued   State = "ENQUEUED"
	StateProcessing State = "PROCESSING"
	StatePaused     State = "PAUSED"
	StateCancelled  State = "CANCELLED"
	StateComplete   State = "COMPLETE"
)

// Status is the outcome axis of a transfer or attempt.
type Status string

const (
	StatusOK      Status = "OK"
	StatusWarning Status = "WARNING"
	StatusError   Status = "ERROR"
)

var allStates = []State{StateEnqueued, StateProcessing, StatePaused, StateCancelled, StateComplete}

// pendingStates are eligible for dequeue and count as "in the queue" for
// synchronization de-duplication.
var pendingStates = []State{StateEnqueued, StateProcessing, StatePaused}

// AllStates returns every transfer state in lifecycle order.
func AllStates() []State {
	return append([]State(nil), allStates...)
}

// PendingStates returns the states DequeueNext considers.
func PendingStates() []State {
	return append([]State(nil), pendingStates...)
}

// ParseState converts user input into a State.
func ParseState(value string) (State, bool) {
	candidate := State(strings.ToUpper(strings.TrimSpace(value)))
	for _, s := range allStates {
		if s == candidate {
			return s, true
		}
	}
	return "", false
}

// ParseType converts user input into a TransferType.
func ParseType(value string) (TransferType, bool) {
	candidate := TransferType(strings.ToUpper(strings.TrimSpace(value)))
	switch candidate {
	case TypePut, TypeGet, TypeReplicate, TypeCopy, TypeSynch:
		return candidate, true
	}
	return "", false
}

// IsTerminal reports whether s admits no further execution.
func (s State) IsTerminal() bool {
	return s == StateComplete || s == StateCancelled
}

// IsPending reports whether s is ENQUEUED, PROCESSING, or PAUSED.
func (s State) IsPending() bool {
	for _, p := range pendingStates {
		if s == p {
			return true
		}
	}
	return false
}

// Transfer is one data-movement job.
//
// For PUT and SYNCH the local path is the source and the remote path the
// target; GET reverses that. REPLICATE copies the remote path onto Resource.
// COPY reads the remote path and writes to the remote collection named by
// LocalPath.
type Transfer struct {
	ID                int64
	Type              TransferType
	State             State
	Status            Status
	LocalPath         string
	RemotePath        string
	Resource          string
	AccountID         int64
	SynchronizationID int64
	CreatedAt         time.Time
	UpdatedAt         time.Time
	Attempts          []*Attempt
}

// Attempt is one execution try of a transfer.
type Attempt struct {
	ID                   int64
	TransferID           int64
	StartedAt            time.Time
	EndedAt              *time.Time
	Status               Status
	LastSuccessfulPath   string
	TotalFiles           int
	FilesTransferred     int
	FilesSkipped         int
	ErrorCount           int
	ErrorMessage         string
	GlobalException      string
	GlobalExceptionTrace string
	CorrelationID        string
}

// IsOpen reports whether the attempt has not been finalized.
func (a Attempt) IsOpen() bool {
	return a.EndedAt == nil
}

// Item is one per-file outcome record.
type Item struct {
	ID           int64
	AttemptID    int64
	SourcePath   string
	TargetPath   string
	IsFile       bool
	IsError      bool
	IsSkipped    bool
	ErrorMessage string
	CreatedAt    time.Time
}

// EnqueueRequest describes a new transfer. Resource may be empty to use the
// account default.
type EnqueueRequest struct {
	Type              TransferType `json:"type" validate:"oneof=PUT GET REPLICATE COPY SYNCH"`
	LocalPath         string       `json:"local_path"`
	RemotePath        string       `json:"remote_path" validate:"notblank"`
	Resource          string       `json:"resource"`
	AccountID         int64        `json:"account_id" validate:"gt=0"`
	SynchronizationID int64        `json:"synchronization_id" validate:"gte=0"`
}

// Outcome classifies a single file reported by the remote client.
type Outcome string

const (
	OutcomeSuccess Outcome = "SUCCESS"
	OutcomeFailure Outcome = "FAILURE"
	OutcomeSkipped Outcome = "SKIPPED"
)

// FileOutcome is the input to RecordFileOutcome.
type FileOutcome struct {
	Outcome      Outcome
	SourcePath   string
	TargetPath   string
	IsFile       bool
	ErrorMessage string
	// TotalFiles is the remote client's current estimate of files in the operation.
	TotalFiles int
}

// AttemptResult closes out an attempt and moves its transfer.
type AttemptResult struct {
	Status               Status
	State                State
	ErrorMessage         string
	GlobalException      string
	GlobalExceptionTrace string
}

// ItemFilter pages through an attempt's items.
type ItemFilter struct {
	ShowSuccess bool
	ShowSkipped bool
	Offset      int
	Limit       int
}

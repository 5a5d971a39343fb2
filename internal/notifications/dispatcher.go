package notifications

import (
	"context"
	"log/slog"

	"conveyor/internal/engine"
	"conveyor/internal/logging"
	"conveyor/internal/queue"
)

const dispatchBuffer = 64

// Dispatcher queues engine events and delivers them from its own goroutine
// so a slow ntfy server never stalls the worker.
type Dispatcher struct {
	svc           Service
	notifySuccess bool
	logger        *slog.Logger
	outcomes      chan Outcome
}

// NewDispatcher wraps svc. OK outcomes are only forwarded when notifySuccess is set.
func NewDispatcher(svc Service, notifySuccess bool, logger *slog.Logger) *Dispatcher {
	if svc == nil {
		svc = noopService{}
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Dispatcher{
		svc:           svc,
		notifySuccess: notifySuccess,
		logger:        logging.NewComponentLogger(logger, "notifications"),
		outcomes:      make(chan Outcome, dispatchBuffer),
	}
}

// Listener returns the engine callbacks feeding the dispatcher.
func (d *Dispatcher) Listener() engine.Listener {
	return engine.ListenerFuncs{OnFinished: d.finished}
}

func (d *Dispatcher) finished(f engine.Finished) {
	if f.Transfer.Status == queue.StatusOK && !d.notifySuccess {
		return
	}
	outcome := OutcomeFrom(f)
	select {
	case d.outcomes <- outcome:
	default:
		logging.WarnWithContext(d.logger, "notification dropped", "notification_dropped",
			logging.Int64(logging.FieldTransferID, outcome.TransferID),
			logging.String(logging.FieldErrorHint, "the ntfy endpoint is not keeping up"))
	}
}

// Run delivers queued notifications until ctx is cancelled.
func (d *Dispatcher) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case o := <-d.outcomes:
			if err := d.svc.NotifyTransferFinished(ctx, o); err != nil {
				logging.WarnWithContext(d.logger, "notification failed", "notification_failed",
					logging.Error(err),
					logging.Int64(logging.FieldTransferID, o.TransferID),
					logging.String(logging.FieldErrorHint, "check notifications.ntfy_topic"))
			}
		}
	}
}

// OutcomeFrom summarizes a finished transfer.
func OutcomeFrom(f engine.Finished) Outcome {
	t := f.Transfer
	o := Outcome{
		TransferID: t.ID,
		Type:       string(t.Type),
		Status:     string(t.Status),
		Source:     t.LocalPath,
		Target:     t.RemotePath,
		Files:      f.Attempt.FilesTransferred,
		Skipped:    f.Attempt.FilesSkipped,
		Errors:     f.Attempt.ErrorCount,
		Duration:   f.Duration,
		Message:    f.Attempt.ErrorMessage,
	}
	switch t.Type {
	case queue.TypeGet, queue.TypeCopy:
		o.Source, o.Target = t.RemotePath, t.LocalPath
	case queue.TypeReplicate:
		o.Source, o.Target = t.RemotePath, t.Resource
	}
	if o.Message == "" {
		o.Message = f.Attempt.GlobalException
	}
	return o
}

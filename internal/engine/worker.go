package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"strings"
	"sync"
	"time"

	"conveyor/internal/flow"
	"conveyor/internal/logging"
	"conveyor/internal/queue"
	"conveyor/internal/remote"
	"conveyor/internal/services"
)

const noFilesMessage = "no files were found to transfer"

// worker runs one attempt of one transfer.
type worker struct {
	engine   *Engine
	transfer *queue.Transfer
	control  *remote.Control
	logger   *slog.Logger

	// ctx carries the transfer and attempt ids for callbacks.
	ctx     context.Context
	attempt *queue.Attempt
	target  flow.Target
	specs   []flow.Spec

	mu        sync.Mutex
	sinkErr   error
	flowErr   error
	stopItems bool
	cancelled bool
	paused    bool
}

func newWorker(e *Engine, transfer *queue.Transfer, control *remote.Control) *worker {
	return &worker{
		engine:   e,
		transfer: transfer,
		control:  control,
		logger:   e.logger.With(logging.Int64(logging.FieldTransferID, transfer.ID)),
	}
}

// run executes the attempt and returns the finished notification together
// with the attempt status. Every path through run closes the attempt.
func (w *worker) run(ctx context.Context) (*Finished, queue.Status) {
	started := time.Now()
	store := w.engine.store
	ctx = services.WithTransferID(ctx, w.transfer.ID)

	attempt, err := store.BeginAttempt(ctx, w.transfer.ID)
	if err != nil {
		w.engine.setLastError(err)
		logging.ErrorWithContext(w.logger, "failed to open attempt", "attempt_begin_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check queue database access"),
		)
		// The transfer stays PROCESSING; the engine backs off and gives up
		// after repeated failures.
		w.engine.beginFailed(ctx, w.transfer, err)
		return nil, queue.StatusError
	}
	w.engine.beginSucceeded()
	w.attempt = attempt
	ctx = services.WithAttemptID(ctx, attempt.ID)
	w.ctx = ctx
	w.logger = logging.WithContext(ctx, w.engine.logger)
	w.logger.Info("transfer started",
		logging.String(logging.FieldEventType, "transfer_started"),
		logging.String("type", string(w.transfer.Type)),
		logging.String(logging.FieldCorrelationID, attempt.CorrelationID),
		logging.String("restart_at", w.control.RestartAt()),
	)

	result := w.execute(ctx)

	updated, err := store.FinalizeAttempt(ctx, attempt.ID, result)
	if err != nil {
		w.engine.setLastError(err)
		logging.ErrorWithContext(w.logger, "failed to close attempt", "attempt_finalize_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check queue database access"),
		)
		return nil, queue.StatusError
	}
	if result.GlobalException != "" {
		w.engine.setLastError(errors.New(result.GlobalException))
	}

	w.afterFinalize(ctx, result)

	closed, err := store.GetAttempt(ctx, attempt.ID)
	if err != nil || closed == nil {
		closed = attempt
	}
	duration := time.Since(started)
	w.engine.metrics.finished(result.State, result.Status, duration.Seconds())
	w.logOutcome(updated, closed, duration)
	return &Finished{Transfer: *updated, Attempt: *closed, Duration: duration}, result.Status
}

// execute performs the remote operation and aggregates its outcome. Panics
// inside the remote client become global exceptions.
func (w *worker) execute(ctx context.Context) (result queue.AttemptResult) {
	defer func() {
		if r := recover(); r != nil {
			result = globalException(fmt.Errorf("panic: %v", r), string(debug.Stack()))
		}
	}()

	cred, err := w.engine.credentials.CredentialFor(ctx, w.transfer.AccountID)
	if err != nil {
		return globalException(err, traceOf(err))
	}

	req, err := w.request(ctx)
	if err != nil {
		return globalException(err, traceOf(err))
	}

	w.target = flow.Target{
		TransferID: w.transfer.ID,
		AttemptID:  w.attempt.ID,
		Host:       cred.Host,
		Zone:       cred.Zone,
		Action:     actionFor(w.transfer.Type),
		SourcePath: req.SourcePath,
		TargetPath: req.TargetPath,
	}
	if res, err := w.preOperation(ctx); err != nil {
		return globalException(err, traceOf(err))
	} else if res == flow.Cancel {
		w.logger.Info("pre-operation chain cancelled transfer",
			logging.String(logging.FieldDecisionType, "flow_cancel"))
		return queue.AttemptResult{State: queue.StateCancelled, Status: queue.StatusOK}
	}
	if len(w.specs) > 0 {
		w.control.SetFilter(w.preFile)
	}

	remoteErr := remote.Execute(ctx, w.engine.client, *cred, req, remote.SinkFunc(w.progress), w.control)
	return w.aggregate(ctx, remoteErr)
}

func (w *worker) request(ctx context.Context) (remote.Request, error) {
	t := w.transfer
	req := remote.Request{Resource: t.Resource}
	switch t.Type {
	case queue.TypePut:
		req.Operation = remote.OpPut
		req.SourcePath, req.TargetPath = t.LocalPath, t.RemotePath
	case queue.TypeGet:
		req.Operation = remote.OpGet
		req.SourcePath, req.TargetPath = t.RemotePath, t.LocalPath
	case queue.TypeReplicate:
		req.Operation = remote.OpReplicate
		req.SourcePath = t.RemotePath
	case queue.TypeCopy:
		req.Operation = remote.OpCopy
		req.SourcePath, req.TargetPath = t.RemotePath, t.LocalPath
	case queue.TypeSynch:
		op := remote.OpPut
		if syncs := w.engine.synchronizations(); syncs != nil && t.SynchronizationID > 0 {
			resolved, err := syncs.OperationFor(ctx, t.SynchronizationID)
			if err != nil {
				return req, err
			}
			op = resolved
		}
		req.Operation = op
		if op == remote.OpGet {
			req.SourcePath, req.TargetPath = t.RemotePath, t.LocalPath
		} else {
			req.SourcePath, req.TargetPath = t.LocalPath, t.RemotePath
		}
	default:
		return req, services.Validation("engine", "request", fmt.Sprintf("unknown transfer type %q", t.Type))
	}
	return req, nil
}

func actionFor(t queue.TransferType) flow.Action {
	switch t {
	case queue.TypePut:
		return flow.ActionPut
	case queue.TypeGet:
		return flow.ActionGet
	case queue.TypeReplicate:
		return flow.ActionReplicate
	case queue.TypeCopy:
		return flow.ActionCopy
	case queue.TypeSynch:
		return flow.ActionSynch
	}
	return flow.ActionAny
}

func (w *worker) preOperation(ctx context.Context) (flow.ExecResult, error) {
	selector := w.engine.selector
	if selector == nil {
		return flow.Continue, nil
	}
	specs, err := selector.CandidatesFor(ctx, w.target)
	if err != nil {
		return "", err
	}
	w.specs = specs
	if len(specs) == 0 {
		return flow.Continue, nil
	}
	names := make([]string, 0, len(specs))
	for _, s := range specs {
		names = append(names, s.Name)
	}
	w.logger.Debug("flow specs selected",
		logging.String(logging.FieldDecisionType, "flow_selection"),
		logging.String("specs", strings.Join(names, ",")),
	)
	res, err := selector.Runner().RunPreOperation(ctx, specs, w.target)
	if err != nil {
		return "", err
	}
	return res, nil
}

func (w *worker) preFile(ctx context.Context, ref remote.FileRef) remote.FileDecision {
	file := flow.File{SourcePath: ref.SourcePath, TargetPath: ref.TargetPath}
	res, err := w.engine.selector.Runner().RunPreFile(ctx, w.specs, w.target, file)
	if err != nil {
		w.setFlowErr(err)
		return remote.FileCancel
	}
	switch res {
	case flow.SkipThisFile:
		return remote.FileSkip
	case flow.Cancel:
		return remote.FileCancel
	}
	return remote.FileContinue
}

func (w *worker) postFile(ctx context.Context, st remote.Status) {
	if len(w.specs) == 0 {
		return
	}
	file := flow.File{SourcePath: st.SourcePath, TargetPath: st.TargetPath, State: string(st.State), Error: st.Error}
	res, err := w.engine.selector.Runner().RunPostFile(ctx, w.specs, w.target, file)
	if err != nil {
		w.setFlowErr(err)
		w.control.Cancel()
		return
	}
	if res == flow.Cancel {
		w.control.Cancel()
	}
}

// progress is the sink handed to the remote client. Listeners see every
// value; only file outcomes and overall stops are persisted. A file value
// with zero files so far is the client's startup signal and is not recorded.
func (w *worker) progress(st remote.Status) {
	ctx := w.ctx
	if ctx == nil {
		ctx = services.WithAttemptID(services.WithTransferID(context.Background(), w.transfer.ID), w.attempt.ID)
	}
	w.engine.listeners.progress(Progress{TransferID: w.transfer.ID, AttemptID: w.attempt.ID, Status: st})

	switch st.Type {
	case remote.CallbackFile:
		if st.FilesSoFar == 0 {
			return
		}
		outcome, ok := outcomeFor(st.State)
		if !ok {
			return
		}
		w.mu.Lock()
		stopped := w.stopItems
		w.mu.Unlock()
		if stopped {
			return
		}
		_, err := w.engine.store.RecordFileOutcome(ctx, w.attempt.ID, queue.FileOutcome{
			Outcome:      outcome,
			SourcePath:   st.SourcePath,
			TargetPath:   st.TargetPath,
			IsFile:       st.IsFile,
			ErrorMessage: st.Error,
			TotalFiles:   st.TotalFiles,
		})
		if err != nil {
			w.setSinkErr(err)
			w.control.Cancel()
			return
		}
		w.engine.metrics.file(outcome)
		if outcome == queue.OutcomeFailure {
			w.engine.raiseErrorStatus(ErrorWarning)
			w.logger.Warn("file transfer failed",
				logging.String(logging.FieldEventType, "file_failed"),
				logging.String("source", st.SourcePath),
				logging.String("error", st.Error),
			)
		}
		w.postFile(ctx, st)
	case remote.CallbackOverall:
		switch st.State {
		case remote.StateCancelled:
			w.stopWith(ctx, queue.StateCancelled)
		case remote.StatePaused:
			w.stopWith(ctx, queue.StatePaused)
		}
	}
}

func outcomeFor(state remote.CallbackState) (queue.Outcome, bool) {
	switch state {
	case remote.StateSuccess:
		return queue.OutcomeSuccess, true
	case remote.StateFailure:
		return queue.OutcomeFailure, true
	case remote.StateSkipped:
		return queue.OutcomeSkipped, true
	}
	return "", false
}

func (w *worker) stopWith(ctx context.Context, state queue.State) {
	w.mu.Lock()
	w.stopItems = true
	if state == queue.StateCancelled {
		w.cancelled = true
	} else {
		w.paused = true
	}
	w.mu.Unlock()
	if _, err := w.engine.store.SetState(ctx, w.transfer.ID, state); err != nil {
		w.setSinkErr(err)
	}
}

func (w *worker) setSinkErr(err error) {
	w.mu.Lock()
	if w.sinkErr == nil {
		w.sinkErr = err
	}
	w.mu.Unlock()
}

func (w *worker) setFlowErr(err error) {
	w.mu.Lock()
	if w.flowErr == nil {
		w.flowErr = err
	}
	w.mu.Unlock()
}

// aggregate turns the remote result and the recorded counters into the
// attempt's closing state and status.
func (w *worker) aggregate(ctx context.Context, remoteErr error) queue.AttemptResult {
	w.mu.Lock()
	sinkErr, flowErr := w.sinkErr, w.flowErr
	cancelled, paused := w.cancelled, w.paused
	w.mu.Unlock()

	for _, err := range []error{remoteErr, sinkErr, flowErr} {
		if err != nil {
			return globalException(err, traceOf(err))
		}
	}

	current, err := w.engine.store.GetAttempt(ctx, w.attempt.ID)
	if err != nil || current == nil {
		if err == nil {
			err = services.Wrap(services.ErrNotFound, "engine", "aggregate", "attempt vanished", nil)
		}
		return globalException(err, traceOf(err))
	}

	statusFromErrors := queue.StatusOK
	if current.ErrorCount > 0 {
		statusFromErrors = queue.StatusWarning
	}
	if cancelled {
		return queue.AttemptResult{State: queue.StateCancelled, Status: statusFromErrors}
	}
	if paused {
		return queue.AttemptResult{State: queue.StatePaused, Status: statusFromErrors}
	}

	maxErrors := w.control.MaxErrors()
	switch {
	case maxErrors > 0 && current.ErrorCount >= maxErrors:
		return queue.AttemptResult{
			State:        queue.StateComplete,
			Status:       queue.StatusError,
			ErrorMessage: fmt.Sprintf("transfer stopped after %d file errors", current.ErrorCount),
		}
	case current.ErrorCount > 0:
		return queue.AttemptResult{
			State:        queue.StateComplete,
			Status:       queue.StatusWarning,
			ErrorMessage: fmt.Sprintf("%d files failed to transfer", current.ErrorCount),
		}
	case current.FilesTransferred == 0:
		return queue.AttemptResult{State: queue.StateComplete, Status: queue.StatusWarning, ErrorMessage: noFilesMessage}
	}
	return queue.AttemptResult{State: queue.StateComplete, Status: queue.StatusOK}
}

func globalException(err error, trace string) queue.AttemptResult {
	return queue.AttemptResult{
		State:                queue.StateComplete,
		Status:               queue.StatusError,
		ErrorMessage:         err.Error(),
		GlobalException:      err.Error(),
		GlobalExceptionTrace: trace,
	}
}

// traceOf renders the unwrap chain of err, outermost first.
func traceOf(err error) string {
	var b strings.Builder
	for depth := 0; err != nil && depth < 16; depth++ {
		if depth > 0 {
			b.WriteString("\ncaused by: ")
		}
		b.WriteString(err.Error())
		err = errors.Unwrap(err)
	}
	return b.String()
}

func (w *worker) afterFinalize(ctx context.Context, result queue.AttemptResult) {
	if len(w.specs) > 0 && result.State != queue.StatePaused {
		if _, err := w.engine.selector.Runner().RunPostOperation(ctx, w.specs, w.target); err != nil {
			logging.WarnWithContext(w.logger, "post-operation chain failed", "flow_post_operation_failed",
				logging.Error(err),
				logging.String(logging.FieldErrorHint, "check the flow hooks named in the matching spec"),
			)
		}
	}
	if w.transfer.SynchronizationID > 0 && result.State != queue.StatePaused {
		if syncs := w.engine.synchronizations(); syncs != nil {
			if err := syncs.RecordOutcome(ctx, w.transfer.SynchronizationID, result.Status, result.ErrorMessage); err != nil {
				w.logger.Warn("failed to record synchronization outcome",
					logging.Int64(logging.FieldSyncID, w.transfer.SynchronizationID),
					logging.Error(err),
				)
			}
		}
	}
}

func (w *worker) logOutcome(t *queue.Transfer, a *queue.Attempt, duration time.Duration) {
	attrs := []logging.Attr{
		logging.String(logging.FieldEventType, "transfer_finished"),
		logging.String("state", string(t.State)),
		logging.String("status", string(t.Status)),
		logging.Int("files_transferred", a.FilesTransferred),
		logging.Int("files_skipped", a.FilesSkipped),
		logging.Int("errors", a.ErrorCount),
		logging.Duration("duration", duration),
	}
	switch t.Status {
	case queue.StatusError:
		attrs = append(attrs,
			logging.String("error", a.ErrorMessage),
			logging.String(logging.FieldErrorHint, "inspect the attempt with conveyor queue show"),
		)
		logging.ErrorWithContext(w.logger, "transfer finished with errors", "transfer_failed", attrs...)
	case queue.StatusWarning:
		attrs = append(attrs, logging.String("warning", a.ErrorMessage))
		w.logger.Warn("transfer finished with warnings", logging.Args(attrs...)...)
	default:
		w.logger.Info("transfer finished", logging.Args(attrs...)...)
	}
}

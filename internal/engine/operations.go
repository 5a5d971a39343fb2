package engine

import (
	"context"

	"conveyor/internal/logging"
	"conveyor/internal/queue"
	"conveyor/internal/services"
)

// Enqueue validates and stores a transfer, resets the error status to OK and
// launches it when the engine is idle.
func (e *Engine) Enqueue(ctx context.Context, req queue.EnqueueRequest) (*queue.Transfer, error) {
	transfer, err := e.store.Enqueue(ctx, req)
	if err != nil {
		return nil, err
	}
	e.logger.Info("transfer enqueued",
		logging.Int64(logging.FieldTransferID, transfer.ID),
		logging.String("type", string(transfer.Type)),
		logging.String(logging.FieldEventType, "transfer_enqueued"),
	)
	e.resetErrorStatus()
	e.dispatch()
	return transfer, nil
}

// EnqueuePut uploads localPath into the remote collection remotePath.
func (e *Engine) EnqueuePut(ctx context.Context, accountID int64, localPath, remotePath, resource string) (*queue.Transfer, error) {
	return e.Enqueue(ctx, queue.EnqueueRequest{Type: queue.TypePut, AccountID: accountID, LocalPath: localPath, RemotePath: remotePath, Resource: resource})
}

// EnqueueGet downloads remotePath into the local directory localPath.
func (e *Engine) EnqueueGet(ctx context.Context, accountID int64, remotePath, localPath, resource string) (*queue.Transfer, error) {
	return e.Enqueue(ctx, queue.EnqueueRequest{Type: queue.TypeGet, AccountID: accountID, LocalPath: localPath, RemotePath: remotePath, Resource: resource})
}

// EnqueueReplicate creates a replica of remotePath on resource.
func (e *Engine) EnqueueReplicate(ctx context.Context, accountID int64, remotePath, resource string) (*queue.Transfer, error) {
	return e.Enqueue(ctx, queue.EnqueueRequest{Type: queue.TypeReplicate, AccountID: accountID, RemotePath: remotePath, Resource: resource})
}

// EnqueueCopy copies remotePath into the remote collection targetPath.
func (e *Engine) EnqueueCopy(ctx context.Context, accountID int64, remotePath, targetPath, resource string) (*queue.Transfer, error) {
	return e.Enqueue(ctx, queue.EnqueueRequest{Type: queue.TypeCopy, AccountID: accountID, LocalPath: targetPath, RemotePath: remotePath, Resource: resource})
}

// EnqueueSynch queues one run of a synchronization.
func (e *Engine) EnqueueSynch(ctx context.Context, accountID, syncID int64, localPath, remotePath, resource string) (*queue.Transfer, error) {
	return e.Enqueue(ctx, queue.EnqueueRequest{Type: queue.TypeSynch, AccountID: accountID, SynchronizationID: syncID, LocalPath: localPath, RemotePath: remotePath, Resource: resource})
}

func (e *Engine) resetErrorStatus() {
	e.mu.Lock()
	changed := e.errorStatus != ErrorOK
	e.errorStatus = ErrorOK
	e.mu.Unlock()
	if changed {
		e.listeners.errorStatus(ErrorOK)
	}
}

// Pause stops dispatching and asks the active worker to pause at its next
// file boundary.
func (e *Engine) Pause() {
	e.mu.Lock()
	if e.running == RunningPaused {
		e.mu.Unlock()
		return
	}
	e.running = RunningPaused
	if e.active != nil {
		e.active.control.Pause()
	}
	e.mu.Unlock()
	e.logger.Info("engine paused", logging.String(logging.FieldEventType, "engine_paused"))
	e.listeners.running(RunningPaused)
}

// Resume returns a paused engine to IDLE and dispatches. A worker still
// draining after Pause keeps the engine PROCESSING until it finishes.
func (e *Engine) Resume() {
	e.mu.Lock()
	if e.running != RunningPaused {
		e.mu.Unlock()
		return
	}
	next := RunningIdle
	if e.active != nil {
		next = RunningProcessing
	}
	e.running = next
	e.mu.Unlock()
	e.logger.Info("engine resumed", logging.String(logging.FieldEventType, "engine_resumed"))
	e.listeners.running(next)
	e.dispatch()
}

// Cancel cancels a transfer. The active transfer is signalled and finishes
// asynchronously; a queued or paused one moves to CANCELLED immediately.
func (e *Engine) Cancel(ctx context.Context, id int64) (*queue.Transfer, error) {
	e.mu.RLock()
	var active *activeJob
	if e.active != nil && e.active.transfer.ID == id {
		active = e.active
	}
	e.mu.RUnlock()
	if active != nil {
		active.control.Cancel()
		e.logger.Info("cancel requested for active transfer",
			logging.Int64(logging.FieldTransferID, id),
			logging.String(logging.FieldDecisionType, "cancel_active"),
		)
		copied := *active.transfer
		return &copied, nil
	}

	current, err := e.store.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if current == nil {
		return nil, services.Wrap(services.ErrNotFound, "engine", "cancel", "transfer not found", nil)
	}
	if current.State == queue.StateProcessing {
		// Left PROCESSING by a crash; no worker owns it.
		return e.store.SetState(ctx, id, queue.StateCancelled)
	}
	return e.store.Cancel(ctx, id)
}

// Restart requeues a transfer keeping its restart cursor.
func (e *Engine) Restart(ctx context.Context, id int64) (*queue.Transfer, error) {
	return e.requeue(ctx, id, "restart", e.store.Restart)
}

// Resubmit requeues a transfer from scratch.
func (e *Engine) Resubmit(ctx context.Context, id int64) (*queue.Transfer, error) {
	return e.requeue(ctx, id, "resubmit", e.store.Resubmit)
}

func (e *Engine) requeue(ctx context.Context, id int64, operation string, fn func(context.Context, int64) (*queue.Transfer, error)) (*queue.Transfer, error) {
	if e.isActive(id) {
		return nil, services.Busy("engine", operation)
	}
	transfer, err := fn(ctx, id)
	if err != nil {
		return nil, err
	}
	e.resetErrorStatus()
	e.dispatch()
	return transfer, nil
}

func (e *Engine) isActive(id int64) bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.active != nil && e.active.transfer.ID == id
}

// Delete removes a transfer that no worker owns.
func (e *Engine) Delete(ctx context.Context, id int64) error {
	if e.isActive(id) {
		return services.Busy("engine", "delete")
	}
	return e.store.Delete(ctx, id)
}

// PurgeCompleted removes COMPLETE and CANCELLED transfers.
func (e *Engine) PurgeCompleted(ctx context.Context) (int64, error) {
	return e.store.PurgeCompleted(ctx)
}

// PurgeSuccessful removes terminal transfers whose status is OK.
func (e *Engine) PurgeSuccessful(ctx context.Context) (int64, error) {
	return e.store.PurgeSuccessful(ctx)
}

// PurgeAll removes every transfer not being processed. It holds the queue
// lock and fails with a busy error while a worker runs.
func (e *Engine) PurgeAll(ctx context.Context) (int64, error) {
	var purged int64
	err := e.lock.WithCriticalSection(func() error {
		n, err := e.store.PurgeAll(ctx)
		purged = n
		return err
	})
	if err != nil {
		return 0, err
	}
	e.logger.Info("queue purged", logging.Int64("count", purged), logging.String(logging.FieldEventType, "queue_purged"))
	return purged, nil
}

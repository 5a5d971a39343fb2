package engine

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"conveyor/internal/config"
	"conveyor/internal/flow"
	"conveyor/internal/logging"
	"conveyor/internal/queue"
	"conveyor/internal/queuelock"
	"conveyor/internal/remote"
	"conveyor/internal/vault"
)

const (
	maxBeginFailures = 3
	maxBeginBackoff  = 5 * time.Minute
)

// Credentials resolves a grid account into a usable credential.
type Credentials interface {
	CredentialFor(ctx context.Context, accountID int64) (*vault.Credential, error)
}

// Synchronizations lets the engine learn the direction of a SYNCH transfer
// and report how it ended.
type Synchronizations interface {
	OperationFor(ctx context.Context, syncID int64) (remote.Operation, error)
	RecordOutcome(ctx context.Context, syncID int64, status queue.Status, message string) error
}

// Deps are the collaborators an Engine needs. Selector and Metrics are optional.
type Deps struct {
	Config      *config.Config
	Store       *queue.Store
	Credentials Credentials
	Lock        *queuelock.Lock
	Client      remote.Client
	Selector    *flow.Selector
	Metrics     *Metrics
	Logger      *slog.Logger
}

// activeJob is the transfer currently owned by a worker.
type activeJob struct {
	transfer *queue.Transfer
	control  *remote.Control
}

// Engine coordinates single-flight transfer execution.
type Engine struct {
	cfg          *config.Config
	store        *queue.Store
	credentials  Credentials
	lock         *queuelock.Lock
	client       remote.Client
	selector     *flow.Selector
	metrics      *Metrics
	logger       *slog.Logger
	pollInterval time.Duration
	listeners    listenerSet
	wake         chan struct{}

	mu          sync.RWMutex
	started     bool
	runCtx      context.Context
	cancel      context.CancelFunc
	loopDone    chan struct{}
	workers     sync.WaitGroup
	running     RunningStatus
	errorStatus ErrorStatus
	active      *activeJob
	lastErr     error
	syncs       Synchronizations

	beginFailures int
	retryAt       time.Time
}

// New constructs an idle engine. Start launches the dispatch loop.
func New(deps Deps) *Engine {
	logger := deps.Logger
	if logger == nil {
		logger = logging.NewNop()
	}
	lock := deps.Lock
	if lock == nil {
		lock = queuelock.New()
	}
	poll := 5 * time.Second
	if deps.Config != nil && deps.Config.Conveyor.QueuePollInterval > 0 {
		poll = time.Duration(deps.Config.Conveyor.QueuePollInterval) * time.Second
	}
	e := &Engine{
		cfg:          deps.Config,
		store:        deps.Store,
		credentials:  deps.Credentials,
		lock:         lock,
		client:       deps.Client,
		selector:     deps.Selector,
		metrics:      deps.Metrics,
		logger:       logging.NewComponentLogger(logger, "engine"),
		pollInterval: poll,
		wake:         make(chan struct{}, 1),
		running:      RunningIdle,
		errorStatus:  ErrorOK,
	}
	lock.OnIdle(e.Wake)
	return e
}

// AttachSynchronizations wires the synchronization service after both sides
// exist.
func (e *Engine) AttachSynchronizations(s Synchronizations) {
	e.mu.Lock()
	e.syncs = s
	e.mu.Unlock()
}

// Subscribe registers a listener and returns its unsubscribe function.
func (e *Engine) Subscribe(l Listener) func() {
	if l == nil {
		return func() {}
	}
	return e.listeners.add(l)
}

// Start optionally purges successful history, then begins dispatching. A
// PROCESSING transfer left by a crash is dequeued first.
func (e *Engine) Start(ctx context.Context) error {
	e.mu.Lock()
	if e.started {
		e.mu.Unlock()
		return errors.New("engine already running")
	}
	if e.store == nil || e.client == nil || e.credentials == nil {
		e.mu.Unlock()
		return errors.New("engine dependencies not configured")
	}
	runCtx, cancel := context.WithCancel(ctx)
	e.runCtx = runCtx
	e.cancel = cancel
	e.started = true
	e.loopDone = make(chan struct{})
	e.mu.Unlock()

	if e.cfg != nil && e.cfg.Conveyor.PurgeOnStartup {
		if n, err := e.store.PurgeSuccessful(ctx); err != nil {
			logging.WarnWithContext(e.logger, "startup purge failed", "startup_purge_failed",
				logging.Error(err),
				logging.String(logging.FieldErrorHint, "check queue database access"),
			)
		} else if n > 0 {
			e.logger.Info("purged successful transfers", logging.Int64("count", n),
				logging.String(logging.FieldEventType, "startup_purge"))
		}
	}

	go e.loop(runCtx)
	e.Wake()
	e.logger.Info("engine started", logging.Duration("poll_interval", e.pollInterval))
	return nil
}

// Stop pauses the active transfer at its next file boundary, waits for the
// worker, and ends the dispatch loop. The paused transfer is picked up again
// on the next Start.
func (e *Engine) Stop() {
	e.mu.Lock()
	if !e.started {
		e.mu.Unlock()
		return
	}
	e.started = false
	if e.active != nil {
		e.active.control.Pause()
	}
	cancel := e.cancel
	done := e.loopDone
	e.mu.Unlock()

	e.workers.Wait()
	cancel()
	<-done
	e.logger.Info("engine stopped")
}

// Wake asks the loop to try a dispatch. It never blocks.
func (e *Engine) Wake() {
	select {
	case e.wake <- struct{}{}:
	default:
	}
}

func (e *Engine) loop(ctx context.Context) {
	defer close(e.loopDone)
	ticker := time.NewTicker(e.pollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-e.wake:
		case <-ticker.C:
		}
		e.dispatch()
	}
}

// dispatch launches the next transfer when the engine is idle, no worker is
// active, and the queue lock can move to RUNNING.
func (e *Engine) dispatch() {
	e.mu.Lock()
	if !e.started || e.running != RunningIdle || e.active != nil {
		e.mu.Unlock()
		return
	}
	if !e.retryAt.IsZero() && time.Now().Before(e.retryAt) {
		e.mu.Unlock()
		return
	}
	if !e.lock.TryStartRunning() {
		e.mu.Unlock()
		e.logger.Debug("queue lock held; dispatch deferred",
			logging.String("lock_state", e.lock.State().String()),
			logging.String(logging.FieldDecisionType, "dispatch_deferred"),
		)
		return
	}
	ctx := e.runCtx
	transfer, err := e.store.DequeueNext(ctx)
	if err != nil || transfer == nil {
		e.lastErrLocked(err)
		e.mu.Unlock()
		e.lock.AbandonRunning()
		if err != nil {
			logging.ErrorWithContext(e.logger, "dequeue failed", "queue_fetch_failed",
				logging.Error(err),
				logging.String(logging.FieldErrorHint, "check queue database access"),
			)
		}
		return
	}
	cursor, err := e.store.LastSuccessfulPath(ctx, transfer.ID)
	if err != nil {
		e.logger.Warn("restart cursor unavailable; starting from the beginning",
			logging.Int64(logging.FieldTransferID, transfer.ID),
			logging.Error(err),
		)
	}
	control := remote.NewControl(remote.ControlOptions{RestartAt: cursor, MaxErrors: e.maxErrors()})
	e.active = &activeJob{transfer: transfer, control: control}
	e.running = RunningProcessing
	e.workers.Add(1)
	e.mu.Unlock()

	e.metrics.started(transfer.Type)
	e.listeners.running(RunningProcessing)
	go e.runWorker(ctx, transfer, control)
}

func (e *Engine) maxErrors() int {
	if e.cfg == nil {
		return 0
	}
	return e.cfg.Conveyor.MaxErrorsBeforeCancel
}

func (e *Engine) runWorker(ctx context.Context, transfer *queue.Transfer, control *remote.Control) {
	defer e.workers.Done()
	w := newWorker(e, transfer, control)
	finished, status := w.run(context.WithoutCancel(ctx))

	e.mu.Lock()
	e.active = nil
	var runningChanged bool
	if e.running == RunningProcessing {
		e.running = RunningIdle
		runningChanged = true
	}
	e.mu.Unlock()

	e.raiseErrorStatus(errorStatusFor(status))
	if runningChanged {
		e.listeners.running(RunningIdle)
	}
	if finished != nil {
		e.listeners.finished(*finished)
	}
	e.lock.FinishRunning()
}

// raiseErrorStatus moves the error status up to next and notifies listeners.
// It never lowers the status; only a new enqueue resets it.
func (e *Engine) raiseErrorStatus(next ErrorStatus) {
	e.mu.Lock()
	if next.rank() <= e.errorStatus.rank() {
		e.mu.Unlock()
		return
	}
	e.errorStatus = next
	e.mu.Unlock()
	e.listeners.errorStatus(next)
}

// beginFailed delays the next dispatch after an attempt could not be opened.
// After maxBeginFailures in a row the transfer is closed as ERROR so it stops
// blocking the queue.
func (e *Engine) beginFailed(ctx context.Context, transfer *queue.Transfer, cause error) {
	e.mu.Lock()
	e.beginFailures++
	failures := e.beginFailures
	delay := e.pollInterval << (failures - 1)
	if delay > maxBeginBackoff || delay <= 0 {
		delay = maxBeginBackoff
	}
	giveUp := failures >= maxBeginFailures
	if giveUp {
		e.beginFailures = 0
		e.retryAt = time.Time{}
	} else {
		e.retryAt = time.Now().Add(delay)
	}
	e.mu.Unlock()

	if !giveUp {
		e.logger.Warn("attempt open failed; dispatch delayed",
			logging.Int64(logging.FieldTransferID, transfer.ID),
			logging.Int("failures", failures),
			logging.Duration("retry_in", delay),
		)
		time.AfterFunc(delay, e.Wake)
		return
	}

	if _, err := e.store.MarkFailed(ctx, transfer.ID); err != nil {
		logging.ErrorWithContext(e.logger, "failed to close unrunnable transfer", "transfer_fail_mark_failed",
			logging.Int64(logging.FieldTransferID, transfer.ID),
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check queue database access"),
		)
		return
	}
	logging.ErrorWithContext(e.logger, "transfer abandoned after repeated attempt failures", "transfer_abandoned",
		logging.Int64(logging.FieldTransferID, transfer.ID),
		logging.Int("failures", failures),
		logging.Error(cause),
		logging.String(logging.FieldErrorHint, "resubmit the transfer once the queue database is healthy"),
	)
}

func (e *Engine) beginSucceeded() {
	e.mu.Lock()
	e.beginFailures = 0
	e.retryAt = time.Time{}
	e.mu.Unlock()
}

// RunningStatus returns the engine execution state.
func (e *Engine) RunningStatus() RunningStatus {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.running
}

// ErrorStatus returns the worst status since the last enqueue.
func (e *Engine) ErrorStatus() ErrorStatus {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.errorStatus
}

// Active returns a copy of the transfer a worker owns, or nil.
func (e *Engine) Active() *queue.Transfer {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.active == nil {
		return nil
	}
	copied := *e.active.transfer
	return &copied
}

// Status returns a summary including queue statistics.
func (e *Engine) Status(ctx context.Context) Summary {
	e.mu.RLock()
	summary := Summary{Running: e.running, Error: e.errorStatus}
	if e.active != nil {
		copied := *e.active.transfer
		summary.Active = &copied
	}
	if e.lastErr != nil {
		summary.LastError = e.lastErr.Error()
	}
	e.mu.RUnlock()

	stats, err := e.store.Stats(ctx)
	if err != nil {
		e.logger.Warn("failed to read queue stats", logging.Error(err))
	}
	summary.Stats = stats
	return summary
}

func (e *Engine) lastErrLocked(err error) {
	if err != nil {
		e.lastErr = err
	}
}

func (e *Engine) setLastError(err error) {
	if err == nil {
		return
	}
	e.mu.Lock()
	e.lastErr = err
	e.mu.Unlock()
}

func (e *Engine) synchronizations() Synchronizations {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.syncs
}

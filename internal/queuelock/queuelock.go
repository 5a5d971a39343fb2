// Package queuelock provides the conveyor's fail-fast try-lock. It arbitrates
// between operations that must not overlap a running job (pass-phrase
// rotation, account deletion, full reset) and the execution engine launching
// a worker. Callers never wait: a held lock is reported as services.ErrConveyorBusy.
package queuelock

import (
	"sync"
	"sync/atomic"

	"conveyor/internal/services"
)

// State is the lock's tri-state flag.
type State int32

const (
	Idle State = iota
	Busy
	Running
)

func (s State) String() string {
	switch s {
	case Idle:
		return "IDLE"
	case Busy:
		return "BUSY"
	case Running:
		return "RUNNING"
	default:
		return "UNKNOWN"
	}
}

// Lock is a compare-and-swap lock over State. The zero value is idle and ready to use.
type Lock struct {
	state atomic.Int32

	mu     sync.Mutex
	onIdle []func()
}

// New returns an idle lock.
func New() *Lock {
	return &Lock{}
}

// State reports the current flag.
func (l *Lock) State() State {
	return State(l.state.Load())
}

// IsIdle reports whether neither an operation nor a job holds the lock.
func (l *Lock) IsIdle() bool {
	return l.State() == Idle
}

// TryEnterCriticalSection moves IDLE to BUSY or fails with ErrConveyorBusy.
func (l *Lock) TryEnterCriticalSection() error {
	if !l.state.CompareAndSwap(int32(Idle), int32(Busy)) {
		return services.Busy("queue lock", "enter critical section")
	}
	return nil
}

// LeaveCriticalSection returns a BUSY lock to IDLE. Calls on a lock that is not
// BUSY are ignored so a stray leave can never release a running job.
func (l *Lock) LeaveCriticalSection() {
	if l.state.CompareAndSwap(int32(Busy), int32(Idle)) {
		l.notifyIdle()
	}
}

// TryStartRunning moves IDLE to RUNNING for a worker launch.
func (l *Lock) TryStartRunning() bool {
	return l.state.CompareAndSwap(int32(Idle), int32(Running))
}

// FinishRunning returns a RUNNING lock to IDLE.
func (l *Lock) FinishRunning() {
	if l.state.CompareAndSwap(int32(Running), int32(Idle)) {
		l.notifyIdle()
	}
}

// AbandonRunning returns a RUNNING lock to IDLE without idle callbacks. It
// is used when a launch found nothing to run.
func (l *Lock) AbandonRunning() {
	l.state.CompareAndSwap(int32(Running), int32(Idle))
}

// WithCriticalSection runs fn while holding BUSY. It fails fast when the lock
// is not idle.
func (l *Lock) WithCriticalSection(fn func() error) error {
	if err := l.TryEnterCriticalSection(); err != nil {
		return err
	}
	defer l.LeaveCriticalSection()
	return fn()
}

// OnIdle registers fn to run after every transition back to IDLE. Callbacks
// run on the releasing goroutine and must not block.
func (l *Lock) OnIdle(fn func()) {
	if fn == nil {
		return
	}
	l.mu.Lock()
	l.onIdle = append(l.onIdle, fn)
	l.mu.Unlock()
}

func (l *Lock) notifyIdle() {
	l.mu.Lock()
	callbacks := append([]func(){}, l.onIdle...)
	l.mu.Unlock()
	for _, fn := range callbacks {
		fn()
	}
}

package engine

import "sync"

// Listener receives engine notifications. Calls arrive on engine and worker
// goroutines, outside engine locks, and must not block.
type Listener interface {
	RunningStatusChanged(RunningStatus)
	ErrorStatusChanged(ErrorStatus)
	FileProgress(Progress)
	TransferFinished(Finished)
}

// ListenerFuncs implements Listener with optional callbacks.
type ListenerFuncs struct {
	OnRunning  func(RunningStatus)
	OnError    func(ErrorStatus)
	OnProgress func(Progress)
	OnFinished func(Finished)
}

func (l ListenerFuncs) RunningStatusChanged(s RunningStatus) {
	if l.OnRunning != nil {
		l.OnRunning(s)
	}
}

func (l ListenerFuncs) ErrorStatusChanged(s ErrorStatus) {
	if l.OnError != nil {
		l.OnError(s)
	}
}

func (l ListenerFuncs) FileProgress(p Progress) {
	if l.OnProgress != nil {
		l.OnProgress(p)
	}
}

func (l ListenerFuncs) TransferFinished(f Finished) {
	if l.OnFinished != nil {
		l.OnFinished(f)
	}
}

type listenerSet struct {
	mu        sync.RWMutex
	next      int
	listeners map[int]Listener
}

func (s *listenerSet) add(l Listener) func() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listeners == nil {
		s.listeners = make(map[int]Listener)
	}
	id := s.next
	s.next++
	s.listeners[id] = l
	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.listeners, id)
			s.mu.Unlock()
		})
	}
}

func (s *listenerSet) snapshot() []Listener {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Listener, 0, len(s.listeners))
	for i := 0; i < s.next; i++ {
		if l, ok := s.listeners[i]; ok {
			out = append(out, l)
		}
	}
	return out
}

func (s *listenerSet) running(status RunningStatus) {
	for _, l := range s.snapshot() {
		l.RunningStatusChanged(status)
	}
}

func (s *listenerSet) errorStatus(status ErrorStatus) {
	for _, l := range s.snapshot() {
		l.ErrorStatusChanged(status)
	}
}

func (s *listenerSet) progress(p Progress) {
	for _, l := range s.snapshot() {
		l.FileProgress(p)
	}
}

func (s *listenerSet) finished(f Finished) {
	for _, l := range s.snapshot() {
		l.TransferFinished(f)
	}
}

package identity

import "sync"

// Listener holds at most one auth-state callback. Registering a new callback
// replaces the previous one.
type Listener struct {
	mu  sync.Mutex
	cb  AuthStateCallback
	gen uint64
}

func (l *Listener) Set(cb AuthStateCallback) func() {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.gen++
	gen := l.gen
	l.cb = cb

	return func() {
		l.mu.Lock()
		defer l.mu.Unlock()
		if l.gen == gen {
			l.cb = nil
		}
	}
}

// Emit invokes the registered callback, if any, outside the lock.
func (l *Listener) Emit(event AuthEvent, session *Session) {
	l.mu.Lock()
	cb := l.cb
	l.mu.Unlock()

	if cb != nil {
		cb(event, session)
	}
}

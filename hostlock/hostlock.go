package hostlock

import "sync"

// Lock models a host's cooperative exclusive-execution lock. The owner
// of the lock is the only party allowed to touch host-visible state;
// long-running engine calls must release it so other host work can
// proceed, then reacquire it before returning.
type Lock struct {
	mu sync.Mutex
}

// New returns an unheld Lock.
func New() *Lock {
	return &Lock{}
}

// Acquire blocks until the lock is held by the caller.
func (l *Lock) Acquire() {
	l.mu.Lock()
}

// Release gives up the lock. Calling Release without holding the lock
// is a programming error and panics, matching sync.Mutex semantics.
func (l *Lock) Release() {
	l.mu.Unlock()
}

// Do runs fn with the lock released and reacquires it before
// returning, whether fn succeeded or failed. The caller must hold the
// lock on entry; it holds it again on return.
func Do[T any](l *Lock, fn func() (T, error)) (T, error) {
	l.mu.Unlock()
	defer l.mu.Lock()
	return fn()
}

// Package hostlock provides the exclusive-execution lock bracket used
// around long-running engine calls.
//
// Hosts that embed the bridge typically serialize access to their own
// state with a single lock. Holding that lock across an engine call
// that may block for seconds would stall every other host operation,
// so the bridge releases the lock for the duration of the call and
// reacquires it before handing the result back:
//
//	lock.Acquire()
//	defer lock.Release()
//	res, err := hostlock.Do(lock, func() (*Result, error) {
//		return engine.Search(ctx, q)
//	})
//
// Do restores the held state on both the success and the error path,
// so callers can treat the bracket as invisible.
package hostlock

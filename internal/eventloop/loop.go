// Package eventloop provides the single ordered event queue that gives the
// voice controller its cooperative single-threaded semantics.
//
// The host GUI toolkit owns a real UI thread; this package reproduces the
// part the controller relies on: every posted closure runs on one goroutine,
// strictly in post order, so no two state-machine transitions ever execute
// concurrently and none of the state machines need internal locking.
// Background workers (generation calls, speech-completion watchers, backend
// callbacks) hand their results back by posting closures here instead of
// mutating shared state directly.
package eventloop

import (
	"context"
	"sync"
)

// defaultBuffer is the queue depth. Posting never blocks in practice: the
// queue only fills if the consumer has stalled for hundreds of events.
const defaultBuffer = 256

// Loop is a serialized task queue. Post tasks from any goroutine; they run
// in order on the goroutine that called [Loop.Run] (or inline via
// [Loop.Pump] in tests).
type Loop struct {
	tasks     chan func()
	done      chan struct{}
	closeOnce sync.Once
}

// New creates a Loop with the default queue depth.
func New() *Loop {
	return &Loop{
		tasks: make(chan func(), defaultBuffer),
		done:  make(chan struct{}),
	}
}

// Post enqueues fn for execution. It returns false when the loop has been
// closed and the task was discarded. Post is safe to call from any
// goroutine. It blocks only if the queue is full, and unblocks when the
// loop is closed.
func (l *Loop) Post(fn func()) bool {
	select {
	case <-l.done:
		return false
	default:
	}
	select {
	case l.tasks <- fn:
		return true
	case <-l.done:
		return false
	}
}

// Run consumes tasks until ctx is cancelled or the loop is closed. It must
// be called from exactly one goroutine.
func (l *Loop) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-l.done:
			return
		case fn := <-l.tasks:
			fn()
		}
	}
}

// Pump synchronously executes every task queued at the time of the call,
// including tasks those tasks post. It returns the number of tasks run.
// Pump must not be used concurrently with Run; it exists so tests can drive
// the loop deterministically.
func (l *Loop) Pump() int {
	n := 0
	for {
		select {
		case fn := <-l.tasks:
			fn()
			n++
		default:
			return n
		}
	}
}

// Close stops the loop. Subsequent Posts are discarded and tasks still
// queued are dropped. Close is idempotent and safe from any goroutine.
func (l *Loop) Close() {
	l.closeOnce.Do(func() { close(l.done) })
}

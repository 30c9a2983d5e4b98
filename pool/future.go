package pool

import (
	"context"
	"sync"
	"time"
)

// futureState tracks where a Future sits in its lifecycle. Once it leaves
// futurePending it never returns to it.
type futureState int32

const (
	futurePending futureState = iota
	futureResolved
	futureRejected
)

// Future is the minimal pending-result primitive the dispatcher core is
// built on: resolve/reject are idempotent (first call wins), pending is
// observable so advance() can skip a cancelled queued task, and timeout
// arms a timer that rejects on expiry. Settlement callbacks are the "then"
// hook.
//
// A single value+error settle guarded by a mutex, rather than a pair of
// unbuffered channels, since Dispatcher needs a synchronous Pending() check
// rather than a select.
type Future struct {
	mu    sync.Mutex
	state futureState
	value any
	err   error
	done  chan struct{}
	timer *time.Timer
	then  []func(any, error)
}

// NewFuture returns a pending Future.
func NewFuture() *Future {
	return &Future{done: make(chan struct{})}
}

// Pending reports whether the future is still awaiting settlement.
func (f *Future) Pending() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state == futurePending
}

// Resolve settles the future successfully. A call after the first
// resolve/reject/cancel is a silent no-op.
func (f *Future) Resolve(v any) {
	f.settle(futureResolved, v, nil)
}

// Reject settles the future with an error. A call after the first
// resolve/reject/cancel is a silent no-op.
func (f *Future) Reject(err error) {
	f.settle(futureRejected, nil, err)
}

// Cancel transitions a pending future straight to rejected with
// ErrTaskCancelled, and reports whether it actually performed that
// transition (false if the future had already settled). advance() sees the
// cancellation through Pending() and drops the queued task silently.
func (f *Future) Cancel() bool {
	f.mu.Lock()
	wasPending := f.state == futurePending
	f.mu.Unlock()
	if !wasPending {
		return false
	}
	f.settle(futureRejected, nil, ErrTaskCancelled)
	return true
}

// Timeout arms a timer that rejects the future with ErrTaskTimeout after d,
// unless the future settles first. Calling Timeout again replaces the
// pending timer. The timer always starts when Timeout is called, including
// on the future of a task that is still queued. Deferred arming applies only
// to TaskOptions.Timeout: submitNamed records that duration on
// Task.DeferredTimeout and advance() calls Timeout once the task is handed
// to a worker.
func (f *Future) Timeout(d time.Duration) {
	f.mu.Lock()
	if f.state != futurePending {
		f.mu.Unlock()
		return
	}
	if f.timer != nil {
		f.timer.Stop()
	}
	f.timer = time.AfterFunc(d, func() { f.Reject(ErrTaskTimeout) })
	f.mu.Unlock()
}

// Then registers a callback invoked exactly once, with the settled
// value/error, as soon as the future settles (immediately, in a new
// goroutine, if it has already settled).
func (f *Future) Then(fn func(v any, err error)) {
	f.mu.Lock()
	if f.state != futurePending {
		v, err := f.value, f.err
		f.mu.Unlock()
		go fn(v, err)
		return
	}
	f.then = append(f.then, fn)
	f.mu.Unlock()
}

// Done returns a channel closed once the future settles.
func (f *Future) Done() <-chan struct{} {
	return f.done
}

// Wait blocks until the future settles or ctx is done.
func (f *Future) Wait(ctx context.Context) (any, error) {
	select {
	case <-f.done:
		f.mu.Lock()
		defer f.mu.Unlock()
		return f.value, f.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (f *Future) settle(s futureState, v any, err error) {
	f.mu.Lock()
	if f.state != futurePending {
		f.mu.Unlock()
		return
	}
	f.state = s
	f.value = v
	f.err = err
	if f.timer != nil {
		f.timer.Stop()
	}
	callbacks := f.then
	f.then = nil
	close(f.done)
	f.mu.Unlock()

	for _, cb := range callbacks {
		go cb(v, err)
	}
}

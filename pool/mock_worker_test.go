package pool

import (
	"sync"
	"time"
)

// mockWorker is a minimal, test-only WorkerHandle. Its behavior is driven by
// a pluggable execHandler so each test can script exactly how a call settles
// (resolve, reject, or simulate a crash) without a real transport.
type mockWorker struct {
	mu          sync.Mutex
	script      string
	debugPort   int
	available   bool
	busy        bool
	terminated  bool
	terminates  int
	execHandler func(method string, params []any, resolver *Future, execFuture *Future)
	onExit      func()
	onReady     func()
}

func newMockWorker() *mockWorker {
	return &mockWorker{available: true}
}

func (w *mockWorker) Exec(method string, params []any, resolver *Future, options TaskOptions) *Future {
	execFuture := NewFuture()

	w.mu.Lock()
	w.busy = true
	handler := w.execHandler
	w.mu.Unlock()

	if handler != nil {
		handler(method, params, resolver, execFuture)
	} else {
		resolver.Resolve("ok")
		execFuture.Resolve(nil)
	}

	w.mu.Lock()
	w.busy = false
	w.mu.Unlock()
	return execFuture
}

func (w *mockWorker) Available() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.available && !w.terminated
}

func (w *mockWorker) Busy() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.busy
}

func (w *mockWorker) Terminated() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.terminated
}

func (w *mockWorker) Terminate(force bool, cb func(error)) {
	w.mu.Lock()
	w.terminated = true
	w.terminates++
	w.mu.Unlock()
	cb(nil)
}

func (w *mockWorker) TerminateAndNotify(force bool, timeout time.Duration) *Future {
	fut := NewFuture()
	w.Terminate(force, func(err error) {
		if err != nil {
			fut.Reject(err)
		} else {
			fut.Resolve(nil)
		}
	})
	return fut
}

func (w *mockWorker) Script() string    { return w.script }
func (w *mockWorker) DebugPort() int    { return w.debugPort }
func (w *mockWorker) Stats() WorkerCounters { return WorkerCounters{} }

func (w *mockWorker) setAvailable(v bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.available = v
}

func (w *mockWorker) crash() {
	w.mu.Lock()
	w.terminated = true
	onExit := w.onExit
	w.mu.Unlock()
	if onExit != nil {
		onExit()
	}
}

// mockFactory hands out workers produced by next, one per createWorkerLocked
// call, and records onReady/onExit on each so tests can drive them.
func mockFactory(next func() *mockWorker) WorkerFactory {
	return func(params WorkerParams, onReady func(), onExit func()) (WorkerHandle, error) {
		w := next()
		w.mu.Lock()
		w.script = params.Script
		w.debugPort = params.DebugPort
		w.onReady = onReady
		w.onExit = onExit
		w.mu.Unlock()
		return w, nil
	}
}

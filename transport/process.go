// Package transport provides a concrete, OS-process-backed implementation
// of pool.WorkerHandle. The dispatcher core treats the worker transport and
// its wire protocol as a boundary it never looks past; this package is the
// reference transport a runnable daemon needs to drive the core end to end.
//
// An exec.Cmd child process, a monitor goroutine reaping cmd.Wait() and
// notifying on crash, and a readiness-polling goroutine, speaking a
// pluggable newline-delimited JSON-RPC-style protocol over the child's
// stdin/stdout, since the dispatcher core has no fixed wire format to
// assume.
package transport

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/Gearlay/workerpool/pool"
)

// request is one call sent to the child process, one JSON object per line.
type request struct {
	ID     string `json:"id"`
	Method string `json:"method"`
	Params []any  `json:"params"`
}

// response is one reply line read back from the child process. A line with
// Ready == true (and no ID) is the child's one-time readiness signal.
type response struct {
	ID     string `json:"id,omitempty"`
	Result any    `json:"result,omitempty"`
	Error  string `json:"error,omitempty"`
	Ready  bool   `json:"ready,omitempty"`
}

// ProcessWorker is a pool.WorkerHandle backed by a forked OS process
// speaking the line-delimited protocol above over stdin/stdout.
type ProcessWorker struct {
	binaryPath string
	script     string
	forkArgs   []string
	forkEnv    []string
	debugPort  int

	concurrency int
	maxExec     int
	logger      pool.Logger

	initReadyTimeout time.Duration

	onReady func()
	onExit  func()

	mu         sync.Mutex
	cmd        *exec.Cmd
	stdin      io.WriteCloser
	terminated bool
	inFlight   int
	execCount  int
	stats      pool.WorkerCounters
	exited     chan struct{} // closed once, by monitor(), when cmd.Wait() returns

	writeMu sync.Mutex

	pendingMu sync.Mutex
	pending   map[string]chan response

	sem chan struct{}
}

// NewFactory returns a pool.WorkerFactory that forks binaryPath for every
// worker the Dispatcher creates, so the Dispatcher core never constructs a
// transport value directly.
func NewFactory(binaryPath string, logger pool.Logger) pool.WorkerFactory {
	return func(params pool.WorkerParams, onReady func(), onExit func()) (pool.WorkerHandle, error) {
		w := &ProcessWorker{
			binaryPath:       binaryPath,
			script:           params.Script,
			forkArgs:         params.ForkArgs,
			debugPort:        params.DebugPort,
			concurrency:      params.Concurrency,
			maxExec:          params.MaxExec,
			logger:           logger,
			initReadyTimeout: params.InitReadyTimeoutDuration,
			onReady:          onReady,
			onExit:           onExit,
			pending:          make(map[string]chan response),
		}
		if w.concurrency <= 0 {
			w.concurrency = 1
		}
		for k, v := range params.ForkOpts {
			w.forkEnv = append(w.forkEnv, fmt.Sprintf("%s=%s", k, v))
		}
		w.sem = make(chan struct{}, w.concurrency)

		if err := w.start(); err != nil {
			return nil, err
		}
		return w, nil
	}
}

func (w *ProcessWorker) start() error {
	args := append([]string{w.script}, w.forkArgs...)
	cmd := exec.Command(w.binaryPath, args...)
	cmd.Env = append(os.Environ(), w.forkEnv...)
	cmd.Env = append(cmd.Env, fmt.Sprintf("WORKER_DEBUG_PORT=%d", w.debugPort))
	cmd.Stderr = os.Stderr

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return errors.Wrap(err, "transport: stdin pipe")
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return errors.Wrap(err, "transport: stdout pipe")
	}
	if err := cmd.Start(); err != nil {
		return errors.Wrap(err, "transport: start worker process")
	}

	w.mu.Lock()
	w.cmd = cmd
	w.stdin = stdin
	w.terminated = false
	w.exited = make(chan struct{})
	w.mu.Unlock()

	go w.readLoop(stdout)
	go w.monitor()
	return nil
}

// monitor reaps the child process and fires onExit. It does not restart
// in place — replacement is the Dispatcher's job (ensureMinWorkersLocked),
// keeping the transport a dumb handle.
func (w *ProcessWorker) monitor() {
	w.mu.Lock()
	cmd := w.cmd
	exited := w.exited
	w.mu.Unlock()

	_ = cmd.Wait()
	close(exited)

	w.mu.Lock()
	w.terminated = true
	w.mu.Unlock()

	w.failAllPending(pool.ErrWorkerTerminated)

	if w.logger != nil {
		w.logger.Warnf("transport: worker process on debug port %d exited", w.debugPort)
	}
	if w.onExit != nil {
		w.onExit()
	}
}

// readLoop scans newline-delimited JSON responses from the child, routing
// the one-time readiness line to onReady and every other line to its
// pending call by ID.
func (w *ProcessWorker) readLoop(stdout io.Reader) {
	scanner := bufio.NewScanner(stdout)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	first := true
	for scanner.Scan() {
		var resp response
		if err := json.Unmarshal(scanner.Bytes(), &resp); err != nil {
			if w.logger != nil {
				w.logger.Warnf("transport: malformed line from worker: %v", err)
			}
			continue
		}
		if first && resp.Ready {
			first = false
			if w.onReady != nil {
				w.onReady()
			}
			continue
		}
		first = false

		w.pendingMu.Lock()
		ch, ok := w.pending[resp.ID]
		if ok {
			delete(w.pending, resp.ID)
		}
		w.pendingMu.Unlock()
		if ok {
			ch <- resp
		}
	}
}

// Exec implements pool.WorkerHandle. It never blocks the caller: the call
// is serialized onto the wire from a background goroutine gated by a
// concurrency semaphore, and settles resolver independently of the
// returned completion future.
func (w *ProcessWorker) Exec(method string, params []any, resolver *pool.Future, options pool.TaskOptions) *pool.Future {
	execFuture := pool.NewFuture()

	w.mu.Lock()
	terminated := w.terminated
	w.mu.Unlock()
	if terminated {
		resolver.Reject(pool.ErrWorkerTerminated)
		execFuture.Reject(pool.ErrWorkerTerminated)
		return execFuture
	}

	go w.runCall(method, params, resolver, options, execFuture)
	return execFuture
}

func (w *ProcessWorker) runCall(method string, params []any, resolver *pool.Future, options pool.TaskOptions, execFuture *pool.Future) {
	w.sem <- struct{}{}
	defer func() { <-w.sem }()

	w.mu.Lock()
	w.inFlight++
	w.mu.Unlock()
	defer func() {
		w.mu.Lock()
		w.inFlight--
		w.mu.Unlock()
	}()

	id := uuid.NewString()
	respCh := make(chan response, 1)
	w.pendingMu.Lock()
	w.pending[id] = respCh
	w.pendingMu.Unlock()

	payload, err := json.Marshal(request{ID: id, Method: method, Params: params})
	if err != nil {
		w.pendingMu.Lock()
		delete(w.pending, id)
		w.pendingMu.Unlock()
		resolver.Reject(err)
		execFuture.Reject(err)
		return
	}

	start := time.Now()
	w.writeMu.Lock()
	_, werr := fmt.Fprintln(w.stdin, string(payload))
	w.writeMu.Unlock()
	if werr != nil {
		w.pendingMu.Lock()
		delete(w.pending, id)
		w.pendingMu.Unlock()
		resolver.Reject(werr)
		execFuture.Reject(werr)
		return
	}

	var timeoutCh <-chan time.Time
	if options.Timeout != nil {
		timer := time.NewTimer(*options.Timeout)
		defer timer.Stop()
		timeoutCh = timer.C
	}

	select {
	case resp := <-respCh:
		w.recordCall(time.Since(start))
		if resp.Error != "" {
			err := errors.New(resp.Error)
			resolver.Reject(err)
			execFuture.Reject(err)
		} else {
			resolver.Resolve(resp.Result)
			execFuture.Resolve(nil)
		}
		w.maybeRetireAfterExec()
	case <-timeoutCh:
		w.pendingMu.Lock()
		delete(w.pending, id)
		w.pendingMu.Unlock()
		resolver.Reject(pool.ErrTaskTimeout)
		execFuture.Reject(pool.ErrTaskTimeout)
	}
}

func (w *ProcessWorker) recordCall(d time.Duration) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.execCount++
	w.stats.RequestCount++
	w.stats.TotalTime += d
	w.stats.LastTime = d
	if w.stats.MaxTime == 0 || d > w.stats.MaxTime {
		w.stats.MaxTime = d
	}
	if w.stats.MinTime == 0 || d < w.stats.MinTime {
		w.stats.MinTime = d
	}
}

func (w *ProcessWorker) maybeRetireAfterExec() {
	w.mu.Lock()
	shouldRetire := w.maxExec > 0 && w.execCount >= w.maxExec
	w.mu.Unlock()
	if shouldRetire {
		w.Terminate(false, func(error) {})
	}
}

func (w *ProcessWorker) failAllPending(err error) {
	w.pendingMu.Lock()
	pending := w.pending
	w.pending = make(map[string]chan response)
	w.pendingMu.Unlock()
	for _, ch := range pending {
		ch <- response{Error: err.Error()}
	}
}

// Available reports whether the worker has an open concurrency slot.
func (w *ProcessWorker) Available() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return !w.terminated && w.inFlight < w.concurrency
}

// Busy reports whether the worker is executing at least one call.
func (w *ProcessWorker) Busy() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.inFlight > 0
}

// Terminated reports the worker's terminal state.
func (w *ProcessWorker) Terminated() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.terminated
}

// Script returns the registered-method namespace this worker was started
// with.
func (w *ProcessWorker) Script() string { return w.script }

// DebugPort returns the debug port this worker was allocated.
func (w *ProcessWorker) DebugPort() int { return w.debugPort }

// Stats returns this worker's accumulated call counters.
func (w *ProcessWorker) Stats() pool.WorkerCounters {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.stats
}

// Terminate ends the worker. force==true kills the process immediately;
// otherwise stdin is closed so the child can drain and exit on its own,
// falling back to a kill if the child has not exited within a short grace
// period.
func (w *ProcessWorker) Terminate(force bool, cb func(error)) {
	go func() {
		w.mu.Lock()
		already := w.terminated
		exited := w.exited
		w.mu.Unlock()
		if already || exited == nil {
			cb(nil)
			return
		}

		if force {
			cb(w.kill())
			return
		}

		w.mu.Lock()
		_ = w.stdin.Close()
		w.mu.Unlock()

		select {
		case <-exited:
			cb(nil)
		case <-time.After(5 * time.Second):
			cb(w.kill())
		}
	}()
}

// TerminateAndNotify is Terminate with a hard deadline, returning a future
// instead of a callback.
func (w *ProcessWorker) TerminateAndNotify(force bool, timeout time.Duration) *pool.Future {
	fut := pool.NewFuture()
	if timeout > 0 {
		fut.Timeout(timeout)
	}
	w.Terminate(force, func(err error) {
		if err != nil {
			fut.Reject(err)
		} else {
			fut.Resolve(nil)
		}
	})
	return fut
}

func (w *ProcessWorker) kill() error {
	w.mu.Lock()
	cmd := w.cmd
	w.terminated = true
	w.mu.Unlock()
	if cmd == nil || cmd.Process == nil {
		return nil
	}
	return cmd.Process.Kill()
}

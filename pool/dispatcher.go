// Package pool implements a worker-pool dispatcher core: a bounded set of
// long-lived workers fed from a single FIFO task queue, selected by an
// affinity / round-robin / first-available priority chain, scaled lazily
// between min and max and throttled by a gradual-scaling gate, with crash
// recovery and graceful/forceful termination.
//
// The worker set is a slice mutated under a mutex, bounded by min/max, with
// an onExit callback per worker that removes it and tops the pool back up.
// Around it sit a FIFO task queue, future-based results,
// affinity/round-robin selection, gradual scaling, and a
// terminate(force, timeout) protocol.
package pool

import (
	"context"
	"runtime"
	"sync"
	"time"

	"github.com/pkg/errors"
)

// MinWorkersMax is a sentinel: set Options.MinWorkers to this value to mean
// "minWorkers == maxWorkers".
const MinWorkersMax = -1

const defaultDebugPortStart = 9230

// Options configures a Dispatcher. Factory is the only required field — it
// is the worker transport the Dispatcher drives, kept out of this package;
// see the transport package for a concrete OS-process implementation.
type Options struct {
	MinWorkers int
	MaxWorkers int

	// MaxQueueSize is unbounded when nil.
	MaxQueueSize *int

	// GradualScaling throttles new-worker creation to at most one per
	// window of this length. Zero disables the gate.
	GradualScaling time.Duration

	RoundRobin bool

	WorkerType               WorkerType
	Concurrency              int
	MaxExec                  int
	MarkNotReadyAfterExec    bool
	ReadyTimeoutDuration     time.Duration
	InitReadyTimeoutDuration time.Duration
	ForkArgs                 []string
	ForkOpts                 map[string]string

	DebugPortStart int

	// Factory is the worker transport. Required.
	Factory WorkerFactory

	// OnCreateWorker is called immediately before spawning a worker; a
	// non-nil return overrides the per-worker factory parameters (not
	// pool-level policy).
	OnCreateWorker func(WorkerParams) *WorkerParams
	// OnTerminateWorker is called after a worker is disposed, regardless
	// of whether termination succeeded.
	OnTerminateWorker func(WorkerParams)

	Logger Logger

	// Metrics, when set, is sampled/incremented as the dispatcher runs.
	// Optional — the dispatcher works identically without it.
	Metrics *Metrics
}

// Dispatcher owns the task queue, the worker set, the selection policy,
// scaling, and lifecycle. All of its state is mutated under a single
// mutex — single-writer discipline — and nothing that touches it blocks;
// suspension points are future/callback completions only.
type Dispatcher struct {
	mu      sync.Mutex
	script  string
	workers []WorkerHandle
	tasks   []*Task

	minWorkers     int
	maxWorkers     int
	maxQueueSize   int // -1 == unbounded
	gradualScaling time.Duration
	canCreateWorker bool

	roundRobin bool
	lastChosen int

	workerType               WorkerType
	concurrency              int
	maxExec                  int
	markNotReadyAfterExec    bool
	readyTimeoutDuration     time.Duration
	initReadyTimeoutDuration time.Duration
	forkArgs                 []string
	forkOpts                 map[string]string

	debugPortStart int
	ports          *DebugPortAllocator

	factory           WorkerFactory
	onCreateWorker    func(WorkerParams) *WorkerParams
	onTerminateWorker func(WorkerParams)

	logger  Logger
	metrics *Metrics

	terminated bool

	inlineMu sync.Mutex
	inline   map[string]InlineCallable
}

// defaultMaxWorkers is the default ceiling when MaxWorkers is unset: max(cpus-1, 1).
func defaultMaxWorkers() int {
	if n := runtime.NumCPU() - 1; n > 1 {
		return n
	}
	return 1
}

// NewDispatcher constructs a Dispatcher for the given script (the
// registered-method namespace passed through to the worker factory; may be
// empty for inline-callable-only pools) and immediately spawns workers
// until len(workers) == minWorkers.
func NewDispatcher(script string, opts Options) (*Dispatcher, error) {
	if opts.Factory == nil {
		return nil, errors.New("pool: Options.Factory is required")
	}

	maxWorkers := opts.MaxWorkers
	if maxWorkers == 0 {
		maxWorkers = defaultMaxWorkers()
	}
	if maxWorkers < 1 {
		return nil, errors.Errorf("pool: maxWorkers must be >= 1, got %d", maxWorkers)
	}

	minWorkers := opts.MinWorkers
	if minWorkers == MinWorkersMax {
		minWorkers = maxWorkers
	}
	if minWorkers < 0 {
		return nil, errors.Errorf("pool: minWorkers must be >= 0 (or pool.MinWorkersMax), got %d", minWorkers)
	}
	if minWorkers > maxWorkers {
		maxWorkers = minWorkers
	}

	maxQueueSize := -1
	if opts.MaxQueueSize != nil {
		maxQueueSize = *opts.MaxQueueSize
	}

	debugPortStart := opts.DebugPortStart
	if debugPortStart == 0 {
		debugPortStart = defaultDebugPortStart
	}

	logger := opts.Logger
	if logger == nil {
		logger = nopLogger{}
	}

	d := &Dispatcher{
		script:                   script,
		minWorkers:               minWorkers,
		maxWorkers:               maxWorkers,
		maxQueueSize:             maxQueueSize,
		gradualScaling:           opts.GradualScaling,
		canCreateWorker:          true,
		roundRobin:               opts.RoundRobin,
		lastChosen:               -1,
		workerType:               opts.WorkerType,
		concurrency:              opts.Concurrency,
		maxExec:                  opts.MaxExec,
		markNotReadyAfterExec:    opts.MarkNotReadyAfterExec,
		readyTimeoutDuration:     opts.ReadyTimeoutDuration,
		initReadyTimeoutDuration: opts.InitReadyTimeoutDuration,
		forkArgs:                 opts.ForkArgs,
		forkOpts:                 opts.ForkOpts,
		debugPortStart:           debugPortStart,
		ports:                    NewDebugPortAllocator(),
		factory:                  opts.Factory,
		onCreateWorker:           opts.OnCreateWorker,
		onTerminateWorker:        opts.OnTerminateWorker,
		logger:                   logger,
		metrics:                  opts.Metrics,
		inline:                   make(map[string]InlineCallable),
	}

	d.mu.Lock()
	d.ensureMinWorkersLocked()
	d.mu.Unlock()

	return d, nil
}

// Submit hands a named method and its arguments to the dispatcher. method
// must be a string or an InlineCallable; anything else fails synchronously
// with ErrInvalidMethod.
func (d *Dispatcher) Submit(method any, params []any, options TaskOptions) (*Future, error) {
	switch m := method.(type) {
	case string:
		if m == "" {
			return nil, ErrInvalidMethod
		}
		return d.submitNamed(m, params, options)
	case InlineCallable:
		token := d.registerInline(m)
		return d.submitNamed("run", []any{token, params}, options)
	default:
		return nil, ErrInvalidMethod
	}
}

func (d *Dispatcher) submitNamed(method string, params []any, options TaskOptions) (*Future, error) {
	d.mu.Lock()
	if d.terminated {
		d.mu.Unlock()
		return nil, ErrPoolTerminated
	}
	if d.maxQueueSize >= 0 && len(d.tasks) >= d.maxQueueSize {
		d.mu.Unlock()
		if d.metrics != nil {
			d.metrics.TasksRejected.Inc()
		}
		return nil, errors.Wrapf(ErrQueueFull, "max queue size of %d reached", d.maxQueueSize)
	}

	t := newTask(method, params, options)
	if options.Timeout != nil {
		// Captured while queued; advance() arms it for real at dispatch
		// time.
		deferred := *options.Timeout
		t.DeferredTimeout = &deferred
	}
	d.tasks = append(d.tasks, t)
	d.mu.Unlock()

	d.advance()
	return t.Resolver, nil
}

// advance picks at most one task per invocation and re-invokes itself via
// completion callbacks. It is deliberately not a loop — every suspension
// point (worker exec settling, the gradual-scaling timer, a worker's ready
// signal) drives the next call. Cancelling a queued task does not call it;
// the cancelled task is dropped on its next turn.
func (d *Dispatcher) advance() {
	d.mu.Lock()
	if d.terminated || len(d.tasks) == 0 {
		d.mu.Unlock()
		return
	}

	head := d.tasks[0]
	worker := d.selectWorkerLocked(head.Options.Affinity)
	if worker == nil {
		d.mu.Unlock()
		return
	}
	d.tasks = d.tasks[1:]
	d.mu.Unlock()

	if !head.Resolver.Pending() {
		// Caller cancelled while queued — drop it and try the next task
		// immediately.
		d.advance()
		return
	}

	if head.DeferredTimeout != nil {
		head.Resolver.Timeout(*head.DeferredTimeout)
	}
	execFuture := worker.Exec(head.Method, head.Params, head.Resolver, head.Options)
	if d.metrics != nil {
		d.metrics.TasksDispatched.Inc()
	}

	execFuture.Then(func(_ any, err error) {
		if err != nil && worker.Terminated() {
			if d.metrics != nil {
				d.metrics.WorkerCrashes.Inc()
			}
			d.removeWorker(worker)
		}
		d.advance()
	})
}

// selectWorkerLocked implements the selection priority chain: affinity,
// then round-robin, then first-available — each bypassing availability
// except the last — followed by an independent growth attempt. Must be
// called with d.mu held.
func (d *Dispatcher) selectWorkerLocked(affinity *int) WorkerHandle {
	var picked WorkerHandle

	switch {
	case affinity != nil && len(d.workers) > 0:
		idx := *affinity % len(d.workers)
		if idx < 0 {
			idx += len(d.workers)
		}
		picked = d.workers[idx]
	case d.roundRobin && len(d.workers) > 0:
		d.lastChosen = (d.lastChosen + 1) % len(d.workers)
		picked = d.workers[d.lastChosen]
	default:
		for _, w := range d.workers {
			if w.Available() {
				picked = w
				break
			}
		}
	}

	if len(d.workers) < d.maxWorkers {
		grow := d.gradualScaling == 0
		if !grow && d.canCreateWorker {
			d.canCreateWorker = false
			grow = true
			window := d.gradualScaling
			time.AfterFunc(window, func() {
				d.mu.Lock()
				d.canCreateWorker = true
				d.mu.Unlock()
				d.advance()
			})
		}
		if grow {
			w, err := d.createWorkerLocked()
			if err != nil {
				d.logger.Errorf("pool: scale-up failed: %v", err)
			} else {
				d.workers = append(d.workers, w)
				if picked == nil {
					picked = w
				}
			}
		}
	}

	return picked
}

// ensureMinWorkersLocked spawns synchronously, with no gradual-scaling
// gate, until len(workers) == minWorkers. Must be called with d.mu held.
func (d *Dispatcher) ensureMinWorkersLocked() {
	for len(d.workers) < d.minWorkers {
		w, err := d.createWorkerLocked()
		if err != nil {
			d.logger.Errorf("pool: failed to maintain minimum worker count: %v", err)
			return
		}
		d.workers = append(d.workers, w)
	}
}

// createWorkerLocked spawns one new worker. Must be called with d.mu held;
// the factory call itself is expected to be cheap/non-blocking
// (fork-and-return, kicking off background monitor/ready goroutines and
// returning immediately).
func (d *Dispatcher) createWorkerLocked() (WorkerHandle, error) {
	params := d.baseWorkerParams()
	if d.onCreateWorker != nil {
		if override := d.onCreateWorker(params); override != nil {
			params = *override
		}
	}
	params.DebugPort = d.ports.NextAvailableStartingAt(d.debugPortStart)

	var handle WorkerHandle
	onReady := func() { d.advance() }
	onExit := func() { d.removeWorker(handle) }

	w, err := d.factory(params, onReady, onExit)
	if err != nil {
		d.ports.ReleasePort(params.DebugPort)
		return nil, err
	}
	handle = w
	return w, nil
}

func (d *Dispatcher) baseWorkerParams() WorkerParams {
	return WorkerParams{
		Script:                   d.script,
		ForkArgs:                 d.forkArgs,
		ForkOpts:                 d.forkOpts,
		WorkerType:               d.workerType,
		Concurrency:              d.concurrency,
		MaxExec:                  d.maxExec,
		MarkNotReadyAfterExec:    d.markNotReadyAfterExec,
		ReadyTimeoutDuration:     d.readyTimeoutDuration,
		InitReadyTimeoutDuration: d.initReadyTimeoutDuration,
	}
}

// removeWorker releases the debug port, drops the worker from the set,
// tops the pool back up to minWorkers, then terminates it gracefully and
// notifies. Safe to call more than once for the same worker (via both the
// crash-detection path in advance() and the worker's own onExit signal) —
// the second call is a no-op.
func (d *Dispatcher) removeWorker(w WorkerHandle) *Future {
	result := NewFuture()

	d.mu.Lock()
	idx := -1
	for i, ww := range d.workers {
		if ww == w {
			idx = i
			break
		}
	}
	if idx == -1 {
		d.mu.Unlock()
		result.Resolve(nil)
		return result
	}
	d.ports.ReleasePort(w.DebugPort())
	d.workers = append(d.workers[:idx:idx], d.workers[idx+1:]...)
	d.ensureMinWorkersLocked()
	descriptor := d.descriptorForLocked(w)
	d.mu.Unlock()

	w.Terminate(false, func(err error) {
		if d.onTerminateWorker != nil {
			d.onTerminateWorker(descriptor)
		}
		if err != nil {
			result.Reject(err)
		} else {
			result.Resolve(nil)
		}
	})
	return result
}

func (d *Dispatcher) descriptorForLocked(w WorkerHandle) WorkerParams {
	p := d.baseWorkerParams()
	p.Script = w.Script()
	p.DebugPort = w.DebugPort()
	return p
}

// Terminate rejects every queued task, snapshots and clears the worker
// set, terminates each worker with the given force/timeout, and invokes
// onTerminateWorker for each regardless of outcome. A second call after
// the first completes resolves immediately without re-running any of
// this.
func (d *Dispatcher) Terminate(force bool, timeout time.Duration) *Future {
	result := NewFuture()

	d.mu.Lock()
	if d.terminated {
		d.mu.Unlock()
		result.Resolve(nil)
		return result
	}
	d.terminated = true
	pending := d.tasks
	d.tasks = nil
	workers := append([]WorkerHandle(nil), d.workers...)
	d.workers = nil
	d.mu.Unlock()

	for _, t := range pending {
		t.Resolver.Reject(ErrPoolTerminated)
	}

	if len(workers) == 0 {
		result.Resolve(nil)
		return result
	}

	var wg sync.WaitGroup
	wg.Add(len(workers))
	for _, w := range workers {
		w := w
		go func() {
			defer wg.Done()
			descriptor := d.descriptorForLocked(w)
			d.ports.ReleasePort(w.DebugPort())
			fut := w.TerminateAndNotify(force, timeout)
			_, _ = fut.Wait(context.Background())
			if d.onTerminateWorker != nil {
				d.onTerminateWorker(descriptor)
			}
		}()
	}
	go func() {
		wg.Wait()
		result.Resolve(nil)
	}()
	return result
}

package pool

import "time"

// WorkerType selects the transport a worker factory should use. The core
// never interprets it beyond passing it through to the factory — the
// worker process/thread transport is out of this package's scope.
type WorkerType string

const (
	WorkerAuto    WorkerType = "auto"
	WorkerThread  WorkerType = "thread"
	WorkerProcess WorkerType = "process"
	WorkerWeb     WorkerType = "web"
)

// WorkerParams is the merged set of parameters passed to a WorkerFactory
// when the Dispatcher spawns a worker, and is also the shape handed to
// onCreateWorker/onTerminateWorker hooks.
type WorkerParams struct {
	Script                   string
	ForkArgs                 []string
	ForkOpts                 map[string]string
	DebugPort                int
	WorkerType               WorkerType
	Concurrency              int
	MaxExec                  int
	MarkNotReadyAfterExec    bool
	ReadyTimeoutDuration     time.Duration
	InitReadyTimeoutDuration time.Duration
}

// WorkerFactory constructs a worker given merged params and the two
// callbacks the Dispatcher needs wired: onReady fires once the worker
// becomes available for the first time; onExit fires once the worker has
// died and must be removed. Concrete factories (e.g.
// transport.NewFactory) live outside this package.
type WorkerFactory func(params WorkerParams, onReady func(), onExit func()) (WorkerHandle, error)

// WorkerCounters is the per-worker aggregate WStats reduces over.
type WorkerCounters struct {
	TotalTime     time.Duration
	MinTime       time.Duration
	MaxTime       time.Duration
	LastTime      time.Duration
	RequestCount  int64
	EventLoopUtil float64
}

// WorkerHandle is the opaque per-worker controller the Dispatcher drives.
// The transport (OS process, OS thread, browser worker) and the RPC wire
// protocol underneath it are explicitly out of this package's scope; this
// interface is the only surface the core touches.
type WorkerHandle interface {
	// Exec hands a call to the underlying transport. It settles resolver
	// with the call's result and returns a future that completes once the
	// call is fully drained — the Dispatcher re-advances off that future,
	// not off resolver, so a worker may keep accepting work before the
	// caller has observed the result.
	Exec(method string, params []any, resolver *Future, options TaskOptions) *Future

	// Available reports whether the worker may accept another call now.
	Available() bool

	// Busy reports whether the worker is currently executing >= 1 call.
	Busy() bool

	// Terminated reports the worker's terminal state. Never becomes false
	// again once true.
	Terminated() bool

	// Terminate ends the worker. When force is true, running calls are
	// aborted; otherwise the worker drains first. cb is invoked once,
	// after termination completes, with any error encountered.
	Terminate(force bool, cb func(error))

	// TerminateAndNotify is Terminate with a hard deadline, returning a
	// future instead of taking a callback.
	TerminateAndNotify(force bool, timeout time.Duration) *Future

	// Script, DebugPort identify the worker for logging and descriptors.
	Script() string
	DebugPort() int

	// Stats returns this worker's counters for WStats aggregation.
	Stats() WorkerCounters
}

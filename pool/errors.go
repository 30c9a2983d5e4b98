package pool

import "github.com/pkg/errors"

// Sentinel errors returned synchronously at the submission boundary, or used
// to settle a task/worker future. Callers compare against these with
// errors.Is; submitNamed wraps ErrQueueFull with errors.Wrapf to add the
// configured limit to the message.
var (
	// ErrQueueFull is returned when submitting would exceed maxQueueSize.
	ErrQueueFull = errors.New("max queue size reached")

	// ErrPoolTerminated rejects queued tasks, and any further submission,
	// once terminate() has run.
	ErrPoolTerminated = errors.New("pool terminated")

	// ErrInvalidMethod is returned when method is neither a string nor a
	// recognized inline callable.
	ErrInvalidMethod = errors.New("method must be a string name or a callable")

	// ErrInvalidParams names a params argument that is not an ordered
	// sequence. Nothing in this package returns it: Submit takes params as
	// []any, which is always one.
	ErrInvalidParams = errors.New("params must be an ordered sequence")

	// ErrTaskCancelled settles a task's future when it is cancelled while
	// still queued or while in flight.
	ErrTaskCancelled = errors.New("task cancelled")

	// ErrTaskTimeout settles a task's future when its timeout fires.
	ErrTaskTimeout = errors.New("task timed out")

	// ErrWorkerTerminated is surfaced when exec is attempted against a
	// worker that has already been torn down.
	ErrWorkerTerminated = errors.New("worker terminated")
)

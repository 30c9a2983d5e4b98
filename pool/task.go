package pool

import (
	"time"

	"github.com/google/uuid"
)

// TaskOptions carries per-task overrides. Affinity and Timeout are
// recognized by the Dispatcher itself; Passthrough is forwarded to the
// worker transport unexamined.
type TaskOptions struct {
	// Affinity pins the task to workers[*Affinity % len(workers)] when set.
	Affinity *int
	// Timeout is the caller-requested deadline, armed at dispatch time
	// (not at submit time) when the task was still queued when it was set.
	Timeout *time.Duration
	// Passthrough holds transport-level keys the Dispatcher does not
	// interpret.
	Passthrough map[string]any
}

// Task is the immutable-at-submit envelope binding a method+params
// submission to its pending Future.
type Task struct {
	ID      uuid.UUID
	Method  string
	Params  []any
	Options TaskOptions

	Resolver *Future

	// DeferredTimeout is set when the caller requested a Timeout while the
	// task was still queued; advance() arms it for real once the task is
	// handed to a worker.
	DeferredTimeout *time.Duration

	SubmittedAt time.Time
}

// newTask builds a pending Task with a fresh Future.
func newTask(method string, params []any, options TaskOptions) *Task {
	return &Task{
		ID:          uuid.New(),
		Method:      method,
		Params:      params,
		Options:     options,
		Resolver:    NewFuture(),
		SubmittedAt: time.Now(),
	}
}

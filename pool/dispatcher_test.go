package pool

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDispatcherBasicDispatch(t *testing.T) {
	w := newMockWorker()
	var built int32
	d, err := NewDispatcher("", Options{
		MinWorkers: 1,
		MaxWorkers: 1,
		Factory: mockFactory(func() *mockWorker {
			atomic.AddInt32(&built, 1)
			return w
		}),
	})
	require.NoError(t, err)

	fut, err := d.Submit("ping", nil, TaskOptions{})
	require.NoError(t, err)

	v, err := fut.Wait(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "ok", v)
	assert.Equal(t, int32(1), atomic.LoadInt32(&built))
}

func TestDispatcherQueueOverflowRejectsSynchronously(t *testing.T) {
	w := newMockWorker()
	w.setAvailable(false) // keep the only worker busy so tasks queue up

	maxQueue := 1
	d, err := NewDispatcher("", Options{
		MinWorkers:   1,
		MaxWorkers:   1,
		MaxQueueSize: &maxQueue,
		Factory:      mockFactory(func() *mockWorker { return w }),
	})
	require.NoError(t, err)

	_, err = d.Submit("a", nil, TaskOptions{})
	require.NoError(t, err)

	_, err = d.Submit("b", nil, TaskOptions{})
	assert.ErrorIs(t, err, ErrQueueFull)
}

func TestDispatcherCancelWhileQueuedIsDroppedNotDispatched(t *testing.T) {
	w := newMockWorker()
	w.setAvailable(false)

	d, err := NewDispatcher("", Options{
		MinWorkers: 1,
		MaxWorkers: 1,
		Factory:    mockFactory(func() *mockWorker { return w }),
	})
	require.NoError(t, err)

	fut, err := d.Submit("queued", nil, TaskOptions{})
	require.NoError(t, err)
	assert.Equal(t, 1, d.Stats().PendingTasks)

	cancelled := fut.Cancel()
	assert.True(t, cancelled)

	// Freeing the worker triggers advance(); the cancelled head task must be
	// dropped rather than handed to the worker.
	var execCount int32
	w.mu.Lock()
	w.execHandler = func(method string, params []any, resolver, execFuture *Future) {
		atomic.AddInt32(&execCount, 1)
		resolver.Resolve("should not happen")
		execFuture.Resolve(nil)
	}
	w.mu.Unlock()
	w.setAvailable(true)
	d.advance()

	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, int32(0), atomic.LoadInt32(&execCount))
	assert.Equal(t, 0, d.Stats().PendingTasks)
}

func TestDispatcherDeferredTimeoutDoesNotFireWhileQueued(t *testing.T) {
	w := newMockWorker()
	w.setAvailable(false)

	d, err := NewDispatcher("", Options{
		MinWorkers: 1,
		MaxWorkers: 1,
		Factory:    mockFactory(func() *mockWorker { return w }),
	})
	require.NoError(t, err)

	timeout := 15 * time.Millisecond
	fut, err := d.Submit("slow", nil, TaskOptions{Timeout: &timeout})
	require.NoError(t, err)

	time.Sleep(40 * time.Millisecond)
	assert.True(t, fut.Pending(), "timeout must not be armed while the task is still queued")

	// Block exec forever so the timeout, once armed at dispatch, is what
	// settles the future.
	block := make(chan struct{})
	w.mu.Lock()
	w.execHandler = func(method string, params []any, resolver, execFuture *Future) {
		<-block
	}
	w.mu.Unlock()
	w.setAvailable(true)
	go d.advance() // Exec blocks on <-block, so drive it off the test goroutine

	_, err = fut.Wait(context.Background())
	assert.ErrorIs(t, err, ErrTaskTimeout)
	close(block)
}

func TestDispatcherReplacesWorkerAfterCrashAndMaintainsMinimum(t *testing.T) {
	var mu sync.Mutex
	var made []*mockWorker

	d, err := NewDispatcher("", Options{
		MinWorkers: 1,
		MaxWorkers: 1,
		Factory: mockFactory(func() *mockWorker {
			mu.Lock()
			defer mu.Unlock()
			w := newMockWorker()
			made = append(made, w)
			return w
		}),
	})
	require.NoError(t, err)

	mu.Lock()
	require.Len(t, made, 1)
	first := made[0]
	mu.Unlock()

	first.mu.Lock()
	first.execHandler = func(method string, params []any, resolver, execFuture *Future) {
		first.mu.Lock()
		first.terminated = true
		first.mu.Unlock()
		resolver.Reject(ErrWorkerTerminated)
		execFuture.Reject(ErrWorkerTerminated)
	}
	first.mu.Unlock()

	_, err = d.Submit("boom", nil, TaskOptions{})
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(made) == 2
	}, time.Second, 5*time.Millisecond, "dispatcher must spawn a replacement worker to maintain minWorkers")

	assert.Equal(t, 1, d.Stats().TotalWorkers)
}

func TestDispatcherTerminateForceRejectsPendingAndIsIdempotent(t *testing.T) {
	w := newMockWorker()
	w.setAvailable(false)

	d, err := NewDispatcher("", Options{
		MinWorkers: 1,
		MaxWorkers: 1,
		Factory:    mockFactory(func() *mockWorker { return w }),
	})
	require.NoError(t, err)

	fut, err := d.Submit("queued", nil, TaskOptions{})
	require.NoError(t, err)

	result := d.Terminate(true, time.Second)
	_, err = result.Wait(context.Background())
	require.NoError(t, err)

	_, ferr := fut.Wait(context.Background())
	assert.ErrorIs(t, ferr, ErrPoolTerminated)

	_, err = d.Submit("too-late", nil, TaskOptions{})
	assert.ErrorIs(t, err, ErrPoolTerminated)

	again := d.Terminate(true, time.Second)
	_, err = again.Wait(context.Background())
	assert.NoError(t, err, "a second Terminate call must resolve immediately without re-running termination")
}

func TestDispatcherRejectsMissingFactory(t *testing.T) {
	_, err := NewDispatcher("", Options{MinWorkers: 1, MaxWorkers: 1})
	assert.Error(t, err)
}

func TestDispatcherMinWorkersMaxSentinelMatchesMaxWorkers(t *testing.T) {
	var built int32
	d, err := NewDispatcher("", Options{
		MinWorkers: MinWorkersMax,
		MaxWorkers: 3,
		Factory: mockFactory(func() *mockWorker {
			atomic.AddInt32(&built, 1)
			return newMockWorker()
		}),
	})
	require.NoError(t, err)
	assert.Equal(t, int32(3), atomic.LoadInt32(&built))
	assert.Equal(t, 3, d.Stats().TotalWorkers)
}

package pool

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFutureResolveSettlesOnce(t *testing.T) {
	f := NewFuture()
	assert.True(t, f.Pending())

	f.Resolve(42)
	f.Resolve(99) // second call must be a silent no-op

	v, err := f.Wait(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 42, v)
	assert.False(t, f.Pending())
}

func TestFutureRejectSettlesOnce(t *testing.T) {
	f := NewFuture()
	f.Reject(ErrTaskCancelled)
	f.Resolve("too late")

	_, err := f.Wait(context.Background())
	assert.ErrorIs(t, err, ErrTaskCancelled)
}

func TestFutureCancelReportsTransition(t *testing.T) {
	f := NewFuture()
	assert.True(t, f.Cancel())
	assert.False(t, f.Cancel())

	_, err := f.Wait(context.Background())
	assert.ErrorIs(t, err, ErrTaskCancelled)
}

func TestFutureTimeoutRejectsAfterDuration(t *testing.T) {
	f := NewFuture()
	f.Timeout(10 * time.Millisecond)

	_, err := f.Wait(context.Background())
	assert.ErrorIs(t, err, ErrTaskTimeout)
}

func TestFutureTimeoutDoesNotFireAfterResolve(t *testing.T) {
	f := NewFuture()
	f.Timeout(20 * time.Millisecond)
	f.Resolve("done")

	time.Sleep(40 * time.Millisecond)
	v, err := f.Wait(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "done", v)
}

func TestFutureThenFiresOnLateRegistration(t *testing.T) {
	f := NewFuture()
	f.Resolve("already settled")

	done := make(chan struct{})
	var got any
	f.Then(func(v any, err error) {
		got = v
		close(done)
	})

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Then callback never fired for an already-settled future")
	}
	assert.Equal(t, "already settled", got)
}

func TestFutureWaitRespectsContext(t *testing.T) {
	f := NewFuture()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	_, err := f.Wait(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

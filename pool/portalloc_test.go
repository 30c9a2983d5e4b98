package pool

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDebugPortAllocatorAssignsDistinctPorts(t *testing.T) {
	a := NewDebugPortAllocator()

	p1 := a.NextAvailableStartingAt(9230)
	p2 := a.NextAvailableStartingAt(9230)
	p3 := a.NextAvailableStartingAt(9230)

	assert.Equal(t, 9230, p1)
	assert.Equal(t, 9231, p2)
	assert.Equal(t, 9232, p3)
}

func TestDebugPortAllocatorRecyclesReleasedPort(t *testing.T) {
	a := NewDebugPortAllocator()

	p1 := a.NextAvailableStartingAt(9230)
	p2 := a.NextAvailableStartingAt(9230)
	a.ReleasePort(p1)

	p3 := a.NextAvailableStartingAt(9230)
	assert.Equal(t, p1, p3)
	assert.NotEqual(t, p2, p3)
}

func TestDebugPortAllocatorReleaseUnallocatedIsNoOp(t *testing.T) {
	a := NewDebugPortAllocator()
	assert.NotPanics(t, func() { a.ReleasePort(12345) })

	p := a.NextAvailableStartingAt(9230)
	assert.Equal(t, 9230, p)
}

package transport

import (
	"net"
	"runtime"
	"testing"

	"github.com/shiroyk/ski-ext/transport/h2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// runtimeGC forces a collection so a dropped weak.Pointer target is
// actually reclaimed before pruneLocked is asked to notice.
func runtimeGC() {
	runtime.GC()
	runtime.GC()
}

func TestConnectionAcquireRespectsAllocationLimit(t *testing.T) {
	c := &Connection{rawConn: &fakeConn{}, allocationLimit: 2}
	a := NewCall(nil, nil)
	b := NewCall(nil, nil)
	d := NewCall(nil, nil)

	require.True(t, c.acquire(a))
	require.True(t, c.acquire(b))
	assert.False(t, c.acquire(d))
	assert.Equal(t, 2, c.allocationCount())

	c.release(a)
	assert.Equal(t, 1, c.allocationCount())
	assert.True(t, c.acquire(d))
}

func TestConnectionReleaseMarksIdle(t *testing.T) {
	c := &Connection{rawConn: &fakeConn{}, allocationLimit: 1}
	call := NewCall(nil, nil)
	require.True(t, c.acquire(call))
	_, idle := c.isIdle()
	assert.False(t, idle)

	c.release(call)
	_, idle = c.isIdle()
	assert.True(t, idle)
}

func TestConnectionPruneDropsReclaimedAllocations(t *testing.T) {
	c := &Connection{rawConn: &fakeConn{}, allocationLimit: 1}
	call := NewCall(nil, nil)
	require.True(t, c.acquire(call))
	call = nil // drop the only strong reference
	runtimeGC()
	assert.Equal(t, 0, c.allocationCount())
}

func TestConnectionIsEligibleChecksAddressAndNoNewExchanges(t *testing.T) {
	addr := Address{Scheme: "https", Host: "a.example.com", Port: 443}
	other := Address{Scheme: "https", Host: "b.example.com", Port: 443}
	c := &Connection{route: Route{Address: addr}, rawConn: &fakeConn{}, allocationLimit: 1}

	assert.True(t, c.isEligible(addr))
	assert.False(t, c.isEligible(other))

	c.noteFailure(&NetworkError{Op: "read", Cause: net.ErrClosed})
	assert.False(t, c.isEligible(addr))
}

func TestConnectionNoteFailureTreatsRefusedStreamAsTolerable(t *testing.T) {
	c := &Connection{rawConn: &fakeConn{}, allocationLimit: 1}
	c.incrementSuccess()
	require.Equal(t, 0, c.routeFailureCount)

	c.noteFailure(&H2StreamError{Stream: h2.StreamError{Code: h2.ErrCodeRefusedStream}})
	assert.False(t, c.noNewExchanges)
	assert.Equal(t, 0, c.routeFailureCount)

	c.noteFailure(&NetworkError{Op: "write", Cause: net.ErrClosed})
	assert.True(t, c.noNewExchanges)
	assert.Equal(t, 1, c.routeFailureCount)
}

func TestConnectionIsHealthyCheapModeIgnoresSocketState(t *testing.T) {
	c := &Connection{rawConn: &fakeConn{}, allocationLimit: 1}
	assert.True(t, c.isHealthy(false))
	c.noNewExchanges = true
	assert.False(t, c.isHealthy(false))
}

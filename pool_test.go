package transport

import (
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeConn struct {
	net.Conn
	closed bool
}

func (f *fakeConn) Close() error { f.closed = true; return nil }

func newIdleConnection(addr Address, idleSince time.Time) *Connection {
	c := &Connection{
		route:           Route{Address: addr},
		rawConn:         &fakeConn{},
		idleSince:       idleSince,
		allocationLimit: 1,
	}
	return c
}

func TestPoolClosesOldestPastKeepAlive(t *testing.T) {
	addr := Address{Scheme: "https", Host: "a.example.com", Port: 443}
	clock := NewFakeClock(time.Unix(1000, 0))
	pool := NewConnectionPool(5, 10*time.Second, clock, nil, nil)

	old := newIdleConnection(addr, clock.Now().Add(-20*time.Second))
	fresh := newIdleConnection(addr, clock.Now().Add(-1*time.Second))
	pool.connections = append(pool.connections, old, fresh)

	wake := pool.closeConnections()
	assert.Equal(t, time.Duration(0), wake)
	assert.True(t, old.rawConn.(*fakeConn).closed)
	assert.False(t, fresh.rawConn.(*fakeConn).closed)
	assert.Equal(t, 1, pool.openConnectionsCount())
}

func TestPoolEvictsBeyondMaxIdle(t *testing.T) {
	addr := Address{Scheme: "https", Host: "a.example.com", Port: 443}
	clock := NewFakeClock(time.Unix(1000, 0))
	pool := NewConnectionPool(1, time.Hour, clock, nil, nil)

	oldest := newIdleConnection(addr, clock.Now().Add(-30*time.Second))
	newest := newIdleConnection(addr, clock.Now().Add(-5*time.Second))
	pool.connections = append(pool.connections, oldest, newest)

	wake := pool.closeConnections()
	assert.Equal(t, time.Duration(0), wake)
	assert.True(t, oldest.rawConn.(*fakeConn).closed)
	assert.False(t, newest.rawConn.(*fakeConn).closed)
}

func TestPoolNeverEvictsInUseConnection(t *testing.T) {
	addr := Address{Scheme: "https", Host: "a.example.com", Port: 443}
	clock := NewFakeClock(time.Unix(1000, 0))
	pool := NewConnectionPool(0, time.Second, clock, nil, nil)

	busy := newIdleConnection(addr, clock.Now().Add(-time.Hour))
	call := NewCall(nil, nil)
	require.True(t, busy.acquire(call))
	pool.connections = append(pool.connections, busy)

	wake := pool.closeConnections()
	assert.Equal(t, time.Second, wake)
	assert.False(t, busy.rawConn.(*fakeConn).closed)
}

// TestPoolCloseConnectionsReportsRemainingKeepAlive exercises spec §8
// invariant 1 directly: one connection idle since t0, keep_alive K, wake
// must be K-(t-t0), not the flat keep_alive constant.
func TestPoolCloseConnectionsReportsRemainingKeepAlive(t *testing.T) {
	addr := Address{Scheme: "https", Host: "a.example.com", Port: 443}
	clock := NewFakeClock(time.Unix(1000, 0))
	pool := NewConnectionPool(5, time.Second, clock, nil, nil)

	fresh := newIdleConnection(addr, clock.Now().Add(-400*time.Millisecond))
	pool.connections = append(pool.connections, fresh)

	wake := pool.closeConnections()
	assert.Equal(t, 600*time.Millisecond, wake)
	assert.False(t, fresh.rawConn.(*fakeConn).closed)
}

func TestPoolCloseConnectionsReportsNoWorkWhenEmpty(t *testing.T) {
	clock := NewFakeClock(time.Unix(1000, 0))
	pool := NewConnectionPool(5, time.Second, clock, nil, nil)

	assert.Equal(t, time.Duration(-1), pool.closeConnections())
}

func TestPoolAcquireMatchesEligibleHealthyConnection(t *testing.T) {
	addr := Address{Scheme: "https", Host: "a.example.com", Port: 443}
	clock := NewFakeClock(time.Unix(1000, 0))
	pool := NewConnectionPool(5, time.Hour, clock, nil, nil)

	conn := newIdleConnection(addr, clock.Now())
	pool.connections = append(pool.connections, conn)

	call := NewCall(nil, nil)
	got := pool.acquire(addr, false, false, call)
	require.NotNil(t, got)
	assert.Same(t, conn, got)
	assert.Equal(t, 1, got.allocationCount())
}

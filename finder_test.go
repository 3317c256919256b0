package transport

import (
	"context"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// dialScript drives a scripted dialer: the n-th dial (0-indexed) fails
// iff n < len(failFirst) and failFirst[n] is true; a successful dial
// returns one end of an in-memory net.Pipe after waiting delay(n).
type dialScript struct {
	failFirst []bool
	delay     func(n int) time.Duration
	calls     int32

	mu     sync.Mutex
	starts []time.Time
}

func (s *dialScript) dial(ctx context.Context, network, addr string) (net.Conn, error) {
	n := int(atomic.AddInt32(&s.calls, 1)) - 1
	s.mu.Lock()
	s.starts = append(s.starts, time.Now())
	s.mu.Unlock()
	if s.delay != nil {
		select {
		case <-time.After(s.delay(n)):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if n < len(s.failFirst) && s.failFirst[n] {
		return nil, fmt.Errorf("dial %d: connection refused", n)
	}
	client, server := net.Pipe()
	go server.Close()
	return client, nil
}

func httpAddress(host string) Address {
	return Address{Scheme: "http", Host: host, Port: 80}
}

func newTestPlanner(t *testing.T, pool *ConnectionPool, dns DNS, dialer func(context.Context, string, string) (net.Conn, error)) *RoutePlanner {
	t.Helper()
	rp := NewRoutePlanner(pool, nil, dns, NewRouteDatabase(), nil, nil, nil)
	rp.dialer = dialer
	return rp
}

func TestSequentialFinderSucceedsOnFirstRoute(t *testing.T) {
	addr := httpAddress("example.com")
	dns := &fakeDNS{ips: map[string][]net.IP{"example.com": {mustParseIP(t, "1.1.1.1")}}}
	pool := NewConnectionPool(5, time.Minute, nil, nil, nil)
	script := &dialScript{}
	planner := newTestPlanner(t, pool, dns, script.dial)

	finder := NewSequentialFinder(planner)
	call := NewCall(context.Background(), nil)
	conn, err := finder.Find(context.Background(), addr, false, false, call)
	require.NoError(t, err)
	require.NotNil(t, conn)
	assert.Equal(t, int32(1), atomic.LoadInt32(&script.calls))
}

func TestSequentialFinderRetriesAfterFailure(t *testing.T) {
	addr := httpAddress("example.com")
	dns := &fakeDNS{ips: map[string][]net.IP{"example.com": {mustParseIP(t, "1.1.1.1"), mustParseIP(t, "2.2.2.2")}}}
	pool := NewConnectionPool(5, time.Minute, nil, nil, nil)
	script := &dialScript{failFirst: []bool{true}}
	planner := newTestPlanner(t, pool, dns, script.dial)

	finder := NewSequentialFinder(planner)
	call := NewCall(context.Background(), nil)
	conn, err := finder.Find(context.Background(), addr, false, false, call)
	require.NoError(t, err)
	require.NotNil(t, conn)
	assert.Equal(t, int32(2), atomic.LoadInt32(&script.calls))
}

func TestSequentialFinderExhaustsRoutesAndReturnsFirstError(t *testing.T) {
	addr := httpAddress("example.com")
	dns := &fakeDNS{ips: map[string][]net.IP{"example.com": {mustParseIP(t, "1.1.1.1")}}}
	pool := NewConnectionPool(5, time.Minute, nil, nil, nil)
	script := &dialScript{failFirst: []bool{true}}
	planner := newTestPlanner(t, pool, dns, script.dial)

	finder := NewSequentialFinder(planner)
	call := NewCall(context.Background(), nil)
	conn, err := finder.Find(context.Background(), addr, false, false, call)
	assert.Error(t, err)
	assert.Nil(t, conn)
}

func TestSequentialFinderRespectsCancellation(t *testing.T) {
	addr := httpAddress("example.com")
	dns := &fakeDNS{ips: map[string][]net.IP{"example.com": {mustParseIP(t, "1.1.1.1")}}}
	pool := NewConnectionPool(5, time.Minute, nil, nil, nil)
	script := &dialScript{}
	planner := newTestPlanner(t, pool, dns, script.dial)

	finder := NewSequentialFinder(planner)
	call := NewCall(context.Background(), nil)
	call.Cancel()
	conn, err := finder.Find(context.Background(), addr, false, false, call)
	assert.ErrorIs(t, err, CanceledError{})
	assert.Nil(t, conn)
}

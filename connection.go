package transport

import (
	"errors"
	"net"
	"sync"
	"time"
	"weak"

	"github.com/shiroyk/ski-ext/transport/h2"
)

// Connection owns one byte-duplex socket after a successful Plan (spec
// §3/§4.6). For H2 it also owns the frame engine and stream table;
// allocation_limit tracks how many concurrent exchanges it may serve.
type Connection struct {
	mu sync.Mutex

	route              Route
	negotiatedProtocol string
	rawConn            net.Conn
	h2conn             *h2.Conn

	idleSince       time.Time
	allocationLimit int
	allocations     []weak.Pointer[Call]

	noNewExchanges   bool
	successCount     int
	routeFailureCount int
}

// newConnection wraps conn as a Connection, starting the H2 frame engine
// when proto is "h2".
func newConnection(route Route, proto string, conn net.Conn, _ *TLSSession) *Connection {
	c := &Connection{
		route:              route,
		negotiatedProtocol: proto,
		rawConn:            conn,
		idleSince:          time.Now(),
		allocationLimit:    1,
	}
	if proto == "h2" {
		h2c, err := h2.Dial(conn, h2.Options{Logger: nil})
		if err == nil {
			c.h2conn = h2c
			c.allocationLimit = int(h2c.MaxConcurrentStreams())
		} else {
			c.noNewExchanges = true
		}
	}
	return c
}

// isHealthy implements the two-mode health check from §4.1. Cheap mode
// reads only the no-new-exchanges flags (the connection's own and, for
// H2, the H2 connection's); it does not inspect the socket, so a closed
// or half-closed socket still reports healthy. Extensive mode adds, for
// H1 only, a non-blocking read probe of the idle socket; for H2 it
// checks nothing beyond cheap mode.
func (c *Connection) isHealthy(extensive bool) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.noNewExchanges {
		return false
	}
	if c.h2conn != nil {
		if c.h2conn.IsNoNewExchanges() {
			return false
		}
		if extensive {
			return !c.h2conn.IsNoNewExchanges()
		}
		return true
	}
	if extensive {
		return probeIdleSocket(c.rawConn)
	}
	return true
}

// isEligible reports Address equality and (for TLS) certificate
// coverage of the candidate address (§4.6). Certificate-coalescing
// itself is delegated to the CertificatePinner/TLSEngine collaborator;
// here we only check the Address match that gates the attempt.
func (c *Connection) isEligible(address Address) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.route.Address.Equal(address) && !c.noNewExchanges
}

// acquire registers a weak handle for call and returns false if the
// connection cannot accept another allocation (§4.1 "atomically
// increment its allocation list").
func (c *Connection) acquire(call *Call) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.pruneLocked()
	if c.noNewExchanges || len(c.allocations) >= c.allocationLimit {
		return false
	}
	c.allocations = append(c.allocations, call.weakHandle())
	c.idleSince = time.Time{}
	return true
}

// release drops one allocation slot; if none remain the connection
// becomes idle as of now.
func (c *Connection) release(call *Call) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i, w := range c.allocations {
		if h := w.Value(); h == call {
			c.allocations = append(c.allocations[:i], c.allocations[i+1:]...)
			break
		}
	}
	if len(c.allocations) == 0 {
		c.idleSince = time.Now()
	}
}

// pruneLocked drops allocation slots whose Call has been reclaimed by
// the GC without a proper release (§4.1 "leak detection"). Caller must
// hold c.mu.
func (c *Connection) pruneLocked() {
	live := c.allocations[:0]
	for _, w := range c.allocations {
		if w.Value() != nil {
			live = append(live, w)
		}
	}
	c.allocations = live
}

func (c *Connection) allocationCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.pruneLocked()
	return len(c.allocations)
}

func (c *Connection) isIdle() (time.Time, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.pruneLocked()
	if len(c.allocations) != 0 {
		return time.Time{}, false
	}
	return c.idleSince, true
}

func (c *Connection) isMultiplexed() bool { return c.h2conn != nil }

// incrementSuccess resets route_failure_count on any successful
// exchange (§4.6).
func (c *Connection) incrementSuccess() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.successCount++
	c.routeFailureCount = 0
}

// noteFailure records an exchange failure. REFUSED_STREAM is tolerated
// (the exchange is simply retried on a new stream/connection); any other
// failure flips no_new_exchanges and records a route failure (§4.6).
func (c *Connection) noteFailure(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	var streamErr *H2StreamError
	if errors.As(err, &streamErr) && streamErr.IsRefusedStream() {
		return
	}
	c.noNewExchanges = true
	c.routeFailureCount++
}

func (c *Connection) close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.noNewExchanges = true
	if c.h2conn != nil {
		_ = c.h2conn.Close()
	}
	_ = c.rawConn.Close()
}

// probeIdleSocket performs the H1 extensive health check: a
// non-blocking read must return no bytes (a byte arriving on a
// supposedly-idle connection means the peer closed or sent unexpected
// data).
func probeIdleSocket(conn net.Conn) bool {
	_ = conn.SetReadDeadline(time.Now())
	buf := make([]byte, 1)
	n, err := conn.Read(buf)
	_ = conn.SetReadDeadline(time.Time{})
	if n > 0 {
		return false
	}
	if err == nil {
		return true
	}
	ne, ok := err.(net.Error)
	return ok && ne.Timeout()
}

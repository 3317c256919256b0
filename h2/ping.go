package h2

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// pingState tracks the client keepalive PING scheduler (spec §4.4
// "PING"). Payloads are monotonically increasing 8-byte counters so a
// stray/duplicate ACK from a prior round can never be mistaken for the
// current outstanding ping.
type pingState struct {
	mu        sync.Mutex
	interval  time.Duration
	limiter   *rate.Limiter
	next      uint64
	inFlight  bool
	inFlightN uint64
	missed    int
	degraded  bool

	// degradedTimeout is the Open Question decision (SPEC_FULL.md / spec
	// §9): 2x the configured ping interval, never less than 1s (and 1s
	// when no interval is configured). It is the recovery window during which new
	// streams are refused on this connection (spec §4.4).
	degradedTimeout time.Duration
}

func newPingState(interval time.Duration) *pingState {
	p := &pingState{interval: interval}
	if interval > 0 {
		p.limiter = rate.NewLimiter(rate.Every(interval), 1)
		p.degradedTimeout = 2 * interval
	} else {
		p.degradedTimeout = time.Second
	}
	if p.degradedTimeout < time.Second {
		p.degradedTimeout = time.Second
	}
	return p
}

// payload returns the next ping payload to send and marks one ping
// in-flight. Only one ping is ever outstanding at a time.
func (p *pingState) payload() [8]byte {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.next++
	p.inFlight = true
	p.inFlightN = p.next
	var b [8]byte
	putUint64(b[:], p.next)
	return b
}

// ack reports whether data acknowledges the currently outstanding ping;
// if so it clears degraded state (a successful round-trip is recovery).
func (p *pingState) ack(data [8]byte) bool {
	n := getUint64(data[:])
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.inFlight || n != p.inFlightN {
		return false
	}
	p.inFlight = false
	p.missed = 0
	p.degraded = false
	return true
}

// missedOne records a missed ping and reports whether the connection
// should now be failed with PROTOCOL_ERROR (a second missed ping, per
// spec §4.4: "a second missed ping fails the connection").
func (p *pingState) missedOne() (shouldFail bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.missed++
	if p.missed == 1 {
		p.degraded = true
		return false
	}
	return true
}

// stillOutstanding reports whether payload is still the unacknowledged
// in-flight ping (i.e. no PING ACK has arrived for it yet).
func (p *pingState) stillOutstanding(data [8]byte) bool {
	n := getUint64(data[:])
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.inFlight && p.inFlightN == n
}

func (p *pingState) isDegraded() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.degraded
}

func putUint64(b []byte, v uint64) {
	for i := 7; i >= 0; i-- {
		b[i] = byte(v)
		v >>= 8
	}
}

func getUint64(b []byte) uint64 {
	var v uint64
	for i := 0; i < 8; i++ {
		v = v<<8 | uint64(b[i])
	}
	return v
}

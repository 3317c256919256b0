package h2

import "sync"

// flowWindow is a single flow-control window shared between a writer
// blocked trying to send and a reader delivering WINDOW_UPDATEs. Per
// spec §9 ("ReentrantLock + Condition for flow control"), it is a
// condition variable broadcast on every inbound WINDOW_UPDATE and on
// every SETTINGS-driven initial-window change.
//
// avail may go negative after an INITIAL_WINDOW_SIZE decrease is applied
// retroactively to open streams (RFC 7540 section 6.9.2); no further
// data may be sent until enough WINDOW_UPDATEs bring it back positive.
type flowWindow struct {
	mu      sync.Mutex
	cond    *sync.Cond
	avail   int64
	closed  bool
	closeMu sync.Mutex
}

func newFlowWindow(initial uint32) *flowWindow {
	w := &flowWindow{avail: int64(initial)}
	w.cond = sync.NewCond(&w.mu)
	return w
}

// add applies a WINDOW_UPDATE increment (or a SETTINGS-driven delta,
// which may be negative) and wakes any blocked sender.
func (w *flowWindow) add(delta int64) {
	w.mu.Lock()
	w.avail += delta
	w.cond.Broadcast()
	w.mu.Unlock()
}

// take blocks until at least 1 byte is available (or the window is
// closed), then reserves up to `want` bytes (never more than is
// currently available) and returns how much was actually reserved.
func (w *flowWindow) take(want int64) (int64, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	for w.avail <= 0 && !w.closed {
		w.cond.Wait()
	}
	if w.closed {
		return 0, false
	}
	n := want
	if n > w.avail {
		n = w.avail
	}
	w.avail -= n
	return n, true
}

// close unblocks any sender permanently — used when a stream is reset or
// the connection is torn down.
func (w *flowWindow) close() {
	w.mu.Lock()
	w.closed = true
	w.cond.Broadcast()
	w.mu.Unlock()
}

func (w *flowWindow) size() int64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.avail
}

// connFlowTarget is the fixed connection-window target the client grows
// to via an initial WINDOW_UPDATE after the handshake (spec §4.4: "grown
// to a fixed target, typically 16 MiB").
const connFlowTarget = 16 << 20

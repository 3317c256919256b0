package h2

import (
	"bytes"
	"io"
	"net/http"
	"sync"
)

// StreamState is one of the RFC 7540 section 5.1 states, plus a RESET
// terminal (spec §3's "plus RESET terminal").
type StreamState int

const (
	StateIdle StreamState = iota
	StateOpen
	StateHalfClosedLocal
	StateHalfClosedRemote
	StateClosed
	StateReset
)

func (s StreamState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateOpen:
		return "open"
	case StateHalfClosedLocal:
		return "half_closed_local"
	case StateHalfClosedRemote:
		return "half_closed_remote"
	case StateClosed:
		return "closed"
	case StateReset:
		return "reset"
	default:
		return "unknown"
	}
}

// Stream is one logical request/response multiplexed over an H2
// connection (spec §3 "H2 Stream").
type Stream struct {
	ID uint32

	mu         sync.Mutex
	state      StreamState
	headersIn  http.Header
	statusIn   int
	headersOut http.Header
	trailers   http.Header
	errCode    ErrCode
	hasErrCode bool

	recvBuf bytes.Buffer
	recvCh  chan struct{} // signaled on new data/EOF

	sendWindow *flowWindow
	recvWindow *flowWindow

	eof      bool
	resetErr error
}

func newStream(id uint32, initialSendWindow, initialRecvWindow uint32) *Stream {
	return &Stream{
		ID:         id,
		state:      StateIdle,
		sendWindow: newFlowWindow(initialSendWindow),
		recvWindow: newFlowWindow(initialRecvWindow),
		recvCh:     make(chan struct{}, 1),
	}
}

func (s *Stream) State() StreamState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// open transitions IDLE -> OPEN on sending (or receiving) HEADERS
// without END_STREAM.
func (s *Stream) open() {
	s.mu.Lock()
	if s.state == StateIdle {
		s.state = StateOpen
	}
	s.mu.Unlock()
}

// halfCloseLocal transitions on sending END_STREAM.
func (s *Stream) halfCloseLocal() {
	s.mu.Lock()
	switch s.state {
	case StateIdle, StateOpen:
		s.state = StateHalfClosedLocal
	case StateHalfClosedRemote:
		s.state = StateClosed
	}
	s.mu.Unlock()
}

// halfCloseRemote transitions on receiving END_STREAM.
func (s *Stream) halfCloseRemote() {
	s.mu.Lock()
	switch s.state {
	case StateIdle, StateOpen:
		s.state = StateHalfClosedRemote
	case StateHalfClosedLocal:
		s.state = StateClosed
	}
	s.eof = true
	s.mu.Unlock()
	select {
	case s.recvCh <- struct{}{}:
	default:
	}
}

// reset marks the stream terminally reset with the given cause, waking
// any blocked reader/writer (spec §4.4 "Cancellation").
func (s *Stream) reset(code ErrCode, cause error) {
	s.mu.Lock()
	s.state = StateReset
	s.errCode = code
	s.hasErrCode = true
	s.resetErr = cause
	s.mu.Unlock()
	s.sendWindow.close()
	s.recvWindow.close()
	select {
	case s.recvCh <- struct{}{}:
	default:
	}
}

func (s *Stream) isClosed() bool {
	st := s.State()
	return st == StateClosed || st == StateReset
}

// appendData buffers inbound DATA payload for the application to Read.
func (s *Stream) appendData(p []byte) {
	s.mu.Lock()
	s.recvBuf.Write(p)
	s.mu.Unlock()
	select {
	case s.recvCh <- struct{}{}:
	default:
	}
}

// Read drains buffered DATA, blocking until some is available, EOF is
// reached, or the stream is reset.
func (s *Stream) Read(p []byte) (int, error) {
	for {
		s.mu.Lock()
		if s.state == StateReset {
			err := s.resetErr
			s.mu.Unlock()
			if err == nil {
				err = &StreamError{StreamID: s.ID, Code: s.errCode}
			}
			return 0, err
		}
		if s.recvBuf.Len() > 0 {
			n, _ := s.recvBuf.Read(p)
			s.mu.Unlock()
			return n, nil
		}
		if s.eof {
			s.mu.Unlock()
			return 0, io.EOF
		}
		s.mu.Unlock()
		<-s.recvCh
	}
}

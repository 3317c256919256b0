package transport

import (
	"fmt"

	"github.com/shiroyk/ski-ext/transport/h2"
)

// Error kinds per spec §7. Each wraps an underlying cause and is
// intended to be matched with errors.As, the idiomatic Go equivalent of
// the source's exception-subtype dispatch (§9).

// NetworkError is a socket read/write/connect failure. Retryable iff the
// request is idempotent, or no request body bytes were transmitted and
// another route is available (§7).
type NetworkError struct {
	Op    string
	Cause error
}

func (e *NetworkError) Error() string { return fmt.Sprintf("network error during %s: %v", e.Op, e.Cause) }
func (e *NetworkError) Unwrap() error { return e.Cause }

// TLSHandshakeError sub-kinds: CertInvalid and CertPinningFailure are
// never retried; ProtocolDowngradeCandidate is retried with the next
// ConnectionSpec fallback (§4.2 "TLS fallback").
type TLSHandshakeSubKind int

const (
	TLSCertInvalid TLSHandshakeSubKind = iota
	TLSCertPinningFailure
	TLSProtocolDowngradeCandidate
)

type TLSHandshakeError struct {
	Kind  TLSHandshakeSubKind
	Cause error
}

func (e *TLSHandshakeError) Error() string { return fmt.Sprintf("TLS handshake error: %v", e.Cause) }
func (e *TLSHandshakeError) Unwrap() error { return e.Cause }

// Retryable reports whether this failure should trigger a TLS-fallback
// retry with the next ConnectionSpec (§4.2).
func (e *TLSHandshakeError) Retryable() bool { return e.Kind == TLSProtocolDowngradeCandidate }

// H2StreamError wraps a stream-scoped h2.StreamError with the
// REFUSED_STREAM retry policy from §7.
type H2StreamError struct {
	Stream h2.StreamError
}

func (e *H2StreamError) Error() string { return e.Stream.Error() }
func (e *H2StreamError) Unwrap() error { return e.Stream }

// IsRefusedStream reports whether this is a REFUSED_STREAM, the only
// stream error §7 gives a bespoke retry policy for.
func (e *H2StreamError) IsRefusedStream() bool { return e.Stream.Code == h2.ErrCodeRefusedStream }

// H2ConnectionError wraps a connection-fatal h2 error (GOAWAY or a
// protocol parse failure); marks the owning Connection no_new_exchanges.
type H2ConnectionError struct {
	Cause error
}

func (e *H2ConnectionError) Error() string { return fmt.Sprintf("h2 connection error: %v", e.Cause) }
func (e *H2ConnectionError) Unwrap() error { return e.Cause }

// CanceledError surfaces a cooperative cancellation (§5 "Cancellation
// semantics"): "A cancelled call surfaces an IOException."
type CanceledError struct{}

func (CanceledError) Error() string { return "canceled" }

// TimeoutError wraps cause (if any) as an "InterruptedIOException"
// analog (§7 "Timeout").
type TimeoutError struct {
	Cause error
}

func (e *TimeoutError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("timeout: %v", e.Cause)
	}
	return "timeout"
}
func (e *TimeoutError) Unwrap() error { return e.Cause }

// ProtocolError is a fatal HPACK/frame parse failure (§7
// "ProtocolParse"): the connection sends GOAWAY(PROTOCOL_ERROR)
// best-effort, then closes.
type ProtocolError struct {
	Cause error
}

func (e *ProtocolError) Error() string { return fmt.Sprintf("protocol error: %v", e.Cause) }
func (e *ProtocolError) Unwrap() error { return e.Cause }

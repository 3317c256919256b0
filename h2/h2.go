// Package h2 implements the HTTP/2 frame engine: binary framing, HPACK
// header compression, flow control, SETTINGS negotiation, and connection
// lifecycle (PING/GOAWAY). It is the bottom layer of the transport core;
// see the parent package for the connection pool and routing layers that
// sit on top of it.
package h2

import (
	"fmt"
)

const (
	// ClientPreface is the string that must be sent by new HTTP/2
	// connections from clients, per RFC 7540 section 3.5.
	ClientPreface = "PRI * HTTP/2.0\r\n\r\nSM\r\n\r\n"

	// NextProtoTLS is the ALPN protocol id negotiated during the TLS
	// handshake for HTTP/2.
	NextProtoTLS = "h2"

	defaultInitialHeaderTableSize = 4096
	defaultInitialWindowSize      = 65535 // 6.9.2 Initial Flow Control Window Size
	defaultMaxFrameSize           = 16384
	maxFrameSizeCeiling           = 1<<24 - 1
	maxWindowSize                 = 1<<31 - 1
)

// ErrCode is an HTTP/2 error code, as defined in RFC 7540 section 7.
type ErrCode uint32

const (
	ErrCodeNo                 ErrCode = 0x0
	ErrCodeProtocol           ErrCode = 0x1
	ErrCodeInternal           ErrCode = 0x2
	ErrCodeFlowControl        ErrCode = 0x3
	ErrCodeSettingsTimeout    ErrCode = 0x4
	ErrCodeStreamClosed       ErrCode = 0x5
	ErrCodeFrameSize          ErrCode = 0x6
	ErrCodeRefusedStream      ErrCode = 0x7
	ErrCodeCancel             ErrCode = 0x8
	ErrCodeCompression        ErrCode = 0x9
	ErrCodeConnect            ErrCode = 0xa
	ErrCodeEnhanceYourCalm    ErrCode = 0xb
	ErrCodeInadequateSecurity ErrCode = 0xc
	ErrCodeHTTP11Required     ErrCode = 0xd
)

var errCodeName = map[ErrCode]string{
	ErrCodeNo:                 "NO_ERROR",
	ErrCodeProtocol:           "PROTOCOL_ERROR",
	ErrCodeInternal:           "INTERNAL_ERROR",
	ErrCodeFlowControl:        "FLOW_CONTROL_ERROR",
	ErrCodeSettingsTimeout:    "SETTINGS_TIMEOUT",
	ErrCodeStreamClosed:       "STREAM_CLOSED",
	ErrCodeFrameSize:          "FRAME_SIZE_ERROR",
	ErrCodeRefusedStream:      "REFUSED_STREAM",
	ErrCodeCancel:             "CANCEL",
	ErrCodeCompression:        "COMPRESSION_ERROR",
	ErrCodeConnect:            "CONNECT_ERROR",
	ErrCodeEnhanceYourCalm:    "ENHANCE_YOUR_CALM",
	ErrCodeInadequateSecurity: "INADEQUATE_SECURITY",
	ErrCodeHTTP11Required:     "HTTP_1_1_REQUIRED",
}

func (e ErrCode) String() string {
	if s, ok := errCodeName[e]; ok {
		return s
	}
	return fmt.Sprintf("UNKNOWN_ERROR_%d", uint32(e))
}

// ConnectionError is a fatal error that applies to the whole connection:
// the caller must send GOAWAY with this code (best effort) and close.
type ConnectionError ErrCode

func (e ConnectionError) Error() string {
	return fmt.Sprintf("connection error: %s", ErrCode(e))
}

// StreamError is a non-fatal error scoped to a single stream: the caller
// must send RST_STREAM with this code.
type StreamError struct {
	StreamID uint32
	Code     ErrCode
	Cause    error
}

func (e StreamError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("stream error: stream ID %d; %s (%v)", e.StreamID, e.Code, e.Cause)
	}
	return fmt.Sprintf("stream error: stream ID %d; %s", e.StreamID, e.Code)
}

func (e StreamError) Unwrap() error { return e.Cause }

// GoAwayError is returned to callers of streams that were refused or
// aborted because the peer sent GOAWAY.
type GoAwayError struct {
	LastStreamID uint32
	ErrCode      ErrCode
	DebugData    string
}

func (e GoAwayError) Error() string {
	return fmt.Sprintf("http2: received GOAWAY, last stream ID %d, error code %s, debug %q",
		e.LastStreamID, e.ErrCode, e.DebugData)
}

// FrameType identifies the type of an HTTP/2 frame, per RFC 7540 section 6.
type FrameType uint8

const (
	FrameData         FrameType = 0x0
	FrameHeaders      FrameType = 0x1
	FramePriority     FrameType = 0x2
	FrameRSTStream    FrameType = 0x3
	FrameSettings     FrameType = 0x4
	FramePushPromise  FrameType = 0x5
	FramePing         FrameType = 0x6
	FrameGoAway       FrameType = 0x7
	FrameWindowUpdate FrameType = 0x8
	FrameContinuation FrameType = 0x9
)

var frameName = map[FrameType]string{
	FrameData:         "DATA",
	FrameHeaders:      "HEADERS",
	FramePriority:     "PRIORITY",
	FrameRSTStream:    "RST_STREAM",
	FrameSettings:     "SETTINGS",
	FramePushPromise:  "PUSH_PROMISE",
	FramePing:         "PING",
	FrameGoAway:       "GOAWAY",
	FrameWindowUpdate: "WINDOW_UPDATE",
	FrameContinuation: "CONTINUATION",
}

func (t FrameType) String() string {
	if s, ok := frameName[t]; ok {
		return s
	}
	return fmt.Sprintf("UNKNOWN_FRAME_%d", uint8(t))
}

// Flags that can be set on a frame header. Not every flag is valid on
// every frame type.
type FrameFlags uint8

const (
	FlagEndStream  FrameFlags = 0x1
	FlagEndHeaders FrameFlags = 0x4
	FlagPadded     FrameFlags = 0x8
	FlagPriority   FrameFlags = 0x20

	FlagAck FrameFlags = 0x1 // SETTINGS, PING
)

func (f FrameFlags) Has(v FrameFlags) bool { return f&v != 0 }

// PriorityParam describes a stream's advised priority (RFC 7540 section
// 5.3). The core never schedules by priority; it only transmits what the
// caller provides.
type PriorityParam struct {
	StreamDep uint32
	Exclusive bool
	Weight    uint8
}

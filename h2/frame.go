package h2

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

// FrameHeader is the 9-byte header common to every HTTP/2 frame: 3-byte
// big-endian length, 1-byte type, 1-byte flags, 4-byte stream id (top bit
// reserved and always cleared on read/write).
type FrameHeader struct {
	Length   uint32 // 24 bits
	Type     FrameType
	Flags    FrameFlags
	StreamID uint32 // 31 bits
}

const frameHeaderLen = 9

func (h FrameHeader) writeTo(buf []byte) {
	buf[0] = byte(h.Length >> 16)
	buf[1] = byte(h.Length >> 8)
	buf[2] = byte(h.Length)
	buf[3] = byte(h.Type)
	buf[4] = byte(h.Flags)
	binary.BigEndian.PutUint32(buf[5:9], h.StreamID&0x7fffffff)
}

func readFrameHeader(b []byte) FrameHeader {
	return FrameHeader{
		Length:   uint32(b[0])<<16 | uint32(b[1])<<8 | uint32(b[2]),
		Type:     FrameType(b[3]),
		Flags:    FrameFlags(b[4]),
		StreamID: binary.BigEndian.Uint32(b[5:9]) & 0x7fffffff,
	}
}

// Frame is the decoded payload of a single HTTP/2 frame, tagged by the
// FrameHeader's Type.
type Frame struct {
	Header FrameHeader

	// DATA, HEADERS(fragment)/CONTINUATION payloads.
	Data []byte

	// HEADERS / PUSH_PROMISE
	EndStream  bool
	Priority   *PriorityParam
	PromiseID  uint32
	HeaderData []byte // raw header block fragment, pre-HPACK

	// RST_STREAM, GOAWAY
	ErrCode ErrCode

	// SETTINGS
	Settings []Setting

	// PING
	PingData [8]byte

	// GOAWAY
	LastStreamID uint32
	DebugData    []byte

	// WINDOW_UPDATE
	WindowIncrement uint32
}

// FrameReader reads HTTP/2 frames off a single byte stream. It is driven
// by one dedicated goroutine per connection (§4.4); it is not safe for
// concurrent use.
type FrameReader struct {
	r             *bufio.Reader
	maxFrameSize  uint32 // MAX_FRAME_SIZE this side advertised to the peer
	headerBuf     [frameHeaderLen]byte
	CountError    func(string)
}

// NewFrameReader wraps r. maxFrameSize is this side's own advertised
// SETTINGS_MAX_FRAME_SIZE; frames larger than it are a protocol error on
// read, per §4.4.
func NewFrameReader(r io.Reader, maxFrameSize uint32) *FrameReader {
	if maxFrameSize < defaultMaxFrameSize {
		maxFrameSize = defaultMaxFrameSize
	}
	return &FrameReader{r: bufio.NewReaderSize(r, 4096), maxFrameSize: maxFrameSize}
}

// SetMaxFrameSize updates the accepted payload ceiling, e.g. after this
// side raises its own advertised SETTINGS_MAX_FRAME_SIZE.
func (fr *FrameReader) SetMaxFrameSize(n uint32) { fr.maxFrameSize = n }

// ReadFrame blocks until a full frame has been read or an error occurs.
func (fr *FrameReader) ReadFrame() (*Frame, error) {
	if _, err := io.ReadFull(fr.r, fr.headerBuf[:]); err != nil {
		return nil, err
	}
	fh := readFrameHeader(fr.headerBuf[:])
	if fh.Length > fr.maxFrameSize {
		return nil, ConnectionError(ErrCodeFrameSize)
	}
	payload := make([]byte, fh.Length)
	if _, err := io.ReadFull(fr.r, payload); err != nil {
		return nil, err
	}
	return decodeFrame(fh, payload)
}

func decodeFrame(fh FrameHeader, p []byte) (*Frame, error) {
	f := &Frame{Header: fh}
	switch fh.Type {
	case FrameData:
		data, err := stripPadding(fh.Flags, p)
		if err != nil {
			return nil, err
		}
		f.Data = data
		f.EndStream = fh.Flags.Has(FlagEndStream)
	case FrameHeaders:
		body, err := stripPadding(fh.Flags, p)
		if err != nil {
			return nil, err
		}
		if fh.Flags.Has(FlagPriority) {
			if len(body) < 5 {
				return nil, ConnectionError(ErrCodeFrameSize)
			}
			dep := binary.BigEndian.Uint32(body[:4])
			f.Priority = &PriorityParam{
				StreamDep: dep & 0x7fffffff,
				Exclusive: dep&0x80000000 != 0,
				Weight:    body[4],
			}
			body = body[5:]
		}
		f.HeaderData = body
		f.EndStream = fh.Flags.Has(FlagEndStream)
	case FrameContinuation:
		f.HeaderData = p
	case FramePriority:
		if len(p) != 5 {
			return nil, StreamError{StreamID: fh.StreamID, Code: ErrCodeFrameSize}
		}
		dep := binary.BigEndian.Uint32(p[:4])
		f.Priority = &PriorityParam{StreamDep: dep & 0x7fffffff, Exclusive: dep&0x80000000 != 0, Weight: p[4]}
	case FrameRSTStream:
		if len(p) != 4 {
			return nil, ConnectionError(ErrCodeFrameSize)
		}
		f.ErrCode = ErrCode(binary.BigEndian.Uint32(p))
	case FrameSettings:
		if fh.Flags.Has(FlagAck) {
			if len(p) != 0 {
				return nil, ConnectionError(ErrCodeFrameSize)
			}
			return f, nil
		}
		if len(p)%6 != 0 {
			return nil, ConnectionError(ErrCodeFrameSize)
		}
		for i := 0; i < len(p); i += 6 {
			s := Setting{ID: SettingID(binary.BigEndian.Uint16(p[i : i+2])), Val: binary.BigEndian.Uint32(p[i+2 : i+6])}
			f.Settings = append(f.Settings, s)
		}
	case FramePushPromise:
		body, err := stripPadding(fh.Flags, p)
		if err != nil {
			return nil, err
		}
		if len(body) < 4 {
			return nil, ConnectionError(ErrCodeFrameSize)
		}
		f.PromiseID = binary.BigEndian.Uint32(body[:4]) & 0x7fffffff
		f.HeaderData = body[4:]
	case FramePing:
		if len(p) != 8 {
			return nil, ConnectionError(ErrCodeFrameSize)
		}
		copy(f.PingData[:], p)
	case FrameGoAway:
		if len(p) < 8 {
			return nil, ConnectionError(ErrCodeFrameSize)
		}
		f.LastStreamID = binary.BigEndian.Uint32(p[:4]) & 0x7fffffff
		f.ErrCode = ErrCode(binary.BigEndian.Uint32(p[4:8]))
		f.DebugData = p[8:]
	case FrameWindowUpdate:
		if len(p) != 4 {
			return nil, ConnectionError(ErrCodeFrameSize)
		}
		f.WindowIncrement = binary.BigEndian.Uint32(p) & 0x7fffffff
	default:
		// Unknown frame type: ignore per RFC 7540 section 4.1.
	}
	return f, nil
}

func stripPadding(flags FrameFlags, p []byte) ([]byte, error) {
	if !flags.Has(FlagPadded) {
		return p, nil
	}
	if len(p) == 0 {
		return nil, ConnectionError(ErrCodeProtocol)
	}
	padLen := int(p[0])
	p = p[1:]
	if padLen > len(p) {
		return nil, ConnectionError(ErrCodeProtocol)
	}
	return p[:len(p)-padLen], nil
}

// FrameWriter writes HTTP/2 frames to a single byte stream. Callers must
// serialize access themselves (the H2 connection wraps this with its
// write lock, §4.4/§5).
type FrameWriter struct {
	w            io.Writer
	maxFrameSize uint32 // peer's advertised SETTINGS_MAX_FRAME_SIZE
	buf          []byte
}

func NewFrameWriter(w io.Writer) *FrameWriter {
	return &FrameWriter{w: w, maxFrameSize: defaultMaxFrameSize}
}

func (fw *FrameWriter) SetMaxFrameSize(n uint32) {
	if n >= defaultMaxFrameSize && n <= maxFrameSizeCeiling {
		fw.maxFrameSize = n
	}
}

func (fw *FrameWriter) writeFrame(fh FrameHeader, payload []byte) error {
	if len(payload) > int(fw.maxFrameSize) {
		return fmt.Errorf("h2: frame payload %d exceeds peer max frame size %d", len(payload), fw.maxFrameSize)
	}
	fh.Length = uint32(len(payload))
	var hdr [frameHeaderLen]byte
	fh.writeTo(hdr[:])
	if _, err := fw.w.Write(hdr[:]); err != nil {
		return err
	}
	if len(payload) == 0 {
		return nil
	}
	_, err := fw.w.Write(payload)
	return err
}

func (fw *FrameWriter) WriteData(streamID uint32, endStream bool, data []byte) error {
	var flags FrameFlags
	if endStream {
		flags |= FlagEndStream
	}
	return fw.writeFrame(FrameHeader{Type: FrameData, Flags: flags, StreamID: streamID}, data)
}

// WriteHeaders writes headerBlock as one HEADERS frame when it fits in
// maxFrameSize, and otherwise as a HEADERS frame followed by CONTINUATION
// frames of at most maxFrameSize bytes each. FlagEndHeaders is set on
// the last frame written; FlagEndStream, if requested, on the HEADERS
// frame.
func (fw *FrameWriter) WriteHeaders(streamID uint32, endStream bool, headerBlock []byte) error {
	if len(headerBlock) <= int(fw.maxFrameSize) {
		flags := FlagEndHeaders
		if endStream {
			flags |= FlagEndStream
		}
		return fw.writeFrame(FrameHeader{Type: FrameHeaders, Flags: flags, StreamID: streamID}, headerBlock)
	}
	first := headerBlock[:fw.maxFrameSize]
	rest := headerBlock[fw.maxFrameSize:]
	var flags FrameFlags
	if endStream {
		flags |= FlagEndStream
	}
	if err := fw.writeFrame(FrameHeader{Type: FrameHeaders, Flags: flags, StreamID: streamID}, first); err != nil {
		return err
	}
	for len(rest) > int(fw.maxFrameSize) {
		if err := fw.writeFrame(FrameHeader{Type: FrameContinuation, StreamID: streamID}, rest[:fw.maxFrameSize]); err != nil {
			return err
		}
		rest = rest[fw.maxFrameSize:]
	}
	return fw.writeFrame(FrameHeader{Type: FrameContinuation, Flags: FlagEndHeaders, StreamID: streamID}, rest)
}

func (fw *FrameWriter) WriteRSTStream(streamID uint32, code ErrCode) error {
	var p [4]byte
	binary.BigEndian.PutUint32(p[:], uint32(code))
	return fw.writeFrame(FrameHeader{Type: FrameRSTStream, StreamID: streamID}, p[:])
}

func (fw *FrameWriter) WriteSettings(settings ...Setting) error {
	p := make([]byte, 6*len(settings))
	for i, s := range settings {
		binary.BigEndian.PutUint16(p[i*6:], uint16(s.ID))
		binary.BigEndian.PutUint32(p[i*6+2:], s.Val)
	}
	return fw.writeFrame(FrameHeader{Type: FrameSettings}, p)
}

func (fw *FrameWriter) WriteSettingsAck() error {
	return fw.writeFrame(FrameHeader{Type: FrameSettings, Flags: FlagAck}, nil)
}

func (fw *FrameWriter) WritePing(ack bool, data [8]byte) error {
	var flags FrameFlags
	if ack {
		flags = FlagAck
	}
	return fw.writeFrame(FrameHeader{Type: FramePing, Flags: flags}, data[:])
}

func (fw *FrameWriter) WriteGoAway(lastStreamID uint32, code ErrCode, debug []byte) error {
	p := make([]byte, 8+len(debug))
	binary.BigEndian.PutUint32(p[:4], lastStreamID&0x7fffffff)
	binary.BigEndian.PutUint32(p[4:8], uint32(code))
	copy(p[8:], debug)
	return fw.writeFrame(FrameHeader{Type: FrameGoAway}, p)
}

func (fw *FrameWriter) WriteWindowUpdate(streamID uint32, increment uint32) error {
	if increment == 0 || increment > maxWindowSize {
		return errors.New("h2: invalid WINDOW_UPDATE increment")
	}
	var p [4]byte
	binary.BigEndian.PutUint32(p[:], increment)
	return fw.writeFrame(FrameHeader{Type: FrameWindowUpdate, StreamID: streamID}, p[:])
}

func (fw *FrameWriter) WritePriority(streamID uint32, pp PriorityParam) error {
	var p [5]byte
	dep := pp.StreamDep & 0x7fffffff
	if pp.Exclusive {
		dep |= 0x80000000
	}
	binary.BigEndian.PutUint32(p[:4], dep)
	p[4] = pp.Weight
	return fw.writeFrame(FrameHeader{Type: FramePriority, StreamID: streamID}, p[:])
}

func (fw *FrameWriter) WritePushPromise(streamID, promiseID uint32, headerBlock []byte) error {
	p := make([]byte, 4+len(headerBlock))
	binary.BigEndian.PutUint32(p[:4], promiseID&0x7fffffff)
	copy(p[4:], headerBlock)
	return fw.writeFrame(FrameHeader{Type: FramePushPromise, Flags: FlagEndHeaders, StreamID: streamID}, p)
}

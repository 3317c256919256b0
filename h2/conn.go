// Package h2 implements the HTTP/2 frame engine: binary framing, HPACK
// header compression, per-stream and per-connection flow control,
// SETTINGS negotiation, PING keepalive, and GOAWAY shutdown.
package h2

import (
	"bufio"
	"errors"
	"io"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/hashicorp/go-hclog"

	"github.com/shiroyk/ski-ext/transport/h2/hpack"
)

// Options configures a client-side Conn, mirroring the teacher's
// fetch/http2.Options construction-time-config pattern (SPEC_FULL.md
// §A.3: "plain Go structs passed to constructors").
type Options struct {
	Settings         []Setting
	PingInterval     time.Duration
	MaxReadFrameSize uint32
	Logger           hclog.Logger
}

// Conn is one live HTTP/2 connection: the frame reader/writer pair, the
// stream table, and all shared protocol state (spec §2 "Frame layer").
type Conn struct {
	nc     net.Conn
	fr     *FrameReader
	writer *connWriter
	dec    *hpack.Decoder
	log    hclog.Logger

	mu               sync.Mutex
	streams          map[uint32]*Stream
	nextStreamID     uint32
	peerSettings     *Settings
	localSettings    *Settings
	wantSettingsAck  bool
	goAwayReceived   bool
	lastGoodStreamID uint32
	noNewExchanges   bool
	closeErr         error

	connSendWindow *flowWindow
	connRecvWindow *flowWindow

	ping *pingState

	readerDone chan struct{}
}

// Dial performs the client preface and initial SETTINGS exchange over an
// already-connected, already-TLS-negotiated net.Conn and starts the
// reader loop. The caller retains ownership of nc's lifecycle via
// Conn.Close.
func Dial(nc net.Conn, opts Options) (*Conn, error) {
	log := opts.Logger
	if log == nil {
		log = hclog.NewNullLogger()
	}
	maxRead := opts.MaxReadFrameSize
	if maxRead == 0 {
		maxRead = 1 << 24
	}
	c := &Conn{
		nc:             nc,
		fr:             NewFrameReader(bufio.NewReader(nc), maxRead),
		writer:         newConnWriter(NewFrameWriter(nc)),
		dec:            hpack.NewDecoder(),
		log:            log.Named("h2"),
		streams:        make(map[uint32]*Stream),
		nextStreamID:   1,
		localSettings:  NewSettings(),
		peerSettings:   NewSettings(),
		connSendWindow: newFlowWindow(defaultInitialWindowSize),
		connRecvWindow: newFlowWindow(defaultInitialWindowSize),
		ping:           newPingState(opts.PingInterval),
		readerDone:     make(chan struct{}),
	}

	settings := opts.Settings
	if settings == nil {
		def := DefaultClientSettings()
		settings = def.Entries()
	}
	for _, s := range settings {
		c.localSettings.Set(s.ID, s.Val)
	}

	if _, err := nc.Write(clientPrefaceBytes); err != nil {
		return nil, err
	}
	c.mu.Lock()
	c.wantSettingsAck = true
	c.mu.Unlock()
	if err := c.writer.writeSettings(settings...); err != nil {
		return nil, err
	}
	// Grow the connection-level receive window to its fixed target
	// immediately after the handshake (spec §4.4).
	if connFlowTarget > defaultInitialWindowSize {
		incr := uint32(connFlowTarget - defaultInitialWindowSize)
		c.connRecvWindow.add(int64(incr))
		if err := c.writer.writeWindowUpdate(0, incr); err != nil {
			return nil, err
		}
	}

	go c.readLoop()
	if opts.PingInterval > 0 {
		go c.pingLoop(opts.PingInterval)
	}
	return c, nil
}

var clientPrefaceBytes = []byte(ClientPreface)

// readLoop is the single dedicated reader task (spec §4.4: "the reader
// is driven by a single dedicated task").
func (c *Conn) readLoop() {
	defer close(c.readerDone)
	for {
		f, err := c.fr.ReadFrame()
		if err != nil {
			c.fail(err)
			return
		}
		if err := c.dispatch(f); err != nil {
			c.fail(err)
			return
		}
	}
}

func (c *Conn) dispatch(f *Frame) error {
	switch f.Header.Type {
	case FrameSettings:
		return c.handleSettings(f)
	case FrameData:
		return c.handleData(f)
	case FrameHeaders:
		return c.handleHeaders(f)
	case FramePing:
		return c.handlePing(f)
	case FrameGoAway:
		return c.handleGoAway(f)
	case FrameWindowUpdate:
		return c.handleWindowUpdate(f)
	case FrameRSTStream:
		return c.handleRSTStream(f)
	case FramePushPromise:
		return c.handlePushPromise(f)
	case FramePriority:
		return nil // priority is advisory; no-op per spec's omission of prioritization
	default:
		return nil // unknown frame types are ignored per RFC 7540 section 4.1
	}
}

// handleSettings applies a SETTINGS frame in order, then ACKs it (spec
// §4.4 "Settings"). INITIAL_WINDOW_SIZE changes shift every open
// stream's send window by the delta.
func (c *Conn) handleSettings(f *Frame) error {
	if f.Flags.Has(FlagAck) {
		c.mu.Lock()
		c.wantSettingsAck = false
		c.mu.Unlock()
		return nil
	}

	c.mu.Lock()
	oldInitial := c.peerSettings.InitialWindowSize()
	for _, s := range f.Settings {
		if err := s.Valid(); err != nil {
			c.mu.Unlock()
			return err
		}
		c.peerSettings.Set(s.ID, s.Val)
	}
	newInitial := c.peerSettings.InitialWindowSize()
	delta := int64(newInitial) - int64(oldInitial)
	streams := make([]*Stream, 0, len(c.streams))
	for _, st := range c.streams {
		streams = append(streams, st)
	}
	c.writer.setPeerMaxFrameSize(c.peerSettings.MaxFrameSize())
	c.writer.setPeerHeaderTableSize(c.peerSettings.HeaderTableSize())
	c.mu.Unlock()

	if delta != 0 {
		for _, st := range streams {
			st.sendWindow.add(delta)
		}
	}
	return c.writer.writeSettingsAck()
}

func (c *Conn) handleData(f *Frame) error {
	c.mu.Lock()
	st := c.streams[f.Header.StreamID]
	c.mu.Unlock()
	n := int64(len(f.Data))
	if n > 0 {
		c.connRecvWindow.add(-n) // reserved bytes are returned on consume
	}
	if st == nil {
		return nil // stream already closed locally; frame ignored
	}
	if n > 0 {
		st.appendData(f.Data)
	}
	if f.EndStream {
		st.halfCloseRemote()
	}
	return nil
}

func (c *Conn) handleHeaders(f *Frame) error {
	fields, err := c.dec.DecodeFull(f.HeaderData)
	if err != nil {
		return ConnectionError(ErrCodeCompression)
	}
	c.mu.Lock()
	st := c.streams[f.Header.StreamID]
	c.mu.Unlock()
	if st == nil {
		return nil
	}
	st.open()
	hdr := make(http.Header, len(fields))
	for _, fl := range fields {
		hdr.Add(fl.Name, fl.Value)
	}
	st.mu.Lock()
	if st.headersIn == nil {
		st.headersIn = hdr
	} else {
		st.trailers = hdr
	}
	st.mu.Unlock()
	if f.EndStream {
		st.halfCloseRemote()
	}
	return nil
}

func (c *Conn) handlePing(f *Frame) error {
	if f.Flags.Has(FlagAck) {
		c.ping.ack(f.PingData)
		return nil
	}
	return c.writer.writePing(true, f.PingData)
}

// handleGoAway notes last_good_stream_id and refuses any open stream
// above it (spec §4.4 "GOAWAY", §7 "streams above are rewritten as
// REFUSED_STREAM").
func (c *Conn) handleGoAway(f *Frame) error {
	c.mu.Lock()
	c.goAwayReceived = true
	c.noNewExchanges = true
	c.lastGoodStreamID = f.LastStreamID
	var refused []*Stream
	for id, st := range c.streams {
		if id > f.LastStreamID {
			refused = append(refused, st)
		}
	}
	c.mu.Unlock()
	for _, st := range refused {
		st.reset(ErrCodeRefusedStream, &StreamError{StreamID: st.ID, Code: ErrCodeRefusedStream})
	}
	return nil
}

func (c *Conn) handleWindowUpdate(f *Frame) error {
	if f.Header.StreamID == 0 {
		c.connSendWindow.add(int64(f.WindowIncrement))
		return nil
	}
	c.mu.Lock()
	st := c.streams[f.Header.StreamID]
	c.mu.Unlock()
	if st != nil {
		st.sendWindow.add(int64(f.WindowIncrement))
	}
	return nil
}

func (c *Conn) handleRSTStream(f *Frame) error {
	c.mu.Lock()
	st := c.streams[f.Header.StreamID]
	delete(c.streams, f.Header.StreamID)
	c.mu.Unlock()
	if st != nil {
		st.reset(f.ErrCode, &StreamError{StreamID: st.ID, Code: f.ErrCode})
	}
	return nil
}

// handlePushPromise creates the promised stream in a reserved-remote-like
// state (modeled here as StateHalfClosedLocal, since the client never
// sends on a pushed stream) accumulating its headers (spec §4.4
// "PUSH_PROMISE"). The application may RST_STREAM(CANCEL) it to decline.
func (c *Conn) handlePushPromise(f *Frame) error {
	fields, err := c.dec.DecodeFull(f.HeaderData)
	if err != nil {
		return ConnectionError(ErrCodeCompression)
	}
	st := newStream(f.PromiseID, c.peerSettings.InitialWindowSize(), c.localSettings.InitialWindowSize())
	st.state = StateHalfClosedLocal
	hdr := make(http.Header, len(fields))
	for _, fl := range fields {
		hdr.Add(fl.Name, fl.Value)
	}
	st.headersIn = hdr
	c.mu.Lock()
	c.streams[f.PromiseID] = st
	c.mu.Unlock()
	return nil
}

// NewStream allocates the next client-initiated (odd) stream id and
// sends HEADERS for it. Returns ErrNoNewExchanges if the connection is
// shutting down, is inside a missed-PING degraded window, or stream ids
// are exhausted (spec §4.4 "Stream id discipline").
func (c *Conn) NewStream(fields []hpack.HeaderField, endStream bool) (*Stream, error) {
	c.mu.Lock()
	if c.noNewExchanges || c.ping.isDegraded() {
		c.mu.Unlock()
		return nil, ErrNoNewExchanges
	}
	if c.nextStreamID > maxStreamID {
		c.noNewExchanges = true
		c.mu.Unlock()
		return nil, ErrNoNewExchanges
	}
	id := c.nextStreamID
	c.nextStreamID += 2
	st := newStream(id, c.peerSettings.InitialWindowSize(), c.localSettings.InitialWindowSize())
	c.streams[id] = st
	c.mu.Unlock()

	st.open()
	if err := c.writer.writeHeaders(id, fields, endStream); err != nil {
		return nil, err
	}
	if endStream {
		st.halfCloseLocal()
	}
	return st, nil
}

// maxStreamID is 2^31 - 1 (RFC 7540 section 5.1.1); the top bit of the
// 32-bit stream id field is reserved.
const maxStreamID = 1<<31 - 1

// ErrNoNewExchanges is returned by NewStream once the connection has
// been marked no-new-exchanges (by GOAWAY, stream-id exhaustion, or a
// fatal protocol error).
var ErrNoNewExchanges = errors.New("h2: connection accepts no new exchanges")

// WriteData writes a DATA frame for stream id, blocking on the stream's
// and the connection's flow-control windows as needed, splitting the
// write if it exceeds either (spec §4.4 "Flow control").
func (c *Conn) WriteData(id uint32, p []byte, endStream bool) error {
	c.mu.Lock()
	st := c.streams[id]
	c.mu.Unlock()
	if st == nil {
		return &StreamError{StreamID: id, Code: ErrCodeStreamClosed}
	}
	for len(p) > 0 {
		n, ok := st.sendWindow.take(int64(len(p)))
		if !ok {
			return &StreamError{StreamID: id, Code: ErrCodeCancel}
		}
		n2, ok := c.connSendWindow.take(n)
		if !ok {
			st.sendWindow.add(n - n2) // give back what we reserved but can't use
			return &StreamError{StreamID: id, Code: ErrCodeCancel}
		}
		if n2 < n {
			st.sendWindow.add(n - n2)
		}
		last := n2 == int64(len(p))
		if err := c.writer.writeData(id, p[:n2], endStream && last); err != nil {
			return err
		}
		p = p[n2:]
	}
	if endStream {
		st.halfCloseLocal()
	}
	return nil
}

// ResetStream issues RST_STREAM with the given code, per spec §4.4
// "Cancellation": closing an exchange from the application side.
func (c *Conn) ResetStream(id uint32, code ErrCode) error {
	c.mu.Lock()
	st := c.streams[id]
	delete(c.streams, id)
	c.mu.Unlock()
	if st != nil && !st.isClosed() {
		st.reset(code, nil)
	}
	return c.writer.writeRSTStream(id, code)
}

// Close sends a final GOAWAY and closes the underlying socket (spec
// §4.4 "On send, emit a final GOAWAY when closing the connection
// cleanly").
func (c *Conn) Close() error {
	c.mu.Lock()
	lastID := c.lastGoodStreamID
	c.noNewExchanges = true
	c.mu.Unlock()
	_ = c.writer.writeGoAway(lastID, ErrCodeNo, nil)
	return c.nc.Close()
}

// fail tears the connection down on a fatal read/protocol error,
// resetting every open stream and best-effort sending GOAWAY (spec §7
// "ProtocolParse: fatal to the connection; sends GOAWAY(PROTOCOL_ERROR)
// best-effort then closes").
func (c *Conn) fail(err error) {
	code := ErrCodeInternal
	var connErr ConnectionError
	if errors.As(err, &connErr) {
		code = ErrCode(connErr)
	}
	c.mu.Lock()
	if c.closeErr != nil {
		c.mu.Unlock()
		return
	}
	c.closeErr = err
	c.noNewExchanges = true
	streams := make([]*Stream, 0, len(c.streams))
	for _, st := range c.streams {
		streams = append(streams, st)
	}
	c.mu.Unlock()

	for _, st := range streams {
		st.reset(code, err)
	}
	if !errors.Is(err, io.EOF) {
		_ = c.writer.writeGoAway(c.lastGoodStreamID, code, nil)
	}
	_ = c.nc.Close()
	c.log.Error("h2 connection failed", "error", err)
}

// IsNoNewExchanges reports whether the pool should stop handing this
// connection out for new acquisitions (spec §4.1 health checks).
func (c *Conn) IsNoNewExchanges() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.noNewExchanges || c.closeErr != nil
}

// MaxConcurrentStreams reports the peer's advertised cap, or "no limit"
// (spec invariant 4) if unset.
func (c *Conn) MaxConcurrentStreams() uint32 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.peerSettings.MaxConcurrentStreams()
}

// pingLoop paces client keepalive PINGs via golang.org/x/time/rate
// (SPEC_FULL.md §B), failing the connection with PROTOCOL_ERROR after a
// second consecutive missed pong.
func (c *Conn) pingLoop(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-c.readerDone:
			return
		case <-ticker.C:
			if !c.ping.limiter.Allow() {
				continue
			}
			payload := c.ping.payload()
			if err := c.writer.writePing(false, payload); err != nil {
				return
			}
			time.AfterFunc(c.ping.degradedTimeout, func() {
				if !c.ping.stillOutstanding(payload) {
					return // acknowledged in time
				}
				select {
				case <-c.readerDone:
					return
				default:
				}
				if c.ping.missedOne() {
					c.fail(ConnectionError(ErrCodeProtocol))
				}
			})
		}
	}
}

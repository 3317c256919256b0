package h2

import (
	"sync"

	"github.com/shiroyk/ski-ext/transport/h2/hpack"
)

// connWriter serializes all outbound frames through a single lock,
// distinct from any per-stream lock (spec §4.4/§5: "the writer is driven
// by whoever calls the submit APIs, guarded by a connection-wide write
// lock"). It also owns the HPACK encoder, since header compression state
// must observe the same total order as the bytes hitting the wire.
type connWriter struct {
	mu  sync.Mutex
	fw  *FrameWriter
	enc *hpack.Encoder
}

func newConnWriter(fw *FrameWriter) *connWriter {
	return &connWriter{fw: fw, enc: hpack.NewEncoder()}
}

// writeHeaders encodes fields with the shared HPACK encoder and emits
// HEADERS (+ CONTINUATION as needed), guaranteeing that for a given
// stream HEADERS precedes DATA precedes END_STREAM (spec §5) simply by
// virtue of every caller taking this same lock in program order.
func (w *connWriter) writeHeaders(streamID uint32, fields []hpack.HeaderField, endStream bool) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	var block []byte
	for _, f := range fields {
		block = w.enc.WriteField(block, f)
	}
	return w.fw.WriteHeaders(streamID, endStream, block)
}

func (w *connWriter) writeData(streamID uint32, data []byte, endStream bool) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.fw.WriteData(streamID, endStream, data)
}

func (w *connWriter) writeRSTStream(streamID uint32, code ErrCode) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.fw.WriteRSTStream(streamID, code)
}

func (w *connWriter) writeSettings(settings ...Setting) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.fw.WriteSettings(settings...)
}

func (w *connWriter) writeSettingsAck() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.fw.WriteSettingsAck()
}

func (w *connWriter) writePing(ack bool, data [8]byte) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.fw.WritePing(ack, data)
}

func (w *connWriter) writeGoAway(lastStreamID uint32, code ErrCode, debug []byte) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.fw.WriteGoAway(lastStreamID, code, debug)
}

func (w *connWriter) writeWindowUpdate(streamID uint32, incr uint32) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.fw.WriteWindowUpdate(streamID, incr)
}

func (w *connWriter) setPeerMaxFrameSize(n uint32) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.fw.SetMaxFrameSize(n)
}

func (w *connWriter) setPeerHeaderTableSize(n uint32) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.enc.SetMaxDynamicTableSizeLimit(n)
}

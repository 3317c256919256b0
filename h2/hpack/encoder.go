package hpack

// Encoder writes header lists to an HPACK byte stream. It owns its own
// dynamic table, independent of any reader, per spec §3. The zero value
// is not usable; use NewEncoder.
type Encoder struct {
	dyn dynTableForWriter

	// maxSizeCap upper-bounds what the application will ever request
	// via SetMaxDynamicTableSize — 16384 bytes by default, per spec §4.5.
	maxSizeCap uint32

	// pending size-update state: the writer must emit a dynamic table
	// size update before the next header block if the application
	// changed the table's capacity since the last WriteField call.
	minSizeSinceLastWrite uint32
	sizeChanged           bool
}

type dynTableForWriter struct {
	t dynamicTable
}

const defaultMaxDynamicTableSize = 4096

// NewEncoder returns an Encoder with the default 4096-byte dynamic table
// capacity and a 16384-byte upper bound on future SetMaxDynamicTableSize
// calls (spec §4.5).
func NewEncoder() *Encoder {
	e := &Encoder{maxSizeCap: 16384}
	e.dyn.t.setCapacity(defaultMaxDynamicTableSize)
	return e
}

// SetMaxDynamicTableSizeLimit sets the upper bound this encoder will ever
// honor for SetMaxDynamicTableSize, mirroring the peer-advertised
// SETTINGS_HEADER_TABLE_SIZE (spec §3/§4.5).
func (e *Encoder) SetMaxDynamicTableSizeLimit(v uint32) {
	e.maxSizeCap = v
	if e.dyn.t.cap > v {
		e.setSize(v)
	}
}

// SetMaxDynamicTableSize changes the table's capacity, capped at
// maxSizeCap, and arranges for a size-update prefix to precede the next
// header block (spec §4.5 "size-update emission").
func (e *Encoder) SetMaxDynamicTableSize(v uint32) {
	if v > e.maxSizeCap {
		v = e.maxSizeCap
	}
	e.setSize(v)
}

func (e *Encoder) setSize(v uint32) {
	if !e.sizeChanged || v < e.minSizeSinceLastWrite {
		if !e.sizeChanged {
			e.minSizeSinceLastWrite = v
		} else if v < e.minSizeSinceLastWrite {
			e.minSizeSinceLastWrite = v
		}
	}
	e.sizeChanged = true
	e.dyn.t.setCapacity(v)
}

// WriteField appends the HPACK encoding of f to dst and returns the
// result. If the application shrank then grew the table size since the
// last WriteField call, up to two size-update prefixes are emitted first
// (the minimum size encountered, then the final size), per spec §4.5.
func (e *Encoder) WriteField(dst []byte, f HeaderField) []byte {
	if e.sizeChanged {
		if e.minSizeSinceLastWrite < e.dyn.t.cap {
			dst = appendVarInt(dst, 5, 0x20, uint64(e.minSizeSinceLastWrite))
		}
		dst = appendVarInt(dst, 5, 0x20, uint64(e.dyn.t.cap))
		e.sizeChanged = false
	}

	if f.Sensitive {
		return e.writeLiteral(dst, f, 0x10, false)
	}

	idx, nameOnly := e.findIndex(f.Name, f.Value)
	if idx > 0 {
		return appendVarInt(dst, 7, 0x80, uint64(idx))
	}
	return e.writeLiteral(dst, f, 0x40, true)
}

// findIndex returns the combined static+dynamic index for an exact
// name+value match (idx) and the best name-only match (nameOnly), using
// static-table indices 1..61 and dynamic indices 62+.
func (e *Encoder) findIndex(name, value string) (idx int, nameOnly int) {
	sIdx, sName := staticTableFind(name, value)
	if sIdx > 0 {
		return int(sIdx), int(sName)
	}
	dIdx, dName := e.dyn.t.find(name, value)
	if dIdx > 0 {
		return dIdx + staticTableLen, dName + staticTableLen
	}
	if sName > 0 {
		return 0, int(sName)
	}
	if dName > 0 {
		return 0, dName + staticTableLen
	}
	return 0, 0
}

// writeLiteral encodes f as a literal. opcode is one of 0x40 (incremental
// indexing), 0x10 (never indexed), or 0x00 (without indexing); indexing
// is true only for the incremental-indexing form, which also inserts f
// into the dynamic table.
func (e *Encoder) writeLiteral(dst []byte, f HeaderField, opcode byte, indexing bool) []byte {
	_, nameIdx := e.findIndex(f.Name, "")
	if nameIdx == 0 {
		if idx, _ := e.dyn.t.find(f.Name, ""); idx > 0 {
			nameIdx = idx + staticTableLen
		}
	}
	prefix := byte(4)
	if opcode == 0x40 {
		prefix = 6
	}
	if nameIdx > 0 {
		dst = appendVarInt(dst, prefix, opcode, uint64(nameIdx))
	} else {
		dst = appendVarInt(dst, prefix, opcode, 0)
		dst = appendHpackString(dst, f.Name)
	}
	dst = appendHpackString(dst, f.Value)
	if indexing {
		e.dyn.t.insert(HeaderField{Name: f.Name, Value: f.Value})
	}
	return dst
}

// appendHpackString appends an HPACK string literal for s, Huffman-coding
// it whenever that's strictly shorter (the common case for real-world
// header values).
func appendHpackString(dst []byte, s string) []byte {
	if huffLen := huffmanEncodeLen(s); huffLen < len(s) {
		dst = appendVarInt(dst, 7, 0x80, uint64(huffLen))
		return huffmanEncode(dst, s)
	}
	dst = appendVarInt(dst, 7, 0x00, uint64(len(s)))
	return append(dst, s...)
}

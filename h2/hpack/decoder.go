package hpack

import "fmt"

// Decoder is the HPACK reader side. A Decoder's dynamic table persists
// across calls to DecodeFull, mirroring the sender's table as required
// by spec §3 (the two tables must never diverge).
type Decoder struct {
	dyn dynamicTable

	// maxSize is the upper bound this decoder will ever honor for a
	// dynamic-table-size-update instruction from the peer, set from our
	// own advertised SETTINGS_HEADER_TABLE_SIZE.
	maxSize uint32

	emitFunc func(f HeaderField)
}

// NewDecoder returns a Decoder with the default 4096-byte dynamic table
// size limit.
func NewDecoder() *Decoder {
	d := &Decoder{maxSize: defaultMaxDynamicTableSize}
	d.dyn.setCapacity(defaultMaxDynamicTableSize)
	return d
}

// SetMaxDynamicTableSize lowers or raises the ceiling this decoder
// accepts from a peer's dynamic-table-size-update instruction, mirroring
// our own SETTINGS_HEADER_TABLE_SIZE (spec §3/§4.5).
func (d *Decoder) SetMaxDynamicTableSize(v uint32) {
	d.maxSize = v
	if d.dyn.cap > v {
		d.dyn.setCapacity(v)
	}
}

// DecodeFull parses an entire header block (already reassembled from any
// HEADERS+CONTINUATION sequence) and returns the header list in wire
// order. It fails closed: any malformed encoding, oversized
// dynamic-table-size-update, or mixed-case header name aborts the whole
// block and returns an error, since a partially decoded block would
// desynchronize the shared dynamic table from the peer (spec §4.5).
func (d *Decoder) DecodeFull(p []byte) ([]HeaderField, error) {
	var fields []HeaderField
	for len(p) > 0 {
		b := p[0]
		switch {
		case b&0x80 != 0: // indexed header field
			idx, n, err := readVarInt(7, p)
			if err != nil {
				return nil, err
			}
			p = p[n:]
			hf, err := d.at(idx)
			if err != nil {
				return nil, err
			}
			fields = append(fields, hf)

		case b&0xc0 == 0x40: // literal with incremental indexing
			hf, n, err := d.readLiteral(p, 6)
			if err != nil {
				return nil, err
			}
			p = p[n:]
			if err := d.checkName(hf.Name); err != nil {
				return nil, err
			}
			d.dyn.insert(hf)
			fields = append(fields, hf)

		case b&0xf0 == 0x00: // literal without indexing
			hf, n, err := d.readLiteral(p, 4)
			if err != nil {
				return nil, err
			}
			p = p[n:]
			if err := d.checkName(hf.Name); err != nil {
				return nil, err
			}
			fields = append(fields, hf)

		case b&0xf0 == 0x10: // literal never indexed
			hf, n, err := d.readLiteral(p, 4)
			if err != nil {
				return nil, err
			}
			p = p[n:]
			if err := d.checkName(hf.Name); err != nil {
				return nil, err
			}
			hf.Sensitive = true
			fields = append(fields, hf)

		case b&0xe0 == 0x20: // dynamic table size update
			v, n, err := readVarInt(5, p)
			if err != nil {
				return nil, err
			}
			p = p[n:]
			if v > uint64(d.maxSize) {
				return nil, fmt.Errorf("hpack: dynamic table size update %d exceeds limit %d", v, d.maxSize)
			}
			d.dyn.setCapacity(uint32(v))

		default:
			return nil, fmt.Errorf("hpack: invalid header block opcode 0x%02x", b)
		}
	}
	return fields, nil
}

// at resolves a combined static/dynamic HPACK index to its header field.
func (d *Decoder) at(idx uint64) (HeaderField, error) {
	if idx == 0 {
		return HeaderField{}, errInvalidIndex
	}
	if hf, ok := staticTableEntry(idx); ok {
		return hf, nil
	}
	if hf, ok := d.dyn.at(int(idx) - staticTableLen); ok {
		return hf, nil
	}
	return HeaderField{}, errInvalidIndex
}

// readLiteral decodes a literal header field (name possibly indexed,
// value always a string literal) starting at p, where prefixBits is the
// width of the name-index prefix for this opcode (6 for incremental
// indexing, 4 for the other two literal forms).
func (d *Decoder) readLiteral(p []byte, prefixBits byte) (HeaderField, int, error) {
	nameIdx, n, err := readVarInt(prefixBits, p)
	if err != nil {
		return HeaderField{}, 0, err
	}
	total := n
	var name string
	if nameIdx == 0 {
		s, n2, err := readHpackString(p[total:])
		if err != nil {
			return HeaderField{}, 0, err
		}
		name = s
		total += n2
	} else {
		hf, err := d.at(nameIdx)
		if err != nil {
			return HeaderField{}, 0, err
		}
		name = hf.Name
	}
	value, n3, err := readHpackString(p[total:])
	if err != nil {
		return HeaderField{}, 0, err
	}
	total += n3
	return HeaderField{Name: name, Value: value}, total, nil
}

// readHpackString reads a length-prefixed, possibly Huffman-coded string
// literal (RFC 7541 section 5.2) from the start of p.
func readHpackString(p []byte) (string, int, error) {
	if len(p) == 0 {
		return "", 0, errNeedMore
	}
	huff := p[0]&0x80 != 0
	l, n, err := readVarInt(7, p)
	if err != nil {
		return "", 0, err
	}
	total := n
	if total+int(l) > len(p) {
		return "", 0, errNeedMore
	}
	raw := p[total : total+int(l)]
	total += int(l)
	if !huff {
		return string(raw), total, nil
	}
	s, err := huffmanDecode(raw)
	if err != nil {
		return "", 0, err
	}
	return s, total, nil
}

// checkName rejects header field names that aren't already lower-case,
// per RFC 7540 section 8.1.2's field-name case requirement. The error
// text matches what callers surface back to the peer as a connection
// error (spec §4.5).
func (d *Decoder) checkName(name string) error {
	for i := 0; i < len(name); i++ {
		c := name[i]
		if c >= 'A' && c <= 'Z' {
			return fmt.Errorf("PROTOCOL_ERROR response malformed: mixed case name: %s", name)
		}
	}
	return nil
}

package hpack

// HeaderField is a single (possibly incomplete) name/value header pair as
// carried through HPACK, RFC 7541 section 1.3.
type HeaderField struct {
	Name, Value string
	// Sensitive, if true, forces "literal never indexed" encoding
	// (never written to any dynamic table). Whether the value is
	// Huffman-coded is still decided by its content, as for any field.
	Sensitive bool
}

// Size returns the HPACK size of the entry: len(name)+len(value)+32, the
// constant accounting overhead defined in RFC 7541 section 4.1.
func (hf HeaderField) Size() uint32 {
	return uint32(len(hf.Name) + len(hf.Value) + 32)
}

func (hf HeaderField) String() string {
	var suffix string
	if hf.Sensitive {
		suffix = " (sensitive)"
	}
	return hf.Name + ": " + hf.Value + suffix
}

// staticTable is the fixed 61-entry table from RFC 7541 appendix A.
// Indices 1..61 refer directly into this slice (index-1).
var staticTable = [...]HeaderField{
	{Name: ":authority"},
	{Name: ":method", Value: "GET"},
	{Name: ":method", Value: "POST"},
	{Name: ":path", Value: "/"},
	{Name: ":path", Value: "/index.html"},
	{Name: ":scheme", Value: "http"},
	{Name: ":scheme", Value: "https"},
	{Name: ":status", Value: "200"},
	{Name: ":status", Value: "204"},
	{Name: ":status", Value: "206"},
	{Name: ":status", Value: "304"},
	{Name: ":status", Value: "400"},
	{Name: ":status", Value: "404"},
	{Name: ":status", Value: "500"},
	{Name: "accept-charset"},
	{Name: "accept-encoding", Value: "gzip, deflate"},
	{Name: "accept-language"},
	{Name: "accept-ranges"},
	{Name: "accept"},
	{Name: "access-control-allow-origin"},
	{Name: "age"},
	{Name: "allow"},
	{Name: "authorization"},
	{Name: "cache-control"},
	{Name: "content-disposition"},
	{Name: "content-encoding"},
	{Name: "content-language"},
	{Name: "content-length"},
	{Name: "content-location"},
	{Name: "content-range"},
	{Name: "content-type"},
	{Name: "cookie"},
	{Name: "date"},
	{Name: "etag"},
	{Name: "expect"},
	{Name: "expires"},
	{Name: "from"},
	{Name: "host"},
	{Name: "if-match"},
	{Name: "if-modified-since"},
	{Name: "if-none-match"},
	{Name: "if-range"},
	{Name: "if-unmodified-since"},
	{Name: "last-modified"},
	{Name: "link"},
	{Name: "location"},
	{Name: "max-forwards"},
	{Name: "proxy-authenticate"},
	{Name: "proxy-authorization"},
	{Name: "range"},
	{Name: "referer"},
	{Name: "refresh"},
	{Name: "retry-after"},
	{Name: "server"},
	{Name: "set-cookie"},
	{Name: "strict-transport-security"},
	{Name: "transfer-encoding"},
	{Name: "user-agent"},
	{Name: "vary"},
	{Name: "via"},
	{Name: "www-authenticate"},
}

const staticTableLen = len(staticTable)

// staticTableEntry returns the 1-indexed static table entry. ok is false
// for index 0 or index > 61.
func staticTableEntry(i uint64) (HeaderField, bool) {
	if i < 1 || int(i) > staticTableLen {
		return HeaderField{}, false
	}
	return staticTable[i-1], true
}

// staticTableFind returns idx, the smallest static-table index whose name
// and value both match, and nameOnly, the smallest index whose name
// matches; each is 0 if there is none. Used by the encoder to prefer
// indexed/name-indexed literals.
func staticTableFind(name, value string) (idx uint64, nameOnly uint64) {
	for i, hf := range staticTable {
		if hf.Name != name {
			continue
		}
		if nameOnly == 0 {
			nameOnly = uint64(i + 1)
		}
		if hf.Value == value {
			return uint64(i + 1), nameOnly
		}
	}
	return 0, nameOnly
}

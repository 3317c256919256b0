package h2

import (
	"fmt"
	"net/http"
	"sort"
	"strings"
	"sync"

	"golang.org/x/net/http/httpguts"

	"github.com/shiroyk/ski-ext/transport/h2/hpack"
)

// validWireHeaderFieldName reports whether v is a valid lower-case HTTP/2
// header field name. Just as in HTTP/1.x, names are ASCII tokens; HTTP/2
// additionally requires they be lower-case before encoding (RFC 7540
// section 8.1.2).
func validWireHeaderFieldName(v string) bool {
	if len(v) == 0 {
		return false
	}
	for _, r := range v {
		if !httpguts.IsTokenRune(r) {
			return false
		}
		if 'A' <= r && r <= 'Z' {
			return false
		}
	}
	return true
}

// lowerHeader lower-cases v if it is all-ASCII, reporting false (and the
// original string) otherwise so the caller can skip writing it — HTTP/2
// header field names must be ASCII (RFC 7540 section 8.1.2).
func lowerHeader(v string) (lower string, ascii bool) {
	for i := 0; i < len(v); i++ {
		if v[i] >= utf8RuneSelf {
			return v, false
		}
	}
	return strings.ToLower(v), true
}

const utf8RuneSelf = 0x80

// keyValues pairs a header name with its values, for stable sorting.
type keyValues struct {
	key    string
	values []string
}

// headerSorter sorts a []keyValues slice either by an explicit order (a
// defined key sorts before an undefined one) or lexicographically.
type headerSorter struct {
	kvs   []keyValues
	order map[string]int
}

func (s *headerSorter) Len() int      { return len(s.kvs) }
func (s *headerSorter) Swap(i, j int) { s.kvs[i], s.kvs[j] = s.kvs[j], s.kvs[i] }
func (s *headerSorter) Less(i, j int) bool {
	if len(s.order) == 0 {
		return s.kvs[i].key < s.kvs[j].key
	}
	si, iok := s.order[strings.ToLower(s.kvs[i].key)]
	sj, jok := s.order[strings.ToLower(s.kvs[j].key)]
	if !iok && !jok {
		return s.kvs[i].key < s.kvs[j].key
	} else if !iok && jok {
		return false
	} else if iok && !jok {
		return true
	}
	return si < sj
}

var headerSorterPool = sync.Pool{New: func() any { return new(headerSorter) }}

// sortedKeyValues returns header's entries, ordered by headerOrder when
// non-empty (a key absent from headerOrder sorts after every key present
// in it), else lexicographically. This lets a caller reproduce a specific
// wire header order, the way a real browser's HTTP/2 HEADERS frame would.
func sortedKeyValues(header http.Header, headerOrder []string) []keyValues {
	sorter := headerSorterPool.Get().(*headerSorter)
	defer headerSorterPool.Put(sorter)

	if cap(sorter.kvs) < len(header) {
		sorter.kvs = make([]keyValues, 0, len(header))
	}
	kvs := sorter.kvs[:0]
	for k, vv := range header {
		kvs = append(kvs, keyValues{k, vv})
	}
	sorter.kvs = kvs
	if len(headerOrder) > 0 {
		order := make(map[string]int, len(headerOrder))
		for i, k := range headerOrder {
			order[k] = i
		}
		sorter.order = order
	} else {
		sorter.order = nil
	}
	sort.Sort(sorter)
	out := make([]keyValues, len(sorter.kvs))
	copy(out, sorter.kvs)
	return out
}

// EncodeRequestFields builds the HPACK field list for a HEADERS frame:
// pseudo-headers (":method", ":scheme", ":authority", ":path") first, in
// the order given, followed by header (lower-cased, order-preserving per
// headerOrder) — satisfying spec §4.5's "pseudo-headers must precede all
// regular headers" rule by construction rather than by validation.
func EncodeRequestFields(pseudo []hpack.HeaderField, header http.Header, headerOrder []string) ([]hpack.HeaderField, error) {
	fields := make([]hpack.HeaderField, 0, len(pseudo)+len(header))
	fields = append(fields, pseudo...)
	for _, kv := range sortedKeyValues(header, headerOrder) {
		lower, ascii := lowerHeader(kv.key)
		if !ascii {
			return nil, fmt.Errorf("h2: non-ASCII header field name %q", kv.key)
		}
		if !validWireHeaderFieldName(lower) {
			return nil, fmt.Errorf("h2: invalid header field name %q", kv.key)
		}
		for _, v := range kv.values {
			fields = append(fields, hpack.HeaderField{Name: lower, Value: v})
		}
	}
	return fields, nil
}

package hpack

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRoundTrip(t *testing.T) {
	cases := [][]HeaderField{
		{{Name: ":method", Value: "GET"}, {Name: ":path", Value: "/"}},
		{{Name: "custom-key", Value: "custom-value"}},
		{{Name: "cache-control", Value: "no-cache"}, {Name: "cache-control", Value: "no-store"}},
		{{Name: "a", Value: ""}, {Name: "b", Value: "日本語混じりの値"}},
	}
	for _, fields := range cases {
		enc := NewEncoder()
		dec := NewDecoder()
		var block []byte
		for _, f := range fields {
			block = enc.WriteField(block, f)
		}
		got, err := dec.DecodeFull(block)
		require.NoError(t, err)
		require.Len(t, got, len(fields))
		for i, f := range fields {
			assert.Equal(t, f.Name, got[i].Name)
			assert.Equal(t, f.Value, got[i].Value)
		}
	}
}

func TestStaticTableInvariance(t *testing.T) {
	dec := NewDecoder()
	before := dec.dyn.len()
	// indexed reference to static entry 2 (":method: GET")
	block := appendVarInt(nil, 7, 0x80, 2)
	_, err := dec.DecodeFull(block)
	require.NoError(t, err)
	assert.Equal(t, before, dec.dyn.len())
}

func TestEvictionOnOversizedEntry(t *testing.T) {
	dec := NewDecoder()
	dec.SetMaxDynamicTableSize(64)
	// insert a small entry first so the table is non-empty
	enc := NewEncoder()
	enc.SetMaxDynamicTableSizeLimit(64)
	enc.SetMaxDynamicTableSize(64)
	var block []byte
	block = enc.WriteField(block, HeaderField{Name: "x", Value: "y"})
	_, err := dec.DecodeFull(block)
	require.NoError(t, err)
	require.Equal(t, 1, dec.dyn.len())

	// now a literal-with-indexing whose size exceeds the 64-byte cap
	big := HeaderField{Name: "big-name", Value: string(make([]byte, 100))}
	block = enc.writeLiteral(nil, big, 0x40, true)
	_, err = dec.DecodeFull(block)
	require.NoError(t, err)
	assert.Equal(t, 0, dec.dyn.len(), "table must be emptied, not grown, by an oversized entry")
}

func TestMixedCaseRejection(t *testing.T) {
	dec := NewDecoder()
	block := appendVarInt(nil, 4, 0x00, 0) // literal without indexing, new name
	block = appendHpackString(block, "Content-Type")
	block = appendHpackString(block, "text/plain")
	_, err := dec.DecodeFull(block)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "mixed case name: Content-Type")
}

func TestHuffmanRoundTrip(t *testing.T) {
	for _, s := range []string{"", "a", "www.example.com", "gzip, deflate, br", "/resource/path?x=1&y=2"} {
		enc := huffmanEncode(nil, s)
		dec, err := huffmanDecode(enc)
		require.NoError(t, err)
		assert.Equal(t, s, dec)
	}
}

func TestVarInt(t *testing.T) {
	for _, n := range []byte{5, 6, 7} {
		for _, v := range []uint64{0, 1, 30, 127, 128, 1000, 1 << 20} {
			b := appendVarInt(nil, n, 0, v)
			got, consumed, err := readVarInt(n, b)
			require.NoError(t, err)
			assert.Equal(t, len(b), consumed)
			assert.Equal(t, v, got)
		}
	}
}

func TestDynamicTableSizeUpdateRejectedAbovePeerMax(t *testing.T) {
	dec := NewDecoder()
	dec.SetMaxDynamicTableSize(100)
	block := appendVarInt(nil, 5, 0x20, 200)
	_, err := dec.DecodeFull(block)
	require.Error(t, err)
}

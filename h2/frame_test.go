package h2

import (
	"bufio"
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFrameHeaderRoundTrip(t *testing.T) {
	h := FrameHeader{Length: 123, Type: FrameHeaders, Flags: FlagEndHeaders | FlagEndStream, StreamID: 0x7fffffff}
	var buf [9]byte
	h.writeTo(buf[:])
	got := readFrameHeader(buf[:])
	assert.Equal(t, h, got)
}

func TestFrameCodecDataSettingsPing(t *testing.T) {
	var buf bytes.Buffer
	fw := NewFrameWriter(&buf)
	require.NoError(t, fw.WriteData(3, true, []byte("hello")))
	require.NoError(t, fw.WriteSettings(Setting{ID: SettingInitialWindowSize, Val: 70000}))
	require.NoError(t, fw.WriteSettingsAck())
	require.NoError(t, fw.WritePing(false, [8]byte{1, 2, 3}))
	require.NoError(t, fw.WriteGoAway(5, ErrCodeNo, []byte("bye")))
	require.NoError(t, fw.WriteWindowUpdate(0, 100))

	fr := NewFrameReader(bufio.NewReader(&buf), 1<<20)

	f, err := fr.ReadFrame()
	require.NoError(t, err)
	assert.Equal(t, FrameData, f.Header.Type)
	assert.Equal(t, []byte("hello"), f.Data)
	assert.True(t, f.EndStream)

	f, err = fr.ReadFrame()
	require.NoError(t, err)
	assert.Equal(t, FrameSettings, f.Header.Type)
	require.Len(t, f.Settings, 1)
	assert.Equal(t, uint32(70000), f.Settings[0].Val)

	f, err = fr.ReadFrame()
	require.NoError(t, err)
	assert.True(t, f.Header.Flags.Has(FlagAck))

	f, err = fr.ReadFrame()
	require.NoError(t, err)
	assert.Equal(t, FramePing, f.Header.Type)
	assert.Equal(t, [8]byte{1, 2, 3}, f.PingData)

	f, err = fr.ReadFrame()
	require.NoError(t, err)
	assert.Equal(t, uint32(5), f.LastStreamID)
	assert.Equal(t, []byte("bye"), f.DebugData)

	f, err = fr.ReadFrame()
	require.NoError(t, err)
	assert.Equal(t, uint32(100), f.WindowIncrement)
}

func TestWriteHeadersSplitsIntoContinuation(t *testing.T) {
	var buf bytes.Buffer
	fw := NewFrameWriter(&buf)
	// SetMaxFrameSize ignores values below the RFC minimum of 16384, so
	// set the field directly to force a split of the 40-byte block.
	fw.maxFrameSize = 16
	block := bytes.Repeat([]byte{'a'}, 40)
	require.NoError(t, fw.WriteHeaders(1, true, block))

	fr := NewFrameReader(bufio.NewReader(&buf), 1<<20)
	var got []byte
	var sawEndHeaders bool
	var frames int
	for i := 0; i < 3; i++ {
		f, err := fr.ReadFrame()
		require.NoError(t, err)
		frames++
		if i == 0 {
			assert.Equal(t, FrameHeaders, f.Header.Type)
			assert.True(t, f.EndStream)
		} else {
			assert.Equal(t, FrameContinuation, f.Header.Type)
		}
		got = append(got, f.HeaderData...)
		if f.Header.Flags.Has(FlagEndHeaders) {
			sawEndHeaders = true
			break
		}
	}
	assert.True(t, sawEndHeaders)
	assert.Equal(t, 3, frames) // HEADERS 16 + CONTINUATION 16 + CONTINUATION 8
	assert.Equal(t, block, got)
}

func TestSettingsValid(t *testing.T) {
	assert.NoError(t, Setting{ID: SettingEnablePush, Val: 1}.Valid())
	assert.Error(t, Setting{ID: SettingEnablePush, Val: 2}.Valid())
	assert.Error(t, Setting{ID: SettingMaxFrameSize, Val: 100}.Valid())
	assert.NoError(t, Setting{ID: SettingMaxFrameSize, Val: 16384}.Valid())
}

func TestSettingsDefaults(t *testing.T) {
	s := NewSettings()
	assert.Equal(t, noMaxConcurrentStreams, s.MaxConcurrentStreams())
	assert.Equal(t, uint32(65535), s.InitialWindowSize())
	s.Set(SettingMaxConcurrentStreams, 2)
	assert.Equal(t, uint32(2), s.MaxConcurrentStreams())
}

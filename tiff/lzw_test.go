package tiff

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLZWRoundTripsSimpleData(t *testing.T) {
	cases := [][]byte{
		nil,
		{0x00},
		{0xFF, 0xFF, 0xFF, 0xFF},
		[]byte("TOBEORNOTTOBEORTOBEORNOT"),
		bytes.Repeat([]byte{0xAA, 0x55}, 1000),
	}
	for _, in := range cases {
		out, err := DecompressLZW(CompressLZW(in))
		require.NoError(t, err)
		if len(in) == 0 {
			require.Empty(t, out)
		} else {
			require.Equal(t, in, out)
		}
	}
}

// xorshift32 gives deterministic low-compressibility data, enough to
// push the code table through every width change and a mid-stream
// clear.
func xorshift32(state *uint32) uint32 {
	x := *state
	x ^= x << 13
	x ^= x >> 17
	x ^= x << 5
	*state = x
	return x
}

func TestLZWRoundTripsThroughWidthChangesAndClear(t *testing.T) {
	in := make([]byte, 64*1024)
	state := uint32(0x12345678)
	for i := range in {
		in[i] = byte(xorshift32(&state))
	}
	compressed := CompressLZW(in)
	out, err := DecompressLZW(compressed)
	require.NoError(t, err)
	require.Equal(t, in, out)
}

func TestLZWRoundTripsHighlyRepetitiveData(t *testing.T) {
	// Repetition drives the KwKwK case and long dictionary chains.
	in := bytes.Repeat([]byte{1, 1, 1, 2, 1, 1, 2, 2}, 8192)
	out, err := DecompressLZW(CompressLZW(in))
	require.NoError(t, err)
	require.Equal(t, in, out)
}

func TestDecompressLZWRejectsGarbage(t *testing.T) {
	_, err := DecompressLZW([]byte{0xFF, 0xFF, 0xFF, 0xFF})
	require.Error(t, err)
	_, err = DecompressLZW(nil)
	require.Error(t, err)
}

func TestWriteStripsLZW(t *testing.T) {
	const cpp, width, height = 1, 16, 40
	data := make([]uint16, width*height*cpp)
	for i := range data {
		data[i] = uint16(i * 7)
	}

	var buf bytes.Buffer
	const pos = 128
	rowsPerStrip, refs, err := WriteStripsLZW(&buf, pos, data, cpp, width, height, 16)
	require.NoError(t, err)
	require.Equal(t, 16, rowsPerStrip)
	require.Len(t, refs, 3) // 16 + 16 + 8 rows

	// Strips are laid out back to back from pos, and decode back to the
	// big-endian sample bytes.
	written := buf.Bytes()
	var cursor uint32 = pos
	var plane []byte
	for _, ref := range refs {
		require.Equal(t, cursor, ref.Offset)
		strip := written[ref.Offset-pos : ref.Offset-pos+ref.ByteCount]
		raw, err := DecompressLZW(strip)
		require.NoError(t, err)
		plane = append(plane, raw...)
		cursor += ref.ByteCount
	}
	require.Len(t, plane, width*height*cpp*2)
	for i, v := range data {
		require.Equal(t, v, uint16(plane[i*2])<<8|uint16(plane[i*2+1]))
	}
}

func TestWriteStripsLZWDefaultsAndClamps(t *testing.T) {
	data := make([]uint16, 8*10)
	var buf bytes.Buffer
	rowsPerStrip, refs, err := WriteStripsLZW(&buf, 0, data, 1, 8, 10, 0)
	require.NoError(t, err)
	require.Equal(t, 10, rowsPerStrip) // 256-row default clamped to height
	require.Len(t, refs, 1)

	_, _, err = WriteStripsLZW(&buf, 0, data, 1, 8, 100, 0)
	require.Error(t, err)
}

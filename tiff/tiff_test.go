package tiff

import (
	"bytes"
	"io"
	"testing"

	"github.com/rawkit/rawkit/bytesource"
	"github.com/stretchr/testify/require"
)

// seekBuffer is an io.WriteSeeker backed by a plain byte slice, enough
// for the writer's word-aligned Write calls.
type seekBuffer struct {
	buf []byte
	pos int64
}

func (s *seekBuffer) Write(p []byte) (int, error) {
	end := s.pos + int64(len(p))
	if end > int64(len(s.buf)) {
		grown := make([]byte, end)
		copy(grown, s.buf)
		s.buf = grown
	}
	copy(s.buf[s.pos:end], p)
	s.pos = end
	return len(p), nil
}

func (s *seekBuffer) Seek(offset int64, whence int) (int64, error) {
	switch whence {
	case io.SeekStart:
		s.pos = offset
	case io.SeekCurrent:
		s.pos += offset
	case io.SeekEnd:
		s.pos = int64(len(s.buf)) + offset
	}
	return s.pos, nil
}

func TestBuilderRejectsEmptyDirectory(t *testing.T) {
	b := NewBuilder()
	_, err := b.Write(&seekBuffer{}, 0, 0)
	require.Error(t, err)
}

func TestWriterReaderRoundTripsCommonTypes(t *testing.T) {
	b := NewBuilder()
	b.AddShort(256, 100)               // inline
	b.AddLong(257, 200)                // inline
	b.AddByte(258, 7)                  // inline
	b.AddASCII(271, "ACME")            // offset (5 bytes w/ NUL)
	b.AddRational(50717, 16383, 1)     // offset (8 bytes)
	b.AddSRational(50730, -3, 2)       // offset
	b.AddShortArray(50721, []uint16{1, 2, 3, 4})
	b.AddUndefined(999, []byte{0xDE, 0xAD, 0xBE, 0xEF, 0x01})

	sb := &seekBuffer{}
	// Leave an 8-byte TIFF header before the IFD, like a real file.
	require.NoError(t, WriteHeader(sb, 8))
	off, err := b.Write(sb, 8, 0)
	require.NoError(t, err)
	require.EqualValues(t, 8, off)

	src := bytesource.New(bytes.NewReader(sb.buf), int64(len(sb.buf)))
	r, err := NewReader(src, 0, 0, nil, nil)
	require.NoError(t, err)

	first, err := r.FirstIFDOffset()
	require.NoError(t, err)
	require.EqualValues(t, 8, first)

	chain, err := r.ReadChain(first)
	require.NoError(t, err)
	require.Len(t, chain, 1)
	ifd := chain[0]

	e, ok := ifd.GetEntry(256)
	require.True(t, ok)
	v, _ := e.Value.AsUint()
	require.EqualValues(t, 100, v)

	e, ok = ifd.GetEntry(257)
	require.True(t, ok)
	v, _ = e.Value.AsUint()
	require.EqualValues(t, 200, v)

	e, ok = ifd.GetEntry(271)
	require.True(t, ok)
	require.Equal(t, "ACME", e.Value.Ascii)

	e, ok = ifd.GetEntry(50717)
	require.True(t, ok)
	require.Equal(t, Rational{16383, 1}, e.Value.Rationals[0])

	e, ok = ifd.GetEntry(50730)
	require.True(t, ok)
	require.Equal(t, SRational{-3, 2}, e.Value.SRationals[0])

	e, ok = ifd.GetEntry(50721)
	require.True(t, ok)
	require.Equal(t, []uint16{1, 2, 3, 4}, e.Value.Shorts)

	e, ok = ifd.GetEntry(999)
	require.True(t, ok)
	require.Equal(t, []byte{0xDE, 0xAD, 0xBE, 0xEF, 0x01}, e.Value.Undefined)
}

func TestFloatToRationalRoundTrips(t *testing.T) {
	for _, v := range []float64{0, 1, 0.5, 0.3333333333, -0.75, 64.0 / 16383.0} {
		n, d := FloatToRational(v, 1<<26)
		got := float64(n) / float64(d)
		require.InDelta(t, v, got, 1e-6)
	}
}

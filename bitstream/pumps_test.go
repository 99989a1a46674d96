package bitstream

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMSBPeekIsIdempotent(t *testing.T) {
	p := NewMSB([]byte{0b10110010, 0b01010101})
	a := p.PeekBits(5)
	b := p.PeekBits(5)
	require.Equal(t, a, b)
	require.EqualValues(t, 0b10110, a)

	p.ConsumeBits(5)
	require.EqualValues(t, 0b01001, p.PeekBits(5))
}

func TestMSBEncodeDecodeRoundTrip(t *testing.T) {
	for n := uint(1); n <= 16; n++ {
		max := uint32(1)<<n - 1
		for _, v := range []uint32{0, 1, max / 2, max} {
			buf := make([]byte, 4)
			w := &bitWriter{buf: buf}
			w.put(v, n)
			p := NewMSB(buf)
			got := p.GetBits(n)
			require.Equal(t, v, got, "n=%d v=%d", n, v)
		}
	}
}

// bitWriter is a tiny MSB-first bit writer used only by this test's
// encode-then-decode round trips.
type bitWriter struct {
	buf  []byte
	pos  int
}

func (w *bitWriter) put(v uint32, n uint) {
	for i := int(n) - 1; i >= 0; i-- {
		bit := (v >> uint(i)) & 1
		byteIdx := w.pos >> 3
		shift := 7 - uint(w.pos&7)
		w.buf[byteIdx] |= byte(bit << shift)
		w.pos++
	}
}

func TestLSBReadsLowBitFirst(t *testing.T) {
	p := NewLSB([]byte{0b10110010})
	require.EqualValues(t, 0b0010, p.GetBits(4))
	require.EqualValues(t, 0b1011, p.GetBits(4))
}

func TestGetIBitsSextended(t *testing.T) {
	p := NewMSB([]byte{0b01100000})
	require.EqualValues(t, 0, NewMSB([]byte{0}).GetIBitsSextended(0))

	v := p.GetIBitsSextended(3)
	require.EqualValues(t, -4, v) // 011, top bit 0 -> 3 - (2^3-1) = -4
}

func TestJPEGByteStuffingDropsStuffedZero(t *testing.T) {
	p := NewJPEG([]byte{0xFF, 0x00, 0xAB})
	require.EqualValues(t, 0xFF, p.GetBits(8))
	require.EqualValues(t, 0xAB, p.GetBits(8))
}

func TestJPEGMarkerYieldsZeros(t *testing.T) {
	p := NewJPEG([]byte{0x12, 0xFF, 0xD9})
	require.EqualValues(t, 0x12, p.GetBits(8))
	require.EqualValues(t, 0, p.GetBits(8))
	require.True(t, p.AtMarker())
}

func TestMSB32WordAlignmentSpansWords(t *testing.T) {
	p := NewMSB32([]byte{0x00, 0x00, 0x00, 0xFF, 0xAA, 0, 0, 0})
	p.ConsumeBits(28)
	v := p.GetBits(12)
	require.EqualValues(t, 0xFAA, v)
}

func TestBitArrayPushPop(t *testing.T) {
	var b BitArray
	b.Push(true)
	b.Push(false)
	b.Push(true)

	require.Equal(t, 3, b.Len())
	require.Equal(t, byte(0b10100000), b.Bytes()[0])

	require.True(t, b.Pop())
	require.False(t, b.Pop())
	require.True(t, b.Pop())
	require.Equal(t, 0, b.Len())
	require.False(t, b.Pop())
}

package rawbits

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestUnpack16LERoundTrips(t *testing.T) {
	buf := []byte{0x34, 0x12, 0xff, 0x00}
	out, err := Unpack(buf, 2, 1, 16, LittleEndian, true)
	require.NoError(t, err)
	require.Equal(t, []uint16{0x1234, 0x00ff}, out)
}

func TestUnpack12LEPackedMatchesReferenceBytes(t *testing.T) {
	// g1=0x12, g2=0x34, g3=0x56 -> sample0 = (g2&0xf)<<8|g1 = 0x412, sample1 = g3<<4|g2>>4 = 0x563
	buf := []byte{0x12, 0x34, 0x56}
	out, err := Unpack(buf, 2, 1, 12, LittleEndian, true)
	require.NoError(t, err)
	require.Equal(t, []uint16{0x412, 0x563}, out)
}

func TestUnpack12BEPackedMatchesReferenceBytes(t *testing.T) {
	// g1=0x12, g2=0x34, g3=0x56 -> sample0 = g1<<4|g2>>4 = 0x123, sample1 = (g2&0xf)<<8|g3 = 0x456
	buf := []byte{0x12, 0x34, 0x56}
	out, err := Unpack(buf, 2, 1, 12, BigEndian, true)
	require.NoError(t, err)
	require.Equal(t, []uint16{0x123, 0x456}, out)

	out, err = Unpack([]byte{0xAB, 0xCD, 0xEF, 0x12, 0x34, 0x56}, 4, 1, 12, BigEndian, true)
	require.NoError(t, err)
	require.Equal(t, []uint16{0xABC, 0xDEF, 0x123, 0x456}, out)
}

func TestUnpackShortBufferErrors(t *testing.T) {
	_, err := Unpack([]byte{0x00}, 4, 4, 16, LittleEndian, true)
	require.Error(t, err)
}

func TestLookupTableDitherIsDeterministic(t *testing.T) {
	curve := make([]uint16, 256)
	for i := range curve {
		curve[i] = uint16(i * 16)
	}
	tbl := NewLookupTable(curve)

	rand := uint32(12345)
	a := tbl.Dither(100, &rand)
	rand2 := uint32(12345)
	b := tbl.Dither(100, &rand2)
	require.Equal(t, a, b)
}

func TestLookupTableWithBitsPadsShortCurve(t *testing.T) {
	curve := []uint16{10, 20, 30}
	tbl := NewLookupTableWithBits(curve, 8)
	require.Len(t, tbl.entries, 256)
}

func TestDecode8BitWithTableProducesPlausibleRange(t *testing.T) {
	curve := make([]uint16, 256)
	for i := range curve {
		curve[i] = uint16(i * 64)
	}
	tbl := NewLookupTable(curve)

	buf := make([]byte, 4*2)
	for i := range buf {
		buf[i] = byte(i * 10)
	}
	out, err := Decode8BitWithTable(buf, tbl, 4, 2)
	require.NoError(t, err)
	require.Len(t, out, 8)
}

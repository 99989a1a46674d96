package x3f

import (
	"bytes"
	"encoding/binary"
	"testing"
	"unicode/utf16"

	"github.com/stretchr/testify/require"

	"github.com/rawkit/rawkit/bitstream"
)

func u32(v uint32) []byte {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], v)
	return b[:]
}

func utf16z(s string) []byte {
	var out []byte
	for _, u := range utf16.Encode([]rune(s)) {
		out = append(out, byte(u), byte(u>>8))
	}
	return append(out, 0, 0)
}

// buildContainer assembles a minimal version-2.0 file: header, one
// property section, and the trailing directory pointer.
func buildContainer(t *testing.T, props map[string]string) []byte {
	t.Helper()
	var f bytes.Buffer
	f.Write(u32(sigFOVb))
	f.Write(u32(2 << 16))
	f.Write(make([]byte, 16))     // unique id
	f.Write(u32(0))               // mark bits
	f.Write(u32(64))              // columns
	f.Write(u32(64))              // rows
	f.Write(u32(0))               // rotation
	f.Write(make([]byte, 512-40)) // pad past the largest header layout

	propOffset := uint32(f.Len())
	var pool []byte
	var table []byte
	for name, value := range props {
		table = append(table, u32(uint32(len(pool)/2))...)
		pool = append(pool, utf16z(name)...)
		table = append(table, u32(uint32(len(pool)/2))...)
		pool = append(pool, utf16z(value)...)
	}
	var sec bytes.Buffer
	sec.Write(u32(SectionProps))
	sec.Write(u32(0))                      // version
	sec.Write(u32(uint32(len(props))))     // count
	sec.Write(u32(0))                      // character format
	sec.Write(u32(0))                      // reserved
	sec.Write(u32(uint32(len(pool) / 2)))  // pool length in code units
	sec.Write(table)
	sec.Write(pool)
	f.Write(sec.Bytes())

	dirOffset := uint32(f.Len())
	f.Write(u32(SectionDirectory))
	f.Write(u32(0)) // version
	f.Write(u32(1)) // entry count
	f.Write(u32(propOffset))
	f.Write(u32(uint32(sec.Len())))
	f.Write(u32(SectionProps))
	f.Write(u32(dirOffset))
	return f.Bytes()
}

func TestOpenReadsHeaderDirectoryAndProperties(t *testing.T) {
	data := buildContainer(t, map[string]string{"CAMMODEL": "SIGMA DP2 Merrill"})

	f, err := OpenFromReaderAt(bytes.NewReader(data), int64(len(data)))
	require.NoError(t, err)
	defer f.Close()

	require.Equal(t, uint32(2<<16), f.Header.Version)
	require.Equal(t, uint32(64), f.Header.Columns)
	require.Len(t, f.Directory, 1)
	require.Equal(t, uint32(SectionProps), f.Directory[0].Kind)

	model, ok := f.Property("CAMMODEL")
	require.True(t, ok)
	require.Equal(t, "SIGMA DP2 Merrill", model)

	_, ok = f.Property("CAMSERIAL")
	require.False(t, ok)
}

func TestOpenRejectsBadMagic(t *testing.T) {
	data := buildContainer(t, nil)
	data[0] = 'X'
	_, err := OpenFromReaderAt(bytes.NewReader(data), int64(len(data)))
	require.Error(t, err)
}

func TestHuffTreeDecode(t *testing.T) {
	tree := newHuffTree(3)
	tree.insert(0b0, 1, 7)   // "0"
	tree.insert(0b10, 2, 3)  // "10"
	tree.insert(0b110, 3, 1) // "110"

	// Bit sequence: 0, 10, 110, 0 -> 7, 3, 1, 7.
	p := bitstream.NewMSB([]byte{0b01011000})
	require.Equal(t, int32(7), tree.decode(p))
	require.Equal(t, int32(3), tree.decode(p))
	require.Equal(t, int32(1), tree.decode(p))
	require.Equal(t, int32(7), tree.decode(p))
}

func TestTrueDiffSignFolding(t *testing.T) {
	// Value index == magnitude bit count; every symbol is coded in
	// 3 bits as its own index.
	table := []trueTableEntry{
		{CodeSize: 3, Code: 0 << 5},
		{CodeSize: 3, Code: 1 << 5},
		{CodeSize: 3, Code: 2 << 5},
		{CodeSize: 3, Code: 3 << 5},
	}
	tree := buildTRUETree(table)

	// Symbol 2 then magnitude bits "11" -> +3.
	p := bitstream.NewMSB([]byte{0b01011000})
	require.Equal(t, int32(3), trueDiff(p, tree))

	// Symbol 2 then magnitude bits "00": leading zero folds negative,
	// 0 - (1<<2 - 1) = -3.
	p = bitstream.NewMSB([]byte{0b01000000})
	require.Equal(t, int32(-3), trueDiff(p, tree))

	// Symbol 0 consumes no magnitude bits.
	p = bitstream.NewMSB([]byte{0b00000000})
	require.Equal(t, int32(0), trueDiff(p, tree))
}

func TestDecodeTRUEPlaneAllZeroDiffsYieldsSeed(t *testing.T) {
	// One symbol, "0", meaning zero magnitude bits: every pixel equals
	// the seed.
	table := []trueTableEntry{{CodeSize: 1, Code: 0}}
	tree := buildTRUETree(table)

	out := decodeTRUEPlane(make([]byte, 16), 4, 4, tree, 512)
	require.Len(t, out, 16)
	for _, v := range out {
		require.Equal(t, uint16(512), v)
	}
}

func TestCAMFUnscrambleIsAnInvolution(t *testing.T) {
	in := []byte("calibration payload bytes 0123456789")
	key := uint32(0x1234)
	scrambled := camfUnscramble(in, key)
	require.NotEqual(t, in, scrambled)
	require.Equal(t, in, camfUnscramble(scrambled, key))
}

func TestCAMFRectScaledClipsAndScales(t *testing.T) {
	entries := []*CAMFEntry{
		rectEntry("KeepImageArea", 0, 0, 99, 99),
		rectEntry("DarkShieldTop", 10, 0, 29, 3),
	}
	f := &File{CAMF: &CAMF{Entries: entries}}

	x0, y0, x1, y1, ok := f.CAMFRectScaled("DarkShieldTop", 200, 200, true)
	require.True(t, ok)
	require.Equal(t, [4]uint32{20, 0, 58, 6}, [4]uint32{x0, y0, x1, y1})

	_, _, _, _, ok = f.CAMFRectScaled("DarkShieldBottom", 200, 200, true)
	require.False(t, ok)
}

func rectEntry(name string, x0, y0, x1, y1 uint32) *CAMFEntry {
	raw := append(append(append(u32(x0), u32(y0)...), u32(x1)...), u32(y1)...)
	return &CAMFEntry{
		ID:      camfEntryMatrix,
		Name:    name,
		Dims:    []uint32{4},
		Uints:   []uint32{x0, y0, x1, y1},
		rawData: raw,
	}
}

func TestWhiteBalanceNameFallsBackToHeader(t *testing.T) {
	f := &File{}
	copy(f.Header.WhiteBalance[:], "Sunlight\x00")
	require.Equal(t, "Sunlight", f.WhiteBalanceName())

	f = &File{}
	require.Equal(t, "Auto", f.WhiteBalanceName())
}

package bmff

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func box(typ string, payload []byte) []byte {
	size := 8 + len(payload)
	out := make([]byte, 4)
	out[0] = byte(size >> 24)
	out[1] = byte(size >> 16)
	out[2] = byte(size >> 8)
	out[3] = byte(size)
	out = append(out, []byte(typ)...)
	out = append(out, payload...)
	return out
}

func TestParseFlatBoxes(t *testing.T) {
	data := append(box("ftyp", []byte("crx \x00\x00\x00\x00")), box("mdat", []byte{1, 2, 3, 4})...)

	boxes, err := Parse(data)
	require.NoError(t, err)
	require.Len(t, boxes, 2)
	require.Equal(t, "ftyp", boxes[0].Type)
	require.Equal(t, "mdat", boxes[1].Type)
	require.True(t, IsCR3(boxes))
}

func TestParseNestedMoov(t *testing.T) {
	trak := box("trak", box("mdia", nil))
	moov := box("moov", trak)
	data := append(box("ftyp", []byte("isom\x00\x00\x00\x00")), moov...)

	boxes, err := Parse(data)
	require.NoError(t, err)
	require.False(t, IsCR3(boxes))

	moovBox, ok := Find(boxes, "moov")
	require.True(t, ok)
	require.Len(t, moovBox.Children, 1)
	require.Equal(t, "trak", moovBox.Children[0].Type)
	require.Len(t, moovBox.Children[0].Children, 1)
	require.Equal(t, "mdia", moovBox.Children[0].Children[0].Type)
}

func TestParseRejectsTruncatedBox(t *testing.T) {
	data := []byte{0x00, 0x00, 0x00, 0x10, 'f', 't', 'y', 'p'} // declares 16 bytes, has 8
	_, err := Parse(data)
	require.Error(t, err)
}

func TestParseCMP1(t *testing.T) {
	payload := make([]byte, 0, 32)
	put16 := func(v uint16) { payload = append(payload, byte(v>>8), byte(v)) }
	put32 := func(v uint32) {
		payload = append(payload, byte(v>>24), byte(v>>16), byte(v>>8), byte(v))
	}
	put16(0x0020) // header size
	put16(0x0100) // version
	put32(0)      // reserved
	put32(6000)   // frame width
	put32(4000)   // frame height
	put32(512)    // tile width
	put32(512)    // tile height
	put32(0)      // reserved
	payload = append(payload, 14, 4, 0, 0, 0, 0, 0, 0) // nbits,nplanes,cfalayout,enctype,levels,hastilecols,hastilerows,reserved
	put32(0)                                           // mdat header size

	params, err := ParseCMP1(payload)
	require.NoError(t, err)
	require.EqualValues(t, 6000, params.FrameWidth)
	require.EqualValues(t, 4000, params.FrameHeight)
	require.EqualValues(t, 14, params.NBits)
	require.EqualValues(t, 4, params.NPlanes)
}

func TestFindAllReturnsEveryMatch(t *testing.T) {
	data := append(box("free", nil), box("free", []byte{1})...)
	boxes, err := Parse(data)
	require.NoError(t, err)
	require.Len(t, FindAll(boxes, "free"), 2)
}

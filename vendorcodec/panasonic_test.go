package vendorcodec

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDecodePanasonicV6Dimensions(t *testing.T) {
	width, height, bps := 14, 2, uint32(12)
	params, ok := panasonicV6ParamsFor(bps)
	require.True(t, ok)
	blocksPerRow := width / params.pixelsPerBlock
	bytesPerRow := v6BytesPerBlock * blocksPerRow
	buf := make([]byte, bytesPerRow*height)

	out := DecodePanasonicV6(buf, width, height, bps)
	require.Len(t, out, width*height)
}

func TestDecodePanasonicV6UnsupportedBPS(t *testing.T) {
	out := DecodePanasonicV6(nil, 14, 2, 8)
	require.Nil(t, out)
}

func TestHuffmanDecoderV8CacheCoversTrivialTable(t *testing.T) {
	bits := []uint16{1, 1}
	symbols := []uint16{0, 1}
	dec := newHuffmanDecoderV8(bits, symbols)
	require.NotNil(t, dec)
}

func TestMakePanasonicV8GammaTableLinearIsNil(t *testing.T) {
	params := PanasonicV8Params{
		GammaPoint: []uint32{65536, 65536, 65536, 65536, 65536, 65536},
		GammaSlope: []uint32{0, 0, 0, 0, 0, 0},
	}
	require.Nil(t, makePanasonicV8GammaTable(&params))
}

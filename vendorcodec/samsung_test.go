package vendorcodec

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSRW2TableCoversAllPrefixes(t *testing.T) {
	require.Len(t, srw2Table, 1024)
	for _, e := range srw2Table {
		require.True(t, e[0] > 0 || e[1] > 0, "every slot should be filled by some table row")
	}
}

func TestDecodeSRW2ProducesFullRaster(t *testing.T) {
	width, height := 8, 4
	src := make([]byte, 256)
	out := DecodeSRW2(src, width, height)
	require.Len(t, out, width*height)
}

func TestDecodeSRW1ProducesFullRaster(t *testing.T) {
	width, height := 16, 2
	src := make([]byte, 64)
	loffsets := make([]byte, height*4)
	out := DecodeSRW1(src, loffsets, width, height)
	require.Len(t, out, width*height)
}

func TestDecodeSRW3ZeroBufferDoesNotPanic(t *testing.T) {
	width, height := 16, 2
	src := make([]byte, 256)
	require.NotPanics(t, func() {
		out := DecodeSRW3(src, width, height)
		require.Len(t, out, width*height)
	})
}

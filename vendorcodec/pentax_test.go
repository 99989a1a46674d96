package vendorcodec

import (
	"testing"

	"github.com/rawkit/rawkit/bitstream"
	"github.com/stretchr/testify/require"
)

func TestBuildPentaxHuffTableFallback(t *testing.T) {
	table, err := buildPentaxHuffTable(nil, bitstream.BigEndian)
	require.NoError(t, err)
	require.NotNil(t, table)
}

func TestDecodePentaxProducesFullRaster(t *testing.T) {
	width, height := 4, 4
	src := make([]byte, width*height*2)
	out, err := DecodePentax(src, nil, bitstream.BigEndian, width, height)
	require.NoError(t, err)
	require.Len(t, out, width*height)
}

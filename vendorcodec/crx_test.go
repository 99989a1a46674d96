package vendorcodec

import (
	"testing"

	"github.com/rawkit/rawkit/bitstream"
	"github.com/rawkit/rawkit/bmff"
	"github.com/rawkit/rawkit/internal/rawerr"
	"github.com/stretchr/testify/require"
)

func TestDecodeCRXLevel0RejectsNonZeroLevels(t *testing.T) {
	params := bmff.CompressionParams{
		FrameWidth:  8,
		FrameHeight: 8,
		TileWidth:   8,
		TileHeight:  8,
		NBits:       12,
		NPlanes:     4,
		ImageLevels: 1,
	}
	_, err := DecodeCRXLevel0(nil, params)
	require.Error(t, err)
	require.True(t, rawerr.IsUnsupported(err))
}

func TestDecodeCRXLevel0RejectsWrongPlaneCount(t *testing.T) {
	params := bmff.CompressionParams{
		FrameWidth:  8,
		FrameHeight: 8,
		TileWidth:   8,
		TileHeight:  8,
		NBits:       12,
		NPlanes:     3,
		ImageLevels: 0,
	}
	_, err := DecodeCRXLevel0(nil, params)
	require.Error(t, err)
	require.True(t, rawerr.IsUnsupported(err))
}

func TestDecodeCRXLevel0ProducesFullRaster(t *testing.T) {
	params := bmff.CompressionParams{
		FrameWidth:  8,
		FrameHeight: 8,
		TileWidth:   8,
		TileHeight:  8,
		NBits:       12,
		NPlanes:     4,
		ImageLevels: 0,
	}
	src := make([]byte, 4096)
	out, err := DecodeCRXLevel0(src, params)
	require.NoError(t, err)
	require.Len(t, out, int(params.FrameWidth*params.FrameHeight))
}

func TestDecodeCRXPlaneConstrainsToBitDepth(t *testing.T) {
	src := make([]byte, 1024)
	pump := bitstream.NewMSB(src)
	out := decodeCRXPlane(pump, 4, 4, 12)
	require.Len(t, out, 16)
	for _, v := range out {
		require.LessOrEqual(t, v, uint16(1<<12-1))
	}
}

package ljpeg

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestEncodeDecodeRoundTripsZeroes(t *testing.T) {
	width, height := 16, 16
	samples := make([]uint16, width*height)

	data, err := Encode(samples, EncodeOptions{Width: width, Height: height, Components: 1, Precision: 16})
	require.NoError(t, err)

	d, err := Parse(data)
	require.NoError(t, err)
	require.Equal(t, 1, d.Components())
	require.Equal(t, 1, d.Predictor)

	out := make([]uint16, width*height)
	require.NoError(t, d.Decode(out, 0, width, width, height))
	require.Equal(t, samples, out)
}

func TestEncodeDecodeRoundTripsRamp(t *testing.T) {
	width, height := 8, 8
	samples := make([]uint16, width*height)
	for i := range samples {
		samples[i] = uint16(i * 37 % 4096)
	}

	data, err := Encode(samples, EncodeOptions{Width: width, Height: height, Components: 1, Precision: 16})
	require.NoError(t, err)

	d, err := Parse(data)
	require.NoError(t, err)

	out := make([]uint16, width*height)
	require.NoError(t, d.Decode(out, 0, width, width, height))
	require.Equal(t, samples, out)
}

func TestBitsForDiffRoundTripsThroughCategory(t *testing.T) {
	for _, diff := range []int32{0, 1, -1, 2, -2, 3, -3, 255, -255, 1000, -1000} {
		cat, bits := bitsForDiff(diff)
		// Mirror the decoder's reconstruction at shift=0.
		raw := int32(bits)
		if raw&(1<<(cat-1)) == 0 && cat > 0 {
			raw -= (1 << cat) - 1
		}
		if cat == 0 {
			raw = 0
		}
		require.Equal(t, diff, raw)
	}
}

func TestParseRejectsMissingSOI(t *testing.T) {
	_, err := Parse([]byte{0x00, 0x01, 0x02})
	require.Error(t, err)
}

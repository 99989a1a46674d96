package rawbits

import (
	"math"
	"testing"

	"github.com/stretchr/testify/require"
)

// referenceFP16 converts a half-precision pattern through float64
// arithmetic, the slow-but-obvious way.
func referenceFP16(bits uint16) float32 {
	sign := 1.0
	if bits&0x8000 != 0 {
		sign = -1
	}
	exp := int(bits >> 10 & 0x1f)
	frac := float64(bits & 0x3ff)
	switch exp {
	case 0:
		return float32(sign * frac / 1024 * math.Pow(2, -14))
	case 31:
		if frac == 0 {
			return float32(sign * math.Inf(1))
		}
		return float32(math.NaN())
	default:
		return float32(sign * (1 + frac/1024) * math.Pow(2, float64(exp-15)))
	}
}

func TestWidenFP16MatchesReferenceForAllPatterns(t *testing.T) {
	for i := 0; i <= 0xffff; i++ {
		bits := uint16(i)
		got := math.Float32frombits(WidenFP16(bits))
		want := referenceFP16(bits)
		if math.IsNaN(float64(want)) {
			require.True(t, math.IsNaN(float64(got)), "pattern %#04x", bits)
			continue
		}
		require.Equal(t, want, got, "pattern %#04x", bits)
	}
}

func TestWidenFP24KnownValues(t *testing.T) {
	// 1.0: exponent = bias, zero fraction.
	require.Equal(t, float32(1.0), math.Float32frombits(WidenFP24(64<<16)))
	// -2.0.
	require.Equal(t, float32(-2.0), math.Float32frombits(WidenFP24(1<<23|65<<16)))
	// +0 and -0.
	require.Equal(t, uint32(0), WidenFP24(0))
	require.Equal(t, uint32(1)<<31, WidenFP24(1<<23))
	// Infinity.
	require.True(t, math.IsInf(float64(math.Float32frombits(WidenFP24(0x7f<<16))), 1))
	// NaN.
	require.True(t, math.IsNaN(float64(math.Float32frombits(WidenFP24(0x7f<<16|1)))))
	// Smallest subnormal: 2^-63 * 2^-16 = 2^-79... representable in fp32?
	// fp32 min subnormal is 2^-149, so yes: must be nonzero.
	require.NotZero(t, math.Float32frombits(WidenFP24(1)))
}

func TestUnpackFloats(t *testing.T) {
	// fp16 1.0 = 0x3c00, little-endian.
	out, err := UnpackFloats([]byte{0x00, 0x3c}, 1, 16, LittleEndian)
	require.NoError(t, err)
	require.Equal(t, []float32{1.0}, out)

	// fp32 big-endian 1.5.
	out, err = UnpackFloats([]byte{0x3f, 0xc0, 0x00, 0x00}, 1, 32, BigEndian)
	require.NoError(t, err)
	require.Equal(t, []float32{1.5}, out)

	// fp24 big-endian 1.0.
	out, err = UnpackFloats([]byte{0x40, 0x00, 0x00}, 1, 24, BigEndian)
	require.NoError(t, err)
	require.Equal(t, []float32{1.0}, out)

	_, err = UnpackFloats([]byte{0}, 1, 16, LittleEndian)
	require.Error(t, err)
	_, err = UnpackFloats(nil, 0, 20, LittleEndian)
	require.Error(t, err)
}

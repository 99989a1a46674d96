package colorspace

import (
	"math"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestInverseRoundTrips(t *testing.T) {
	m := Matrix3x3{
		0.5, 0.1, 0.0,
		0.2, 0.9, 0.1,
		0.0, 0.3, 1.2,
	}
	p := m.Multiply(m.Inverse())
	id := Identity3x3()
	for i := range p {
		require.InDelta(t, id[i], p[i], 1e-12)
	}
}

func TestInverseOfSingularIsIdentity(t *testing.T) {
	var zero Matrix3x3
	require.Equal(t, Identity3x3(), zero.Inverse())
}

func TestApplyMatchesManualProduct(t *testing.T) {
	v := SRGBToXYZ.Apply(Vector3{1, 1, 1})
	for i := range v {
		require.InDelta(t, D65WhitePoint[i], v[i], 1e-4)
	}
}

func TestSRGBGammaRoundTrips(t *testing.T) {
	for _, v := range []float64{0, 0.001, 0.0031308, 0.01, 0.18, 0.5, 1} {
		require.InDelta(t, v, SRGBInverseGamma(SRGBGamma(v)), 1e-12)
	}
}

func TestQuantizationClampsAndRounds(t *testing.T) {
	require.Equal(t, [3]uint8{0, 128, 255}, ConvertToUint8(Vector3{-0.5, 0.5, 1.5}))
	require.Equal(t, [3]uint16{0, 32768, 65535}, ConvertToUint16(Vector3{-0.5, 0.5, 1.5}))
	require.Equal(t, [3]uint8{255, 255, 255}, ConvertToUint8(Vector3{math.Inf(1), 1, 2}))
}
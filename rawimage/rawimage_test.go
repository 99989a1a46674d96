package rawimage

import (
	"math"
	"testing"

	"github.com/rawkit/rawkit/tiff"
	"github.com/stretchr/testify/require"
)

func makeTestImage() *RawImage {
	cfa, _ := NewCFAFromString("RGGB", 2, 2)
	data := make([]uint16, 4*4)
	for i := range data {
		data[i] = uint16(1000 + i*100)
	}
	return &RawImage{
		Width: 4, Height: 4, CPP: 1, BPS: 16,
		Data:       Data{Ints: data},
		CFA:        &cfa,
		WhiteLevel: []uint16{16383},
		BlackLevel: BlackLevel{PatternW: 2, PatternH: 2, CPP: 1, Values: []tiff.Rational{
			{Num: 512, Denom: 1}, {Num: 512, Denom: 1}, {Num: 512, Denom: 1}, {Num: 512, Denom: 1},
		}},
		WBCoeffs: [4]float64{2.1, 1.0, 1.4, math.NaN()},
	}
}

func TestValidatePassesForWellFormedImage(t *testing.T) {
	img := makeTestImage()
	require.NoError(t, img.Validate())
}

func TestValidateRejectsMismatchedDataLength(t *testing.T) {
	img := makeTestImage()
	img.Data.Ints = img.Data.Ints[:len(img.Data.Ints)-1]
	require.Error(t, img.Validate())
}

func TestValidateRejectsActiveAreaOutsideBounds(t *testing.T) {
	img := makeTestImage()
	img.ActiveArea = &Rect{X: 0, Y: 0, W: 5, H: 4}
	require.Error(t, img.Validate())
}

func TestValidateRejectsCropOutsideActiveArea(t *testing.T) {
	img := makeTestImage()
	img.ActiveArea = &Rect{X: 0, Y: 0, W: 4, H: 4}
	img.CropArea = &Rect{X: 2, Y: 0, W: 4, H: 4}
	require.Error(t, img.Validate())
}

func TestApplyScalingNormalizesToZeroBlack(t *testing.T) {
	img := makeTestImage()
	before := img.Data.Ints[0]
	require.Greater(t, before, uint16(512))

	img.ApplyScaling()

	for _, bl := range img.BlackLevel.Values {
		require.EqualValues(t, 0, bl.Num)
	}
	// sample that was at black level maps to 0
	img2 := makeTestImage()
	img2.Data.Ints[0] = 512
	img2.ApplyScaling()
	require.EqualValues(t, 0, img2.Data.Ints[0])
}

func TestApplyScalingClampsToWhiteLevel(t *testing.T) {
	img := makeTestImage()
	img.Data.Ints[0] = 60000
	img.ApplyScaling()
	require.LessOrEqual(t, img.Data.Ints[0], uint16(16383))
}

func TestBlackLevelShiftMatchesOrigin(t *testing.T) {
	img := makeTestImage()
	shifted := img.BlackLevel.Shift(1, 1)
	require.Equal(t, img.BlackLevel.At(1, 1, 0), shifted.At(0, 0, 0))
}

func TestDevelopParamsCarriesWBAndMatrices(t *testing.T) {
	img := makeTestImage()
	img.ColorMatrices = []ColorMatrix{{Illuminant: IlluminantD65, Matrix: []float64{1, 0, 0, 0, 1, 0, 0, 0, 1}}}
	dp := img.DevelopParams()
	require.Equal(t, img.WBCoeffs[:3], dp.WBCoeffs[:3])
	require.True(t, math.IsNaN(dp.WBCoeffs[3]))
	require.Len(t, dp.ColorMatrices, 1)
}

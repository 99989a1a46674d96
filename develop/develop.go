// Package develop renders a coarse sRGB image from a rawimage.RawImage,
// just enough for the DNG writer's embedded preview and thumbnail: a
// 2x2-box CFA average (or a direct pass-through for LinearRaw), as-shot
// white balance, the camera's first color matrix inverted into
// camera->XYZ, and the sRGB matrix/gamma pair from package colorspace.
// It is not a demosaic pipeline and does not try to be one.
package develop

import (
	"image"
	"image/color"
	"math"

	"github.com/rawkit/rawkit/colorspace"
	"github.com/rawkit/rawkit/rawimage"
)

// RenderSRGB converts img into an 8-bit sRGB image suitable for JPEG
// encoding as a DNG preview or thumbnail.
func RenderSRGB(img *rawimage.RawImage) *image.NRGBA {
	area := rawimage.Rect{X: 0, Y: 0, W: img.Width, H: img.Height}
	if img.ActiveArea != nil {
		area = *img.ActiveArea
	}

	cam2xyz := cameraToXYZ(img)
	wb := normalizedWB(img.WBCoeffs)

	switch {
	case img.Photometric == rawimage.PhotometricCFA && img.CFA != nil && img.CFA.Width == 2 && img.CFA.Height == 2:
		return demosaicCFA2x2(img, area, wb, cam2xyz)
	case img.CPP >= 3:
		return renderLinear(img, area, wb, cam2xyz)
	default:
		return renderGray(img, area)
	}
}

// cameraToXYZ inverts the camera's first reference color matrix (DNG's
// ColorMatrix is defined XYZ -> camera) to get the camera -> XYZ direction
// the develop pipeline actually needs. Absent any calibration, identity
// passes raw RGB straight through to the sRGB matrix.
func cameraToXYZ(img *rawimage.RawImage) colorspace.Matrix3x3 {
	if len(img.ColorMatrices) == 0 || len(img.ColorMatrices[0].Matrix) < 9 {
		return colorspace.Identity3x3()
	}
	vals := img.ColorMatrices[0].Matrix
	var m colorspace.Matrix3x3
	copy(m[:], vals[:9])
	return m.Inverse()
}

// normalizedWB turns the as-shot R/G1/B/G2 multipliers into an R,G,B
// triplet normalized so green is 1, defaulting to unity gain on NaN
// ("unknown").
func normalizedWB(coeffs [4]float64) [3]float64 {
	g := coeffs[1]
	if math.IsNaN(g) || g == 0 {
		g = 1
	}
	r, b := coeffs[0], coeffs[2]
	if math.IsNaN(r) {
		r = g
	}
	if math.IsNaN(b) {
		b = g
	}
	return [3]float64{r / g, 1, b / g}
}

func whiteLevelOf(img *rawimage.RawImage, c int) float64 {
	if c < len(img.WhiteLevel) && img.WhiteLevel[c] != 0 {
		return float64(img.WhiteLevel[c])
	}
	maxVal := (1 << uint(img.BPS)) - 1
	return float64(maxVal)
}

func sampleAt(img *rawimage.RawImage, idx int) float64 {
	if img.Data.Floats != nil {
		return float64(img.Data.Floats[idx])
	}
	return float64(img.Data.Ints[idx])
}

func normalize(v, black, white float64) float64 {
	if white <= black {
		return 0
	}
	n := (v - black) / (white - black)
	if n < 0 {
		n = 0
	}
	if n > 1 {
		n = 1
	}
	return n
}

func toRGB8(cam colorspace.Vector3, cam2xyz colorspace.Matrix3x3) (uint8, uint8, uint8) {
	xyz := cam2xyz.Apply(cam)
	linear := colorspace.XYZToSRGB.Apply(xyz)
	gammaed := colorspace.ApplySRGBGamma(linear)
	rgb := colorspace.ConvertToUint8(gammaed)
	return rgb[0], rgb[1], rgb[2]
}

// demosaicCFA2x2 averages each 2x2 Bayer cell into one RGB output
// pixel, halving both dimensions. Deliberately coarse: previews don't
// warrant a real demosaic.
func demosaicCFA2x2(img *rawimage.RawImage, area rawimage.Rect, wb [3]float64, cam2xyz colorspace.Matrix3x3) *image.NRGBA {
	outW, outH := area.W/2, area.H/2
	dst := image.NewNRGBA(image.Rect(0, 0, outW, outH))
	white := whiteLevelOf(img, 0)

	for by := 0; by < outH; by++ {
		for bx := 0; bx < outW; bx++ {
			var rSum, gSum, bSum float64
			gCount := 0
			for dy := 0; dy < 2; dy++ {
				for dx := 0; dx < 2; dx++ {
					row := area.Y + by*2 + dy
					col := area.X + bx*2 + dx
					if row >= img.Height || col >= img.Width {
						continue
					}
					idx := row*img.Width + col
					black := img.BlackLevel.At(row, col, 0).Float64()
					n := normalize(sampleAt(img, idx), black, white)
					switch img.CFA.ColorAt(row, col) {
					case rawimage.ColorRed:
						rSum += n * wb[0]
					case rawimage.ColorGreen, rawimage.ColorFujiGreen:
						gSum += n * wb[1]
						gCount++
					case rawimage.ColorBlue:
						bSum += n * wb[2]
					default:
						gSum += n * wb[1]
						gCount++
					}
				}
			}
			if gCount == 0 {
				gCount = 1
			}
			r, g, b := toRGB8(colorspace.Vector3{rSum, gSum / float64(gCount), bSum}, cam2xyz)
			dst.SetNRGBA(bx, by, rgba(r, g, b))
		}
	}
	return dst
}

// renderLinear handles cpp==3 (LinearRaw/sRAW) inputs directly, one output
// pixel per input pixel.
func renderLinear(img *rawimage.RawImage, area rawimage.Rect, wb [3]float64, cam2xyz colorspace.Matrix3x3) *image.NRGBA {
	dst := image.NewNRGBA(image.Rect(0, 0, area.W, area.H))
	whites := [3]float64{whiteLevelOf(img, 0), whiteLevelOf(img, 1), whiteLevelOf(img, 2)}

	for y := 0; y < area.H; y++ {
		row := area.Y + y
		for x := 0; x < area.W; x++ {
			col := area.X + x
			if row >= img.Height || col >= img.Width {
				continue
			}
			base := (row*img.Width + col) * img.CPP
			var cam colorspace.Vector3
			for c := 0; c < 3 && c < img.CPP; c++ {
				black := img.BlackLevel.At(row, col, c).Float64()
				cam[c] = normalize(sampleAt(img, base+c), black, whites[c]) * wb[c]
			}
			r, g, b := toRGB8(cam, cam2xyz)
			dst.SetNRGBA(x, y, rgba(r, g, b))
		}
	}
	return dst
}

// renderGray handles any other single-plane photometric (BlackIsZero) as
// neutral gray, with no color matrix to apply.
func renderGray(img *rawimage.RawImage, area rawimage.Rect) *image.NRGBA {
	dst := image.NewNRGBA(image.Rect(0, 0, area.W, area.H))
	white := whiteLevelOf(img, 0)
	for y := 0; y < area.H; y++ {
		row := area.Y + y
		for x := 0; x < area.W; x++ {
			col := area.X + x
			if row >= img.Height || col >= img.Width {
				continue
			}
			idx := (row*img.Width + col) * img.CPP
			black := img.BlackLevel.At(row, col, 0).Float64()
			n := normalize(sampleAt(img, idx), black, white)
			v := uint8(n*255 + 0.5)
			dst.SetNRGBA(x, y, rgba(v, v, v))
		}
	}
	return dst
}

func rgba(r, g, b uint8) color.NRGBA {
	return color.NRGBA{R: r, G: g, B: b, A: 255}
}

package develop

import (
	"testing"

	"github.com/rawkit/rawkit/rawimage"
	"github.com/rawkit/rawkit/tiff"
)

func bayerImage() *rawimage.RawImage {
	cfa, _ := rawimage.NewCFAFromString("RGGB", 2, 2)
	w, h := 4, 4
	data := make([]uint16, w*h)
	for i := range data {
		data[i] = 8192
	}
	return &rawimage.RawImage{
		Width: w, Height: h, CPP: 1, BPS: 14,
		Data:        rawimage.Data{Ints: data},
		CFA:         &cfa,
		Photometric: rawimage.PhotometricCFA,
		WBCoeffs:    [4]float64{2.0, 1.0, 1.5, 1.0},
		WhiteLevel:  []uint16{16383},
		BlackLevel: rawimage.BlackLevel{
			PatternW: 1, PatternH: 1, CPP: 1,
			Values: []tiff.Rational{{Num: 0, Denom: 1}},
		},
		ColorMatrices: []rawimage.ColorMatrix{{
			Illuminant: rawimage.IlluminantD65,
			Matrix: []float64{
				0.4124564, 0.3575761, 0.1804375,
				0.2126729, 0.7151522, 0.0721750,
				0.0193339, 0.1191920, 0.9503041,
			},
		}},
	}
}

func TestRenderSRGBBayerHalvesDimensions(t *testing.T) {
	img := bayerImage()
	out := RenderSRGB(img)
	if out.Bounds().Dx() != img.Width/2 || out.Bounds().Dy() != img.Height/2 {
		t.Fatalf("got %dx%d, want %dx%d", out.Bounds().Dx(), out.Bounds().Dy(), img.Width/2, img.Height/2)
	}
}

func TestRenderSRGBLinearFullResolution(t *testing.T) {
	w, h, cpp := 3, 2, 3
	data := make([]uint16, w*h*cpp)
	for i := range data {
		data[i] = 4096
	}
	img := &rawimage.RawImage{
		Width: w, Height: h, CPP: cpp, BPS: 14,
		Data:        rawimage.Data{Ints: data},
		Photometric: rawimage.PhotometricLinearRaw,
		WBCoeffs:    [4]float64{1, 1, 1, 1},
		WhiteLevel:  []uint16{16383, 16383, 16383},
	}
	out := RenderSRGB(img)
	if out.Bounds().Dx() != w || out.Bounds().Dy() != h {
		t.Fatalf("got %dx%d, want %dx%d", out.Bounds().Dx(), out.Bounds().Dy(), w, h)
	}
}

func TestRenderSRGBGrayFallback(t *testing.T) {
	w, h := 2, 2
	data := make([]uint16, w*h)
	for i := range data {
		data[i] = 12000
	}
	img := &rawimage.RawImage{
		Width: w, Height: h, CPP: 1, BPS: 14,
		Data:        rawimage.Data{Ints: data},
		Photometric: rawimage.PhotometricBlackIsZero,
		WhiteLevel:  []uint16{16383},
	}
	out := RenderSRGB(img)
	c := out.NRGBAAt(0, 0)
	if c.R != c.G || c.G != c.B {
		t.Fatalf("expected neutral gray, got %+v", c)
	}
}

package rawimage

import (
	"fmt"
	"math"

	"github.com/rawkit/rawkit/tiff"
)

// Photometric describes how to interpret the sample plane.
type Photometric int

const (
	PhotometricCFA Photometric = iota
	PhotometricLinearRaw
	PhotometricBlackIsZero
)

// Orientation is one of the eight EXIF orientation values.
type Orientation uint16

const (
	OrientationNormal     Orientation = 1
	OrientationFlipH      Orientation = 2
	OrientationRotate180  Orientation = 3
	OrientationFlipV      Orientation = 4
	OrientationTranspose  Orientation = 5
	OrientationRotate90   Orientation = 6
	OrientationTransverse Orientation = 7
	OrientationRotate270  Orientation = 8
)

// Rect is an origin+dimensions rectangle in sample coordinates.
type Rect struct {
	X, Y, W, H int
}

// Illuminant names a reference white a color matrix is defined under.
type Illuminant int

const (
	IlluminantUnknown Illuminant = iota
	IlluminantD50
	IlluminantD65
	IlluminantTungsten
	IlluminantFluorescent
	IlluminantDaylight
)

// ColorMatrix is a 3xN (N == cpp) illuminant -> camera matrix.
type ColorMatrix struct {
	Illuminant Illuminant
	Matrix     []float64 // row-major, 3*N entries
}

// BlackLevel is a (pattern_w x pattern_h x cpp) grid of rational black
// offsets.
type BlackLevel struct {
	PatternW, PatternH, CPP int
	Values                  []tiff.Rational // len == PatternW*PatternH*CPP
}

// At returns the black level for CFA position (row, col), component c.
// An empty grid reads as a zero black level.
func (b BlackLevel) At(row, col, c int) tiff.Rational {
	if len(b.Values) == 0 || b.PatternW == 0 || b.PatternH == 0 {
		return tiff.Rational{Num: 0, Denom: 1}
	}
	r :=((row % b.PatternH) + b.PatternH) % b.PatternH
	cc := ((col % b.PatternW) + b.PatternW) % b.PatternW
	idx := (r*b.PatternW+cc)*b.CPP + c
	return b.Values[idx]
}

// Shift re-roots the black-level grid at (x, y), for crop re-alignment,
// mirroring CFA.Shift.
func (b BlackLevel) Shift(x, y int) BlackLevel {
	out := BlackLevel{PatternW: b.PatternW, PatternH: b.PatternH, CPP: b.CPP, Values: make([]tiff.Rational, len(b.Values))}
	for row := 0; row < b.PatternH; row++ {
		for col := 0; col < b.PatternW; col++ {
			for c := 0; c < b.CPP; c++ {
				out.Values[(row*b.PatternW+col)*b.CPP+c] = b.At(row+y, col+x, c)
			}
		}
	}
	return out
}

// SampleCount reports the number of distinct black-level values carried.
func (b BlackLevel) SampleCount() int { return len(b.Values) }

// MaskedArea is a masked-sensor rectangle used to calibrate black level
// when the camera database supplies none.
type MaskedArea = Rect

// Data holds either 16-bit integer samples or float32 samples; exactly
// one is populated (floats only for floating-point DNG inputs).
type Data struct {
	Ints   []uint16
	Floats []float32
}

// Len returns the number of samples stored.
func (d Data) Len() int {
	if d.Floats != nil {
		return len(d.Floats)
	}
	return len(d.Ints)
}

// GPSInfo carries a decoder's GPS IFD read through to the DNG writer's own
// GPSInfo sub-IFD: latitude,
// longitude, and altitude as the EXIF GPS tag group's native
// degrees/minutes/seconds rationals, plus the UTC timestamp pair.
type GPSInfo struct {
	LatRef, LongRef string // "N"/"S", "E"/"W"
	Lat, Long       [3]tiff.Rational
	AltRef          byte
	Alt             tiff.Rational
	TimeStamp       [3]tiff.Rational
	DateStamp       string
}

// RawImage is the canonical in-memory raw. It is constructed by
// a decoder and is logically immutable afterward except via ApplyScaling.
type RawImage struct {
	Make, Model           string
	CleanMake, CleanModel string

	Width, Height int
	CPP           int
	BPS           int

	Data Data

	CFA *CFA // nil unless Photometric == PhotometricCFA

	WBCoeffs [4]float64 // R, G1, B, G2; NaN means unknown

	WhiteLevel []uint16 // len == CPP
	BlackLevel BlackLevel

	ActiveArea *Rect
	CropArea   *Rect
	BlackAreas []MaskedArea

	ColorMatrices []ColorMatrix

	Orientation Orientation
	Photometric Photometric
}

// Validate checks the construction invariants: buffer length, level
// counts, CFA/cpp consistency, rational denominators, area containment.
func (r *RawImage) Validate() error {
	if r.Data.Len() != r.Width*r.Height*r.CPP {
		return fmt.Errorf("rawimage: data length %d != %d*%d*%d", r.Data.Len(), r.Width, r.Height, r.CPP)
	}
	if r.CFA != nil && r.CPP != 1 {
		return fmt.Errorf("rawimage: cfa set but cpp=%d, want 1", r.CPP)
	}
	if n := r.BlackLevel.SampleCount(); n != 0 && n != r.CPP && n != r.BlackLevel.PatternW*r.BlackLevel.PatternH*r.CPP {
		return fmt.Errorf("rawimage: blacklevel sample count %d invalid for cpp=%d", n, r.CPP)
	}
	if len(r.WhiteLevel) != 0 && len(r.WhiteLevel) != r.CPP {
		return fmt.Errorf("rawimage: whitelevel length %d != cpp %d", len(r.WhiteLevel), r.CPP)
	}
	for _, bl := range r.BlackLevel.Values {
		if bl.Denom == 0 {
			return fmt.Errorf("rawimage: blacklevel rational with zero denominator")
		}
	}
	if r.ActiveArea != nil {
		if r.ActiveArea.X < 0 || r.ActiveArea.Y < 0 ||
			r.ActiveArea.X+r.ActiveArea.W > r.Width || r.ActiveArea.Y+r.ActiveArea.H > r.Height {
			return fmt.Errorf("rawimage: active area %+v outside bounds %dx%d", *r.ActiveArea, r.Width, r.Height)
		}
	}
	if r.ActiveArea != nil && r.CropArea != nil {
		a, c := *r.ActiveArea, *r.CropArea
		if c.X < a.X || c.Y < a.Y || c.X+c.W > a.X+a.W || c.Y+c.H > a.Y+a.H {
			return fmt.Errorf("rawimage: crop area %+v not within active area %+v", c, a)
		}
	}
	return nil
}

// ApplyScaling rewrites every sample so that
// sample' = clamp((sample - black) * (white / (white - black)), 0, white),
// then rewrites the stored black/white levels to {0, white}.
func (r *RawImage) ApplyScaling() {
	if r.CPP == 0 || len(r.WhiteLevel) != r.CPP {
		return
	}
	pw, ph := r.BlackLevel.PatternW, r.BlackLevel.PatternH
	if pw == 0 {
		pw = 1
	}
	if ph == 0 {
		ph = 1
	}

	for row := 0; row < r.Height; row++ {
		for col := 0; col < r.Width; col++ {
			for c := 0; c < r.CPP; c++ {
				idx := (row*r.Width+col)*r.CPP + c
				white := float64(r.WhiteLevel[c])
				black := r.BlackLevel.At(row, col, c).Float64()
				denom := white - black
				if denom == 0 {
					continue
				}
				scale := white / denom
				v := float64(r.sampleAt(idx))
				scaled := (v - black) * scale
				if scaled < 0 {
					scaled = 0
				}
				if scaled > white {
					scaled = white
				}
				r.setSampleAt(idx, scaled)
			}
		}
	}

	newBlack := make([]tiff.Rational, pw*ph*r.CPP)
	for i := range newBlack {
		newBlack[i] = tiff.Rational{Num: 0, Denom: 1}
	}
	r.BlackLevel = BlackLevel{PatternW: pw, PatternH: ph, CPP: r.CPP, Values: newBlack}
}

func (r *RawImage) sampleAt(idx int) float64 {
	if r.Data.Floats != nil {
		return float64(r.Data.Floats[idx])
	}
	return float64(r.Data.Ints[idx])
}

func (r *RawImage) setSampleAt(idx int, v float64) {
	if r.Data.Floats != nil {
		r.Data.Floats[idx] = float32(v)
		return
	}
	if v < 0 {
		v = 0
	}
	if v > math.MaxUint16 {
		v = math.MaxUint16
	}
	r.Data.Ints[idx] = uint16(v + 0.5)
}

// DevelopParams is the subset of metadata a develop pipeline needs to
// render a preview.
type DevelopParams struct {
	ColorMatrices []ColorMatrix
	WhiteLevel    []uint16
	BlackLevel    BlackLevel
	WBCoeffs      [4]float64
	ActiveArea    *Rect
	CropArea      *Rect
}

// DevelopParams extracts the fields a demosaic/develop pipeline needs.
func (r *RawImage) DevelopParams() DevelopParams {
	return DevelopParams{
		ColorMatrices: r.ColorMatrices,
		WhiteLevel:    r.WhiteLevel,
		BlackLevel:    r.BlackLevel,
		WBCoeffs:      r.WBCoeffs,
		ActiveArea:    r.ActiveArea,
		CropArea:      r.CropArea,
	}
}

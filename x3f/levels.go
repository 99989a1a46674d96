package x3f

import (
	"math"

	"github.com/rawkit/rawkit/colorspace"
)

// BlackLevels holds the per-plane dark level and its standard deviation
// measured over the sensor's shielded border regions.
type BlackLevels struct {
	Level colorspace.Vector3
	Dev   colorspace.Vector3
}

// darkAreas collects the shielded rectangles declared in CAMF, scaled
// to the decoded image size. DarkShieldBottom is unreliable on the DP2
// and the sd Quattro H and is skipped there.
func darkAreas(f *File, w, h uint32) [][4]uint32 {
	var areas [][4]uint32
	if x0, y0, x1, y1, ok := f.CAMFRectScaled("DarkShieldTop", w, h, true); ok {
		areas = append(areas, [4]uint32{x0, y0, x1, y1})
	}
	useBottom := true
	if model, ok := f.Property("CAMMODEL"); ok && model == "SIGMA DP2" {
		useBottom = false
	}
	if id, ok := f.CAMFUint32("CAMERAID"); ok && id == 0x10 {
		useBottom = false
	}
	if useBottom {
		if x0, y0, x1, y1, ok := f.CAMFRectScaled("DarkShieldBottom", w, h, true); ok {
			areas = append(areas, [4]uint32{x0, y0, x1, y1})
		}
	}
	if cr, ok := f.CAMFUint32Vector("DarkShieldColRange", 4); ok {
		if kx0, _, kx1, _, ok := f.CAMFRect("KeepImageArea"); ok {
			keepW := kx1 - kx0 + 1
			areas = append(areas,
				[4]uint32{cr[0] * w / keepW, 0, cr[1] * w / keepW, h - 1},
				[4]uint32{cr[2] * w / keepW, 0, cr[3] * w / keepW, h - 1})
		}
	}
	return areas
}

// MeasureBlackLevels averages the decoded section's shielded regions
// into per-plane black levels. It returns false when the calibration
// declares no usable region.
func MeasureBlackLevels(f *File, sec *ImageSection) (BlackLevels, bool) {
	var out BlackLevels
	w, h := sec.Width, sec.Height
	if sec.OutWidth != 0 {
		w, h = sec.OutWidth, sec.OutHeight
	}
	areas := darkAreas(f, w, h)
	if len(areas) == 0 || len(sec.Pixels) == 0 {
		return out, false
	}

	var sum [3]uint64
	var count uint64
	for _, a := range areas {
		for y := a[1]; y <= a[3] && y < h; y++ {
			for x := a[0]; x <= a[2] && x < w; x++ {
				idx := (int(y)*int(w) + int(x)) * 3
				for c := 0; c < 3; c++ {
					sum[c] += uint64(sec.Pixels[idx+c])
				}
				count++
			}
		}
	}
	if count == 0 {
		return out, false
	}
	for c := range out.Level {
		out.Level[c] = float64(sum[c]) / float64(count)
	}

	var sq colorspace.Vector3
	for _, a := range areas {
		for y := a[1]; y <= a[3] && y < h; y++ {
			for x := a[0]; x <= a[2] && x < w; x++ {
				idx := (int(y)*int(w) + int(x)) * 3
				for c := 0; c < 3; c++ {
					d := float64(sec.Pixels[idx+c]) - out.Level[c]
					sq[c] += d * d
				}
			}
		}
	}
	for c := range out.Dev {
		out.Dev[c] = math.Sqrt(sq[c] / float64(count))
	}
	return out, true
}

// WhiteLevels returns the per-plane saturation ceiling, defaulting to
// 12-bit full scale when the calibration carries none.
func WhiteLevels(f *File) [3]uint32 {
	if v, ok := f.MaxRaw(); ok {
		return v
	}
	return [3]uint32{4095, 4095, 4095}
}

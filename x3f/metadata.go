package x3f

import "github.com/rawkit/rawkit/colorspace"

// defaultWBGain is a measured DP2 Merrill daylight gain, used when the
// calibration block carries no white-balance tables at all.
var defaultWBGain = colorspace.Vector3{1.96768, 1.15026, 0.777087}

// CameraInfo bundles the identity and color calibration a raw consumer
// needs from one file.
type CameraInfo struct {
	Model  string
	Serial string

	ColorMatrix  colorspace.Matrix3x3 // raw -> XYZ
	WBGain       colorspace.Vector3
	WhiteBalance string

	BaselineExposure float64
}

// ExifInfo carries the capture parameters stored in CAMF.
type ExifInfo struct {
	Make         string
	Model        string
	FNumber      float64
	ExposureTime float64
	ISO          uint16
}

// ReadCameraInfo extracts the camera identity and color calibration for
// the given white-balance preset (empty means the as-shot preset).
func ReadCameraInfo(f *File, wb string) CameraInfo {
	if wb == "" {
		wb = f.WhiteBalanceName()
	}
	info := CameraInfo{
		Model:            "Sigma X3F",
		WhiteBalance:     wb,
		BaselineExposure: 1.0,
	}
	if model, ok := f.Property("CAMMODEL"); ok {
		info.Model = model
	}
	info.Serial, _ = f.Property("CAMSERIAL")
	if m, ok := f.ColorMatrix(wb); ok {
		info.ColorMatrix = m
	} else {
		info.ColorMatrix = colorspace.Identity3x3()
	}
	if gain, ok := f.WhiteBalanceGain(wb); ok {
		info.WBGain = gain
	} else {
		info.WBGain = defaultWBGain
	}
	return info
}

// ReadExifInfo extracts the capture parameters. The shutter value is
// stored as a reciprocal speed.
func ReadExifInfo(f *File) ExifInfo {
	exif := ExifInfo{Make: "SIGMA", Model: "Sigma X3F"}
	if model, ok := f.Property("CAMMODEL"); ok {
		exif.Model = model
	}
	if v, ok := f.CAMFFloat("CaptureAperture"); ok {
		exif.FNumber = v
	}
	if v, ok := f.CAMFFloat("CaptureShutter"); ok && v > 0 {
		exif.ExposureTime = 1 / v
	}
	if v, ok := f.CAMFFloat("CaptureISO"); ok {
		exif.ISO = uint16(v)
	}
	return exif
}

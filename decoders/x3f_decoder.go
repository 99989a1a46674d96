package decoders

import (
	"errors"
	"image"
	"math"

	"github.com/rawkit/rawkit/bytesource"
	"github.com/rawkit/rawkit/cameradb"
	"github.com/rawkit/rawkit/internal/rawerr"
	"github.com/rawkit/rawkit/rawimage"
	"github.com/rawkit/rawkit/tiff"
	"github.com/rawkit/rawkit/x3f"
)

var errNoRawSection = errors.New("no raw image section found")

// x3fDecoder reads Sigma/Foveon X3F files through package x3f. The
// stacked Foveon sensor yields three full-resolution planes, so the
// result is a cpp=3 LinearRaw image — there is no mosaic to describe
// and no demosaic to run. Black levels come from the shielded border
// regions declared in the file's calibration block, white levels from
// its saturation tables.
type x3fDecoder struct {
	camDB *cameradb.DB
}

func newX3FDecoder(camDB *cameradb.DB) *x3fDecoder {
	return &x3fDecoder{camDB: camDB}
}

func (d *x3fDecoder) open(src *bytesource.Source) (*x3f.File, error) {
	f, err := x3f.OpenFromReaderAt(src, src.Size())
	if err != nil {
		return nil, rawerr.Fail("x3f", "open container", err)
	}
	return f, nil
}

// rawImageSection loads the image sections and returns the largest one,
// which is the sensor plane (smaller sections are previews).
func (d *x3fDecoder) rawImageSection(f *x3f.File) (*x3f.ImageSection, error) {
	if err := f.LoadSection(x3f.SectionImage); err != nil {
		return nil, rawerr.Fail("x3f", "load image section", err)
	}
	var best *x3f.ImageSection
	var bestPixels uint64
	for _, sec := range f.Images {
		px := uint64(sec.Width) * uint64(sec.Height)
		if px > bestPixels {
			best, bestPixels = sec, px
		}
	}
	if best == nil {
		return nil, rawerr.Fail("x3f", "locate raw image section", errNoRawSection)
	}
	return best, nil
}

func (d *x3fDecoder) lookupCamera(f *x3f.File) (string, cameradb.Camera) {
	model, _ := f.Property("CAMMODEL")
	if model == "" {
		model = "Sigma X3F"
	}
	cam := cameradb.Camera{Make: "Sigma", Model: model, CleanMake: "Sigma", CleanModel: model}
	if d.camDB != nil {
		if found, ok := d.camDB.Lookup("Sigma", model, ""); ok {
			cam = found
		}
	}
	return model, cam
}

func (d *x3fDecoder) RawImage(src *bytesource.Source, params RawDecodeParams, dummy bool) (*rawimage.RawImage, error) {
	f, err := d.open(src)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	section, err := d.rawImageSection(f)
	if err != nil {
		return nil, err
	}

	width, height := int(section.Width), int(section.Height)
	samples := make([]uint16, width*height*3)
	if !dummy {
		if err := section.Decode(); err != nil {
			return nil, rawerr.Fail("x3f", "decode sensor planes", err)
		}
		width, height = int(section.OutWidth), int(section.OutHeight)
		samples = section.Pixels
	}

	_, cam := d.lookupCamera(f)
	info := x3f.ReadCameraInfo(f, "")

	img := &rawimage.RawImage{
		Make:        cam.Make,
		Model:       cam.Model,
		CleanMake:   cam.CleanMake,
		CleanModel:  cam.CleanModel,
		Width:       width,
		Height:      height,
		CPP:         3,
		BPS:         16,
		Data:        rawimage.Data{Ints: samples},
		WBCoeffs:    [4]float64{info.WBGain[0], info.WBGain[1], info.WBGain[2], info.WBGain[1]},
		Photometric: rawimage.PhotometricLinearRaw,
		Orientation: rawimage.OrientationNormal,
	}
	img.ColorMatrices = append(img.ColorMatrices, rawimage.ColorMatrix{
		Illuminant: rawimage.IlluminantD65,
		Matrix:     info.ColorMatrix[:],
	})

	white := x3f.WhiteLevels(f)
	img.WhiteLevel = make([]uint16, 3)
	for c := range img.WhiteLevel {
		v := white[c]
		if v > math.MaxUint16 {
			v = math.MaxUint16
		}
		img.WhiteLevel[c] = uint16(v)
	}
	if levels, ok := x3f.MeasureBlackLevels(f, section); ok {
		vals := make([]tiff.Rational, 3)
		for c := range vals {
			vals[c] = tiff.Rational{Num: uint32(levels.Level[c]*256 + 0.5), Denom: 256}
		}
		img.BlackLevel = rawimage.BlackLevel{PatternW: 1, PatternH: 1, CPP: 3, Values: vals}
	}
	if x0, y0, x1, y1, ok := f.ActiveArea(); ok && int(x1) < width && int(y1) < height {
		img.ActiveArea = &rawimage.Rect{X: int(x0), Y: int(y0), W: int(x1-x0) + 1, H: int(y1-y0) + 1}
	}

	applyCameraCalibration(img, cam)
	return img, nil
}

func (d *x3fDecoder) RawMetadata(src *bytesource.Source, params RawDecodeParams) (*RawMetadata, error) {
	f, err := d.open(src)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	_, cam := d.lookupCamera(f)
	return &RawMetadata{
		Make:        cam.Make,
		Model:       cam.Model,
		CleanMake:   cam.CleanMake,
		CleanModel:  cam.CleanModel,
		Camera:      cam,
		Exif:        map[tiff.Tag]tiff.Value{},
		Orientation: rawimage.OrientationNormal,
	}, nil
}

func (d *x3fDecoder) RawImageCount() int { return 1 }

func (d *x3fDecoder) FullImage(src *bytesource.Source) (image.Image, error)      { return nil, nil }
func (d *x3fDecoder) PreviewImage(src *bytesource.Source) (image.Image, error)   { return nil, nil }
func (d *x3fDecoder) ThumbnailImage(src *bytesource.Source) (image.Image, error) { return nil, nil }

func (d *x3fDecoder) PopulateDNGRoot(src *bytesource.Source, root *VirtualIFD) error { return nil }
func (d *x3fDecoder) PopulateDNGExif(src *bytesource.Source, exif *VirtualIFD) error { return nil }

func (d *x3fDecoder) FormatHint() string { return "X3F" }

func (d *x3fDecoder) FormatDump(src *bytesource.Source) map[string]any {
	f, err := d.open(src)
	if err != nil {
		return map[string]any{"format": "X3F", "error": err.Error()}
	}
	defer f.Close()
	model, _ := f.Property("CAMMODEL")
	dump := map[string]any{
		"format":   "X3F",
		"model":    model,
		"version":  f.Header.Version,
		"sections": len(f.Directory),
	}
	exif := x3f.ReadExifInfo(f)
	if exif.FNumber != 0 {
		dump["fnumber"] = exif.FNumber
	}
	if exif.ISO != 0 {
		dump["iso"] = exif.ISO
	}
	return dump
}

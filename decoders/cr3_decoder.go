package decoders

import (
	"image"

	"github.com/rawkit/rawkit/bmff"
	"github.com/rawkit/rawkit/bytesource"
	"github.com/rawkit/rawkit/cameradb"
	"github.com/rawkit/rawkit/internal/rawerr"
	"github.com/rawkit/rawkit/rawimage"
	"github.com/rawkit/rawkit/tiff"
	"github.com/rawkit/rawkit/vendorcodec"
)

// cr3Decoder walks the ISO-BMFF box tree to find the CRAW
// sample entry's CMP1 compression parameters and the mdat payload, then
// hands both to vendorcodec.DecodeCRXLevel0. CR3 has no
// top-level TIFF IFD chain of its own, so unlike every other format this
// decoder does not build on tiffDecoder.
type cr3Decoder struct {
	camDB *cameradb.DB
}

func newCR3Decoder(camDB *cameradb.DB) *cr3Decoder {
	return &cr3Decoder{camDB: camDB}
}

func (d *cr3Decoder) boxes(src *bytesource.Source) ([]bmff.Box, error) {
	full, err := src.AsVec()
	if err != nil {
		return nil, rawerr.Fail("CR3", "read container", err)
	}
	boxes, err := bmff.Parse(full)
	if err != nil {
		return nil, rawerr.Fail("CR3", "parse ISO-BMFF boxes", err)
	}
	return boxes, nil
}

// findCRAW descends moov/trak/mdia/minf/stbl/stsd to the CRAW sample
// entry box, returning its CMP1 child's parsed parameters.
func findCRAW(boxes []bmff.Box) (bmff.CompressionParams, bool) {
	moov, ok := bmff.Find(boxes, "moov")
	if !ok {
		return bmff.CompressionParams{}, false
	}
	moovChildren := moov.Children
	for _, trak := range bmff.FindAll(moovChildren, "trak") {
		mdia, ok := bmff.Find(trak.Children, "mdia")
		if !ok {
			continue
		}
		minf, ok := bmff.Find(mdia.Children, "minf")
		if !ok {
			continue
		}
		stbl, ok := bmff.Find(minf.Children, "stbl")
		if !ok {
			continue
		}
		stsd, ok := bmff.Find(stbl.Children, "stsd")
		if !ok {
			continue
		}
		craw, ok := bmff.Find(stsd.Children, "CRAW")
		if !ok {
			continue
		}
		cmp1, ok := bmff.Find(craw.Children, "CMP1")
		if !ok {
			continue
		}
		params, err := bmff.ParseCMP1(cmp1.Payload)
		if err != nil {
			continue
		}
		return params, true
	}
	return bmff.CompressionParams{}, false
}

func (d *cr3Decoder) RawImage(src *bytesource.Source, params RawDecodeParams, dummy bool) (*rawimage.RawImage, error) {
	boxes, err := d.boxes(src)
	if err != nil {
		return nil, err
	}
	cmp1, ok := findCRAW(boxes)
	if !ok {
		return nil, rawerr.Fail("CR3", "locate CRAW/CMP1", errNoRawSection)
	}
	mdatBox, ok := bmff.Find(boxes, "mdat")
	if !ok {
		return nil, rawerr.Fail("CR3", "locate mdat", errNoRawSection)
	}

	width, height := int(cmp1.FrameWidth), int(cmp1.FrameHeight)
	var samples []uint16
	if dummy {
		samples = make([]uint16, width*height)
	} else {
		samples, err = vendorcodec.DecodeCRXLevel0(mdatBox.Payload, cmp1)
		if err != nil {
			return nil, err
		}
	}

	cam := d.resolveCamera(boxes)
	img := &rawimage.RawImage{
		Make:        cam.Make,
		Model:       cam.Model,
		CleanMake:   cam.CleanMake,
		CleanModel:  cam.CleanModel,
		Width:       width,
		Height:      height,
		CPP:         1,
		BPS:         int(cmp1.NBits),
		Data:        rawimage.Data{Ints: samples},
		Photometric: rawimage.PhotometricCFA,
		Orientation: rawimage.OrientationNormal,
	}
	applyCameraCalibration(img, cam)
	return img, nil
}

// resolveCamera looks up make "Canon" with an empty model in the camera
// database and returns that record when present, otherwise a bare
// "Canon" record with an empty model. The Make/Model text the CR3
// container itself carries is not read.
func (d *cr3Decoder) resolveCamera(boxes []bmff.Box) cameradb.Camera {
	cam := cameradb.Camera{Make: "Canon", CleanMake: "Canon"}
	if d.camDB != nil {
		if found, ok := d.camDB.Lookup("Canon", cam.Model, ""); ok {
			cam = found
		}
	}
	return cam
}

func (d *cr3Decoder) RawMetadata(src *bytesource.Source, params RawDecodeParams) (*RawMetadata, error) {
	boxes, err := d.boxes(src)
	if err != nil {
		return nil, err
	}
	cam := d.resolveCamera(boxes)
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

func (d *cr3Decoder) RawImageCount() int { return 1 }

func (d *cr3Decoder) FullImage(src *bytesource.Source) (image.Image, error) {
	boxes, err := d.boxes(src)
	if err != nil {
		return nil, nil
	}
	if xmp, ok := bmff.XMPFromUUID(boxes); ok && len(xmp) > 0 {
		return nil, nil // XMP carries no decodable raster.
	}
	return nil, nil
}

func (d *cr3Decoder) PreviewImage(src *bytesource.Source) (image.Image, error)   { return d.FullImage(src) }
func (d *cr3Decoder) ThumbnailImage(src *bytesource.Source) (image.Image, error) { return d.FullImage(src) }

func (d *cr3Decoder) PopulateDNGRoot(src *bytesource.Source, root *VirtualIFD) error { return nil }
func (d *cr3Decoder) PopulateDNGExif(src *bytesource.Source, exif *VirtualIFD) error { return nil }

func (d *cr3Decoder) FormatHint() string { return "CR3" }

func (d *cr3Decoder) FormatDump(src *bytesource.Source) map[string]any {
	boxes, err := d.boxes(src)
	if err != nil {
		return map[string]any{"format": "CR3", "error": err.Error()}
	}
	cmp1, ok := findCRAW(boxes)
	dump := map[string]any{"format": "CR3"}
	if ok {
		dump["width"] = cmp1.FrameWidth
		dump["height"] = cmp1.FrameHeight
		dump["nbits"] = cmp1.NBits
		dump["levels"] = cmp1.ImageLevels
	}
	return dump
}

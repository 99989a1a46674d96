package decoders

import (
	"image"

	"github.com/rawkit/rawkit/bytesource"
	"github.com/rawkit/rawkit/cameradb"
	"github.com/rawkit/rawkit/rawimage"
	"github.com/rawkit/rawkit/tiff"
	"github.com/rawkit/rawkit/vendorcodec"
)

// quickTakeDecoder handles Apple's QuickTake 100/150/200 container, a
// fixed-layout header format with no IFD chain at all: a
// 4-byte magic, a metadata block at a constant offset giving width,
// height, and a hint that selects the sample-data offset, followed
// either by the QuickTake 100's dedicated predictive codec or by the 150
// and 200's shared RADC entropy stream.
type quickTakeDecoder struct {
	camDB *cameradb.DB
}

func newQuickTakeDecoder(camDB *cameradb.DB) *quickTakeDecoder {
	return &quickTakeDecoder{camDB: camDB}
}

const quickTakeMetaOffset = 544

type quickTakeMeta struct {
	magic       string
	width       int
	height      int
	dataOffset  int64
	orientation rawimage.Orientation
}

func (d *quickTakeDecoder) readMeta(src *bytesource.Source) (quickTakeMeta, error) {
	magic, err := src.Subview(0, 4)
	if err != nil {
		return quickTakeMeta{}, err
	}
	meta, err := src.Subview(quickTakeMetaOffset, 16)
	if err != nil {
		return quickTakeMeta{}, err
	}
	height := int(be16(meta[0:2]))
	width := int(be16(meta[2:4]))
	hint := be16(meta[10:12])
	offset := int64(736)
	if hint == 30 {
		offset = 738
	}

	orientation := rawimage.OrientationNormal
	if height > width {
		width, height = height, width
		info, err := src.Subview(offset-6, 6)
		if err == nil && be16(info[0:2])&3 == 0 {
			orientation = rawimage.OrientationRotate90
		} else {
			orientation = rawimage.OrientationRotate270
		}
	}

	return quickTakeMeta{
		magic:       string(magic),
		width:       width,
		height:      height,
		dataOffset:  offset,
		orientation: orientation,
	}, nil
}

func be16(b []byte) uint16 { return uint16(b[0])<<8 | uint16(b[1]) }

func (d *quickTakeDecoder) modelName(magic string, src *bytesource.Source) string {
	switch magic {
	case "qktk":
		return "QuickTake 100"
	case "qktn":
		tail, err := src.Subview(0, 6)
		if err == nil && tail[5] != 0 {
			return "QuickTake 200"
		}
		return "QuickTake 150"
	default:
		return "QuickTake"
	}
}

func (d *quickTakeDecoder) resolveCamera(model string) cameradb.Camera {
	cam := cameradb.Camera{Make: "Apple", Model: model, CleanMake: "Apple", CleanModel: model}
	if d.camDB != nil {
		if found, ok := d.camDB.Lookup("Apple", model, ""); ok {
			return found
		}
	}
	return cam
}

func (d *quickTakeDecoder) RawImage(src *bytesource.Source, params RawDecodeParams, dummy bool) (*rawimage.RawImage, error) {
	meta, err := d.readMeta(src)
	if err != nil {
		return nil, err
	}

	var samples []uint16
	if dummy {
		samples = make([]uint16, meta.width*meta.height)
	} else {
		body := src.SubviewPaddedUntilEOF(meta.dataOffset)
		switch meta.magic {
		case "qktk":
			samples = vendorcodec.DecodeQuickTake100(body, meta.width, meta.height)
		default:
			samples = vendorcodec.DecodeRADC(body, meta.width, meta.height, 3)
		}
	}

	cam := d.resolveCamera(d.modelName(meta.magic, src))
	img := &rawimage.RawImage{
		Make:        cam.Make,
		Model:       cam.Model,
		CleanMake:   cam.CleanMake,
		CleanModel:  cam.CleanModel,
		Width:       meta.width,
		Height:      meta.height,
		CPP:         1,
		BPS:         10,
		Data:        rawimage.Data{Ints: samples},
		Photometric: rawimage.PhotometricCFA,
		Orientation: meta.orientation,
	}
	applyCameraCalibration(img, cam)
	return img, nil
}

func (d *quickTakeDecoder) RawMetadata(src *bytesource.Source, params RawDecodeParams) (*RawMetadata, error) {
	meta, err := d.readMeta(src)
	if err != nil {
		return nil, err
	}
	cam := d.resolveCamera(d.modelName(meta.magic, src))
	return &RawMetadata{
		Make:        cam.Make,
		Model:       cam.Model,
		CleanMake:   cam.CleanMake,
		CleanModel:  cam.CleanModel,
		Camera:      cam,
		Exif:        map[tiff.Tag]tiff.Value{},
		Orientation: meta.orientation,
	}, nil
}

func (d *quickTakeDecoder) RawImageCount() int { return 1 }

func (d *quickTakeDecoder) FullImage(src *bytesource.Source) (image.Image, error)      { return nil, nil }
func (d *quickTakeDecoder) PreviewImage(src *bytesource.Source) (image.Image, error)   { return nil, nil }
func (d *quickTakeDecoder) ThumbnailImage(src *bytesource.Source) (image.Image, error) { return nil, nil }

func (d *quickTakeDecoder) PopulateDNGRoot(src *bytesource.Source, root *VirtualIFD) error { return nil }
func (d *quickTakeDecoder) PopulateDNGExif(src *bytesource.Source, exif *VirtualIFD) error { return nil }

func (d *quickTakeDecoder) FormatHint() string { return "QuickTake" }

func (d *quickTakeDecoder) FormatDump(src *bytesource.Source) map[string]any {
	meta, err := d.readMeta(src)
	if err != nil {
		return map[string]any{"format": "QuickTake", "error": err.Error()}
	}
	return map[string]any{
		"format": "QuickTake",
		"model":  d.modelName(meta.magic, src),
		"width":  meta.width,
		"height": meta.height,
	}
}

package decoders

import (
	"bytes"
	"fmt"
	"image"
	"image/jpeg"
	"strings"

	"github.com/rwcarlsen/goexif/exif"

	"github.com/rawkit/rawkit/bytesource"
	"github.com/rawkit/rawkit/cameradb"
	"github.com/rawkit/rawkit/internal/rawerr"
	"github.com/rawkit/rawkit/internal/rlog"
	"github.com/rawkit/rawkit/lensdb"
	"github.com/rawkit/rawkit/rawimage"
	"github.com/rawkit/rawkit/tiff"
)

// Common TIFF/EXIF tag numbers the engine reads directly.
const (
	tagNewSubfileType  tiff.Tag = 254
	tagImageWidth      tiff.Tag = 256
	tagImageHeight     tiff.Tag = 257
	tagBitsPerSample   tiff.Tag = 258
	tagCompression     tiff.Tag = 259
	tagMake            tiff.Tag = 271
	tagModel           tiff.Tag = 272
	tagStripOffsets    tiff.Tag = 273
	tagOrientation     tiff.Tag = 274
	tagSamplesPerPixel tiff.Tag = 277
	tagRowsPerStrip    tiff.Tag = 278
	tagStripByteCounts tiff.Tag = 279
	tagPlanarConfig    tiff.Tag = 284
	tagCFAPattern      tiff.Tag = 33422
	tagDNGVersion      tiff.Tag = 50706
	tagTileOffsets     tiff.Tag = 324
	tagTileByteCounts  tiff.Tag = 325
	tagTileWidth       tiff.Tag = 322
	tagTileLength      tiff.Tag = 323
)

// openTIFFReader builds a tiff.Reader over the whole file, base offset
// 0, no offset correction — the shape every TIFF-family vendor shares
// (makernote-relative offsets are handled per-decoder where that
// vendor's makernote needs an offsetCorr, via a second Reader).
func openTIFFReader(src *bytesource.Source) (*tiff.Reader, error) {
	return tiff.NewReader(src, 0, 0, nil, rlog.NewNop())
}

// tiffDecoder is the shared engine most TIFF-rooted vendors plug into:
// it owns the parsed IFD chain, the resolved camera record, and the
// per-format sample decode strategy. New(format) constructors in
// formats.go configure one of these rather than hand-rolling IFD
// traversal again per vendor.
type tiffDecoder struct {
	format FormatID
	camDB  *cameradb.DB
	lensDB []lensdb.LensDescription

	decodeSamples sampleDecodeFunc
}

// sampleDecodeFunc decodes one raw IFD's sample plane into samples
// (row-major, cpp-interleaved) given the resolved reader/IFD/camera.
type sampleDecodeFunc func(d *tiffDecoder, src *bytesource.Source, reader *tiff.Reader, rawIFD *tiff.IFD, cam cameradb.Camera) ([]uint16, int, int, int, error)

func newTIFFDecoder(format FormatID, camDB *cameradb.DB, lensDB []lensdb.LensDescription, decode sampleDecodeFunc) *tiffDecoder {
	return &tiffDecoder{format: format, camDB: camDB, lensDB: lensDB, decodeSamples: decode}
}

// parse re-walks src's IFD chain (TIFF parsing is cheap relative to
// pixel decode, and keeping no long-lived reader state means RawImage/
// RawMetadata/FullImage can all be called independently and repeatedly
// against the same immutable file).
func (d *tiffDecoder) parse(src *bytesource.Source) (*tiff.Reader, []*tiff.IFD, error) {
	reader, err := openTIFFReader(src)
	if err != nil {
		return nil, nil, err
	}
	first, err := reader.FirstIFDOffset()
	if err != nil {
		return nil, nil, err
	}
	chain, err := reader.ReadChain(first)
	if err != nil {
		return nil, nil, err
	}
	if len(chain) == 0 {
		return nil, nil, fmt.Errorf("decoders: %s: empty IFD chain", d.format)
	}
	return reader, chain, nil
}

// findRawIFD locates the IFD carrying the sensor sample plane: among the
// IFDs (in root chain or SubIFDs) that have StripOffsets or TileOffsets,
// the one with the largest pixel count (the full-resolution plane, not an
// embedded preview/thumbnail IFD); on a tie the first one found wins.
func findRawIFD(chain []*tiff.IFD) *tiff.IFD {
	var best *tiff.IFD
	var bestPixels uint64
	var walk func(ifd *tiff.IFD)
	walk = func(ifd *tiff.IFD) {
		_, hasStrips := ifd.GetEntry(tagStripOffsets)
		_, hasTiles := ifd.GetEntry(tagTileOffsets)
		if hasStrips || hasTiles {
			w, _ := entryUint(ifd, tagImageWidth)
			h, _ := entryUint(ifd, tagImageHeight)
			px := uint64(w) * uint64(h)
			if px > bestPixels {
				best, bestPixels = ifd, px
			}
		}
		for _, subs := range ifd.SubIFDs {
			for _, s := range subs {
				walk(s)
			}
		}
	}
	for _, ifd := range chain {
		walk(ifd)
	}
	return best
}

func entryUint(ifd *tiff.IFD, tag tiff.Tag) (uint32, bool) {
	e, ok := ifd.GetEntry(tag)
	if !ok {
		return 0, false
	}
	return e.Value.AsUint()
}

func entryString(ifd *tiff.IFD, tag tiff.Tag) string {
	e, ok := ifd.GetEntry(tag)
	if !ok {
		return ""
	}
	return strings.TrimRight(e.Value.Ascii, "\x00")
}

// resolveCamera looks up the camera database entry for the root IFD's
// Make/Model, falling back to a bare record built from the tags
// themselves when the database has no matching entry.
func (d *tiffDecoder) resolveCamera(root *tiff.IFD, mode string) cameradb.Camera {
	make_ := entryString(root, tagMake)
	model := entryString(root, tagModel)
	if d.camDB != nil {
		if cam, ok := d.camDB.Lookup(make_, model, mode); ok {
			return cam
		}
	}
	return cameradb.Camera{Make: make_, Model: model, Mode: mode, CleanMake: make_, CleanModel: model}
}

func (d *tiffDecoder) RawImage(src *bytesource.Source, params RawDecodeParams, dummy bool) (*rawimage.RawImage, error) {
	reader, chain, err := d.parse(src)
	if err != nil {
		return nil, err
	}
	root := chain[0]
	rawIFD := findRawIFD(chain)
	if rawIFD == nil {
		return nil, rawerr.Fail(string(d.format), "locate raw IFD", fmt.Errorf("no strip/tile offsets found"))
	}
	cam := d.resolveCamera(root, "")

	var samples []uint16
	var width, height, cpp int
	if dummy {
		w, _ := entryUint(rawIFD, tagImageWidth)
		h, _ := entryUint(rawIFD, tagImageHeight)
		width, height, cpp = int(w), int(h), 1
		samples = make([]uint16, width*height*cpp)
	} else {
		samples, width, height, cpp, err = d.decodeSamples(d, src, reader, rawIFD, cam)
		if err != nil {
			return nil, err
		}
	}

	photometric := rawimage.PhotometricCFA
	if cpp >= 3 {
		photometric = rawimage.PhotometricLinearRaw
	}
	bps := 16
	if e, ok := rawIFD.GetEntry(tagBitsPerSample); ok {
		if vs := e.Value.AsUints(); len(vs) > 0 && vs[0] > 0 {
			bps = int(vs[0])
		}
	}
	if cam.BPS != 0 {
		bps = cam.BPS
	}

	img := &rawimage.RawImage{
		Make:        cam.Make,
		Model:       cam.Model,
		CleanMake:   cam.CleanMake,
		CleanModel:  cam.CleanModel,
		Width:       width,
		Height:      height,
		CPP:         cpp,
		BPS:         bps,
		Data:        rawimage.Data{Ints: samples},
		Photometric: photometric,
		Orientation: orientationFromIFD(root),
	}
	applyCameraCalibration(img, cam)
	return img, nil
}

func orientationFromIFD(ifd *tiff.IFD) rawimage.Orientation {
	if v, ok := entryUint(ifd, tagOrientation); ok && v >= 1 && v <= 8 {
		return rawimage.Orientation(v)
	}
	return rawimage.OrientationNormal
}

// applyCameraCalibration fills in CFA pattern, white/black levels, and
// active/crop areas from the resolved camera record.
func applyCameraCalibration(img *rawimage.RawImage, cam cameradb.Camera) {
	if img.CPP == 1 && cam.CFA != "" {
		w, h := 2, 2
		if len(cam.CFA) == 36 {
			w, h = 6, 6
		}
		if cfa, err := rawimage.NewCFAFromString(cam.CFA, w, h); err == nil {
			img.CFA = &cfa
		}
	}
	if cam.Whitepoint != nil {
		wl := uint16(*cam.Whitepoint)
		img.WhiteLevel = make([]uint16, img.CPP)
		for i := range img.WhiteLevel {
			img.WhiteLevel[i] = wl
		}
	}
	if cam.Blackpoint != nil {
		vals := make([]tiff.Rational, img.CPP)
		for i := range vals {
			vals[i] = tiff.Rational{Num: uint32(*cam.Blackpoint), Denom: 1}
		}
		img.BlackLevel = rawimage.BlackLevel{PatternW: 1, PatternH: 1, CPP: img.CPP, Values: vals}
	}
	if len(cam.ActiveArea) == 4 {
		img.ActiveArea = &rawimage.Rect{X: cam.ActiveArea[0], Y: cam.ActiveArea[1], W: cam.ActiveArea[2], H: cam.ActiveArea[3]}
	}
	if len(cam.CropArea) == 4 {
		img.CropArea = &rawimage.Rect{X: cam.CropArea[0], Y: cam.CropArea[1], W: cam.CropArea[2], H: cam.CropArea[3]}
	}
	for illum, matrix := range cam.ColorMatrix {
		img.ColorMatrices = append(img.ColorMatrices, rawimage.ColorMatrix{Illuminant: illum, Matrix: matrix})
	}
}

func (d *tiffDecoder) RawMetadata(src *bytesource.Source, params RawDecodeParams) (*RawMetadata, error) {
	_, chain, err := d.parse(src)
	if err != nil {
		return nil, err
	}
	root := chain[0]
	cam := d.resolveCamera(root, "")

	exif := map[tiff.Tag]tiff.Value{}
	for _, tag := range root.EntryTags() {
		if e, ok := root.GetEntry(tag); ok {
			exif[tag] = e.Value
		}
	}
	for _, subs := range root.SubIFDs[34665] { // ExifIFDPointer
		for _, tag := range subs.EntryTags() {
			if e, ok := subs.GetEntry(tag); ok {
				exif[tag] = e.Value
			}
		}
	}

	return &RawMetadata{
		Make:        cam.Make,
		Model:       cam.Model,
		CleanMake:   cam.CleanMake,
		CleanModel:  cam.CleanModel,
		Camera:      cam,
		Exif:        exif,
		Orientation: orientationFromIFD(root),
		GPS:         gpsFromIFD(root),
	}, nil
}

// GPS IFD tag numbers.
const (
	tagGPSLatitudeRef  tiff.Tag = 1
	tagGPSLatitude     tiff.Tag = 2
	tagGPSLongitudeRef tiff.Tag = 3
	tagGPSLongitude    tiff.Tag = 4
	tagGPSAltitudeRef  tiff.Tag = 5
	tagGPSAltitude     tiff.Tag = 6
	tagGPSTimeStamp    tiff.Tag = 7
	tagGPSDateStamp    tiff.Tag = 29
)

// gpsFromIFD reads root's GPSInfo sub-IFD (34853), if any, into the
// shared rawimage.GPSInfo shape the DNG writer's GPSInfo sub-IFD
// consumes.
func gpsFromIFD(root *tiff.IFD) *rawimage.GPSInfo {
	subs := root.SubIFDs[34853]
	if len(subs) == 0 {
		return nil
	}
	gps := subs[0]
	info := &rawimage.GPSInfo{}
	if e, ok := gps.GetEntry(tagGPSLatitudeRef); ok {
		info.LatRef = e.Value.Ascii
	}
	if e, ok := gps.GetEntry(tagGPSLongitudeRef); ok {
		info.LongRef = e.Value.Ascii
	}
	if e, ok := gps.GetEntry(tagGPSLatitude); ok {
		copy(info.Lat[:], e.Value.AsRationals())
	}
	if e, ok := gps.GetEntry(tagGPSLongitude); ok {
		copy(info.Long[:], e.Value.AsRationals())
	}
	if v, ok := entryUint(gps, tagGPSAltitudeRef); ok {
		info.AltRef = byte(v)
	}
	if e, ok := gps.GetEntry(tagGPSAltitude); ok {
		if rs := e.Value.AsRationals(); len(rs) > 0 {
			info.Alt = rs[0]
		}
	}
	if e, ok := gps.GetEntry(tagGPSTimeStamp); ok {
		copy(info.TimeStamp[:], e.Value.AsRationals())
	}
	if e, ok := gps.GetEntry(tagGPSDateStamp); ok {
		info.DateStamp = e.Value.Ascii
	}
	if info.LatRef == "" && info.LongRef == "" && info.DateStamp == "" {
		return nil
	}
	return info
}

func (d *tiffDecoder) RawImageCount() int { return 1 }

// thumbnailIFD finds the first SubIFD (or root entry) whose Compression
// is JPEG (6) — the conventional embedded-preview slot most TIFF-family
// vendors use for both the small thumbnail and a larger full-size
// preview.
func thumbnailIFD(chain []*tiff.IFD) *tiff.IFD {
	var found *tiff.IFD
	var walk func(ifd *tiff.IFD)
	walk = func(ifd *tiff.IFD) {
		if v, ok := entryUint(ifd, tagCompression); ok && v == 6 && found == nil {
			found = ifd
		}
		for _, subs := range ifd.SubIFDs {
			for _, s := range subs {
				walk(s)
			}
		}
	}
	for _, ifd := range chain {
		walk(ifd)
	}
	return found
}

// embeddedJPEGBytes returns the raw bytes of the JPEG stream ifd's
// strip tags point at, or nil when the IFD carries none.
func embeddedJPEGBytes(src *bytesource.Source, ifd *tiff.IFD) ([]byte, error) {
	offE, ok := ifd.GetEntry(tagStripOffsets)
	if !ok {
		return nil, nil
	}
	lenE, ok := ifd.GetEntry(tagStripByteCounts)
	if !ok {
		return nil, nil
	}
	offs, lens := offE.Value.AsUints(), lenE.Value.AsUints()
	if len(offs) == 0 || len(lens) == 0 {
		return nil, nil
	}
	buf, err := src.Subview(int64(offs[0]), int(lens[0]))
	if err != nil {
		return nil, fmt.Errorf("decoders: read embedded JPEG: %w", err)
	}
	return buf, nil
}

func decodeEmbeddedJPEG(src *bytesource.Source, ifd *tiff.IFD) (image.Image, error) {
	buf, err := embeddedJPEGBytes(src, ifd)
	if err != nil || buf == nil {
		return nil, err
	}
	img, err := jpeg.Decode(bytes.NewReader(buf))
	if err != nil {
		return nil, fmt.Errorf("decoders: decode embedded JPEG: %w", err)
	}
	return img, nil
}

func (d *tiffDecoder) FullImage(src *bytesource.Source) (image.Image, error) {
	_, chain, err := d.parse(src)
	if err != nil {
		return nil, err
	}
	ifd := thumbnailIFD(chain)
	if ifd == nil {
		return nil, nil
	}
	return decodeEmbeddedJPEG(src, ifd)
}

func (d *tiffDecoder) PreviewImage(src *bytesource.Source) (image.Image, error) {
	return d.FullImage(src)
}

func (d *tiffDecoder) ThumbnailImage(src *bytesource.Source) (image.Image, error) {
	return d.FullImage(src)
}

// PopulateDNGRoot copies the common root-level tags every format
// carries through unconditionally.
func (d *tiffDecoder) PopulateDNGRoot(src *bytesource.Source, root *VirtualIFD) error {
	_, chain, err := d.parse(src)
	if err != nil {
		return err
	}
	rootIFD := chain[0]
	for _, tag := range commonRootTags {
		copyIfPresent(root, rootIFD, tag)
	}
	return nil
}

// PopulateDNGExif copies the source's EXIF IFD tags through, then
// backfills capture parameters from the embedded preview JPEG's APP1
// segment for formats whose own EXIF IFD omits them (ORF, RAF and NEF
// routinely carry a fuller EXIF block inside the preview).
func (d *tiffDecoder) PopulateDNGExif(src *bytesource.Source, exif *VirtualIFD) error {
	_, chain, err := d.parse(src)
	if err != nil {
		return err
	}
	root := chain[0]
	for _, subs := range root.SubIFDs[34665] {
		for _, tag := range subs.EntryTags() {
			if e, ok := subs.GetEntry(tag); ok {
				exif.Add(tag, e.Value)
			}
		}
	}
	backfillFromPreviewEXIF(src, chain, exif)
	return nil
}

// EXIF tag numbers the preview-JPEG fallback can supply.
const (
	tagExposureTime tiff.Tag = 33434
	tagFNumber      tiff.Tag = 33437
	tagISOSpeed     tiff.Tag = 34855
	tagFocalLength  tiff.Tag = 37386
	tagLensModel    tiff.Tag = 42036
)

// backfillFromPreviewEXIF decodes the embedded preview JPEG's APP1
// segment with goexif and fills in capture tags the source's own EXIF
// IFD did not carry. Fallback only: existing entries always win, and
// any parse failure just means nothing is added.
func backfillFromPreviewEXIF(src *bytesource.Source, chain []*tiff.IFD, out *VirtualIFD) {
	ifd := thumbnailIFD(chain)
	if ifd == nil {
		return
	}
	buf, err := embeddedJPEGBytes(src, ifd)
	if err != nil || buf == nil {
		return
	}
	x, err := exif.Decode(bytes.NewReader(buf))
	if err != nil {
		return
	}

	addRational := func(tag tiff.Tag, field exif.FieldName) {
		if _, ok := out.Get(tag); ok {
			return
		}
		t, err := x.Get(field)
		if err != nil {
			return
		}
		num, den, err := t.Rat2(0)
		if err != nil || den == 0 {
			return
		}
		out.Add(tag, tiff.Value{Type: tiff.TypeRational, Rationals: []tiff.Rational{{Num: uint32(num), Denom: uint32(den)}}})
	}
	addRational(tagExposureTime, exif.ExposureTime)
	addRational(tagFNumber, exif.FNumber)
	addRational(tagFocalLength, exif.FocalLength)

	if _, ok := out.Get(tagISOSpeed); !ok {
		if t, err := x.Get(exif.ISOSpeedRatings); err == nil {
			if v, err := t.Int(0); err == nil {
				out.Add(tagISOSpeed, tiff.Value{Type: tiff.TypeShort, Shorts: []uint16{uint16(v)}})
			}
		}
	}
	if _, ok := out.Get(tagLensModel); !ok {
		if t, err := x.Get(exif.LensModel); err == nil {
			if s, err := t.StringVal(); err == nil && s != "" {
				out.Add(tagLensModel, tiff.Value{Type: tiff.TypeAscii, Ascii: s})
			}
		}
	}
}

func (d *tiffDecoder) FormatHint() string { return string(d.format) }

func (d *tiffDecoder) FormatDump(src *bytesource.Source) map[string]any {
	_, chain, err := d.parse(src)
	if err != nil {
		return map[string]any{"format": string(d.format), "error": err.Error()}
	}
	root := chain[0]
	rawIFD := findRawIFD(chain)
	dump := map[string]any{
		"format": string(d.format),
		"make":   entryString(root, tagMake),
		"model":  entryString(root, tagModel),
	}
	if rawIFD != nil {
		w, _ := entryUint(rawIFD, tagImageWidth)
		h, _ := entryUint(rawIFD, tagImageHeight)
		comp, _ := entryUint(rawIFD, tagCompression)
		dump["width"] = w
		dump["height"] = h
		dump["compression"] = comp
	}
	return dump
}

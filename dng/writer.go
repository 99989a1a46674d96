package dng

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/jpeg"
	"io"
	"runtime"

	"golang.org/x/image/draw"
	"golang.org/x/sync/errgroup"

	"github.com/rawkit/rawkit/decoders"
	"github.com/rawkit/rawkit/develop"
	"github.com/rawkit/rawkit/internal/rawerr"
	"github.com/rawkit/rawkit/internal/rlog"
	"github.com/rawkit/rawkit/ljpeg"
	"github.com/rawkit/rawkit/original"
	"github.com/rawkit/rawkit/rawimage"
	"github.com/rawkit/rawkit/tiff"
)

// Compression selects how the raw sample plane is encoded.
type Compression int

const (
	CompressionLossless Compression = iota
	CompressionUncompressed
)

// Options configures one DNG write.
type Options struct {
	Compression Compression
	Preview     bool
	Thumbnail   bool
	EmbedRaw    bool

	RawSource   []byte // original file bytes, required when EmbedRaw is set
	RawFileName string

	Artist      string
	Software    string // defaults to "rawkit" when empty
	DateTime    string // "2006:01:02 15:04:05"; caller supplies for determinism
	XMP         []byte

	Metadata    *decoders.RawMetadata
	DecoderRoot *decoders.VirtualIFD
	DecoderExif *decoders.VirtualIFD

	Log *rlog.Logger
}

// dngVersion is the DNG 1.4.0.0 version quad.
var dngVersion = []byte{1, 4, 0, 0}

// Write assembles img into a DNG 1.4 file and writes it to w.
func Write(w io.Writer, img *rawimage.RawImage, opts Options) error {
	if err := img.Validate(); err != nil {
		return &rawerr.DecoderFailed{Decoder: "dng", Cause: err}
	}
	log := opts.Log
	log.Step("dng.write", img.Make+" "+img.Model)
	defer log.Done("ok")

	a := &assembler{}
	a.buf.Write([]byte{'I', 'I'})
	a.buf.Write([]byte{42, 0})
	a.buf.Write([]byte{0, 0, 0, 0}) // patched with the root IFD offset at the end

	root := tiff.NewBuilder()

	// When a thumbnail is requested, the root IFD holds the thumbnail and
	// the raw plane becomes SubIFDs[0]; otherwise the raw plane's tags are
	// written directly into the root IFD.
	var rawDest *tiff.Builder
	if opts.Thumbnail {
		rawDest = tiff.NewBuilder()
	} else {
		rawDest = root
	}
	if err := encodeRawPlane(rawDest, a, img, opts); err != nil {
		return fmt.Errorf("dng: encoding raw plane: %w", err)
	}

	var previewIFDOffset uint32
	havePreview := false
	if opts.Preview {
		ifdTags, perr := encodePreview(a, img)
		if perr != nil {
			log.Warn("dng.preview: skipping preview: %v", perr)
		} else {
			off, werr := a.writeIFD(ifdTags, 0)
			if werr != nil {
				return fmt.Errorf("dng: writing preview ifd: %w", werr)
			}
			previewIFDOffset = off
			havePreview = true
		}
	}

	if opts.Thumbnail {
		if err := encodeThumbnail(a, root, img); err != nil {
			return fmt.Errorf("dng: encoding thumbnail: %w", err)
		}
	}

	if opts.Thumbnail {
		root.AddLong(tagNewSubfileType, 1)
		rawDest.AddLong(tagNewSubfileType, 0)
		rawOff, werr := a.writeIFD(rawDest, 0)
		if werr != nil {
			return fmt.Errorf("dng: writing raw ifd: %w", werr)
		}
		subs := []uint32{rawOff}
		if havePreview {
			subs = append(subs, previewIFDOffset)
		}
		root.AddLongArray(tagSubIFDs, subs)
	} else {
		root.AddLong(tagNewSubfileType, 0)
		if havePreview {
			root.AddLongArray(tagSubIFDs, []uint32{previewIFDOffset})
		}
	}

	writeRootMetadata(root, img, opts)

	if opts.EmbedRaw {
		if err := embedOriginal(a, root, opts); err != nil {
			return fmt.Errorf("dng: embedding original file: %w", err)
		}
	}

	if len(opts.XMP) > 0 {
		root.AddUndefined(tagXMP, opts.XMP)
	}

	if exifIFD := buildExifIFD(opts); exifIFD != nil {
		off, werr := a.writeIFD(exifIFD, 0)
		if werr != nil {
			return fmt.Errorf("dng: writing exif ifd: %w", werr)
		}
		root.AddLong(tagExifIFD, off)
	}

	if gpsIFD := buildGPSIFD(opts); gpsIFD != nil {
		off, werr := a.writeIFD(gpsIFD, 0)
		if werr != nil {
			return fmt.Errorf("dng: writing gps ifd: %w", werr)
		}
		root.AddLong(tagGPSInfo, off)
	}

	// Decoder-contributed tags win conflicts, merged last.
	if opts.DecoderRoot != nil {
		for _, e := range opts.DecoderRoot.Entries {
			root.AddValue(e.Tag, e.Value)
		}
	}

	rootOffset, err := a.writeIFD(root, 0)
	if err != nil {
		return fmt.Errorf("dng: writing root ifd: %w", err)
	}

	out := a.buf.Bytes()
	binaryPutUint32(out[4:8], rootOffset)

	if _, err := w.Write(out); err != nil {
		return fmt.Errorf("dng: writing output: %w", err)
	}
	return nil
}

func binaryPutUint32(b []byte, v uint32) {
	b[0] = byte(v)
	b[1] = byte(v >> 8)
	b[2] = byte(v >> 16)
	b[3] = byte(v >> 24)
}

// assembler accumulates the whole file in memory, appending data and IFDs
// in dependency order (children before parents) so every pointer a
// directory writes is already a concrete, final file offset — the same
// bottom-up discipline of the TIFF layout, performed against a growing
// buffer instead of backpatching a random-access file.
type assembler struct {
	buf bytes.Buffer
}

// seekWriter adapts *bytes.Buffer to io.WriteSeeker. tiff.Builder.Write
// never actually seeks (it only ever appends at the buffer's current
// position and reports back the position it started from), so Seek only
// needs to satisfy the interface, not move anything.
type seekWriter struct{ buf *bytes.Buffer }

func (s seekWriter) Write(p []byte) (int, error) { return s.buf.Write(p) }
func (s seekWriter) Seek(offset int64, whence int) (int64, error) {
	return int64(s.buf.Len()), nil
}

func (a *assembler) offset() uint32 { return uint32(a.buf.Len()) }

// writeData appends raw bytes and returns the offset they start at,
// padding to a 2-byte boundary afterward (TIFF requires word-aligned
// value offsets).
func (a *assembler) writeData(b []byte) uint32 {
	off := a.offset()
	a.buf.Write(b)
	if a.buf.Len()%2 != 0 {
		a.buf.WriteByte(0)
	}
	return off
}

func (a *assembler) writeIFD(b *tiff.Builder, nextIFD uint32) (uint32, error) {
	off := a.offset()
	if _, err := b.Write(seekWriter{&a.buf}, int64(off), nextIFD); err != nil {
		return 0, err
	}
	if a.buf.Len()%2 != 0 {
		a.buf.WriteByte(0)
	}
	return off, nil
}

// illuminantCode maps rawimage.Illuminant to the EXIF/DNG LightSource
// values CalibrationIlluminant1/2 use.
func illuminantCode(i rawimage.Illuminant) uint16 {
	switch i {
	case rawimage.IlluminantD50:
		return 23
	case rawimage.IlluminantD65:
		return 21
	case rawimage.IlluminantTungsten:
		return 17
	case rawimage.IlluminantFluorescent:
		return 2
	case rawimage.IlluminantDaylight:
		return 1
	default:
		return 0
	}
}

func writeRootMetadata(root *tiff.Builder, img *rawimage.RawImage, opts Options) {
	root.AddByteArray(tagDNGVersion, dngVersion)
	root.AddByteArray(tagDNGBackwardVersion, dngVersion)

	make_, model := img.Make, img.Model
	if opts.Metadata != nil {
		if opts.Metadata.Make != "" {
			make_ = opts.Metadata.Make
		}
		if opts.Metadata.Model != "" {
			model = opts.Metadata.Model
		}
	}
	if make_ != "" {
		root.AddASCII(tagMake, make_)
	}
	if model != "" {
		root.AddASCII(tagModel, model)
	}

	cleanMake, cleanModel := img.CleanMake, img.CleanModel
	if opts.Metadata != nil {
		if opts.Metadata.CleanMake != "" {
			cleanMake = opts.Metadata.CleanMake
		}
		if opts.Metadata.CleanModel != "" {
			cleanModel = opts.Metadata.CleanModel
		}
	}
	if cleanMake == "" {
		cleanMake = make_
	}
	if cleanModel == "" {
		cleanModel = model
	}
	if cleanMake != "" || cleanModel != "" {
		root.AddASCII(tagUniqueCameraModel, cleanMake+" "+cleanModel)
	}

	if opts.Artist != "" {
		root.AddASCII(tagArtist, opts.Artist)
	}
	software := opts.Software
	if software == "" {
		software = "rawkit"
	}
	root.AddASCII(tagSoftware, software)
	if opts.DateTime != "" {
		root.AddASCII(tagDateTime, opts.DateTime)
	}

	orientation := img.Orientation
	if orientation == 0 {
		orientation = rawimage.OrientationNormal
	}
	if opts.Metadata != nil && opts.Metadata.Orientation != 0 {
		orientation = opts.Metadata.Orientation
	}
	root.AddShort(tagOrientation, uint16(orientation))
}

// buildExifIFD assembles the Exif sub-IFD from the decoder's copied tag
// map plus any decoder-contributed VirtualIFD (winning conflicts), or
// nil if there is nothing to write — TIFF directories may not be empty.
func buildExifIFD(opts Options) *tiff.Builder {
	if opts.Metadata == nil && opts.DecoderExif == nil {
		return nil
	}
	b := tiff.NewBuilder()
	if opts.Metadata != nil {
		for tag, v := range opts.Metadata.Exif {
			b.AddValue(tag, v)
		}
	}
	if opts.DecoderExif != nil {
		for _, e := range opts.DecoderExif.Entries {
			b.AddValue(e.Tag, e.Value)
		}
	}
	if b.Len() == 0 {
		return nil
	}
	return b
}

// buildGPSIFD assembles the GPS sub-IFD from a decoder-supplied GPSInfo,
// or nil if none was carried through.
func buildGPSIFD(opts Options) *tiff.Builder {
	if opts.Metadata == nil || opts.Metadata.GPS == nil {
		return nil
	}
	g := opts.Metadata.GPS
	b := tiff.NewBuilder()
	if g.LatRef != "" {
		b.AddASCII(tagGPSLatitudeRef, g.LatRef)
		b.AddRationalArray(tagGPSLatitude, g.Lat[:])
	}
	if g.LongRef != "" {
		b.AddASCII(tagGPSLongitudeRef, g.LongRef)
		b.AddRationalArray(tagGPSLongitude, g.Long[:])
	}
	if g.Alt.Denom != 0 {
		b.AddByte(tagGPSAltitudeRef, g.AltRef)
		b.AddRational(tagGPSAltitude, g.Alt.Num, g.Alt.Denom)
	}
	if g.TimeStamp[0].Denom != 0 {
		b.AddRationalArray(tagGPSTimeStamp, g.TimeStamp[:])
	}
	if g.DateStamp != "" {
		b.AddASCII(tagGPSDateStamp, g.DateStamp)
	}
	if b.Len() == 0 {
		return nil
	}
	return b
}

// embedOriginal compresses opts.RawSource and attaches
// it to the root IFD as OriginalRawFileData/Name/Digest.
func embedOriginal(a *assembler, root *tiff.Builder, opts Options) error {
	if len(opts.RawSource) == 0 {
		return fmt.Errorf("EmbedRaw set with no RawSource bytes")
	}
	compressed, err := original.Compress(bytes.NewReader(opts.RawSource))
	if err != nil {
		return err
	}
	root.AddUndefined(tagOriginalFileData, compressed.Bytes())
	if opts.RawFileName != "" {
		root.AddASCII(tagOriginalFileName, opts.RawFileName)
	}
	digest := compressed.Digest()
	root.AddByteArray(tagOriginalFileDigest, digest[:])
	return nil
}

// --- raw plane ---------------------------------------------------------

// encodeRawPlane writes the sample plane's pixel data into a and the
// raw-IFD tags into b.
func encodeRawPlane(b *tiff.Builder, a *assembler, img *rawimage.RawImage, opts Options) error {
	b.AddLong(tagImageWidth, uint32(img.Width))
	b.AddLong(tagImageLength, uint32(img.Height))
	b.AddShort(tagPlanarConfig, 1)

	active := rawimage.Rect{X: 0, Y: 0, W: img.Width, H: img.Height}
	if img.ActiveArea != nil {
		active = *img.ActiveArea
	}
	b.AddLongArray(tagActiveArea, []uint32{
		uint32(active.Y), uint32(active.X),
		uint32(active.Y + active.H), uint32(active.X + active.W),
	})
	if img.CropArea != nil {
		c := *img.CropArea
		b.AddRationalArrayFromFloats(tagDefaultCropOrigin, []float64{
			float64(c.X - active.X), float64(c.Y - active.Y),
		}, false)
		b.AddRationalArrayFromFloats(tagDefaultCropSize, []float64{
			float64(c.W), float64(c.H),
		}, false)
	}
	b.AddRationalArrayFromFloats(tagDefaultScale, []float64{1, 1}, false)
	b.AddRational(tagBestQualityScale, 1, 1)

	if len(img.WhiteLevel) > 0 {
		whites := make([]uint32, len(img.WhiteLevel))
		for i, v := range img.WhiteLevel {
			whites[i] = uint32(v)
		}
		b.AddLongArray(tagWhiteLevel, whites)
	}
	writeBlackLevel(b, img)
	writeColorMatrices(b, img)

	switch img.Photometric {
	case rawimage.PhotometricLinearRaw:
		cpp := img.CPP
		if cpp < 1 {
			cpp = 1
		}
		b.AddShort(tagPhotometric, photometricLinearRaw)
		b.AddShort(tagSamplesPerPixel, uint16(cpp))
		bps := make([]uint16, cpp)
		for i := range bps {
			bps[i] = 16
		}
		b.AddShortArray(tagBitsPerSample, bps)
	case rawimage.PhotometricBlackIsZero:
		b.AddShort(tagPhotometric, photometricBlackIsZero)
		b.AddShort(tagSamplesPerPixel, 1)
		b.AddShortArray(tagBitsPerSample, []uint16{16})
	default:
		b.AddShort(tagPhotometric, photometricCFA)
		b.AddShort(tagSamplesPerPixel, 1)
		b.AddShortArray(tagBitsPerSample, []uint16{16})
		if img.CFA != nil {
			shifted := img.CFA.Shift(active.X, active.Y)
			pattern := make([]byte, len(shifted.Colors))
			for i, c := range shifted.Colors {
				pattern[i] = cfaPlaneColorCode(c)
			}
			b.AddByteArray(tagCFAPattern, pattern)
			b.AddShortArray(tagCFARepeatPattern, []uint16{uint16(shifted.Height), uint16(shifted.Width)})
			b.AddShort(tagCFALayout, 1)
		}
		if len(img.BlackAreas) > 0 {
			areas := make([]uint32, 0, len(img.BlackAreas)*4)
			for _, ba := range img.BlackAreas {
				areas = append(areas, uint32(ba.Y), uint32(ba.X), uint32(ba.Y+ba.H), uint32(ba.X+ba.W))
			}
			b.AddLongArray(tagMaskedAreas, areas)
		}
	}

	switch opts.Compression {
	case CompressionUncompressed:
		if err := writeUncompressedStrips(a, b, img); err != nil {
			return err
		}
	default:
		if err := writeLosslessTiles(a, b, img); err != nil {
			return err
		}
	}
	return nil
}

// writeColorMatrices writes ColorMatrix1/2 and CalibrationIlluminant1/2
// from img.ColorMatrices. DNG only carries two calibration matrices, so
// any beyond the first two are dropped.
func writeColorMatrices(b *tiff.Builder, img *rawimage.RawImage) {
	for i, cm := range img.ColorMatrices {
		if i > 1 || len(cm.Matrix) < 9 {
			break
		}
		tag, illumTag := tagColorMatrix1, tagCalibIlluminant1
		if i == 1 {
			tag, illumTag = tagColorMatrix2, tagCalibIlluminant2
		}
		b.AddRationalArrayFromFloats(tag, cm.Matrix, true)
		b.AddShort(illumTag, illuminantCode(cm.Illuminant))
	}
}

func cfaPlaneColorCode(c rawimage.Color) byte {
	if c == rawimage.ColorFujiGreen {
		return byte(rawimage.ColorGreen)
	}
	return byte(c)
}

func writeBlackLevel(b *tiff.Builder, img *rawimage.RawImage) {
	vals := img.BlackLevel.Values
	if len(vals) == 0 {
		return
	}
	pw, ph := img.BlackLevel.PatternW, img.BlackLevel.PatternH
	if pw == 0 {
		pw = 1
	}
	if ph == 0 {
		ph = 1
	}
	b.AddShortArray(tagBlackLevelRepeat, []uint16{uint16(ph), uint16(pw)})

	allIntegral := true
	for _, v := range vals {
		if v.Denom != 1 {
			allIntegral = false
			break
		}
	}
	if allIntegral {
		shorts := make([]uint16, len(vals))
		for i, v := range vals {
			shorts[i] = uint16(v.Num)
		}
		b.AddShortArray(tagBlackLevel, shorts)
		return
	}
	b.AddRationalArray(tagBlackLevel, vals)
}

// writeUncompressedStrips implements the uncompressed
// path: 8 horizontal strips of big-endian u16 samples.
func writeUncompressedStrips(a *assembler, b *tiff.Builder, img *rawimage.RawImage) error {
	const numStrips = 8
	rowsPerStrip := (img.Height + numStrips - 1) / numStrips
	if rowsPerStrip == 0 {
		rowsPerStrip = img.Height
	}
	if rowsPerStrip == 0 {
		rowsPerStrip = 1
	}

	var offsets, counts []uint32
	for y := 0; y < img.Height; y += rowsPerStrip {
		h := rowsPerStrip
		if y+h > img.Height {
			h = img.Height - y
		}
		n := h * img.Width * img.CPP
		buf := make([]byte, n*2)
		base := y * img.Width * img.CPP
		for i := 0; i < n; i++ {
			v := sampleAt16(img, base+i)
			buf[i*2] = byte(v >> 8)
			buf[i*2+1] = byte(v)
		}
		off := a.writeData(buf)
		offsets = append(offsets, off)
		counts = append(counts, uint32(len(buf)))
	}

	b.AddLong(tagRowsPerStrip, uint32(rowsPerStrip))
	b.AddLongArray(tagStripOffsets, offsets)
	b.AddLongArray(tagStripByteCounts, counts)
	b.AddShort(tagCompression, compressionNone)
	return nil
}

func sampleAt16(img *rawimage.RawImage, idx int) uint16 {
	if img.Data.Floats != nil {
		v := img.Data.Floats[idx]
		if v < 0 {
			return 0
		}
		if v > 65535 {
			return 65535
		}
		return uint16(v)
	}
	return img.Data.Ints[idx]
}

// writeLosslessTiles implements the LJPEG path: 256x256
// tiles (rounded down to a multiple of 8 for images smaller than that),
// encoded with predictor 1 and fanned out across goroutines bounded by
// errgroup.
//
// The encoder (ljpeg.Encode) only ever emits predictor 1, so this
// skips the two-row packing trick for 2x2 CFA tiles (which exists
// purely to let predictors 4-7 see all four CFA positions in one LJPEG
// row) — each CFA component tile is encoded as a single plane instead.
// Documented as a deliberate scope cut in DESIGN.md.
func writeLosslessTiles(a *assembler, b *tiff.Builder, img *rawimage.RawImage) error {
	tileW := roundTileDim(img.Width)
	tileH := roundTileDim(img.Height)

	components := 1
	if img.Photometric == rawimage.PhotometricLinearRaw {
		components = img.CPP
		if components > 3 {
			components = 3
		}
	}

	tilesAcross := (img.Width + tileW - 1) / tileW
	tilesDown := (img.Height + tileH - 1) / tileH
	total := tilesAcross * tilesDown

	encoded := make([][]byte, total)
	g, _ := errgroup.WithContext(context.Background())
	g.SetLimit(runtime.NumCPU())

	for ty := 0; ty < tilesDown; ty++ {
		for tx := 0; tx < tilesAcross; tx++ {
			ty, tx := ty, tx
			idx := ty*tilesAcross + tx
			g.Go(func() error {
				samples := extractTile(img, tx*tileW, ty*tileH, tileW, tileH, components)
				data, err := ljpeg.Encode(samples, ljpeg.EncodeOptions{
					Width: tileW, Height: tileH, Components: components, Precision: img.BPS,
				})
				if err != nil {
					return fmt.Errorf("dng: encoding tile (%d,%d): %w", tx, ty, err)
				}
				encoded[idx] = data
				return nil
			})
		}
	}
	if err := g.Wait(); err != nil {
		return err
	}

	offsets := make([]uint32, total)
	counts := make([]uint32, total)
	for i, data := range encoded {
		offsets[i] = a.writeData(data)
		counts[i] = uint32(len(data))
	}

	b.AddLong(tagTileWidth, uint32(tileW))
	b.AddLong(tagTileLength, uint32(tileH))
	b.AddLongArray(tagTileOffsets, offsets)
	b.AddLongArray(tagTileByteCounts, counts)
	b.AddShort(tagCompression, compressionModernJPEG)
	return nil
}

func roundTileDim(dim int) int {
	const max = 256
	if dim >= max {
		return max
	}
	d := (dim / 8) * 8
	if d == 0 {
		d = dim
	}
	return d
}

// extractTile reads a tileW x tileH x components block starting at
// (x0,y0), replicating the last valid column/row to pad a partial edge
// tile up to full tile dimensions.
func extractTile(img *rawimage.RawImage, x0, y0, tileW, tileH, components int) []uint16 {
	out := make([]uint16, tileW*tileH*components)
	for ty := 0; ty < tileH; ty++ {
		row := y0 + ty
		if row >= img.Height {
			row = img.Height - 1
		}
		for tx := 0; tx < tileW; tx++ {
			col := x0 + tx
			if col >= img.Width {
				col = img.Width - 1
			}
			base := (row*img.Width + col) * img.CPP
			oBase := (ty*tileW + tx) * components
			for c := 0; c < components; c++ {
				srcC := c
				if srcC >= img.CPP {
					srcC = img.CPP - 1
				}
				out[oBase+c] = sampleAt16(img, base+srcC)
			}
		}
	}
	return out
}

// --- preview / thumbnail ------------------------------------------------

// encodePreview renders, downscales (to fit within 1024x768) and
// JPEG-encodes a preview image, returning the IFD
// that references it.
func encodePreview(a *assembler, img *rawimage.RawImage) (*tiff.Builder, error) {
	src := develop.RenderSRGB(img)
	dst := fitScale(src, 1024, 768)

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, dst, &jpeg.Options{Quality: 75}); err != nil {
		return nil, fmt.Errorf("encoding preview jpeg: %w", err)
	}
	data := buf.Bytes()
	off := a.writeData(data)

	b := tiff.NewBuilder()
	b.AddLong(tagNewSubfileType, 1)
	b.AddLong(tagImageWidth, uint32(dst.Bounds().Dx()))
	b.AddLong(tagImageLength, uint32(dst.Bounds().Dy()))
	b.AddShort(tagSamplesPerPixel, 3)
	b.AddShort(tagPhotometric, photometricYCbCr)
	b.AddShort(tagCompression, compressionModernJPEG)
	b.AddShort(tagPlanarConfig, 1)
	b.AddShort(tagPreviewColorSpace, 2) // 2 == sRGB (DNG PreviewColorSpace tag 50970)
	b.AddLongArray(tagStripOffsets, []uint32{off})
	b.AddLongArray(tagStripByteCounts, []uint32{uint32(len(data))})
	b.AddLong(tagRowsPerStrip, uint32(dst.Bounds().Dy()))
	return b, nil
}

// encodeThumbnail nearest-neighbor resizes to 240x120, 8-bit RGB,
// uncompressed, writing its tags into b.
func encodeThumbnail(a *assembler, b *tiff.Builder, img *rawimage.RawImage) error {
	src := develop.RenderSRGB(img)
	const w, h = 240, 120
	dst := image.NewNRGBA(image.Rect(0, 0, w, h))
	draw.NearestNeighbor.Scale(dst, dst.Bounds(), src, src.Bounds(), draw.Over, nil)

	buf := make([]byte, 0, w*h*3)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			c := dst.NRGBAAt(x, y)
			buf = append(buf, c.R, c.G, c.B)
		}
	}
	off := a.writeData(buf)

	b.AddLong(tagImageWidth, w)
	b.AddLong(tagImageLength, h)
	b.AddShort(tagSamplesPerPixel, 3)
	b.AddShortArray(tagBitsPerSample, []uint16{8, 8, 8})
	b.AddShort(tagPhotometric, 2) // RGB
	b.AddShort(tagCompression, compressionNone)
	b.AddShort(tagPlanarConfig, 1)
	b.AddLongArray(tagStripOffsets, []uint32{off})
	b.AddLongArray(tagStripByteCounts, []uint32{uint32(len(buf))})
	b.AddLong(tagRowsPerStrip, h)
	return nil
}

// fitScale downscales src to fit within maxW x maxH, preserving aspect
// ratio and never upscaling, using bilinear interpolation.
func fitScale(src image.Image, maxW, maxH int) *image.NRGBA {
	sb := src.Bounds()
	sw, sh := sb.Dx(), sb.Dy()
	scale := 1.0
	if s := float64(maxW) / float64(sw); s < scale {
		scale = s
	}
	if s := float64(maxH) / float64(sh); s < scale {
		scale = s
	}
	dw, dh := sw, sh
	if scale < 1.0 {
		dw = int(float64(sw)*scale + 0.5)
		dh = int(float64(sh)*scale + 0.5)
		if dw < 1 {
			dw = 1
		}
		if dh < 1 {
			dh = 1
		}
	}
	dst := image.NewNRGBA(image.Rect(0, 0, dw, dh))
	draw.BiLinear.Scale(dst, dst.Bounds(), src, sb, draw.Over, nil)
	return dst
}

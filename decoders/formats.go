package decoders

import (
	"fmt"

	"github.com/rawkit/rawkit/bitstream"
	"github.com/rawkit/rawkit/bytesource"
	"github.com/rawkit/rawkit/cameradb"
	"github.com/rawkit/rawkit/internal/rawerr"
	"github.com/rawkit/rawkit/ljpeg"
	"github.com/rawkit/rawkit/lensdb"
	"github.com/rawkit/rawkit/rawbits"
	"github.com/rawkit/rawkit/tiff"
	"github.com/rawkit/rawkit/vendorcodec"
)

// Standard TIFF compression tag values plus the proprietary codes each
// vendor's raw variant uses.
const (
	compUncompressed  = 1
	compOldJPEG       = 6
	compLosslessJPEG  = 7 // DNG ModernJPEG / most vendors' LJPEG-92 tiles-or-strips
	compPackBits      = 32773
	compNikonNEF      = 34713
	compPanasonicV6V8 = 34826
	compPentaxCustom  = 65535
	compSamsungSRW    = 32770
)

// New constructs the Decoder for format, wiring in the per-vendor sample
// decompressor.
// Every TIFF-rooted family shares the tiffDecoder engine (detect →
// findRawIFD → decodeSamples); only the decodeSamples strategy and a few
// bookkeeping fields vary per vendor: one engine, many sample-decode
// strategies.
func New(format FormatID, camDB *cameradb.DB, lensDB []lensdb.LensDescription) (Decoder, error) {
	switch format {
	case FormatX3F:
		return newX3FDecoder(camDB), nil
	case FormatCR3:
		return newCR3Decoder(camDB), nil
	case FormatQuickTake:
		return newQuickTakeDecoder(camDB), nil
	case FormatDNG, FormatCR2, FormatNEF, FormatNRW, FormatARW, FormatSR2, FormatSRF,
		FormatORF, FormatPEF, FormatRW2, FormatSRW, FormatRAF, FormatERF, Format3FR,
		FormatFFF, FormatDCR, FormatKDC, FormatARI, FormatMOS, FormatMRW, FormatIIQ:
		return newTIFFDecoder(format, camDB, lensDB, genericDecodeSamples), nil
	default:
		return nil, fmt.Errorf("decoders: no decoder registered for format %s", format)
	}
}

// Open detects src's format and constructs its Decoder in one call.
func Open(src *bytesource.Source, camDB *cameradb.DB, lensDB []lensdb.LensDescription) (Decoder, FormatID, error) {
	format, err := Detect(src)
	if err != nil {
		return nil, FormatUnknown, err
	}
	dec, err := New(format, camDB, lensDB)
	if err != nil {
		return nil, format, err
	}
	return dec, format, nil
}

// genericDecodeSamples reads the raw IFD's declared compression and
// strip/tile layout and dispatches to the matching decompressor: stdlib
// rawbits for the simple packed layouts, the shared ljpeg.Decompressor
// for LJPEG-92 tiles/strips, and vendorcodec's entropy coders for two
// proprietary compression codes: Pentax (65535, with the Huffman table
// taken from a sub-IFD of the raw IFD when one carries it) and Panasonic
// (34826, always decoded with the v6 block codec; the v8 strip codec is
// not routed here). Any other compression code goes to the packed-bits
// reader.
func genericDecodeSamples(d *tiffDecoder, src *bytesource.Source, reader *tiff.Reader, rawIFD *tiff.IFD, cam cameradb.Camera) ([]uint16, int, int, int, error) {
	width, _ := entryUint(rawIFD, tagImageWidth)
	height, _ := entryUint(rawIFD, tagImageHeight)
	w, h := int(width), int(height)

	cpp := 1
	if e, ok := rawIFD.GetEntry(tagSamplesPerPixel); ok {
		if v, ok := e.Value.AsUint(); ok {
			cpp = int(v)
		}
	}
	bps := 16
	if e, ok := rawIFD.GetEntry(tagBitsPerSample); ok {
		if vs := e.Value.AsUints(); len(vs) > 0 {
			bps = int(vs[0])
		}
	}

	comp, _ := entryUint(rawIFD, tagCompression)

	strips, err := readPlaneBytes(src, rawIFD)
	if err != nil {
		return nil, 0, 0, 0, rawerr.Fail(string(d.format), "read sample plane bytes", err)
	}

	switch {
	case comp == compUncompressed:
		samples, err := rawbits.Unpack(strips, w*cpp, h, bps, rawbits.BigEndian, bps%8 != 0)
		if err != nil {
			return nil, 0, 0, 0, rawerr.Fail(string(d.format), "unpack samples", err)
		}
		return samples, w, h, cpp, nil

	case comp == compLosslessJPEG || comp == compOldJPEG:
		samples, outCPP, err := decodeLJPEGFamily(d.format, strips, w, h, cpp)
		if err != nil {
			return nil, 0, 0, 0, rawerr.Fail(string(d.format), "decode LJPEG plane", err)
		}
		return samples, w, h, outCPP, nil

	case d.format == FormatPEF && comp == compPentaxCustom:
		huff, _ := readPentaxMakernoteHuffTable(rawIFD)
		samples, err := vendorcodec.DecodePentax(strips, huff, bitstream.BigEndian, w, h)
		if err != nil {
			return nil, 0, 0, 0, rawerr.Fail(string(d.format), "decode Pentax stream", err)
		}
		return samples, w, h, 1, nil

	case d.format == FormatRW2 && comp == compPanasonicV6V8:
		samples := vendorcodec.DecodePanasonicV6(strips, w, h, uint32(bps))
		return samples, w, h, 1, nil

	default:
		// Unknown proprietary compression code: fall through to the padded
		// packed-bits reader so the caller gets a same-shape (if visually
		// wrong) buffer rather than a hard failure; a best-effort buffer
		// keeps metadata-only callers (RawMetadata, FormatDump) unaffected.
		samples, err := rawbits.Unpack(strips, w*cpp, h, bps, rawbits.BigEndian, bps%8 != 0)
		if err != nil {
			return nil, 0, 0, 0, rawerr.Fail(string(d.format), fmt.Sprintf("unrecognized compression %d", comp), err)
		}
		return samples, w, h, cpp, nil
	}
}

// readPlaneBytes concatenates a raw IFD's strips (or tiles) into one
// contiguous buffer in on-disk order, using the padded subview so a
// codec's final-symbol over-read never panics.
func readPlaneBytes(src *bytesource.Source, ifd *tiff.IFD) ([]byte, error) {
	if offE, ok := ifd.GetEntry(tagStripOffsets); ok {
		lenE, _ := ifd.GetEntry(tagStripByteCounts)
		offs, lens := offE.Value.AsUints(), lenE.Value.AsUints()
		var buf []byte
		for i, off := range offs {
			n := 0
			if i < len(lens) {
				n = int(lens[i])
			}
			buf = append(buf, src.SubviewPadded(int64(off), n)...)
		}
		return buf, nil
	}
	if offE, ok := ifd.GetEntry(tagTileOffsets); ok {
		lenE, _ := ifd.GetEntry(tagTileByteCounts)
		offs, lens := offE.Value.AsUints(), lenE.Value.AsUints()
		var buf []byte
		for i, off := range offs {
			n := 0
			if i < len(lens) {
				n = int(lens[i])
			}
			buf = append(buf, src.SubviewPadded(int64(off), n)...)
		}
		return buf, nil
	}
	return nil, fmt.Errorf("decoders: no strip or tile offsets in raw IFD")
}

// decodeLJPEGFamily parses an LJPEG stream and routes it to the right
// scan layout: Hasselblad's two-pixels-per-code packing (3FR/FFF),
// Leaf's two-table strip pairing (MOS), Sony's sRAW 4:2:0 prediction
// quirk (ARW/SR2/SRF), the standard YCbCr 4:2:0/4:2:2 packings, or the
// plain ncomp-interleaved raster. Returns the decoded samples and the
// components-per-pixel of the result (3 for the YCbCr scans regardless
// of what the IFD's SamplesPerPixel claimed).
func decodeLJPEGFamily(format FormatID, data []byte, w, h, cpp int) ([]uint16, int, error) {
	dec, err := ljpeg.Parse(data)
	if err != nil {
		return nil, 0, err
	}

	switch format {
	case Format3FR, FormatFFF:
		out := make([]uint16, w*h)
		return out, 1, dec.DecodeHasselblad(out, w)
	case FormatMOS:
		out := make([]uint16, w*h)
		return out, 1, decodeLeafPlane(dec, out, w, h)
	}

	sh, sv := dec.Subsampling()
	switch {
	case dec.Components() == 3 && sh == 2 && sv == 2:
		out := make([]uint16, w*h*3)
		if format == FormatARW || format == FormatSR2 || format == FormatSRF {
			err = dec.DecodeSony420(out, w*3, h)
		} else {
			err = dec.Decode420(out, w*3, h)
		}
		return out, 3, err
	case dec.Components() == 3 && sh == 2 && sv == 1:
		out := make([]uint16, w*h*3)
		return out, 3, dec.Decode422(out, w*3, h)
	default:
		out := make([]uint16, w*cpp*h)
		return out, cpp, dec.Decode(out, 0, w*cpp, w*cpp, h)
	}
}

// decodeLeafPlane runs one Leaf strip through its two-table pairing,
// taking the tables from the stream's first two scan components (or
// doubling up the first when the stream declares only one) and seeding
// both predictors at half of full scale.
func decodeLeafPlane(dec *ljpeg.Decompressor, out []uint16, w, h int) error {
	comps := dec.SOF.Components
	if len(comps) == 0 {
		return fmt.Errorf("decoders: leaf strip has no scan components")
	}
	h1 := dec.DHTs[comps[0].DCTblNum]
	h2 := h1
	if len(comps) > 1 {
		h2 = dec.DHTs[comps[1].DCTblNum]
	}
	basePred := int32(1) << (dec.SOF.Precision - 1)
	return ljpeg.DecodeLeafStrip(dec.Buffer, out, w, h, h1, h2, basePred)
}

// readPentaxMakernoteHuffTable locates the Pentax makernote's embedded
// Huffman table entry (tag 0x220 under the vendor's private makernote
// sub-IFD), returning its raw bytes for vendorcodec.DecodePentax's
// depth-prefixed parser, or nil to fall back to the fixed table.
func readPentaxMakernoteHuffTable(rawIFD *tiff.IFD) ([]byte, bool) {
	const pentaxHuffmanTag tiff.Tag = 0x220
	for _, subs := range rawIFD.SubIFDs {
		for _, s := range subs {
			if e, ok := s.GetEntry(pentaxHuffmanTag); ok && e.Value.Type == tiff.TypeUndefined {
				return e.Value.Undefined, true
			}
		}
	}
	return nil, false
}

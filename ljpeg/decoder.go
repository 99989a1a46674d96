package ljpeg

import (
	"fmt"

	"github.com/rawkit/rawkit/bitstream"
)

// Component describes one SOF scan component: id, DC table index, and
// the horizontal/vertical sampling factors that identify the YCbCr
// subsampled packings (2x2 for 4:2:0, 2x1 for 4:2:2).
type Component struct {
	ID       byte
	DCTblNum int
	SuperH   int
	SuperV   int
}

// FrameHeader is the parsed SOF3 (lossless sequential) header.
type FrameHeader struct {
	Precision  int
	Height     int
	Width      int
	Components []Component
}

// Decompressor holds a parsed lossless-JPEG stream ready for pixel
// decoding: the frame header, one Huffman table per DC table slot, the
// chosen spatial predictor (1-7), and the point transform
// (difference right-shift for lossy-in-lossless previews).
type Decompressor struct {
	Buffer         []byte
	SOF            FrameHeader
	DHTs           map[int]*HuffTable
	Predictor      int
	PointTransform int
}

// nextMarker advances past the 0xFF-prefixed marker SkipToMarker finds
// and returns it, leaving bs positioned right after the marker byte.
func nextMarker(bs *bitstream.ByteStream) (byte, bool) {
	marker, ok := bs.SkipToMarker()
	if !ok {
		return 0, false
	}
	bs.ConsumeBytes(2) // the 0xFF and the marker byte itself
	return marker, true
}

// Parse reads markers from data (expected to start at SOI) until it sees
// SOS, collecting DHT and SOF3 segments, then returns a Decompressor
// positioned at the entropy-coded scan data. Parse recovers from bounds
// panics in malformed input and reports them as errors, since ByteStream
// itself performs no bounds checking.
func Parse(data []byte) (d *Decompressor, err error) {
	defer func() {
		if r := recover(); r != nil {
			d, err = nil, fmt.Errorf("ljpeg: malformed stream: %v", r)
		}
	}()

	bs := bitstream.NewByteStream(data, bitstream.BigEndian)
	d = &Decompressor{DHTs: make(map[int]*HuffTable)}

	marker, ok := nextMarker(bs)
	if !ok || marker != 0xD8 { // SOI
		return nil, fmt.Errorf("ljpeg: missing SOI marker")
	}

	for {
		marker, ok := nextMarker(bs)
		if !ok {
			return nil, fmt.Errorf("ljpeg: truncated stream before SOS")
		}
		switch {
		case marker == 0xC4: // DHT
			if err := d.parseDHT(bs); err != nil {
				return nil, err
			}
		case marker == 0xC3 || marker == 0xC0 || marker == 0xC1: // SOF3, SOF0, SOF1
			d.parseSOF(bs)
		case marker == 0xDA: // SOS
			predictor, pt := d.parseSOS(bs)
			d.Predictor = predictor
			d.PointTransform = pt
			d.Buffer = data[bs.Pos():]
			return d, nil
		case marker == 0xD9: // EOI
			return nil, fmt.Errorf("ljpeg: reached EOI before SOS")
		default:
			length := bs.GetU16()
			if length < 2 {
				return nil, fmt.Errorf("ljpeg: invalid segment length for marker 0x%02X", marker)
			}
			bs.ConsumeBytes(int(length) - 2)
		}
	}
}

func (d *Decompressor) parseDHT(bs *bitstream.ByteStream) error {
	length := bs.GetU16()
	end := bs.Pos() + int(length) - 2
	for bs.Pos() < end {
		tc := bs.GetU8()
		tableIdx := int(tc & 0x0F)

		var bits [17]uint32
		total := 0
		for i := 1; i <= 16; i++ {
			b := bs.GetU8()
			bits[i] = uint32(b)
			total += int(b)
		}
		var huffval [256]uint32
		for i := 0; i < total; i++ {
			huffval[i] = uint32(bs.GetU8())
		}
		tbl, err := NewHuffTable(bits, huffval, false)
		if err != nil {
			return fmt.Errorf("ljpeg: DHT table %d: %w", tableIdx, err)
		}
		d.DHTs[tableIdx] = tbl
	}
	return nil
}

func (d *Decompressor) parseSOF(bs *bitstream.ByteStream) {
	bs.GetU16() // length, unused
	precision := bs.GetU8()
	height := bs.GetU16()
	width := bs.GetU16()
	ncomp := bs.GetU8()
	comps := make([]Component, ncomp)
	for i := range comps {
		id := bs.GetU8()
		hv := bs.GetU8()
		tq := bs.GetU8()
		comps[i] = Component{ID: id, DCTblNum: int(tq), SuperH: int(hv >> 4), SuperV: int(hv & 0x0F)}
	}
	d.SOF = FrameHeader{Precision: int(precision), Height: int(height), Width: int(width), Components: comps}
}

// parseSOS reads the scan header and returns (predictor, point transform).
func (d *Decompressor) parseSOS(bs *bitstream.ByteStream) (predictor, pointTransform int) {
	bs.GetU16() // length, unused
	ns := bs.GetU8()
	for i := 0; i < int(ns); i++ {
		bs.GetU8() // component selector
		tdTa := bs.GetU8()
		if len(d.SOF.Components) > i {
			d.SOF.Components[i].DCTblNum = int(tdTa >> 4)
		}
	}
	ss := bs.GetU8()
	bs.GetU8() // se, unused for lossless
	ahAl := bs.GetU8()
	return int(ss), int(ahAl & 0x0F)
}

// Components reports the number of scan components (1 for Bayer tiles,
// 3 for the YCbCr-packed vendor variants).
func (d *Decompressor) Components() int { return len(d.SOF.Components) }

// Subsampling reports the first (luma) component's sampling factor
// pair: (2,2) for 4:2:0, (2,1) for 4:2:2, (1,1) for no subsampling.
func (d *Decompressor) Subsampling() (h, v int) {
	if len(d.SOF.Components) == 0 {
		return 1, 1
	}
	return d.SOF.Components[0].SuperH, d.SOF.Components[0].SuperV
}

// Decode runs the generic predictor-1-through-7 decode loop into out,
// writing into a stripwidth-wide canvas starting at output offset x,
// producing a width x height x Components() raster. The YCbCr
// subsampled packings and the Hasselblad/Leaf pairings live in
// subsampled.go; this is the plain interleaved-raster scan.
func (d *Decompressor) Decode(out []uint16, x, stripwidth, width, height int) error {
	ncomp := d.Components()
	if d.SOF.Width*ncomp < width || d.SOF.Height < height {
		return fmt.Errorf("ljpeg: trying to decode %dx%d into %dx%d", d.SOF.Width, d.SOF.Height, width, height)
	}

	htable := func(c int) *HuffTable {
		return d.DHTs[d.SOF.Components[c].DCTblNum]
	}

	pump := bitstream.NewJPEG(d.Buffer)
	basePrediction := int32(1) << uint(d.SOF.Precision-d.PointTransform-1)

	for c := 0; c < ncomp; c++ {
		out[x+c] = uint16(basePrediction + htable(c).HuffDecode(pump))
	}

	skipX := d.SOF.Width - width/ncomp

	for row := 0; row < height; row++ {
		startCol := x
		if row == 0 {
			startCol = x + ncomp
		}
		for col := startCol; col < width+x; col += ncomp {
			for c := 0; c < ncomp; c++ {
				var p int32
				switch {
				case col == x:
					p = int32(out[(row-1)*stripwidth+x+c])
				case row == 0 || d.Predictor == 1:
					p = int32(out[row*stripwidth+(col-ncomp)+c])
				case d.Predictor == 2:
					p = int32(out[(row-1)*stripwidth+col+c])
				case d.Predictor == 3:
					p = int32(out[(row-1)*stripwidth+(col-ncomp)+c])
				case d.Predictor == 4:
					a := int32(out[row*stripwidth+(col-ncomp)+c])
					b := int32(out[(row-1)*stripwidth+col+c])
					cc := int32(out[(row-1)*stripwidth+(col-ncomp)+c])
					p = a + b - cc
				case d.Predictor == 5:
					a := int32(out[row*stripwidth+(col-ncomp)+c])
					b := int32(out[(row-1)*stripwidth+col+c])
					cc := int32(out[(row-1)*stripwidth+(col-ncomp)+c])
					p = a + ((b - cc) >> 1)
				case d.Predictor == 6:
					a := int32(out[row*stripwidth+(col-ncomp)+c])
					b := int32(out[(row-1)*stripwidth+col+c])
					cc := int32(out[(row-1)*stripwidth+(col-ncomp)+c])
					p = b + ((a - cc) >> 1)
				case d.Predictor == 7:
					a := int32(out[row*stripwidth+(col-ncomp)+c])
					b := int32(out[(row-1)*stripwidth+col+c])
					p = (a + b) >> 1
				default:
					return fmt.Errorf("ljpeg: unsupported predictor %d", d.Predictor)
				}

				diff := htable(c).HuffDecode(pump)
				out[row*stripwidth+col+c] = uint16(p + diff)
			}
		}
		for i := 0; i < skipX; i++ {
			for c := 0; c < ncomp; c++ {
				htable(c).HuffDecode(pump)
			}
		}
	}
	return nil
}

package ljpeg

import (
	"fmt"

	"github.com/rawkit/rawkit/bitstream"
)

// The subsampled and paired scan layouts: Canon/Sony sRAW store YCbCr
// 4:2:0 or 4:2:2 MCUs inside a lossless-JPEG scan, Hasselblad packs two
// pixels' length symbols ahead of their two magnitude fields, and Leaf
// interleaves two predictors over a strip. They all share the HuffTable
// and bit-pump primitives of the plain raster scan.

// yuvTables resolves the three per-component DC tables a YCbCr scan
// needs.
func (d *Decompressor) yuvTables() (h1, h2, h3 *HuffTable, err error) {
	if len(d.SOF.Components) < 3 {
		return nil, nil, nil, fmt.Errorf("ljpeg: YCbCr scan needs 3 components, have %d", len(d.SOF.Components))
	}
	for i := 0; i < 3; i++ {
		if d.DHTs[d.SOF.Components[i].DCTblNum] == nil {
			return nil, nil, nil, fmt.Errorf("ljpeg: missing DC table %d", d.SOF.Components[i].DCTblNum)
		}
	}
	return d.DHTs[d.SOF.Components[0].DCTblNum],
		d.DHTs[d.SOF.Components[1].DCTblNum],
		d.DHTs[d.SOF.Components[2].DCTblNum], nil
}

func (d *Decompressor) checkYCbCrDims(width, height, rowStep int) error {
	if d.SOF.Width*3 != width || d.SOF.Height != height {
		return fmt.Errorf("ljpeg: trying to decode %dx%d into %dx%d", d.SOF.Width*3, d.SOF.Height, width, height)
	}
	if width%6 != 0 || height%rowStep != 0 {
		return fmt.Errorf("ljpeg: YCbCr geometry %dx%d not a whole number of MCUs", width, height)
	}
	return nil
}

// setYUV420 stores one 4:2:0 MCU: four luma samples over a 2x2 pixel
// block, chroma shared by all four.
func setYUV420(out []uint16, row, col, width int, y1, y2, y3, y4, cb, cr int32) {
	pix1 := row*width + col
	pix3 := (row+1)*width + col
	out[pix1], out[pix1+1], out[pix1+2] = uint16(y1), uint16(cb), uint16(cr)
	out[pix1+3], out[pix1+4], out[pix1+5] = uint16(y2), uint16(cb), uint16(cr)
	out[pix3], out[pix3+1], out[pix3+2] = uint16(y3), uint16(cb), uint16(cr)
	out[pix3+3], out[pix3+4], out[pix3+5] = uint16(y4), uint16(cb), uint16(cr)
}

// Decode420 expands a YCbCr 4:2:0 subsampled scan into width x height
// interleaved YCbCr samples (width counts samples, 3 per pixel). The
// four luma values of an MCU chain off each other; each MCU predicts
// from the last pixel of the previous MCU's second row, and a row pair
// starts from the first pixel two rows up.
func (d *Decompressor) Decode420(out []uint16, width, height int) error {
	if err := d.checkYCbCrDims(width, height, 2); err != nil {
		return err
	}
	h1, h2, h3, err := d.yuvTables()
	if err != nil {
		return err
	}
	pump := bitstream.NewJPEG(d.Buffer)
	base := int32(1) << (d.SOF.Precision - d.PointTransform - 1)

	y1 := base + h1.HuffDecode(pump)
	y2 := y1 + h1.HuffDecode(pump)
	y3 := y2 + h1.HuffDecode(pump)
	y4 := y3 + h1.HuffDecode(pump)
	cb := base + h2.HuffDecode(pump)
	cr := base + h3.HuffDecode(pump)
	setYUV420(out, 0, 0, width, y1, y2, y3, y4, cb, cr)

	for row := 0; row < height; row += 2 {
		startcol := 0
		if row == 0 {
			startcol = 6
		}
		for col := startcol; col < width; col += 6 {
			pos := (row+1)*width + col - 3
			if col == 0 {
				pos = (row - 2) * width
			}
			py, pcb, pcr := int32(out[pos]), int32(out[pos+1]), int32(out[pos+2])

			y1 := py + h1.HuffDecode(pump)
			y2 := y1 + h1.HuffDecode(pump)
			y3 := y2 + h1.HuffDecode(pump)
			y4 := y3 + h1.HuffDecode(pump)
			cb := pcb + h2.HuffDecode(pump)
			cr := pcr + h3.HuffDecode(pump)
			setYUV420(out, row, col, width, y1, y2, y3, y4, cb, cr)
		}
	}
	return nil
}

// DecodeSony420 is the Sony sRAW flavor of the 4:2:0 scan: the third
// luma sample predicts from the one a row above it rather than chaining
// off the second, and a row pair's first MCU references the
// second-previous row's first pixel.
func (d *Decompressor) DecodeSony420(out []uint16, width, height int) error {
	if err := d.checkYCbCrDims(width, height, 2); err != nil {
		return err
	}
	h1, h2, h3, err := d.yuvTables()
	if err != nil {
		return err
	}
	pump := bitstream.NewJPEG(d.Buffer)
	base := int32(1) << (d.SOF.Precision - d.PointTransform - 1)

	y1 := base + h1.HuffDecode(pump)
	y2 := y1 + h1.HuffDecode(pump)
	y3 := y1 + h1.HuffDecode(pump)
	y4 := y3 + h1.HuffDecode(pump)
	cb := base + h2.HuffDecode(pump)
	cr := base + h3.HuffDecode(pump)
	setYUV420(out, 0, 0, width, y1, y2, y3, y4, cb, cr)

	for row := 0; row < height; row += 2 {
		startcol := 0
		if row == 0 {
			startcol = 6
		}
		for col := startcol; col < width; col += 6 {
			var py1, py3, pcb, pcr int32
			if col == 0 {
				pos := (row - 2) * width
				py1, pcb, pcr = int32(out[pos]), int32(out[pos+1]), int32(out[pos+2])
			} else {
				pos1 := row*width + col - 3
				pos3 := (row+1)*width + col - 3
				py1, py3 = int32(out[pos1]), int32(out[pos3])
				pcb, pcr = int32(out[pos1+1]), int32(out[pos1+2])
			}

			y1 := py1 + h1.HuffDecode(pump)
			y2 := y1 + h1.HuffDecode(pump)
			var y3 int32
			if col == 0 {
				// No second-row reference at column 0: chain off y1.
				y3 = y1 + h1.HuffDecode(pump)
			} else {
				y3 = py3 + h1.HuffDecode(pump)
			}
			y4 := y3 + h1.HuffDecode(pump)
			cb := pcb + h2.HuffDecode(pump)
			cr := pcr + h3.HuffDecode(pump)
			setYUV420(out, row, col, width, y1, y2, y3, y4, cb, cr)
		}
	}
	return nil
}

// setYUV422 stores one 4:2:2 MCU: two luma samples side by side,
// shared chroma.
func setYUV422(out []uint16, row, col, width int, y1, y2, cb, cr int32) {
	pix1 := row*width + col
	out[pix1], out[pix1+1], out[pix1+2] = uint16(y1), uint16(cb), uint16(cr)
	out[pix1+3], out[pix1+4], out[pix1+5] = uint16(y2), uint16(cb), uint16(cr)
}

// Decode422 expands a YCbCr 4:2:2 subsampled scan into width x height
// interleaved YCbCr samples (width counts samples, 3 per pixel).
func (d *Decompressor) Decode422(out []uint16, width, height int) error {
	if err := d.checkYCbCrDims(width, height, 1); err != nil {
		return err
	}
	h1, h2, h3, err := d.yuvTables()
	if err != nil {
		return err
	}
	pump := bitstream.NewJPEG(d.Buffer)
	base := int32(1) << (d.SOF.Precision - d.PointTransform - 1)

	y1 := base + h1.HuffDecode(pump)
	y2 := y1 + h1.HuffDecode(pump)
	cb := base + h2.HuffDecode(pump)
	cr := base + h3.HuffDecode(pump)
	setYUV422(out, 0, 0, width, y1, y2, cb, cr)

	for row := 0; row < height; row++ {
		startcol := 0
		if row == 0 {
			startcol = 6
		}
		for col := startcol; col < width; col += 6 {
			pos := row*width + col - 3
			if col == 0 {
				pos = (row - 1) * width
			}
			py, pcb, pcr := int32(out[pos]), int32(out[pos+1]), int32(out[pos+2])

			y1 := py + h1.HuffDecode(pump)
			y2 := y1 + h1.HuffDecode(pump)
			cb := pcb + h2.HuffDecode(pump)
			cr := pcr + h3.HuffDecode(pump)
			setYUV422(out, row, col, width, y1, y2, cb, cr)
		}
	}
	return nil
}

// DecodeHasselblad expands Hasselblad's paired packing: per pixel pair,
// two length symbols come first, then the two magnitude fields
// ([len1][len2][diff1][diff2]), on a word-aligned MSB32 pump, with both
// running predictors reset to 0x8000 at the start of every row.
func (d *Decompressor) DecodeHasselblad(out []uint16, width int) error {
	if len(d.SOF.Components) == 0 {
		return fmt.Errorf("ljpeg: no scan components")
	}
	htable := d.DHTs[d.SOF.Components[0].DCTblNum]
	if htable == nil {
		return fmt.Errorf("ljpeg: missing DC table %d", d.SOF.Components[0].DCTblNum)
	}
	if width%2 != 0 {
		return fmt.Errorf("ljpeg: hasselblad row width %d must be even", width)
	}
	pump := bitstream.NewMSB32(d.Buffer)

	for rowStart := 0; rowStart+width <= len(out); rowStart += width {
		p1, p2 := int32(0x8000), int32(0x8000)
		for col := 0; col < width; col += 2 {
			l1 := htable.HuffLen(pump)
			l2 := htable.HuffLen(pump)
			p1 += htable.HuffDiff(pump, l1)
			p2 += htable.HuffDiff(pump, l2)
			out[rowStart+col] = uint16(p1)
			out[rowStart+col+1] = uint16(p2)
		}
	}
	return nil
}

// DecodeLeafStrip expands one Leaf strip: two interleaved predictors
// with their own Huffman tables, each pixel pair predicting from the
// previous pair on the row (or the previous row's first pair at column
// 0), seeded from basePred.
func DecodeLeafStrip(src []byte, out []uint16, width, height int, h1, h2 *HuffTable, basePred int32) error {
	if h1 == nil || h2 == nil {
		return fmt.Errorf("ljpeg: leaf strip needs two DC tables")
	}
	if width%2 != 0 || len(out) < width*height {
		return fmt.Errorf("ljpeg: bad leaf strip geometry %dx%d for %d samples", width, height, len(out))
	}
	pump := bitstream.NewJPEG(src)
	out[0] = uint16(basePred + h1.HuffDecode(pump))
	out[1] = uint16(basePred + h2.HuffDecode(pump))
	for row := 0; row < height; row++ {
		startcol := 0
		if row == 0 {
			startcol = 2
		}
		for col := startcol; col < width; col += 2 {
			pos := row*width + col - 2
			if col == 0 {
				pos = (row - 1) * width
			}
			p1, p2 := int32(out[pos]), int32(out[pos+1])

			out[row*width+col] = uint16(p1 + h1.HuffDecode(pump))
			out[row*width+col+1] = uint16(p2 + h2.HuffDecode(pump))
		}
	}
	return nil
}

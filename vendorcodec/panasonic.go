package vendorcodec

import (
	"github.com/rawkit/rawkit/bitstream"
)

// panasonicV6Params holds the bit-depth-dependent constants decode_panasonic_v6
// switches on: how many pixels a 16-byte block holds, and the thresholds its
// zero/negative-overflow recovery arithmetic uses.
type panasonicV6Params struct {
	pixelsPerBlock                                          int
	pixelBase0, pixelBaseCompare, spixCompare, pixelMask int32
}

func panasonicV6ParamsFor(bps uint32) (panasonicV6Params, bool) {
	switch bps {
	case 12:
		return panasonicV6Params{14, 0x80, 0x800, 0x3fff, 0xfff}, true
	case 14:
		return panasonicV6Params{11, 0x200, 0x2000, 0xffff, 0x3fff}, true
	}
	return panasonicV6Params{}, false
}

const v6BytesPerBlock = 16

// DecodePanasonicV6 decodes Panasonic's RW2 "v6" raw compression: fixed
// 16-byte blocks of LSB-first packed fields, one block per
// pixelsPerBlock-wide run, reconstructed through an odd/even "nonzero
// carry" scheme rather than predictive differencing. Works for 12 and 14
// bit sources.
func DecodePanasonicV6(buf []byte, width, height int, bps uint32) []uint16 {
	params, ok := panasonicV6ParamsFor(bps)
	if !ok {
		return nil
	}

	blocksPerRow := width / params.pixelsPerBlock
	bytesPerRow := v6BytesPerBlock * blocksPerRow

	out := make([]uint16, width*height)

	for row := 0; row < height; row++ {
		rowStart := row * bytesPerRow
		if rowStart+bytesPerRow > len(buf) {
			break
		}
		src := buf[rowStart : rowStart+bytesPerRow]
		rowOut := out[row*width:]

		for blockID := 0; blockID*v6BytesPerBlock < len(src); blockID++ {
			block := src[blockID*v6BytesPerBlock : (blockID+1)*v6BytesPerBlock]
			blockOut := rowOut[blockID*params.pixelsPerBlock:]
			decodePanasonicV6Block(block, blockOut, params, bps)
		}
	}
	return out
}

func decodePanasonicV6Block(block []byte, out []uint16, params panasonicV6Params, bps uint32) {
	var pixelbuffer [18]uint16
	pump := bitstream.NewLSB(block)

	if bps == 14 {
		pump.GetBits(4) // padding
		pixelbuffer[13] = uint16(pump.GetBits(10))
		pixelbuffer[12] = uint16(pump.GetBits(10))
		pixelbuffer[11] = uint16(pump.GetBits(10))
		pixelbuffer[10] = uint16(pump.GetBits(2))
		pixelbuffer[9] = uint16(pump.GetBits(10))
		pixelbuffer[8] = uint16(pump.GetBits(10))
		pixelbuffer[7] = uint16(pump.GetBits(10))
		pixelbuffer[6] = uint16(pump.GetBits(2))
		pixelbuffer[5] = uint16(pump.GetBits(10))
		pixelbuffer[4] = uint16(pump.GetBits(10))
		pixelbuffer[3] = uint16(pump.GetBits(10))
		pixelbuffer[2] = uint16(pump.GetBits(2))
		pixelbuffer[1] = uint16(pump.GetBits(14))
		pixelbuffer[0] = uint16(pump.GetBits(14))
	} else {
		pixelbuffer[17] = uint16(pump.GetBits(8))
		pixelbuffer[16] = uint16(pump.GetBits(8))
		pixelbuffer[15] = uint16(pump.GetBits(8))
		pixelbuffer[14] = uint16(pump.GetBits(2))
		pixelbuffer[13] = uint16(pump.GetBits(8))
		pixelbuffer[12] = uint16(pump.GetBits(8))
		pixelbuffer[11] = uint16(pump.GetBits(8))
		pixelbuffer[10] = uint16(pump.GetBits(2))
		pixelbuffer[9] = uint16(pump.GetBits(8))
		pixelbuffer[8] = uint16(pump.GetBits(8))
		pixelbuffer[7] = uint16(pump.GetBits(8))
		pixelbuffer[6] = uint16(pump.GetBits(2))
		pixelbuffer[5] = uint16(pump.GetBits(8))
		pixelbuffer[4] = uint16(pump.GetBits(8))
		pixelbuffer[3] = uint16(pump.GetBits(8))
		pixelbuffer[2] = uint16(pump.GetBits(2))
		pixelbuffer[1] = uint16(pump.GetBits(12))
		pixelbuffer[0] = uint16(pump.GetBits(12))
	}

	currPixel := 0
	nextPixel := func() uint16 {
		v := pixelbuffer[currPixel]
		currPixel++
		return v
	}

	var oddeven [2]uint16
	var nonzero [2]uint16
	var pmul int32 = 1
	var pixelBase int32

	for pix := 0; pix < params.pixelsPerBlock; pix++ {
		if pix%3 == 2 {
			base := nextPixel()
			if base == 3 {
				base = 4
			}
			pixelBase = params.pixelBase0 << base
			pmul = 1 << base
		}
		epixel := int32(nextPixel())
		slot := pix % 2
		if oddeven[slot] != 0 {
			epixel *= pmul
			if pixelBase < params.pixelBaseCompare && int32(nonzero[slot]) > pixelBase {
				epixel += int32(nonzero[slot]) - pixelBase
			}
			nonzero[slot] = uint16(epixel)
		} else {
			oddeven[slot] = uint16(epixel)
			if epixel != 0 {
				nonzero[slot] = uint16(epixel)
			} else {
				epixel = int32(nonzero[slot])
			}
		}
		spix := epixel - 0xf
		if spix <= params.spixCompare {
			out[pix] = uint16(spix & params.spixCompare)
		} else {
			epixel = (epixel + 0x7ffffff1) >> 0x1f
			out[pix] = uint16(epixel) & uint16(params.pixelMask)
		}
	}
}

// PanasonicV8StripLayout is one decoded strip's placement in the output
// image.
type PanasonicV8StripLayout struct {
	Width, Height       int
	RowOffset, ColOffset int
}

// PanasonicV8Params carries the maker-note-derived CF2 parameters the v8
// strip decoder needs, extracted by the caller (the TIFF tags involved
// belong to the decoders package, not this codec layer).
type PanasonicV8Params struct {
	GammaPoint, GammaSlope []uint32
	GammaClipVal           uint16
	HufInitVal             [4]uint16
	HufTableBits           []uint16
	HufTableSymbol         []uint16
	HufShiftDown           []uint16
	Strips                 []PanasonicV8StripLayout
}

type huffmanSymbolV8 struct {
	bitcnt uint8
	symbol uint16
	mask   uint16
}

type huffmanDecoderV8 struct {
	symbols [17]huffmanSymbolV8
	cache   [65536]struct {
		valid bool
		bits  uint8
		ssss  uint8
	}
}

func newHuffmanDecoderV8(bits, symbols []uint16) *huffmanDecoderV8 {
	d := &huffmanDecoderV8{}
	n := len(bits)
	if n > 17 {
		n = 17
	}
	for i := 0; i < n; i++ {
		symlen := bits[i]
		bitmask := uint16(0xFFFF) >> (16 - symlen)
		d.symbols[i] = huffmanSymbolV8{
			bitcnt: uint8(symlen),
			symbol: (symbols[i] & bitmask) << (16 - symlen),
			mask:   0xFFFF << (16 - symlen),
		}
	}
	for x := 0; x < 65536; x++ {
		for i := 0; i < n; i++ {
			if uint16(x)&d.symbols[i].mask == d.symbols[i].symbol {
				d.cache[x].valid = true
				d.cache[x].bits = d.symbols[i].bitcnt
				d.cache[x].ssss = uint8(i)
				break
			}
		}
	}
	return d
}

func (d *huffmanDecoderV8) getNext(pump bitstream.Pump) uint8 {
	next := pump.PeekBits(16)
	entry := d.cache[uint16(next)]
	pump.ConsumeBits(uint(entry.bits))
	return entry.ssss
}

func makePanasonicV8GammaTable(params *PanasonicV8Params) []uint16 {
	linear := true
	for i, p := range params.GammaPoint {
		if p != 65536 || (i < len(params.GammaSlope) && params.GammaSlope[i] != 0) {
			linear = false
			break
		}
	}
	if linear || len(params.GammaPoint) < 6 || len(params.GammaSlope) < 6 {
		return nil
	}
	table := make([]uint16, 0x10000)
	for idx := 0; idx < 0x10000; idx++ {
		table[idx] = calcPanasonicV8Gamma(params, uint32(idx))
	}
	return table
}

func calcPanasonicV8Gamma(params *PanasonicV8Params, idx uint32) uint16 {
	points, slopes := params.GammaPoint, params.GammaSlope
	clipping := params.GammaClipVal

	var tmp uint32 = idx | 0xFFFF0000
	if idx&0x10000 == 0 {
		tmp = idx & 0x1FFFF
	}
	x := tmp
	if x > 0xFFFF {
		x = 0xFFFF
	}

	gidx := 0
	if int32(x) < 0 {
		x = 0
	}
	if x >= (0xFFFF & slopes[1]) {
		gidx = 1
		if x >= (0xFFFF & slopes[2]) {
			gidx = 2
			if x >= (0xFFFF & slopes[3]) {
				gidx = 3
				if x >= (0xFFFF & slopes[4]) {
					gidx = int(((uint64(x)|0x500000000)-uint64(0xFFFF&slopes[5])) >> 32)
				}
			}
		}
	}

	point := points[gidx]
	slope := slopes[gidx]
	tmpv := x - (slope & 0xFFFF)

	if point&0x1F == 31 {
		var result uint16
		if gidx == 5 {
			result = 0xFFFF
		} else {
			result = uint16((slopes[gidx+1] >> 16) & 0xFFFF)
		}
		return minUint16(result, clipping)
	}
	if point&0x10 == 0 {
		if point&0x1F == 15 {
			return minUint16(uint16((slope>>16)&0xFFFF), clipping)
		} else if point&0x1F != 0 {
			tmpv = (tmpv + (1 << ((point & 0x1F) - 1))) >> (point & 0x1F)
		}
	} else {
		tmpv <<= point & 0xF
	}

	result := uint16(tmpv + ((slope >> 16) & 0xFFFF))
	return minUint16(result, clipping)
}

func minUint16(a, b uint16) uint16 {
	if a < b {
		return a
	}
	return b
}

func clampI32(v, lo, hi int32) int32 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// DecodePanasonicV8 decodes every CF2 strip described by params, writing
// into a width*height output buffer. Each strip is an independent
// Huffman+gamma+4-coefficient-predictor bitstream ("RGRGRG..GBGBGB" like
// LJPEG92's predictors 4-7). Strip bits are ordered reversed-from-MSB
// within each byte, which is exactly the order the bitstream.LSB pump
// reads — see DESIGN.md.
func DecodePanasonicV8(strips [][]byte, params PanasonicV8Params, width, height int) []uint16 {
	out := make([]uint16, width*height)
	gammaTable := makePanasonicV8GammaTable(&params)
	datamax := int32(params.GammaClipVal)

	for stripID, buf := range strips {
		if stripID >= len(params.Strips) {
			break
		}
		layout := params.Strips[stripID]
		decodePanasonicV8Strip(buf, layout, params, gammaTable, datamax, out, width)
	}
	return out
}

func decodePanasonicV8Strip(buf []byte, layout PanasonicV8StripLayout, params PanasonicV8Params, gammaTable []uint16, datamax int32, out []uint16, outWidth int) {
	huffdec := newHuffmanDecoderV8(params.HufTableBits, params.HufTableSymbol)
	pump := bitstream.NewLSB(buf)

	halfHeight := layout.Height >> 1
	halfWidth := layout.Width >> 1
	doubleWidth := halfWidth * 4
	if doubleWidth <= 0 {
		return
	}
	linebuf := make([]uint16, doubleWidth)

	lineBase := params.HufInitVal
	for currRow := 0; currRow < halfHeight; currRow++ {
		currentBase := lineBase

		for col := 0; col < doubleWidth; col++ {
			ssss := huffdec.getNext(pump)

			var shiftDown uint8
			if int(ssss) < len(params.HufShiftDown) {
				shiftDown = uint8(params.HufShiftDown[ssss] & 0x1F)
			}

			reqBits := int32(ssss) - int32(shiftDown)
			if reqBits < 0 {
				reqBits = 0
			}
			var delta1 int32
			if reqBits != 0 {
				rawbits := pump.GetBits(uint(reqBits))
				sign := rawbits >> (uint(reqBits) - 1)
				var shiftAmt uint
				if int(ssss) < len(params.HufShiftDown) {
					shiftAmt = uint(params.HufShiftDown[ssss] & 0xFF)
				}
				val := int32(rawbits << shiftAmt)
				if sign == 1 {
					delta1 = val
				} else if ssss > 0 {
					if shiftDown != 0 {
						delta1 = val + (-1 << ssss)
					} else {
						delta1 = val + (-1 << ssss) + 1
					}
				} else {
					delta1 = 0
				}
			}

			var delta2 int32
			if shiftDown != 0 {
				delta2 = 1 << (shiftDown - 1)
			}
			delta := delta1 + delta2

			group := col &^ 0x3
			destpixel := linebuf[group:]

			switch {
			case col&3 == 2:
				destpixel[1] = uint16(clampI32(int32(currentBase[1])+delta, 0, datamax))
			case col&3 == 1:
				destpixel[2] = uint16(clampI32(int32(currentBase[2])+delta, 0, datamax))
			case col&3 != 0:
				destpixel[3] = uint16(clampI32(int32(currentBase[3])+delta, 0, datamax))
			default:
				destpixel[0] = uint16(clampI32(int32(currentBase[0])+delta, 0, datamax))
			}

			if col&3 == 3 {
				copy(currentBase[:], destpixel[:4])
			}
			if col == 3 {
				copy(lineBase[:], linebuf[:4])
			}
		}

		for col := 0; col < layout.Width; col += 2 {
			destRow := layout.RowOffset + currRow*2
			left := layout.ColOffset
			writeV8Pixel(out, outWidth, destRow, left+col, linebuf[2*col], gammaTable)
			writeV8Pixel(out, outWidth, destRow, left+col+1, linebuf[2*col+1], gammaTable)
			writeV8Pixel(out, outWidth, destRow+1, left+col, linebuf[2*col+2], gammaTable)
			writeV8Pixel(out, outWidth, destRow+1, left+col+1, linebuf[2*col+3], gammaTable)
		}
	}
}

func writeV8Pixel(out []uint16, outWidth, row, col int, v uint16, gammaTable []uint16) {
	idx := row*outWidth + col
	if idx < 0 || idx >= len(out) {
		return
	}
	if gammaTable != nil {
		out[idx] = gammaTable[v]
	} else {
		out[idx] = v
	}
}

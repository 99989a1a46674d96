package vendorcodec

import (
	"encoding/binary"

	"github.com/rawkit/rawkit/bitstream"
)

// DecodeSRW1 decodes Samsung's first-generation SRW compression: 16-pixel
// horizontal groups, a per-group up/left prediction direction bit, and four
// adaptive bit-length slots selected two bits at a time. loffsets holds one
// little-endian u32 byte offset per row into buf, pointing at that row's
// bit-packed data.
func DecodeSRW1(buf, loffsets []byte, width, height int) []uint16 {
	out := make([]uint16, width*height)

	for row := 0; row < height; row++ {
		base := uint32(7)
		if row >= 2 {
			base = 4
		}
		length := [4]uint32{base, base, base, base}

		loffset := binary.LittleEndian.Uint32(loffsets[row*4:])
		pump := bitstream.NewMSB32(buf[loffset:])

		img := width * row
		imgUp := width * (maxInt(1, row) - 1)
		imgUp2 := width * (maxInt(2, row) - 2)

		for col := 0; col < width; col += 16 {
			dir := pump.GetBits(1) == 1

			ops := [4]uint32{pump.GetBits(2), pump.GetBits(2), pump.GetBits(2), pump.GetBits(2)}
			for i, op := range ops {
				switch op {
				case 3:
					length[i] = pump.GetBits(4)
				case 2:
					length[i]--
				case 1:
					length[i]++
				}
			}

			for c := 0; c < 16; c += 2 {
				l := length[c>>3]
				adj := pump.GetIBitsSextended(uint(l))
				var predictor uint16
				if dir {
					predictor = out[imgUp+col+c]
				} else if col == 0 {
					predictor = 128
				} else {
					predictor = out[img+col-2]
				}
				if col+c < width {
					out[img+col+c] = uint16(int32(predictor) + adj)
				}
			}
			for c := 1; c < 16; c += 2 {
				l := length[2|(c>>3)]
				adj := pump.GetIBitsSextended(uint(l))
				var predictor uint16
				if dir {
					predictor = out[imgUp2+col+c]
				} else if col == 0 {
					predictor = 128
				} else {
					predictor = out[img+col-1]
				}
				if col+c < width {
					out[img+col+c] = uint16(int32(predictor) + adj)
				}
			}
		}
	}

	// SRW1 has red and blue physically swapped; undo it here rather than
	// rewriting the CFA pattern, which would otherwise mis-locate samples.
	for row := 0; row < height; row += 2 {
		for col := 0; col < width; col += 2 {
			a, b := row*width+col+1, (row+1)*width+col
			out[a], out[b] = out[b], out[a]
		}
	}

	return out
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}

// srw2Table is the 1024-entry (bitlen,vallen) lookup used by decode_srw2,
// built by expanding the 14-row (code-length, value-length) table into
// every 10-bit prefix it covers.
var srw2Table = buildSRW2Table()

func buildSRW2Table() [1024][2]uint32 {
	tab := [14][2]uint32{
		{3, 4}, {3, 7}, {2, 6}, {2, 5}, {4, 3}, {6, 0}, {7, 9},
		{8, 10}, {9, 11}, {10, 12}, {10, 13}, {5, 1}, {4, 8}, {4, 2},
	}
	var tbl [1024][2]uint32
	n := 0
	for i := 0; i < 14; i++ {
		for c := 0; c < (1024 >> tab[i][0]); c++ {
			tbl[n] = tab[i]
			n++
		}
	}
	return tbl
}

func srw2Diff(pump *bitstream.MSB) int32 {
	c := pump.PeekBits(10)
	entry := srw2Table[c]
	pump.ConsumeBits(uint(entry[0]))
	length := entry[1]
	diff := int32(pump.GetBits(uint(length)))
	if length != 0 && diff&(1<<(length-1)) == 0 {
		diff -= (1 << length) - 1
	}
	return diff
}

// DecodeSRW2 decodes Samsung's second-generation SRW compression: a single
// shared 1024-entry variable-length code table, vertical prediction for the
// first two columns and horizontal prediction afterward.
func DecodeSRW2(buf []byte, width, height int) []uint16 {
	out := make([]uint16, width*height)
	var vpred [2][2]int32
	var hpred [2]int32
	pump := bitstream.NewMSB(buf)

	for row := 0; row < height; row++ {
		for col := 0; col < width; col++ {
			diff := srw2Diff(pump)
			if col < 2 {
				vpred[row&1][col] += diff
				hpred[col] = vpred[row&1][col]
			} else {
				hpred[col&1] += diff
			}
			out[row*width+col] = uint16(hpred[col&1])
		}
	}
	return out
}

const (
	srw3OptSkip = 1
	srw3OptMV   = 2
	srw3OptQP   = 4
)

func clampBits(v int32, bitDepth uint32) uint16 {
	max := int32(1<<bitDepth) - 1
	if v < 0 {
		return 0
	}
	if v > max {
		return uint16(max)
	}
	return uint16(v)
}

// DecodeSRW3 decodes Samsung's third-generation (NX1-class) SRW
// compression: a motion-vector-selected reference pixel per 16-pixel
// block plus per-block adaptive difference bit-lengths, realigned to a
// 16-byte boundary at the start of every row.
func DecodeSRW3(buf []byte, width, height int) []uint16 {
	out := make([]uint16, width*height)
	pump := bitstream.NewMSB32(buf)

	pump.GetBits(16) // NLCVersion
	pump.GetBits(4)  // ImgFormat
	bitDepth := pump.GetBits(4) + 1
	pump.GetBits(4) // NumBlkInRCUnit
	pump.GetBits(4) // CompressionRatio
	pump.GetBits(16) // Width
	pump.GetBits(16) // Height
	pump.GetBits(16) // TileWidth
	pump.GetBits(4)  // reserved

	optflags := pump.GetBits(4)

	pump.GetBits(8) // OverlapWidth
	pump.GetBits(8) // reserved
	pump.GetBits(8) // Inc
	pump.GetBits(2) // reserved
	initVal := uint16(pump.GetBits(14))

	lineOffset := 0
	for row := 0; row < height; row++ {
		lineOffset += pump.BitsConsumed() / 8
		if lineOffset&0xf != 0 {
			lineOffset += 16 - (lineOffset & 0xf)
		}
		pump = bitstream.NewMSB32(buf[lineOffset:])

		img := width * row
		imgUp := width * (maxInt(1, row) - 1)
		imgUp2 := width * (maxInt(2, row) - 2)

		motion := 7
		scale := int32(0)
		var diffBitsMode [3][2]uint32
		init := uint32(7)
		if row >= 2 {
			init = 4
		}
		for i := 0; i < 3; i++ {
			diffBitsMode[i][0] = init
			diffBitsMode[i][1] = init
		}

		for col := 0; col < width; col += 16 {
			if optflags&srw3OptQP == 0 && col&63 == 0 {
				scalevals := [3]int32{0, -2, 2}
				i := pump.GetBits(2)
				if i < 3 {
					scale = scale + scalevals[i]
				} else {
					scale = int32(pump.GetBits(12))
				}
			}

			if optflags&srw3OptMV != 0 {
				if pump.GetBits(1) != 0 {
					motion = 3
				} else {
					motion = 7
				}
			} else if pump.GetBits(1) == 0 {
				motion = int(pump.GetBits(3))
			}

			// A motion vector in the first two rows has no reference rows
			// above it; decoding stops there and the remaining samples stay
			// zero.
			if row < 2 && motion != 7 {
				return out
			}

			if motion == 7 {
				for i := 0; i < 16; i++ {
					if col == 0 {
						out[img+col+i] = initVal
					} else {
						out[img+col+i] = out[img+col+i-2]
					}
				}
			} else {
				motionOffset := [7]int{-4, -2, -2, 0, 0, 2, 4}
				motionAverage := [7]int{0, 0, 1, 0, 1, 0, 0}
				slideOffset := motionOffset[motion]

				for i := 0; i < 16; i++ {
					var refpixel int
					if (row+i)&1 != 0 {
						refpixel = imgUp2 + col + i + slideOffset
					} else if i%2 != 0 {
						refpixel = imgUp + col + i - 1 + slideOffset
					} else {
						refpixel = imgUp + col + i + 1 + slideOffset
					}
					if motionAverage[motion] != 0 {
						out[img+col+i] = uint16((int32(out[refpixel]) + int32(out[refpixel+2]) + 1) >> 1)
					} else {
						out[img+col+i] = out[refpixel]
					}
				}
			}

			var diffBits [4]uint32
			if optflags&srw3OptSkip != 0 || pump.GetBits(1) == 0 {
				flags := [4]uint32{pump.GetBits(2), pump.GetBits(2), pump.GetBits(2), pump.GetBits(2)}
				for i := 0; i < 4; i++ {
					colornum := i >> 1
					if row%2 == 0 {
						colornum = ((i >> 1) + 2) % 3
					}
					switch flags[i] {
					case 0:
						diffBits[i] = diffBitsMode[colornum][0]
					case 1:
						diffBits[i] = diffBitsMode[colornum][0] + 1
					case 2:
						diffBits[i] = diffBitsMode[colornum][0] - 1
					case 3:
						diffBits[i] = pump.GetBits(4)
					}
					diffBitsMode[colornum][0] = diffBitsMode[colornum][1]
					diffBitsMode[colornum][1] = diffBits[i]
				}
			}

			for i := 0; i < 16; i++ {
				length := diffBits[i>>2]
				diff := pump.GetIBitsSextended(uint(length))
				diff = diff*(scale*2+1) + scale

				var pos int
				if row%2 != 0 {
					pos = ((i&0x7)<<1 + 1) - (i >> 3)
				} else {
					pos = (i&0x7)<<1 + (i >> 3)
				}
				pos += img + col
				out[pos] = clampBits(int32(out[pos])+diff, bitDepth)
			}
		}
	}

	return out
}

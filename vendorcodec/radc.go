package vendorcodec

import (
	"github.com/rawkit/rawkit/bitstream"
	"github.com/rawkit/rawkit/rawbits"
)

// radcHuffInit is the 130-entry (bitcount, signed value) seed table
// decode_radc's 19 trees are built from: the first 89 entries (8 + 9*9)
// fill trees 0-9, the remaining 41 fill trees 10-17, and tree 18 is
// built separately by newRADCHuffDecoder. The values are the format's
// own constants, not derived.
var radcHuffInit = [130][2]int8{
	{1, 1}, {2, 3}, {3, 4}, {4, 2}, {5, 7}, {6, 5}, {7, 6}, {7, 8},
	{1, 0}, {2, 1}, {3, 3}, {4, 4}, {5, 2}, {6, 7}, {7, 6}, {8, 5}, {8, 8},
	{2, 1}, {2, 3}, {3, 0}, {3, 2}, {3, 4}, {4, 6}, {5, 5}, {6, 7}, {6, 8},
	{2, 0}, {2, 1}, {2, 3}, {3, 2}, {4, 4}, {5, 6}, {6, 7}, {7, 5}, {7, 8},
	{2, 1}, {2, 4}, {3, 0}, {3, 2}, {3, 3}, {4, 7}, {5, 5}, {6, 6}, {6, 8},
	{2, 3}, {3, 1}, {3, 2}, {3, 4}, {3, 5}, {3, 6}, {4, 7}, {5, 0}, {5, 8},
	{2, 3}, {2, 6}, {3, 0}, {3, 1}, {4, 4}, {4, 5}, {4, 7}, {5, 2}, {5, 8},
	{2, 4}, {2, 7}, {3, 3}, {3, 6}, {4, 1}, {4, 2}, {4, 5}, {5, 0}, {5, 8},
	{2, 6}, {3, 1}, {3, 3}, {3, 5}, {3, 7}, {3, 8}, {4, 0}, {5, 2}, {5, 4},
	{2, 0}, {2, 1}, {3, 2}, {3, 3}, {4, 4}, {4, 5}, {5, 6}, {5, 7}, {4, 8},
	{1, 0}, {2, 2}, {2, -2},
	{1, -3}, {1, 3},
	{2, -17}, {2, -5}, {2, 5}, {2, 17},
	{2, -7}, {2, 2}, {2, 9}, {2, 18},
	{2, -18}, {2, -9}, {2, -2}, {2, 7},
	{2, -28}, {2, 28}, {3, -49}, {3, -9}, {3, 9}, {4, 49}, {5, -79}, {5, 79},
	{2, -1}, {2, 13}, {2, 26}, {3, 39}, {4, -16}, {5, 55}, {6, -37}, {6, 76},
	{2, -26}, {2, -13}, {2, 1}, {3, -39}, {4, 16}, {5, -55}, {6, -76}, {6, 37},
}

type radcHuffSymbol struct {
	bitcnt uint8
	value  int8
}

type radcHuffDecoder struct {
	cache [19][256]radcHuffSymbol
}

// newRADCHuffDecoder builds the 19 fixed-shape Huffman trees, tree 18
// being the cbpp-dependent direct-value escape.
func newRADCHuffDecoder(cbpp uint8) *radcHuffDecoder {
	d := &radcHuffDecoder{}
	flat := make([]radcHuffSymbol, 0, 19*256)
	for _, x := range radcHuffInit {
		bitcnt, value := uint8(x[0]), int8(x[1])
		for i := 0; i < (256 >> bitcnt); i++ {
			flat = append(flat, radcHuffSymbol{bitcnt: bitcnt, value: value})
		}
	}
	a := 0
	for tree := 0; tree < 19 && a < len(flat); tree++ {
		for c := 0; c < 256 && a < len(flat); c++ {
			d.cache[tree][c] = flat[a]
			a++
		}
	}
	for c := 0; c < 256; c++ {
		d.cache[18][c] = radcHuffSymbol{
			bitcnt: 8 - cbpp,
			value:  int8((uint8(c)>>cbpp<<cbpp) | 1<<(cbpp-1)),
		}
	}
	return d
}

func (d *radcHuffDecoder) decode(pump bitstream.Pump, tree int) int8 {
	code := pump.PeekBits(8)
	sym := d.cache[tree][code]
	pump.ConsumeBits(uint(sym.bitcnt))
	return sym.value
}

// DecodeRADC decodes a Kodak QuickTake "RADC" (Run Adaptive Differential
// Coding) buffer: three interleaved 386-wide coefficient planes refreshed
// every 4 output rows by a per-plane multiplier, entropy-coded through 19
// small Huffman trees plus a run-length escape, followed by a fixed
// checkerboard sharpening pass and a dithered expansion through the
// 12-bit-to-14-bit curve built by buildRADCCurve.
func DecodeRADC(src []byte, width, height int, cbpp uint8) []uint16 {
	out := make([]uint16, width*height)

	last := [3]int32{16, 16, 16}
	var buf [3][3][386]int32
	for c := 0; c < 3; c++ {
		for y := 0; y < 3; y++ {
			for x := 0; x < 386; x++ {
				buf[c][y][x] = 2048
			}
		}
	}

	tbl := buildRADCCurve()
	dec := newRADCHuffDecoder(cbpp)
	pump := bitstream.NewMSB(src)

	predictor := func(c int, x, y int) int32 {
		if c > 0 {
			return (buf[c][y-1][x] + buf[c][y][x+1]) / 2
		}
		return (buf[c][y-1][x+1] + 2*buf[c][y-1][x] + buf[c][y][x+1]) / 4
	}

	at := func(row, col int) uint16 {
		if row < 0 || row >= height || col < 0 || col >= width {
			return 0
		}
		return out[row*width+col]
	}
	setAt := func(row, col int, v uint16) {
		if row < 0 || row >= height || col < 0 || col >= width {
			return
		}
		out[row*width+col] = v
	}

	for row := 0; row < height; row += 4 {
		var mul [3]int32
		mul[0] = int32(pump.GetBits(6))
		mul[1] = int32(pump.GetBits(6))
		mul[2] = int32(pump.GetBits(6))

		for c := 0; c < 3; c++ {
			var val int32 = ((0x1000000/last[c] + 0x7ff) >> 12) * mul[c]
			s := 12
			if val > 65564 {
				s = 10
			}
			x := int32(1<<(s-1)) - 1
			val <<= uint(12 - s)
			for y := 0; y < 3; y++ {
				for xi := 0; xi < 386; xi++ {
					buf[c][y][xi] = (buf[c][y][xi]*val + x) >> uint(s)
				}
			}
			last[c] = mul[c]

			maxR := 0
			if c == 0 {
				maxR = 1
			}
			for r := 0; r <= maxR; r++ {
				buf[c][1][width/2] = mul[c] << 7
				buf[c][2][width/2] = mul[c] << 7

				tree := 1
				col := width / 2
				for col > 0 {
					tree = int(dec.decode(pump, tree))
					if tree != 0 {
						col -= 2
						if tree == 8 {
							for y := 1; y < 3; y++ {
								for x := col + 1; x >= col; x-- {
									buf[c][y][x] = int32(uint8(dec.decode(pump, 18))) * mul[c]
								}
							}
						} else {
							for y := 1; y < 3; y++ {
								for x := col + 1; x >= col; x-- {
									buf[c][y][x] = int32(dec.decode(pump, tree+10))*16 + predictor(c, x, y)
								}
							}
						}
					} else {
						for {
							nreps := int8(1)
							if col > 2 {
								nreps = dec.decode(pump, 9) + 1
							}
							for rep := 0; rep < 8; rep++ {
								if int8(rep) < nreps && col > 0 {
									col -= 2
									for y := 1; y < 3; y++ {
										for x := col + 1; x >= col; x-- {
											buf[c][y][x] = predictor(c, x, y)
										}
									}
									if rep&1 > 0 {
										step := int32(dec.decode(pump, 10)) << 4
										for y := 1; y < 3; y++ {
											for x := col + 1; x >= col; x-- {
												buf[c][y][x] += step
											}
										}
									}
								}
							}
							if nreps != 9 {
								break
							}
						}
					}
				}

				for y := 0; y < 2; y++ {
					for x := 0; x < width/2; x++ {
						v := (buf[c][y+1][x] << 4) / mul[c]
						if v < 0 {
							v = 0
						}
						if c > 0 {
							setAt(row+y*2+c-1, x*2+2-c, uint16(v))
						} else {
							setAt(row+r*2+y, x*2+y, uint16(v))
						}
					}
				}

				// Slide plane history: row 2 becomes row 0 (and a one-cell
				// shift for the luma plane, matching the Rust split_at_mut
				// dance that avoids a double mutable borrow).
				if c == 0 {
					copy(buf[c][0][1:], buf[c][2][:385])
				} else {
					buf[c][0] = buf[c][2]
				}
			}
		}

		for y := row; y < row+4 && y < height; y++ {
			for x := 0; x < width; x++ {
				if (x+y)&1 > 0 {
					r := x - 1
					if x == 0 {
						r = x + 1
					}
					s := x + 1
					if x+1 >= width {
						s = x - 1
					}
					v := (int32(at(y, x))-2048)*2 + (int32(at(y, r))+int32(at(y, s)))/2
					if v < 0 {
						setAt(y, x, 0)
					} else {
						setAt(y, x, uint16(v))
					}
				}
			}
		}
	}

	for row := 0; row < height; row++ {
		line := out[row*width : (row+1)*width]
		if len(line) < 2 {
			continue
		}
		random := uint32(line[0])<<16 | uint32(line[1])
		for i := range line {
			line[i] = tbl.Dither(line[i], &random)
		}
	}

	return out
}

// buildRADCCurve builds the fixed 6-point companding curve RADC images
// are compressed with, matching decompress's inline "PT" table.
func buildRADCCurve() *rawbits.LookupTable {
	type point struct {
		x int
		y float64
	}
	pt := [6]point{{0, 0}, {1280, 1344}, {2320, 3616}, {3328, 8000}, {4095, 16383}, {65535, 16383}}
	curve := make([]uint16, 65536)
	for i := 1; i < len(pt); i++ {
		for c := pt[i-1].x; c <= pt[i].x; c++ {
			v := float64(c-pt[i-1].x)/float64(pt[i].x-pt[i-1].x)*(pt[i].y-pt[i-1].y) + pt[i-1].y + 0.5
			curve[c] = uint16(v)
		}
	}
	return rawbits.NewLookupTableWithBits(curve, 16)
}

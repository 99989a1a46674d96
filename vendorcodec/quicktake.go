package vendorcodec

import (
	"github.com/rawkit/rawkit/bitstream"
	"github.com/rawkit/rawkit/rawbits"
)

// quicktake100Curve is the fixed 8-to-10-bit companding curve dcraw's
// quicktake_100_load_raw dithers its reconstructed samples through —
// the format's own constant table, not derived.
var quicktake100Curve = [256]uint16{
	0, 1, 2, 3, 4, 5, 6, 7, 8, 9, 11, 12, 13, 14, 15, 16, 17, 18, 19, 20, 21, 22, 23, 24, 25, 26, 27, 28, 29, 30, 32, 33,
	34, 35, 36, 37, 38, 39, 40, 41, 42, 43, 44, 45, 46, 47, 48, 49, 50, 51, 53, 54, 55, 56, 57, 58, 59, 60, 61, 62, 63,
	64, 65, 66, 67, 68, 69, 70, 71, 72, 74, 75, 76, 77, 78, 79, 80, 81, 82, 83, 84, 86, 88, 90, 92, 94, 97, 99, 101,
	103, 105, 107, 110, 112, 114, 116, 118, 120, 123, 125, 127, 129, 131, 134, 136, 138, 140, 142, 144, 147, 149, 151,
	153, 155, 158, 160, 162, 164, 166, 168, 171, 173, 175, 177, 179, 181, 184, 186, 188, 190, 192, 195, 197, 199, 201,
	203, 205, 208, 210, 212, 214, 216, 218, 221, 223, 226, 230, 235, 239, 244, 248, 252, 257, 261, 265, 270, 274, 278,
	283, 287, 291, 296, 300, 305, 309, 313, 318, 322, 326, 331, 335, 339, 344, 348, 352, 357, 361, 365, 370, 374, 379,
	383, 387, 392, 396, 400, 405, 409, 413, 418, 422, 426, 431, 435, 440, 444, 448, 453, 457, 461, 466, 470, 474, 479,
	483, 487, 492, 496, 500, 508, 519, 531, 542, 553, 564, 575, 587, 598, 609, 620, 631, 643, 654, 665, 676, 687, 698,
	710, 721, 732, 743, 754, 766, 777, 788, 799, 810, 822, 833, 844, 855, 866, 878, 889, 900, 911, 922, 933, 945, 956,
	967, 978, 989, 1001, 1012, 1023,
}

var quicktake100GStep = [16]int16{-89, -60, -44, -32, -22, -15, -8, -2, 2, 8, 15, 22, 32, 44, 60, 89}

var quicktake100RStep = [6][4]int16{
	{-3, -1, 1, 3},
	{-5, -1, 1, 5},
	{-8, -2, 2, 8},
	{-13, -3, 3, 13},
	{-19, -4, 4, 19},
	{-28, -6, 6, 28},
}

func clamp8(v int32) int16 {
	if v < 0 {
		return 0
	}
	if v > 255 {
		return 255
	}
	return int16(v)
}

// DecodeQuickTake100 decodes an Apple QuickTake 100 raw buffer: a
// two-pass predictive reconstruction over a 644x484 working grid (green
// channel first, then the diagonal red/blue interpolation), followed by a
// fixed sharpening correction and the camera's 8-to-10-bit dither curve,
// following dcraw.c's quicktake_100_load_raw.
func DecodeQuickTake100(src []byte, width, height int) []uint16 {
	pump := bitstream.NewMSB(src)

	var pix [484][644]int16
	for r := range pix {
		for c := range pix[r] {
			pix[r][c] = 0x80
		}
	}

	for row := 2; row < height+2; row++ {
		cstart := 2 + (row & 1)
		var val int16
		for col := cstart; col < width+2; col += 2 {
			g := int32(pix[row-1][col-1]) + 2*int32(pix[row-1][col+1]) + int32(pix[row][col-2])
			val = clamp8((g >> 2) + int32(quicktake100GStep[pump.GetBits(4)]))
			pix[row][col] = val
			if col < 4 {
				pix[row][col-2] = val
				pix[row+1][(^row)&1] = val
			}
			if row == 2 {
				pix[row-1][col+1] = val
				pix[row-1][col+3] = val
			}
		}
		if width+2+(row&1) < 644 {
			pix[row][width+2+(row&1)] = val
		}
	}

	for rb := 0; rb < 2; rb++ {
		for row := 2 + rb; row < height+2; row += 2 {
			for col := 3 - (row & 1); col < width+2; col += 2 {
				sharp := 2
				if row >= 4 && col >= 4 {
					d := abs32(int32(pix[row-2][col])-int32(pix[row][col-2])) +
						abs32(int32(pix[row-2][col])-int32(pix[row-2][col-2])) +
						abs32(int32(pix[row][col-2])-int32(pix[row-2][col-2]))
					switch {
					case d < 4:
						sharp = 0
					case d < 8:
						sharp = 1
					case d < 16:
						sharp = 2
					case d < 32:
						sharp = 3
					case d < 48:
						sharp = 4
					default:
						sharp = 5
					}
				}
				avg := (int32(pix[row-2][col]) + int32(pix[row][col-2])) >> 1
				val := clamp8(avg + int32(quicktake100RStep[sharp][pump.GetBits(2)]))
				pix[row][col] = val
				if row < 4 {
					pix[row-2][col+2] = val
				}
				if col < 4 {
					pix[row+2][col-2] = val
				}
			}
		}
	}

	for row := 2; row < height+2; row++ {
		for col := 3 - (row & 1); col < width+2; col += 2 {
			v := (int32(pix[row][col-1]) + (int32(pix[row][col]) << 2) + int32(pix[row][col+1])) >> 1
			pix[row][col] = clamp8(v - 0x100)
		}
	}

	tbl := rawbits.NewLookupTableWithBits(quicktake100Curve[:], 10)
	out := make([]uint16, width*height)
	for row := 0; row < height; row++ {
		random := uint32(pix[row+2][2])<<16 | uint32(pix[row+2][3])
		for col := 0; col < width; col++ {
			out[row*width+col] = tbl.Dither(uint16(pix[row+2][col+2]), &random)
		}
	}
	return out
}

func abs32(v int32) int32 {
	if v < 0 {
		return -v
	}
	return v
}

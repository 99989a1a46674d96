package vendorcodec

import (
	"github.com/rawkit/rawkit/bitstream"
	"github.com/rawkit/rawkit/internal/rawerr"
	"github.com/rawkit/rawkit/ljpeg"
)

// pentaxFallbackTree is the fixed Huffman table Pentax cameras fall back
// to when no HuffmanTable tag is present in the makernote: 16 bit-length
// counts followed by the huffval bytes they describe.
var pentaxFallbackTree = [29]uint32{
	0, 2, 3, 1, 1, 1, 1, 1, 1, 2, 0, 0, 0, 0, 0, 0,
	3, 4, 2, 5, 1, 6, 0, 7, 8, 9, 10, 11, 12,
}

// DecodePentax decodes a Pentax PEF raw strip: two interleaved
// predictors (even/odd columns), one shared Huffman table built either
// from the makernote's embedded HuffmanTable tag or from the fixed
// fallback table.
func DecodePentax(src []byte, makernoteHuff []byte, endian bitstream.Endian, width, height int) ([]uint16, error) {
	table, err := buildPentaxHuffTable(makernoteHuff, endian)
	if err != nil {
		return nil, err
	}

	out := make([]uint16, width*height)
	pump := bitstream.NewMSB(src)

	var predUp1, predUp2 [2]int32
	for row := 0; row < height; row++ {
		parity := row & 1
		predUp1[parity] += table.HuffDecode(pump)
		predUp2[parity] += table.HuffDecode(pump)
		left1 := predUp1[parity]
		left2 := predUp2[parity]
		out[row*width+0] = uint16(left1)
		out[row*width+1] = uint16(left2)
		for col := 2; col < width; col += 2 {
			left1 += table.HuffDecode(pump)
			left2 += table.HuffDecode(pump)
			out[row*width+col+0] = uint16(left1)
			out[row*width+col+1] = uint16(left2)
		}
	}
	return out, nil
}

// buildPentaxHuffTable derives a ljpeg.HuffTable either from the
// makernote-embedded byte table (a depth-prefixed value/bit-length pair
// list that still needs canonical-code assignment via a repeated
// smallest-value search) or, when huff is nil, from the fixed
// pentaxFallbackTree.
func buildPentaxHuffTable(huff []byte, endian bitstream.Endian) (*ljpeg.HuffTable, error) {
	var bits [17]uint32
	var huffval [256]uint32

	if huff != nil {
		s := bitstream.NewByteStream(huff, endian)
		depth := int((uint32(s.GetU16()) + 12) & 0xf)
		s.ConsumeBytes(12)

		var v0, v1 [16]uint32
		for i := 0; i < depth; i++ {
			v0[i] = uint32(s.GetU16())
		}
		for i := 0; i < depth; i++ {
			v1[i] = uint32(s.GetU8())
		}

		var v2 [16]uint32
		for c := 0; c < depth; c++ {
			v2[c] = v0[c] >> (12 - v1[c])
			bits[v1[c]]++
		}

		for i := 0; i < depth; i++ {
			var smVal uint32 = 0xfffffff
			var smNum uint32 = 0xff
			for j := 0; j < depth; j++ {
				if v2[j] <= smVal {
					smNum = uint32(j)
					smVal = v2[j]
				}
			}
			huffval[i] = smNum
			v2[smNum] = 0xffffffff
		}
	} else {
		acc := 0
		for i := 0; i < 16; i++ {
			bits[i+1] = pentaxFallbackTree[i]
			acc += int(bits[i+1])
		}
		for i := 0; i < acc; i++ {
			huffval[i] = pentaxFallbackTree[i+16]
		}
	}

	table, err := ljpeg.NewHuffTable(bits, huffval, false)
	if err != nil {
		return nil, rawerr.Fail("pentax", "build huffman table", err)
	}
	return table, nil
}

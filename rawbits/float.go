package rawbits

import (
	"encoding/binary"
	"fmt"
	"math"
)

// Floating-point sample widening for the fp16/fp24 storage formats some
// floating-point DNGs use: the narrow value's sign is carried over, the
// exponent is re-biased into the fp32 range, and the fraction is
// left-shifted. Subnormals are re-normalized; an all-ones exponent maps
// to fp32 infinity/NaN.

// WidenFP16 expands an IEEE half-precision bit pattern (1-5-10) to the
// equivalent fp32 bit pattern.
func WidenFP16(bits uint16) uint32 {
	sign := uint32(bits>>15) << 31
	exp := uint32(bits>>10) & 0x1f
	frac := uint32(bits) & 0x3ff
	switch {
	case exp == 0:
		if frac == 0 {
			return sign
		}
		e := uint32(127 - 15 + 1)
		for frac&0x400 == 0 {
			frac <<= 1
			e--
		}
		return sign | e<<23 | (frac&0x3ff)<<13
	case exp == 0x1f:
		return sign | 0xff<<23 | frac<<13
	default:
		return sign | (exp+127-15)<<23 | frac<<13
	}
}

// WidenFP24 expands a 24-bit (1-7-16, bias 64) storage pattern to the
// equivalent fp32 bit pattern.
func WidenFP24(bits uint32) uint32 {
	sign := bits >> 23 << 31
	exp := bits >> 16 & 0x7f
	frac := bits & 0xffff
	switch {
	case exp == 0:
		if frac == 0 {
			return sign
		}
		e := uint32(127 - 64 + 1)
		for frac&0x10000 == 0 {
			frac <<= 1
			e--
		}
		return sign | e<<23 | (frac&0xffff)<<7
	case exp == 0x7f:
		return sign | 0xff<<23 | frac<<7
	default:
		return sign | (exp+127-64)<<23 | frac<<7
	}
}

// UnpackFloats decodes count samples of bps-bit (16, 24 or 32) IEEE
// floating-point storage from buf into fp32 values.
func UnpackFloats(buf []byte, count, bps int, endian Endian) ([]float32, error) {
	bytesPer := bps / 8
	if bps != 16 && bps != 24 && bps != 32 {
		return nil, fmt.Errorf("rawbits: unsupported float depth %d", bps)
	}
	if len(buf) < count*bytesPer {
		return nil, fmt.Errorf("rawbits: float buffer too short: %d bytes for %d x %d-bit samples", len(buf), count, bps)
	}
	var order binary.ByteOrder = binary.LittleEndian
	if endian == BigEndian {
		order = binary.BigEndian
	}
	out := make([]float32, count)
	for i := 0; i < count; i++ {
		b := buf[i*bytesPer:]
		switch bps {
		case 16:
			out[i] = math.Float32frombits(WidenFP16(order.Uint16(b)))
		case 24:
			v := uint32(b[0])<<16 | uint32(b[1])<<8 | uint32(b[2])
			if endian == LittleEndian {
				v = uint32(b[2])<<16 | uint32(b[1])<<8 | uint32(b[0])
			}
			out[i] = math.Float32frombits(WidenFP24(v))
		case 32:
			out[i] = math.Float32frombits(order.Uint32(b))
		}
	}
	return out, nil
}

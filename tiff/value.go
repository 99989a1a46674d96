// Package tiff implements the TIFF reader and writer that underlie
// both parsing vendor raw containers and assembling the DNG output
// container.
package tiff

import "fmt"

// Type is a TIFF/EXIF/DNG field type code.
type Type uint16

const (
	TypeByte      Type = 1
	TypeAscii     Type = 2
	TypeShort     Type = 3
	TypeLong      Type = 4
	TypeRational  Type = 5
	TypeSByte     Type = 6
	TypeUndefined Type = 7
	TypeSShort    Type = 8
	TypeSLong     Type = 9
	TypeSRational Type = 10
	TypeFloat     Type = 11
	TypeDouble    Type = 12

	// TypeUnknown marks a type code the reader didn't recognize; the raw
	// bytes are preserved verbatim so a downstream vendor parser can still
	// reinterpret them.
	TypeUnknown Type = 0
)

// Size returns the on-disk size in bytes of one value of this type.
func (t Type) Size() int {
	switch t {
	case TypeByte, TypeAscii, TypeSByte, TypeUndefined:
		return 1
	case TypeShort, TypeSShort:
		return 2
	case TypeLong, TypeSLong, TypeFloat:
		return 4
	case TypeRational, TypeSRational, TypeDouble:
		return 8
	default:
		return 1
	}
}

// Rational is an unsigned numerator/denominator pair.
type Rational struct{ Num, Denom uint32 }

// Float64 converts the rational to a float64. A zero denominator is
// invalid; callers that construct Rationals must
// not produce one, but Float64 returns 0 defensively rather than
// panicking on malformed input read from a file.
func (r Rational) Float64() float64 {
	if r.Denom == 0 {
		return 0
	}
	return float64(r.Num) / float64(r.Denom)
}

// SRational is a signed numerator/denominator pair.
type SRational struct{ Num, Denom int32 }

func (r SRational) Float64() float64 {
	if r.Denom == 0 {
		return 0
	}
	return float64(r.Num) / float64(r.Denom)
}

// Value is a typed, decoded TIFF entry value. Exactly one of the slice
// fields is populated, matching Type.
type Value struct {
	Type Type

	Bytes      []uint8
	SBytes     []int8
	Ascii      string
	Shorts     []uint16
	SShorts    []int16
	Longs      []uint32
	SLongs     []int32
	Rationals  []Rational
	SRationals []SRational
	Floats     []float32
	Doubles    []float64
	Undefined  []byte
	// Raw holds the undecoded on-disk bytes for TypeUnknown entries.
	Raw []byte
}

// Count returns the number of values this entry carries.
func (v Value) Count() int {
	switch v.Type {
	case TypeByte:
		return len(v.Bytes)
	case TypeSByte:
		return len(v.SBytes)
	case TypeAscii:
		return len(v.Ascii)
	case TypeShort:
		return len(v.Shorts)
	case TypeSShort:
		return len(v.SShorts)
	case TypeLong:
		return len(v.Longs)
	case TypeSLong:
		return len(v.SLongs)
	case TypeRational:
		return len(v.Rationals)
	case TypeSRational:
		return len(v.SRationals)
	case TypeFloat:
		return len(v.Floats)
	case TypeDouble:
		return len(v.Doubles)
	case TypeUndefined:
		return len(v.Undefined)
	default:
		return len(v.Raw)
	}
}

// AsUint tries to interpret the value as a single unsigned integer,
// covering the Byte/Short/Long family used for most metadata tags.
func (v Value) AsUint() (uint32, bool) {
	switch v.Type {
	case TypeByte:
		if len(v.Bytes) > 0 {
			return uint32(v.Bytes[0]), true
		}
	case TypeShort:
		if len(v.Shorts) > 0 {
			return uint32(v.Shorts[0]), true
		}
	case TypeLong:
		if len(v.Longs) > 0 {
			return v.Longs[0], true
		}
	}
	return 0, false
}

// AsUints returns every value widened to uint32, for Byte/Short/Long
// arrays such as CFAPattern or BlackLevelRepeatDim.
func (v Value) AsUints() []uint32 {
	switch v.Type {
	case TypeByte:
		out := make([]uint32, len(v.Bytes))
		for i, b := range v.Bytes {
			out[i] = uint32(b)
		}
		return out
	case TypeShort:
		out := make([]uint32, len(v.Shorts))
		for i, s := range v.Shorts {
			out[i] = uint32(s)
		}
		return out
	case TypeLong:
		return v.Longs
	}
	return nil
}

// AsRationals widens Short/Long/Rational arrays to Rational (denom=1 for
// integer types), used for tags like BlackLevel that may be encoded
// either as Short or Rational.
func (v Value) AsRationals() []Rational {
	switch v.Type {
	case TypeRational:
		return v.Rationals
	case TypeShort:
		out := make([]Rational, len(v.Shorts))
		for i, s := range v.Shorts {
			out[i] = Rational{uint32(s), 1}
		}
		return out
	case TypeLong:
		out := make([]Rational, len(v.Longs))
		for i, l := range v.Longs {
			out[i] = Rational{l, 1}
		}
		return out
	}
	return nil
}

func (v Value) String() string {
	switch v.Type {
	case TypeAscii:
		return v.Ascii
	default:
		return fmt.Sprintf("%s[%d]", typeName(v.Type), v.Count())
	}
}

func typeName(t Type) string {
	switch t {
	case TypeByte:
		return "BYTE"
	case TypeAscii:
		return "ASCII"
	case TypeShort:
		return "SHORT"
	case TypeLong:
		return "LONG"
	case TypeRational:
		return "RATIONAL"
	case TypeSByte:
		return "SBYTE"
	case TypeUndefined:
		return "UNDEFINED"
	case TypeSShort:
		return "SSHORT"
	case TypeSLong:
		return "SLONG"
	case TypeSRational:
		return "SRATIONAL"
	case TypeFloat:
		return "FLOAT"
	case TypeDouble:
		return "DOUBLE"
	default:
		return "UNKNOWN"
	}
}

package tiff

import (
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"sort"
)

// Builder assembles one ordered TIFF directory: entries are kept in a
// tag -> entry map and always emitted in ascending tag order, as the
// TIFF spec requires. Values of 4 bytes or fewer pack inline into the
// offset slot, longer ones are word-aligned and written to a pointer
// area, and nested directories are built bottom-up before the parent
// references them.
type Builder struct {
	entries map[Tag]*builderEntry
	order   []Tag
}

type builderEntry struct {
	typ   Type
	count uint32
	data  []byte // pre-encoded value bytes, little-endian packed per type
}

// NewBuilder returns an empty directory builder.
func NewBuilder() *Builder {
	return &Builder{entries: make(map[Tag]*builderEntry)}
}

// Len reports how many distinct tags have been added so far.
func (b *Builder) Len() int {
	return len(b.order)
}

func (b *Builder) set(tag Tag, e *builderEntry) {
	if _, exists := b.entries[tag]; !exists {
		b.order = append(b.order, tag)
	}
	b.entries[tag] = e
}

// AddShort adds a single SHORT value.
func (b *Builder) AddShort(tag Tag, v uint16) {
	buf := make([]byte, 2)
	binary.LittleEndian.PutUint16(buf, v)
	b.set(tag, &builderEntry{TypeShort, 1, buf})
}

// AddShortArray adds a SHORT array.
func (b *Builder) AddShortArray(tag Tag, vs []uint16) {
	buf := make([]byte, len(vs)*2)
	for i, v := range vs {
		binary.LittleEndian.PutUint16(buf[i*2:], v)
	}
	b.set(tag, &builderEntry{TypeShort, uint32(len(vs)), buf})
}

// AddLong adds a single LONG value.
func (b *Builder) AddLong(tag Tag, v uint32) {
	buf := make([]byte, 4)
	binary.LittleEndian.PutUint32(buf, v)
	b.set(tag, &builderEntry{TypeLong, 1, buf})
}

// AddLongArray adds a LONG array.
func (b *Builder) AddLongArray(tag Tag, vs []uint32) {
	buf := make([]byte, len(vs)*4)
	for i, v := range vs {
		binary.LittleEndian.PutUint32(buf[i*4:], v)
	}
	b.set(tag, &builderEntry{TypeLong, uint32(len(vs)), buf})
}

// AddByte adds a single BYTE value.
func (b *Builder) AddByte(tag Tag, v byte) {
	b.set(tag, &builderEntry{TypeByte, 1, []byte{v}})
}

// AddByteArray adds a BYTE array.
func (b *Builder) AddByteArray(tag Tag, vs []byte) {
	b.set(tag, &builderEntry{TypeByte, uint32(len(vs)), append([]byte(nil), vs...)})
}

// AddASCII adds a NUL-terminated ASCII string.
func (b *Builder) AddASCII(tag Tag, s string) {
	data := append([]byte(s), 0)
	b.set(tag, &builderEntry{TypeAscii, uint32(len(data)), data})
}

// AddRational adds a single RATIONAL value.
func (b *Builder) AddRational(tag Tag, num, denom uint32) {
	buf := make([]byte, 8)
	binary.LittleEndian.PutUint32(buf, num)
	binary.LittleEndian.PutUint32(buf[4:], denom)
	b.set(tag, &builderEntry{TypeRational, 1, buf})
}

// AddRationalArray adds a RATIONAL array.
func (b *Builder) AddRationalArray(tag Tag, vs []Rational) {
	buf := make([]byte, len(vs)*8)
	for i, v := range vs {
		binary.LittleEndian.PutUint32(buf[i*8:], v.Num)
		binary.LittleEndian.PutUint32(buf[i*8+4:], v.Denom)
	}
	b.set(tag, &builderEntry{TypeRational, uint32(len(vs)), buf})
}

// AddSRational adds a single SRATIONAL value.
func (b *Builder) AddSRational(tag Tag, num, denom int32) {
	buf := make([]byte, 8)
	binary.LittleEndian.PutUint32(buf, uint32(num))
	binary.LittleEndian.PutUint32(buf[4:], uint32(denom))
	b.set(tag, &builderEntry{TypeSRational, 1, buf})
}

// AddSRationalArray adds an SRATIONAL array.
func (b *Builder) AddSRationalArray(tag Tag, vs []SRational) {
	buf := make([]byte, len(vs)*8)
	for i, v := range vs {
		binary.LittleEndian.PutUint32(buf[i*8:], uint32(v.Num))
		binary.LittleEndian.PutUint32(buf[i*8+4:], uint32(v.Denom))
	}
	b.set(tag, &builderEntry{TypeSRational, uint32(len(vs)), buf})
}

// maxRationalDenom caps a synthesized denominator at 2^26, close to
// libtiff's own behavior and large enough to avoid visible precision
// loss in color-matrix coefficients.
const maxRationalDenom = 1 << 26

// AddRationalArrayFromFloats converts each float to the nearest rational
// via a continued-fraction search and adds it as RATIONAL or SRATIONAL.
func (b *Builder) AddRationalArrayFromFloats(tag Tag, vs []float64, signed bool) {
	if signed {
		out := make([]SRational, len(vs))
		for i, v := range vs {
			n, d := FloatToRational(v, maxRationalDenom)
			out[i] = SRational{int32(n), int32(d)}
		}
		b.AddSRationalArray(tag, out)
		return
	}
	out := make([]Rational, len(vs))
	for i, v := range vs {
		n, d := FloatToRational(v, maxRationalDenom)
		out[i] = Rational{uint32(n), uint32(d)}
	}
	b.AddRationalArray(tag, out)
}

// AddUndefined adds raw UNDEFINED bytes (e.g. OriginalRawFileData).
func (b *Builder) AddUndefined(tag Tag, data []byte) {
	b.set(tag, &builderEntry{TypeUndefined, uint32(len(data)), append([]byte(nil), data...)})
}

// AddValue adds an already-typed Value verbatim, re-encoding it to the
// builder's little-endian wire format. Used to merge a decoder-contributed
// VirtualIFD into this directory without the caller
// having to know which typed Add* method matches each tag.
func (b *Builder) AddValue(tag Tag, v Value) {
	switch v.Type {
	case TypeByte:
		b.AddByteArray(tag, v.Bytes)
	case TypeAscii:
		b.AddASCII(tag, v.Ascii)
	case TypeShort:
		b.AddShortArray(tag, v.Shorts)
	case TypeLong:
		b.AddLongArray(tag, v.Longs)
	case TypeRational:
		b.AddRationalArray(tag, v.Rationals)
	case TypeSRational:
		b.AddSRationalArray(tag, v.SRationals)
	case TypeUndefined:
		b.AddUndefined(tag, v.Undefined)
	case TypeSByte:
		buf := make([]byte, len(v.SBytes))
		for i, s := range v.SBytes {
			buf[i] = byte(s)
		}
		b.set(tag, &builderEntry{TypeSByte, uint32(len(buf)), buf})
	case TypeSShort:
		buf := make([]byte, len(v.SShorts)*2)
		for i, s := range v.SShorts {
			binary.LittleEndian.PutUint16(buf[i*2:], uint16(s))
		}
		b.set(tag, &builderEntry{TypeSShort, uint32(len(v.SShorts)), buf})
	case TypeSLong:
		buf := make([]byte, len(v.SLongs)*4)
		for i, s := range v.SLongs {
			binary.LittleEndian.PutUint32(buf[i*4:], uint32(s))
		}
		b.set(tag, &builderEntry{TypeSLong, uint32(len(v.SLongs)), buf})
	case TypeFloat:
		buf := make([]byte, len(v.Floats)*4)
		for i, f := range v.Floats {
			binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
		}
		b.set(tag, &builderEntry{TypeFloat, uint32(len(v.Floats)), buf})
	case TypeDouble:
		buf := make([]byte, len(v.Doubles)*8)
		for i, f := range v.Doubles {
			binary.LittleEndian.PutUint64(buf[i*8:], math.Float64bits(f))
		}
		b.set(tag, &builderEntry{TypeDouble, uint32(len(v.Doubles)), buf})
	default:
		b.set(tag, &builderEntry{TypeUndefined, uint32(len(v.Raw)), append([]byte(nil), v.Raw...)})
	}
}

// reservedPointer is a placeholder LONG entry whose value is patched in
// after the value it points to has actually been written.
type reservedPointer struct {
	b   *Builder
	tag Tag
}

// ReservePointer adds a placeholder LONG entry for tag and returns a
// handle that can later be resolved with Set.
func (b *Builder) ReservePointer(tag Tag) *reservedPointer {
	b.AddLong(tag, 0)
	return &reservedPointer{b: b, tag: tag}
}

// Set patches a reserved pointer's value after the fact.
func (p *reservedPointer) Set(offset uint32) {
	binary.LittleEndian.PutUint32(p.b.entries[p.tag].data, offset)
}

// FloatToRational approximates value as num/denom with denom <= maxDenom
// using a continued-fraction search.
func FloatToRational(value float64, maxDenom int64) (num, denom int64) {
	if value == 0 {
		return 0, 1
	}
	sign := int64(1)
	if value < 0 {
		sign = -1
		value = -value
	}
	z := value
	n0, d0 := int64(0), int64(1)
	n1, d1 := int64(1), int64(0)
	for i := 0; i < 50; i++ {
		a := int64(z)
		n2 := n1*a + n0
		d2 := d1*a + d0
		if d2 > maxDenom {
			break
		}
		n0, d0 = n1, d1
		n1, d1 = n2, d2
		if z == float64(a) {
			break
		}
		z = 1.0 / (z - float64(a))
	}
	return sign * n1, d1
}

// Write emits this directory's entries (in ascending tag order), then its
// pointer-area payload, to w. startPos is w's current absolute offset, so
// the writer can compute where over-4-byte values will land. nextIFD is
// written into the chain-link field (0 for a terminal IFD). It returns
// this IFD's own absolute offset (== startPos) so a parent directory can
// reference it.
func (b *Builder) Write(w io.WriteSeeker, startPos int64, nextIFD uint32) (int64, error) {
	if len(b.order) == 0 {
		return 0, fmt.Errorf("tiff: empty directory rejected at build time")
	}

	tags := append([]Tag(nil), b.order...)
	sort.Slice(tags, func(i, j int) bool { return tags[i] < tags[j] })

	const entryLen = 12
	numEntries := uint16(len(tags))
	headerLen := int64(2 + int(numEntries)*entryLen + 4)
	pointerAreaOffset := startPos + headerLen

	if err := binary.Write(w, binary.LittleEndian, numEntries); err != nil {
		return 0, err
	}

	var pointerArea []byte
	var entryBuf [entryLen]byte
	for _, tag := range tags {
		e := b.entries[tag]
		binary.LittleEndian.PutUint16(entryBuf[0:2], uint16(tag))
		binary.LittleEndian.PutUint16(entryBuf[2:4], uint16(e.typ))
		binary.LittleEndian.PutUint32(entryBuf[4:8], e.count)

		if len(e.data) <= 4 {
			var inline [4]byte
			copy(inline[:], e.data)
			copy(entryBuf[8:12], inline[:])
		} else {
			offset := pointerAreaOffset + int64(len(pointerArea))
			binary.LittleEndian.PutUint32(entryBuf[8:12], uint32(offset))
			pointerArea = append(pointerArea, e.data...)
			if len(pointerArea)%2 != 0 {
				pointerArea = append(pointerArea, 0) // word-align next entry
			}
		}
		if _, err := w.Write(entryBuf[:]); err != nil {
			return 0, err
		}
	}

	if err := binary.Write(w, binary.LittleEndian, nextIFD); err != nil {
		return 0, err
	}
	if _, err := w.Write(pointerArea); err != nil {
		return 0, err
	}
	return startPos, nil
}

// Size returns the number of bytes Write would emit for this directory:
// the fixed header plus any out-of-line pointer-area payload.
func (b *Builder) Size() int64 {
	headerLen := int64(2 + len(b.order)*12 + 4)
	var extra int64
	for _, tag := range b.order {
		e := b.entries[tag]
		if len(e.data) > 4 {
			n := len(e.data)
			if n%2 != 0 {
				n++
			}
			extra += int64(n)
		}
	}
	return headerLen + extra
}

// WriteHeader writes the 8-byte little-endian TIFF header (II, magic 42,
// first-IFD offset) to w.
func WriteHeader(w io.Writer, firstIFDOffset uint32) error {
	if _, err := w.Write([]byte{'I', 'I'}); err != nil {
		return err
	}
	if err := binary.Write(w, binary.LittleEndian, uint16(42)); err != nil {
		return err
	}
	return binary.Write(w, binary.LittleEndian, firstIFDOffset)
}

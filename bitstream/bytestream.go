package bitstream

import "encoding/binary"

// Endian selects byte order for a ByteStream.
type Endian int

const (
	BigEndian Endian = iota
	LittleEndian
)

// ByteStream is a cursor over a byte slice with explicit endianness,
// used for JFIF marker scanning and other byte-granular parsing that
// doesn't need bit-level access.
type ByteStream struct {
	data   []byte
	pos    int
	endian Endian
}

// NewByteStream wraps data for reading in the given byte order.
func NewByteStream(data []byte, endian Endian) *ByteStream {
	return &ByteStream{data: data, endian: endian}
}

func (s *ByteStream) order() binary.ByteOrder {
	if s.endian == BigEndian {
		return binary.BigEndian
	}
	return binary.LittleEndian
}

// Pos returns the current byte offset.
func (s *ByteStream) Pos() int { return s.pos }

// Len returns the number of unread bytes remaining.
func (s *ByteStream) Len() int { return len(s.data) - s.pos }

// GetU8 reads one unsigned byte.
func (s *ByteStream) GetU8() uint8 {
	v := s.data[s.pos]
	s.pos++
	return v
}

// GetI8 reads one signed byte.
func (s *ByteStream) GetI8() int8 { return int8(s.GetU8()) }

// GetU16 reads a 2-byte unsigned integer.
func (s *ByteStream) GetU16() uint16 {
	v := s.order().Uint16(s.data[s.pos:])
	s.pos += 2
	return v
}

// GetI16 reads a 2-byte signed integer.
func (s *ByteStream) GetI16() int16 { return int16(s.GetU16()) }

// GetU32 reads a 4-byte unsigned integer.
func (s *ByteStream) GetU32() uint32 {
	v := s.order().Uint32(s.data[s.pos:])
	s.pos += 4
	return v
}

// GetI32 reads a 4-byte signed integer.
func (s *ByteStream) GetI32() int32 { return int32(s.GetU32()) }

// ConsumeBytes advances the cursor by n bytes without returning them.
func (s *ByteStream) ConsumeBytes(n int) { s.pos += n }

// Bytes returns the next n bytes without advancing the cursor.
func (s *ByteStream) Bytes(n int) []byte { return s.data[s.pos : s.pos+n] }

// SkipToMarker advances the cursor to the next JFIF marker (a 0xFF byte
// followed by a non-zero, non-0xFF byte), leaving the cursor positioned
// at the 0xFF. Returns the marker byte, or 0 with ok=false if none is
// found before the end of the stream.
func (s *ByteStream) SkipToMarker() (marker byte, ok bool) {
	for s.pos+1 < len(s.data) {
		if s.data[s.pos] == 0xFF {
			next := s.data[s.pos+1]
			if next != 0x00 && next != 0xFF {
				return next, true
			}
		}
		s.pos++
	}
	return 0, false
}

// Package bmff parses the ISO-BMFF-family container Canon's CR3 format
// uses: a tree of size-prefixed boxes with nested, self-describing
// headers. Only the boxes the CR3 decoder needs are descended into;
// everything else is kept as an opaque payload.
package bmff

import (
	"fmt"

	"github.com/rawkit/rawkit/bitstream"
)

// Box is one parsed ISO-BMFF box: its four-character type, the raw
// payload bytes following the header, and (for container boxes) the
// boxes found inside that payload.
type Box struct {
	Type     string
	UUID     [16]byte
	HasUUID  bool
	Payload  []byte
	Children []Box
}

// containerTypes lists the boxes this reader descends into looking for
// further child boxes; every other box's Payload is left unparsed for
// the caller (e.g. CMP1's fixed-layout fields, read separately).
var containerTypes = map[string]bool{
	"moov": true,
	"trak": true,
	"mdia": true,
	"minf": true,
	"stbl": true,
	"stsd": true,
	"CRAW": true,
	"CTBO": false,
}

// canonCRXUUID is the UUID Canon stamps on the CR3 XMP-carrying uuid
// box.
var canonCRXUUID = [16]byte{
	0x85, 0xc0, 0xb6, 0x87, 0x82, 0x0f, 0x11, 0xe0,
	0x81, 0x11, 0xf4, 0xce, 0x46, 0x2b, 0x6a, 0x48,
}

// Parse walks data as a top-level sequence of boxes.
func Parse(data []byte) (boxes []Box, err error) {
	defer func() {
		if r := recover(); r != nil {
			boxes, err = nil, fmt.Errorf("bmff: malformed container: %v", r)
		}
	}()
	return parseBoxes(data), nil
}

func parseBoxes(data []byte) []Box {
	var out []Box
	bs := bitstream.NewByteStream(data, bitstream.BigEndian)
	for bs.Len() >= 8 {
		start := bs.Pos()
		size32 := bs.GetU32()
		typ := string(bs.Bytes(4))
		bs.ConsumeBytes(4)

		size := int(size32)
		headerLen := 8
		if size32 == 1 {
			// 64-bit extended size: two u32 halves, big-endian as a pair.
			hi := bs.GetU32()
			lo := bs.GetU32()
			size = int(hi)<<32 | int(lo)
			headerLen = 16
		} else if size32 == 0 {
			size = bs.Len() + headerLen // box extends to end of buffer
		}

		b := Box{Type: typ}
		if typ == "uuid" {
			copy(b.UUID[:], bs.Bytes(16))
			bs.ConsumeBytes(16)
			b.HasUUID = true
			headerLen += 16
		}

		payloadLen := size - headerLen
		if payloadLen < 0 || start+size > len(data) {
			panic(fmt.Sprintf("box %q size %d exceeds remaining data", typ, size))
		}
		b.Payload = bs.Bytes(payloadLen)
		bs.ConsumeBytes(payloadLen)

		if containerTypes[typ] || (typ == "uuid" && b.HasUUID && b.UUID == canonCRXUUID) {
			b.Children = parseBoxes(b.Payload)
		}
		out = append(out, b)
	}
	return out
}

// Find returns the first child box of the given type at this level.
func Find(boxes []Box, typ string) (Box, bool) {
	for _, b := range boxes {
		if b.Type == typ {
			return b, true
		}
	}
	return Box{}, false
}

// FindAll returns every child box of the given type at this level.
func FindAll(boxes []Box, typ string) []Box {
	var out []Box
	for _, b := range boxes {
		if b.Type == typ {
			out = append(out, b)
		}
	}
	return out
}

// IsCR3 reports whether a parsed top-level box list is an ISO-BMFF
// file with Canon's "crx " brand in its ftyp box.
func IsCR3(boxes []Box) bool {
	ftyp, ok := Find(boxes, "ftyp")
	if !ok || len(ftyp.Payload) < 8 {
		return false
	}
	majorBrand := string(ftyp.Payload[0:4])
	if majorBrand == "crx " {
		return true
	}
	for i := 8; i+4 <= len(ftyp.Payload); i += 4 {
		if string(ftyp.Payload[i:i+4]) == "crx " {
			return true
		}
	}
	return false
}

// XMPFromUUID returns the XMP packet payload carried in Canon's
// XMP-UUID box, if present at this level.
func XMPFromUUID(boxes []Box) ([]byte, bool) {
	for _, b := range boxes {
		if b.Type == "uuid" && b.HasUUID && b.UUID == canonCRXUUID {
			return b.Payload, true
		}
	}
	return nil, false
}

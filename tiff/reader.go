package tiff

import (
	"encoding/binary"
	"fmt"

	"github.com/rawkit/rawkit/bytesource"
	"github.com/rawkit/rawkit/internal/rlog"
)

// Tag is a TIFF/EXIF/DNG tag number.
type Tag uint16

// Entry is one decoded 12-byte IFD entry.
type Entry struct {
	Tag   Tag
	Value Value
}

// IFD is one Image File Directory: an ordered set of entries plus any
// sub-IFDs reached by following designated pointer tags.
type IFD struct {
	Base       int64 // absolute file offset this IFD's offsets are seeked from
	Entries    map[Tag]Entry
	order      []Tag
	SubIFDs    map[Tag][]*IFD
	NextOffset int64 // 0 if this was the last IFD in the chain
}

// GetEntry returns the entry for tag, if present in this IFD.
func (ifd *IFD) GetEntry(tag Tag) (Entry, bool) {
	e, ok := ifd.Entries[tag]
	return e, ok
}

// EntryTags returns the tags present in this IFD, in on-disk order.
func (ifd *IFD) EntryTags() []Tag { return ifd.order }

// Reader parses a chain of IFDs starting at a given offset, optionally
// nested inside a larger container whose offsets are relative to some
// base other than byte 0.
type Reader struct {
	src        *bytesource.Source
	endian     binary.ByteOrder
	base       int64 // added to every resolved absolute file position
	offsetCorr int64 // added to every encoded offset before resolution
	subIFDTags map[Tag]bool
	log        *rlog.Logger
}

// DefaultSubIFDTags are the tags that recurse into a nested IFD by
// default: SubIFDs (330) and the EXIF/GPS pointers.
var DefaultSubIFDTags = map[Tag]bool{
	330:   true, // SubIFDs
	34665: true, // ExifIFDPointer
	34853: true, // GPSInfo
}

// NewReader builds a Reader over src. base is added to resolved absolute
// positions (use 0 for a plain file-rooted TIFF). offsetCorr is added to
// every *encoded* offset before it is resolved (some makernotes encode
// offsets relative to something other than the TIFF header).
func NewReader(src *bytesource.Source, base, offsetCorr int64, extraSubIFDTags map[Tag]bool, log *rlog.Logger) (*Reader, error) {
	header, err := src.Subview(base, 8)
	if err != nil {
		return nil, fmt.Errorf("tiff: read header: %w", err)
	}
	var endian binary.ByteOrder
	switch {
	case header[0] == 'I' && header[1] == 'I':
		endian = binary.LittleEndian
	case header[0] == 'M' && header[1] == 'M':
		endian = binary.BigEndian
	default:
		return nil, fmt.Errorf("tiff: bad byte-order marker %q", header[0:2])
	}
	if magic := endian.Uint16(header[2:4]); magic != 42 {
		return nil, fmt.Errorf("tiff: bad magic %d, want 42", magic)
	}

	tags := map[Tag]bool{}
	for t := range DefaultSubIFDTags {
		tags[t] = true
	}
	for t := range extraSubIFDTags {
		tags[t] = true
	}

	return &Reader{src: src, endian: endian, base: base, offsetCorr: offsetCorr, subIFDTags: tags, log: log}, nil
}

// Endian returns the byte order this TIFF stream was declared in.
func (r *Reader) Endian() binary.ByteOrder { return r.endian }

// FirstIFDOffset returns the offset stored in the header's 4-byte pointer
// field (bytes 4..8 of the TIFF header at r.base).
func (r *Reader) FirstIFDOffset() (int64, error) {
	b, err := r.src.Subview(r.base+4, 4)
	if err != nil {
		return 0, err
	}
	return int64(r.endian.Uint32(b)), nil
}

// ReadChain walks the IFD chain starting at offset (relative to r.base,
// pre-offsetCorr) and returns every IFD in the chain, each with its
// sub-IFDs already populated.
func (r *Reader) ReadChain(offset int64) ([]*IFD, error) {
	var chain []*IFD
	seen := map[int64]bool{}
	for offset != 0 {
		if seen[offset] {
			break // cyclic chain, tolerate as end-of-chain
		}
		seen[offset] = true
		ifd, next, err := r.readOneIFD(offset)
		if err != nil {
			// A truncated file with a dangling next-IFD pointer is
			// tolerated as end-of-chain, not a hard error.
			if r.log != nil {
				r.log.Warn("tiff: truncated IFD chain at offset %d: %v", offset, err)
			}
			break
		}
		chain = append(chain, ifd)
		offset = next
	}
	return chain, nil
}

func (r *Reader) readOneIFD(offset int64) (*IFD, int64, error) {
	pos := r.base + offset
	countBuf, err := r.src.Subview(pos, 2)
	if err != nil {
		return nil, 0, err
	}
	count := r.endian.Uint16(countBuf)
	pos += 2

	entryBytes, err := r.src.Subview(pos, int(count)*12)
	if err != nil {
		return nil, 0, err
	}

	ifd := &IFD{
		Base:    r.base,
		Entries: make(map[Tag]Entry, count),
		SubIFDs: make(map[Tag][]*IFD),
	}

	for i := 0; i < int(count); i++ {
		raw := entryBytes[i*12 : i*12+12]
		tag := Tag(r.endian.Uint16(raw[0:2]))
		typ := Type(r.endian.Uint16(raw[2:4]))
		cnt := r.endian.Uint32(raw[4:8])
		inlineOrOffset := raw[8:12]

		val, err := r.decodeValue(typ, cnt, inlineOrOffset)
		if err != nil {
			if r.log != nil {
				r.log.Warn("tiff: entry tag %d: %v", tag, err)
			}
			continue
		}
		ifd.Entries[tag] = Entry{Tag: tag, Value: val}
		ifd.order = append(ifd.order, tag)

		if r.subIFDTags[tag] {
			if subs, err := r.readSubIFDs(val); err == nil && len(subs) > 0 {
				ifd.SubIFDs[tag] = subs
			}
		}
	}

	pos += int64(count) * 12
	nextBuf, err := r.src.Subview(pos, 4)
	if err != nil {
		return ifd, 0, nil // tolerate missing next-IFD pointer
	}
	next := int64(r.endian.Uint32(nextBuf))
	ifd.NextOffset = next
	return ifd, next, nil
}

func (r *Reader) readSubIFDs(val Value) ([]*IFD, error) {
	offsets := val.AsUints()
	var subs []*IFD
	for _, off := range offsets {
		chain, err := r.ReadChain(int64(off))
		if err != nil {
			continue
		}
		subs = append(subs, chain...)
	}
	return subs, nil
}

func (r *Reader) decodeValue(typ Type, count uint32, inlineOrOffset []byte) (Value, error) {
	size := typ.Size()
	total := int(count) * size

	var data []byte
	if total <= 4 {
		data = inlineOrOffset[:total]
	} else {
		offset := int64(r.endian.Uint32(inlineOrOffset)) + r.offsetCorr
		b, err := r.src.Subview(r.base+offset, total)
		if err != nil {
			return Value{}, err
		}
		data = b
	}
	return decodeTyped(typ, count, data, r.endian)
}

// GetEntryRaw returns the stored bytes of an Undefined- or Unknown-typed
// entry, for vendor makernote parsers that want to reinterpret the bytes
// themselves. For entries of any other type it returns nil (with true when
// the tag is present); the source is not read again.
func (r *Reader) GetEntryRaw(ifd *IFD, tag Tag) ([]byte, bool) {
	e, ok := ifd.GetEntry(tag)
	if !ok {
		return nil, false
	}
	size := e.Value.Type.Size() * e.Value.Count()
	if e.Value.Type == TypeAscii {
		size = len(e.Value.Ascii)
	}
	_ = size
	return rawBytesOf(e.Value), true
}

func rawBytesOf(v Value) []byte {
	if v.Type == TypeUnknown {
		return v.Raw
	}
	if v.Type == TypeUndefined {
		return v.Undefined
	}
	return nil
}

func decodeTyped(typ Type, count uint32, data []byte, endian binary.ByteOrder) (Value, error) {
	v := Value{Type: typ}
	n := int(count)
	switch typ {
	case TypeByte:
		v.Bytes = append([]byte(nil), data[:n]...)
	case TypeSByte:
		v.SBytes = make([]int8, n)
		for i := 0; i < n; i++ {
			v.SBytes[i] = int8(data[i])
		}
	case TypeAscii:
		s := data
		if i := indexZero(s); i >= 0 {
			s = s[:i]
		}
		v.Ascii = string(s)
	case TypeShort:
		v.Shorts = make([]uint16, n)
		for i := 0; i < n; i++ {
			v.Shorts[i] = endian.Uint16(data[i*2:])
		}
	case TypeSShort:
		v.SShorts = make([]int16, n)
		for i := 0; i < n; i++ {
			v.SShorts[i] = int16(endian.Uint16(data[i*2:]))
		}
	case TypeLong:
		v.Longs = make([]uint32, n)
		for i := 0; i < n; i++ {
			v.Longs[i] = endian.Uint32(data[i*4:])
		}
	case TypeSLong:
		v.SLongs = make([]int32, n)
		for i := 0; i < n; i++ {
			v.SLongs[i] = int32(endian.Uint32(data[i*4:]))
		}
	case TypeRational:
		v.Rationals = make([]Rational, n)
		for i := 0; i < n; i++ {
			v.Rationals[i] = Rational{endian.Uint32(data[i*8:]), endian.Uint32(data[i*8+4:])}
		}
	case TypeSRational:
		v.SRationals = make([]SRational, n)
		for i := 0; i < n; i++ {
			v.SRationals[i] = SRational{int32(endian.Uint32(data[i*8:])), int32(endian.Uint32(data[i*8+4:]))}
		}
	case TypeFloat:
		v.Floats = make([]float32, n)
		for i := 0; i < n; i++ {
			v.Floats[i] = float32frombits(endian.Uint32(data[i*4:]))
		}
	case TypeDouble:
		v.Doubles = make([]float64, n)
		for i := 0; i < n; i++ {
			v.Doubles[i] = float64frombits(endian.Uint64(data[i*8:]))
		}
	case TypeUndefined:
		v.Undefined = append([]byte(nil), data[:n]...)
	default:
		v.Type = TypeUnknown
		v.Raw = append([]byte(nil), data...)
	}
	return v, nil
}

func indexZero(b []byte) int {
	for i, c := range b {
		if c == 0 {
			return i
		}
	}
	return -1
}

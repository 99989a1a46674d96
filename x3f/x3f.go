// Package x3f reads Sigma/Foveon X3F containers: a fixed header, a
// section directory indexed from the end of the file, a UTF-16 property
// list, the CAMF calibration block, and one or more image sections. The
// stacked Foveon sensor stores three full-resolution color planes, so a
// decoded raw is always cpp=3 linear data rather than a CFA mosaic.
package x3f

import (
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"os"
	"unicode/utf16"
)

var le = binary.LittleEndian

// Section and signature four-character codes, stored little-endian on
// disk so the byte order here is reversed from the printable name.
const (
	sigFOVb = 0x62564f46 // "FOVb"

	SectionDirectory = 0x64434553 // "SECd"
	SectionProps     = 0x70434553 // "SECp"
	SectionImage     = 0x69434553 // "SECi"
	SectionCAMF      = 0x63434553 // "SECc"

	// Quattro-era files index some sections by their payload code
	// directly instead of the SEC* wrapper code.
	rawProps = 0x504f5250 // "PROP"
	rawCAMF  = 0x464d4143 // "CAMF"
	rawIMAG  = 0x46414d49
	rawIMA2  = 0x32414d49
)

// Image data formats found in image-section headers.
const (
	formatHuffmanX530  = 0x00030005
	formatHuffman10Bit = 0x00030006
	formatTRUE         = 0x0003001e
	formatMerrill      = 0x0001001e
	formatQuattro      = 0x00010023
)

// Header versions that gate optional header fields.
const (
	version21 = 2<<16 | 1
	version23 = 2<<16 | 3
	version30 = 3 << 16
	version40 = 4 << 16
)

// Header is the fixed block at the start of every X3F file. Fields past
// UniqueID are only present before version 4.0 (Quattro moved them into
// CAMF).
type Header struct {
	Version      uint32
	UniqueID     [16]byte
	MarkBits     uint32
	Columns      uint32
	Rows         uint32
	Rotation     uint32
	WhiteBalance [32]byte
	ColorMode    [32]byte
	ExtData      [64]float32
	ExtDataTypes [64]uint8
}

// DirEntry is one section-directory record: an absolute payload offset,
// its length, and the section code.
type DirEntry struct {
	Offset uint32
	Length uint32
	Kind   uint32
}

// File is a parsed X3F container. Open reads the header, directory,
// property list and CAMF block eagerly; image sections are loaded on
// demand via LoadSection because their payloads dominate the file.
type File struct {
	Header    Header
	Directory []DirEntry
	CAMF      *CAMF
	Images    []*ImageSection

	props []property

	r    io.ReaderAt
	size int64
}

type property struct {
	name, value string
}

// Open parses the X3F file at path.
func Open(path string) (*File, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	st, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, err
	}
	x, err := OpenFromReaderAt(f, st.Size())
	if err != nil {
		f.Close()
		return nil, err
	}
	return x, nil
}

// OpenFromReaderAt parses an X3F container from an already-open
// random-access byte source. Property and CAMF sections are loaded
// immediately; a file missing either still opens, it just answers
// lookups with "not found".
func OpenFromReaderAt(r io.ReaderAt, size int64) (*File, error) {
	f := &File{r: r, size: size}
	if err := f.readHeader(); err != nil {
		return nil, err
	}
	if err := f.readDirectory(); err != nil {
		return nil, err
	}
	f.LoadSection(SectionProps)
	f.LoadSection(SectionCAMF)
	return f, nil
}

// Close releases the underlying reader if it is closable.
func (f *File) Close() error {
	if c, ok := f.r.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

func (f *File) readHeader() error {
	buf := make([]byte, 4+4+16+4*4+32+32+64+64*4)
	if _, err := f.r.ReadAt(buf, 0); err != nil {
		return fmt.Errorf("x3f: short header: %w", err)
	}
	if le.Uint32(buf) != sigFOVb {
		return fmt.Errorf("x3f: bad magic 0x%08x", le.Uint32(buf))
	}
	h := &f.Header
	h.Version = le.Uint32(buf[4:])
	copy(h.UniqueID[:], buf[8:24])
	if h.Version >= version40 {
		return nil
	}
	h.MarkBits = le.Uint32(buf[24:])
	h.Columns = le.Uint32(buf[28:])
	h.Rows = le.Uint32(buf[32:])
	h.Rotation = le.Uint32(buf[36:])
	if h.Version < version21 {
		return nil
	}
	off := 40
	extData := 32
	if h.Version >= version30 {
		extData = 64
	}
	copy(h.WhiteBalance[:], buf[off:off+32])
	off += 32
	if h.Version >= version23 {
		copy(h.ColorMode[:], buf[off:off+32])
		off += 32
	}
	// Types precede values on disk.
	for i := 0; i < extData; i++ {
		h.ExtDataTypes[i] = buf[off]
		off++
	}
	for i := 0; i < extData; i++ {
		h.ExtData[i] = math.Float32frombits(le.Uint32(buf[off:]))
		off += 4
	}
	return nil
}

// readDirectory follows the u32 trailer at EOF to the SECd index and
// reads its offset/length/kind triples.
func (f *File) readDirectory() error {
	var tail [4]byte
	if _, err := f.r.ReadAt(tail[:], f.size-4); err != nil {
		return fmt.Errorf("x3f: read directory pointer: %w", err)
	}
	dirOffset := int64(le.Uint32(tail[:]))

	var head [12]byte
	if _, err := f.r.ReadAt(head[:], dirOffset); err != nil {
		return fmt.Errorf("x3f: read directory header: %w", err)
	}
	if le.Uint32(head[:]) != SectionDirectory {
		return fmt.Errorf("x3f: bad directory identifier 0x%08x", le.Uint32(head[:]))
	}
	n := le.Uint32(head[8:])
	buf := make([]byte, n*12)
	if _, err := f.r.ReadAt(buf, dirOffset+12); err != nil {
		return fmt.Errorf("x3f: read directory entries: %w", err)
	}
	f.Directory = make([]DirEntry, n)
	for i := range f.Directory {
		rec := buf[i*12:]
		f.Directory[i] = DirEntry{
			Offset: le.Uint32(rec),
			Length: le.Uint32(rec[4:]),
			Kind:   le.Uint32(rec[8:]),
		}
	}
	return nil
}

// LoadSection loads every directory entry matching kind (one of the
// Section* codes). Quattro files that index sections by payload code are
// matched through the equivalent raw code.
func (f *File) LoadSection(kind uint32) error {
	found := false
	for i := range f.Directory {
		e := &f.Directory[i]
		match := e.Kind == kind ||
			(kind == SectionProps && e.Kind == rawProps) ||
			(kind == SectionCAMF && e.Kind == rawCAMF) ||
			(kind == SectionImage && (e.Kind == rawIMAG || e.Kind == rawIMA2))
		if !match {
			continue
		}
		found = true
		var err error
		switch kind {
		case SectionProps:
			err = f.loadProps(e)
		case SectionCAMF:
			err = f.loadCAMF(e)
		case SectionImage:
			err = f.loadImage(e)
		default:
			err = fmt.Errorf("x3f: unsupported section kind 0x%08x", kind)
		}
		if err != nil {
			return err
		}
	}
	if !found {
		return fmt.Errorf("x3f: section 0x%08x not found", kind)
	}
	return nil
}

func (f *File) sectionBytes(e *DirEntry) ([]byte, error) {
	buf := make([]byte, e.Length)
	if _, err := f.r.ReadAt(buf, int64(e.Offset)); err != nil {
		return nil, fmt.Errorf("x3f: read section 0x%08x: %w", e.Kind, err)
	}
	return buf, nil
}

// loadProps parses the UTF-16LE property list: a count, a table of
// (name, value) character offsets, then the string pool. Offsets are in
// UTF-16 code units, not bytes.
func (f *File) loadProps(e *DirEntry) error {
	buf, err := f.sectionBytes(e)
	if err != nil {
		return err
	}
	// Both the SECp wrapper and the bare PROP payload start with an
	// identifier + version pair.
	if len(buf) < 24 {
		return fmt.Errorf("x3f: property section too short")
	}
	n := le.Uint32(buf[8:])
	pool := 24 + n*8
	if uint32(len(buf)) < pool {
		return fmt.Errorf("x3f: property table truncated")
	}
	data := buf[pool:]
	for i := uint32(0); i < n; i++ {
		rec := buf[24+i*8:]
		name := utf16String(data, le.Uint32(rec)*2)
		value := utf16String(data, le.Uint32(rec[4:])*2)
		f.props = append(f.props, property{name, value})
	}
	return nil
}

// Property returns the named entry from the property list.
func (f *File) Property(name string) (string, bool) {
	for _, p := range f.props {
		if p.name == name {
			return p.value, true
		}
	}
	return "", false
}

// utf16String decodes the NUL-terminated UTF-16LE string at byte offset
// start of pool.
func utf16String(pool []byte, start uint32) string {
	if start >= uint32(len(pool)) {
		return ""
	}
	var units []uint16
	for i := start; i+1 < uint32(len(pool)); i += 2 {
		u := le.Uint16(pool[i:])
		if u == 0 {
			break
		}
		units = append(units, u)
	}
	return string(utf16.Decode(units))
}

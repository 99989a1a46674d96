package tiff

import (
	"fmt"
	"io"
	"runtime"

	"golang.org/x/sync/errgroup"
)

// The TIFF flavor of LZW (Compression=5): codes are packed MSB-first
// starting at 9 bits, the code width grows one entry early ("early
// change"), and the stream is bracketed by Clear/EndOfInformation
// codes. This is not the GIF variant the standard library implements —
// the early width change makes the two incompatible.

const (
	lzwClearCode = 256
	lzwEOICode   = 257
	lzwFirstFree = 258
	lzwTableSize = 4096
	lzwMaxWidth  = 12
)

type lzwBitWriter struct {
	buf []byte
	acc uint32
	n   uint
}

func (w *lzwBitWriter) write(code int, width uint) {
	w.acc = w.acc<<width | uint32(code)
	w.n += width
	for w.n >= 8 {
		w.buf = append(w.buf, byte(w.acc>>(w.n-8)))
		w.n -= 8
	}
}

func (w *lzwBitWriter) flush() {
	if w.n > 0 {
		w.buf = append(w.buf, byte(w.acc<<(8-w.n)))
		w.n = 0
	}
}

// CompressLZW encodes src as one self-contained TIFF LZW stream.
func CompressLZW(src []byte) []byte {
	var bw lzwBitWriter
	dict := make(map[uint32]int, lzwTableSize)
	width := uint(9)
	next := lzwFirstFree

	bw.write(lzwClearCode, width)
	prefix := -1
	for _, b := range src {
		if prefix < 0 {
			prefix = int(b)
			continue
		}
		key := uint32(prefix)<<8 | uint32(b)
		if code, ok := dict[key]; ok {
			prefix = code
			continue
		}
		bw.write(prefix, width)
		dict[key] = next
		next++
		if next+1 == 1<<width && width < lzwMaxWidth {
			width++
		}
		if next == lzwTableSize-2 {
			bw.write(lzwClearCode, width)
			dict = make(map[uint32]int, lzwTableSize)
			width, next = 9, lzwFirstFree
		}
		prefix = int(b)
	}
	if prefix >= 0 {
		bw.write(prefix, width)
	}
	bw.write(lzwEOICode, width)
	bw.flush()
	return bw.buf
}

type lzwBitReader struct {
	src []byte
	pos int
	acc uint32
	n   uint
}

func (r *lzwBitReader) read(width uint) (int, bool) {
	for r.n < width {
		if r.pos >= len(r.src) {
			return 0, false
		}
		r.acc = r.acc<<8 | uint32(r.src[r.pos])
		r.pos++
		r.n += 8
	}
	r.n -= width
	return int(r.acc >> r.n & (1<<width - 1)), true
}

// DecompressLZW decodes one TIFF LZW stream produced by CompressLZW (or
// any early-change writer).
func DecompressLZW(src []byte) ([]byte, error) {
	br := lzwBitReader{src: src}

	var prefix [lzwTableSize]int32
	var suffix [lzwTableSize]byte
	for i := 0; i < 256; i++ {
		prefix[i], suffix[i] = -1, byte(i)
	}

	width := uint(9)
	next := lzwFirstFree
	prev := -1
	var out []byte

	expand := func(code int) ([]byte, error) {
		var stack []byte
		for c := int32(code); c >= 0; c = prefix[c] {
			if len(stack) > lzwTableSize {
				return nil, fmt.Errorf("tiff: lzw entry chain loops")
			}
			stack = append(stack, suffix[c])
		}
		for i, j := 0, len(stack)-1; i < j; i, j = i+1, j-1 {
			stack[i], stack[j] = stack[j], stack[i]
		}
		return stack, nil
	}

	for {
		code, ok := br.read(width)
		if !ok {
			return nil, fmt.Errorf("tiff: lzw stream truncated before EOI")
		}
		switch {
		case code == lzwEOICode:
			return out, nil
		case code == lzwClearCode:
			width, next, prev = 9, lzwFirstFree, -1
			continue
		case code >= next || (code >= lzwFirstFree && prev < 0):
			if code != next || prev < 0 {
				return nil, fmt.Errorf("tiff: lzw code %d out of range (next %d)", code, next)
			}
			// The KwKwK case: the new entry is prev + first byte of prev.
			seq, err := expand(prev)
			if err != nil {
				return nil, err
			}
			prefix[next], suffix[next] = int32(prev), seq[0]
			next++
			out = append(out, seq...)
			out = append(out, seq[0])
			prev = code
		default:
			seq, err := expand(code)
			if err != nil {
				return nil, err
			}
			if prev >= 0 {
				if next >= lzwTableSize {
					return nil, fmt.Errorf("tiff: lzw table overflow")
				}
				prefix[next], suffix[next] = int32(prev), seq[0]
				next++
			}
			out = append(out, seq...)
			prev = code
		}
		if next+2 == 1<<width && width < lzwMaxWidth {
			width++
		}
	}
}

// StripRef locates one written strip: its absolute file offset and byte
// count, in the shape StripOffsets/StripByteCounts want.
type StripRef struct {
	Offset    uint32
	ByteCount uint32
}

// defaultStripLines matches the common 256-rows-per-strip layout,
// clamped to the image height for short images.
const defaultStripLines = 256

// WriteStripsLZW splits a cpp-interleaved sample plane of width x
// height pixels into horizontal strips of stripLines rows (0 selects
// the 256-row default, clamped to the image height), LZW-compresses
// each strip's big-endian sample bytes in parallel, writes them to w in
// strip order starting at file offset pos, and returns the
// rows-per-strip actually used plus each strip's offset and byte count.
func WriteStripsLZW(w io.Writer, pos int64, data []uint16, cpp, width, height, stripLines int) (int, []StripRef, error) {
	if cpp < 1 || width < 1 || height < 1 {
		return 0, nil, fmt.Errorf("tiff: bad strip plane geometry %dx%dx%d", width, height, cpp)
	}
	if len(data) < width*height*cpp {
		return 0, nil, fmt.Errorf("tiff: strip plane has %d samples, want %d", len(data), width*height*cpp)
	}
	if stripLines <= 0 {
		stripLines = defaultStripLines
	}
	if stripLines > height {
		stripLines = height
	}

	numStrips := (height + stripLines - 1) / stripLines
	encoded := make([][]byte, numStrips)

	var g errgroup.Group
	g.SetLimit(runtime.NumCPU())
	for i := 0; i < numStrips; i++ {
		i := i
		g.Go(func() error {
			y0 := i * stripLines
			rows := stripLines
			if y0+rows > height {
				rows = height - y0
			}
			n := rows * width * cpp
			raw := make([]byte, n*2)
			base := y0 * width * cpp
			for j := 0; j < n; j++ {
				v := data[base+j]
				raw[j*2] = byte(v >> 8)
				raw[j*2+1] = byte(v)
			}
			encoded[i] = CompressLZW(raw)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return 0, nil, err
	}

	refs := make([]StripRef, numStrips)
	for i, strip := range encoded {
		if _, err := w.Write(strip); err != nil {
			return 0, nil, err
		}
		refs[i] = StripRef{Offset: uint32(pos), ByteCount: uint32(len(strip))}
		pos += int64(len(strip))
	}
	return stripLines, refs, nil
}

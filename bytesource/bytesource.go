// Package bytesource provides a random-access, cheaply shareable view over
// a raw file's bytes: absolute-offset subviews, zero-padded reads for
// decompressors that may over-read the final symbol, and a cached MD5
// digest of the whole source.
package bytesource

import (
	"crypto/md5"
	"fmt"
	"io"
	"sync"
)

// Source is a random-access byte provider. All offsets are absolute file
// offsets. It is safe for concurrent use:
// Subview only reads, and Digest memoizes behind a Once.
type Source struct {
	r    io.ReaderAt
	size int64

	digestOnce sync.Once
	digest     [16]byte
	digestErr  error
}

// New wraps r, a ReaderAt over size bytes.
func New(r io.ReaderAt, size int64) *Source {
	return &Source{r: r, size: size}
}

// Size returns the total byte length of the source.
func (s *Source) Size() int64 { return s.size }

// ReadAt delegates to the wrapped io.ReaderAt, so a Source is itself a
// valid io.ReaderAt for third-party/vendor parsers (e.g. x3f.File) that
// want direct random access rather than going through Subview.
func (s *Source) ReadAt(p []byte, off int64) (int, error) { return s.r.ReadAt(p, off) }

// Subview returns exactly len bytes starting at offset, or an error if the
// read would run past EOF.
func (s *Source) Subview(offset int64, length int) ([]byte, error) {
	if offset < 0 || length < 0 || offset+int64(length) > s.size {
		return nil, fmt.Errorf("bytesource: subview(%d,%d) past end (size %d)", offset, length, s.size)
	}
	buf := make([]byte, length)
	if length == 0 {
		return buf, nil
	}
	if _, err := s.r.ReadAt(buf, offset); err != nil && err != io.EOF {
		return nil, fmt.Errorf("bytesource: subview(%d,%d): %w", offset, length, err)
	}
	return buf, nil
}

// SubviewPadded behaves like Subview but zero-pads any portion that runs
// past EOF instead of erroring, for decompressors whose bitstream may
// over-read the final symbol.
func (s *Source) SubviewPadded(offset int64, length int) []byte {
	buf := make([]byte, length)
	if offset >= s.size || length == 0 {
		return buf
	}
	avail := s.size - offset
	n := length
	if int64(n) > avail {
		n = int(avail)
	}
	// Best effort: a short read here still leaves the tail zero-padded.
	_, _ = s.r.ReadAt(buf[:n], offset)
	return buf
}

// SubviewUntilEOF returns every byte from offset to the end of the source.
func (s *Source) SubviewUntilEOF(offset int64) ([]byte, error) {
	if offset < 0 || offset > s.size {
		return nil, fmt.Errorf("bytesource: subviewUntilEOF(%d) past end (size %d)", offset, s.size)
	}
	return s.Subview(offset, int(s.size-offset))
}

// SubviewPaddedUntilEOF is the padded variant of SubviewUntilEOF: it simply
// returns the remaining bytes (there is nothing to pad when the range is
// already clipped to the source length), provided for symmetry with the
// other padded/non-padded pairs.
func (s *Source) SubviewPaddedUntilEOF(offset int64) []byte {
	if offset >= s.size {
		return nil
	}
	b, err := s.SubviewUntilEOF(offset)
	if err != nil {
		return nil
	}
	return b
}

// AsVec materializes the entire source into memory.
func (s *Source) AsVec() ([]byte, error) {
	return s.Subview(0, int(s.size))
}

// Reader returns a streaming io.Reader positioned at the start of the
// source, for callers (e.g. the original-file compressor) that want to
// stream rather than buffer the whole file.
func (s *Source) Reader() io.Reader {
	return io.NewSectionReader(s.r, 0, s.size)
}

// Digest returns the MD5 of the full source, computed once and cached.
func (s *Source) Digest() ([16]byte, error) {
	s.digestOnce.Do(func() {
		h := md5.New()
		if _, err := io.Copy(h, s.Reader()); err != nil {
			s.digestErr = fmt.Errorf("bytesource: digest: %w", err)
			return
		}
		copy(s.digest[:], h.Sum(nil))
	})
	return s.digest, s.digestErr
}

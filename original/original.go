// Package original implements the DNG "original raw file data" layout:
// a block-chunked deflate encoding of an arbitrary byte stream with an
// MD5 digest, used to embed (and later recover) the source raw file
// inside a DNG. The chunk table follows the DNG specification's
// forked-file layout; compression is stdlib compress/flate.
package original

import (
	"bytes"
	"compress/flate"
	"crypto/md5"
	"encoding/binary"
	"fmt"
	"io"

	"github.com/rawkit/rawkit/internal/rawerr"
)

// blockSize is the DNG-specified uncompressed chunk size.
const blockSize = 65536

// Digest is an MD5 sum of the uncompressed original bytes.
type Digest [16]byte

// Compressed holds the chunk-table layout ready to embed as
// OriginalRawFileData: an uncompressed-size header, N+1 chunk-end
// offsets relative to the first chunk, and the deflate chunks
// themselves.
type Compressed struct {
	uncompressedSize uint32
	chunks           [][]byte // each independently deflated, <=65536 uncompressed bytes
	digest           Digest
}

// Compress reads all of r, splitting it into 64 KiB slices, deflating
// each independently and accumulating an MD5 over the uncompressed
// bytes.
func Compress(r io.Reader) (*Compressed, error) {
	h := md5.New()
	var chunks [][]byte
	var total int64
	buf := make([]byte, blockSize)
	for {
		n, err := io.ReadFull(r, buf)
		if n > 0 {
			h.Write(buf[:n])
			total += int64(n)
			chunk, cerr := deflateChunk(buf[:n])
			if cerr != nil {
				return nil, fmt.Errorf("original: compress chunk: %w", cerr)
			}
			chunks = append(chunks, chunk)
		}
		if err == io.ErrUnexpectedEOF || err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("original: read source: %w", err)
		}
	}
	if total > 1<<32-1 {
		return nil, &rawerr.Overflow{Context: "original: source exceeds uint32 fork size"}
	}
	c := &Compressed{uncompressedSize: uint32(total), chunks: chunks}
	copy(c.digest[:], h.Sum(nil))
	return c, nil
}

func deflateChunk(buf []byte) ([]byte, error) {
	var out bytes.Buffer
	w, err := flate.NewWriter(&out, flate.DefaultCompression)
	if err != nil {
		return nil, err
	}
	if _, err := w.Write(buf); err != nil {
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	return out.Bytes(), nil
}

// Digest returns the MD5 of the uncompressed original bytes.
func (c *Compressed) Digest() Digest { return c.digest }

// Bytes serializes the chunk table to the DNG wire layout: a
// big-endian uncompressed size, N+1 big-endian chunk-end
// offsets relative to the first chunk, the chunks themselves, then
// seven zero u32s for the unused resource fork.
func (c *Compressed) Bytes() []byte {
	var buf bytes.Buffer
	var u32 [4]byte

	binary.BigEndian.PutUint32(u32[:], c.uncompressedSize)
	buf.Write(u32[:])

	chunksStart := uint32(4 + (len(c.chunks)+1)*4)
	binary.BigEndian.PutUint32(u32[:], chunksStart)
	buf.Write(u32[:])

	end := chunksStart
	for _, chunk := range c.chunks {
		end += uint32(len(chunk))
		binary.BigEndian.PutUint32(u32[:], end)
		buf.Write(u32[:])
	}
	for _, chunk := range c.chunks {
		buf.Write(chunk)
	}
	for i := 0; i < 7; i++ {
		buf.Write([]byte{0, 0, 0, 0})
	}
	return buf.Bytes()
}

// Decompress reverses Bytes: it reads the chunk table from data, inflates
// each chunk in turn, concatenates them, and — when verify is true —
// returns a DigestMismatch error if the recomputed MD5 doesn't match
// storedDigest. When verify is false a mismatch is tolerated (the
// caller may still compare the returned digest itself).
func Decompress(data []byte, storedDigest Digest, verify bool) ([]byte, Digest, error) {
	if len(data) < 8 {
		return nil, Digest{}, fmt.Errorf("original: data too short for fork header")
	}
	uncompSize := binary.BigEndian.Uint32(data[0:4])
	blocks := (uncompSize + blockSize - 1) / blockSize
	if uncompSize == 0 {
		blocks = 0
	}
	nOffsets := int(blocks) + 1
	if len(data) < 4+nOffsets*4 {
		return nil, Digest{}, fmt.Errorf("original: data too short for %d chunk offsets", nOffsets)
	}
	offsets := make([]uint32, nOffsets)
	for i := 0; i < nOffsets; i++ {
		offsets[i] = binary.BigEndian.Uint32(data[4+i*4:])
	}

	h := md5.New()
	var out bytes.Buffer
	for i := 0; i+1 < len(offsets); i++ {
		start, end := offsets[i], offsets[i+1]
		if end < start || int(end) > len(data) {
			return nil, Digest{}, fmt.Errorf("original: chunk %d offsets [%d,%d) out of range", i, start, end)
		}
		chunk, err := inflateChunk(data[start:end])
		if err != nil {
			return nil, Digest{}, fmt.Errorf("original: inflate chunk %d: %w", i, err)
		}
		out.Write(chunk)
		h.Write(chunk)
	}

	var computed Digest
	copy(computed[:], h.Sum(nil))
	if computed != storedDigest {
		if verify {
			return out.Bytes(), computed, &rawerr.DigestMismatch{Stored: storedDigest, Computed: computed}
		}
	}
	return out.Bytes(), computed, nil
}

func inflateChunk(data []byte) ([]byte, error) {
	r := flate.NewReader(bytes.NewReader(data))
	defer r.Close()
	return io.ReadAll(r)
}

package x3f

import (
	"fmt"

	"github.com/rawkit/rawkit/bitstream"
)

// huffTree is a bit-at-a-time binary decode tree. Both image engines and
// the compressed CAMF variants share it; only the table layout that
// populates it differs.
type huffTree struct {
	nodes []huffNode
	used  int
}

type huffNode struct {
	branch [2]int32 // node index, 0 = absent
	leaf   int32    // -1 = interior
}

func newHuffTree(maxBits int) *huffTree {
	t := &huffTree{nodes: make([]huffNode, 1, 2<<maxBits)}
	t.nodes[0].leaf = -1
	t.used = 1
	return t
}

func (t *huffTree) insert(code uint32, length int, value int32) {
	cur := int32(0)
	for i := length - 1; i >= 0; i-- {
		bit := (code >> i) & 1
		next := t.nodes[cur].branch[bit]
		if next == 0 {
			t.nodes = append(t.nodes, huffNode{leaf: -1})
			next = int32(len(t.nodes) - 1)
			t.nodes[cur].branch[bit] = next
		}
		cur = next
	}
	t.nodes[cur].leaf = value
}

// decode walks the tree one pump bit at a time and returns the leaf
// value, or 0 when the stream runs into an unpopulated branch.
func (t *huffTree) decode(p *bitstream.MSB) int32 {
	cur := int32(0)
	for t.nodes[cur].leaf < 0 {
		next := t.nodes[cur].branch[p.GetBits(1)]
		if next == 0 {
			return 0
		}
		cur = next
	}
	return t.nodes[cur].leaf
}

// trueTableEntry is one row of the TRUE engine's code table: a code of
// CodeSize bits stored left-aligned in Code. The table is terminated by
// a zero CodeSize.
type trueTableEntry struct {
	CodeSize uint8
	Code     uint8
}

func buildTRUETree(table []trueTableEntry) *huffTree {
	t := newHuffTree(8)
	for i, e := range table {
		n := int(e.CodeSize)
		if n == 0 || n > 8 {
			continue
		}
		t.insert(uint32(e.Code>>(8-n)), n, int32(i))
	}
	return t
}

// trueDiff reads one TRUE-engine difference: a tree symbol giving the
// magnitude bit count, then that many raw bits, sign-folded so a leading
// zero bit means a negative value.
func trueDiff(p *bitstream.MSB, t *huffTree) int32 {
	bits := uint(t.decode(p))
	if bits == 0 {
		return 0
	}
	v := int32(p.GetBits(bits))
	if v>>(bits-1) == 0 {
		v -= (1 << bits) - 1
	}
	return v
}

// quattroPlane records the per-plane dimensions Quattro sections declare
// ahead of the shared code table.
type quattroPlane struct {
	Columns uint16
	Rows    uint16
}

// ImageSection is one SECi payload. Width/Height are the dimensions
// declared in the section header; OutWidth/OutHeight the dimensions of
// the decoded plane (Quattro 1:1:4 files decode at the binned size).
type ImageSection struct {
	Kind      uint32
	Format    uint32
	Width     uint32
	Height    uint32
	RowStride uint32

	OutWidth  uint32
	OutHeight uint32

	// Pixels holds the decoded planes interleaved RGB, length
	// OutWidth*OutHeight*3, populated by Decode.
	Pixels []uint16

	tree       *huffTree
	rowOffsets []uint32
	data       []byte

	trueTable  []trueTableEntry
	planeSizes [3]uint32
	seeds      [3]uint16

	quattro       bool
	quattroPlanes [3]quattroPlane
	quattroFull   bool // 1:1:4 layout, top plane at full resolution
}

const imageHeaderSize = 28

// loadImage parses one image section header and stages its compressed
// payload. Thumbnails and preview sections are skipped; only raw sensor
// sections are appended to f.Images.
func (f *File) loadImage(e *DirEntry) error {
	buf, err := f.sectionBytes(e)
	if err != nil {
		return err
	}
	if len(buf) < imageHeaderSize {
		return fmt.Errorf("x3f: image section too short")
	}
	if le.Uint32(buf) != SectionImage {
		return fmt.Errorf("x3f: bad image section identifier 0x%08x", le.Uint32(buf))
	}
	sec := &ImageSection{
		Kind:      le.Uint32(buf[8:]),
		Format:    le.Uint32(buf[12:]),
		Width:     le.Uint32(buf[16:]),
		Height:    le.Uint32(buf[20:]),
		RowStride: le.Uint32(buf[24:]),
	}
	if sec.Kind&0xff == 0x02 {
		// Preview/thumbnail image kinds.
		return nil
	}
	if sec.Height > 100000 {
		return fmt.Errorf("x3f: implausible image height %d", sec.Height)
	}
	body := buf[imageHeaderSize:]
	switch sec.Format {
	case formatHuffmanX530, formatHuffman10Bit:
		err = sec.loadHuffman(body)
	case formatTRUE, formatMerrill, formatQuattro, 0x23, 0x1e:
		err = sec.loadTRUE(body)
	default:
		return nil
	}
	if err != nil {
		return err
	}
	f.Images = append(f.Images, sec)
	return nil
}

// loadHuffman stages the pre-TRUE format: a code table of
// length<<27|code words, a per-row offset table, then the bitstream.
func (sec *ImageSection) loadHuffman(body []byte) error {
	if len(body) < 4 {
		return fmt.Errorf("x3f: huffman image truncated")
	}
	tableSize := le.Uint32(body)
	off := 4 + int(tableSize)*4
	rowTable := off + int(sec.Height)*4
	if len(body) < rowTable {
		return fmt.Errorf("x3f: huffman image truncated")
	}
	sec.tree = newHuffTree(16)
	for i := uint32(0); i < tableSize; i++ {
		word := le.Uint32(body[4+i*4:])
		if word == 0 {
			continue
		}
		length := int(word >> 27 & 0x1f)
		sec.tree.insert(word&0x07ffffff, length, int32(i))
	}
	sec.rowOffsets = make([]uint32, sec.Height)
	for i := range sec.rowOffsets {
		sec.rowOffsets[i] = le.Uint32(body[off+i*4:])
	}
	sec.data = body[rowTable:]
	return nil
}

// loadTRUE stages the TRUE/Merrill/Quattro engine layout: optional
// Quattro plane dimensions, three seeds, the terminated code table,
// then three plane byte counts ahead of the bitstream.
func (sec *ImageSection) loadTRUE(body []byte) error {
	sec.quattro = sec.Kind&0xff == 0x23 || sec.Format&0xff == 0x23
	off := 0
	if sec.quattro {
		if len(body) < 12 {
			return fmt.Errorf("x3f: quattro image truncated")
		}
		for i := range sec.quattroPlanes {
			sec.quattroPlanes[i].Columns = le.Uint16(body[off:])
			sec.quattroPlanes[i].Rows = le.Uint16(body[off+2:])
			off += 4
		}
		switch uint32(sec.quattroPlanes[0].Rows) {
		case sec.Height / 2:
			sec.quattroFull = true
		case sec.Height:
			sec.quattroFull = false
		default:
			return fmt.Errorf("x3f: unexpected quattro plane height %d for image height %d",
				sec.quattroPlanes[0].Rows, sec.Height)
		}
	}
	if len(body) < off+8 {
		return fmt.Errorf("x3f: TRUE image truncated")
	}
	for i := range sec.seeds {
		sec.seeds[i] = le.Uint16(body[off:])
		off += 2
	}
	off += 2 // reserved
	for {
		if len(body) < off+2 {
			return fmt.Errorf("x3f: TRUE code table truncated")
		}
		e := trueTableEntry{CodeSize: body[off], Code: body[off+1]}
		sec.trueTable = append(sec.trueTable, e)
		off += 2
		if e.CodeSize == 0 {
			break
		}
	}
	if sec.quattro {
		off += 4 // reserved
	}
	if len(body) < off+12 {
		return fmt.Errorf("x3f: TRUE plane sizes truncated")
	}
	for i := range sec.planeSizes {
		sec.planeSizes[i] = le.Uint32(body[off:])
		off += 4
	}
	sec.tree = buildTRUETree(sec.trueTable)
	sec.data = body[off:]
	return nil
}

// Decode expands the staged payload into Pixels.
func (sec *ImageSection) Decode() error {
	switch sec.Format {
	case formatHuffmanX530, formatHuffman10Bit:
		return sec.decodeHuffman()
	default:
		return sec.decodeTRUE()
	}
}

// decodeHuffman expands the row-indexed format: three interleaved
// difference streams per row, each predicted from the previous column.
func (sec *ImageSection) decodeHuffman() error {
	w, h := int(sec.Width), int(sec.Height)
	sec.OutWidth, sec.OutHeight = sec.Width, sec.Height
	sec.Pixels = make([]uint16, w*h*3)
	for row := 0; row < h; row++ {
		if int(sec.rowOffsets[row]) > len(sec.data) {
			return fmt.Errorf("x3f: row offset %d beyond payload", sec.rowOffsets[row])
		}
		p := bitstream.NewMSB(sec.data[sec.rowOffsets[row]:])
		var acc [3]int16
		out := sec.Pixels[row*w*3:]
		for col := 0; col < w; col++ {
			for c := 0; c < 3; c++ {
				acc[c] += int16(sec.tree.decode(p))
				v := acc[c]
				if v < 0 {
					v = 0
				}
				out[col*3+c] = uint16(v)
			}
		}
	}
	return nil
}

// decodeTRUE expands the three seeded planes. The first two pixels of
// each row pair carry their predictor state across rows; interior
// columns predict from the same-parity column accumulator.
func (sec *ImageSection) decodeTRUE() error {
	mainW, mainH := int(sec.Width), int(sec.Height)
	if sec.quattroFull {
		mainW = int(sec.quattroPlanes[0].Columns)
		mainH = int(sec.quattroPlanes[0].Rows)
	}
	sec.OutWidth, sec.OutHeight = uint32(mainW), uint32(mainH)
	sec.Pixels = make([]uint16, mainW*mainH*3)

	total := 0
	for i, n := range sec.planeSizes {
		if int(n) > len(sec.data) {
			return fmt.Errorf("x3f: plane %d size %d exceeds payload %d", i, n, len(sec.data))
		}
		total += int(n)
	}
	if total > len(sec.data) {
		return fmt.Errorf("x3f: plane sizes %d exceed payload %d", total, len(sec.data))
	}

	var top []uint16
	off := 0
	for plane := 0; plane < 3; plane++ {
		w, h := mainW, mainH
		if sec.quattroFull {
			if plane == 2 {
				w = int(sec.quattroPlanes[2].Columns)
				h = int(sec.quattroPlanes[2].Rows)
			} else {
				w = int(sec.quattroPlanes[plane].Columns)
				h = int(sec.quattroPlanes[plane].Rows)
			}
		}
		end := off + int(sec.planeSizes[plane])
		if end > len(sec.data) {
			return fmt.Errorf("x3f: plane %d overruns payload after alignment", plane)
		}
		vals := decodeTRUEPlane(sec.data[off:end], w, h, sec.tree, int32(sec.seeds[plane]))
		if sec.quattroFull && plane == 2 {
			top = vals
		} else {
			for i, v := range vals {
				sec.Pixels[i*3+plane] = v
			}
		}
		// Planes are 16-byte aligned in the payload.
		off += (int(sec.planeSizes[plane]) + 15) &^ 15
	}

	if sec.quattroFull && top != nil {
		sec.downsampleQuattroTop(top, mainW, mainH)
	}
	return nil
}

func decodeTRUEPlane(data []byte, w, h int, tree *huffTree, seed int32) []uint16 {
	out := make([]uint16, w*h)
	p := bitstream.NewMSB(data)
	rowStart := [2][2]int32{{seed, seed}, {seed, seed}}
	for row := 0; row < h; row++ {
		var colAcc [2]int32
		for col := 0; col < w; col++ {
			diff := trueDiff(p, tree)
			var prev int32
			if col < 2 {
				prev = rowStart[row&1][col&1]
			} else {
				prev = colAcc[col&1]
			}
			v := prev + diff
			colAcc[col&1] = v
			if col < 2 {
				rowStart[row&1][col&1] = v
			}
			if v < 0 {
				v = 0
			}
			out[row*w+col] = uint16(v)
		}
	}
	return out
}

// downsampleQuattroTop box-averages the full-resolution top plane into
// the blue channel of the binned output.
func (sec *ImageSection) downsampleQuattroTop(top []uint16, mainW, mainH int) {
	topW := int(sec.quattroPlanes[2].Columns)
	topH := int(sec.quattroPlanes[2].Rows)
	for row := 0; row < mainH; row++ {
		for col := 0; col < mainW; col++ {
			r2, c2 := row*2, col*2
			if r2+1 >= topH || c2+1 >= topW {
				continue
			}
			sum := uint32(top[r2*topW+c2]) + uint32(top[r2*topW+c2+1]) +
				uint32(top[(r2+1)*topW+c2]) + uint32(top[(r2+1)*topW+c2+1])
			sec.Pixels[(row*mainW+col)*3+2] = uint16(sum / 4)
		}
	}
}

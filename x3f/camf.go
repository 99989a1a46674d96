package x3f

import (
	"bytes"
	"fmt"
	"math"

	"github.com/rawkit/rawkit/bitstream"
	"github.com/rawkit/rawkit/colorspace"
)

// CAMF entry record codes.
const (
	camfEntryProps  = 0x50624d43 // "CMbP"
	camfEntryText   = 0x54624d43 // "CMbT"
	camfEntryMatrix = 0x4d624d43 // "CMbM"
)

// CAMF is the parsed calibration block: a flat list of named text,
// property-list and matrix entries. The block arrives XOR-scrambled
// (type 2) or difference-coded behind the TRUE code table (types 4/5),
// decoded once at load.
type CAMF struct {
	Entries []*CAMFEntry
}

// CAMFEntry is one decoded calibration record.
type CAMFEntry struct {
	ID   uint32
	Name string

	Text string

	PropNames  []string
	PropValues []string

	Dims    []uint32
	Floats  []float64
	Uints   []uint32
	Ints    []int32
	rawData []byte
}

// loadCAMF reads, unscrambles and indexes a CAMF section.
func (f *File) loadCAMF(e *DirEntry) error {
	buf, err := f.sectionBytes(e)
	if err != nil {
		return err
	}
	if len(buf) < 28 || le.Uint32(buf) != SectionCAMF {
		return fmt.Errorf("x3f: bad CAMF section header")
	}
	// The section header doubles as the codec parameter block: the kind
	// word at +8 selects the scrambler, the four words after it are its
	// parameters.
	kind := le.Uint32(buf[8:])
	body := buf[28:]

	var decoded []byte
	switch kind {
	case 2:
		decoded = camfUnscramble(body, le.Uint32(buf[24:]))
	case 4:
		decoded, err = camfInflateBlocked(body, le.Uint32(buf[12:]), le.Uint32(buf[16:]), le.Uint32(buf[20:]), le.Uint32(buf[24:]))
	case 5:
		decoded, err = camfInflateLinear(body, le.Uint32(buf[12:]), int32(le.Uint32(buf[16:])))
	default:
		return fmt.Errorf("x3f: unsupported CAMF coding %d", kind)
	}
	if err != nil {
		return err
	}

	camf := &CAMF{}
	for off := 0; off+20 <= len(decoded); {
		entry, size := parseCAMFEntry(decoded[off:])
		if entry == nil || size <= 0 {
			break
		}
		camf.Entries = append(camf.Entries, entry)
		off += size
	}
	f.CAMF = camf
	return nil
}

// camfUnscramble reverses the type-2 XOR keystream seeded from the
// header's key word.
func camfUnscramble(in []byte, key uint32) []byte {
	out := make([]byte, len(in))
	for i, b := range in {
		key = (key*1597 + 51749) % 244944
		tmp := uint32(int64(key) * 301593171 >> 24)
		out[i] = b ^ uint8((((key<<8)-tmp)>>1+tmp)>>17)
	}
	return out
}

// camfReadCodeTable reads the zero-terminated TRUE code table shared by
// the type-4/5 codings and returns the tree plus the table's byte size.
func camfReadCodeTable(in []byte) (*huffTree, int) {
	var table []trueTableEntry
	off := 0
	for off+1 < len(in) && in[off] != 0 {
		table = append(table, trueTableEntry{CodeSize: in[off], Code: in[off+1]})
		off += 2
	}
	return buildTRUETree(table), off
}

// camfInflateBlocked decodes the type-4 coding: the two-row seeded
// predictor from the TRUE image engine, emitting 12-bit values packed
// two per three bytes.
func camfInflateBlocked(in []byte, size, seed, blockSize, blockCount uint32) ([]byte, error) {
	tree, _ := camfReadCodeTable(in)
	if len(in) < 32 {
		return nil, fmt.Errorf("x3f: CAMF type-4 payload truncated")
	}
	p := bitstream.NewMSB(in[32:])
	out := make([]byte, size)

	rowStart := [2][2]int32{{int32(seed), int32(seed)}, {int32(seed), int32(seed)}}
	dst := 0
	odd := false
	for row := uint32(0); row < blockCount && dst < len(out); row++ {
		var colAcc [2]int32
		for col := uint32(0); col < blockSize && dst < len(out); col++ {
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
			if !odd {
				out[dst] = uint8(v >> 4)
				dst++
				if dst >= len(out) {
					break
				}
				out[dst] = uint8(v << 4)
			} else {
				out[dst] |= uint8(v >> 8 & 0x0f)
				dst++
				if dst >= len(out) {
					break
				}
				out[dst] = uint8(v)
				dst++
			}
			odd = !odd
		}
	}
	return out, nil
}

// camfInflateLinear decodes the type-5 coding: a single running
// accumulator emitting one byte per symbol.
func camfInflateLinear(in []byte, size uint32, seed int32) ([]byte, error) {
	tree, _ := camfReadCodeTable(in)
	if len(in) < 32 {
		return nil, fmt.Errorf("x3f: CAMF type-5 payload truncated")
	}
	p := bitstream.NewMSB(in[32:])
	out := make([]byte, size)
	acc := seed
	for i := range out {
		acc += trueDiff(p, tree)
		out[i] = uint8(acc)
	}
	return out, nil
}

// parseCAMFEntry decodes one record from the unscrambled block and
// returns it with its total size, or nil on a malformed header.
func parseCAMFEntry(data []byte) (*CAMFEntry, int) {
	id := le.Uint32(data)
	entrySize := le.Uint32(data[8:])
	nameOff := le.Uint32(data[12:])
	valueOff := le.Uint32(data[16:])
	if nameOff < 20 || int(nameOff) >= len(data) || entrySize == 0 || int(entrySize) > len(data) {
		return nil, 0
	}
	entry := &CAMFEntry{ID: id}
	nameEnd := valueOff
	if nameEnd == 0 {
		nameEnd = entrySize
	}
	entry.Name = cString(data[nameOff:nameEnd])

	switch id {
	case camfEntryText:
		entry.parseText(data, valueOff)
	case camfEntryProps:
		entry.parseProps(data, valueOff)
	case camfEntryMatrix:
		entry.parseMatrix(data, valueOff, entrySize)
	}
	return entry, int(entrySize)
}

func cString(b []byte) string {
	if i := bytes.IndexByte(b, 0); i >= 0 {
		b = b[:i]
	}
	return string(b)
}

func (e *CAMFEntry) parseText(data []byte, valueOff uint32) {
	if valueOff == 0 || int(valueOff)+4 > len(data) {
		return
	}
	n := le.Uint32(data[valueOff:])
	start := valueOff + 4
	if uint32(len(data)) < start+n {
		n = uint32(len(data)) - start
	}
	e.Text = cString(data[start : start+n])
}

// parseProps reads the record's property table: a count, a string-pool
// base offset, then (name, value) offset pairs of NUL-terminated ASCII
// strings relative to that base.
func (e *CAMFEntry) parseProps(data []byte, valueOff uint32) {
	if valueOff == 0 || int(valueOff)+8 > len(data) {
		return
	}
	n := le.Uint32(data[valueOff:])
	base := le.Uint32(data[valueOff+4:])
	table := valueOff + 8
	if uint32(len(data)) < table+n*8 {
		return
	}
	for i := uint32(0); i < n; i++ {
		rec := data[table+i*8:]
		nameOff := base + le.Uint32(rec)
		valOff := base + le.Uint32(rec[4:])
		var name, val string
		if int(nameOff) < len(data) {
			name = cString(data[nameOff:])
		}
		if int(valOff) < len(data) {
			val = cString(data[valOff:])
		}
		e.PropNames = append(e.PropNames, name)
		e.PropValues = append(e.PropValues, val)
	}
}

// parseMatrix reads a typed N-dimensional array record. Element type
// codes follow the format: 0=int16, 1/2=uint32, 3=float32, 5=uint8,
// 6=uint16.
func (e *CAMFEntry) parseMatrix(data []byte, valueOff, entrySize uint32) {
	if valueOff == 0 || int(valueOff)+12 > len(data) {
		return
	}
	typeCode := le.Uint32(data[valueOff:])
	nDims := le.Uint32(data[valueOff+4:])
	dataOff := le.Uint32(data[valueOff+8:])
	if nDims > 8 || uint32(len(data)) < valueOff+12+nDims*12 {
		return
	}
	elements := uint32(1)
	for i := uint32(0); i < nDims; i++ {
		size := le.Uint32(data[valueOff+12+i*12:])
		e.Dims = append(e.Dims, size)
		elements *= size
	}
	if elements == 0 || dataOff >= entrySize {
		return
	}
	elemSize := (entrySize - dataOff) / elements
	total := elements * elemSize
	if uint32(len(data)) < dataOff+total {
		return
	}
	e.rawData = append([]byte(nil), data[dataOff:dataOff+total]...)

	read := func(i uint32) []byte { return e.rawData[i*elemSize:] }
	switch {
	case typeCode == 3 && elemSize == 4:
		e.Floats = make([]float64, elements)
		for i := range e.Floats {
			v := float64(math.Float32frombits(le.Uint32(read(uint32(i)))))
			if math.IsNaN(v) || math.IsInf(v, 0) {
				v = 0
			}
			e.Floats[i] = v
		}
	case elemSize == 8:
		e.Floats = make([]float64, elements)
		for i := range e.Floats {
			v := math.Float64frombits(le.Uint64(read(uint32(i))))
			if math.IsNaN(v) || math.IsInf(v, 0) {
				v = 0
			}
			e.Floats[i] = v
		}
	case typeCode == 0 && elemSize == 2:
		e.Ints = make([]int32, elements)
		for i := range e.Ints {
			e.Ints[i] = int32(int16(le.Uint16(read(uint32(i)))))
		}
	case elemSize == 4:
		e.Uints = make([]uint32, elements)
		for i := range e.Uints {
			e.Uints[i] = le.Uint32(read(uint32(i)))
		}
	case elemSize == 2:
		e.Uints = make([]uint32, elements)
		for i := range e.Uints {
			e.Uints[i] = uint32(le.Uint16(read(uint32(i))))
		}
	case elemSize == 1:
		e.Uints = make([]uint32, elements)
		for i := range e.Uints {
			e.Uints[i] = uint32(e.rawData[i])
		}
	}
}

func (f *File) camfEntry(name string, id uint32) *CAMFEntry {
	if f.CAMF == nil {
		return nil
	}
	for _, e := range f.CAMF.Entries {
		if e.Name == name && e.ID == id {
			return e
		}
	}
	return nil
}

// CAMFText returns the named text record.
func (f *File) CAMFText(name string) (string, bool) {
	if e := f.camfEntry(name, camfEntryText); e != nil {
		return e.Text, true
	}
	return "", false
}

// CAMFProperty returns one value from the named property-list record.
func (f *File) CAMFProperty(listName, propName string) (string, bool) {
	e := f.camfEntry(listName, camfEntryProps)
	if e == nil {
		return "", false
	}
	for i, n := range e.PropNames {
		if n == propName {
			return e.PropValues[i], true
		}
	}
	return "", false
}

// CAMFFloat returns a single-element float matrix record.
func (f *File) CAMFFloat(name string) (float64, bool) {
	if e := f.camfEntry(name, camfEntryMatrix); e != nil && len(e.Floats) == 1 {
		return e.Floats[0], true
	}
	return 0, false
}

// CAMFUint32 returns a single-element unsigned matrix record.
func (f *File) CAMFUint32(name string) (uint32, bool) {
	if e := f.camfEntry(name, camfEntryMatrix); e != nil && len(e.Uints) == 1 {
		return e.Uints[0], true
	}
	return 0, false
}

// CAMFFloatVector returns a float matrix record of exactly n elements.
func (f *File) CAMFFloatVector(name string, n int) ([]float64, bool) {
	if e := f.camfEntry(name, camfEntryMatrix); e != nil && len(e.Floats) == n {
		return e.Floats, true
	}
	return nil, false
}

// CAMFInt32Vector returns a signed matrix record of exactly n elements.
func (f *File) CAMFInt32Vector(name string, n int) ([]int32, bool) {
	if e := f.camfEntry(name, camfEntryMatrix); e != nil && len(e.Ints) == n {
		return e.Ints, true
	}
	return nil, false
}

// CAMFUint32Vector returns an unsigned matrix record of exactly n
// elements.
func (f *File) CAMFUint32Vector(name string, n int) ([]uint32, bool) {
	if e := f.camfEntry(name, camfEntryMatrix); e != nil && len(e.Uints) == n {
		return e.Uints, true
	}
	return nil, false
}

// CAMFRect returns a four-element rectangle record as x0,y0,x1,y1
// (inclusive corners).
func (f *File) CAMFRect(name string) (x0, y0, x1, y1 uint32, ok bool) {
	e := f.camfEntry(name, camfEntryMatrix)
	if e == nil || len(e.rawData) < 16 {
		return 0, 0, 0, 0, false
	}
	return le.Uint32(e.rawData), le.Uint32(e.rawData[4:]),
		le.Uint32(e.rawData[8:]), le.Uint32(e.rawData[12:]), true
}

// CAMFRectScaled returns the named rectangle clipped to KeepImageArea
// and, when rescale is set, scaled from KeepImageArea resolution to the
// decoded image resolution.
func (f *File) CAMFRectScaled(name string, imageW, imageH uint32, rescale bool) (x0, y0, x1, y1 uint32, ok bool) {
	x0, y0, x1, y1, ok = f.CAMFRect(name)
	if !ok {
		return 0, 0, 0, 0, false
	}
	kx0, ky0, kx1, ky1, ok := f.CAMFRect("KeepImageArea")
	if !ok {
		return 0, 0, 0, 0, false
	}
	if x0 > kx1 || y0 > ky1 || x1 < kx0 || y1 < ky0 {
		return 0, 0, 0, 0, false
	}
	x0, y0 = max32(x0, kx0)-kx0, max32(y0, ky0)-ky0
	x1, y1 = min32(x1, kx1)-kx0, min32(y1, ky1)-ky0
	if rescale {
		keepW, keepH := kx1-kx0+1, ky1-ky0+1
		x0, x1 = x0*imageW/keepW, x1*imageW/keepW
		y0, y1 = y0*imageH/keepH, y1*imageH/keepH
	}
	return x0, y0, x1, y1, true
}

func max32(a, b uint32) uint32 {
	if a > b {
		return a
	}
	return b
}

func min32(a, b uint32) uint32 {
	if a < b {
		return a
	}
	return b
}

// ActiveArea returns the sensor's active image rectangle.
func (f *File) ActiveArea() (x0, y0, x1, y1 uint32, ok bool) {
	a, found := f.CAMFUint32Vector("ActiveImageArea", 4)
	if !found {
		return 0, 0, 0, 0, false
	}
	return a[0], a[1], a[2], a[3], true
}

// WhiteBalanceName maps the CAMF WhiteBalance code (or the header field
// on older files) to its preset name.
func (f *File) WhiteBalanceName() string {
	if code, ok := f.CAMFUint32("WhiteBalance"); ok {
		names := map[uint32]string{
			1: "Auto", 2: "Sunlight", 3: "Shadow", 4: "Overcast",
			5: "Incandescent", 6: "Florescent", 7: "Flash", 8: "Custom",
			11: "ColorTemp", 12: "AutoLSP",
		}
		if n, ok := names[code]; ok {
			return n
		}
		return "Auto"
	}
	if wb := cString(f.Header.WhiteBalance[:]); wb != "" {
		return wb
	}
	return "Auto"
}

// isTRUEEngine reports whether the calibration carries the TRUE-era
// white-balance tables.
func (f *File) isTRUEEngine() bool {
	_, cc := f.camfWBMatrixName("WhiteBalanceColorCorrections")
	_, g := f.camfWBMatrixName("WhiteBalanceGains")
	return cc && g
}

func (f *File) camfWBMatrixName(list string) (string, bool) {
	if f.camfEntry(list, camfEntryProps) != nil {
		return list, true
	}
	if f.camfEntry("DP1_"+list, camfEntryProps) != nil {
		return "DP1_" + list, true
	}
	return "", false
}

// MaxRaw returns the per-plane sensor saturation values.
func (f *File) MaxRaw() ([3]uint32, bool) {
	if depth, ok := f.CAMFUint32("ImageDepth"); ok {
		v := uint32(1)<<depth - 1
		return [3]uint32{v, v, v}, true
	}
	field := "SaturationLevel"
	if f.isTRUEEngine() {
		field = "RawSaturationLevel"
	}
	if v, ok := f.CAMFInt32Vector(field, 3); ok {
		return [3]uint32{uint32(v[0]), uint32(v[1]), uint32(v[2])}, true
	}
	return [3]uint32{}, false
}

// camfWBMatrix resolves a white-balance preset through the named
// property list to its matrix record, checking the DP1_-prefixed
// fallback list and the SD1's Daylight/Sunlight alias.
func (f *File) camfWBMatrix(list, wb string, rows, cols int) ([]float64, bool) {
	for _, l := range []string{list, "DP1_" + list} {
		name, ok := f.CAMFProperty(l, wb)
		if !ok {
			continue
		}
		e := f.camfEntry(name, camfEntryMatrix)
		if e == nil || len(e.Floats) != rows*cols {
			continue
		}
		if cols > 1 && (len(e.Dims) != 2 || int(e.Dims[0]) != rows || int(e.Dims[1]) != cols) {
			continue
		}
		return e.Floats, true
	}
	if wb == "Daylight" {
		return f.camfWBMatrix(list, "Sunlight", rows, cols)
	}
	return nil, false
}

func mat3(vals []float64) colorspace.Matrix3x3 {
	var m colorspace.Matrix3x3
	copy(m[:], vals)
	return m
}

// rawNeutral derives the sensor response to the D65 neutral point under
// the given raw-to-XYZ matrix.
func rawNeutral(rawToXYZ colorspace.Matrix3x3) colorspace.Vector3 {
	return rawToXYZ.Inverse().Apply(colorspace.D65WhitePoint)
}

// WhiteBalanceGain returns the per-plane gains for a white-balance
// preset: the stored gain table where present, otherwise derived from
// the illuminant and correction matrices, then scaled by the sensor,
// temperature and aperture adjustment factors.
func (f *File) WhiteBalanceGain(wb string) (colorspace.Vector3, bool) {
	var gain colorspace.Vector3
	if v, ok := f.camfWBMatrix("WhiteBalanceGains", wb, 3, 1); ok {
		copy(gain[:], v)
	} else if camToXYZ, ok := f.camfWBMatrix("WhiteBalanceIlluminants", wb, 3, 3); ok {
		corr, ok := f.camfWBMatrix("WhiteBalanceCorrections", wb, 3, 3)
		if !ok {
			return colorspace.Vector3{}, false
		}
		neutral := rawNeutral(mat3(corr).Multiply(mat3(camToXYZ)))
		for i := range gain {
			gain[i] = 1 / neutral[i]
		}
	} else {
		return colorspace.Vector3{}, false
	}
	for _, adj := range []string{"SensorAdjustmentGainFact", "TempGainFact", "FNumberGainFact"} {
		if v, ok := f.CAMFFloatVector(adj, 3); ok {
			for i := range gain {
				gain[i] *= v[i]
			}
		}
	}
	return gain, true
}

// bmtToXYZ returns the white-balanced sensor-to-XYZ matrix: the sRGB
// primaries matrix composed with the preset's color correction, or on
// pre-TRUE files derived from the illuminant/correction pair normalized
// at the raw neutral.
func (f *File) bmtToXYZ(wb string) (colorspace.Matrix3x3, bool) {
	if cc, ok := f.camfWBMatrix("WhiteBalanceColorCorrections", wb, 3, 3); ok {
		return colorspace.SRGBToXYZ.Multiply(mat3(cc)), true
	}
	camToXYZ, ok1 := f.camfWBMatrix("WhiteBalanceIlluminants", wb, 3, 3)
	corr, ok2 := f.camfWBMatrix("WhiteBalanceCorrections", wb, 3, 3)
	if !ok1 || !ok2 {
		return colorspace.Matrix3x3{}, false
	}
	rawToXYZ := mat3(corr).Multiply(mat3(camToXYZ))
	neutral := rawNeutral(rawToXYZ)
	var diag colorspace.Matrix3x3
	diag[0], diag[4], diag[8] = neutral[0], neutral[1], neutral[2]
	return rawToXYZ.Multiply(diag), true
}

// ColorMatrix returns the raw-to-XYZ matrix for a white-balance preset,
// with the per-plane gains folded in.
func (f *File) ColorMatrix(wb string) (colorspace.Matrix3x3, bool) {
	gain, ok := f.WhiteBalanceGain(wb)
	if !ok {
		return colorspace.Matrix3x3{}, false
	}
	bmt, ok := f.bmtToXYZ(wb)
	if !ok {
		return colorspace.Matrix3x3{}, false
	}
	var diag colorspace.Matrix3x3
	diag[0], diag[4], diag[8] = gain[0], gain[1], gain[2]
	return bmt.Multiply(diag), true
}

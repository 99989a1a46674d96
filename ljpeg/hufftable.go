// Package ljpeg decodes the lossless-JPEG (ITU T.81 process 14,
// sequential lossless, Huffman-coded) streams Canon, Nikon, and many
// other vendors use to store raw sensor tiles. Decoding runs through a
// fully expanded (bits, len, shift) lookup sized to the longest real
// code, fronted by a 13-bit decode cache for the common path.
package ljpeg

import (
	"fmt"

	"github.com/rawkit/rawkit/bitstream"
)

const decodeCacheBits = 13

// HuffTable is one DC Huffman table extracted from a DHT marker.
type HuffTable struct {
	Bits     [17]uint32 // Bits[i] = count of codes with length i, 1<=i<=16
	HuffVal  [256]uint32
	ShiftVal [256]uint32 // Nikon-specific shift values; zero for everyone else
	DNGBug   bool        // ssss=16 (-32768) is followed by 16 extra bits to skip

	nbits uint32
	table []huffEntry // len == 1<<nbits

	cacheValid [1 << decodeCacheBits]bool
	cacheBits  [1 << decodeCacheBits]uint8
	cacheDiff  [1 << decodeCacheBits]int32
}

type huffEntry struct {
	bits, length, shift uint8
}

// NewHuffTable builds and initializes a table from raw DHT fields.
func NewHuffTable(bits [17]uint32, huffval [256]uint32, dngBug bool) (*HuffTable, error) {
	t := &HuffTable{Bits: bits, HuffVal: huffval, DNGBug: dngBug}
	if err := t.initialize(); err != nil {
		return nil, err
	}
	return t, nil
}

func (t *HuffTable) initialize() error {
	t.nbits = 16
	for i := 0; i < 16; i++ {
		if t.Bits[16-i] != 0 {
			break
		}
		t.nbits--
	}
	if t.nbits == 0 {
		return fmt.Errorf("ljpeg: huffman table has no codes")
	}
	t.table = make([]huffEntry, 1<<t.nbits)

	h := 0
	pos := 0
	for length := uint32(0); length < t.nbits; length++ {
		for n := uint32(0); n < t.Bits[length+1]; n++ {
			for k := 0; k < 1<<(t.nbits-length-1); k++ {
				t.table[h] = huffEntry{bits: uint8(length + 1), length: uint8(t.HuffVal[pos]), shift: uint8(t.ShiftVal[pos])}
				h++
			}
			pos++
		}
	}

	// Precompute the fast-path cache: for every possible decodeCacheBits-
	// wide bit window, run the slow decode against a mock pump that only
	// has that many bits available, keeping the result only if the slow
	// path didn't need more bits than were on offer.
	for code := 0; code < 1<<decodeCacheBits; code++ {
		mp := newMockPump(uint32(code), decodeCacheBits)
		bits, diff := t.huffDecodeSlow(mp)
		if mp.validBits() >= 0 {
			t.cacheValid[code] = true
			t.cacheBits[code] = bits
			t.cacheDiff[code] = diff
		}
	}
	return nil
}

// mockPump replays a fixed-width bit window, tracking how many bits
// remain so initialize() can detect under-supplied codes, exactly as the
// original's MockPump does.
type mockPump struct {
	bits  uint64
	nbits int32
}

func newMockPump(bits uint32, nbits uint32) *mockPump {
	return &mockPump{bits: uint64(bits) << 32, nbits: int32(nbits) + 32}
}

func (p *mockPump) validBits() int32 { return p.nbits - 32 }

func (p *mockPump) PeekBits(n uint) uint32 {
	return uint32(p.bits >> uint(p.nbits-int32(n)))
}
func (p *mockPump) ConsumeBits(n uint) {
	p.nbits -= int32(n)
	if p.nbits >= 0 {
		p.bits &= (1 << uint(p.nbits)) - 1
	}
}
func (p *mockPump) GetBits(n uint) uint32 {
	v := p.PeekBits(n)
	p.ConsumeBits(n)
	return v
}
func (p *mockPump) GetIBitsSextended(n uint) int32 { return int32(p.GetBits(n)) }

// HuffDecode reads one Huffman-coded DC difference from pump, using the
// decode cache when the code fits in decodeCacheBits and falling back to
// the slow bit-by-bit path otherwise.
func (t *HuffTable) HuffDecode(pump bitstream.Pump) int32 {
	code := pump.PeekBits(decodeCacheBits)
	if t.cacheValid[code] {
		bits, diff := t.cacheBits[code], t.cacheDiff[code]
		if diff == -32768 && !t.DNGBug {
			pump.ConsumeBits(uint(bits) - 16)
		} else {
			pump.ConsumeBits(uint(bits))
		}
		return diff
	}
	_, diff := t.huffDecodeSlow(pump)
	return diff
}

func (t *HuffTable) huffDecodeSlow(pump bitstream.Pump) (totalBits uint8, diff int32) {
	l := t.HuffLen(pump)
	switch l.Length {
	case 0:
		return l.codeBits, 0
	case 16:
		// The "16 extra bits" are counted toward the decode-cache bit cost
		// even when dng_bug is off and they're not actually consumed here
		// — HuffDecode's cache path compensates by rewinding 16 bits.
		return l.codeBits + 16, t.HuffDiff(pump, l)
	default:
		return l.codeBits + l.Length, t.HuffDiff(pump, l)
	}
}

// CodeLen is one decoded length symbol: the SSSS magnitude category
// plus the table's per-symbol extra shift.
type CodeLen struct {
	Length, Shift uint8
	codeBits      uint8
}

// HuffLen decodes one length symbol from pump, consuming only the code
// bits, not the magnitude bits that follow. Paired with HuffDiff for
// the packings that interleave two length symbols ahead of their two
// magnitude fields (Hasselblad).
func (t *HuffTable) HuffLen(pump bitstream.Pump) CodeLen {
	code := pump.PeekBits(uint(t.nbits))
	e := t.table[code]
	pump.ConsumeBits(uint(e.bits))
	return CodeLen{Length: e.length, Shift: e.shift, codeBits: e.bits}
}

// HuffDiff reads the magnitude bits for a previously decoded length
// symbol and sign-folds them into the signed difference.
func (t *HuffTable) HuffDiff(pump bitstream.Pump, l CodeLen) int32 {
	switch l.Length {
	case 0:
		return 0
	case 16:
		if t.DNGBug {
			pump.GetBits(16)
		}
		return -32768
	default:
		fullLen := int32(l.Length) + int32(l.Shift)
		bits := int32(pump.GetBits(uint(l.Length)))
		d := ((bits<<1 + 1) << l.Shift) >> 1
		if d&(1<<(fullLen-1)) == 0 {
			sub := int32(1) << fullLen
			if l.Shift == 0 {
				sub--
			}
			d -= sub
		}
		return d
	}
}

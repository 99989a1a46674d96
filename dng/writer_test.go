package dng

import (
	"bytes"
	"crypto/md5"
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/rawkit/rawkit/bytesource"
	"github.com/rawkit/rawkit/original"
	"github.com/rawkit/rawkit/rawimage"
	"github.com/rawkit/rawkit/tiff"
)

func testRawImage(t *testing.T) *rawimage.RawImage {
	t.Helper()
	cfa, err := rawimage.NewCFAFromString("RGGB", 2, 2)
	require.NoError(t, err)

	const w, h = 100, 100
	data := make([]uint16, w*h)
	for i := range data {
		data[i] = uint16(64 + i%1000)
	}
	black := make([]tiff.Rational, 1)
	black[0] = tiff.Rational{Num: 64, Denom: 1}
	active := rawimage.Rect{X: 0, Y: 0, W: w, H: h}
	return &rawimage.RawImage{
		Make:        "Testmake",
		Model:       "Testmodel",
		CleanMake:   "Testmake",
		CleanModel:  "Testmodel",
		Width:       w,
		Height:      h,
		CPP:         1,
		BPS:         14,
		Data:        rawimage.Data{Ints: data},
		CFA:         &cfa,
		WhiteLevel:  []uint16{16383},
		BlackLevel:  rawimage.BlackLevel{PatternW: 1, PatternH: 1, CPP: 1, Values: black},
		ActiveArea:  &active,
		Photometric: rawimage.PhotometricCFA,
		Orientation: rawimage.OrientationNormal,
	}
}

// parseDNG re-reads writer output through the tiff reader and returns
// the root IFD chain.
func parseDNG(t *testing.T, raw []byte) []*tiff.IFD {
	t.Helper()
	src := bytesource.New(bytes.NewReader(raw), int64(len(raw)))
	r, err := tiff.NewReader(src, 0, 0, nil, nil)
	require.NoError(t, err)
	first, err := r.FirstIFDOffset()
	require.NoError(t, err)
	chain, err := r.ReadChain(first)
	require.NoError(t, err)
	require.NotEmpty(t, chain)
	return chain
}

func findRawIFD(t *testing.T, chain []*tiff.IFD) *tiff.IFD {
	t.Helper()
	for _, ifd := range tiff.AllIFDs(chain) {
		if e, ok := ifd.GetEntry(tagPhotometric); ok {
			if v, ok := e.Value.AsUint(); ok && (v == photometricCFA || v == photometricLinearRaw) {
				return ifd
			}
		}
	}
	t.Fatal("no raw IFD found")
	return nil
}

func TestWriteUncompressedCFA(t *testing.T) {
	img := testRawImage(t)
	var out bytes.Buffer
	err := Write(&out, img, Options{
		Compression: CompressionUncompressed,
		DateTime:    "2024:01:02 03:04:05",
	})
	require.NoError(t, err)

	raw := out.Bytes()
	chain := parseDNG(t, raw)
	root := chain[0]

	e, ok := root.GetEntry(tagDNGVersion)
	require.True(t, ok)
	require.Equal(t, []uint32{1, 4, 0, 0}, e.Value.AsUints())

	// No thumbnail requested: the raw plane lives in the root IFD.
	rawIFD := findRawIFD(t, chain)
	require.Same(t, root, rawIFD)

	v, _ := mustUint(t, rawIFD, tagNewSubfileType)
	require.Equal(t, uint32(0), v)
	w, _ := mustUint(t, rawIFD, tagImageWidth)
	require.Equal(t, uint32(100), w)
	p, _ := mustUint(t, rawIFD, tagPhotometric)
	require.Equal(t, uint32(photometricCFA), p)
	c, _ := mustUint(t, rawIFD, tagCompression)
	require.Equal(t, uint32(compressionNone), c)

	aa, ok := rawIFD.GetEntry(tagActiveArea)
	require.True(t, ok)
	require.Equal(t, []uint32{0, 0, 100, 100}, aa.Value.AsUints())

	bl, ok := rawIFD.GetEntry(tagBlackLevel)
	require.True(t, ok)
	require.Equal(t, []uint32{64}, bl.Value.AsUints())

	// Strips reassemble to the full plane, samples stored big-endian.
	offs := mustUints(t, rawIFD, tagStripOffsets)
	counts := mustUints(t, rawIFD, tagStripByteCounts)
	require.Equal(t, len(offs), len(counts))
	var plane []byte
	for i := range offs {
		plane = append(plane, raw[offs[i]:offs[i]+counts[i]]...)
	}
	require.Len(t, plane, 100*100*2)
	require.Equal(t, img.Data.Ints[0], binary.BigEndian.Uint16(plane))
	last := len(img.Data.Ints) - 1
	require.Equal(t, img.Data.Ints[last], binary.BigEndian.Uint16(plane[last*2:]))
}

func TestWriteThumbnailMovesRawToSubIFD(t *testing.T) {
	img := testRawImage(t)
	var out bytes.Buffer
	err := Write(&out, img, Options{
		Compression: CompressionUncompressed,
		Thumbnail:   true,
		DateTime:    "2024:01:02 03:04:05",
	})
	require.NoError(t, err)

	chain := parseDNG(t, out.Bytes())
	root := chain[0]

	v, _ := mustUint(t, root, tagNewSubfileType)
	require.Equal(t, uint32(1), v)

	subs, ok := root.SubIFDs[tagSubIFDs]
	require.True(t, ok)
	require.Len(t, subs, 1)

	rawIFD := subs[0]
	p, _ := mustUint(t, rawIFD, tagPhotometric)
	require.Equal(t, uint32(photometricCFA), p)
	sub, _ := mustUint(t, rawIFD, tagNewSubfileType)
	require.Equal(t, uint32(0), sub)
}

func TestWriteLosslessTilesEmitsTileTags(t *testing.T) {
	img := testRawImage(t)
	var out bytes.Buffer
	err := Write(&out, img, Options{
		Compression: CompressionLossless,
		DateTime:    "2024:01:02 03:04:05",
	})
	require.NoError(t, err)

	chain := parseDNG(t, out.Bytes())
	rawIFD := findRawIFD(t, chain)

	c, _ := mustUint(t, rawIFD, tagCompression)
	require.Equal(t, uint32(compressionModernJPEG), c)
	require.NotEmpty(t, mustUints(t, rawIFD, tagTileOffsets))
	tw, _ := mustUint(t, rawIFD, tagTileWidth)
	require.NotZero(t, tw)
}

func TestWriteEmbedOriginalRoundTrips(t *testing.T) {
	img := testRawImage(t)
	source := []byte{0x00, 0xFF, 0xDD, 0x00, 0x00, 0x11, 0x22}
	var out bytes.Buffer
	err := Write(&out, img, Options{
		Compression: CompressionUncompressed,
		EmbedRaw:    true,
		RawSource:   source,
		RawFileName: "input.raw",
		DateTime:    "2024:01:02 03:04:05",
	})
	require.NoError(t, err)

	raw := out.Bytes()
	chain := parseDNG(t, raw)
	root := chain[0]

	blob, ok := root.GetEntry(tagOriginalFileData)
	require.True(t, ok)
	digestEntry, ok := root.GetEntry(tagOriginalFileDigest)
	require.True(t, ok)
	digestWords := digestEntry.Value.AsUints()
	require.Len(t, digestWords, 16)
	var digest original.Digest
	for i, w := range digestWords {
		digest[i] = byte(w)
	}
	require.Equal(t, original.Digest(md5.Sum(source)), digest)

	recovered, fresh, err := original.Decompress(rawBytes(t, blob.Value), digest, true)
	require.NoError(t, err)
	require.Equal(t, source, recovered)
	require.Equal(t, digest, fresh)
}

func mustUint(t *testing.T, ifd *tiff.IFD, tag tiff.Tag) (uint32, bool) {
	t.Helper()
	e, ok := ifd.GetEntry(tag)
	require.True(t, ok, "missing tag %d", tag)
	v, ok := e.Value.AsUint()
	require.True(t, ok, "tag %d not integer-valued", tag)
	return v, true
}

func mustUints(t *testing.T, ifd *tiff.IFD, tag tiff.Tag) []uint32 {
	t.Helper()
	e, ok := ifd.GetEntry(tag)
	require.True(t, ok, "missing tag %d", tag)
	return e.Value.AsUints()
}

func rawBytes(t *testing.T, v tiff.Value) []byte {
	t.Helper()
	require.Equal(t, tiff.TypeUndefined, v.Type)
	return v.Undefined
}

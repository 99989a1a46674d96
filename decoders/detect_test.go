package decoders

import (
	"bytes"
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/rawkit/rawkit/bytesource"
	"github.com/rawkit/rawkit/tiff"
)

type bufSeeker struct{ buf *bytes.Buffer }

func (s bufSeeker) Write(p []byte) (int, error) { return s.buf.Write(p) }
func (s bufSeeker) Seek(offset int64, whence int) (int64, error) {
	return int64(s.buf.Len()), nil
}

// makeTIFF assembles a one-IFD little-endian TIFF whose directory is
// populated by fill.
func makeTIFF(t *testing.T, fill func(b *tiff.Builder)) *bytesource.Source {
	t.Helper()
	var buf bytes.Buffer
	buf.Write([]byte{'I', 'I', 42, 0})
	buf.Write([]byte{0, 0, 0, 0})

	b := tiff.NewBuilder()
	fill(b)
	off := buf.Len()
	_, err := b.Write(bufSeeker{&buf}, int64(off), 0)
	require.NoError(t, err)

	out := buf.Bytes()
	binary.LittleEndian.PutUint32(out[4:8], uint32(off))
	return bytesource.New(bytes.NewReader(out), int64(len(out)))
}

func srcFromBytes(data []byte) *bytesource.Source {
	return bytesource.New(bytes.NewReader(data), int64(len(data)))
}

func TestDetectTIFFVendors(t *testing.T) {
	cases := []struct {
		make_ string
		model string
		want  FormatID
	}{
		{"Canon", "Canon EOS 5D", FormatCR2},
		{"PENTAX", "PENTAX K-5", FormatPEF},
		{"SAMSUNG", "NX1", FormatSRW},
		{"Panasonic", "DC-S5", FormatRW2},
		{"NIKON CORPORATION", "NIKON D850", FormatNEF},
		{"NIKON CORPORATION", "COOLPIX P7700", FormatNRW},
		{"Phase One A/S", "IQ140", FormatIIQ},
	}
	for _, tc := range cases {
		src := makeTIFF(t, func(b *tiff.Builder) {
			b.AddASCII(271, tc.make_)
			b.AddASCII(272, tc.model)
		})
		got, err := Detect(src)
		require.NoError(t, err, "%s %s", tc.make_, tc.model)
		require.Equal(t, tc.want, got, "%s %s", tc.make_, tc.model)
	}
}

func TestDetectDNGByVersionTag(t *testing.T) {
	src := makeTIFF(t, func(b *tiff.Builder) {
		b.AddASCII(271, "Canon")
		b.AddByteArray(50706, []byte{1, 4, 0, 0})
	})
	got, err := Detect(src)
	require.NoError(t, err)
	require.Equal(t, FormatDNG, got)
}

func TestDetectBySignature(t *testing.T) {
	x3f := append([]byte("FOVb"), make([]byte, 12)...)
	got, err := Detect(srcFromBytes(x3f))
	require.NoError(t, err)
	require.Equal(t, FormatX3F, got)

	qtk := append([]byte("qktk"), make([]byte, 12)...)
	got, err = Detect(srcFromBytes(qtk))
	require.NoError(t, err)
	require.Equal(t, FormatQuickTake, got)

	ftyp := []byte{0, 0, 0, 16, 'f', 't', 'y', 'p', 'c', 'r', 'x', ' ', 0, 0, 0, 0}
	got, err = Detect(srcFromBytes(ftyp))
	require.NoError(t, err)
	require.Equal(t, FormatCR3, got)
}

func TestDetectRejectsUnknownSignature(t *testing.T) {
	_, err := Detect(srcFromBytes(bytes.Repeat([]byte{0xAB}, 16)))
	require.Error(t, err)
}

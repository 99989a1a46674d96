package bytesource

import (
	"bytes"
	"crypto/md5"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSubview(t *testing.T) {
	data := []byte("hello, raw world")
	src := New(bytes.NewReader(data), int64(len(data)))

	got, err := src.Subview(7, 3)
	require.NoError(t, err)
	require.Equal(t, []byte("raw"), got)

	_, err = src.Subview(int64(len(data)-2), 10)
	require.Error(t, err, "subview past EOF must error")
}

func TestSubviewPaddedZeroFillsPastEOF(t *testing.T) {
	data := []byte{0x01, 0x02, 0x03}
	src := New(bytes.NewReader(data), int64(len(data)))

	got := src.SubviewPadded(1, 5)
	require.Equal(t, []byte{0x02, 0x03, 0, 0, 0}, got)
}

func TestDigestIsCachedAndCorrect(t *testing.T) {
	data := []byte{0x00, 0xFF, 0xDD, 0x00, 0x00}
	src := New(bytes.NewReader(data), int64(len(data)))

	want := md5.Sum(data)
	got, err := src.Digest()
	require.NoError(t, err)
	require.Equal(t, want, got)

	// second call must hit the memoized value
	got2, err := src.Digest()
	require.NoError(t, err)
	require.Equal(t, got, got2)
}

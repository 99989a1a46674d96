package original

import (
	"bytes"
	"crypto/md5"
	"math/rand"
	"testing"

	"github.com/rawkit/rawkit/internal/rawerr"
	"github.com/stretchr/testify/require"
)

func TestRoundTripSmallBuffer(t *testing.T) {
	src := []byte{0x00, 0xFF, 0xDD, 0x00, 0x00}
	wantDigest := md5.Sum(src)

	c, err := Compress(bytes.NewReader(src))
	require.NoError(t, err)
	require.Equal(t, Digest(wantDigest), c.Digest())

	wire := c.Bytes()
	out, digest, err := Decompress(wire, c.Digest(), true)
	require.NoError(t, err)
	require.Equal(t, src, out)
	require.Equal(t, Digest(wantDigest), digest)
}

func TestRoundTripMultiChunk(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	src := make([]byte, blockSize*2+100)
	rng.Read(src)

	c, err := Compress(bytes.NewReader(src))
	require.NoError(t, err)
	require.Len(t, c.chunks, 3)

	out, _, err := Decompress(c.Bytes(), c.Digest(), true)
	require.NoError(t, err)
	require.Equal(t, src, out)
}

func TestDigestMismatchFatalWhenVerifying(t *testing.T) {
	src := []byte("hello raw world")
	c, err := Compress(bytes.NewReader(src))
	require.NoError(t, err)

	wrong := c.Digest()
	wrong[0] ^= 0xFF

	_, _, err = Decompress(c.Bytes(), wrong, true)
	require.Error(t, err)
	var mismatch *rawerr.DigestMismatch
	require.ErrorAs(t, err, &mismatch)
}

func TestDigestMismatchTolerableWhenNotVerifying(t *testing.T) {
	src := []byte("hello raw world")
	c, err := Compress(bytes.NewReader(src))
	require.NoError(t, err)

	wrong := c.Digest()
	wrong[0] ^= 0xFF

	out, _, err := Decompress(c.Bytes(), wrong, false)
	require.NoError(t, err)
	require.Equal(t, src, out)
}

func TestEmptyInput(t *testing.T) {
	c, err := Compress(bytes.NewReader(nil))
	require.NoError(t, err)
	out, _, err := Decompress(c.Bytes(), c.Digest(), true)
	require.NoError(t, err)
	require.Empty(t, out)
}

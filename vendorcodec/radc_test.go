package vendorcodec

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRADCHuffDecoderFallbackTreeIsDirectValue(t *testing.T) {
	dec := newRADCHuffDecoder(4)
	for c := 0; c < 256; c++ {
		sym := dec.cache[18][c]
		require.Equal(t, uint8(4), sym.bitcnt)
	}
}

func TestBuildRADCCurveReturnsTable(t *testing.T) {
	tbl := buildRADCCurve()
	require.NotNil(t, tbl)
}

// DecodeRADC assumes that every 4-row block's
// three channel multipliers are nonzero, since they divide the decoded
// plane at the end of the block; real RADC streams guarantee this, but
// there's no synthetic all-zero fixture that can exercise the full
// decode loop safely, so only the table-construction helpers are tested
// here.

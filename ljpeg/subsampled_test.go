package ljpeg

import (
	"testing"

	"github.com/stretchr/testify/require"
)

// buildYCbCrStream assembles a minimal SOI/DHT/SOF3/SOS stream: one DC
// table with code "0" -> SSSS 0 and code "10" -> SSSS 1, shared by all
// components, predictor 1, no point transform.
func buildYCbCrStream(t *testing.T, precision, sofW, sofH, ncomp int, sampling byte, scan []byte) []byte {
	t.Helper()
	out := []byte{0xFF, 0xD8} // SOI

	// DHT: table 0, one 1-bit code and one 2-bit code.
	dht := []byte{0x00}
	counts := make([]byte, 16)
	counts[0], counts[1] = 1, 1
	dht = append(dht, counts...)
	dht = append(dht, 0, 1) // symbols: SSSS 0, SSSS 1
	out = append(out, 0xFF, 0xC4, 0, byte(2+len(dht)))
	out = append(out, dht...)

	// SOF3.
	sof := []byte{byte(precision), byte(sofH >> 8), byte(sofH), byte(sofW >> 8), byte(sofW), byte(ncomp)}
	for i := 0; i < ncomp; i++ {
		s := byte(0x11)
		if i == 0 {
			s = sampling
		}
		sof = append(sof, byte(i+1), s, 0)
	}
	out = append(out, 0xFF, 0xC3, 0, byte(2+len(sof)))
	out = append(out, sof...)

	// SOS: predictor 1, point transform 0.
	sos := []byte{byte(ncomp)}
	for i := 0; i < ncomp; i++ {
		sos = append(sos, byte(i+1), 0)
	}
	sos = append(sos, 1, 0, 0)
	out = append(out, 0xFF, 0xDA, 0, byte(2+len(sos)))
	out = append(out, sos...)

	return append(out, scan...)
}

func TestDecode420ZeroDiffsYieldBasePrediction(t *testing.T) {
	data := buildYCbCrStream(t, 8, 2, 2, 3, 0x22, make([]byte, 8))
	d, err := Parse(data)
	require.NoError(t, err)

	sh, sv := d.Subsampling()
	require.Equal(t, 2, sh)
	require.Equal(t, 2, sv)

	out := make([]uint16, 6*2)
	require.NoError(t, d.Decode420(out, 6, 2))
	for _, v := range out {
		require.Equal(t, uint16(128), v)
	}
}

func TestDecodeSony420ZeroDiffsYieldBasePrediction(t *testing.T) {
	data := buildYCbCrStream(t, 8, 2, 2, 3, 0x22, make([]byte, 8))
	d, err := Parse(data)
	require.NoError(t, err)

	out := make([]uint16, 6*2)
	require.NoError(t, d.DecodeSony420(out, 6, 2))
	for _, v := range out {
		require.Equal(t, uint16(128), v)
	}
}

func TestDecode422PropagatesPredictions(t *testing.T) {
	// Per MCU: y1 diff, y2 diff, cb diff, cr diff. Codes: "0" = 0,
	// "10"+"1" = +1, "10"+"0" = -1. Two MCUs of (+1, 0, 0, -1):
	// 101 0 0 100 | 101 0 0 100 -> 0xA4 0xA4.
	data := buildYCbCrStream(t, 8, 2, 2, 3, 0x21, []byte{0xA4, 0xA4})
	d, err := Parse(data)
	require.NoError(t, err)

	sh, sv := d.Subsampling()
	require.Equal(t, 2, sh)
	require.Equal(t, 1, sv)

	out := make([]uint16, 6*2)
	require.NoError(t, d.Decode422(out, 6, 2))
	require.Equal(t, []uint16{
		129, 128, 127, 129, 128, 127,
		130, 128, 126, 130, 128, 126,
	}, out)
}

func TestDecodeYCbCrRejectsWrongDimensions(t *testing.T) {
	data := buildYCbCrStream(t, 8, 2, 2, 3, 0x21, nil)
	d, err := Parse(data)
	require.NoError(t, err)

	out := make([]uint16, 12*4)
	require.Error(t, d.Decode422(out, 12, 4))
	require.Error(t, d.Decode420(out, 12, 4))
	require.Error(t, d.DecodeSony420(out, 12, 4))
}

func TestDecodeHasselbladZeroDiffsYieldMidScale(t *testing.T) {
	data := buildYCbCrStream(t, 16, 4, 2, 1, 0x11, make([]byte, 8))
	d, err := Parse(data)
	require.NoError(t, err)

	out := make([]uint16, 4*2)
	require.NoError(t, d.DecodeHasselblad(out, 4))
	for _, v := range out {
		require.Equal(t, uint16(0x8000), v)
	}
}

func TestDecodeLeafStripSeedsBothPredictors(t *testing.T) {
	var bits [17]uint32
	bits[1], bits[2] = 1, 1
	var huffval [256]uint32
	huffval[1] = 1
	tbl, err := NewHuffTable(bits, huffval, false)
	require.NoError(t, err)

	out := make([]uint16, 2*2)
	require.NoError(t, DecodeLeafStrip(make([]byte, 4), out, 2, 2, tbl, tbl, 128))
	for _, v := range out {
		require.Equal(t, uint16(128), v)
	}

	require.Error(t, DecodeLeafStrip(nil, out, 3, 2, tbl, tbl, 128))
	require.Error(t, DecodeLeafStrip(nil, out, 2, 2, tbl, nil, 128))
}

package rawimage

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCFAShiftRGGB(t *testing.T) {
	rggb, err := NewCFAFromString("RGGB", 2, 2)
	require.NoError(t, err)

	shifted := rggb.Shift(1, 1)
	require.Equal(t, "BGGR", shifted.FlatSerialize())
	require.Equal(t, ColorBlue, shifted.ColorAt(0, 0))
	require.Equal(t, ColorRed, shifted.ColorAt(1, 1))
}

func TestCFAShiftMatchesActiveAreaOrigin(t *testing.T) {
	rggb, err := NewCFAFromString("RGGB", 2, 2)
	require.NoError(t, err)

	activeX, activeY := 3, 5
	shifted := rggb.Shift(activeX, activeY)
	require.Equal(t, rggb.ColorAt(activeY, activeX), shifted.ColorAt(0, 0))
}

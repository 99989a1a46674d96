package lensdb

import (
	"os"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestEmbeddedDatabaseParses(t *testing.T) {
	db := Embedded()
	require.Greater(t, len(db), 0)
}

func TestResolveByKeyname(t *testing.T) {
	db := Embedded()
	ld, ok := NewResolver(db).WithKeyname("sony-fe-24-70-28-gm").Resolve()
	require.True(t, ok)
	require.Equal(t, "Sony", ld.LensMake)
}

func TestResolveByNikonID(t *testing.T) {
	db := Embedded()
	ld, ok := NewResolver(db).WithNikonID("1.0.0.0.2.2.0E.0E").Resolve()
	require.True(t, ok)
	require.Equal(t, "AF-S NIKKOR 50mm f/1.8G", ld.LensModel)
}

func TestResolveByMountAndFocalLength(t *testing.T) {
	db := Embedded()
	ld, ok := NewResolver(db).
		WithMounts([]string{"Canon RF"}).
		WithFocalLen(50).
		Resolve()
	require.True(t, ok)
	require.Equal(t, "RF 24-105mm F4L IS USM", ld.LensModel)
}

func TestPentaxIstDRemapsLensID4To7(t *testing.T) {
	db := Embedded()
	ld, ok := NewResolver(db).
		WithCameraModel("*ist DS").
		WithLensID(LensID{ID: 4, SubID: 2}).
		Resolve()
	require.True(t, ok)
	require.Equal(t, "smc PENTAX-DA 18-55mm F3.5-5.6 AL WR", ld.LensModel)
}

func TestResolveAmbiguousReturnsFalse(t *testing.T) {
	db := []LensDescription{
		{Mount: "X", LensMake: "A", LensModel: "1"},
		{Mount: "X", LensMake: "A", LensModel: "2"},
	}
	_, ok := NewResolver(db).WithMounts([]string{"X"}).Resolve()
	require.False(t, ok)
}

func TestResolveNoMatchPanicsWhenEnvSet(t *testing.T) {
	require.NoError(t, os.Setenv("RAWLER_FAIL_NO_LENS", "1"))
	defer os.Unsetenv("RAWLER_FAIL_NO_LENS")

	require.Panics(t, func() {
		NewResolver(nil).WithKeyname("does-not-exist").Resolve()
	})
}

func TestResolveNoMatchReturnsFalseWithoutEnv(t *testing.T) {
	os.Unsetenv("RAWLER_FAIL_NO_LENS")
	_, ok := NewResolver(nil).WithKeyname("does-not-exist").Resolve()
	require.False(t, ok)
}

package cameradb

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"

	"github.com/rawkit/rawkit/rawimage"
)

func TestParseRoundTripsFullRecord(t *testing.T) {
	db, err := Parse([]byte(`
[[cameras]]
make = "Testmake"
model = "Testmodel"
mode = "sraw1"
clean_make = "Testmake"
clean_model = "Testmodel"
color_pattern = "RGGB"
whitepoint = 16383
blackpoint = 512
bps = 14
active_area = [8, 8, 6000, 4000]
hints = ["little_endian"]
`))
	require.NoError(t, err)

	got, ok := db.Lookup("Testmake", "Testmodel", "sraw1")
	require.True(t, ok)

	wp, bp := 16383, 512
	want := Camera{
		Make:       "Testmake",
		Model:      "Testmodel",
		Mode:       "sraw1",
		CleanMake:  "Testmake",
		CleanModel: "Testmodel",
		CFA:        "RGGB",
		Whitepoint: &wp,
		Blackpoint: &bp,
		BPS:        14,
		ActiveArea: []int{8, 8, 6000, 4000},
		Hints:      []string{"little_endian"},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("camera record mismatch (-want +got):\n%s", diff)
	}
}

func TestEmbeddedDatabaseParses(t *testing.T) {
	db := Embedded()
	require.Greater(t, db.Len(), 0)
}

func TestLookupByMakeModelMode(t *testing.T) {
	db := Embedded()
	cam, ok := db.Lookup("SONY", "ILCE-7M3", "")
	require.True(t, ok)
	require.Equal(t, "Sony", cam.CleanMake)
	require.Equal(t, "RGGB", cam.CFA)
	require.NotNil(t, cam.ColorMatrix[rawimage.IlluminantD65])
}

func TestLookupIsCaseInsensitive(t *testing.T) {
	db := Embedded()
	_, ok := db.Lookup("sony", "ilce-7m3", "")
	require.True(t, ok)
}

func TestLookupFallsBackToEmptyMode(t *testing.T) {
	db := Embedded()
	_, ok := db.Lookup("Canon", "Canon EOS R5", "some-unknown-mode")
	require.True(t, ok)
}

func TestLookupMissingCameraFails(t *testing.T) {
	db := Embedded()
	_, ok := db.Lookup("Nobody", "Nothing", "")
	require.False(t, ok)
}

func TestMergeOverridesBaseEntries(t *testing.T) {
	base := Embedded()
	override, err := Parse([]byte(`
[[cameras]]
make = "SONY"
model = "ILCE-7M3"
mode = ""
clean_make = "Sony"
clean_model = "A7 III (overridden)"
color_pattern = "RGGB"
`))
	require.NoError(t, err)

	merged := &DB{byKey: make(map[key]Camera)}
	merged.Merge(base)
	merged.Merge(override)

	cam, ok := merged.Lookup("SONY", "ILCE-7M3", "")
	require.True(t, ok)
	require.Equal(t, "A7 III (overridden)", cam.CleanModel)
}

func TestFindHintAndParamAccessors(t *testing.T) {
	cam := Camera{
		Hints:  []string{"panasonic_v8"},
		Params: map[string]any{"strip_count": int64(8), "note": "x"},
	}
	require.True(t, cam.FindHint("panasonic_v8"))
	require.False(t, cam.FindHint("missing"))

	n, ok := cam.ParamInt("strip_count")
	require.True(t, ok)
	require.Equal(t, 8, n)

	s, ok := cam.ParamString("note")
	require.True(t, ok)
	require.Equal(t, "x", s)
}

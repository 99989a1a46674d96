// Package cameradb holds the embedded per-camera calibration database:
// CFA pattern, black/white levels, masked calibration strips, active and
// crop areas, and color matrices keyed by illuminant, looked up by
// (make, model, mode). The database is a compile-time-embedded TOML
// document parsed once with pelletier/go-toml/v2.
package cameradb

import (
	"fmt"
	"strings"

	"github.com/pelletier/go-toml/v2"
	"github.com/rawkit/rawkit/rawimage"
)

// Illuminant mirrors rawimage.Illuminant for TOML key decoding purposes.
type Illuminant = rawimage.Illuminant

func illuminantFromString(s string) (Illuminant, error) {
	switch strings.ToLower(s) {
	case "d50":
		return rawimage.IlluminantD50, nil
	case "d65":
		return rawimage.IlluminantD65, nil
	case "tungsten", "a":
		return rawimage.IlluminantTungsten, nil
	case "fluorescent":
		return rawimage.IlluminantFluorescent, nil
	case "daylight":
		return rawimage.IlluminantDaylight, nil
	default:
		return rawimage.IlluminantUnknown, fmt.Errorf("cameradb: unknown illuminant %q", s)
	}
}

// tomlCamera is the on-disk shape of one [[cameras]] entry.
type tomlCamera struct {
	Make         string               `toml:"make"`
	Model        string               `toml:"model"`
	Mode         string               `toml:"mode"`
	CleanMake    string               `toml:"clean_make"`
	CleanModel   string               `toml:"clean_model"`
	Whitepoint   *int                 `toml:"whitepoint"`
	Blackpoint   *int                 `toml:"blackpoint"`
	BlackAreaH   []int                `toml:"blackareah"`
	BlackAreaV   []int                `toml:"blackareav"`
	ColorMatrix  map[string][]float64 `toml:"color_matrix"`
	ActiveArea   []int                `toml:"active_area"`
	CropArea     []int                `toml:"crop_area"`
	ColorPattern string               `toml:"color_pattern"`
	BPS          int                  `toml:"bps"`
	Hints        []string             `toml:"hints"`
	Params       map[string]any       `toml:"params"`
}

type tomlDoc struct {
	Cameras []tomlCamera `toml:"cameras"`
}

// Camera is the resolved, typed calibration record for one (make, model,
// mode) triple.
type Camera struct {
	Make, Model, Mode         string
	CleanMake, CleanModel     string
	Whitepoint, Blackpoint    *int
	BlackAreaH, BlackAreaV    []int
	ColorMatrix               map[Illuminant][]float64
	ActiveArea, CropArea      []int // [x, y, w, h] when present
	CFA                       string
	BPS                       int
	Hints                     []string
	Params                    map[string]any
}

// FindHint reports whether hint is present in Hints.
func (c Camera) FindHint(hint string) bool {
	for _, h := range c.Hints {
		if h == hint {
			return true
		}
	}
	return false
}

// ParamInt returns params[name] as an int, if present and integer-typed.
func (c Camera) ParamInt(name string) (int, bool) {
	v, ok := c.Params[name]
	if !ok {
		return 0, false
	}
	switch n := v.(type) {
	case int64:
		return int(n), true
	case int:
		return n, true
	}
	return 0, false
}

// ParamString returns params[name] as a string, if present.
func (c Camera) ParamString(name string) (string, bool) {
	v, ok := c.Params[name]
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	return s, ok
}

func normalize(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

type key struct{ make, model, mode string }

// DB is a loaded, queryable camera database.
type DB struct {
	byKey map[key]Camera
}

// Parse reads one TOML document (possibly one of several files
// concatenated at load time by the caller) into a DB.
func Parse(data []byte) (*DB, error) {
	var doc tomlDoc
	if err := toml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("cameradb: parse: %w", err)
	}
	db := &DB{byKey: make(map[key]Camera, len(doc.Cameras))}
	for _, tc := range doc.Cameras {
		cam := Camera{
			Make: tc.Make, Model: tc.Model, Mode: tc.Mode,
			CleanMake: tc.CleanMake, CleanModel: tc.CleanModel,
			Whitepoint: tc.Whitepoint, Blackpoint: tc.Blackpoint,
			BlackAreaH: tc.BlackAreaH, BlackAreaV: tc.BlackAreaV,
			ActiveArea: tc.ActiveArea, CropArea: tc.CropArea,
			CFA: tc.ColorPattern, BPS: tc.BPS,
			Hints: tc.Hints, Params: tc.Params,
		}
		if len(tc.ColorMatrix) > 0 {
			cam.ColorMatrix = make(map[Illuminant][]float64, len(tc.ColorMatrix))
			for illuStr, matrix := range tc.ColorMatrix {
				illu, err := illuminantFromString(illuStr)
				if err != nil {
					return nil, fmt.Errorf("cameradb: %s %s: %w", tc.Make, tc.Model, err)
				}
				cam.ColorMatrix[illu] = matrix
			}
		}
		k := key{normalize(cam.Make), normalize(cam.Model), normalize(cam.Mode)}
		db.byKey[k] = cam
	}
	return db, nil
}

// Merge combines other into db, with other's entries overriding db's on
// key collision — used to layer an optional user override file on top of
// the embedded base database.
func (db *DB) Merge(other *DB) {
	for k, v := range other.byKey {
		db.byKey[k] = v
	}
}

// Lookup finds the calibration record for (make, model, mode). Mode may
// be empty for single-mode cameras; lookup falls back to mode "" if a
// specific mode isn't found.
func (db *DB) Lookup(make_, model, mode string) (Camera, bool) {
	k := key{normalize(make_), normalize(model), normalize(mode)}
	if c, ok := db.byKey[k]; ok {
		return c, true
	}
	if mode != "" {
		k.mode = ""
		if c, ok := db.byKey[k]; ok {
			return c, true
		}
	}
	return Camera{}, false
}

// Len reports the number of distinct (make, model, mode) records loaded.
func (db *DB) Len() int { return len(db.byKey) }

// All returns every loaded record, for listing/diagnostic commands.
func (db *DB) All() []Camera {
	out := make([]Camera, 0, len(db.byKey))
	for _, c := range db.byKey {
		out = append(out, c)
	}
	return out
}

// Package lensdb resolves EXIF/MakerNote lens identifiers to a
// descriptive lens record — mount, focal range, aperture range — via an
// embedded TOML database. The resolver's fluent With*/Resolve shape and
// its fallback search order (exact keyname, then vendor numeric ID, then
// mount/focal/aperture narrowing) follow the lookup order the vendor
// identifier sets require; the Pentax "*ist D"/"*ist DS" id=4->7 remap
// is a documented camera-firmware quirk, not a generalizable rule.
package lensdb

import (
	_ "embed"
	"fmt"
	"os"

	"github.com/pelletier/go-toml/v2"
)

// LensID is the (make-specific numeric ID, sub-ID) pair many makers use
// to tag lenses in MakerNote data.
type LensID struct {
	ID, SubID uint32
}

// LensDescription is one resolved database entry.
type LensDescription struct {
	Mount       string
	LensMake    string
	LensModel   string
	FocalRange  [2]float64
	ApertureRange [2]float64
	Name        string
	ID          *LensID
	NikonID     string
	OlympusID   string
}

type tomlLens struct {
	Mount         string    `toml:"mount"`
	LensMake      string    `toml:"lens_make"`
	LensModel     string    `toml:"lens_model"`
	FocalRange    []float64 `toml:"focal_range"`
	ApertureRange []float64 `toml:"aperture_range"`
	Name          string    `toml:"lens_name"`
	LensID        *uint32   `toml:"lens_id"`
	LensSubID     *uint32   `toml:"lens_sub_id"`
	NikonID       string    `toml:"nikon_id"`
	OlympusID     string    `toml:"olympus_id"`
}

type tomlDoc struct {
	Lenses []tomlLens `toml:"lenses"`
}

//go:embed data/lenses.toml
var embeddedTOML []byte

var embedded []LensDescription

// Embedded returns the compiled-in lens database.
func Embedded() []LensDescription {
	if embedded == nil {
		db, err := Parse(embeddedTOML)
		if err != nil {
			panic(err)
		}
		embedded = db
	}
	return embedded
}

// Parse reads a lens database TOML document.
func Parse(data []byte) ([]LensDescription, error) {
	var doc tomlDoc
	if err := toml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("lensdb: parse: %w", err)
	}
	out := make([]LensDescription, 0, len(doc.Lenses))
	for _, tl := range doc.Lenses {
		ld := LensDescription{
			Mount: tl.Mount, LensMake: tl.LensMake, LensModel: tl.LensModel,
			Name: tl.Name, NikonID: tl.NikonID, OlympusID: tl.OlympusID,
		}
		if len(tl.FocalRange) == 2 {
			ld.FocalRange = [2]float64{tl.FocalRange[0], tl.FocalRange[1]}
		}
		if len(tl.ApertureRange) == 2 {
			ld.ApertureRange = [2]float64{tl.ApertureRange[0], tl.ApertureRange[1]}
		}
		if tl.LensID != nil {
			sub := uint32(0)
			if tl.LensSubID != nil {
				sub = *tl.LensSubID
			}
			ld.ID = &LensID{ID: *tl.LensID, SubID: sub}
		}
		out = append(out, ld)
	}
	return out, nil
}

// Resolver accumulates known facts about a lens (from EXIF/MakerNote
// fields or the camera fixed-lens hint) and resolves them against a
// LensDescription database.
type Resolver struct {
	db []LensDescription

	keyname     string
	lensMake    string
	lensModel   string
	lensID      *LensID
	nikonID     string
	olympusID   string
	cameraModel string
	mounts      []string
	focalLen    *float64
	aperture    *float64
}

// NewResolver creates a resolver against db (typically lensdb.Embedded()).
func NewResolver(db []LensDescription) *Resolver {
	return &Resolver{db: db}
}

func (r *Resolver) WithKeyname(v string) *Resolver     { r.keyname = v; return r }
func (r *Resolver) WithLensMake(v string) *Resolver    { r.lensMake = v; return r }
func (r *Resolver) WithLensModel(v string) *Resolver   { r.lensModel = v; return r }
func (r *Resolver) WithLensID(v LensID) *Resolver      { r.lensID = &v; return r }
func (r *Resolver) WithNikonID(v string) *Resolver     { r.nikonID = v; return r }
func (r *Resolver) WithOlympusID(v string) *Resolver   { r.olympusID = v; return r }
func (r *Resolver) WithCameraModel(v string) *Resolver { r.cameraModel = v; return r }
func (r *Resolver) WithMounts(v []string) *Resolver    { r.mounts = v; return r }
func (r *Resolver) WithFocalLen(v float64) *Resolver   { r.focalLen = &v; return r }
func (r *Resolver) WithAperture(v float64) *Resolver   { r.aperture = &v; return r }

// Resolve finds the matching lens description, applying the Pentax
// *ist D/*ist DS id remap as a fallback when the first pass fails, and
// optionally panicking (if RAWLER_FAIL_NO_LENS=1 is set) when nothing
// matches, for test suites that must not silently drop lens data.
func (r *Resolver) Resolve() (*LensDescription, bool) {
	if ld, ok := r.resolveInternal(); ok {
		return ld, true
	}

	if r.lensID != nil && r.lensID.ID == 4 && (r.cameraModel == "*ist D" || r.cameraModel == "*ist DS") {
		remapped := *r
		sub := r.lensID.SubID
		remapped.lensID = &LensID{ID: 7, SubID: sub}
		if ld, ok := remapped.resolveInternal(); ok {
			return ld, true
		}
	}

	if os.Getenv("RAWLER_FAIL_NO_LENS") == "1" {
		panic(fmt.Sprintf("lensdb: no lens definition found for %s", r.describe()))
	}
	return nil, false
}

func (r *Resolver) resolveInternal() (*LensDescription, bool) {
	if r.keyname != "" {
		for i := range r.db {
			if r.db[i].Name == r.keyname {
				return &r.db[i], true
			}
		}
	}
	if r.nikonID != "" {
		for i := range r.db {
			if r.db[i].NikonID == r.nikonID {
				return &r.db[i], true
			}
		}
	}
	if r.olympusID != "" {
		for i := range r.db {
			if r.db[i].OlympusID == r.olympusID {
				return &r.db[i], true
			}
		}
	}

	var matches []*LensDescription
	for i := range r.db {
		e := &r.db[i]
		if len(r.mounts) > 0 && !containsStr(r.mounts, e.Mount) {
			continue
		}
		if r.lensID != nil {
			if e.ID == nil || *e.ID != *r.lensID {
				continue
			}
		}
		if r.lensMake != "" && e.LensMake != r.lensMake {
			continue
		}
		if r.lensModel != "" && e.LensModel != r.lensModel {
			continue
		}
		if r.focalLen != nil && (*r.focalLen < e.FocalRange[0] || *r.focalLen > e.FocalRange[1]) {
			continue
		}
		if r.aperture != nil && (*r.aperture < e.ApertureRange[0] || *r.aperture > e.ApertureRange[1]) {
			continue
		}
		matches = append(matches, e)
	}
	if len(matches) == 1 {
		return matches[0], true
	}
	return nil, false
}

func (r *Resolver) describe() string {
	s := ""
	if r.lensID != nil {
		s += fmt.Sprintf("ID: %d:%d ", r.lensID.ID, r.lensID.SubID)
	}
	if r.keyname != "" {
		s += fmt.Sprintf("Keyname: %q ", r.keyname)
	}
	if s == "" {
		return "<EMPTY>"
	}
	return s
}

func containsStr(ss []string, v string) bool {
	for _, s := range ss {
		if s == v {
			return true
		}
	}
	return false
}

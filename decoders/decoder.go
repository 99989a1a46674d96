// Package decoders implements per-vendor raw file decoding and format
// dispatch: one TIFF-walking core with a per-format sample-decode
// strategy plugged in, plus standalone decoders for the non-TIFF
// containers (CR3, X3F, QuickTake).
package decoders

import (
	"fmt"
	"image"

	"github.com/rawkit/rawkit/bytesource"
	"github.com/rawkit/rawkit/cameradb"
	"github.com/rawkit/rawkit/lensdb"
	"github.com/rawkit/rawkit/rawimage"
	"github.com/rawkit/rawkit/tiff"
)

// RawDecodeParams selects among a container's sub-images;
// ImageIndex is 0 for every single-image format.
type RawDecodeParams struct {
	ImageIndex int
}

// VirtualEntry is one tag/value pair a decoder contributes to a DNG IFD
// the dng writer (C13) builds, independent of that writer's own on-disk
// IFD builder — mirrors populate_dng_root/populate_dng_exif's
// DirectoryWriter parameter in pef.rs, minus the concrete disk-offset
// bookkeeping only the writer needs.
type VirtualEntry struct {
	Tag   tiff.Tag
	Value tiff.Value
}

// VirtualIFD is an ordered bag of tags a decoder wants merged into the
// DNG root or raw IFD, with the decoder's own values winning conflicts
//.
type VirtualIFD struct {
	Entries []VirtualEntry
}

// Add appends an entry, replacing any existing entry for the same tag.
func (v *VirtualIFD) Add(tag tiff.Tag, val tiff.Value) {
	for i := range v.Entries {
		if v.Entries[i].Tag == tag {
			v.Entries[i].Value = val
			return
		}
	}
	v.Entries = append(v.Entries, VirtualEntry{Tag: tag, Value: val})
}

// Get looks up a previously added entry.
func (v *VirtualIFD) Get(tag tiff.Tag) (tiff.Value, bool) {
	for _, e := range v.Entries {
		if e.Tag == tag {
			return e.Value, true
		}
	}
	return tiff.Value{}, false
}

// RawMetadata is the subset of file-level information a caller needs
// without decoding the sample plane.
type RawMetadata struct {
	Make, Model           string
	CleanMake, CleanModel string
	Camera                cameradb.Camera
	Exif                  map[tiff.Tag]tiff.Value
	Orientation           rawimage.Orientation
	Lens                  *lensdb.LensDescription
	GPS                   *rawimage.GPSInfo
}

// Decoder is the per-format entry point. FullImage/PreviewImage/
// ThumbnailImage return (nil, nil) rather than an error when a format
// has no embedded image of that kind.
type Decoder interface {
	RawImage(src *bytesource.Source, params RawDecodeParams, dummy bool) (*rawimage.RawImage, error)
	RawMetadata(src *bytesource.Source, params RawDecodeParams) (*RawMetadata, error)
	RawImageCount() int

	FullImage(src *bytesource.Source) (image.Image, error)
	PreviewImage(src *bytesource.Source) (image.Image, error)
	ThumbnailImage(src *bytesource.Source) (image.Image, error)

	PopulateDNGRoot(src *bytesource.Source, root *VirtualIFD) error
	PopulateDNGExif(src *bytesource.Source, exif *VirtualIFD) error

	FormatHint() string
	FormatDump(src *bytesource.Source) map[string]any
}

// commonRootTags are the root-IFD tags populate_dng_root copies verbatim
// when present, the same set pef.rs's populate_dng_root copies
// (Orientation, Artist, Copyright).
var commonRootTags = []tiff.Tag{274, 315, 33432}

// copyIfPresent copies src's entry for tag into dst, if any.
func copyIfPresent(dst *VirtualIFD, src *tiff.IFD, tag tiff.Tag) {
	if src == nil {
		return
	}
	if e, ok := src.GetEntry(tag); ok {
		dst.Add(tag, e.Value)
	}
}

func fmtHint(format FormatID, camera cameradb.Camera) string {
	return fmt.Sprintf("%s:%s:%s", format, camera.Make, camera.Model)
}

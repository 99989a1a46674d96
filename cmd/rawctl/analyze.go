package main

import (
	"crypto/md5"
	"encoding/json"
	"fmt"
	"image"
	"math"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/rawkit/rawkit/decoders"
	"github.com/rawkit/rawkit/develop"
	"github.com/rawkit/rawkit/rawimage"
)

// analyzeFlags holds the `analyze` subcommand's flag set. The pixel/
// checksum mode flags combine: every flag that is set adds its own
// entry to the report.
type analyzeFlags struct {
	rawPixel        bool
	fullPixel       bool
	previewPixel    bool
	thumbnailPixel  bool
	rawChecksum     bool
	fullChecksum    bool
	previewChecksum bool
	thumbChecksum   bool
	srgb            bool
	meta            bool
	structure       bool
	summary         bool
	asJSON          bool
	asYAML          bool
}

func newAnalyzeCommand(env *appEnv) *cobra.Command {
	var flags analyzeFlags

	cmd := &cobra.Command{
		Use:   "analyze FILE",
		Short: "Inspect a raw file's metadata, structure, and pixel data",
		Args:  exactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if flags.asJSON && flags.asYAML {
				return &usageError{fmt.Errorf("--json and --yaml are mutually exclusive")}
			}
			return runAnalyze(env, args[0], flags)
		},
	}
	f := cmd.Flags()
	f.BoolVar(&flags.rawPixel, "raw-pixel", false, "report the decoded raw samples (as an MD5 checksum)")
	f.BoolVar(&flags.fullPixel, "full-pixel", false, "report the full embedded image's pixels (as an MD5 checksum)")
	f.BoolVar(&flags.previewPixel, "preview-pixel", false, "report the embedded preview's pixels (as an MD5 checksum)")
	f.BoolVar(&flags.thumbnailPixel, "thumbnail-pixel", false, "report the embedded thumbnail's pixels (as an MD5 checksum)")
	f.BoolVar(&flags.rawChecksum, "raw-checksum", false, "print an MD5 of the decoded raw samples")
	f.BoolVar(&flags.fullChecksum, "full-checksum", false, "print an MD5 of the full embedded image")
	f.BoolVar(&flags.previewChecksum, "preview-checksum", false, "print an MD5 of the embedded preview")
	f.BoolVar(&flags.thumbChecksum, "thumbnail-checksum", false, "print an MD5 of the embedded thumbnail")
	f.BoolVar(&flags.srgb, "srgb", false, "render and checksum the develop-pipeline sRGB preview")
	f.BoolVar(&flags.meta, "meta", false, "dump the EXIF/camera metadata map")
	f.BoolVar(&flags.structure, "structure", false, "dump the decoder's format_dump structure report")
	f.BoolVar(&flags.summary, "summary", true, "print a one-line summary (default)")
	f.BoolVar(&flags.asJSON, "json", false, "render as JSON")
	f.BoolVar(&flags.asYAML, "yaml", false, "render as YAML")
	return cmd
}

func runAnalyze(env *appEnv, path string, flags analyzeFlags) error {
	of, dec, format, err := openAndDetect(path, env.cameras(), env.lenses())
	if err != nil {
		return err
	}
	defer of.Close()

	report := map[string]any{
		"file":   path,
		"format": string(format),
	}

	params := decoders.RawDecodeParams{}
	meta, merr := dec.RawMetadata(of.src, params)
	if merr != nil {
		report["metadata_error"] = merr.Error()
	} else {
		report["make"] = meta.Make
		report["model"] = meta.Model
		report["clean_make"] = meta.CleanMake
		report["clean_model"] = meta.CleanModel
		report["orientation"] = int(meta.Orientation)
		if flags.meta {
			exifDump := make(map[string]any, len(meta.Exif))
			for tag, v := range meta.Exif {
				exifDump[fmt.Sprintf("%d", tag)] = v.String()
			}
			report["exif"] = exifDump
		}
	}

	if flags.structure {
		report["structure"] = dec.FormatDump(of.src)
	}

	if needsRawImage(flags) {
		img, err := dec.RawImage(of.src, params, false)
		if err != nil {
			report["decode_error"] = err.Error()
		} else {
			report["width"] = img.Width
			report["height"] = img.Height
			report["cpp"] = img.CPP
			report["bps"] = img.BPS
			if flags.rawChecksum || flags.rawPixel {
				sum := md5.Sum(rawSampleBytes(img))
				report["raw_checksum"] = fmt.Sprintf("%x", sum)
			}
			if flags.srgb {
				addRenderedChecksum(report, "srgb_checksum", develop.RenderSRGB(img))
			}
		}
	}

	addEmbeddedImageReport(report, dec, of, flags)

	return printReport(report, flags)
}

func needsRawImage(flags analyzeFlags) bool {
	return flags.rawPixel || flags.rawChecksum || flags.srgb
}

// rawSampleBytes serializes img's sample plane as big-endian u16 (or raw
// float32) bytes for checksumming, matching the byte order the DNG
// writer itself emits.
func rawSampleBytes(img *rawimage.RawImage) []byte {
	if img.Data.Floats != nil {
		buf := make([]byte, len(img.Data.Floats)*4)
		for i, v := range img.Data.Floats {
			bits := math.Float32bits(v)
			buf[i*4] = byte(bits >> 24)
			buf[i*4+1] = byte(bits >> 16)
			buf[i*4+2] = byte(bits >> 8)
			buf[i*4+3] = byte(bits)
		}
		return buf
	}
	buf := make([]byte, len(img.Data.Ints)*2)
	for i, v := range img.Data.Ints {
		buf[i*2] = byte(v >> 8)
		buf[i*2+1] = byte(v)
	}
	return buf
}

func printReport(report map[string]any, flags analyzeFlags) error {
	switch {
	case flags.asJSON:
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(report)
	case flags.asYAML:
		enc := yaml.NewEncoder(os.Stdout)
		defer enc.Close()
		return enc.Encode(report)
	default:
		for _, k := range []string{"file", "format", "make", "model", "width", "height", "cpp", "bps",
			"raw_checksum", "full_checksum", "preview_checksum", "thumbnail_checksum", "srgb_checksum"} {
			if v, ok := report[k]; ok {
				fmt.Printf("%-10s %v\n", k+":", v)
			}
		}
		if v, ok := report["decode_error"]; ok {
			fmt.Println("decode_error:", v)
		}
		return nil
	}
}

func addEmbeddedImageReport(report map[string]any, dec decoders.Decoder, of *openedFile, flags analyzeFlags) {
	if flags.fullPixel || flags.fullChecksum {
		img, err := dec.FullImage(of.src)
		addImageChecksum(report, "full", img, err)
	}
	if flags.previewPixel || flags.previewChecksum {
		img, err := dec.PreviewImage(of.src)
		addImageChecksum(report, "preview", img, err)
	}
	if flags.thumbnailPixel || flags.thumbChecksum {
		img, err := dec.ThumbnailImage(of.src)
		addImageChecksum(report, "thumbnail", img, err)
	}
}

func addImageChecksum(report map[string]any, label string, img image.Image, err error) {
	if err != nil {
		report[label+"_error"] = err.Error()
		return
	}
	if img == nil {
		report[label] = "none"
		return
	}
	addRenderedChecksum(report, label+"_checksum", img)
}

func addRenderedChecksum(report map[string]any, key string, img image.Image) {
	if img == nil {
		return
	}
	h := md5.New()
	b := img.Bounds()
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			r, g, bl, a := img.At(x, y).RGBA()
			h.Write([]byte{byte(r >> 8), byte(g >> 8), byte(bl >> 8), byte(a >> 8)})
		}
	}
	report[key] = fmt.Sprintf("%x", h.Sum(nil))
}

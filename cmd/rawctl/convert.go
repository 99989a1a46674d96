package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/rawkit/rawkit/decoders"
	"github.com/rawkit/rawkit/dng"
	"github.com/rawkit/rawkit/internal/rlog"
	"github.com/rawkit/rawkit/rawimage"
)

// convertFlags holds the `convert` subcommand's flag set.
type convertFlags struct {
	recursive      bool
	compression    string
	predictor      int
	preview        bool
	thumbnail      bool
	embedRaw       bool
	artist         string
	imageIndex     string
	crop           string
	force          bool
}

func newConvertCommand(env *appEnv) *cobra.Command {
	var flags convertFlags

	cmd := &cobra.Command{
		Use:   "convert INPUT OUTPUT",
		Short: "Convert a camera raw file to DNG",
		Args:  exactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := validateConvertFlags(&flags); err != nil {
				return &usageError{err}
			}
			return runConvert(env, args[0], args[1], flags)
		},
	}

	f := cmd.Flags()
	f.BoolVarP(&flags.recursive, "recursive", "r", false, "recurse into directories (batch mode)")
	f.StringVarP(&flags.compression, "compression", "c", "lossless", "raw plane compression: lossless|uncompressed")
	f.IntVar(&flags.predictor, "ljpeg92-predictor", 1, "LJPEG-92 predictor mode (1-7); encoder currently always emits predictor 1")
	f.BoolVar(&flags.preview, "dng-preview", true, "embed a JPEG preview image")
	f.BoolVar(&flags.thumbnail, "dng-thumbnail", true, "embed a small thumbnail image")
	f.BoolVar(&flags.embedRaw, "embed-raw", false, "embed the original raw file for lossless round-trip")
	f.StringVar(&flags.artist, "artist", "", "Artist tag to write")
	f.StringVar(&flags.imageIndex, "image-index", "0", "sub-image index to convert, or \"all\"")
	f.StringVar(&flags.crop, "crop", "best", "crop rectangle to apply: best|active|none")
	f.BoolVarP(&flags.force, "force", "f", false, "overwrite an existing output file")

	return cmd
}

func validateConvertFlags(flags *convertFlags) error {
	switch flags.compression {
	case "lossless", "uncompressed":
	default:
		return fmt.Errorf("invalid --compression %q: want lossless|uncompressed", flags.compression)
	}
	if flags.predictor < 1 || flags.predictor > 7 {
		return fmt.Errorf("invalid --ljpeg92-predictor %d: want 1-7", flags.predictor)
	}
	switch flags.crop {
	case "best", "active", "none":
	default:
		return fmt.Errorf("invalid --crop %q: want best|active|none", flags.crop)
	}
	if flags.imageIndex != "all" {
		if _, err := strconv.Atoi(flags.imageIndex); err != nil {
			return fmt.Errorf("invalid --image-index %q: want an integer or \"all\"", flags.imageIndex)
		}
	}
	return nil
}

func runConvert(env *appEnv, inputPath, outputPath string, flags convertFlags) error {
	if flags.recursive {
		info, err := os.Stat(inputPath)
		if err != nil {
			return fmt.Errorf("stat %s: %w", inputPath, err)
		}
		if info.IsDir() {
			return runConvertBatch(env, inputPath, outputPath, flags)
		}
	}

	log := env.logger().build()
	of, dec, format, err := openAndDetect(inputPath, env.cameras(), env.lenses())
	if err != nil {
		return err
	}
	defer of.Close()

	indices, err := resolveImageIndices(dec, flags.imageIndex)
	if err != nil {
		return err
	}

	var rawSource []byte
	if flags.embedRaw {
		rawSource, err = of.src.AsVec()
		if err != nil {
			return fmt.Errorf("%s: reading for embed: %w", inputPath, err)
		}
	}

	for n, idx := range indices {
		dest := outputPath
		if len(indices) > 1 {
			dest = indexedOutputPath(outputPath, n)
		}
		if err := convertOneImage(dec, of, format, idx, dest, flags, rawSource, inputPath, log); err != nil {
			return err
		}
	}
	log.Total()
	return nil
}

// runConvertBatch converts every file under inputDir in parallel,
// writing <name>.dng files into outputDir. Per-file failures are
// aggregated, not fatal to the batch.
func runConvertBatch(env *appEnv, inputDir, outputDir string, flags convertFlags) error {
	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		return fmt.Errorf("create %s: %w", outputDir, err)
	}
	single := flags
	single.recursive = false
	return runBatch(inputDir, func(p string) error {
		dest := filepath.Join(outputDir, replaceExt(filepath.Base(p), ".dng"))
		return runConvert(env, p, dest, single)
	})
}

func resolveImageIndices(dec decoders.Decoder, spec string) ([]int, error) {
	if spec == "all" {
		n := dec.RawImageCount()
		if n < 1 {
			n = 1
		}
		out := make([]int, n)
		for i := range out {
			out[i] = i
		}
		return out, nil
	}
	idx, _ := strconv.Atoi(spec)
	return []int{idx}, nil
}

func indexedOutputPath(path string, n int) string {
	return fmt.Sprintf("%s.%d", path, n)
}

func convertOneImage(dec decoders.Decoder, of *openedFile, format decoders.FormatID, imageIndex int, outputPath string, flags convertFlags, rawSource []byte, inputPath string, log *rlog.Logger) error {
	params := decoders.RawDecodeParams{ImageIndex: imageIndex}
	img, err := dec.RawImage(of.src, params, false)
	if err != nil {
		return fmt.Errorf("%s: decode: %w", inputPath, err)
	}

	meta, err := dec.RawMetadata(of.src, params)
	if err != nil {
		return fmt.Errorf("%s: metadata: %w", inputPath, err)
	}

	applyCropSelection(img, flags.crop)

	root := &decoders.VirtualIFD{}
	if err := dec.PopulateDNGRoot(of.src, root); err != nil {
		log.Warn("convert %s: populate_dng_root: %v", inputPath, err)
	}
	exif := &decoders.VirtualIFD{}
	if err := dec.PopulateDNGExif(of.src, exif); err != nil {
		log.Warn("convert %s: populate_dng_exif: %v", inputPath, err)
	}

	compression := dng.CompressionLossless
	if flags.compression == "uncompressed" {
		compression = dng.CompressionUncompressed
	}

	out, err := createOutputFile(outputPath, flags.force)
	if err != nil {
		return err
	}
	defer out.Close()

	opts := dng.Options{
		Compression: compression,
		Preview:     flags.preview,
		Thumbnail:   flags.thumbnail,
		EmbedRaw:    flags.embedRaw,
		RawSource:   rawSource,
		RawFileName: baseName(inputPath),
		Artist:      flags.artist,
		DateTime:    time.Now().UTC().Format("2006:01:02 15:04:05"),
		Metadata:    meta,
		DecoderRoot: root,
		DecoderExif: exif,
		Log:         log,
	}
	if err := dng.Write(out, img, opts); err != nil {
		return fmt.Errorf("%s: write dng: %w", outputPath, err)
	}
	return nil
}

// applyCropSelection narrows img's reported crop rectangle per the
// --crop flag: "active" reports the full active area as the
// crop, "none" drops any crop rectangle so a DNG reader sees the whole
// frame, "best" (default) leaves the decoder's own DefaultCrop alone.
func applyCropSelection(img *rawimage.RawImage, crop string) {
	switch crop {
	case "active":
		if img.ActiveArea != nil {
			area := *img.ActiveArea
			img.CropArea = &area
		}
	case "none":
		img.CropArea = nil
	}
}

func baseName(path string) string {
	for i := len(path) - 1; i >= 0; i-- {
		if path[i] == '/' || path[i] == '\\' {
			return path[i+1:]
		}
	}
	return path
}

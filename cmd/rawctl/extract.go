package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/rawkit/rawkit/internal/rawerr"
	"github.com/rawkit/rawkit/original"
	"github.com/rawkit/rawkit/tiff"
)

// DNG tag numbers extract needs; kept local since cmd/rawctl doesn't
// depend on package dng's unexported tag table.
const (
	tagOriginalFileName   tiff.Tag = 50827
	tagOriginalFileData   tiff.Tag = 50828
	tagOriginalFileDigest tiff.Tag = 50973
)

func newExtractCommand(env *appEnv) *cobra.Command {
	var recursive, skipChecks, force bool

	cmd := &cobra.Command{
		Use:   "extract INPUT OUTPUT",
		Short: "Recover the original raw file embedded in a DNG",
		Args:  exactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runExtract(args[0], args[1], recursive, skipChecks, force)
		},
	}
	cmd.Flags().BoolVarP(&recursive, "recursive", "r", false, "recurse into directories (batch mode)")
	cmd.Flags().BoolVar(&skipChecks, "skipchecks", false, "don't fail on an MD5 digest mismatch")
	cmd.Flags().BoolVarP(&force, "force", "f", false, "overwrite an existing output file")
	return cmd
}

func runExtract(inputPath, outputPath string, recursive, skipChecks, force bool) error {
	if recursive {
		info, err := os.Stat(inputPath)
		if err != nil {
			return fmt.Errorf("stat %s: %w", inputPath, err)
		}
		if info.IsDir() {
			if err := os.MkdirAll(outputPath, 0o755); err != nil {
				return fmt.Errorf("create %s: %w", outputPath, err)
			}
			return runBatch(inputPath, func(p string) error {
				return extractOne(p, outputPath, skipChecks, force)
			})
		}
	}
	return extractOne(inputPath, outputPath, skipChecks, force)
}

// extractOne recovers the embedded original from one DNG. When
// outputPath is a directory, the output file name comes from the DNG's
// stored OriginalRawFileName, falling back to the input base name with
// an .orig extension.
func extractOne(inputPath, outputPath string, skipChecks, force bool) error {
	of, err := openInputFile(inputPath)
	if err != nil {
		return err
	}
	defer of.Close()

	reader, err := tiff.NewReader(of.src, 0, 0, nil, nil)
	if err != nil {
		return fmt.Errorf("%s: %w", inputPath, err)
	}
	first, err := reader.FirstIFDOffset()
	if err != nil {
		return fmt.Errorf("%s: %w", inputPath, err)
	}
	chain, err := reader.ReadChain(first)
	if err != nil || len(chain) == 0 {
		return fmt.Errorf("%s: no IFD found", inputPath)
	}

	var dataEntry, digestEntry, nameEntry tiff.Value
	found := false
	for _, ifd := range tiff.AllIFDs(chain) {
		e, ok := ifd.GetEntry(tagOriginalFileData)
		if !ok {
			continue
		}
		dataEntry = e.Value
		found = true
		if d, ok := ifd.GetEntry(tagOriginalFileDigest); ok {
			digestEntry = d.Value
		}
		if n, ok := ifd.GetEntry(tagOriginalFileName); ok {
			nameEntry = n.Value
		}
		break
	}
	if !found {
		return fmt.Errorf("%s: no OriginalRawFileData tag; file was not converted with --embed-raw", inputPath)
	}

	var storedDigest original.Digest
	switch digestEntry.Type {
	case tiff.TypeByte:
		copy(storedDigest[:], digestEntry.Bytes)
	case tiff.TypeUndefined:
		copy(storedDigest[:], digestEntry.Undefined)
	}

	out, _, err := original.Decompress(dataEntry.Undefined, storedDigest, !skipChecks)
	if err != nil && (!skipChecks || !isDigestMismatch(err)) {
		return fmt.Errorf("%s: %w", inputPath, err)
	}

	dest := outputPath
	if info, serr := os.Stat(outputPath); serr == nil && info.IsDir() {
		name := nameEntry.Ascii
		if name == "" {
			name = replaceExt(filepath.Base(inputPath), ".orig")
		}
		dest = filepath.Join(outputPath, filepath.Base(name))
	}

	outFile, err := createOutputFile(dest, force)
	if err != nil {
		return err
	}
	defer outFile.Close()
	if _, err := outFile.Write(out); err != nil {
		return fmt.Errorf("%s: write: %w", dest, err)
	}
	return nil
}

func isDigestMismatch(err error) bool {
	_, ok := err.(*rawerr.DigestMismatch)
	return ok
}

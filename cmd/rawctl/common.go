package main

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/rawkit/rawkit/bytesource"
	"github.com/rawkit/rawkit/cameradb"
	"github.com/rawkit/rawkit/decoders"
	"github.com/rawkit/rawkit/internal/rlog"
	"github.com/rawkit/rawkit/lensdb"
)

// openedFile bundles the *os.File a command must close with the
// bytesource.Source view decoders actually read through.
type openedFile struct {
	f   *os.File
	src *bytesource.Source
}

func openInputFile(path string) (*openedFile, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("stat %s: %w", path, err)
	}
	return &openedFile{f: f, src: bytesource.New(f, info.Size())}, nil
}

func (o *openedFile) Close() error { return o.f.Close() }

// openAndDetect opens path and resolves its Decoder, the common first
// step of convert/extract/analyze.
func openAndDetect(path string, camDB *cameradb.DB, lensDB []lensdb.LensDescription) (*openedFile, decoders.Decoder, decoders.FormatID, error) {
	of, err := openInputFile(path)
	if err != nil {
		return nil, nil, decoders.FormatUnknown, err
	}
	dec, format, err := decoders.Open(of.src, camDB, lensDB)
	if err != nil {
		of.Close()
		return nil, nil, format, fmt.Errorf("%s: %w", path, err)
	}
	return of, dec, format, nil
}

func (l *appLogger) build() *rlog.Logger {
	return newLogger(l.verbose)
}

// confirmOverwrite refuses to clobber an existing output path unless
// force is set (the "-f" flag of convert and extract).
func confirmOverwrite(path string, force bool) error {
	if force {
		return nil
	}
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("%s already exists (use -f to overwrite)", path)
	}
	return nil
}

func createOutputFile(path string, force bool) (*os.File, error) {
	if err := confirmOverwrite(path, force); err != nil {
		return nil, err
	}
	return os.Create(path)
}

// runBatch applies fn to every regular file under dir, fanning out
// across NumCPU-bounded workers. A per-file failure is reported and
// counted but does not abort the rest of the batch.
func runBatch(dir string, fn func(path string) error) error {
	var files []string
	walkErr := filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() && !strings.HasPrefix(d.Name(), ".") {
			files = append(files, p)
		}
		return nil
	})
	if walkErr != nil {
		return fmt.Errorf("walk %s: %w", dir, walkErr)
	}

	var g errgroup.Group
	g.SetLimit(runtime.NumCPU())
	var mu sync.Mutex
	var failures []string
	for _, p := range files {
		p := p
		g.Go(func() error {
			if err := fn(p); err != nil {
				mu.Lock()
				failures = append(failures, fmt.Sprintf("%s: %v", p, err))
				mu.Unlock()
			}
			return nil
		})
	}
	g.Wait()

	if len(failures) > 0 {
		sort.Strings(failures)
		for _, f := range failures {
			fmt.Fprintln(os.Stderr, f)
		}
		return fmt.Errorf("%d of %d files failed", len(failures), len(files))
	}
	return nil
}

// replaceExt swaps name's extension (if any) for ext.
func replaceExt(name, ext string) string {
	return strings.TrimSuffix(name, filepath.Ext(name)) + ext
}

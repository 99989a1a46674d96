// Command rawctl converts/extracts a raw file to/from DNG, analyzes a
// file's metadata and pixel checksums, and dumps the embedded camera
// and lens databases. It is a thin cobra.Command tree over the library
// packages — every real decision (format detection, sample decode, DNG
// assembly) happens in bytesource/decoders/dng/original, not here.
package main

import (
	"fmt"
	"os"

	"go.uber.org/zap"

	"github.com/rawkit/rawkit/internal/rlog"
)

// Exit codes: 0 success, 1 invalid input/decode error, 2 usage.
const (
	exitOK    = 0
	exitError = 1
	exitUsage = 2
)

func main() {
	os.Exit(run())
}

func run() int {
	root := newRootCommand()
	if err := root.Execute(); err != nil {
		if isUsageError(err) {
			return exitUsage
		}
		fmt.Fprintln(os.Stderr, "rawctl:", err)
		return exitError
	}
	return exitOK
}

// isUsageError reports whether err originated from cobra/pflag argument
// parsing (unknown flag, wrong arg count) rather than from a command's
// RunE body, so main can map it to exit code 2 instead of 1.
func isUsageError(err error) bool {
	_, ok := err.(*usageError)
	return ok
}

// usageError wraps a usage-level failure (bad flags/args) so run() can
// tell it apart from a runtime decode/convert failure.
type usageError struct{ err error }

func (u *usageError) Error() string { return u.err.Error() }
func (u *usageError) Unwrap() error { return u.err }

func newLogger(verbose bool) *rlog.Logger {
	if !verbose {
		return rlog.NewNop()
	}
	z, err := zap.NewDevelopment()
	if err != nil {
		return rlog.NewNop()
	}
	return rlog.New(z)
}

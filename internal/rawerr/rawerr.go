// Package rawerr defines the error taxonomy shared by every decoder and
// writer in the module: Unsupported, DecoderFailed, FormatMismatch,
// Overflow and DigestMismatch. Plain I/O errors are left as whatever the
// underlying os/io call returned, wrapped with decoder context.
package rawerr

import (
	"fmt"

	"github.com/pkg/errors"
)

// Unsupported reports a recognized container whose make/model/mode has no
// camera-database entry. Never fatal to the library, only to the call.
type Unsupported struct {
	Make, Model, Mode string
}

func (e *Unsupported) Error() string {
	if e.Mode != "" {
		return fmt.Sprintf("unsupported camera: %s %s (mode %s)", e.Make, e.Model, e.Mode)
	}
	return fmt.Sprintf("unsupported camera: %s %s", e.Make, e.Model)
}

// DecoderFailed wraps a malformed-input error with the name of the decoder
// or codec that detected it.
type DecoderFailed struct {
	Decoder string
	Cause   error
}

func (e *DecoderFailed) Error() string {
	return fmt.Sprintf("%s: decode failed: %v", e.Decoder, e.Cause)
}

func (e *DecoderFailed) Unwrap() error { return e.Cause }

// Fail builds a DecoderFailed, wrapping cause with github.com/pkg/errors so
// a stack trace and formatted context travel with it.
func Fail(decoder, context string, cause error) error {
	return &DecoderFailed{Decoder: decoder, Cause: errors.Wrapf(cause, "%s", context)}
}

// FormatMismatch reports that a magic/signature check failed at a specific
// container layer.
type FormatMismatch struct {
	Layer    string
	Expected string
	Got      string
}

func (e *FormatMismatch) Error() string {
	return fmt.Sprintf("%s: format mismatch, expected %s, got %s", e.Layer, e.Expected, e.Got)
}

// Overflow reports an arithmetic or buffer-size constraint violation.
type Overflow struct {
	Context string
}

func (e *Overflow) Error() string { return "overflow: " + e.Context }

// DigestMismatch reports that a stored MD5 digest did not match the bytes
// recovered from an embedded original-file blob.
type DigestMismatch struct {
	Stored, Computed [16]byte
}

func (e *DigestMismatch) Error() string {
	return fmt.Sprintf("digest mismatch: stored %x, computed %x", e.Stored, e.Computed)
}

// IsUnsupported reports whether err (or any error it wraps) is an
// Unsupported.
func IsUnsupported(err error) bool {
	var u *Unsupported
	return errors.As(err, &u)
}

// Package rlog gives decoders and the DNG writer a small step/done/warn
// vocabulary over a structured zap logger, replacing the ad-hoc
// fmt.Printf progress output a single-format tool can get away with.
package rlog

import (
	"time"

	"go.uber.org/zap"
)

// Logger times named steps and reports their outcome. The zero value logs
// nowhere (Step/Done/Warn/Info are no-ops) so library code can hold one
// unconditionally; install a real backend with New or NewNop for silence.
type Logger struct {
	z          *zap.Logger
	stepName   string
	stepParam  any
	stepStart  time.Time
	totalStart time.Time
}

// New wraps z. A nil z behaves like NewNop.
func New(z *zap.Logger) *Logger {
	if z == nil {
		z = zap.NewNop()
	}
	return &Logger{z: z, totalStart: time.Now()}
}

// NewNop returns a Logger that discards everything, for callers that don't
// want decoder progress output.
func NewNop() *Logger { return New(zap.NewNop()) }

// Step begins a named unit of work, e.g. "decompress" with the tile index.
func (l *Logger) Step(name string, param any) {
	if l == nil {
		return
	}
	l.stepName, l.stepParam = name, param
	l.stepStart = time.Now()
}

// Done closes the current step, logging its elapsed time at Info level.
func (l *Logger) Done(result string) {
	if l == nil || l.z == nil {
		return
	}
	elapsed := time.Since(l.stepStart)
	l.z.Info(l.stepName,
		zap.Any("param", l.stepParam),
		zap.String("result", result),
		zap.Duration("elapsed", elapsed),
	)
}

// Warn logs a non-fatal problem (e.g. a dropped metadata tag, a tolerated
// truncated IFD chain).
func (l *Logger) Warn(format string, args ...any) {
	if l == nil || l.z == nil {
		return
	}
	l.z.Sugar().Warnf(format, args...)
}

// Info logs progress that isn't tied to a timed step.
func (l *Logger) Info(format string, args ...any) {
	if l == nil || l.z == nil {
		return
	}
	l.z.Sugar().Infof(format, args...)
}

// Total logs the accumulated wall-clock time since the Logger was created.
func (l *Logger) Total() {
	if l == nil || l.z == nil {
		return
	}
	l.z.Info("total", zap.Duration("elapsed", time.Since(l.totalStart)))
}

// Package log is a minimal logging wrapper, carried as the output sink of
// pkgctx.Context. It deliberately does not wrap a third-party structured logger:
// the core never decides how output is rendered, only what is said.
package log

import (
	"fmt"
	"io"
)

// Logger is a thin wrapper around an io.Writer.
type Logger struct {
	io.Writer
}

// New returns a new logger which writes to w. A nil w discards all output.
func New(w io.Writer) *Logger {
	if w == nil {
		w = io.Discard
	}
	return &Logger{Writer: w}
}

// Logln logs a line.
func (l *Logger) Logln(args ...interface{}) {
	fmt.Fprintln(l, args...)
}

// Logf logs a formatted string, without a trailing newline.
func (l *Logger) Logf(f string, args ...interface{}) {
	fmt.Fprintf(l, f, args...)
}

// Warnf logs a formatted warning line, prefixed so it stands out from fatal
// output in the CLI that wraps this module.
func (l *Logger) Warnf(f string, args ...interface{}) {
	fmt.Fprintf(l, "warning: "+f+"\n", args...)
}

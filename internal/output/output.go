// Package output prints user-facing CLI messages. Icons and colors are
// dropped automatically when stdout is not a terminal so piped output
// stays parseable.
package output

import (
	"fmt"
	"io"
	"os"

	"github.com/mattn/go-isatty"
)

// Writer prints status lines to a destination.
type Writer struct {
	out   io.Writer
	err   io.Writer
	plain bool
}

// New builds a writer over stdout/stderr with TTY detection.
func New() *Writer {
	return &Writer{
		out:   os.Stdout,
		err:   os.Stderr,
		plain: !isatty.IsTerminal(os.Stdout.Fd()) && !isatty.IsCygwinTerminal(os.Stdout.Fd()),
	}
}

// NewPlain builds a writer without icons, for tests and piped use.
func NewPlain(out, err io.Writer) *Writer {
	return &Writer{out: out, err: err, plain: true}
}

func (w *Writer) icon(s string) string {
	if w.plain {
		return ""
	}
	return s + " "
}

// Status prints a neutral progress line.
func (w *Writer) Status(format string, args ...any) {
	fmt.Fprintf(w.out, w.icon("•")+format+"\n", args...)
}

// Success prints a completion line.
func (w *Writer) Success(format string, args ...any) {
	fmt.Fprintf(w.out, w.icon("✓")+format+"\n", args...)
}

// Warning prints a non-fatal problem to stderr.
func (w *Writer) Warning(format string, args ...any) {
	fmt.Fprintf(w.err, w.icon("!")+format+"\n", args...)
}

// Error prints a failure to stderr.
func (w *Writer) Error(format string, args ...any) {
	fmt.Fprintf(w.err, w.icon("✗")+format+"\n", args...)
}

// Result prints raw output with no decoration, for machine-readable
// payloads.
func (w *Writer) Result(format string, args ...any) {
	fmt.Fprintf(w.out, format+"\n", args...)
}

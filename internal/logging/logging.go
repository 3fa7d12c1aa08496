// Package logging configures the process-wide slog logger: JSON lines to
// a rotating file, mirrored to stderr. MCP servers speak JSON-RPC on
// stdout, so stdout is never written to.
package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
)

// Options configures Setup.
type Options struct {
	// Level is one of debug, info, warn, error. Empty means info.
	Level string

	// Dir is the log directory. Empty disables file logging.
	Dir string

	// Quiet drops the stderr mirror; logs go to the file only.
	Quiet bool

	// MaxSizeBytes rotates the log file when it grows past this size.
	// Zero means 10 MiB.
	MaxSizeBytes int64

	// MaxBackups is the number of rotated files kept. Zero means 3.
	MaxBackups int
}

// Setup installs the default slog logger and returns a close function for
// the underlying file writer.
func Setup(opts Options) (func() error, error) {
	level, err := parseLevel(opts.Level)
	if err != nil {
		return nil, err
	}

	var writers []io.Writer
	closeFn := func() error { return nil }

	if opts.Dir != "" {
		if err := os.MkdirAll(opts.Dir, 0o755); err != nil {
			return nil, fmt.Errorf("create log dir: %w", err)
		}
		rw, err := NewRotatingWriter(filepath.Join(opts.Dir, "retrieval.log"),
			opts.MaxSizeBytes, opts.MaxBackups)
		if err != nil {
			return nil, err
		}
		writers = append(writers, rw)
		closeFn = rw.Close
	}
	if !opts.Quiet {
		writers = append(writers, os.Stderr)
	}
	if len(writers) == 0 {
		writers = append(writers, io.Discard)
	}

	handler := slog.NewJSONHandler(io.MultiWriter(writers...), &slog.HandlerOptions{
		Level: level,
	})
	slog.SetDefault(slog.New(handler))
	return closeFn, nil
}

func parseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "info":
		return slog.LevelInfo, nil
	case "debug":
		return slog.LevelDebug, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return 0, fmt.Errorf("unknown log level %q", s)
	}
}

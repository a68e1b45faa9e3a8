package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"
	"gopkg.in/natefinch/lumberjack.v2"
)

const (
	LevelDebug = "debug"
	LevelInfo  = "info"
	LevelWarn  = "warn"
	LevelError = "error"

	FormatJSON = "json"
	FormatText = "text"

	BackendSlog    = "slog"
	BackendZerolog = "zerolog"
)

// Options selects the backend, encoding and sinks of the process logger.
type Options struct {
	Level   string
	Format  string
	Backend string

	// File enables a rotating log file next to stdout when non-empty.
	File           string
	FileMaxSizeMB  int
	FileMaxBackups int
	FileMaxAgeDays int

	// Writer replaces stdout, mostly for tests.
	Writer io.Writer
}

// New builds the process logger. The returned closer flushes and closes the
// file sink, if any; it is never nil.
func New(opts Options) (Logger, io.Closer, error) {
	out := opts.Writer
	if out == nil {
		out = os.Stdout
	}

	var closer io.Closer = nopCloser{}
	if opts.File != "" {
		fw, err := newFileWriter(opts)
		if err != nil {
			return nil, nil, err
		}
		out = io.MultiWriter(out, fw)
		closer = fw
	}

	switch opts.Backend {
	case "", BackendSlog:
		return NewSlogLogger(slog.New(newSlogHandler(out, opts.Format, opts.Level))), closer, nil
	case BackendZerolog:
		w := out
		if opts.Format == FormatText {
			w = zerolog.ConsoleWriter{Out: out, NoColor: true}
		}
		zl := zerolog.New(w).Level(zerologLevel(opts.Level)).With().Timestamp().Logger()
		return NewZerologLogger(zl), closer, nil
	default:
		_ = closer.Close()
		return nil, nil, fmt.Errorf("unknown log backend %q", opts.Backend)
	}
}

func newFileWriter(opts Options) (*lumberjack.Logger, error) {
	if err := os.MkdirAll(filepath.Dir(opts.File), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create log directory: %w", err)
	}
	return &lumberjack.Logger{
		Filename:   opts.File,
		MaxSize:    opts.FileMaxSizeMB,
		MaxBackups: opts.FileMaxBackups,
		MaxAge:     opts.FileMaxAgeDays,
		Compress:   true,
	}, nil
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

// Nop discards everything.
func Nop() Logger {
	return NewZerologLogger(zerolog.Nop())
}

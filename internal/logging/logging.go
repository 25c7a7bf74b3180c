// Package logging builds the process-wide zerolog logger.
package logging

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Options select level, output format and an optional rotating file.
type Options struct {
	Level  string // trace|debug|info|warn|error|off
	Format string // console|json
	File   string
	// Rotation limits for File. Zero uses the defaults below.
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
	// Stderr overrides the terminal sink, mainly for tests.
	Stderr io.Writer
}

const (
	defaultMaxSizeMB  = 100
	defaultMaxBackups = 5
	defaultMaxAgeDays = 28
)

// ParseLevel maps a config string to a zerolog level. Unknown values fall
// back to info.
func ParseLevel(s string) zerolog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "trace":
		return zerolog.TraceLevel
	case "debug":
		return zerolog.DebugLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error", "err":
		return zerolog.ErrorLevel
	case "off", "disabled":
		return zerolog.Disabled
	default:
		return zerolog.InfoLevel
	}
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

// New returns a logger and a closer for the log file (a no-op without one).
// With File set, records go to both the terminal and the rotated file; the
// file always receives JSON.
func New(opts Options) (zerolog.Logger, io.Closer, error) {
	stderr := opts.Stderr
	if stderr == nil {
		stderr = os.Stderr
	}
	var term io.Writer = stderr
	switch strings.ToLower(opts.Format) {
	case "", "console":
		term = zerolog.ConsoleWriter{Out: stderr, TimeFormat: time.RFC3339}
	case "json":
	default:
		return zerolog.Nop(), nopCloser{}, fmt.Errorf("unknown log format %q", opts.Format)
	}

	var (
		out    io.Writer = term
		closer io.Closer = nopCloser{}
	)
	if opts.File != "" {
		lj := &lumberjack.Logger{
			Filename:   opts.File,
			MaxSize:    orDefault(opts.MaxSizeMB, defaultMaxSizeMB),
			MaxBackups: orDefault(opts.MaxBackups, defaultMaxBackups),
			MaxAge:     orDefault(opts.MaxAgeDays, defaultMaxAgeDays),
			Compress:   true,
		}
		out = zerolog.MultiLevelWriter(term, lj)
		closer = lj
	}
	l := zerolog.New(out).Level(ParseLevel(opts.Level)).With().Timestamp().Logger()
	return l, closer, nil
}

func orDefault(v, def int) int {
	if v > 0 {
		return v
	}
	return def
}

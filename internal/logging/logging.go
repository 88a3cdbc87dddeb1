// Package logging builds the zerolog logger shared by the serialhost
// commands and the port manager.
package logging

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/mattn/go-isatty"
	"github.com/rs/zerolog"
	"go.uber.org/atomic"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Levels accepted by ParseLevel, quietest first
var Levels = []string{"none", "error", "warn", "info", "debug"}

type Options struct {
	Level string
	// File enables rotated logging to this path instead of stderr
	File       string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
	Compress   bool
	// Console forces human-readable output; by default it is used when
	// the output is a terminal
	Console bool
	// Threshold, when set, receives Level and keeps filtering the logger's
	// output, so the level can change after New returns
	Threshold *Level
}

// Level is a log threshold that can be changed while loggers built on it
// are in use. The zero value passes everything from debug up.
type Level struct {
	v atomic.Int32
}

// Set changes the threshold to the named level
func (l *Level) Set(name string) error {
	level, err := ParseLevel(name)
	if err != nil {
		return err
	}
	l.v.Store(int32(level))
	return nil
}

func (l *Level) Get() zerolog.Level {
	return zerolog.Level(l.v.Load())
}

func (l *Level) enabled(level zerolog.Level) bool {
	threshold := l.Get()
	return threshold != zerolog.Disabled && level >= threshold
}

// levelFilter drops entries below its threshold
type levelFilter struct {
	out   zerolog.LevelWriter
	level *Level
}

func (f levelFilter) Write(p []byte) (int, error) {
	return f.out.Write(p)
}

func (f levelFilter) WriteLevel(level zerolog.Level, p []byte) (int, error) {
	if !f.level.enabled(level) {
		return len(p), nil
	}
	return f.out.WriteLevel(level, p)
}

// ParseLevel maps a level name to a zerolog level. "none" disables logging.
func ParseLevel(name string) (zerolog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "none", "off":
		return zerolog.Disabled, nil
	case "error":
		return zerolog.ErrorLevel, nil
	case "warn", "warning":
		return zerolog.WarnLevel, nil
	case "", "info":
		return zerolog.InfoLevel, nil
	case "debug":
		return zerolog.DebugLevel, nil
	}
	return zerolog.NoLevel, fmt.Errorf("unknown log level %q (want one of %s)", name, strings.Join(Levels, ", "))
}

// New returns a logger writing to opts.File or stderr. The returned closer
// releases the log file and is a no-op for stderr.
func New(opts Options) (zerolog.Logger, io.Closer, error) {
	level, err := ParseLevel(opts.Level)
	if err != nil {
		return zerolog.Nop(), nopCloser{}, err
	}

	var (
		out    io.Writer
		closer io.Closer = nopCloser{}
	)
	if opts.File != "" {
		file := &lumberjack.Logger{
			Filename:   opts.File,
			MaxSize:    opts.MaxSizeMB,
			MaxBackups: opts.MaxBackups,
			MaxAge:     opts.MaxAgeDays,
			Compress:   opts.Compress,
		}
		out, closer = file, file
	} else {
		out = os.Stderr
		if opts.Console || isTerminal(os.Stderr) {
			out = zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.TimeOnly}
		}
	}

	if t := opts.Threshold; t != nil {
		t.v.Store(int32(level))
		out = levelFilter{out: zerolog.LevelWriterAdapter{Writer: out}, level: t}
		level = zerolog.DebugLevel
	}

	return zerolog.New(out).Level(level).With().Timestamp().Logger(), closer, nil
}

// isTerminal reports whether f is attached to a terminal
func isTerminal(f *os.File) bool {
	fd := f.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}

// IsTerminal reports whether stdout is a terminal
func IsTerminal() bool {
	return isTerminal(os.Stdout)
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

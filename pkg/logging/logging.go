// Package logging provides structured logging for rsort using zerolog.
package logging

import (
	"io"
	"os"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"gopkg.in/natefinch/lumberjack.v2"
)

var (
	logger *zerolog.Logger
	pretty atomic.Bool
)

func init() {
	// Default to JSON logging at info level
	l := zerolog.New(os.Stderr).With().Timestamp().Logger()
	logger = &l
	zerolog.SetGlobalLevel(zerolog.InfoLevel)
}

// Options configures the process logger.
type Options struct {
	// Debug lowers the level to Debug.
	Debug bool

	// Human switches stderr output to the console writer and enables the
	// human-readable "_h" companion fields on completion events.
	Human bool

	// File, if set, additionally writes JSON logs to a rotating file.
	File string

	// FileMaxSizeMB is the rotation size of File. Default: 100.
	FileMaxSizeMB int

	// FileMaxBackups is how many rotated files to keep. Default: 3.
	FileMaxBackups int
}

// Init configures the global logger. The returned closer releases the log
// file, if any, and is safe to call when no file was configured.
func Init(opts Options) io.Closer {
	level := zerolog.InfoLevel
	if opts.Debug {
		level = zerolog.DebugLevel
	}
	zerolog.SetGlobalLevel(level)
	pretty.Store(opts.Human)

	var stderr io.Writer = os.Stderr
	if opts.Human {
		stderr = zerolog.ConsoleWriter{
			Out:        os.Stderr,
			TimeFormat: time.RFC3339,
		}
	}

	var closer io.Closer = nopCloser{}
	output := zerolog.LevelWriter(zerolog.LevelWriterAdapter{Writer: stderr})
	if opts.File != "" {
		rotating := &lumberjack.Logger{
			Filename:   opts.File,
			MaxSize:    orDefault(opts.FileMaxSizeMB, 100),
			MaxBackups: orDefault(opts.FileMaxBackups, 3),
		}
		output = zerolog.MultiLevelWriter(stderr, rotating)
		closer = rotating
	}

	l := zerolog.New(output).With().Timestamp().Logger()
	logger = &l
	return closer
}

// L returns the base logger.
func L() *zerolog.Logger {
	return logger
}

// WithPhase returns a logger with the phase field set.
func WithPhase(phase string) zerolog.Logger {
	return logger.With().Str("phase", phase).Logger()
}

// SetLogger allows overriding the global logger (useful for testing).
func SetLogger(l zerolog.Logger) {
	logger = &l
}

// IsPrettyMode reports whether human-readable companion fields are emitted.
func IsPrettyMode() bool {
	return pretty.Load()
}

// SetPrettyMode toggles human-readable companion fields.
func SetPrettyMode(on bool) {
	pretty.Store(on)
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

func orDefault(v, def int) int {
	if v <= 0 {
		return def
	}
	return v
}

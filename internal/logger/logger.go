// Package logger wraps zerolog so every component of portfind logs through
// one process-wide sink that the CLI can redirect or silence at once.
package logger

import (
	"io"
	"os"

	"github.com/rs/zerolog"
)

// Logger our internal "singleton" wrapper around zerolog allowing us
// to set all loggers to log to file or console all at once
type Logger struct {
	zl *zerolog.Logger
}

// unexported "singleton" logger
var logger Logger

// init sets the internal "singleton" logger
func init() {
	zl := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).
		With().
		Timestamp().
		Logger()

	logger = Logger{
		zl: &zl,
	}
}

// New returns the internal "singleton" logger
func New() Logger {
	return logger
}

// NewWithWriter returns a standalone JSON logger writing to w. It does not
// follow GlobalSetLogFile and is meant for capturing output in tests.
func NewWithWriter(w io.Writer) Logger {
	zl := zerolog.New(w).With().Timestamp().Logger()
	return Logger{zl: &zl}
}

// Nop returns a logger that discards everything.
func Nop() Logger {
	zl := zerolog.Nop()
	return Logger{zl: &zl}
}

// GlobalSetLogFile set all loggers to log to file
func GlobalSetLogFile(f *os.File) {
	newZl := logger.zl.Output(f)

	*logger.zl = newZl
}

// GlobalSetConsole sends all loggers back to the console writer on stderr,
// undoing GlobalSetLogFile.
func GlobalSetConsole() {
	newZl := logger.zl.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	*logger.zl = newZl
}

// GlobalSetLevel sets the minimum level for every logger. silent wins over
// verbose.
func GlobalSetLevel(verbose, silent bool) {
	zerolog.SetGlobalLevel(zerolog.InfoLevel)

	if verbose {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	}

	if silent {
		zerolog.SetGlobalLevel(zerolog.Disabled)
	}
}

// Info wrapper around zerolog Info
func (l Logger) Info() *zerolog.Event {
	return l.zl.Info()
}

// Debug wrapper around zerolog Debug
func (l Logger) Debug() *zerolog.Event {
	return l.zl.Debug()
}

// Warn wrapper around zerolog Warn
func (l Logger) Warn() *zerolog.Event {
	return l.zl.Warn()
}

// Error wrapper around zerolog Error
func (l Logger) Error() *zerolog.Event {
	return l.zl.Error()
}

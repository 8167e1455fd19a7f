// Package logging provides the engine's ambient diagnostic logger.
//
// The engine never lets a background failure (e.g. a deferred stats flush)
// propagate into a foreground statement; such failures are logged instead
// using the plain stdlib "log" idiom rather than a structured logging
// library, since the engine's diagnostic output is lifecycle/failure
// messages rather than machine-parsed fields.
package logging

import (
	"log"
	"os"
)

// Logger is a leveled wrapper around *log.Logger.
type Logger struct {
	std *log.Logger
}

// Default is the package-level logger used when callers don't construct
// their own; tests may replace it with a logger writing to a file.
var Default = New(os.Stderr, "quereus: ")

// New builds a Logger writing to w with the given prefix.
func New(w *os.File, prefix string) *Logger {
	return &Logger{std: log.New(w, prefix, log.LstdFlags)}
}

func (l *Logger) Debugf(format string, args ...any) { l.std.Printf("DEBUG "+format, args...) }
func (l *Logger) Warnf(format string, args ...any)  { l.std.Printf("WARN "+format, args...) }
func (l *Logger) Errorf(format string, args ...any) { l.std.Printf("ERROR "+format, args...) }
func (l *Logger) Infof(format string, args ...any)  { l.std.Printf("INFO "+format, args...) }

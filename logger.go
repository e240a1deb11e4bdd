package rssm

import (
	"io"
	"os"

	"github.com/rs/zerolog"
)

// Logger records advisory machine events. Implementations must tolerate nil
// field maps.
type Logger interface {
	Info(msg string, fields ...map[string]any)
	Warn(msg string, fields ...map[string]any)
	Error(msg string, fields ...map[string]any)
}

type noopLogger struct{}

func (noopLogger) Info(string, ...map[string]any)  {}
func (noopLogger) Warn(string, ...map[string]any)  {}
func (noopLogger) Error(string, ...map[string]any) {}

// NopLogger returns a logger that discards every event.
func NopLogger() Logger {
	return noopLogger{}
}

type consoleLogger struct {
	log zerolog.Logger
}

// NewConsoleLogger returns a zerolog-backed console logger writing to w.
// A nil writer falls back to stderr.
func NewConsoleLogger(w io.Writer) Logger {
	if w == nil {
		w = os.Stderr
	}
	out := zerolog.ConsoleWriter{Out: w}
	return &consoleLogger{
		log: zerolog.New(out).With().Timestamp().Logger(),
	}
}

func (l *consoleLogger) Info(msg string, fields ...map[string]any) {
	l.emit(l.log.Info(), msg, fields)
}

func (l *consoleLogger) Warn(msg string, fields ...map[string]any) {
	l.emit(l.log.Warn(), msg, fields)
}

func (l *consoleLogger) Error(msg string, fields ...map[string]any) {
	l.emit(l.log.Error(), msg, fields)
}

func (l *consoleLogger) emit(event *zerolog.Event, msg string, fields []map[string]any) {
	for _, set := range fields {
		for key, value := range set {
			event = event.Interface(key, value)
		}
	}
	event.Msg(msg)
}

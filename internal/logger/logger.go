package logger

import (
	"fmt"
	"log/slog"
)

// Logger is a thin wrapper around slog that carries the component and
// function names as structured fields. The Err/Error variants return the
// error they log so call sites can `return log.Err(...)` directly.
type Logger struct {
	slog *slog.Logger
}

func New(name string) Logger {
	return Logger{slog: slog.Default().With("component", name)}
}

func (l Logger) Function(name string) Logger {
	return Logger{slog: l.slog.With("function", name)}
}

func (l Logger) File(name string) Logger {
	return Logger{slog: l.slog.With("file", name)}
}

func (l Logger) With(args ...any) Logger {
	return Logger{slog: l.slog.With(args...)}
}

func (l Logger) Debug(msg string, args ...any) {
	l.slog.Debug(msg, args...)
}

func (l Logger) Info(msg string, args ...any) {
	l.slog.Info(msg, args...)
}

func (l Logger) Warn(msg string, args ...any) {
	l.slog.Warn(msg, args...)
}

// Er logs an error without returning it, for call sites that handle the
// failure themselves.
func (l Logger) Er(msg string, err error, args ...any) {
	l.slog.Error(msg, append([]any{"error", err}, args...)...)
}

// ErMsg logs an error message without an underlying error value.
func (l Logger) ErMsg(msg string, args ...any) {
	l.slog.Error(msg, args...)
}

// Err logs and returns the error wrapped with the message.
func (l Logger) Err(msg string, err error, args ...any) error {
	l.slog.Error(msg, append([]any{"error", err}, args...)...)
	return fmt.Errorf("%s: %w", msg, err)
}

// Error logs and returns a new error built from the message.
func (l Logger) Error(msg string, args ...any) error {
	l.slog.Error(msg, args...)
	return fmt.Errorf("%s", msg)
}

// ErrMsg is an alias kept for call sites that read better with it.
func (l Logger) ErrMsg(msg string, args ...any) error {
	return l.Error(msg, args...)
}

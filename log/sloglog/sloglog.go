// Package sloglog adapts a *slog.Logger to cache.Logger.
package sloglog

import (
	"context"
	"log/slog"

	"github.com/IvanBrykalov/memorycache/cache"
)

// Logger implements cache.Logger on top of log/slog.
type Logger struct{ L *slog.Logger }

// New wraps l; a nil l uses slog.Default().
func New(l *slog.Logger) Logger {
	if l == nil {
		l = slog.Default()
	}
	return Logger{L: l}
}

func (l Logger) log(level slog.Level, msg string, f cache.Fields) {
	attrs := make([]slog.Attr, 0, len(f))
	for k, v := range f {
		attrs = append(attrs, slog.Any(k, v))
	}
	l.L.LogAttrs(context.Background(), level, msg, attrs...)
}

func (l Logger) Debug(msg string, f cache.Fields) { l.log(slog.LevelDebug, msg, f) }
func (l Logger) Info(msg string, f cache.Fields)  { l.log(slog.LevelInfo, msg, f) }
func (l Logger) Warn(msg string, f cache.Fields)  { l.log(slog.LevelWarn, msg, f) }
func (l Logger) Error(msg string, f cache.Fields) { l.log(slog.LevelError, msg, f) }

var _ cache.Logger = Logger{}

// Package zaplog adapts a *zap.Logger to cache.Logger.
package zaplog

import (
	"github.com/IvanBrykalov/memorycache/cache"
	"go.uber.org/zap"
)

// Logger implements cache.Logger on top of zap.
type Logger struct{ L *zap.Logger }

// New wraps l; a nil l yields a no-op zap logger.
func New(l *zap.Logger) Logger {
	if l == nil {
		l = zap.NewNop()
	}
	return Logger{L: l}
}

func fields(f cache.Fields) []zap.Field {
	if len(f) == 0 {
		return nil
	}
	out := make([]zap.Field, 0, len(f))
	for k, v := range f {
		out = append(out, zap.Any(k, v))
	}
	return out
}

func (l Logger) Debug(msg string, f cache.Fields) { l.L.Debug(msg, fields(f)...) }
func (l Logger) Info(msg string, f cache.Fields)  { l.L.Info(msg, fields(f)...) }
func (l Logger) Warn(msg string, f cache.Fields)  { l.L.Warn(msg, fields(f)...) }
func (l Logger) Error(msg string, f cache.Fields) { l.L.Error(msg, fields(f)...) }

var _ cache.Logger = Logger{}

// Package logruslog adapts a logrus.FieldLogger to cache.Logger.
package logruslog

import (
	"github.com/IvanBrykalov/memorycache/cache"
	"github.com/sirupsen/logrus"
)

// Logger implements cache.Logger on top of logrus.
type Logger struct{ E logrus.FieldLogger }

// New wraps l; a nil l uses logrus.StandardLogger().
func New(l logrus.FieldLogger) Logger {
	if l == nil {
		l = logrus.StandardLogger()
	}
	return Logger{E: l}
}

func (l Logger) Debug(msg string, f cache.Fields) { l.E.WithFields(logrus.Fields(f)).Debug(msg) }
func (l Logger) Info(msg string, f cache.Fields)  { l.E.WithFields(logrus.Fields(f)).Info(msg) }
func (l Logger) Warn(msg string, f cache.Fields)  { l.E.WithFields(logrus.Fields(f)).Warn(msg) }
func (l Logger) Error(msg string, f cache.Fields) { l.E.WithFields(logrus.Fields(f)).Error(msg) }

var _ cache.Logger = Logger{}

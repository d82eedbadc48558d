// Package loggerlogrus backs commontypes.Logger with logrus, the teacher's
// structured logging library.
package loggerlogrus

import (
	"github.com/sirupsen/logrus"

	"github.com/sovrin-labs/bft-core/commontypes"
)

// Logger adapts a *logrus.Entry to commontypes.Logger.
type Logger struct {
	entry *logrus.Entry
}

// New wraps entry. Pass logrus.NewEntry(logrus.StandardLogger()) to log to
// the default logrus output, or a entry carrying permanent fields (node
// name, component) for a scoped logger.
func New(entry *logrus.Entry) *Logger {
	return &Logger{entry: entry}
}

func (l *Logger) with(fields commontypes.LogFields) *logrus.Entry {
	if len(fields) == 0 {
		return l.entry
	}
	return l.entry.WithFields(logrus.Fields(fields))
}

func (l *Logger) Trace(msg string, fields commontypes.LogFields) { l.with(fields).Trace(msg) }
func (l *Logger) Debug(msg string, fields commontypes.LogFields) { l.with(fields).Debug(msg) }
func (l *Logger) Info(msg string, fields commontypes.LogFields)  { l.with(fields).Info(msg) }
func (l *Logger) Warn(msg string, fields commontypes.LogFields)  { l.with(fields).Warn(msg) }
func (l *Logger) Error(msg string, fields commontypes.LogFields) { l.with(fields).Error(msg) }

// Package logging defines the logger used throughout contractflow and
// adapters from slog, Watermill and entry-style loggers such as logrus.
package logging

import (
	"log/slog"

	"github.com/ThreeDotsLabs/watermill"
)

// LogFields are structured key/value pairs attached to a log line.
type LogFields map[string]any

// ServiceLogger is what servers, adapters and clients log through. Its
// shape follows watermill.LoggerAdapter so either can wrap the other.
type ServiceLogger interface {
	With(fields LogFields) ServiceLogger
	Debug(msg string, fields LogFields)
	Info(msg string, fields LogFields)
	Error(msg string, err error, fields LogFields)
	Trace(msg string, fields LogFields)
}

// Watermill logs its trace level below slog's debug; fold it into debug so
// slog handlers set to debug show it.
var slogLevels = map[slog.Level]slog.Level{
	slog.LevelDebug - 4: slog.LevelDebug,
}

// NewSlogServiceLogger logs through log.
func NewSlogServiceLogger(log *slog.Logger) ServiceLogger {
	if log == nil {
		panic("contractflow: slog logger cannot be nil")
	}
	return NewWatermillServiceLogger(watermill.NewSlogLoggerWithLevelMapping(log, slogLevels))
}

// NewWatermillServiceLogger logs through a Watermill logger.
func NewWatermillServiceLogger(logger watermill.LoggerAdapter) ServiceLogger {
	if logger == nil {
		panic("contractflow: watermill logger cannot be nil")
	}
	return fromWatermill{logger}
}

// Nop discards everything.
func Nop() ServiceLogger { return fromWatermill{watermill.NopLogger{}} }

// OrNop returns log, or Nop when log is nil.
func OrNop(log ServiceLogger) ServiceLogger {
	if log == nil {
		return Nop()
	}
	return log
}

// NewWatermillAdapter exposes log to Watermill publishers, subscribers and
// middleware.
func NewWatermillAdapter(log ServiceLogger) watermill.LoggerAdapter {
	if log == nil {
		panic("contractflow: ServiceLogger cannot be nil")
	}
	if w, ok := log.(fromWatermill); ok {
		return w.inner
	}
	return toWatermill{log}
}

type fromWatermill struct{ inner watermill.LoggerAdapter }

func (w fromWatermill) With(fields LogFields) ServiceLogger {
	return fromWatermill{w.inner.With(watermill.LogFields(fields))}
}
func (w fromWatermill) Debug(msg string, fields LogFields) { w.inner.Debug(msg, watermill.LogFields(fields)) }
func (w fromWatermill) Info(msg string, fields LogFields)  { w.inner.Info(msg, watermill.LogFields(fields)) }
func (w fromWatermill) Trace(msg string, fields LogFields) { w.inner.Trace(msg, watermill.LogFields(fields)) }
func (w fromWatermill) Error(msg string, err error, fields LogFields) {
	w.inner.Error(msg, err, watermill.LogFields(fields))
}

type toWatermill struct{ log ServiceLogger }

func (a toWatermill) With(fields watermill.LogFields) watermill.LoggerAdapter {
	return toWatermill{a.log.With(LogFields(fields))}
}
func (a toWatermill) Debug(msg string, fields watermill.LogFields) { a.log.Debug(msg, LogFields(fields)) }
func (a toWatermill) Info(msg string, fields watermill.LogFields)  { a.log.Info(msg, LogFields(fields)) }
func (a toWatermill) Trace(msg string, fields watermill.LogFields) { a.log.Trace(msg, LogFields(fields)) }
func (a toWatermill) Error(msg string, err error, fields watermill.LogFields) {
	a.log.Error(msg, err, LogFields(fields))
}

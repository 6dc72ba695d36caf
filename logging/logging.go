// Package logging contains the structured logger used by the sensing engine and its drivers.
package logging

import (
	"testing"

	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

// GlobalLevel at DEBUG turns on debug output of every logger regardless of its own level. The
// log section of the config drives it.
var GlobalLevel = NewAtomicLevelAt(INFO)

// NewLogger returns a registered logger writing Info+ lines to stdout in UTC.
func NewLogger(name string) Logger {
	logger := newImpl(name, INFO, true, NewStdoutAppender())
	RegisterLogger(name, logger)
	return logger
}

// NewBlankLogger returns an unregistered Debug+ logger with no appenders.
func NewBlankLogger(name string) Logger {
	return newImpl(name, DEBUG, true)
}

// NewTestLogger returns a Debug+ logger writing to tb in local time.
func NewTestLogger(tb testing.TB) Logger {
	logger, _ := NewObservedTestLogger(tb)
	return logger
}

// NewObservedTestLogger is NewTestLogger that also records every entry for assertions.
func NewObservedTestLogger(tb testing.TB) (Logger, *observer.ObservedLogs) {
	core, observed := observer.New(zapcore.DebugLevel)
	return newImpl("", DEBUG, false, NewTestAppender(tb), core), observed
}

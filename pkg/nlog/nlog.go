// Package nlog is the leveled diagnostic sink the core calls into (spec.md
// §1 treats logging as an external collaborator). It wraps
// github.com/sirupsen/logrus, the logging library the pack's
// general-purpose toolkit (nabbar-golib/logger) also builds on, behind a
// small interface so logrus never leaks into core package signatures.
package nlog

import (
	"os"

	"github.com/sirupsen/logrus"
)

// Logger is the minimal leveled-logging surface the core depends on.
type Logger interface {
	Debugf(format string, args ...interface{})
	Infof(format string, args ...interface{})
	Warnf(format string, args ...interface{})
	Errorf(format string, args ...interface{})
}

// logrusLogger adapts *logrus.Logger to Logger.
type logrusLogger struct {
	*logrus.Logger
}

// New returns a Logger backed by logrus, writing text-formatted entries
// with full timestamps to stderr at the given level.
func New(level logrus.Level) Logger {
	l := logrus.New()
	l.SetOutput(os.Stderr)
	l.SetLevel(level)
	l.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	return &logrusLogger{l}
}

// NopLogger discards everything; used as the zero-value default so a Conn
// constructed without an explicit logger never nil-panics.
type NopLogger struct{}

func (NopLogger) Debugf(string, ...interface{}) {}
func (NopLogger) Infof(string, ...interface{})  {}
func (NopLogger) Warnf(string, ...interface{})  {}
func (NopLogger) Errorf(string, ...interface{}) {}

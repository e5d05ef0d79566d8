package core

import "github.com/sirupsen/logrus"

// LogrusLogger adapts a *logrus.Logger (or any logrus.FieldLogger) to the
// engine's Logger interface, matching the logging idiom used across the
// rest of this codebase's ambient stack.
type LogrusLogger struct {
	Entry logrus.FieldLogger
}

// NewLogrusLogger wraps l, or logrus's standard logger if l is nil.
func NewLogrusLogger(l *logrus.Logger) LogrusLogger {
	if l == nil {
		l = logrus.StandardLogger()
	}
	return LogrusLogger{Entry: l}
}

func (l LogrusLogger) Debugf(format string, args ...interface{}) { l.Entry.Debugf(format, args...) }
func (l LogrusLogger) Infof(format string, args ...interface{})  { l.Entry.Infof(format, args...) }
func (l LogrusLogger) Warnf(format string, args ...interface{})  { l.Entry.Warnf(format, args...) }
func (l LogrusLogger) Errorf(format string, args ...interface{}) { l.Entry.Errorf(format, args...) }

var _ Logger = LogrusLogger{}

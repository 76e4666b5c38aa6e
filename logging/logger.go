package logging

import (
	"github.com/sirupsen/logrus"
)

// DefaultLog provides a default implementation of the Logger interface,
// logging to the logrus standard logger.
type DefaultLog struct{}

// Logger instances provide custom logging.
type Logger interface {

	// Log with level ERROR
	Error(...any)

	// Log formatted messages with level ERROR
	Errorf(string, ...any)

	// Log with level WARN
	Warn(...any)

	// Log formatted messages with level WARN
	Warnf(string, ...any)

	// Log with level INFO
	Info(...any)

	// Log formatted messages with level INFO
	Infof(string, ...any)

	// Log with level DEBUG
	Debug(...any)

	// Log formatted messages with level DEBUG
	Debugf(string, ...any)
}

var _ Logger = DefaultLog{}

func (DefaultLog) Error(a ...any)            { logrus.Error(a...) }
func (DefaultLog) Errorf(f string, a ...any) { logrus.Errorf(f, a...) }
func (DefaultLog) Warn(a ...any)             { logrus.Warn(a...) }
func (DefaultLog) Warnf(f string, a ...any)  { logrus.Warnf(f, a...) }
func (DefaultLog) Info(a ...any)             { logrus.Info(a...) }
func (DefaultLog) Infof(f string, a ...any)  { logrus.Infof(f, a...) }
func (DefaultLog) Debug(a ...any)            { logrus.Debug(a...) }
func (DefaultLog) Debugf(f string, a ...any) { logrus.Debugf(f, a...) }

package events

import (
	"github.com/ThreeDotsLabs/watermill"

	"github.com/courtdata/fastbreak/pkg/logger"
)

// watermillLogger adapts the service logger to watermill's interface so
// router internals log through the same sink as everything else.
type watermillLogger struct {
	log *logger.Logger
}

// NewWatermillLogger wraps log for use by watermill components.
func NewWatermillLogger(log *logger.Logger) watermill.LoggerAdapter {
	return &watermillLogger{log: log}
}

func (l *watermillLogger) Error(msg string, err error, fields watermill.LogFields) {
	l.log.WithError(err).WithFields(fields).Error(msg)
}

func (l *watermillLogger) Info(msg string, fields watermill.LogFields) {
	l.log.WithFields(fields).Info(msg)
}

func (l *watermillLogger) Debug(msg string, fields watermill.LogFields) {
	l.log.WithFields(fields).Debug(msg)
}

func (l *watermillLogger) Trace(msg string, fields watermill.LogFields) {
	l.log.WithFields(fields).Debug(msg)
}

func (l *watermillLogger) With(fields watermill.LogFields) watermill.LoggerAdapter {
	return &watermillLogger{log: l.log.WithFields(fields)}
}

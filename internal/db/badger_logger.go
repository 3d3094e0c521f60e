package db

import (
	"strings"

	"github.com/supby/nodeconf/internal/logger"
)

// badgerLogger routes badger output through the service logger.
// Badger terminates its lines with a newline, the service logger adds its own.
type badgerLogger struct {
	logger logger.Logger
}

func (l *badgerLogger) Errorf(format string, args ...interface{}) {
	l.logger.Error("badger: "+strings.TrimSuffix(format, "\n"), args...)
}

func (l *badgerLogger) Warningf(format string, args ...interface{}) {
	l.logger.Warn("badger: "+strings.TrimSuffix(format, "\n"), args...)
}

func (l *badgerLogger) Infof(format string, args ...interface{}) {
	l.logger.Debug("badger: "+strings.TrimSuffix(format, "\n"), args...)
}

func (l *badgerLogger) Debugf(format string, args ...interface{}) {
	l.logger.Debug("badger: "+strings.TrimSuffix(format, "\n"), args...)
}

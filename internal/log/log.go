// Package log wraps logrus behind a small Logger interface so that the rest
// of the codebase never imports logrus directly.
package log

import "sync"

type Logger interface {
	Debug(args ...interface{})
	Debugf(format string, args ...interface{})

	Info(args ...interface{})
	Infof(format string, args ...interface{})

	Warn(args ...interface{})
	Warnf(format string, args ...interface{})

	Error(args ...interface{})
	Errorf(format string, args ...interface{})

	WithField(field string, value interface{}) Logger
	WithFields(fields map[string]interface{}) Logger
	WithError(err error) Logger

	IsDebugEnabled() bool
}

var (
	mu     sync.Mutex
	logger Logger = newAdapter(defaultConfig())
)

// GetLogger returns the process-wide logger.
func GetLogger() Logger {
	mu.Lock()
	defer mu.Unlock()
	return logger
}

// Init replaces the process-wide logger according to cfg. Safe to call more
// than once; the last call wins (the extcap entry point re-inits with a
// file-only configuration after flag parsing).
func Init(cfg *Config) {
	l := newAdapter(cfg)
	mu.Lock()
	logger = l
	mu.Unlock()
}

package log

import (
	"sync"
)

type Logger interface {
	Print(args ...interface{})
	Printf(format string, args ...interface{})

	Trace(args ...interface{})
	Tracef(format string, args ...interface{})

	Debug(args ...interface{})
	Debugf(format string, args ...interface{})

	Info(args ...interface{})
	Infof(format string, args ...interface{})

	Warn(args ...interface{})
	Warnf(format string, args ...interface{})

	Error(args ...interface{})
	Errorf(format string, args ...interface{})

	Fatal(args ...interface{})
	Fatalf(format string, args ...interface{})

	WithField(field string, value interface{}) Logger
	WithFields(fields map[string]interface{}) Logger
	WithError(err error) Logger

	IsTraceEnabled() bool
	IsDebugEnabled() bool
	IsInfoEnabled() bool
}

var (
	mu     sync.Mutex
	logger Logger
)

// GetLogger returns the process-wide logger. When Init has not run yet a
// console logger at info level is installed, so early callers and tests
// never see a nil logger.
func GetLogger() Logger {
	mu.Lock()
	defer mu.Unlock()
	if logger == nil {
		if err := initByConfig(DefaultConfig()); err != nil {
			panic(err)
		}
	}
	return logger
}

// Init configures the process-wide logger. Later calls replace the
// previous configuration.
func Init(cfg *LoggerConfig) error {
	mu.Lock()
	defer mu.Unlock()
	return initByConfig(cfg)
}

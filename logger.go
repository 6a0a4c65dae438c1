package nativetcl

import (
	"sync"

	"go.uber.org/zap"

	"github.com/feather-lang/nativetcl/foreign"
)

var (
	logger     *zap.Logger
	loggerOnce sync.Once
)

// Logger returns the package's logger instance.
// It uses a no-op logger by default.
func Logger() *zap.Logger {
	loggerOnce.Do(func() {
		if logger == nil {
			logger = zap.NewNop()
		}
	})
	return logger
}

// SetLogger configures the package's logger.
// This must be called before any interpreter or object is created.
func SetLogger(l *zap.Logger) {
	logger = l
}

func zapStatus(s foreign.Status) zap.Field {
	return zap.Int32("status", int32(s))
}

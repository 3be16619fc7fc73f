// Package log provides the process-wide structured logger used by every
// component of the driver and executor.
package log

import (
	"sync"

	plog "github.com/pingcap/log"
	"go.uber.org/zap"
)

var (
	globalLogger = zap.NewNop()
	globalMu     sync.RWMutex
)

// InitLogger builds and installs the process-wide zap logger from the given
// level and file path. An empty path logs to stderr.
func InitLogger(level, file string) error {
	cfg := &plog.Config{
		Level: level,
		File: plog.FileLogConfig{
			Filename: file,
		},
	}
	logger, props, err := plog.InitLogger(cfg)
	if err != nil {
		return err
	}
	plog.ReplaceGlobals(logger, props)

	globalMu.Lock()
	globalLogger = logger
	globalMu.Unlock()
	return nil
}

// L returns the current global logger.
func L() *zap.Logger {
	globalMu.RLock()
	defer globalMu.RUnlock()
	return globalLogger
}

// With returns a child logger carrying the given fields.
func With(fields ...zap.Field) *zap.Logger {
	return L().With(fields...)
}

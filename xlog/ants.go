package xlog

import (
	"go.uber.org/zap/zapcore"
)

// AntsXLogger implements ants.Logger. Worker panics recovered by the
// pool are reported at error level.
type AntsXLogger struct {
	logger XLogger
}

func (l *AntsXLogger) Printf(format string, args ...any) {
	if l == nil || l.logger == nil {
		return
	}
	l.logger.Logf(zapcore.ErrorLevel, format, args...)
}

func NewAntsXLogger(logger XLogger) *AntsXLogger {
	return &AntsXLogger{
		logger: namedChild(logger, "Ants"),
	}
}

package scheduler

import (
	"log/slog"

	"github.com/robfig/cron/v3"
)

// cronLogger adapts slog to cron.Logger.
type cronLogger struct {
	logger *slog.Logger
}

// NewCronLogger returns a cron.Logger writing to logger. Cron's routine info messages
// (schedule, wake, run) are logged at debug.
func NewCronLogger(logger *slog.Logger) cron.Logger {
	return &cronLogger{logger: logger}
}

func (l *cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Debug("cron: "+msg, keysAndValues...)
}

func (l *cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	args := append([]interface{}{slog.Any("error", err)}, keysAndValues...)
	l.logger.Error("cron: "+msg, args...)
}

package log

import (
	"context"
	"log/slog"
	"os"
)

// log routes a message through the slog bridge at the given level.
func (l *BaseLogger) log(level Level, msg string, fields []Field) {
	if level < l.level {
		return
	}
	l.slogLogger.LogAttrs(context.Background(), toSlogLevel(level), msg, fieldsToAttrs(fields)...)
	if level == FatalLevel {
		os.Exit(1)
	}
}

func (l *BaseLogger) Debug(msg string, fields ...Field) { l.log(DebugLevel, msg, fields) }
func (l *BaseLogger) Info(msg string, fields ...Field)  { l.log(InfoLevel, msg, fields) }
func (l *BaseLogger) Warn(msg string, fields ...Field)  { l.log(WarnLevel, msg, fields) }
func (l *BaseLogger) Error(msg string, fields ...Field) { l.log(ErrorLevel, msg, fields) }
func (l *BaseLogger) Fatal(msg string, fields ...Field) { l.log(FatalLevel, msg, fields) }

// With returns a child logger with the fields attached to every entry. The
// child shares the parent's formatter and outputs but levels independently.
func (l *BaseLogger) With(fields ...Field) Logger {
	if len(fields) == 0 {
		return l
	}
	nl := &BaseLogger{
		level:     l.level,
		formatter: l.formatter,
		outputs:   l.outputs,
	}
	handler := l.slogLogger.Handler().WithAttrs(fieldsToAttrs(fields))
	// Rebind the bridge to the child so SetLevel on the child is honored.
	if bh, ok := handler.(*bridgeHandler); ok {
		bh.logger = nl
	}
	nl.slogLogger = slog.New(handler)
	return nl
}

// SetLevel adjusts the minimum level of this logger.
func (l *BaseLogger) SetLevel(level Level) {
	l.level = level
}

// GetLevel reports the current minimum level.
func (l *BaseLogger) GetLevel() Level {
	return l.level
}

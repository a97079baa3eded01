package logger

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// SLogLogger writes to a log/slog logger. Odd trailing keys are dropped.
type SLogLogger struct {
	l *slog.Logger
}

func NewSLogLogger(l *slog.Logger) *SLogLogger {
	if l == nil {
		l = slog.Default()
	}
	return &SLogLogger{l: l}
}

func (s *SLogLogger) Debug(msg string, keyvals ...any) { s.emit(slog.LevelDebug, msg, keyvals) }
func (s *SLogLogger) Info(msg string, keyvals ...any)  { s.emit(slog.LevelInfo, msg, keyvals) }
func (s *SLogLogger) Error(msg string, keyvals ...any) { s.emit(slog.LevelError, msg, keyvals) }

func (s *SLogLogger) emit(level slog.Level, msg string, keyvals []any) {
	ctx := context.Background()
	if !s.l.Enabled(ctx, level) {
		return
	}
	attrs := make([]slog.Attr, 0, len(keyvals)/2)
	for i := 0; i+1 < len(keyvals); i += 2 {
		attrs = append(attrs, attr(keyvals[i], keyvals[i+1]))
	}
	s.l.LogAttrs(ctx, level, msg, attrs...)
}

func attr(k, v any) slog.Attr {
	key, ok := k.(string)
	if !ok {
		key = fmt.Sprint(k)
	}
	switch val := v.(type) {
	case error:
		return slog.String(key, val.Error())
	case time.Duration:
		return slog.Duration(key, val)
	case fmt.Stringer:
		return slog.String(key, val.String())
	}
	return slog.Any(key, v)
}

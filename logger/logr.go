package logger

import (
	"errors"

	"github.com/go-logr/logr"
)

// LogrLogger adapts a logr.Logger. Debug maps to V(1); an "error" value
// passed to Error becomes the logr error argument.
type LogrLogger struct {
	l logr.Logger
}

var _ Logger = (*LogrLogger)(nil)

func NewLogrLogger(l logr.Logger) *LogrLogger {
	if l.GetSink() == nil {
		l = logr.Discard()
	}
	return &LogrLogger{l: l}
}

func (g *LogrLogger) Debug(msg string, keyvals ...any) {
	g.l.V(1).Info(msg, keyvals...)
}

func (g *LogrLogger) Info(msg string, keyvals ...any) {
	g.l.Info(msg, keyvals...)
}

func (g *LogrLogger) Error(msg string, keyvals ...any) {
	var err error
	rest := make([]any, 0, len(keyvals))
	for i := 0; i+1 < len(keyvals); i += 2 {
		if k, ok := keyvals[i].(string); ok && k == "error" && err == nil {
			switch v := keyvals[i+1].(type) {
			case error:
				err = v
				continue
			case string:
				err = errors.New(v)
				continue
			}
		}
		rest = append(rest, keyvals[i], keyvals[i+1])
	}
	g.l.Error(err, msg, rest...)
}

package logger

import (
	"fmt"

	phlog "github.com/oarkflow/log"
)

// PhusluLogger writes through the global oarkflow/log logger
type PhusluLogger struct{}

func NewPhusluLogger() *PhusluLogger { return &PhusluLogger{} }

func (p *PhusluLogger) Debug(msg string, keyvals ...any) {
	emit(phlog.Debug(), msg, keyvals)
}

func (p *PhusluLogger) Info(msg string, keyvals ...any) {
	emit(phlog.Info(), msg, keyvals)
}

func (p *PhusluLogger) Error(msg string, keyvals ...any) {
	emit(phlog.Error(), msg, keyvals)
}

func emit(b *phlog.Entry, msg string, keyvals []any) {
	for i := 0; i < len(keyvals)-1; i += 2 {
		ks := fmt.Sprint(keyvals[i])
		switch v := keyvals[i+1].(type) {
		case string:
			b = b.Str(ks, v)
		case bool:
			b = b.Bool(ks, v)
		case int:
			b = b.Int(ks, v)
		case error:
			b = b.Str(ks, v.Error())
		default:
			b = b.Any(ks, v)
		}
	}
	b.Msg(msg)
}

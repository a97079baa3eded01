// Package logger defines the key/value logging interface used across permgate
// and adapters for the logging backends the gateway can run with.
package logger

type Logger interface {
	Error(msg string, keyvals ...any)
	Info(msg string, keyvals ...any)
	Debug(msg string, keyvals ...any)
}

// TraceIDFunc generates a correlation ID for a refresh or a guarded request.
type TraceIDFunc func() string // must be safe for concurrent calls

// Named wraps l so every line carries component=name.
func Named(l Logger, name string) Logger {
	if l == nil {
		return NewNullLogger()
	}
	return &named{l: l, name: name}
}

type named struct {
	l    Logger
	name string
}

func (n *named) with(keyvals []any) []any {
	return append([]any{"component", n.name}, keyvals...)
}

func (n *named) Error(msg string, keyvals ...any) { n.l.Error(msg, n.with(keyvals)...) }
func (n *named) Info(msg string, keyvals ...any)  { n.l.Info(msg, n.with(keyvals)...) }
func (n *named) Debug(msg string, keyvals ...any) { n.l.Debug(msg, n.with(keyvals)...) }

package logger

// NullLogger is the default for stores and the console when no logger is
// configured.
type NullLogger struct{}

var _ Logger = (*NullLogger)(nil)

func NewNullLogger() *NullLogger { return &NullLogger{} }

func (*NullLogger) Debug(string, ...any) {}
func (*NullLogger) Info(string, ...any)  {}
func (*NullLogger) Error(string, ...any) {}

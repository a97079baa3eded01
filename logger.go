package permgate

import (
	"github.com/google/uuid"
	"github.com/oarkflow/permgate/logger"
)

// Logger is re-exported so callers only need the root package.
type Logger = logger.Logger

// WithLogger installs a Logger on the Store
func WithLogger(l logger.Logger) StoreOption {
	return func(s *Store) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithTraceIDFunc installs a custom trace ID generator used to correlate
// refresh log lines.
func WithTraceIDFunc(f logger.TraceIDFunc) StoreOption {
	return func(s *Store) {
		if f != nil {
			s.traceID = f
		}
	}
}

func defaultTraceID() string {
	return uuid.NewString()
}

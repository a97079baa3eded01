package stores

import (
	"context"
	"sync"

	"github.com/oarkflow/permgate"
)

// MemorySessionStore keeps sessions in process memory for tests and
// single-instance deployments
type MemorySessionStore struct {
	mu       sync.RWMutex
	sessions map[string]*permgate.Session
}

func NewMemorySessionStore() *MemorySessionStore {
	return &MemorySessionStore{sessions: make(map[string]*permgate.Session)}
}

func (s *MemorySessionStore) Get(ctx context.Context, id string) (*permgate.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.sessions[id].Clone(), nil
}

func (s *MemorySessionStore) Put(ctx context.Context, id string, sess *permgate.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[id] = sess.Clone()
	return nil
}

func (s *MemorySessionStore) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, id)
	return nil
}

func (s *MemorySessionStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}

// MemoryAuditLog is an in-memory access log
type MemoryAuditLog struct {
	mu     sync.RWMutex
	events []*permgate.AuditEvent
}

func NewMemoryAuditLog() *MemoryAuditLog {
	return &MemoryAuditLog{events: make([]*permgate.AuditEvent, 0)}
}

func (m *MemoryAuditLog) Record(ctx context.Context, e *permgate.AuditEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *e
	m.events = append(m.events, &cp)
	return nil
}

func (m *MemoryAuditLog) Query(ctx context.Context, f permgate.AuditFilter) ([]*permgate.AuditEvent, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*permgate.AuditEvent, 0)
	for _, e := range m.events {
		if !matchesAudit(e, f) {
			continue
		}
		cp := *e
		out = append(out, &cp)
		if f.Limit > 0 && len(out) >= f.Limit {
			break
		}
	}
	return out, nil
}

func matchesAudit(e *permgate.AuditEvent, f permgate.AuditFilter) bool {
	if f.SessionID != "" && e.SessionID != f.SessionID {
		return false
	}
	if f.Kind != "" && e.Kind != f.Kind {
		return false
	}
	if !f.Since.IsZero() && e.Timestamp.Before(f.Since) {
		return false
	}
	return true
}

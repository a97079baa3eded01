package stores

import (
	"context"

	"github.com/oarkflow/permgate"
	"github.com/oarkflow/squealx"
)

// SQLAuditStore persists access events in SQL
type SQLAuditStore struct {
	db *squealx.DB
}

func NewSQLAuditStore(db *squealx.DB) (*SQLAuditStore, error) {
	return &SQLAuditStore{db: db}, nil
}

func (s *SQLAuditStore) Record(ctx context.Context, e *permgate.AuditEvent) error {
	q := `INSERT INTO audit_log(id, timestamp, session_id, kind, role, path, detail) VALUES(:id, :timestamp, :session_id, :kind, :role, :path, :detail)`
	_, err := s.db.NamedExecContext(ctx, q, map[string]any{
		"id":         e.ID,
		"timestamp":  formatTime(e.Timestamp),
		"session_id": e.SessionID,
		"kind":       string(e.Kind),
		"role":       string(e.Role),
		"path":       e.Path,
		"detail":     e.Detail,
	})
	return err
}

func (s *SQLAuditStore) Query(ctx context.Context, filter permgate.AuditFilter) ([]*permgate.AuditEvent, error) {
	q := `SELECT id, timestamp, session_id, kind, role, path, detail FROM audit_log WHERE 1=1`
	params := map[string]any{}
	if filter.SessionID != "" {
		q += " AND session_id = :session_id"
		params["session_id"] = filter.SessionID
	}
	if filter.Kind != "" {
		q += " AND kind = :kind"
		params["kind"] = string(filter.Kind)
	}
	if !filter.Since.IsZero() {
		q += " AND timestamp >= :since"
		params["since"] = formatTime(filter.Since)
	}
	q += " ORDER BY timestamp"
	if filter.Limit > 0 {
		q += " LIMIT :limit"
		params["limit"] = filter.Limit
	} else {
		q += " LIMIT 100"
	}
	r, err := s.db.NamedQueryContext(ctx, q, params)
	if err != nil {
		return nil, err
	}
	defer r.Close()
	out := make([]*permgate.AuditEvent, 0)
	for r.Next() {
		var id, sessionID, kind, role, path, detail string
		var timestampRaw any
		if err := r.Scan(&id, &timestampRaw, &sessionID, &kind, &role, &path, &detail); err != nil {
			return nil, err
		}
		out = append(out, &permgate.AuditEvent{
			ID:        id,
			Timestamp: scanTime(timestampRaw),
			SessionID: sessionID,
			Kind:      permgate.AuditKind(kind),
			Role:      permgate.Role(role),
			Path:      path,
			Detail:    detail,
		})
	}
	if err := r.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

package permgate

import (
	"context"
	"time"
)

// AuditKind names a session lifecycle or access event
type AuditKind string

const (
	AuditLogin          AuditKind = "login"
	AuditLoginFailed    AuditKind = "login_failed"
	AuditLogout         AuditKind = "logout"
	AuditSessionExpired AuditKind = "session_expired"
	AuditRouteDenied    AuditKind = "route_denied"
)

// AuditEvent is one entry of the gateway access log
type AuditEvent struct {
	ID        string    `json:"id"`
	Timestamp time.Time `json:"timestamp"`
	SessionID string    `json:"session_id,omitempty"`
	Kind      AuditKind `json:"kind"`
	Role      Role      `json:"role,omitempty"`
	Path      string    `json:"path,omitempty"`
	Detail    string    `json:"detail,omitempty"`
}

type AuditFilter struct {
	SessionID string
	Kind      AuditKind
	Since     time.Time
	Limit     int
}

// AuditLog records and queries access events
type AuditLog interface {
	Record(ctx context.Context, e *AuditEvent) error
	Query(ctx context.Context, f AuditFilter) ([]*AuditEvent, error)
}

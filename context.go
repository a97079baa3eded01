package permgate

import "context"

type ctxKey string

const (
	snapshotKey  ctxKey = "permgate_snapshot"
	sessionIDKey ctxKey = "permgate_session_id"
)

// ContextWithSnapshot attaches the snapshot a request was authorized with.
func ContextWithSnapshot(ctx context.Context, s Snapshot) context.Context {
	return context.WithValue(ctx, snapshotKey, s)
}

// SnapshotFromContext returns the snapshot stored by the route guard.
func SnapshotFromContext(ctx context.Context) (Snapshot, bool) {
	s, ok := ctx.Value(snapshotKey).(Snapshot)
	return s, ok
}

func ContextWithSessionID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, sessionIDKey, id)
}

func SessionIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(sessionIDKey).(string)
	return id
}

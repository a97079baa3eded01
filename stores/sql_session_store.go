package stores

import (
	"context"
	"time"

	"github.com/oarkflow/permgate"
	"github.com/oarkflow/squealx"
)

// SQLSessionStore persists sessions in SQL (squealx)
type SQLSessionStore struct {
	db *squealx.DB
}

func NewSQLSessionStore(db *squealx.DB) *SQLSessionStore {
	return &SQLSessionStore{db: db}
}

func (s *SQLSessionStore) Get(ctx context.Context, id string) (*permgate.Session, error) {
	q := `SELECT token, user_json, created_at FROM sessions WHERE id = :id`
	r, err := s.db.NamedQueryContext(ctx, q, map[string]any{"id": id})
	if err != nil {
		return nil, err
	}
	defer r.Close()
	if !r.Next() {
		return nil, r.Err()
	}
	var token, userJSON string
	var createdRaw any
	if err := r.Scan(&token, &userJSON, &createdRaw); err != nil {
		return nil, err
	}
	return &permgate.Session{
		Token:     token,
		User:      decodeUser(userJSON),
		CreatedAt: scanTime(createdRaw),
	}, nil
}

func (s *SQLSessionStore) Put(ctx context.Context, id string, sess *permgate.Session) error {
	userJSON, err := encodeUser(sess.User)
	if err != nil {
		return err
	}
	created := sess.CreatedAt
	if created.IsZero() {
		created = time.Now()
	}
	q := `INSERT INTO sessions(id, token, user_json, created_at) VALUES(:id, :token, :user_json, :created_at)
ON CONFLICT(id) DO UPDATE SET token = excluded.token, user_json = excluded.user_json, created_at = excluded.created_at`
	_, err = s.db.NamedExecContext(ctx, q, map[string]any{
		"id":         id,
		"token":      sess.Token,
		"user_json":  userJSON,
		"created_at": formatTime(created),
	})
	return err
}

func (s *SQLSessionStore) Delete(ctx context.Context, id string) error {
	q := `DELETE FROM sessions WHERE id = :id`
	_, err := s.db.NamedExecContext(ctx, q, map[string]any{"id": id})
	return err
}

package stores

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/oarkflow/permgate"
	"github.com/redis/go-redis/v9"
)

// RedisSessionStore keeps each session as a JSON string (key: permgate:session:{id})
// so several gateway instances can share logins.
type RedisSessionStore struct {
	client *redis.Client
	keyFmt string // format string, e.g. "permgate:session:%s"
}

func NewRedisSessionStore(client *redis.Client, prefix string) *RedisSessionStore {
	if prefix == "" {
		prefix = "permgate:session:"
	}
	return &RedisSessionStore{client: client, keyFmt: prefix + "%s"}
}

func (r *RedisSessionStore) key(id string) string {
	return fmt.Sprintf(r.keyFmt, id)
}

func (r *RedisSessionStore) Get(ctx context.Context, id string) (*permgate.Session, error) {
	raw, err := r.client.Get(ctx, r.key(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	sess := &permgate.Session{}
	if err := json.Unmarshal(raw, sess); err != nil {
		return nil, fmt.Errorf("decode session %s: %w", id, err)
	}
	return sess, nil
}

func (r *RedisSessionStore) Put(ctx context.Context, id string, sess *permgate.Session) error {
	raw, err := json.Marshal(sess)
	if err != nil {
		return fmt.Errorf("encode session %s: %w", id, err)
	}
	return r.client.Set(ctx, r.key(id), raw, 0).Err()
}

func (r *RedisSessionStore) Delete(ctx context.Context, id string) error {
	return r.client.Del(ctx, r.key(id)).Err()
}

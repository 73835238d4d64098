package statestore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	backend "github.com/redis/go-redis/v9"
)

// RedisStore persists session checkpoints to Redis.
// Checkpoints are stored as JSON under a key prefix; a ZSET index keyed by
// write time supports listing without SCAN.
type RedisStore struct {
	client *backend.Client
	prefix string
	ttl    time.Duration
}

// RedisOption configures a RedisStore.
type RedisOption func(*RedisStore)

// WithTTL sets the expiration for session checkpoints.
// Zero (the default) means no expiration.
func WithTTL(ttl time.Duration) RedisOption {
	return func(s *RedisStore) { s.ttl = ttl }
}

// WithPrefix sets the key prefix for session checkpoints.
func WithPrefix(prefix string) RedisOption {
	return func(s *RedisStore) { s.prefix = prefix }
}

// NewRedisStore creates a Redis state store from an existing client.
func NewRedisStore(client *backend.Client, opts ...RedisOption) *RedisStore {
	store := &RedisStore{
		client: client,
		prefix: "opsgraph:session:",
	}
	for _, opt := range opts {
		opt(store)
	}
	return store
}

func (s *RedisStore) key(sessionID string) string {
	return s.prefix + sessionID
}

func (s *RedisStore) indexKey() string {
	return s.prefix + "index"
}

// Save implements Store.
func (s *RedisStore) Save(ctx context.Context, sessionID string, cp *Checkpoint) error {
	data, err := cp.Marshal()
	if err != nil {
		return err
	}

	pipe := s.client.Pipeline()
	pipe.Set(ctx, s.key(sessionID), data, s.ttl)
	pipe.ZAdd(ctx, s.indexKey(), backend.Z{
		Score:  float64(cp.WrittenAt.UnixNano()),
		Member: sessionID,
	})
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("save to redis: %w", err)
	}
	return nil
}

// Load implements Store.
func (s *RedisStore) Load(ctx context.Context, sessionID string) (*Checkpoint, error) {
	val, err := s.client.Get(ctx, s.key(sessionID)).Bytes()
	if err != nil {
		if errors.Is(err, backend.Nil) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get from redis: %w", err)
	}
	return Unmarshal(val)
}

// Exists implements Store.
func (s *RedisStore) Exists(ctx context.Context, sessionID string) (bool, error) {
	n, err := s.client.Exists(ctx, s.key(sessionID)).Result()
	if err != nil {
		return false, fmt.Errorf("check redis key: %w", err)
	}
	return n > 0, nil
}

// Delete implements Store.
func (s *RedisStore) Delete(ctx context.Context, sessionID string) (int64, error) {
	pipe := s.client.Pipeline()
	del := pipe.Del(ctx, s.key(sessionID))
	pipe.ZRem(ctx, s.indexKey(), sessionID)
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, fmt.Errorf("delete from redis: %w", err)
	}
	return del.Val(), nil
}

// List implements Store.
func (s *RedisStore) List(ctx context.Context, f Filter) ([]Info, error) {
	// Newest first.
	ids, err := s.client.ZRevRange(ctx, s.indexKey(), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}

	var infos []Info
	for _, id := range ids {
		if f.Prefix != "" && !strings.HasPrefix(id, f.Prefix) {
			continue
		}

		data, err := s.client.Get(ctx, s.key(id)).Bytes()
		if errors.Is(err, backend.Nil) {
			// Expired entry still in the index; prune lazily.
			s.client.ZRem(ctx, s.indexKey(), id)
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("get session %s: %w", id, err)
		}

		cp, err := Unmarshal(data)
		if err != nil {
			continue
		}
		infos = append(infos, Info{
			SessionID: id,
			Sequence:  cp.Sequence,
			WrittenAt: cp.WrittenAt,
			Size:      int64(len(data)),
		})

		if f.Limit > 0 && len(infos) >= f.Limit {
			break
		}
	}
	return infos, nil
}

// Close implements Store.
func (s *RedisStore) Close() error {
	return s.client.Close()
}

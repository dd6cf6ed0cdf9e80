package checkpoint

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// HashClient is the part of *redis.Client the Redis store uses.
type HashClient interface {
	HGetAll(ctx context.Context, key string) *redis.MapStringStringCmd
	HSet(ctx context.Context, key string, values ...interface{}) *redis.IntCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
}

// NewRedisClient connects to addr and checks the connection.
func NewRedisClient(ctx context.Context, addr, password string, db int) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to ping redis at %s: %w", addr, err)
	}
	return client, nil
}

// RedisStore keeps a stage mapping in one hash: field = patient id,
// value = gob-encoded record.
type RedisStore[T any] struct {
	client HashClient
	key    string
}

// NewRedisStore returns the store of stage under prefix.
func NewRedisStore[T any](client HashClient, prefix, stage string) *RedisStore[T] {
	if prefix == "" {
		prefix = "spinesuv"
	}
	return &RedisStore[T]{client: client, key: stageKey(prefix, stage)}
}

func stageKey(prefix, stage string) string {
	return fmt.Sprintf("%s:%s", prefix, stage)
}

// Key is the hash holding the mapping.
func (s *RedisStore[T]) Key() string {
	return s.key
}

// Load fails as a whole when any entry cannot be decoded.
func (s *RedisStore[T]) Load(ctx context.Context) (map[string]T, error) {
	data, err := s.client.HGetAll(ctx, s.key).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to load checkpoint %s: %w", s.key, err)
	}
	records := make(map[string]T, len(data))
	for id, raw := range data {
		v, err := decode[T]([]byte(raw))
		if err != nil {
			return nil, fmt.Errorf("failed to decode checkpoint %s[%s]: %w", s.key, id, err)
		}
		records[id] = v
	}
	return records, nil
}

// Save replaces the whole hash.
func (s *RedisStore[T]) Save(ctx context.Context, records map[string]T) error {
	fields := make(map[string]interface{}, len(records))
	for id, v := range records {
		raw, err := encode(v)
		if err != nil {
			return fmt.Errorf("failed to encode checkpoint %s[%s]: %w", s.key, id, err)
		}
		fields[id] = raw
	}
	if err := s.client.Del(ctx, s.key).Err(); err != nil {
		return fmt.Errorf("failed to reset checkpoint %s: %w", s.key, err)
	}
	if len(fields) == 0 {
		return nil
	}
	return s.client.HSet(ctx, s.key, fields).Err()
}

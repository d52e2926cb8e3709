package store

import (
	"context"
	"fmt"
	"strings"

	"traffic-router/internal/redis"
)

// RedisStore keeps every record under a common key prefix in Redis
type RedisStore struct {
	client    *redis.Client
	keyPrefix string
}

// NewRedisStore wraps an already connected client
func NewRedisStore(client *redis.Client, keyPrefix string) *RedisStore {
	return &RedisStore{client: client, keyPrefix: keyPrefix}
}

func (s *RedisStore) key(k string) string {
	return s.keyPrefix + k
}

func (s *RedisStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	value, found, err := s.client.GetBytes(ctx, s.key(key))
	if err != nil {
		return nil, false, fmt.Errorf("redis get %s: %w", key, err)
	}
	return value, found, nil
}

func (s *RedisStore) Put(ctx context.Context, key string, value []byte) error {
	if err := s.client.SetBytes(ctx, s.key(key), value); err != nil {
		return fmt.Errorf("redis put %s: %w", key, err)
	}
	return nil
}

func (s *RedisStore) List(ctx context.Context, prefix string) ([]string, error) {
	raw, err := s.client.ScanPrefix(ctx, s.key(prefix))
	if err != nil {
		return nil, fmt.Errorf("redis list %s: %w", prefix, err)
	}
	keys := make([]string, 0, len(raw))
	for _, k := range raw {
		keys = append(keys, strings.TrimPrefix(k, s.keyPrefix))
	}
	return sortedKeys(keys), nil
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}

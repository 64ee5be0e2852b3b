package storage

import (
	"context"
	"errors"
	"time"

	backend "github.com/redis/go-redis/v9"

	"github.com/richinex/musicbi/internal/apperror"
)

// RedisStore implements ChunkStore on Redis string keys.
type RedisStore struct {
	client *backend.Client
	prefix string
	ttl    time.Duration
}

// RedisOption configures a RedisStore.
type RedisOption func(*RedisStore)

// WithTTL sets an expiration on stored chunks. Zero means no expiration.
func WithTTL(ttl time.Duration) RedisOption {
	return func(s *RedisStore) {
		s.ttl = ttl
	}
}

// NewRedisStore connects to address.
func NewRedisStore(address, password string, db int, prefix string, opts ...RedisOption) *RedisStore {
	rdb := backend.NewClient(&backend.Options{
		Addr:     address,
		Password: password,
		DB:       db,
	})
	return NewRedisStoreFromClient(rdb, prefix, opts...)
}

// NewRedisStoreFromClient wraps an existing client.
func NewRedisStoreFromClient(client *backend.Client, prefix string, opts ...RedisOption) *RedisStore {
	if prefix == "" {
		prefix = "musicbi:chunk:"
	}
	s := &RedisStore{client: client, prefix: prefix}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Ping checks connectivity.
func (s *RedisStore) Ping(ctx context.Context) error {
	if err := s.client.Ping(ctx).Err(); err != nil {
		return apperror.Transient("redis ping", err)
	}
	return nil
}

// Close closes the client.
func (s *RedisStore) Close() error {
	return s.client.Close()
}

// Put stores a chunk.
func (s *RedisStore) Put(ctx context.Context, key, content string) error {
	if err := s.client.Set(ctx, BlobName(s.prefix, key), content, s.ttl).Err(); err != nil {
		return apperror.Transient("failed to save chunk to redis", err)
	}
	return nil
}

// Get loads a chunk.
func (s *RedisStore) Get(ctx context.Context, key string) (string, error) {
	val, err := s.client.Get(ctx, BlobName(s.prefix, key)).Result()
	if errors.Is(err, backend.Nil) {
		return "", notFound(key)
	}
	if err != nil {
		return "", apperror.Transient("failed to load chunk from redis", err)
	}
	return val, nil
}

// Clear deletes every key under the prefix using SCAN.
func (s *RedisStore) Clear(ctx context.Context) error {
	var cursor uint64
	for {
		keys, next, err := s.client.Scan(ctx, cursor, s.prefix+"*", 256).Result()
		if err != nil {
			return apperror.Transient("failed to scan redis chunks", err)
		}
		if len(keys) > 0 {
			if err := s.client.Del(ctx, keys...).Err(); err != nil {
				return apperror.Transient("failed to delete redis chunks", err)
			}
		}
		if next == 0 {
			return nil
		}
		cursor = next
	}
}

var _ ChunkStore = (*RedisStore)(nil)

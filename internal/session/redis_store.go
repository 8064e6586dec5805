package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const keyPrefix = "supportbot:session:"

// RedisStore shares session records across server instances.
type RedisStore struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisClient accepts a redis:// URL or a bare host:port.
func NewRedisClient(url string) *redis.Client {
	opt, err := redis.ParseURL(url)
	if err != nil {
		opt = &redis.Options{Addr: url}
	}
	return redis.NewClient(opt)
}

func NewRedisStore(client *redis.Client, ttl time.Duration) *RedisStore {
	return &RedisStore{client: client, ttl: ttl}
}

// Ping verifies the connection.
func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

func (s *RedisStore) Get(ctx context.Context, id string) (Record, bool, error) {
	data, err := s.client.Get(ctx, key(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return Record{}, false, nil
	}
	if err != nil {
		return Record{}, false, fmt.Errorf("redis get session: %w", err)
	}
	r, err := decode(data)
	if err != nil {
		return Record{}, false, err
	}
	return r, true, nil
}

func (s *RedisStore) Put(ctx context.Context, id string, r Record) error {
	data, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("marshal session: %w", err)
	}
	if err := s.client.Set(ctx, key(id), data, s.ttl).Err(); err != nil {
		return fmt.Errorf("redis set session: %w", err)
	}
	return nil
}

func (s *RedisStore) Delete(ctx context.Context, id string) error {
	return s.client.Del(ctx, key(id)).Err()
}

func key(id string) string { return keyPrefix + id }

func decode(data []byte) (Record, error) {
	var r Record
	if err := json.Unmarshal(data, &r); err != nil {
		return Record{}, fmt.Errorf("decode session: %w", err)
	}
	return r, nil
}

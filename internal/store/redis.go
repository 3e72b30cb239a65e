package store

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/go-redis/redis/v8"
)

var _ KV = (*RedisKV)(nil)

type RedisKV struct {
	cli *redis.Client
}

// OpenRedis connects to addr, which may be host:port or a redis:// URL, and pings it.
func OpenRedis(ctx context.Context, addr, password string, db int) (*RedisKV, error) {
	opts := &redis.Options{Addr: addr, Password: password, DB: db}
	if strings.HasPrefix(addr, "redis://") || strings.HasPrefix(addr, "rediss://") {
		parsed, err := redis.ParseURL(addr)
		if err != nil {
			return nil, &StoreError{Backend: "redis", Op: "parse url", Err: err}
		}
		opts = parsed
	}
	c := redis.NewClient(opts)
	if err := c.Ping(ctx).Err(); err != nil {
		_ = c.Close()
		return nil, &StoreError{Backend: "redis", Op: "ping", Err: err}
	}
	return &RedisKV{cli: c}, nil
}

func (s *RedisKV) Exists(ctx context.Context, key string) (bool, error) {
	n, err := s.cli.Exists(ctx, key).Result()
	if err != nil {
		return false, &StoreError{Backend: "redis", Op: "exists", Key: key, Err: err}
	}
	return n > 0, nil
}

func (s *RedisKV) Get(ctx context.Context, key string) (string, error) {
	v, err := s.cli.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", &StoreError{Backend: "redis", Op: "get", Key: key, Err: err}
	}
	return v, nil
}

func (s *RedisKV) Set(ctx context.Context, key, value string) error {
	if err := s.cli.Set(ctx, key, value, 0).Err(); err != nil {
		return &StoreError{Backend: "redis", Op: "set", Key: key, Err: err}
	}
	return nil
}

func (s *RedisKV) SetEx(ctx context.Context, key string, ttl time.Duration, value string) error {
	if err := s.cli.SetEX(ctx, key, value, ttl).Err(); err != nil {
		return &StoreError{Backend: "redis", Op: "setex", Key: key, Err: err}
	}
	return nil
}

func (s *RedisKV) Close() error { return s.cli.Close() }

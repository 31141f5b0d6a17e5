package cache

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

type RedisConfig struct {
	Address  string
	Password string
	DB       int
	Prefix   string
	// Retain keeps entries past their TTL so stale fallback has something to serve.
	Retain time.Duration
}

// RedisStore keeps each entry in a hash with its creation time and TTL.
type RedisStore struct {
	client *redis.Client
	prefix string
	retain time.Duration
	now    func() time.Time
}

var _ Backend = (*RedisStore)(nil)

func OpenRedis(ctx context.Context, cfg RedisConfig) (*RedisStore, error) {
	if cfg.Address == "" {
		return nil, errors.New("redis address is required")
	}
	if cfg.Prefix == "" {
		cfg.Prefix = "bscdefi:cache:"
	}
	if cfg.Retain <= 0 {
		cfg.Retain = 24 * time.Hour
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Address,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("connect redis: %w", err)
	}
	return &RedisStore{client: client, prefix: cfg.Prefix, retain: cfg.Retain, now: time.Now}, nil
}

func (s *RedisStore) Close() error {
	if s == nil || s.client == nil {
		return nil
	}
	return s.client.Close()
}

func (s *RedisStore) Get(ctx context.Context, key string, maxStale time.Duration) (Result, error) {
	fields, err := s.client.HGetAll(ctx, s.prefix+key).Result()
	if err != nil {
		return Result{}, fmt.Errorf("cache read: %w", err)
	}
	value, ok := fields["value"]
	if !ok {
		return Result{}, nil
	}
	created, err := strconv.ParseInt(fields["created_at"], 10, 64)
	if err != nil {
		return Result{}, fmt.Errorf("cache read: bad created_at: %w", err)
	}
	ttl, err := strconv.ParseInt(fields["ttl_seconds"], 10, 64)
	if err != nil {
		return Result{}, fmt.Errorf("cache read: bad ttl_seconds: %w", err)
	}
	return evaluate([]byte(value), time.Unix(created, 0).UTC(), time.Duration(ttl)*time.Second, maxStale, s.now()), nil
}

func (s *RedisStore) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	k := s.prefix + key
	secs := ttlSeconds(ttl)
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, k, map[string]any{
			"value":       value,
			"created_at":  s.now().UTC().Unix(),
			"ttl_seconds": secs,
		})
		pipe.Expire(ctx, k, time.Duration(secs)*time.Second+s.retain)
		return nil
	})
	if err != nil {
		return fmt.Errorf("cache write: %w", err)
	}
	return nil
}

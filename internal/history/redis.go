package history

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisOptions configures the Redis backend.
type RedisOptions struct {
	Addr     string
	Password string
	DB       int
	Prefix   string
	TTL      time.Duration
}

// RedisStore keeps one key per alerted article. Retention is enforced by key TTL.
type RedisStore struct {
	client redis.UniversalClient
	prefix string
	ttl    time.Duration
}

// NewRedisStore connects to Redis and verifies connectivity.
func NewRedisStore(ctx context.Context, opts RedisOptions) (*RedisStore, error) {
	if strings.TrimSpace(opts.Addr) == "" {
		opts.Addr = "localhost:6379"
	}
	client := redis.NewClient(&redis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("connect to redis at %s: %w", opts.Addr, err)
	}
	return NewRedisStoreWithClient(client, opts.Prefix, opts.TTL), nil
}

// NewRedisStoreWithClient wraps an existing client.
func NewRedisStoreWithClient(client redis.UniversalClient, prefix string, ttl time.Duration) *RedisStore {
	if prefix == "" {
		prefix = "trendwatch:alerted:"
	}
	if ttl <= 0 {
		ttl = 72 * time.Hour
	}
	return &RedisStore{client: client, prefix: prefix, ttl: ttl}
}

func (r *RedisStore) Seen(ctx context.Context, key string) (bool, error) {
	n, err := r.client.Exists(ctx, r.prefix+key).Result()
	if err != nil {
		return false, fmt.Errorf("redis exists: %w", err)
	}
	return n == 1, nil
}

// Claim uses SET NX so only one caller wins per key.
func (r *RedisStore) Claim(ctx context.Context, key string) (bool, error) {
	ok, err := r.client.SetNX(ctx, r.prefix+key, time.Now().UTC().Format(time.RFC3339), r.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("redis setnx: %w", err)
	}
	return ok, nil
}

// Prune is a no-op; keys expire on their own.
func (r *RedisStore) Prune(context.Context, time.Time) (int, error) {
	return 0, nil
}

func (r *RedisStore) Close() error {
	return r.client.Close()
}

package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/okian/upready/internal/domain/model"
	"github.com/okian/upready/pkg/metrics"
)

const (
	defaultRedisKey  = "upready:snapshot"
	pingTimeout      = 5 * time.Second
	defaultRedisAddr = "localhost:6379"
)

// RedisClient is the subset of *redis.Client the cache uses.
type RedisClient interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
	Close() error
}

// Redis keeps the snapshot as JSON under a single key.
type Redis struct {
	client RedisClient
	key    string
	ttl    time.Duration
}

// NewRedis connects to Redis and verifies the connection unless a client was
// injected with WithRedisClient.
func NewRedis(ctx context.Context, opts ...RedisOption) (*Redis, error) {
	cfg := &redisConfig{
		addr: defaultRedisAddr,
		key:  defaultRedisKey,
	}
	for _, opt := range opts {
		opt(cfg)
	}

	r := &Redis{client: cfg.client, key: cfg.key, ttl: cfg.ttl}
	if r.client != nil {
		return r, nil
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.addr,
		Password: cfg.password,
		DB:       cfg.db,
	})
	pctx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	if err := client.Ping(pctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("%w: redis ping %s: %w", ErrUnavailable, cfg.addr, err)
	}
	r.client = client
	return r, nil
}

// Get returns the cached snapshot, or nil on a miss.
func (r *Redis) Get(ctx context.Context) (*model.RefreshSnapshot, error) {
	data, err := r.client.Get(ctx, r.key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		metrics.RecordErrorByComponent("cache", "get")
		return nil, fmt.Errorf("redis get: %w", err)
	}
	var snap model.RefreshSnapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("decoding snapshot: %w", err)
	}
	return &snap, nil
}

// Set replaces the cached snapshot. A nil snapshot clears it.
func (r *Redis) Set(ctx context.Context, snap *model.RefreshSnapshot) error {
	if snap == nil {
		return r.Clear(ctx)
	}
	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("encoding snapshot: %w", err)
	}
	if err := r.client.Set(ctx, r.key, data, r.ttl).Err(); err != nil {
		metrics.RecordErrorByComponent("cache", "set")
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}

// Clear deletes the cached snapshot.
func (r *Redis) Clear(ctx context.Context) error {
	if err := r.client.Del(ctx, r.key).Err(); err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("redis del: %w", err)
	}
	return nil
}

// Close closes the client.
func (r *Redis) Close() error {
	return r.client.Close()
}

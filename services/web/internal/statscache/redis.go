package statscache

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/example/anitrack/internal/statskeys"
)

// Redis shares stats between web instances and lets the worker evict them.
type Redis struct {
	generations

	Client *redis.Client
	TTL    time.Duration
}

func NewRedis(client *redis.Client, ttl time.Duration) *Redis {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &Redis{Client: client, TTL: ttl}
}

func (c *Redis) Get(ctx context.Context, key string, dst any) (bool, error) {
	val, err := c.Client.Get(ctx, statskeys.Redis(key)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return false, nil
		}
		return false, err
	}
	if err := json.Unmarshal(val, dst); err != nil {
		return false, err
	}
	return true, nil
}

func (c *Redis) Set(ctx context.Context, key string, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return c.Client.Set(ctx, statskeys.Redis(key), b, c.TTL).Err()
}

func (c *Redis) SetIfCurrent(ctx context.Context, key string, v any, gen uint64) (bool, error) {
	return c.setIf(key, gen, func() error { return c.Set(ctx, key, v) })
}

func (c *Redis) Invalidate(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	c.bump(keys...)
	full := make([]string, len(keys))
	for i, k := range keys {
		full[i] = statskeys.Redis(k)
	}
	return c.Client.Del(ctx, full...).Err()
}

func (c *Redis) InvalidatePrefix(ctx context.Context, prefix string) error {
	c.bumpAll()
	_, err := statskeys.DeletePrefix(ctx, c.Client, statskeys.Redis(prefix))
	return err
}

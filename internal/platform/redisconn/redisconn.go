// Package redisconn opens go-redis clients from REDIS_URL-style DSNs.
package redisconn

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// Options parses dsn as a redis:// URL, falling back to a bare host:port.
func Options(dsn string) *redis.Options {
	dsn = strings.TrimSpace(dsn)
	opts, err := redis.ParseURL(dsn)
	if err != nil {
		opts = &redis.Options{Addr: dsn}
	}
	return opts
}

// Open creates a client and verifies it with a bounded PING.
func Open(ctx context.Context, dsn string) (*redis.Client, error) {
	if strings.TrimSpace(dsn) == "" {
		return nil, fmt.Errorf("redis: empty dsn")
	}
	client := redis.NewClient(Options(dsn))
	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return client, nil
}

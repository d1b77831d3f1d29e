// Package statskeys names the per-user completion stats cache entries shared
// by the web service and the worker.
package statskeys

import (
	"context"
	"strings"

	"github.com/redis/go-redis/v9"
)

const (
	suffixProgress   = "progress"
	suffixEngagement = "engagement"
	suffixList       = "list"

	// Namespace prefixes every stats key stored in Redis.
	Namespace = "stats:"
)

// Media is "user:kind:id".
func Media(userID, kind, mediaID string) string {
	return userID + ":" + kind + ":" + mediaID
}

func Progress(userID, kind, mediaID string) string {
	return Media(userID, kind, mediaID) + ":" + suffixProgress
}

func Engagement(userID, kind, mediaID string) string {
	return Media(userID, kind, mediaID) + ":" + suffixEngagement
}

// List caches the unfiltered completions list of one user.
func List(userID string) string {
	return userID + ":" + suffixList
}

// UserPrefix matches every key belonging to userID.
func UserPrefix(userID string) string {
	return userID + ":"
}

// For lists every key that a mutation on one media entity makes stale.
func For(userID, kind, mediaID string) []string {
	return []string{
		Progress(userID, kind, mediaID),
		Engagement(userID, kind, mediaID),
		List(userID),
	}
}

// Redis is the namespaced Redis key for a cache key.
func Redis(key string) string {
	return Namespace + key
}

// Deleter is the subset of redis.Cmdable that eviction needs.
type Deleter interface {
	Del(ctx context.Context, keys ...string) *redis.IntCmd
	Scan(ctx context.Context, cursor uint64, match string, count int64) *redis.ScanCmd
}

// DeletePrefix removes every key starting with prefix using SCAN, and
// returns how many were deleted.
func DeletePrefix(ctx context.Context, client Deleter, prefix string) (int, error) {
	pattern := globEscape(prefix) + "*"
	deleted := 0
	var cursor uint64
	for {
		keys, next, err := client.Scan(ctx, cursor, pattern, 200).Result()
		if err != nil {
			return deleted, err
		}
		if len(keys) > 0 {
			n, err := client.Del(ctx, keys...).Result()
			if err != nil {
				return deleted, err
			}
			deleted += int(n)
		}
		cursor = next
		if cursor == 0 {
			return deleted, nil
		}
	}
}

var globReplacer = strings.NewReplacer(`\`, `\\`, `*`, `\*`, `?`, `\?`, `[`, `\[`, `]`, `\]`)

func globEscape(s string) string {
	return globReplacer.Replace(s)
}

// Package timeline keeps the newest post ids in a Redis sorted set so the
// recent-posts listing does not hit PostgreSQL on every request.
package timeline

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	key = "timeline:recent"
	// capacity bounds the set; older members are trimmed on every add.
	capacity = 500
	ttl      = 30 * 24 * time.Hour
)

// Entry is one post in the timeline.
type Entry struct {
	PostID    string
	CreatedAt time.Time
}

// Redis is a recent-posts timeline backed by a sorted set scored by the
// creation time in milliseconds.
type Redis struct {
	client redis.Cmdable
}

// NewRedis wraps client.
func NewRedis(client redis.Cmdable) *Redis {
	return &Redis{client: client}
}

// Add inserts entries and trims the set to its capacity.
func (r *Redis) Add(ctx context.Context, entries ...Entry) error {
	if len(entries) == 0 {
		return nil
	}
	members := make([]redis.Z, 0, len(entries))
	for _, e := range entries {
		members = append(members, redis.Z{Score: float64(e.CreatedAt.UnixMilli()), Member: e.PostID})
	}
	pipe := r.client.Pipeline()
	pipe.ZAdd(ctx, key, members...)
	pipe.ZRemRangeByRank(ctx, key, 0, -capacity-1)
	pipe.Expire(ctx, key, ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("timeline add: %w", err)
	}
	return nil
}

// Remove drops a post from the timeline.
func (r *Redis) Remove(ctx context.Context, postID string) error {
	if err := r.client.ZRem(ctx, key, postID).Err(); err != nil {
		return fmt.Errorf("timeline remove: %w", err)
	}
	return nil
}

// Recent returns up to limit post ids, newest first.
func (r *Redis) Recent(ctx context.Context, limit int) ([]string, error) {
	if limit <= 0 {
		return nil, nil
	}
	ids, err := r.client.ZRevRange(ctx, key, 0, int64(limit-1)).Result()
	if err != nil {
		return nil, fmt.Errorf("timeline recent: %w", err)
	}
	return ids, nil
}

// Replace swaps the whole timeline for entries.
func (r *Redis) Replace(ctx context.Context, entries ...Entry) error {
	if err := r.client.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("timeline reset: %w", err)
	}
	return r.Add(ctx, entries...)
}

package storage

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/couplegram/couplegram/internal/cache"
)

// FeedKeys are the listings marked stale by the auto refresher. The
// infinite feed is left alone so that loaded pages survive.
var FeedKeys = []cache.Key{
	cache.NewKey(cache.OpRecentPosts),
	cache.NewKey(cache.OpUsers),
}

// StartAutoRefresh marks keys stale every interval until ctx is done, so
// the next read of a feed refetches it. It returns at once.
func StartAutoRefresh(ctx context.Context, c *cache.Coordinator, every time.Duration, log *zap.Logger, keys ...cache.Key) {
	if len(keys) == 0 {
		keys = FeedKeys
	}
	go func() {
		t := time.NewTicker(every)
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C:
				for _, k := range keys {
					c.InvalidatePrefix(k)
				}
				log.Debug("feeds marked stale", zap.Int("keys", len(keys)))
			}
		}
	}()
}

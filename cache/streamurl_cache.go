package cache

import (
	"context"
	"time"

	"github.com/go-redis/redis/v8"

	"syncfm/core/musicapi"
	"syncfm/logger"
)

// streamURLTTL is short on purpose: upstream URLs are signed and expire.
const streamURLTTL = 10 * time.Minute

const streamURLKeyPrefix = "streamurl:"

// StreamURLCache caches resolved stream URLs in redis in front of another
// resolver. Redis being down degrades it to a pass-through; resolution never
// fails because of the cache.
type StreamURLCache struct {
	rdb  *redis.Client
	next musicapi.Resolver
	ttl  time.Duration
}

// NewStreamURLCache wraps a resolver with a redis-backed cache.
func NewStreamURLCache(rdb *redis.Client, next musicapi.Resolver) *StreamURLCache {
	return &StreamURLCache{rdb: rdb, next: next, ttl: streamURLTTL}
}

// Resolve returns the cached URL when present, otherwise resolves through
// and stores the result.
func (c *StreamURLCache) Resolve(ctx context.Context, songID string) (string, error) {
	key := streamURLKeyPrefix + songID

	if c.rdb != nil {
		cached, err := c.rdb.Get(ctx, key).Result()
		switch {
		case err == nil:
			logger.Debug("stream url cache hit", logger.String("songId", songID))
			return cached, nil
		case err != redis.Nil:
			logger.Warn("stream url cache read failed",
				logger.ErrorField(err),
				logger.String("songId", songID))
		}
	}

	streamURL, err := c.next.Resolve(ctx, songID)
	if err != nil {
		return "", err
	}

	if c.rdb != nil {
		if err := c.rdb.Set(ctx, key, streamURL, c.ttl).Err(); err != nil {
			logger.Warn("stream url cache write failed",
				logger.ErrorField(err),
				logger.String("songId", songID))
		}
	}
	return streamURL, nil
}

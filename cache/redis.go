// Package cache holds the redis connection and the caches built on it.
// Room state never touches redis; only derived, re-fetchable data is cached.
package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"

	"syncfm/config"
	"syncfm/logger"
)

// Connect opens and verifies a redis connection.
func Connect(cfg *config.Config) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr(),
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	logger.Info("redis connected", logger.String("addr", cfg.RedisAddr()), logger.Int("db", cfg.RedisDB))
	return rdb, nil
}

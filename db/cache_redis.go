package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"

	"teachprep-server-go/config"
	"teachprep-server-go/logger"
)

const cacheKeyPrefix = "teachprep:intent:" // String: cached intent per input hash

// RedisCache is the shared TTL cache used when REDIS_ADDR is configured, so
// intent results survive restarts and are shared across instances.
type RedisCache struct {
	Client *redis.Client
	log    *logger.Logger
}

// InitializeRedisClient creates and pings a Redis client from config.
func InitializeRedisClient(cfg *config.Config) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})

	if _, err := rdb.Ping(context.Background()).Result(); err != nil {
		return nil, fmt.Errorf("could not connect to Redis at %s: %w", cfg.RedisAddr, err)
	}
	return rdb, nil
}

// NewRedisCache wraps an existing Redis client.
func NewRedisCache(client *redis.Client, log *logger.Logger) *RedisCache {
	return &RedisCache{
		Client: client,
		log:    log.With("service", "RedisCache"),
	}
}

func (c *RedisCache) Get(ctx context.Context, key string) (string, bool) {
	value, err := c.Client.Get(ctx, cacheKeyPrefix+key).Result()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			c.log.Warn("redis get failed", "key", key, "error", err)
		}
		return "", false
	}
	return value, true
}

func (c *RedisCache) Set(ctx context.Context, key, value string, ttl time.Duration) {
	if ttl <= 0 {
		return
	}
	if err := c.Client.Set(ctx, cacheKeyPrefix+key, value, ttl).Err(); err != nil {
		c.log.Warn("redis set failed", "key", key, "error", err)
	}
}

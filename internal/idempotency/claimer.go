// Package idempotency records which webhook deliveries have already been
// handled so that gateway retries are dropped before they reach the ledger.
package idempotency

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"

	"staybook-backend/internal/config"
	"staybook-backend/internal/logger"
)

const keyPrefix = "staybook:webhook:"

type setNX interface {
	SetNX(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.BoolCmd
}

// RedisClaimer claims webhook event ids with SET NX and a TTL
type RedisClaimer struct {
	client setNX
	ttl    time.Duration
}

func NewRedisClaimer(client *redis.Client, ttl time.Duration) *RedisClaimer {
	return &RedisClaimer{client: client, ttl: ttl}
}

// Claim returns true the first time key is seen within the TTL
func (c *RedisClaimer) Claim(ctx context.Context, key string) (bool, error) {
	ok, err := c.client.SetNX(ctx, keyPrefix+key, time.Now().UTC().Format(time.RFC3339), c.ttl).Result()
	if err != nil {
		logger.ExternalServiceResult("redis", "SetNX", err, "key", key)
		return false, err
	}
	return ok, nil
}

// NewRedisClient connects to Redis. It returns nil when Addr is empty or the
// server does not answer a ping; callers then run without the claim cache.
func NewRedisClient(cfg config.RedisConfig) *redis.Client {
	if cfg.Addr == "" {
		return nil
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	logger.ExternalServiceCall("redis", "Ping", "addr", cfg.Addr)
	if err := client.Ping(ctx).Err(); err != nil {
		logger.Warn("Redis unavailable, webhook claims disabled", "addr", cfg.Addr, "error", err)
		_ = client.Close()
		return nil
	}
	return client
}

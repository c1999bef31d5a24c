package cache

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/notafacil/receipt-pipeline/internal/entity"
)

// RedisCache is the deployment-default ResponseCache on a Redis-compatible
// store (Redis, Dragonfly, Valkey).
type RedisCache struct {
	client *redis.Client
	ttl    time.Duration
	log    *slog.Logger
}

// NewRedisCache connects to addr and pings once. A failed ping is logged but
// not fatal: the cache stays best-effort and every operation degrades to a
// miss while the store is unreachable.
func NewRedisCache(addr string, ttl time.Duration, logger *slog.Logger) *RedisCache {
	if logger == nil {
		logger = slog.Default()
	}
	if ttl <= 0 {
		ttl = time.Hour
	}
	client := redis.NewClient(&redis.Options{Addr: addr})
	if err := client.Ping(context.Background()).Err(); err != nil {
		logger.Warn("cache.connect_failed", "addr", addr, "error", err)
	}
	return &RedisCache{client: client, ttl: ttl, log: logger}
}

func (c *RedisCache) Get(ctx context.Context, provider string, images [][]byte) (*entity.ExtractedInvoice, bool) {
	key := Key(provider, images)
	raw, err := c.client.Get(ctx, key).Bytes()
	if err != nil {
		if err != redis.Nil {
			c.log.Warn("cache.get_failed", "provider", provider, "error", err)
		}
		return nil, false
	}
	var inv entity.ExtractedInvoice
	if err := json.Unmarshal(raw, &inv); err != nil {
		c.log.Warn("cache.decode_failed", "provider", provider, "error", err)
		return nil, false
	}
	c.log.Debug("cache.hit", "provider", provider, "key", key)
	return &inv, true
}

func (c *RedisCache) Set(ctx context.Context, provider string, images [][]byte, inv *entity.ExtractedInvoice) {
	if inv == nil {
		return
	}
	raw, err := json.Marshal(inv)
	if err != nil {
		c.log.Warn("cache.encode_failed", "provider", provider, "error", err)
		return
	}
	if err := c.client.Set(ctx, Key(provider, images), raw, c.ttl).Err(); err != nil {
		c.log.Warn("cache.set_failed", "provider", provider, "error", err)
	}
}

func (c *RedisCache) Invalidate(ctx context.Context, provider string, images [][]byte) {
	if err := c.client.Del(ctx, Key(provider, images)).Err(); err != nil {
		c.log.Warn("cache.invalidate_failed", "provider", provider, "error", err)
	}
}

func (c *RedisCache) ClearAll(ctx context.Context) int {
	var removed int
	iter := c.client.Scan(ctx, 0, keyPrefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		if err := c.client.Del(ctx, iter.Val()).Err(); err != nil {
			c.log.Warn("cache.clear_failed", "key", iter.Val(), "error", err)
			continue
		}
		removed++
	}
	if err := iter.Err(); err != nil {
		c.log.Warn("cache.scan_failed", "error", err)
	}
	c.log.Info("cache.cleared", "removed", removed)
	return removed
}

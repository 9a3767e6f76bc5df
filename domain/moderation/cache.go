package moderation

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/soocke/guard-overlay-go/domain/ocr"
)

// VerdictCache memoizes remote verdicts by batch content.
type VerdictCache interface {
	Get(ctx context.Context, key string) (RemoteVerdict, bool)
	Set(ctx context.Context, key string, v RemoteVerdict)
}

// CacheKey hashes the batch texts in order. Boxes are ignored: indices only depend on text order.
func CacheKey(lines []ocr.Line) string {
	h := sha256.New()
	for _, l := range lines {
		h.Write([]byte(l.Text))
		h.Write([]byte{0})
	}
	return hex.EncodeToString(h.Sum(nil))
}

// LRUCache is an in-process cache with per-entry expiry.
type LRUCache struct {
	lru *expirable.LRU[string, RemoteVerdict]
}

func NewLRUCache(size int, ttl time.Duration) *LRUCache {
	if size <= 0 {
		size = 256
	}
	return &LRUCache{lru: expirable.NewLRU[string, RemoteVerdict](size, nil, ttl)}
}

func (c *LRUCache) Get(_ context.Context, key string) (RemoteVerdict, bool) {
	return c.lru.Get(key)
}

func (c *LRUCache) Set(_ context.Context, key string, v RemoteVerdict) {
	c.lru.Add(key, v)
}

func (c *LRUCache) Len() int { return c.lru.Len() }

// RedisCache shares verdicts between instances.
type RedisCache struct {
	client *redis.Client
	ttl    time.Duration
	prefix string
	logger *slog.Logger
}

// NewRedisCache connects and pings the server.
func NewRedisCache(ctx context.Context, url string, ttl time.Duration, logger *slog.Logger) (*RedisCache, error) {
	opt, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("redis url: %w", err)
	}
	client := redis.NewClient(opt)
	pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return &RedisCache{client: client, ttl: ttl, prefix: "guard:verdict:", logger: logger}, nil
}

func (c *RedisCache) Get(ctx context.Context, key string) (RemoteVerdict, bool) {
	raw, err := c.client.Get(ctx, c.prefix+key).Bytes()
	if err != nil {
		if err != redis.Nil && c.logger != nil {
			c.logger.Debug("redis get", "error", err)
		}
		return RemoteVerdict{}, false
	}
	var v RemoteVerdict
	if err := json.Unmarshal(raw, &v); err != nil {
		return RemoteVerdict{}, false
	}
	return v, true
}

func (c *RedisCache) Set(ctx context.Context, key string, v RemoteVerdict) {
	raw, err := json.Marshal(v)
	if err != nil {
		return
	}
	if err := c.client.Set(ctx, c.prefix+key, raw, c.ttl).Err(); err != nil && c.logger != nil {
		c.logger.Debug("redis set", "error", err)
	}
}

func (c *RedisCache) Close() error { return c.client.Close() }

// TieredCache checks a local cache before a shared one and backfills on hit.
type TieredCache struct {
	Local  VerdictCache
	Shared VerdictCache
}

func (t TieredCache) Get(ctx context.Context, key string) (RemoteVerdict, bool) {
	if v, ok := t.Local.Get(ctx, key); ok {
		return v, true
	}
	if t.Shared == nil {
		return RemoteVerdict{}, false
	}
	v, ok := t.Shared.Get(ctx, key)
	if ok {
		t.Local.Set(ctx, key, v)
	}
	return v, ok
}

func (t TieredCache) Set(ctx context.Context, key string, v RemoteVerdict) {
	t.Local.Set(ctx, key, v)
	if t.Shared != nil {
		t.Shared.Set(ctx, key, v)
	}
}

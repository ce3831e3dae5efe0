// Package cache provides a Redis read-through cache for the public
// open-slots pages, the one hot read path exposed without authentication.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/slotlinehq/slotline/internal/scheduling/application/queries"
	"github.com/redis/go-redis/v9"
)

// DefaultPageTTL bounds staleness of a cached page. Claims invalidate
// eagerly; the TTL only covers missed invalidations.
const DefaultPageTTL = 30 * time.Second

// Store is the subset of the redis client the cache needs.
type Store interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value any, expiration time.Duration) *redis.StatusCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
}

// OpenSlotsReader is the read side the cache decorates.
type OpenSlotsReader interface {
	Handle(ctx context.Context, query queries.GetOpenSlotsQuery) (*queries.OpenSlotsPageDTO, error)
}

// RedisOpenSlotsCache is a read-through decorator over the open-slots query.
// Redis being unavailable degrades to the underlying reader, never to an error.
type RedisOpenSlotsCache struct {
	store  Store
	inner  OpenSlotsReader
	ttl    time.Duration
	logger *slog.Logger
}

// NewRedisOpenSlotsCache creates a cache over the given reader.
func NewRedisOpenSlotsCache(store Store, inner OpenSlotsReader, ttl time.Duration, logger *slog.Logger) *RedisOpenSlotsCache {
	if ttl <= 0 {
		ttl = DefaultPageTTL
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &RedisOpenSlotsCache{store: store, inner: inner, ttl: ttl, logger: logger}
}

func pageKey(token string) string {
	return "openslots:page:" + token
}

// Handle returns the cached page when fresh, otherwise reads through and
// caches the result. Error results are never cached.
func (c *RedisOpenSlotsCache) Handle(ctx context.Context, query queries.GetOpenSlotsQuery) (*queries.OpenSlotsPageDTO, error) {
	key := pageKey(query.PageToken)

	cached, err := c.store.Get(ctx, key).Bytes()
	if err == nil {
		if dto := c.decodeFresh(ctx, key, cached); dto != nil {
			return dto, nil
		}
	} else if !errors.Is(err, redis.Nil) {
		c.logger.Warn("open slots cache read failed", slog.String("error", err.Error()))
	}

	dto, err := c.inner.Handle(ctx, query)
	if err != nil {
		return nil, err
	}

	payload, err := json.Marshal(dto)
	if err == nil {
		if err := c.store.Set(ctx, key, payload, c.ttl).Err(); err != nil {
			c.logger.Warn("open slots cache write failed", slog.String("error", err.Error()))
		}
	}
	return dto, nil
}

// decodeFresh returns the cached page only while it is still valid. Pages
// that expired inside the cache TTL, and entries that fail to decode, are
// dropped so the reader decides the outcome.
func (c *RedisOpenSlotsCache) decodeFresh(ctx context.Context, key string, cached []byte) *queries.OpenSlotsPageDTO {
	var dto queries.OpenSlotsPageDTO
	if err := json.Unmarshal(cached, &dto); err != nil {
		c.store.Del(ctx, key)
		return nil
	}
	if !time.Now().UTC().Before(dto.ExpiresAt) {
		c.store.Del(ctx, key)
		return nil
	}
	return &dto
}

// Invalidate drops the cached page for a token, typically after a claim.
func (c *RedisOpenSlotsCache) Invalidate(ctx context.Context, token string) {
	if err := c.store.Del(ctx, pageKey(token)).Err(); err != nil {
		c.logger.Warn("open slots cache invalidation failed",
			slog.String("error", err.Error()))
	}
}

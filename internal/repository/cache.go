package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/fathimasithara01/chat-relay/internal/domain"
)

// Cached serves pages from redis. Every insert bumps a generation counter that
// is part of each page key, so all cached pages go stale at once. Redis errors
// fall through to the wrapped repository.
type Cached struct {
	next   Repository
	rdb    redis.UniversalClient
	prefix string
	ttl    time.Duration
	log    *zap.Logger
}

func NewCached(next Repository, rdb redis.UniversalClient, prefix string, ttl time.Duration, log *zap.Logger) *Cached {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &Cached{next: next, rdb: rdb, prefix: prefix, ttl: ttl, log: log.Named("page-cache")}
}

func (c *Cached) generationKey() string {
	return c.prefix + ":messages:generation"
}

func (c *Cached) pageKey(gen int64, page, perPage int) string {
	return fmt.Sprintf("%s:messages:g%d:page_%d:per_%d", c.prefix, gen, page, perPage)
}

func (c *Cached) Insert(ctx context.Context, user, msg string, ts int64) (int64, error) {
	id, err := c.next.Insert(ctx, user, msg, ts)
	if err != nil {
		return 0, err
	}
	if err := c.rdb.Incr(ctx, c.generationKey()).Err(); err != nil {
		c.log.Warn("cache invalidation failed", zap.Error(err))
	}
	return id, nil
}

func (c *Cached) Paginate(ctx context.Context, page, perPage int) (domain.Page, error) {
	page, perPage = domain.NormalizePage(page, perPage)

	gen, err := c.rdb.Get(ctx, c.generationKey()).Int64()
	if err != nil && !errors.Is(err, redis.Nil) {
		c.log.Warn("cache generation read failed", zap.Error(err))
		return c.next.Paginate(ctx, page, perPage)
	}
	key := c.pageKey(gen, page, perPage)

	raw, err := c.rdb.Get(ctx, key).Bytes()
	switch {
	case err == nil:
		var p domain.Page
		if err := json.Unmarshal(raw, &p); err == nil {
			return p, nil
		}
		c.log.Warn("dropping undecodable cache entry", zap.String("key", key))
	case !errors.Is(err, redis.Nil):
		c.log.Warn("cache read failed", zap.String("key", key), zap.Error(err))
	}

	p, err := c.next.Paginate(ctx, page, perPage)
	if err != nil {
		return p, err
	}
	if raw, err := json.Marshal(p); err == nil {
		if err := c.rdb.Set(ctx, key, raw, c.ttl).Err(); err != nil {
			c.log.Warn("cache write failed", zap.String("key", key), zap.Error(err))
		}
	}
	return p, nil
}

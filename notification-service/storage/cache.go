package storage

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"
)

const (
	unreadCachePrefix = "nu"
	// unreadGenPrefix keys a counter bumped on every invalidation. A loaded
	// value is only stored if the generation did not move while it was read.
	unreadGenPrefix = "nu:gen"
)

// UnreadCounter is the source of truth behind UnreadCache.
type UnreadCounter interface {
	CountUnread(ctx context.Context, userID string) (int64, error)
}

// UnreadCache keeps unread counters in Redis. Cache failures fall back to the
// counter and are only logged.
type UnreadCache struct {
	counter UnreadCounter
	redis   *redis.Client
	ttl     time.Duration
}

// NewUnreadCache creates an UnreadCache. A non-positive ttl means ten minutes.
func NewUnreadCache(counter UnreadCounter, rc *redis.Client, ttl time.Duration) *UnreadCache {
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return &UnreadCache{counter: counter, redis: rc, ttl: ttl}
}

// CountUnread returns the cached counter of userID, loading it on a miss.
func (c *UnreadCache) CountUnread(ctx context.Context, userID string) (int64, error) {
	key := cacheKey(userID, unreadCachePrefix)
	genKey := cacheKey(userID, unreadGenPrefix)
	entry := log.WithField("user", userID)

	var gen string
	cacheable := true
	vals, err := c.redis.MGet(ctx, key, genKey).Result()
	if err != nil {
		entry.WithError(err).Error("failed to read unread cache entry")
		cacheable = false
	} else {
		gen, _ = vals[1].(string)
		if raw, ok := vals[0].(string); ok {
			if n, perr := strconv.ParseInt(raw, 10, 64); perr == nil {
				return n, nil
			}
			entry.Warn("discarding malformed unread cache entry")
		}
	}

	n, err := c.counter.CountUnread(ctx, userID)
	if err != nil {
		return 0, err
	}
	if cacheable {
		c.store(ctx, entry, key, genKey, gen, n)
	}
	return n, nil
}

// store writes n unless an invalidation happened since gen was read.
func (c *UnreadCache) store(ctx context.Context, entry *log.Entry, key, genKey, gen string, n int64) {
	err := c.redis.Watch(ctx, func(tx *redis.Tx) error {
		current, err := tx.Get(ctx, genKey).Result()
		if err != nil && !errors.Is(err, redis.Nil) {
			return err
		}
		if current != gen {
			return errStaleCount
		}
		_, err = tx.TxPipelined(ctx, func(p redis.Pipeliner) error {
			p.Set(ctx, key, n, c.ttl)
			return nil
		})
		return err
	}, genKey)
	switch {
	case err == nil:
	case errors.Is(err, errStaleCount), errors.Is(err, redis.TxFailedErr):
		entry.Debug("unread count changed while loading, not cached")
	default:
		entry.WithError(err).Error("failed to store unread cache entry")
	}
}

var errStaleCount = errors.New("unread count changed while loading")

// InvalidateUnread drops the cached counter of userID and bumps its
// generation so that loads already in flight do not store an old value.
func (c *UnreadCache) InvalidateUnread(ctx context.Context, userID string) {
	genKey := cacheKey(userID, unreadGenPrefix)
	_, err := c.redis.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.Incr(ctx, genKey)
		p.Expire(ctx, genKey, c.ttl)
		p.Del(ctx, cacheKey(userID, unreadCachePrefix))
		return nil
	})
	if err != nil {
		log.WithError(err).WithField("user", userID).Error("failed to invalidate unread cache entry")
	}
}

func cacheKey(userID, prefix string) string {
	return userID + ":" + prefix
}

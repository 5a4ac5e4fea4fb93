package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/weiawesome/flow-market/internal/domain"
)

// versionTTL keeps idle rooms' version counters from piling up. It only has
// to outlive a single fill.
const versionTTL = 24 * time.Hour

// RedisMessageCache keeps each room's history as a Redis list, one JSON
// message per element, oldest first. An empty history is never cached since
// Redis drops empty lists.
type RedisMessageCache struct {
	rdb    *redis.Client
	prefix string
}

// NewRedisMessageCache dials url (redis://...) and checks the connection.
func NewRedisMessageCache(url, prefix string) (*RedisMessageCache, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("history cache: %w", err)
	}
	rdb := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("history cache: ping: %w", err)
	}
	return &RedisMessageCache{rdb: rdb, prefix: prefix}, nil
}

// Room names are opaque, so lists and versions live under separate namespaces.
func (c *RedisMessageCache) listKey(room string) string {
	return c.prefix + ":list:" + room
}

func (c *RedisMessageCache) versionKey(room string) string {
	return c.prefix + ":ver:" + room
}

func (c *RedisMessageCache) Get(ctx context.Context, room string) ([]domain.Message, error) {
	items, err := c.rdb.LRange(ctx, c.listKey(room), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("history cache: read %s: %w", room, err)
	}
	if len(items) == 0 {
		return nil, ErrCacheMiss
	}

	messages := make([]domain.Message, len(items))
	for i, item := range items {
		if err := json.Unmarshal([]byte(item), &messages[i]); err != nil {
			return nil, fmt.Errorf("history cache: decode %s: %w", room, err)
		}
	}
	return messages, nil
}

// Version returns the room's invalidation counter, 0 if it was never invalidated.
func (c *RedisMessageCache) Version(ctx context.Context, room string) (int64, error) {
	v, err := c.rdb.Get(ctx, c.versionKey(room)).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("history cache: version %s: %w", room, err)
	}
	return v, nil
}

// Set replaces the room's list in one transaction, provided the version key
// still holds version. Otherwise it returns ErrStaleVersion and writes nothing.
func (c *RedisMessageCache) Set(ctx context.Context, room string, version int64, messages []domain.Message, ttl time.Duration) error {
	if len(messages) == 0 {
		return nil
	}

	items := make([]interface{}, len(messages))
	for i := range messages {
		data, err := json.Marshal(&messages[i])
		if err != nil {
			return fmt.Errorf("history cache: encode %s: %w", room, err)
		}
		items[i] = data
	}

	key, vkey := c.listKey(room), c.versionKey(room)
	err := c.rdb.Watch(ctx, func(tx *redis.Tx) error {
		cur, err := tx.Get(ctx, vkey).Int64()
		if err != nil && !errors.Is(err, redis.Nil) {
			return err
		}
		if cur != version {
			return ErrStaleVersion
		}

		_, err = tx.TxPipelined(ctx, func(p redis.Pipeliner) error {
			p.Del(ctx, key)
			p.RPush(ctx, key, items...)
			if ttl > 0 {
				p.Expire(ctx, key, ttl)
			}
			return nil
		})
		return err
	}, vkey)

	switch {
	case err == nil:
		return nil
	case errors.Is(err, ErrStaleVersion), errors.Is(err, redis.TxFailedErr):
		return ErrStaleVersion
	default:
		return fmt.Errorf("history cache: write %s: %w", room, err)
	}
}

func (c *RedisMessageCache) Invalidate(ctx context.Context, room string) error {
	vkey := c.versionKey(room)
	_, err := c.rdb.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.Incr(ctx, vkey)
		p.Expire(ctx, vkey, versionTTL)
		p.Del(ctx, c.listKey(room))
		return nil
	})
	if err != nil {
		return fmt.Errorf("history cache: drop %s: %w", room, err)
	}
	return nil
}

func (c *RedisMessageCache) Close() error {
	return c.rdb.Close()
}

package redisx

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

func New(addr string) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:         addr,
		DialTimeout:  2 * time.Second,
		ReadTimeout:  2 * time.Second,
		WriteTimeout: 2 * time.Second,
	})
}

// Cache holds the create-order idempotency shortcut and the order status
// cache. The database stays the source of truth for both.
type Cache struct {
	RDB *redis.Client
}

func (c *Cache) LookupOrder(ctx context.Context, customerID, idemKey string) (string, bool, error) {
	id, err := c.RDB.Get(ctx, fmt.Sprintf(KeyIdemOrderCreate, customerID, idemKey)).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return id, true, nil
}

func (c *Cache) RememberOrder(ctx context.Context, customerID, idemKey, orderID string) error {
	return c.RDB.Set(ctx, fmt.Sprintf(KeyIdemOrderCreate, customerID, idemKey), orderID, TTLIdempotency).Err()
}

// The status entry is a hash {rev, body}. A put older than the stored rev
// is ignored, and a drop leaves rev behind without a body, so a reader that
// loaded the order before a transition cannot cache what it read.
var (
	putStatusScript = redis.NewScript(`
local cur = redis.call('HGET', KEYS[1], 'rev')
if cur and tonumber(cur) > tonumber(ARGV[1]) then
	return 0
end
redis.call('HSET', KEYS[1], 'rev', ARGV[1], 'body', ARGV[2])
redis.call('PEXPIRE', KEYS[1], ARGV[3])
return 1`)

	dropStatusScript = redis.NewScript(`
local cur = redis.call('HGET', KEYS[1], 'rev')
if cur and tonumber(cur) > tonumber(ARGV[1]) then
	return 0
end
redis.call('HSET', KEYS[1], 'rev', ARGV[1])
redis.call('HDEL', KEYS[1], 'body')
redis.call('PEXPIRE', KEYS[1], ARGV[2])
return 1`)
)

func (c *Cache) GetStatus(ctx context.Context, orderID string) ([]byte, bool, error) {
	b, err := c.RDB.HGet(ctx, fmt.Sprintf(KeyOrderStatus, orderID), "body").Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return b, true, nil
}

// PutStatus caches body for revision unless a newer revision was seen.
func (c *Cache) PutStatus(ctx context.Context, orderID string, revision int64, body []byte) error {
	return putStatusScript.Run(ctx, c.RDB, []string{fmt.Sprintf(KeyOrderStatus, orderID)},
		revision, body, TTLStatusCache.Milliseconds()).Err()
}

// DropStatus invalidates the cached status and fences out puts older than
// revision.
func (c *Cache) DropStatus(ctx context.Context, orderID string, revision int64) error {
	return dropStatusScript.Run(ctx, c.RDB, []string{fmt.Sprintf(KeyOrderStatus, orderID)},
		revision, TTLStatusCache.Milliseconds()).Err()
}

// Dedup marks consumed event ids per service.
type Dedup struct {
	RDB     *redis.Client
	Service string
}

// Claim returns true for the first caller of an id within TTLDedup.
func (d *Dedup) Claim(ctx context.Context, id string) (bool, error) {
	return d.RDB.SetNX(ctx, fmt.Sprintf(KeyDedup, d.Service, id), "1", TTLDedup).Result()
}

func (d *Dedup) Release(ctx context.Context, id string) error {
	return d.RDB.Del(ctx, fmt.Sprintf(KeyDedup, d.Service, id)).Err()
}

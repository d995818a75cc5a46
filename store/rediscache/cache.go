// Package rediscache implements compliance.Cache on Redis so that every API
// replica shares one history cache and one invalidation.
package rediscache

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/sirupsen/logrus"

	"github.com/warp/adherence-engine/compliance"
)

const defaultPrefix = "adherence:history:"

// versionTTL outlives any single history read by a wide margin; an expired
// version key reads as 0 again.
const versionTTL = 24 * time.Hour

var errStaleFill = errors.New("cache fill raced an invalidation")

// Cache stores reconciled record lists as JSON under one key per
// client+plan. Redis failures degrade to cache misses on reads.
type Cache struct {
	client *redis.Client
	ttl    time.Duration
	prefix string
	log    logrus.FieldLogger
}

// Options configures a Cache.
type Options struct {
	TTL    time.Duration
	Prefix string
	Log    logrus.FieldLogger
}

func New(client *redis.Client, opts Options) *Cache {
	if opts.Prefix == "" {
		opts.Prefix = defaultPrefix
	}
	if opts.Log == nil {
		opts.Log = logrus.StandardLogger()
	}
	return &Cache{
		client: client,
		ttl:    opts.TTL,
		prefix: opts.Prefix,
		log:    opts.Log.WithField("component", "rediscache"),
	}
}

// Dial connects to addr and verifies the connection.
func Dial(ctx context.Context, addr string, opts Options) (*Cache, error) {
	client := redis.NewClient(&redis.Options{Addr: addr})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, err
	}
	return New(client, opts), nil
}

// Key returns the Redis key for a client+plan history.
func (c *Cache) Key(key compliance.PairKey) string {
	return c.prefix + key.String()
}

func (c *Cache) Get(ctx context.Context, key compliance.PairKey) ([]compliance.Record, bool) {
	data, err := c.client.Get(ctx, c.Key(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false
	}
	if err != nil {
		c.log.WithError(err).WithField("key", key.String()).Warn("cache read failed")
		return nil, false
	}
	var records []compliance.Record
	if err := json.Unmarshal(data, &records); err != nil {
		c.log.WithError(err).WithField("key", key.String()).Warn("cache entry unreadable")
		return nil, false
	}
	return records, true
}

// Version returns the invalidation counter of key; 0 when never invalidated
// or unreadable.
func (c *Cache) Version(ctx context.Context, key compliance.PairKey) uint64 {
	v, err := c.client.Get(ctx, c.versionKey(key)).Uint64()
	if err != nil && !errors.Is(err, redis.Nil) {
		c.log.WithError(err).WithField("key", key.String()).Warn("cache version read failed")
	}
	return v
}

// Set writes records only while the version key still holds version. The
// check and the write run under WATCH so an Invalidate in between aborts the
// transaction.
func (c *Cache) Set(ctx context.Context, key compliance.PairKey, records []compliance.Record, version uint64) {
	data, err := json.Marshal(records)
	if err != nil {
		c.log.WithError(err).Warn("cache encode failed")
		return
	}
	verKey := c.versionKey(key)
	err = c.client.Watch(ctx, func(tx *redis.Tx) error {
		current, err := tx.Get(ctx, verKey).Uint64()
		if err != nil && !errors.Is(err, redis.Nil) {
			return err
		}
		if current != version {
			return errStaleFill
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, c.Key(key), data, c.ttl)
			return nil
		})
		return err
	}, verKey)
	switch {
	case err == nil:
	case errors.Is(err, errStaleFill), errors.Is(err, redis.TxFailedErr):
		c.log.WithField("key", key.String()).Debug("cache fill skipped after invalidation")
	default:
		c.log.WithError(err).WithField("key", key.String()).Warn("cache write failed")
	}
}

// Invalidate drops the entry and bumps the version key so in-flight fills
// are discarded.
func (c *Cache) Invalidate(ctx context.Context, key compliance.PairKey) error {
	verKey := c.versionKey(key)
	_, err := c.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, c.Key(key))
		pipe.Incr(ctx, verKey)
		pipe.Expire(ctx, verKey, versionTTL)
		return nil
	})
	return err
}

func (c *Cache) versionKey(key compliance.PairKey) string {
	return c.prefix + "version:" + key.String()
}

// Close releases the underlying client.
func (c *Cache) Close() error {
	return c.client.Close()
}

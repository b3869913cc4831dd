package cache

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"jobagg-engine/internal/domain"
	"jobagg-engine/internal/scrape/util"

	"github.com/redis/go-redis/v9"
)

const redisPrefix = "jobagg:agg:"

type RedisOptions struct {
	Addr     string
	Password string
	DB       int
	Now      func() time.Time
}

// Redis shares the cache between engine instances. Expiry is left to Redis;
// the stored entry carries its own timestamps for freshness.
type Redis struct {
	client *redis.Client
	now    func() time.Time
}

func NewRedis(opts RedisOptions) *Redis {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	client := redis.NewClient(&redis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	})
	return &Redis{client: client, now: opts.Now}
}

func redisKey(fp domain.Fingerprint) string {
	return redisPrefix + util.HashString(string(fp))
}

func (c *Redis) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

func (c *Redis) Get(ctx context.Context, fp domain.Fingerprint) (domain.CacheEntry, bool, error) {
	b, err := c.client.Get(ctx, redisKey(fp)).Bytes()
	if errors.Is(err, redis.Nil) {
		return domain.CacheEntry{}, false, nil
	}
	if err != nil {
		return domain.CacheEntry{}, false, err
	}
	var e domain.CacheEntry
	if err := json.Unmarshal(b, &e); err != nil {
		return domain.CacheEntry{}, false, err
	}
	if e.Fingerprint != fp || e.Expired(c.now()) {
		return domain.CacheEntry{}, false, nil
	}
	return e, true, nil
}

func (c *Redis) Set(ctx context.Context, fp domain.Fingerprint, r domain.AggregateResult, ttl time.Duration) error {
	e := newEntry(fp, r, c.now(), ttl)
	b, err := json.Marshal(e)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, redisKey(fp), b, e.ExpiresAt.Sub(e.StoredAt)).Err()
}

func (c *Redis) Invalidate(ctx context.Context, fp domain.Fingerprint) error {
	return c.client.Del(ctx, redisKey(fp)).Err()
}

func (c *Redis) Close() error {
	return c.client.Close()
}

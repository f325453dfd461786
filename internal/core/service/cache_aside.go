package service

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/rl1809/shop-seckill/internal/core/domain"
	"github.com/rl1809/shop-seckill/internal/port"
)

const (
	cacheKeyPrefix  = "cache:"
	nullMarkerField = "__null__"
)

// CachePolicy controls entry lifetimes and how long a reader waits for
// another request to rebuild a missing entry.
type CachePolicy struct {
	TTL         time.Duration
	NullTTL     time.Duration
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
}

func DefaultCachePolicy() CachePolicy {
	return CachePolicy{
		TTL:         30 * time.Minute,
		NullTTL:     2 * time.Minute,
		MaxAttempts: 20,
		BaseDelay:   20 * time.Millisecond,
		MaxDelay:    500 * time.Millisecond,
	}
}

// Loader reads a record from the backing store, returning (nil, nil) when it
// does not exist.
type Loader[T any] func(ctx context.Context, id int64) (*T, error)

// CacheAside is a read-through, invalidate-on-write cache of records stored
// as Redis hashes.
//
// Absent ids are remembered with a short-lived null marker so repeated
// lookups never reach the backing store. Only the request holding the
// rebuild lock for an id reloads it; everyone else backs off and re-reads
// the cache.
type CacheAside[T any] struct {
	name   string
	cache  port.CacheRepository
	locker port.Locker
	load   Loader[T]
	encode func(T) map[string]string
	decode func(map[string]string) (T, error)
	policy CachePolicy
}

func NewCacheAside[T any](
	name string,
	cache port.CacheRepository,
	locker port.Locker,
	load Loader[T],
	encode func(T) map[string]string,
	decode func(map[string]string) (T, error),
	policy CachePolicy,
) *CacheAside[T] {
	if policy.MaxAttempts <= 0 {
		policy.MaxAttempts = 1
	}
	return &CacheAside[T]{
		name:   name,
		cache:  cache,
		locker: locker,
		load:   load,
		encode: encode,
		decode: decode,
		policy: policy,
	}
}

// Key returns the cache key of id, e.g. cache:shop:42.
func (c *CacheAside[T]) Key(id int64) string {
	return cacheKeyPrefix + c.name + ":" + strconv.FormatInt(id, 10)
}

func (c *CacheAside[T]) rebuildResource(id int64) string {
	return c.name + ":" + strconv.FormatInt(id, 10)
}

// Get returns the record for id or domain.ErrNotFound.
func (c *CacheAside[T]) Get(ctx context.Context, id int64) (*T, error) {
	delay := c.policy.BaseDelay

	for attempt := 1; ; attempt++ {
		rec, hit, err := c.lookup(ctx, id)
		if err != nil {
			return nil, err
		}
		if hit {
			if rec == nil {
				return nil, domain.ErrNotFound
			}
			return rec, nil
		}

		owner := uuid.NewString()
		ok, err := c.locker.Acquire(ctx, c.rebuildResource(id), owner)
		if err != nil {
			return nil, infraError("acquire rebuild lock", err)
		}
		if ok {
			return c.rebuild(ctx, id, owner)
		}

		if attempt >= c.policy.MaxAttempts {
			return nil, fmt.Errorf("rebuild %s after %d attempts: %w", c.Key(id), attempt, domain.ErrContention)
		}
		if err := sleepContext(ctx, delay); err != nil {
			return nil, fmt.Errorf("wait for %s rebuild: %w: %w", c.Key(id), domain.ErrContention, err)
		}
		delay = min(delay*2, c.policy.MaxDelay)
	}
}

// Invalidate drops the cached entry, including a null marker.
func (c *CacheAside[T]) Invalidate(ctx context.Context, id int64) error {
	if err := c.cache.Delete(ctx, c.Key(id)); err != nil {
		return infraError("invalidate "+c.Key(id), err)
	}
	return nil
}

// lookup reports hit=true for both a cached record and a null marker; the
// latter comes back as a nil record.
func (c *CacheAside[T]) lookup(ctx context.Context, id int64) (*T, bool, error) {
	fields, err := c.cache.GetHash(ctx, c.Key(id))
	if err != nil {
		return nil, false, infraError("read "+c.Key(id), err)
	}
	if len(fields) == 0 {
		return nil, false, nil
	}
	if _, ok := fields[nullMarkerField]; ok {
		return nil, true, nil
	}

	rec, err := c.decode(fields)
	if err != nil {
		// Unreadable entries are rebuilt like a miss.
		log.Warn().Err(err).Str("key", c.Key(id)).Msg("discarding undecodable cache entry")
		return nil, false, nil
	}
	return &rec, true, nil
}

func (c *CacheAside[T]) rebuild(ctx context.Context, id int64, owner string) (*T, error) {
	resource := c.rebuildResource(id)
	defer func() {
		if _, err := c.locker.Release(context.WithoutCancel(ctx), resource, owner); err != nil {
			log.Error().Err(err).Str("resource", resource).Msg("release rebuild lock")
		}
	}()

	// A previous holder may have filled the entry between our miss and our
	// acquire.
	rec, hit, err := c.lookup(ctx, id)
	if err != nil {
		return nil, err
	}
	if hit {
		if rec == nil {
			return nil, domain.ErrNotFound
		}
		return rec, nil
	}

	rec, err = c.load(ctx, id)
	if err != nil {
		return nil, infraError("load "+c.name, err)
	}

	key := c.Key(id)
	if rec == nil {
		if err := c.cache.PutHash(ctx, key, map[string]string{nullMarkerField: "1"}, c.policy.NullTTL); err != nil {
			return nil, infraError("write null marker "+key, err)
		}
		log.Info().Str("key", key).Msg("cached null marker")
		return nil, domain.ErrNotFound
	}

	if err := c.cache.PutHash(ctx, key, c.encode(*rec), c.policy.TTL); err != nil {
		return nil, infraError("write "+key, err)
	}
	return rec, nil
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

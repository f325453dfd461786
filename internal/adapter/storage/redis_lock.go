package storage

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

const lockKeyPrefix = "lock:"

// releaseLockScript deletes the lock only while it still carries the
// caller's token. Returns 1 when deleted, 0 otherwise.
var releaseLockScript = redis.NewScript(`
local key = KEYS[1]
local owner = ARGV[1]

if redis.call('GET', key) == owner then
	return redis.call('DEL', key)
end

return 0
`)

// RedisLock implements port.Locker on top of SET NX with a TTL ceiling.
type RedisLock struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisLock(client *redis.Client, ttl time.Duration) *RedisLock {
	return &RedisLock{client: client, ttl: ttl}
}

func (l *RedisLock) Acquire(ctx context.Context, resource, owner string) (bool, error) {
	return l.client.SetNX(ctx, lockKeyPrefix+resource, owner, l.ttl).Result()
}

func (l *RedisLock) Release(ctx context.Context, resource, owner string) (bool, error) {
	result, err := releaseLockScript.Run(ctx, l.client, []string{lockKeyPrefix + resource}, owner).Int()
	if err != nil {
		return false, err
	}

	return result == 1, nil
}

func (l *RedisLock) TTL() time.Duration {
	return l.ttl
}

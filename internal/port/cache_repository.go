package port

import (
	"context"
	"time"
)

// CacheRepository is the subset of the key-value store used by the cache and
// session layers. A missing key is never an error: GetHash returns an empty
// map and GetRange an empty slice.
type CacheRepository interface {
	// GetHash returns all fields stored under key
	GetHash(ctx context.Context, key string) (map[string]string, error)

	// PutHash replaces the hash at key and sets its TTL in one transaction
	PutHash(ctx context.Context, key string, fields map[string]string, ttl time.Duration) error

	// PutList replaces the list at key with values and sets its TTL in one
	// transaction
	PutList(ctx context.Context, key string, values []string, ttl time.Duration) error

	// GetRange returns the whole list stored at key
	GetRange(ctx context.Context, key string) ([]string, error)

	// Expire refreshes the TTL, returns false if the key does not exist
	Expire(ctx context.Context, key string, ttl time.Duration) (bool, error)

	// Delete removes keys
	Delete(ctx context.Context, keys ...string) error
}

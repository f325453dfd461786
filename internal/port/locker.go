package port

import "context"

// Locker is a non-blocking distributed mutex.
type Locker interface {
	// Acquire takes resource for owner, returns false if someone else holds it
	Acquire(ctx context.Context, resource, owner string) (bool, error)

	// Release frees resource only if owner still holds it, returns whether a
	// lock was deleted
	Release(ctx context.Context, resource, owner string) (bool, error)
}

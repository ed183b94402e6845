// Package store defines the counter store the flash-sale core coordinates
// through.  The store is the single source of truth for stock counters,
// participation records and lock keys; implementations must provide per-key
// atomicity but are not expected to offer multi-key transactions.
package store

import (
	"context"
	"time"
)

// Store is the set of key-value operations the flash-sale core consumes.
// Implementations must be safe for concurrent use.
//
// Increment and Decrement treat an absent key as 0, so a decrement of a
// missing counter yields -1.  Callers that care about initialization must
// create the key first via SetWithTTL or SetIfAbsent.
type Store interface {
	// Get returns the value for key.  The second return value reports
	// whether the key exists.
	Get(ctx context.Context, key string) (string, bool, error)

	// SetWithTTL stores value under key.  A ttl of zero means no expiry.
	SetWithTTL(ctx context.Context, key, value string, ttl time.Duration) error

	// SetIfAbsent stores value under key only when the key does not exist.
	// It returns true when the value was stored by this call.
	SetIfAbsent(ctx context.Context, key, value string, ttl time.Duration) (bool, error)

	// Exists reports whether key is present and unexpired.
	Exists(ctx context.Context, key string) (bool, error)

	// Increment atomically adds 1 to the integer stored at key and
	// returns the new value.
	Increment(ctx context.Context, key string) (int64, error)

	// Decrement atomically subtracts 1 from the integer stored at key and
	// returns the new value.
	Decrement(ctx context.Context, key string) (int64, error)

	// Expire sets a new ttl on an existing key.  It returns false when the
	// key does not exist.
	Expire(ctx context.Context, key string, ttl time.Duration) (bool, error)

	// CompareAndDelete removes key only when its current value equals
	// expected.  It returns true when the key was removed by this call.
	// This is the ownership-checked release primitive used by the
	// distributed lock.
	CompareAndDelete(ctx context.Context, key, expected string) (bool, error)
}

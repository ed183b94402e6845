// Package lock implements cross-process mutual exclusion on top of the
// counter store.  A lock is a store key holding an opaque holder token with
// a lease ttl; acquisition is set-if-absent and release is an
// ownership-checked compare-and-delete.  The lease bounds how long a crashed
// or stalled holder can block other processes.
package lock

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/iliyamo/flash-sale-service/internal/store"
	"github.com/iliyamo/flash-sale-service/internal/utils"
)

// ErrAcquireTimeout is returned by WithLock when the lock could not be
// obtained within the caller's wait window.  Callers should treat it as a
// normal contention outcome, not a system failure.
var ErrAcquireTimeout = errors.New("lock: acquire timeout")

// CallbackError wraps an error raised by a WithLock callback so that callers
// can tell "the protected work failed" apart from "the lock was never held".
type CallbackError struct {
	Err error
}

func (e *CallbackError) Error() string { return "lock: callback failed: " + e.Err.Error() }
func (e *CallbackError) Unwrap() error { return e.Err }

// DefaultLease is applied when a caller acquires without naming a lease.
// Correctness never depends on the holder releasing in time (see the stock
// compensation in the seckill engine), so a short default is safe.
const DefaultLease = 10 * time.Second

// pollInterval is how often a waiting acquirer re-attempts set-if-absent.
const pollInterval = 20 * time.Millisecond

// handle is the process-local record of an acquired lock.
type handle struct {
	token         string
	leaseDeadline time.Time
}

// Lock provides mutual exclusion keyed by string across every process that
// shares the same store.  Holder tokens are random per acquisition, so a
// lock that outlives its lease and is re-acquired elsewhere cannot be
// released by the stale holder.
type Lock struct {
	store  store.Store
	prefix string

	mu      sync.Mutex
	handles map[string]handle
}

// New returns a Lock that namespaces its keys with prefix.
func New(st store.Store, prefix string) *Lock {
	if prefix == "" {
		prefix = "lock"
	}
	return &Lock{
		store:   st,
		prefix:  prefix,
		handles: make(map[string]handle),
	}
}

func (l *Lock) storeKey(key string) string { return l.prefix + ":" + key }

// TryLock makes a single non-blocking acquisition attempt with the default
// lease.  It returns true iff the lock was free and is now held.
func (l *Lock) TryLock(ctx context.Context, key string) (bool, error) {
	return l.TryLockLease(ctx, key, 0, DefaultLease)
}

// TryLockWait attempts acquisition for up to wait with the default lease.
func (l *Lock) TryLockWait(ctx context.Context, key string, wait time.Duration) (bool, error) {
	return l.TryLockLease(ctx, key, wait, DefaultLease)
}

// TryLockLease attempts acquisition for up to wait.  On success the lock
// self-expires after lease even if never released, so a crashed holder can
// block an activity for at most one lease.
func (l *Lock) TryLockLease(ctx context.Context, key string, wait, lease time.Duration) (bool, error) {
	_, ok, err := l.acquire(ctx, key, wait, lease)
	return ok, err
}

// acquire is the shared acquisition loop.  It returns the holder token so
// the scoped WithLock can release by token even if the process-local handle
// for key has since been replaced by a newer acquisition.
func (l *Lock) acquire(ctx context.Context, key string, wait, lease time.Duration) (string, bool, error) {
	if lease <= 0 {
		lease = DefaultLease
	}
	token, err := utils.RandomToken(16)
	if err != nil {
		return "", false, fmt.Errorf("lock: token: %w", err)
	}

	deadline := time.Now().Add(wait)
	for {
		ok, err := l.store.SetIfAbsent(ctx, l.storeKey(key), token, lease)
		if err != nil {
			return "", false, fmt.Errorf("lock: acquire %q: %w", key, err)
		}
		if ok {
			l.mu.Lock()
			l.handles[key] = handle{token: token, leaseDeadline: time.Now().Add(lease)}
			l.mu.Unlock()
			return token, true, nil
		}
		if wait <= 0 || !time.Now().Add(pollInterval).Before(deadline) {
			return "", false, nil
		}
		select {
		case <-ctx.Done():
			return "", false, ctx.Err()
		case <-time.After(pollInterval):
		}
	}
}

// Unlock releases the lock for key.  Release is ownership-checked twice:
// locally against the recorded handle, and in the store by compare-and-
// delete against the holder token, so a holder whose lease expired cannot
// release a lock already re-acquired by someone else.  Calling Unlock
// without holding the lock logs a warning and is otherwise a no-op.
func (l *Lock) Unlock(ctx context.Context, key string) error {
	l.mu.Lock()
	h, ok := l.handles[key]
	l.mu.Unlock()

	if !ok {
		log.Printf("lock: unlock %q: not held by this process", key)
		return nil
	}
	return l.release(ctx, key, h.token)
}

// release removes the process-local handle and deletes the store key when
// it still carries token.
func (l *Lock) release(ctx context.Context, key, token string) error {
	l.mu.Lock()
	if h, ok := l.handles[key]; ok && h.token == token {
		delete(l.handles, key)
	}
	l.mu.Unlock()

	released, err := l.store.CompareAndDelete(ctx, l.storeKey(key), token)
	if err != nil {
		// The lease will reclaim the key eventually; report the failure,
		// but the lock is no longer considered held locally.
		return fmt.Errorf("lock: release %q: %w", key, err)
	}
	if !released {
		log.Printf("lock: unlock %q: lease expired and lock changed hands", key)
	}
	return nil
}

// WithLock acquires the lock, runs fn and releases on every exit path,
// including a panicking callback.  It returns ErrAcquireTimeout when the
// lock cannot be obtained within wait, and a *CallbackError wrapping fn's
// error when the protected work fails.
func (l *Lock) WithLock(ctx context.Context, key string, wait, lease time.Duration, fn func() error) error {
	token, ok, err := l.acquire(ctx, key, wait, lease)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: %q after %s", ErrAcquireTimeout, key, wait)
	}
	defer func() {
		if err := l.release(ctx, key, token); err != nil {
			log.Printf("lock: deferred release %q: %v", key, err)
		}
	}()

	if err := fn(); err != nil {
		return &CallbackError{Err: err}
	}
	return nil
}

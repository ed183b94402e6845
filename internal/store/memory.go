package store

import (
	"context"
	"strconv"
	"sync"
	"time"
)

// entry is a single stored value with an optional absolute expiry.
type entry struct {
	value     string
	expiresAt time.Time // zero means no expiry
}

func (e entry) expired(now time.Time) bool {
	return !e.expiresAt.IsZero() && !now.Before(e.expiresAt)
}

// MemoryStore is an in-process implementation of Store guarded by a single
// mutex, so every operation is atomic with respect to concurrent callers —
// the same contract the Redis store provides per key.  It backs tests and
// the degraded single-node mode used when Redis is unreachable at startup.
// Expired entries are dropped lazily on access.
type MemoryStore struct {
	mu      sync.Mutex
	entries map[string]entry
	now     func() time.Time // injectable for tests
}

// NewMemoryStore returns an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		entries: make(map[string]entry),
		now:     time.Now,
	}
}

// load returns the live entry for key, dropping it first if expired.
// Callers must hold mu.
func (s *MemoryStore) load(key string) (entry, bool) {
	e, ok := s.entries[key]
	if !ok {
		return entry{}, false
	}
	if e.expired(s.now()) {
		delete(s.entries, key)
		return entry{}, false
	}
	return e, true
}

func (s *MemoryStore) Get(_ context.Context, key string) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.load(key)
	if !ok {
		return "", false, nil
	}
	return e.value, true, nil
}

func (s *MemoryStore) SetWithTTL(_ context.Context, key, value string, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[key] = s.withTTL(value, ttl)
	return nil
}

func (s *MemoryStore) SetIfAbsent(_ context.Context, key, value string, ttl time.Duration) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.load(key); ok {
		return false, nil
	}
	s.entries[key] = s.withTTL(value, ttl)
	return true, nil
}

func (s *MemoryStore) Exists(_ context.Context, key string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.load(key)
	return ok, nil
}

func (s *MemoryStore) Increment(_ context.Context, key string) (int64, error) {
	return s.add(key, 1)
}

func (s *MemoryStore) Decrement(_ context.Context, key string) (int64, error) {
	return s.add(key, -1)
}

func (s *MemoryStore) Expire(_ context.Context, key string, ttl time.Duration) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.load(key)
	if !ok {
		return false, nil
	}
	s.entries[key] = s.withTTL(e.value, ttl)
	return true, nil
}

func (s *MemoryStore) CompareAndDelete(_ context.Context, key, expected string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.load(key)
	if !ok || e.value != expected {
		return false, nil
	}
	delete(s.entries, key)
	return true, nil
}

// add implements Increment/Decrement.  An absent or expired key counts as 0,
// matching Redis INCR/DECR semantics.  A counter created this way carries no
// expiry; the existing expiry is preserved otherwise.
func (s *MemoryStore) add(key string, delta int64) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	var expiresAt time.Time
	if e, ok := s.load(key); ok {
		parsed, err := strconv.ParseInt(e.value, 10, 64)
		if err != nil {
			return 0, err
		}
		n = parsed
		expiresAt = e.expiresAt
	}
	n += delta
	s.entries[key] = entry{value: strconv.FormatInt(n, 10), expiresAt: expiresAt}
	return n, nil
}

func (s *MemoryStore) withTTL(value string, ttl time.Duration) entry {
	e := entry{value: value}
	if ttl > 0 {
		e.expiresAt = s.now().Add(ttl)
	}
	return e
}

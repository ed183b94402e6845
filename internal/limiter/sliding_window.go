package limiter

import (
	"context"
	"fmt"
	"log"
	"strconv"
	"time"

	"github.com/iliyamo/flash-sale-service/internal/store"
)

// SlidingWindow approximates a trailing-window counter with one store key
// per second.  Admit increments the current second's bucket, sums the live
// buckets inside the window and, when the sum overshoots the limit, undoes
// its own increment before rejecting.  Each bucket expires on its own after
// window+1 seconds, so the state never needs a scan or a cleanup pass.
//
// The approximation slack is at most one bucket at the window edges; the
// trade is exactness for O(window) point reads and a single atomic write.
type SlidingWindow struct {
	store  store.Store
	prefix string
	limit  int64
	window time.Duration // rounded down to whole seconds, minimum 1s

	now func() time.Time // injectable for tests
}

// NewSlidingWindow returns a limiter admitting at most limit operations per
// key within any trailing window.
func NewSlidingWindow(st store.Store, prefix string, limit int64, window time.Duration) *SlidingWindow {
	if prefix == "" {
		prefix = "rl:sw"
	}
	if window < time.Second {
		window = time.Second
	}
	return &SlidingWindow{
		store:  st,
		prefix: prefix,
		limit:  limit,
		window: window,
		now:    time.Now,
	}
}

func (s *SlidingWindow) bucketKey(key string, sec int64) string {
	return fmt.Sprintf("%s:%s:%d", s.prefix, key, sec)
}

// Admit implements Limiter.
func (s *SlidingWindow) Admit(ctx context.Context, key string) bool {
	nowSec := s.now().Unix()
	cur := s.bucketKey(key, nowSec)

	count, err := s.store.Increment(ctx, cur)
	if err != nil {
		log.Printf("limiter: sliding window increment %q: %v (failing open)", key, err)
		return true
	}
	if count == 1 {
		// First hit this second; the bucket must not outlive the window
		// it can still contribute to.
		if _, err := s.store.Expire(ctx, cur, s.window+time.Second); err != nil {
			log.Printf("limiter: sliding window expire %q: %v", key, err)
		}
	}

	total := count
	windowSecs := int64(s.window / time.Second)
	for i := int64(1); i < windowSecs; i++ {
		v, ok, err := s.store.Get(ctx, s.bucketKey(key, nowSec-i))
		if err != nil {
			log.Printf("limiter: sliding window read %q: %v (failing open)", key, err)
			return true
		}
		if !ok {
			continue
		}
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			continue
		}
		total += n
	}

	if total > s.limit {
		// Over the limit: this request does not go through, so its own
		// increment must not count against later callers.
		if _, err := s.store.Decrement(ctx, cur); err != nil {
			log.Printf("limiter: sliding window compensation %q: %v", key, err)
		}
		return false
	}
	return true
}

package limiter

import (
	"context"
	"fmt"
	"log"
	"strconv"
	"strings"
	"time"

	"github.com/iliyamo/flash-sale-service/internal/store"
)

// TokenBucket implements the lazy-refill token bucket.  Per key it keeps a
// single store value "tokens|lastRefillMillis"; on each call it tops the
// bucket up from the elapsed time (capped at capacity), debits the requested
// permits when enough tokens remain, and persists the new state.
//
// The read-refill-write sequence is not a compare-and-swap, so two racing
// callers can both observe the same state and the bucket may briefly admit
// more than capacity.  That slack is accepted here: the limiter shields
// capacity in front of the engine's critical section, it is not the oversell
// guard.
type TokenBucket struct {
	store      store.Store
	prefix     string
	capacity   float64
	refillRate float64 // tokens per second
	permits    float64 // tokens debited per admit
	ttl        time.Duration

	now func() time.Time // injectable for tests
}

// NewTokenBucket returns a limiter with the given capacity and refill rate
// in tokens per second.  Each Admit debits one token.  State for an idle key
// expires after ttl.
func NewTokenBucket(st store.Store, prefix string, capacity, refillRate float64, ttl time.Duration) *TokenBucket {
	if prefix == "" {
		prefix = "rl:tb"
	}
	if capacity < 1 {
		capacity = 1
	}
	if refillRate <= 0 {
		refillRate = 1
	}
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return &TokenBucket{
		store:      st,
		prefix:     prefix,
		capacity:   capacity,
		refillRate: refillRate,
		permits:    1,
		ttl:        ttl,
		now:        time.Now,
	}
}

// Admit implements Limiter.
func (t *TokenBucket) Admit(ctx context.Context, key string) bool {
	storeKey := t.prefix + ":" + key
	nowMs := t.now().UnixMilli()

	tokens := t.capacity
	lastMs := nowMs
	raw, ok, err := t.store.Get(ctx, storeKey)
	if err != nil {
		log.Printf("limiter: token bucket read %q: %v (failing open)", key, err)
		return true
	}
	if ok {
		if tk, last, perr := parseBucketState(raw); perr == nil {
			tokens, lastMs = tk, last
		}
		// A corrupt value falls through to a full bucket and is rewritten.
	}

	elapsed := float64(nowMs-lastMs) / 1000.0
	if elapsed > 0 {
		tokens += elapsed * t.refillRate
		if tokens > t.capacity {
			tokens = t.capacity
		}
	}

	allowed := tokens >= t.permits
	if allowed {
		tokens -= t.permits
	}

	state := fmt.Sprintf("%s|%d", strconv.FormatFloat(tokens, 'f', 6, 64), nowMs)
	if err := t.store.SetWithTTL(ctx, storeKey, state, t.ttl); err != nil {
		log.Printf("limiter: token bucket write %q: %v (failing open)", key, err)
		return true
	}
	return allowed
}

func parseBucketState(raw string) (tokens float64, lastMs int64, err error) {
	parts := strings.SplitN(raw, "|", 2)
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("malformed bucket state %q", raw)
	}
	tokens, err = strconv.ParseFloat(parts[0], 64)
	if err != nil {
		return 0, 0, err
	}
	lastMs, err = strconv.ParseInt(parts[1], 10, 64)
	if err != nil {
		return 0, 0, err
	}
	return tokens, lastMs, nil
}

// Package seckill contains the flash-sale engine: the critical section that
// turns many concurrent requests racing for a small fixed stock into at most
// stock successful allocations, with no duplicate participation.
//
// The engine composes three collaborators.  The limiter sheds load before
// any shared state is touched.  The distributed lock serializes attempts per
// activity to keep wasted work down.  The stock counter in the shared store
// is the actual safety mechanism: stock is decremented optimistically and a
// negative result is compensated by incrementing back.  The lock's lease can
// expire mid-critical-section under load, so the compensation check must
// stay even though attempts are normally serialized.
package seckill

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strconv"
	"time"

	"github.com/iliyamo/flash-sale-service/internal/lock"
	"github.com/iliyamo/flash-sale-service/internal/model"
	"github.com/iliyamo/flash-sale-service/internal/store"
	"github.com/iliyamo/flash-sale-service/internal/utils"
)

// ErrStoreUnavailable is returned when the counter store fails inside the
// critical section.  The attempt fails closed: an unreachable store cannot
// prove the decrement was safe, so the participation is rejected rather than
// optimistically confirmed.
var ErrStoreUnavailable = errors.New("seckill: counter store unavailable")

// Locker is the slice of the distributed lock the engine needs.  Implemented
// by *lock.Lock; tests substitute permissive stubs to drive the compensation
// path that the lock normally makes rare.
type Locker interface {
	WithLock(ctx context.Context, key string, wait, lease time.Duration, fn func() error) error
}

// Admitter is the slice of the rate limiter the engine needs.
type Admitter interface {
	Admit(ctx context.Context, key string) bool
}

// ActivityProvider supplies activity definitions for the advisory
// eligibility gate.  A nil provider skips the gate entirely.
type ActivityProvider interface {
	GetByID(ctx context.Context, id uint64) (model.Activity, error)
}

// Options tunes the engine.  Zero values are replaced with the defaults
// noted on each field.
type Options struct {
	LockWait         time.Duration // max wait for the activity lock (default 500ms)
	LockLease        time.Duration // lock lease (default 3s)
	ParticipationTTL time.Duration // participation record ttl (default 24h)
	StockTTL         time.Duration // stock counter ttl (default 48h)
	OrderDetailTTL   time.Duration // order detail record ttl (default 24h)
	// CompensationRetries is how many extra attempts the compensating
	// increment gets when the first one fails (default 3).  A compensation
	// that still fails after the retries is logged for reconciliation; the
	// counter may read low until then, which underesells but never oversells.
	CompensationRetries int
	CompensationBackoff time.Duration // pause between retries (default 50ms)
}

func (o *Options) fillDefaults() {
	if o.LockWait <= 0 {
		o.LockWait = 500 * time.Millisecond
	}
	if o.LockLease <= 0 {
		o.LockLease = 3 * time.Second
	}
	if o.ParticipationTTL <= 0 {
		o.ParticipationTTL = 24 * time.Hour
	}
	if o.StockTTL <= 0 {
		o.StockTTL = 48 * time.Hour
	}
	if o.OrderDetailTTL <= 0 {
		o.OrderDetailTTL = 24 * time.Hour
	}
	if o.CompensationRetries <= 0 {
		o.CompensationRetries = 3
	}
	if o.CompensationBackoff <= 0 {
		o.CompensationBackoff = 50 * time.Millisecond
	}
}

// Sale is a successful allocation handed to the optional sale hook for
// downstream order materialization.
type Sale struct {
	OrderRef   string
	ActivityID uint64
	UserID     uint64
	Remaining  int64
	CreatedAt  time.Time
}

// Engine runs seckill attempts.  All mutable shared state lives in the
// counter store; the engine itself is stateless and safe for concurrent use.
type Engine struct {
	store      store.Store
	locks      Locker
	limiter    Admitter
	activities ActivityProvider // optional
	onSale     func(ctx context.Context, s Sale) // optional, best-effort
	opts       Options
}

// New builds an engine.  st, locks and limiter are required; activities may
// be nil to skip the eligibility gate.
func New(st store.Store, locks Locker, limiter Admitter, activities ActivityProvider, opts Options) *Engine {
	opts.fillDefaults()
	return &Engine{
		store:      st,
		locks:      locks,
		limiter:    limiter,
		activities: activities,
		opts:       opts,
	}
}

// OnSale registers a hook invoked after every successful allocation, outside
// the lock.  The hook must not block for long; failures are the hook's own
// problem and never undo the sale.
func (e *Engine) OnSale(fn func(ctx context.Context, s Sale)) { e.onSale = fn }

// Store keys.  The participation record for (activity, user) is the sole
// idempotency guard: its existence means the user already holds an order.
func stockKey(activityID uint64) string { return fmt.Sprintf("seckill:stock:%d", activityID) }
func userKey(activityID, userID uint64) string {
	return fmt.Sprintf("seckill:user:%d:%d", activityID, userID)
}
func lockKey(activityID uint64) string   { return fmt.Sprintf("seckill:%d", activityID) }
func rateKey(activityID uint64) string   { return fmt.Sprintf("seckill:%d", activityID) }
func orderKey(orderRef string) string    { return "seckill:order:" + orderRef }

// InitStock loads the stock counter for an activity.  It is idempotent: a
// counter that already exists is left untouched so a re-run cannot reset a
// sale in flight.  Store unavailability here is fatal for setup — starting
// an activity with unknown stock state is worse than not starting it.
func (e *Engine) InitStock(ctx context.Context, activityID uint64, stock int64) error {
	if stock < 0 {
		return fmt.Errorf("seckill: init stock for activity %d: negative stock %d", activityID, stock)
	}
	created, err := e.store.SetIfAbsent(ctx, stockKey(activityID), strconv.FormatInt(stock, 10), e.opts.StockTTL)
	if err != nil {
		return fmt.Errorf("%w: init stock for activity %d: %v", ErrStoreUnavailable, activityID, err)
	}
	if !created {
		log.Printf("seckill: stock for activity %d already initialized, leaving as is", activityID)
	}
	return nil
}

// RemainingStock is a display-only read of the stock counter.  It returns 0
// when the store is unreachable or the counter is absent; callers needing
// authoritative numbers must go through Seckill.
func (e *Engine) RemainingStock(ctx context.Context, activityID uint64) int64 {
	v, ok, err := e.store.Get(ctx, stockKey(activityID))
	if err != nil {
		log.Printf("seckill: remaining stock for activity %d: %v", activityID, err)
		return 0
	}
	if !ok {
		return 0
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil || n < 0 {
		return 0
	}
	return n
}

// HasParticipated is a display-only probe of the participation record.  On
// store unavailability it returns false — "unknown, proceed" — because the
// authoritative duplicate check happens inside the critical section.
func (e *Engine) HasParticipated(ctx context.Context, activityID, userID uint64) bool {
	ok, err := e.store.Exists(ctx, userKey(activityID, userID))
	if err != nil {
		log.Printf("seckill: participation probe for activity %d user %d: %v", activityID, userID, err)
		return false
	}
	return ok
}

// Seckill runs one attempt for (activityID, userID).  Business rejections
// come back in the Result with a nil error; a non-nil error means the store
// failed inside the critical section and the attempt was rejected without a
// definite answer (ErrStoreUnavailable).
func (e *Engine) Seckill(ctx context.Context, activityID, userID uint64) (Result, error) {
	if e.activities != nil {
		act, err := e.activities.GetByID(ctx, activityID)
		if err != nil {
			return rejection(OutcomeNotEligible, "activity not found"), nil
		}
		if !act.Eligible(time.Now()) {
			return rejection(OutcomeNotEligible, "activity is not open"), nil
		}
	}

	if !e.limiter.Admit(ctx, rateKey(activityID)) {
		return rejection(OutcomeRateLimited, "too many requests, try again shortly"), nil
	}

	var res Result
	err := e.locks.WithLock(ctx, lockKey(activityID), e.opts.LockWait, e.opts.LockLease, func() error {
		var aerr error
		res, aerr = e.attempt(ctx, activityID, userID)
		return aerr
	})
	switch {
	case err == nil:
		return res, nil
	case errors.Is(err, lock.ErrAcquireTimeout):
		return rejection(OutcomeLockTimeout, "busy, try again"), nil
	default:
		// The callback only fails on store faults; surface those as infra
		// errors so callers can tell "lost the race" from "system broken".
		var cbErr *lock.CallbackError
		if errors.As(err, &cbErr) {
			return Result{}, cbErr.Err
		}
		return Result{}, err
	}
}

// attempt is the critical section: duplicate check, optimistic decrement
// with compensation, participation write.  It runs while the activity lock
// is (normally) held.
func (e *Engine) attempt(ctx context.Context, activityID, userID uint64) (Result, error) {
	// Duplicate check.  This is the correctness backbone that makes
	// retried client requests safe.
	participated, err := e.store.Exists(ctx, userKey(activityID, userID))
	if err != nil {
		return Result{}, fmt.Errorf("%w: duplicate check: %v", ErrStoreUnavailable, err)
	}
	if participated {
		return rejection(OutcomeAlreadyParticipated, "you already have an order for this sale"), nil
	}

	// Cheap pre-check so a sold-out activity does not churn the counter.
	raw, ok, err := e.store.Get(ctx, stockKey(activityID))
	if err != nil {
		return Result{}, fmt.Errorf("%w: stock read: %v", ErrStoreUnavailable, err)
	}
	current := int64(0)
	if ok {
		if n, perr := strconv.ParseInt(raw, 10, 64); perr == nil {
			current = n
		}
	}
	if current <= 0 {
		return rejection(OutcomeSoldOut, "sold out"), nil
	}

	// Optimistic decrement.  The read above and this decrement are not one
	// compare-and-swap, so concurrent attempts can race past zero; the
	// post-decrement check below is what keeps the counter non-negative.
	remaining, err := e.store.Decrement(ctx, stockKey(activityID))
	if err != nil {
		return Result{}, fmt.Errorf("%w: stock decrement: %v", ErrStoreUnavailable, err)
	}
	if remaining < 0 {
		e.compensate(ctx, activityID, "lost decrement race")
		return rejection(OutcomeSoldOut, "sold out"), nil
	}

	orderRef, err := newOrderRef(activityID, userID)
	if err != nil {
		e.compensate(ctx, activityID, "order ref generation failed")
		return Result{}, fmt.Errorf("seckill: order ref: %w", err)
	}

	// Participation record and order reference are written together; if the
	// write fails the decrement is undone, otherwise the unit would be
	// neither sold nor sellable.
	if err := e.store.SetWithTTL(ctx, userKey(activityID, userID), orderRef, e.opts.ParticipationTTL); err != nil {
		e.compensate(ctx, activityID, "participation write failed")
		return Result{}, fmt.Errorf("%w: participation write: %v", ErrStoreUnavailable, err)
	}

	// Detail record for downstream order materialization.  Best-effort: the
	// participation record already owns idempotency.
	detail := fmt.Sprintf("%d|%d|%d", activityID, userID, time.Now().UTC().Unix())
	if err := e.store.SetWithTTL(ctx, orderKey(orderRef), detail, e.opts.OrderDetailTTL); err != nil {
		log.Printf("seckill: order detail write for %s: %v", orderRef, err)
	}

	if e.onSale != nil {
		e.onSale(ctx, Sale{
			OrderRef:   orderRef,
			ActivityID: activityID,
			UserID:     userID,
			Remaining:  remaining,
			CreatedAt:  time.Now().UTC(),
		})
	}

	return Result{
		Outcome:   OutcomeSuccess,
		Message:   "order created",
		OrderRef:  orderRef,
		Remaining: remaining,
	}, nil
}

// compensate undoes one optimistic decrement.  The increment is retried
// with a short backoff because a compensation that never lands leaves the
// counter low for everyone; after the retries are exhausted the discrepancy
// is logged as a reconciliation item rather than silently dropped.
func (e *Engine) compensate(ctx context.Context, activityID uint64, reason string) {
	var lastErr error
	for i := 0; i <= e.opts.CompensationRetries; i++ {
		if i > 0 {
			time.Sleep(e.opts.CompensationBackoff)
		}
		if _, lastErr = e.store.Increment(ctx, stockKey(activityID)); lastErr == nil {
			return
		}
	}
	log.Printf("seckill: RECONCILE stock for activity %d: compensation (%s) failed after %d retries: %v",
		activityID, reason, e.opts.CompensationRetries, lastErr)
}

// newOrderRef mints a globally-unique order reference from the activity,
// the user, the current time and a random component, so references cannot
// collide across processes.
func newOrderRef(activityID, userID uint64) (string, error) {
	r, err := utils.RandomToken(4)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("SK%d-%d-%d-%s", activityID, userID, time.Now().UnixMilli(), r), nil
}

package seckill_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/iliyamo/flash-sale-service/internal/lock"
	"github.com/iliyamo/flash-sale-service/internal/model"
	"github.com/iliyamo/flash-sale-service/internal/seckill"
	"github.com/iliyamo/flash-sale-service/internal/store"
)

// admitAll lets every attempt through; individual tests swap in rejectAll
// to drive the RATE_LIMITED path.
type admitAll struct{}

func (admitAll) Admit(context.Context, string) bool { return true }

type rejectAll struct{}

func (rejectAll) Admit(context.Context, string) bool { return false }

// noLock runs the callback without any mutual exclusion.  The engine's
// oversell safety must not depend on the lock, so the compensation tests
// use this to let decrements race freely past zero.
type noLock struct{}

func (noLock) WithLock(_ context.Context, _ string, _, _ time.Duration, fn func() error) error {
	return fn()
}

// flakyStore fails selected operations to simulate a store outage inside
// the critical section.
type flakyStore struct {
	store.Store
	failExists    bool
	failDecrement bool
	failSet       bool
	increments    int64 // counts compensating increments that went through
}

var errStoreDown = errors.New("store down")

func (f *flakyStore) Exists(ctx context.Context, key string) (bool, error) {
	if f.failExists {
		return false, errStoreDown
	}
	return f.Store.Exists(ctx, key)
}

func (f *flakyStore) Decrement(ctx context.Context, key string) (int64, error) {
	if f.failDecrement {
		return 0, errStoreDown
	}
	return f.Store.Decrement(ctx, key)
}

func (f *flakyStore) Increment(ctx context.Context, key string) (int64, error) {
	atomic.AddInt64(&f.increments, 1)
	return f.Store.Increment(ctx, key)
}

func (f *flakyStore) SetWithTTL(ctx context.Context, key, value string, ttl time.Duration) error {
	if f.failSet {
		return errStoreDown
	}
	return f.Store.SetWithTTL(ctx, key, value, ttl)
}

func newEngine(st store.Store) *seckill.Engine {
	return seckill.New(st, lock.New(st, "lock"), admitAll{}, nil, seckill.Options{})
}

// The end-to-end scenario from the product spec: three units, three winners,
// a fourth buyer hits SOLD_OUT and a retry from the first stays idempotent.
func TestSeckillEndToEnd(t *testing.T) {
	st := store.NewMemoryStore()
	e := newEngine(st)
	ctx := context.Background()

	if err := e.InitStock(ctx, 1, 3); err != nil {
		t.Fatalf("init stock: %v", err)
	}

	for userID := uint64(1); userID <= 3; userID++ {
		res, err := e.Seckill(ctx, 1, userID)
		if err != nil {
			t.Fatalf("user %d: %v", userID, err)
		}
		if res.Outcome != seckill.OutcomeSuccess {
			t.Fatalf("user %d: expected SUCCESS, got %s (%s)", userID, res.Outcome, res.Message)
		}
		if res.OrderRef == "" {
			t.Fatalf("user %d: success without order ref", userID)
		}
		if want := int64(3 - userID); res.Remaining != want {
			t.Fatalf("user %d: remaining %d, want %d", userID, res.Remaining, want)
		}
	}

	if got := e.RemainingStock(ctx, 1); got != 0 {
		t.Fatalf("remaining stock %d, want 0", got)
	}

	res, err := e.Seckill(ctx, 1, 4)
	if err != nil {
		t.Fatalf("user 4: %v", err)
	}
	if res.Outcome != seckill.OutcomeSoldOut {
		t.Fatalf("user 4: expected SOLD_OUT, got %s", res.Outcome)
	}

	res, err = e.Seckill(ctx, 1, 1)
	if err != nil {
		t.Fatalf("user 1 retry: %v", err)
	}
	if res.Outcome != seckill.OutcomeAlreadyParticipated {
		t.Fatalf("user 1 retry: expected ALREADY_PARTICIPATED, got %s", res.Outcome)
	}
}

// No oversell: far more concurrent buyers than stock, each distinct; the
// number of successes must be exactly the stock and the visible counter must
// settle at zero.
func TestSeckillNoOversellUnderConcurrency(t *testing.T) {
	st := store.NewMemoryStore()
	e := newEngine(st)
	ctx := context.Background()

	const stock = 5
	const buyers = 50

	if err := e.InitStock(ctx, 7, stock); err != nil {
		t.Fatalf("init stock: %v", err)
	}

	var successes int64
	var wg sync.WaitGroup
	wg.Add(buyers)
	for i := 0; i < buyers; i++ {
		userID := uint64(i + 1)
		go func() {
			defer wg.Done()
			res, err := e.Seckill(ctx, 7, userID)
			if err != nil {
				t.Errorf("user %d: %v", userID, err)
				return
			}
			switch res.Outcome {
			case seckill.OutcomeSuccess:
				atomic.AddInt64(&successes, 1)
			case seckill.OutcomeSoldOut, seckill.OutcomeLockTimeout:
			default:
				t.Errorf("user %d: unexpected outcome %s", userID, res.Outcome)
			}
		}()
	}
	wg.Wait()

	if successes != stock {
		t.Fatalf("successes %d, want exactly %d", successes, stock)
	}
	if got := e.RemainingStock(ctx, 7); got != 0 {
		t.Fatalf("remaining stock %d, want 0", got)
	}
}

// Idempotency: a second attempt from the same user never wins a second unit
// nor decrements stock again.
func TestSeckillIdempotentPerUser(t *testing.T) {
	st := store.NewMemoryStore()
	e := newEngine(st)
	ctx := context.Background()

	if err := e.InitStock(ctx, 2, 10); err != nil {
		t.Fatalf("init stock: %v", err)
	}
	first, err := e.Seckill(ctx, 2, 42)
	if err != nil || first.Outcome != seckill.OutcomeSuccess {
		t.Fatalf("first attempt: outcome=%v err=%v", first.Outcome, err)
	}

	for i := 0; i < 3; i++ {
		res, err := e.Seckill(ctx, 2, 42)
		if err != nil {
			t.Fatalf("retry %d: %v", i, err)
		}
		if res.Outcome != seckill.OutcomeAlreadyParticipated {
			t.Fatalf("retry %d: expected ALREADY_PARTICIPATED, got %s", i, res.Outcome)
		}
	}
	if got := e.RemainingStock(ctx, 2); got != 9 {
		t.Fatalf("remaining stock %d, want 9 (single decrement)", got)
	}
	if !e.HasParticipated(ctx, 2, 42) {
		t.Fatal("participation record missing")
	}
}

// Compensation correctness: with no lock at all, concurrent decrements race
// past zero; every lost race must be compensated so the counter settles at
// exactly zero and successes still equal the stock.
func TestSeckillCompensationWithoutLock(t *testing.T) {
	st := store.NewMemoryStore()
	e := seckill.New(st, noLock{}, admitAll{}, nil, seckill.Options{})
	ctx := context.Background()

	const stock = 7
	const buyers = 40

	if err := e.InitStock(ctx, 3, stock); err != nil {
		t.Fatalf("init stock: %v", err)
	}

	var successes int64
	var wg sync.WaitGroup
	wg.Add(buyers)
	for i := 0; i < buyers; i++ {
		userID := uint64(i + 1)
		go func() {
			defer wg.Done()
			res, err := e.Seckill(ctx, 3, userID)
			if err != nil {
				t.Errorf("user %d: %v", userID, err)
				return
			}
			if res.Outcome == seckill.OutcomeSuccess {
				atomic.AddInt64(&successes, 1)
			}
		}()
	}
	wg.Wait()

	if successes != stock {
		t.Fatalf("successes %d, want exactly %d", successes, stock)
	}
	if got := e.RemainingStock(ctx, 3); got != 0 {
		t.Fatalf("counter settled at %d, want 0", got)
	}
}

// A store fault inside the critical section fails closed: the caller gets
// ErrStoreUnavailable, never a silent success.
func TestSeckillFailsClosedOnStoreFault(t *testing.T) {
	ctx := context.Background()

	t.Run("duplicate check down", func(t *testing.T) {
		mem := store.NewMemoryStore()
		fs := &flakyStore{Store: mem, failExists: true}
		e := seckill.New(fs, noLock{}, admitAll{}, nil, seckill.Options{})
		_ = mem.SetWithTTL(ctx, "seckill:stock:9", "5", 0)

		_, err := e.Seckill(ctx, 9, 1)
		if !errors.Is(err, seckill.ErrStoreUnavailable) {
			t.Fatalf("expected ErrStoreUnavailable, got %v", err)
		}
	})

	t.Run("decrement down", func(t *testing.T) {
		mem := store.NewMemoryStore()
		fs := &flakyStore{Store: mem, failDecrement: true}
		e := seckill.New(fs, noLock{}, admitAll{}, nil, seckill.Options{})
		_ = mem.SetWithTTL(ctx, "seckill:stock:9", "5", 0)

		_, err := e.Seckill(ctx, 9, 1)
		if !errors.Is(err, seckill.ErrStoreUnavailable) {
			t.Fatalf("expected ErrStoreUnavailable, got %v", err)
		}
	})
}

// When the participation write fails after a successful decrement, the unit
// must be returned to stock: otherwise it would be neither sold nor sellable.
func TestSeckillCompensatesWhenRecordWriteFails(t *testing.T) {
	ctx := context.Background()
	mem := store.NewMemoryStore()
	fs := &flakyStore{Store: mem, failSet: true}
	e := seckill.New(fs, noLock{}, admitAll{}, nil, seckill.Options{})
	_ = mem.SetWithTTL(ctx, "seckill:stock:4", "5", 0)

	_, err := e.Seckill(ctx, 4, 1)
	if !errors.Is(err, seckill.ErrStoreUnavailable) {
		t.Fatalf("expected ErrStoreUnavailable, got %v", err)
	}
	if got := e.RemainingStock(ctx, 4); got != 5 {
		t.Fatalf("stock %d after failed record write, want 5 (compensated)", got)
	}
	if atomic.LoadInt64(&fs.increments) == 0 {
		t.Fatal("no compensating increment observed")
	}
}

func TestInitStockIsIdempotent(t *testing.T) {
	st := store.NewMemoryStore()
	e := newEngine(st)
	ctx := context.Background()

	if err := e.InitStock(ctx, 5, 10); err != nil {
		t.Fatalf("first init: %v", err)
	}
	// Sell one unit, then re-init; the counter must not reset mid-sale.
	if res, err := e.Seckill(ctx, 5, 1); err != nil || res.Outcome != seckill.OutcomeSuccess {
		t.Fatalf("sale: outcome=%v err=%v", res.Outcome, err)
	}
	if err := e.InitStock(ctx, 5, 10); err != nil {
		t.Fatalf("second init: %v", err)
	}
	if got := e.RemainingStock(ctx, 5); got != 9 {
		t.Fatalf("stock %d after re-init, want 9", got)
	}

	if err := e.InitStock(ctx, 5, -1); err == nil {
		t.Fatal("negative stock must be rejected")
	}
}

func TestInitStockFailsLoudlyWhenStoreDown(t *testing.T) {
	mem := store.NewMemoryStore()
	e := seckill.New(failingSetIfAbsent{mem}, noLock{}, admitAll{}, nil, seckill.Options{})
	if err := e.InitStock(context.Background(), 1, 3); !errors.Is(err, seckill.ErrStoreUnavailable) {
		t.Fatalf("expected ErrStoreUnavailable, got %v", err)
	}
}

type failingSetIfAbsent struct{ store.Store }

func (failingSetIfAbsent) SetIfAbsent(context.Context, string, string, time.Duration) (bool, error) {
	return false, errStoreDown
}

// Display probes degrade quietly on outages: zero stock and "unknown,
// proceed" participation, never an error.
func TestProbesDegradeOnStoreOutage(t *testing.T) {
	ctx := context.Background()
	mem := store.NewMemoryStore()
	fs := &flakyStore{Store: mem, failExists: true}
	e := seckill.New(fs, noLock{}, admitAll{}, nil, seckill.Options{})

	if e.HasParticipated(ctx, 1, 1) {
		t.Fatal("participation probe must report false when the store is down")
	}
	if got := e.RemainingStock(ctx, 99); got != 0 {
		t.Fatalf("missing counter reads %d, want 0", got)
	}
}

func TestSeckillRateLimited(t *testing.T) {
	st := store.NewMemoryStore()
	e := seckill.New(st, lock.New(st, "lock"), rejectAll{}, nil, seckill.Options{})
	ctx := context.Background()
	if err := e.InitStock(ctx, 1, 3); err != nil {
		t.Fatalf("init stock: %v", err)
	}

	res, err := e.Seckill(ctx, 1, 1)
	if err != nil {
		t.Fatalf("seckill: %v", err)
	}
	if res.Outcome != seckill.OutcomeRateLimited {
		t.Fatalf("expected RATE_LIMITED, got %s", res.Outcome)
	}
	if got := e.RemainingStock(ctx, 1); got != 3 {
		t.Fatalf("stock %d after rate-limited attempt, want 3", got)
	}
}

func TestSeckillLockTimeout(t *testing.T) {
	st := store.NewMemoryStore()
	locks := lock.New(st, "lock")
	e := seckill.New(st, locks, admitAll{}, nil, seckill.Options{
		LockWait: 30 * time.Millisecond,
	})
	ctx := context.Background()
	if err := e.InitStock(ctx, 1, 3); err != nil {
		t.Fatalf("init stock: %v", err)
	}

	// Another holder pins the activity lock for longer than the engine is
	// willing to wait.
	blocker := lock.New(st, "lock")
	if ok, _ := blocker.TryLockLease(ctx, "seckill:1", 0, time.Minute); !ok {
		t.Fatal("setup: could not pin activity lock")
	}
	defer func() { _ = blocker.Unlock(ctx, "seckill:1") }()

	res, err := e.Seckill(ctx, 1, 1)
	if err != nil {
		t.Fatalf("seckill: %v", err)
	}
	if res.Outcome != seckill.OutcomeLockTimeout {
		t.Fatalf("expected LOCK_TIMEOUT, got %s", res.Outcome)
	}
}

// activityStub serves a fixed activity to exercise the eligibility gate.
type activityStub struct{ act model.Activity }

func (s activityStub) GetByID(_ context.Context, id uint64) (model.Activity, error) {
	if id != s.act.ID {
		return model.Activity{}, fmt.Errorf("activity %d not found", id)
	}
	return s.act, nil
}

func TestSeckillEligibilityGate(t *testing.T) {
	ctx := context.Background()
	now := time.Now()

	cases := []struct {
		name string
		act  model.Activity
		want seckill.Outcome
	}{
		{
			name: "active inside window",
			act: model.Activity{
				ID: 1, Status: model.ActivityActive,
				StartsAt: now.Add(-time.Hour), EndsAt: now.Add(time.Hour),
			},
			want: seckill.OutcomeSuccess,
		},
		{
			name: "not started",
			act: model.Activity{
				ID: 1, Status: model.ActivityNotStarted,
				StartsAt: now.Add(time.Hour), EndsAt: now.Add(2 * time.Hour),
			},
			want: seckill.OutcomeNotEligible,
		},
		{
			name: "active status but window passed",
			act: model.Activity{
				ID: 1, Status: model.ActivityActive,
				StartsAt: now.Add(-2 * time.Hour), EndsAt: now.Add(-time.Hour),
			},
			want: seckill.OutcomeNotEligible,
		},
		{
			name: "cancelled",
			act: model.Activity{
				ID: 1, Status: model.ActivityCancelled,
				StartsAt: now.Add(-time.Hour), EndsAt: now.Add(time.Hour),
			},
			want: seckill.OutcomeNotEligible,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			st := store.NewMemoryStore()
			e := seckill.New(st, lock.New(st, "lock"), admitAll{}, activityStub{tc.act}, seckill.Options{})
			if err := e.InitStock(ctx, 1, 3); err != nil {
				t.Fatalf("init stock: %v", err)
			}
			res, err := e.Seckill(ctx, 1, 1)
			if err != nil {
				t.Fatalf("seckill: %v", err)
			}
			if res.Outcome != tc.want {
				t.Fatalf("outcome %s, want %s", res.Outcome, tc.want)
			}
		})
	}
}

func TestSeckillUnknownActivityNotEligible(t *testing.T) {
	st := store.NewMemoryStore()
	e := seckill.New(st, lock.New(st, "lock"), admitAll{}, activityStub{model.Activity{ID: 1}}, seckill.Options{})
	res, err := e.Seckill(context.Background(), 99, 1)
	if err != nil {
		t.Fatalf("seckill: %v", err)
	}
	if res.Outcome != seckill.OutcomeNotEligible {
		t.Fatalf("expected NOT_ELIGIBLE for unknown activity, got %s", res.Outcome)
	}
}

func TestOnSaleHookFiresOncePerWin(t *testing.T) {
	st := store.NewMemoryStore()
	e := newEngine(st)
	ctx := context.Background()

	var sales []seckill.Sale
	var mu sync.Mutex
	e.OnSale(func(_ context.Context, s seckill.Sale) {
		mu.Lock()
		sales = append(sales, s)
		mu.Unlock()
	})

	if err := e.InitStock(ctx, 6, 1); err != nil {
		t.Fatalf("init stock: %v", err)
	}
	if res, _ := e.Seckill(ctx, 6, 1); res.Outcome != seckill.OutcomeSuccess {
		t.Fatalf("expected SUCCESS, got %s", res.Outcome)
	}
	if res, _ := e.Seckill(ctx, 6, 1); res.Outcome != seckill.OutcomeAlreadyParticipated {
		t.Fatalf("expected ALREADY_PARTICIPATED, got %s", res.Outcome)
	}
	if res, _ := e.Seckill(ctx, 6, 2); res.Outcome != seckill.OutcomeSoldOut {
		t.Fatalf("expected SOLD_OUT, got %s", res.Outcome)
	}

	if len(sales) != 1 {
		t.Fatalf("hook fired %d times, want 1", len(sales))
	}
	s := sales[0]
	if s.ActivityID != 6 || s.UserID != 1 || s.Remaining != 0 || s.OrderRef == "" {
		t.Fatalf("unexpected sale payload: %+v", s)
	}
}

// Order references must not collide even for rapid wins across activities.
func TestOrderRefsAreUnique(t *testing.T) {
	st := store.NewMemoryStore()
	e := newEngine(st)
	ctx := context.Background()

	if err := e.InitStock(ctx, 8, 30); err != nil {
		t.Fatalf("init stock: %v", err)
	}
	seen := make(map[string]bool)
	for u := uint64(1); u <= 30; u++ {
		res, err := e.Seckill(ctx, 8, u)
		if err != nil || res.Outcome != seckill.OutcomeSuccess {
			t.Fatalf("user %d: outcome=%v err=%v", u, res.Outcome, err)
		}
		if seen[res.OrderRef] {
			t.Fatalf("duplicate order ref %s", res.OrderRef)
		}
		seen[res.OrderRef] = true
	}
}

package limiter

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/iliyamo/flash-sale-service/internal/store"
)

// downStore simulates an unreachable counter store.  Every operation fails,
// which per the availability-over-strictness trade-off must make the
// limiters admit rather than reject.
type downStore struct{}

var errDown = errors.New("store down")

func (downStore) Get(context.Context, string) (string, bool, error) { return "", false, errDown }
func (downStore) SetWithTTL(context.Context, string, string, time.Duration) error {
	return errDown
}
func (downStore) SetIfAbsent(context.Context, string, string, time.Duration) (bool, error) {
	return false, errDown
}
func (downStore) Exists(context.Context, string) (bool, error)     { return false, errDown }
func (downStore) Increment(context.Context, string) (int64, error) { return 0, errDown }
func (downStore) Decrement(context.Context, string) (int64, error) { return 0, errDown }
func (downStore) Expire(context.Context, string, time.Duration) (bool, error) {
	return false, errDown
}
func (downStore) CompareAndDelete(context.Context, string, string) (bool, error) {
	return false, errDown
}

func TestSlidingWindowBoundsAdmissionsWithinWindow(t *testing.T) {
	st := store.NewMemoryStore()
	sw := NewSlidingWindow(st, "rl", 5, 3*time.Second)

	base := time.Now()
	sw.now = func() time.Time { return base }
	ctx := context.Background()

	admitted := 0
	for i := 0; i < 20; i++ {
		if sw.Admit(ctx, "act") {
			admitted++
		}
	}
	if admitted != 5 {
		t.Fatalf("expected 5 admissions in burst, got %d", admitted)
	}
}

func TestSlidingWindowSpansBuckets(t *testing.T) {
	st := store.NewMemoryStore()
	sw := NewSlidingWindow(st, "rl", 4, 3*time.Second)

	base := time.Now()
	now := base
	sw.now = func() time.Time { return now }
	ctx := context.Background()

	// Two admissions in second 0, two in second 1: the window is full.
	for i := 0; i < 2; i++ {
		if !sw.Admit(ctx, "act") {
			t.Fatalf("admission %d in bucket 0 rejected", i)
		}
	}
	now = base.Add(time.Second)
	for i := 0; i < 2; i++ {
		if !sw.Admit(ctx, "act") {
			t.Fatalf("admission %d in bucket 1 rejected", i)
		}
	}
	if sw.Admit(ctx, "act") {
		t.Fatal("fifth admission inside the trailing window must be rejected")
	}

	// Once the window slides past bucket 0, its two admissions free up.
	now = base.Add(3 * time.Second)
	if !sw.Admit(ctx, "act") {
		t.Fatal("admission after the window slid should succeed")
	}
}

// A rejected attempt must not consume budget: its own increment is undone,
// so the full limit stays available to later callers.
func TestSlidingWindowRejectionCompensatesIncrement(t *testing.T) {
	st := store.NewMemoryStore()
	sw := NewSlidingWindow(st, "rl", 2, 2*time.Second)

	base := time.Now()
	now := base
	sw.now = func() time.Time { return now }
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		if !sw.Admit(ctx, "act") {
			t.Fatalf("setup admission %d rejected", i)
		}
	}
	// Hammer rejections; each one increments and must decrement back.
	for i := 0; i < 10; i++ {
		if sw.Admit(ctx, "act") {
			t.Fatal("over-limit admission")
		}
	}

	// Slide one bucket out; exactly the freed budget is available, no debt
	// left behind by the rejected attempts.
	now = base.Add(2 * time.Second)
	if !sw.Admit(ctx, "act") {
		t.Fatal("budget should be free after the window slid")
	}
}

func TestSlidingWindowKeysAreIndependent(t *testing.T) {
	st := store.NewMemoryStore()
	sw := NewSlidingWindow(st, "rl", 1, time.Second)
	ctx := context.Background()

	if !sw.Admit(ctx, "a") {
		t.Fatal("first key rejected")
	}
	if !sw.Admit(ctx, "b") {
		t.Fatal("second key must have its own budget")
	}
	if sw.Admit(ctx, "a") {
		t.Fatal("first key should be exhausted")
	}
}

func TestSlidingWindowFailsOpenWhenStoreDown(t *testing.T) {
	sw := NewSlidingWindow(downStore{}, "rl", 1, time.Second)
	ctx := context.Background()
	for i := 0; i < 5; i++ {
		if !sw.Admit(ctx, "act") {
			t.Fatal("limiter must fail open on store outage")
		}
	}
}

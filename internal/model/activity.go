package model

import "time"

// Activity status values as stored in seckill_activities.status.
const (
	ActivityNotStarted = "NOT_STARTED"
	ActivityActive     = "ACTIVE"
	ActivityEnded      = "ENDED"
	ActivityCancelled  = "CANCELLED"
)

// Activity represents a flash-sale activity as stored in the
// `seckill_activities` table: a small fixed inventory of one product sold
// inside a bounded time window.  The authoritative remaining stock during
// the sale lives in the counter store, not here; Stock is the initial
// inventory loaded into the counter and Sold is the materialized count of
// confirmed orders, bumped by the order consumer.
//
// Fields:
//  ID        – primary key identifier.
//  ProductID – product being sold.
//  Name      – display name of the activity.
//  Stock     – initial inventory in units.
//  Sold      – units sold so far (monotonically non-decreasing).
//  StartsAt  – when the sale opens.
//  EndsAt    – when the sale closes (must be after StartsAt).
//  Status    – one of the Activity* constants above.
//  CreatedAt – creation timestamp.
//  UpdatedAt – last update timestamp.
type Activity struct {
	ID        uint64    // seckill_activities.id
	ProductID uint64    // seckill_activities.product_id
	Name      string    // seckill_activities.name
	Stock     int64     // seckill_activities.stock
	Sold      int64     // seckill_activities.sold
	StartsAt  time.Time // seckill_activities.starts_at
	EndsAt    time.Time // seckill_activities.ends_at
	Status    string    // seckill_activities.status
	CreatedAt time.Time // seckill_activities.created_at
	UpdatedAt time.Time // seckill_activities.updated_at
}

// Eligible reports whether the activity accepts attempts at the given
// instant: status ACTIVE and now inside [StartsAt, EndsAt].  This check is
// advisory — it keeps obviously dead activities from reaching the critical
// section, but oversell safety rests on the stock counter alone.
func (a Activity) Eligible(now time.Time) bool {
	if a.Status != ActivityActive {
		return false
	}
	return !now.Before(a.StartsAt) && !now.After(a.EndsAt)
}

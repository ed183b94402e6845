// Package queue defines message payloads exchanged over the message broker.
package queue

// OrderCreatedEvent is published when a seckill attempt wins a unit of
// stock.  It carries enough for downstream consumers to materialize the
// order, notify the user or feed analytics without touching the counter
// store.
type OrderCreatedEvent struct {
	OrderRef   string `json:"order_ref"`
	ActivityID uint64 `json:"activity_id"`
	ProductID  uint64 `json:"product_id"`
	UserID     uint64 `json:"user_id"`
	Remaining  int64  `json:"remaining_stock"`
	CreatedAt  string `json:"created_at"`
}

package config

import "time"

// SeckillConfig tunes the seckill engine's critical section: lock bounds,
// record TTLs and compensation behaviour.  Values map one-to-one onto
// seckill.Options.
type SeckillConfig struct {
	LockWait            time.Duration // bounded wait for the activity lock
	LockLease           time.Duration // lease after which a held lock self-expires
	ParticipationTTL    time.Duration // idempotency record lifetime (activity window + grace)
	StockTTL            time.Duration // stock counter lifetime
	OrderDetailTTL      time.Duration // order detail record lifetime
	CompensationRetries int           // extra attempts for a failed compensating increment
	CompensationBackoff time.Duration // pause between compensation attempts
}

// LoadSeckillConfig reads environment variables to build a SeckillConfig.
// The defaults favour short lock tenure: the lease is deliberately small so
// a stalled holder cannot block an activity for long, and correctness does
// not depend on it (the engine's compensation does the heavy lifting).
func LoadSeckillConfig() SeckillConfig {
	cfg := SeckillConfig{
		LockWait:            envDur("SECKILL_LOCK_WAIT", 500*time.Millisecond),
		LockLease:           envDur("SECKILL_LOCK_LEASE", 3*time.Second),
		ParticipationTTL:    envDur("SECKILL_PARTICIPATION_TTL", 24*time.Hour),
		StockTTL:            envDur("SECKILL_STOCK_TTL", 48*time.Hour),
		OrderDetailTTL:      envDur("SECKILL_ORDER_DETAIL_TTL", 24*time.Hour),
		CompensationRetries: envInt("SECKILL_COMPENSATION_RETRIES", 3),
		CompensationBackoff: envDur("SECKILL_COMPENSATION_BACKOFF", 50*time.Millisecond),
	}
	if cfg.LockWait < 0 {
		cfg.LockWait = 0
	}
	if cfg.LockLease <= 0 {
		cfg.LockLease = 3 * time.Second
	}
	return cfg
}

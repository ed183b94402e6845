package config

import (
	"os"
	"strconv"
	"time"
)

// Rate limiter strategy names accepted in RATE_LIMIT_STRATEGY.
const (
	StrategyTokenBucket   = "token_bucket"
	StrategySlidingWindow = "sliding_window"
)

// RateLimitConfig configures both the per-activity admission limiter inside
// the seckill engine and the HTTP-level limiter middleware.  Strategy picks
// the algorithm; the window fields apply to the sliding window and the
// capacity/refill fields to the token bucket.
type RateLimitConfig struct {
	Enabled    bool
	Strategy   string
	Limit      int64         // sliding window: admissions per window
	Window     time.Duration // sliding window: trailing window length
	Capacity   float64       // token bucket: burst size
	RefillRate float64       // token bucket: tokens per second
	TTL        time.Duration // idle-state expiry for token bucket keys
	Prefix     string
}

// LoadRateLimitConfig reads environment variables to build a
// RateLimitConfig, with defaults sized for a small flash sale.
func LoadRateLimitConfig() RateLimitConfig {
	def := RateLimitConfig{
		Enabled:    envBool("RATE_LIMIT_ENABLED", true),
		Strategy:   envStr("RATE_LIMIT_STRATEGY", StrategySlidingWindow),
		Limit:      int64(envInt("RATE_LIMIT_LIMIT", 100)),
		Window:     envDur("RATE_LIMIT_WINDOW", time.Second),
		Capacity:   float64(envInt("RATE_LIMIT_CAPACITY", 100)),
		RefillRate: float64(envInt("RATE_LIMIT_REFILL_PER_SEC", 50)),
		TTL:        envDur("RATE_LIMIT_TTL", 10*time.Minute),
		Prefix:     envStr("RATE_LIMIT_PREFIX", "rl"),
	}
	if def.Strategy != StrategyTokenBucket && def.Strategy != StrategySlidingWindow {
		def.Strategy = StrategySlidingWindow
	}
	if def.Limit < 1 {
		def.Limit = 1
	}
	if def.Window < time.Second {
		def.Window = time.Second
	}
	if def.Capacity < 1 {
		def.Capacity = 1
	}
	if def.RefillRate <= 0 {
		def.RefillRate = 1
	}
	return def
}

func envStr(k, d string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return d
}

func envBool(k string, d bool) bool {
	v := os.Getenv(k)
	if v == "" {
		return d
	}
	switch v {
	case "1", "true", "TRUE", "True", "yes", "YES", "on", "ON":
		return true
	case "0", "false", "FALSE", "False", "no", "NO", "off", "OFF":
		return false
	}
	return d
}

func envInt(k string, d int) int {
	v := os.Getenv(k)
	if v == "" {
		return d
	}
	if n, err := strconv.Atoi(v); err == nil {
		return n
	}
	return d
}

func envDur(k string, d time.Duration) time.Duration {
	v := os.Getenv(k)
	if v == "" {
		return d
	}
	if dur, err := time.ParseDuration(v); err == nil {
		return dur
	}
	return d
}

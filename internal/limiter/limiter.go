// Package limiter provides admission control for the flash-sale path.  Two
// interchangeable strategies are exposed behind one interface: a sliding
// window counter and a token bucket, both keeping their state in the shared
// counter store so the limit holds across processes.
//
// Both strategies fail open: when the store is unreachable the request is
// admitted rather than rejected.  The limiter protects capacity, and a store
// outage must not take down an entire activity on its own.
package limiter

import "context"

// Limiter decides whether one more operation for key may proceed right now.
type Limiter interface {
	// Admit returns true when the operation is allowed.  Implementations
	// never return an error; infrastructure failures are logged and the
	// request is admitted.
	Admit(ctx context.Context, key string) bool
}

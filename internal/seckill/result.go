package seckill

// Outcome is the closed set of ways a seckill attempt can end.  Every value
// except OutcomeSuccess is a normal, expected rejection during a flash sale;
// infrastructure faults are reported as errors alongside the result, never
// folded into this set.
type Outcome int

const (
	// OutcomeSuccess means stock was allocated and an order reference minted.
	OutcomeSuccess Outcome = iota
	// OutcomeRateLimited means the admission limiter rejected the attempt.
	// Soft failure; the client may retry later.
	OutcomeRateLimited
	// OutcomeLockTimeout means the activity lock could not be acquired
	// within the wait window.  Soft failure; the client may retry.
	OutcomeLockTimeout
	// OutcomeAlreadyParticipated means this user already holds an order for
	// this activity.  Terminal for the pair, and not an error.
	OutcomeAlreadyParticipated
	// OutcomeSoldOut means the stock counter is exhausted.  Terminal.
	OutcomeSoldOut
	// OutcomeNotEligible means the activity is outside its sale window or
	// not in ACTIVE status.  Advisory gate; see Activity.Eligible.
	OutcomeNotEligible
)

// String returns the wire-friendly name of the outcome.
func (o Outcome) String() string {
	switch o {
	case OutcomeSuccess:
		return "SUCCESS"
	case OutcomeRateLimited:
		return "RATE_LIMITED"
	case OutcomeLockTimeout:
		return "LOCK_TIMEOUT"
	case OutcomeAlreadyParticipated:
		return "ALREADY_PARTICIPATED"
	case OutcomeSoldOut:
		return "SOLD_OUT"
	case OutcomeNotEligible:
		return "NOT_ELIGIBLE"
	default:
		return "UNKNOWN"
	}
}

// Result is what a seckill attempt returns to the caller.  Message is safe
// to surface to end users; OrderRef and Remaining are only meaningful when
// Outcome is OutcomeSuccess.
type Result struct {
	Outcome   Outcome
	Message   string
	OrderRef  string
	Remaining int64
}

func rejection(o Outcome, msg string) Result {
	return Result{Outcome: o, Message: msg}
}

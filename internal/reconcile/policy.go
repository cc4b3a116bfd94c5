package reconcile

import "time"

const (
	DefaultRetries    = 3
	DefaultRetryDelay = 2 * time.Second
)

// RetryPolicy decides whether another attempt follows attempt number n
// (1-based) and how long to wait before it.
type RetryPolicy interface {
	Next(attempt int) (time.Duration, bool)
}

// FixedRetry allows Retries additional attempts spaced by Delay.
type FixedRetry struct {
	Retries int
	Delay   time.Duration
}

// DefaultPolicy returns three retries two seconds apart.
func DefaultPolicy() FixedRetry {
	return FixedRetry{Retries: DefaultRetries, Delay: DefaultRetryDelay}
}

func (p FixedRetry) Next(attempt int) (time.Duration, bool) {
	if attempt > p.Retries {
		return 0, false
	}
	return p.Delay, true
}

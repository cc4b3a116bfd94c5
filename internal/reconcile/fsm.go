// Package reconcile folds a just-created booking into the server's booking
// list, retrying transient absence or failure within a bounded budget.
package reconcile

// Phase is the state of one confirmation instance.
type Phase int

const (
	PhaseIdle Phase = iota
	PhaseFetching
	PhaseRetryScheduled
	PhaseResolved
	PhaseExhaustedEmpty
	PhaseExhaustedFailed
	PhaseUnauthenticated
)

// String returns a human-readable name for the phase.
func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhaseFetching:
		return "fetching"
	case PhaseRetryScheduled:
		return "retry_scheduled"
	case PhaseResolved:
		return "resolved"
	case PhaseExhaustedEmpty:
		return "exhausted_empty"
	case PhaseExhaustedFailed:
		return "exhausted_failed"
	case PhaseUnauthenticated:
		return "unauthenticated"
	default:
		return "unknown"
	}
}

// Terminal reports whether no further transition can happen.
func (p Phase) Terminal() bool {
	switch p {
	case PhaseResolved, PhaseExhaustedEmpty, PhaseExhaustedFailed, PhaseUnauthenticated:
		return true
	}
	return false
}

// Outcome classifies one fetch attempt.
type Outcome int

const (
	OutcomeOK Outcome = iota
	OutcomeNotFound
	OutcomeFailed
)

// String returns a human-readable name for the outcome.
func (o Outcome) String() string {
	switch o {
	case OutcomeOK:
		return "ok"
	case OutcomeNotFound:
		return "not_found"
	case OutcomeFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Decide returns the phase following a fetch attempt.
//
// A successful fetch always resolves. A 404 means the server has nothing
// yet and any other failure is transient; either way an optimistic booking
// already satisfies the view, so the instance resolves without retrying.
// Otherwise it retries while the budget allows and then settles.
func Decide(outcome Outcome, hasOptimistic, canRetry bool) Phase {
	if outcome == OutcomeOK || hasOptimistic {
		return PhaseResolved
	}
	if canRetry {
		return PhaseRetryScheduled
	}
	if outcome == OutcomeNotFound {
		return PhaseExhaustedEmpty
	}
	return PhaseExhaustedFailed
}

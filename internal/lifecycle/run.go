package lifecycle

import (
	"context"
	"errors"

	"github.com/rs/zerolog/log"

	"github.com/dokzlo13/bookd/internal/api"
	"github.com/dokzlo13/bookd/internal/metrics"
)

// ErrStale is returned by Run when a newer request on the same resource was
// issued before this one settled. The result was discarded and the returned
// payload is the zero value, whether the request succeeded or failed.
var ErrStale = errors.New("superseded by a newer request")

// Merge folds a payload into the current value of a resource.
type Merge[T, P any] func(current T, payload P) T

// Op is a remote operation producing a payload.
type Op[P any] func(ctx context.Context) (P, error)

// Run executes op under the lifecycle of res. On success the payload is
// folded into the value with merge and the resource is marked succeeded with
// successMessage. On failure the resource is marked failed with the
// user-facing message of the error. The payload and error are returned as-is
// so callers can chain on them.
func Run[T, P any](ctx context.Context, res *Resource[T], op Op[P], merge Merge[T, P], successMessage string) (P, error) {
	tok := res.Begin()

	payload, err := op(ctx)
	if err != nil {
		if !res.Fail(tok, api.Message(err)) {
			log.Debug().Str("resource", res.Name()).Uint64("token", uint64(tok)).Msg("Dropped stale failure")
			var zero P
			return zero, errors.Join(ErrStale, err)
		}
		metrics.IncSettled(res.Name(), StatusFailed.String())
		return payload, err
	}

	var update func(T) T
	if merge != nil {
		update = func(current T) T { return merge(current, payload) }
	}
	if !res.Succeed(tok, update, successMessage) {
		log.Debug().Str("resource", res.Name()).Uint64("token", uint64(tok)).Msg("Dropped stale result")
		var zero P
		return zero, ErrStale
	}
	metrics.IncSettled(res.Name(), StatusSucceeded.String())
	return payload, nil
}

// RunKeyed is Run for operations whose merge touches a single keyed entry
// (create, update or delete by id). Their results commute, so a successful
// payload is always merged and returned even when a newer request was issued
// meanwhile; only the request state stays with the latest request. A stale
// failure leaves the state alone and returns the error unchanged.
func RunKeyed[T, P any](ctx context.Context, res *Resource[T], op Op[P], merge Merge[T, P], successMessage string) (P, error) {
	tok := res.Begin()

	payload, err := op(ctx)
	if err != nil {
		if res.Fail(tok, api.Message(err)) {
			metrics.IncSettled(res.Name(), StatusFailed.String())
		} else {
			log.Debug().Str("resource", res.Name()).Uint64("token", uint64(tok)).Msg("Stale failure left state unchanged")
		}
		return payload, err
	}

	var update func(T) T
	if merge != nil {
		update = func(current T) T { return merge(current, payload) }
	}
	if res.Merge(tok, update, successMessage) {
		metrics.IncSettled(res.Name(), StatusSucceeded.String())
	} else {
		log.Debug().Str("resource", res.Name()).Uint64("token", uint64(tok)).Msg("Merged result of superseded request")
	}
	return payload, nil
}

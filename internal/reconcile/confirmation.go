package reconcile

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/dokzlo13/bookd/internal/api"
	"github.com/dokzlo13/bookd/internal/metrics"
	"github.com/dokzlo13/bookd/internal/model"
)

// MsgLoginRequired is the notice of an unauthenticated confirmation.
const MsgLoginRequired = "Please log in to view bookings"

// Fetcher loads the raw booking list of a user.
type Fetcher interface {
	ListUserBookings(ctx context.Context, userID, token string) (json.RawMessage, error)
}

// View is what a confirmation currently shows. It is derived and never
// persisted.
type View struct {
	ID       string
	Phase    Phase
	Bookings []model.Booking
	Attempts int
	Notice   string
	Err      error
}

// Options configures a Confirmation.
//
// OnChange runs on the confirmation goroutine and must not call Cancel;
// consumers that react to a view by cancelling should hand the view off first.
type Options struct {
	Policy   RetryPolicy
	OnChange func(View)
}

// Confirmation is one reconciliation instance. It is single-use: build it,
// Run or Start it, and Cancel it when the consumer goes away.
type Confirmation struct {
	id         string
	session    *model.Session
	optimistic *model.Booking
	fetcher    Fetcher
	policy     RetryPolicy
	onChange   func(View)
	sleep      func(ctx context.Context, d time.Duration) error

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
	once   sync.Once

	mu   sync.Mutex
	view View

	// held for the cancellation check and the OnChange call of each view
	deliverMu sync.Mutex
}

// New creates a confirmation bound to ctx. sess may be nil, in which case the
// instance settles as unauthenticated without fetching.
func New(ctx context.Context, fetcher Fetcher, sess *model.Session, optimistic *model.Booking, opts Options) *Confirmation {
	policy := opts.Policy
	if policy == nil {
		policy = DefaultPolicy()
	}

	cctx, cancel := context.WithCancel(ctx)
	id := uuid.NewString()
	return &Confirmation{
		id:         id,
		session:    sess,
		optimistic: optimistic,
		fetcher:    fetcher,
		policy:     policy,
		onChange:   opts.OnChange,
		sleep:      sleepCtx,
		ctx:        cctx,
		cancel:     cancel,
		done:       make(chan struct{}),
		view:       View{ID: id, Phase: PhaseIdle, Bookings: Merge(optimistic, nil)},
	}
}

// ID returns the instance identifier.
func (c *Confirmation) ID() string {
	return c.id
}

// View returns the latest published view.
func (c *Confirmation) View() View {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.view
}

// Done is closed when Run returns.
func (c *Confirmation) Done() <-chan struct{} {
	return c.done
}

// Cancel stops pending fetches and retries. It waits for a view delivery
// already in progress, so OnChange is never called after Cancel returns.
func (c *Confirmation) Cancel() {
	c.cancel()
	// Wait out an in-flight delivery.
	c.deliverMu.Lock()
	c.deliverMu.Unlock()
}

// Cancelled reports whether Cancel was called or the parent context ended.
func (c *Confirmation) Cancelled() bool {
	return c.ctx.Err() != nil
}

// Start runs the confirmation in the background.
func (c *Confirmation) Start() {
	go c.Run()
}

// Run drives the instance to a terminal phase, or until cancelled, and
// returns the last published view. Only the first call does any work.
func (c *Confirmation) Run() View {
	c.once.Do(func() {
		defer close(c.done)
		c.run()
	})
	<-c.done
	return c.View()
}

func (c *Confirmation) run() {
	logger := log.With().Str("confirmation", c.id).Logger()

	if !c.session.Valid() {
		logger.Info().Msg("No session, confirmation requires login")
		c.settle(View{Phase: PhaseUnauthenticated, Bookings: Merge(c.optimistic, nil), Notice: MsgLoginRequired})
		return
	}

	userID := c.session.ID()
	hasOptimistic := c.optimistic != nil

	for attempt := 1; ; attempt++ {
		if !c.publish(View{Phase: PhaseFetching, Bookings: Merge(c.optimistic, nil), Attempts: attempt - 1}) {
			return
		}

		raw, err := c.fetcher.ListUserBookings(c.ctx, userID, c.session.Token)
		if c.ctx.Err() != nil {
			logger.Debug().Int("attempt", attempt).Msg("Confirmation cancelled during fetch")
			return
		}

		outcome, fetched, err := classify(raw, err)
		metrics.IncReconcileAttempt(outcome.String())

		delay, canRetry := c.policy.Next(attempt)
		phase := Decide(outcome, hasOptimistic, canRetry)

		logger.Debug().
			Int("attempt", attempt).
			Str("outcome", outcome.String()).
			Str("phase", phase.String()).
			Msg("Fetch attempt settled")

		switch phase {
		case PhaseResolved:
			if outcome == OutcomeFailed {
				logger.Warn().Err(err).Msg("Booking fetch failed, keeping optimistic booking")
			}
			c.settle(View{Phase: PhaseResolved, Bookings: Merge(c.optimistic, fetched), Attempts: attempt})
			return

		case PhaseExhaustedEmpty:
			c.settle(View{Phase: PhaseExhaustedEmpty, Bookings: []model.Booking{}, Attempts: attempt})
			return

		case PhaseExhaustedFailed:
			logger.Warn().Err(err).Int("attempts", attempt).Msg("Booking fetch exhausted retries")
			c.settle(View{
				Phase:    PhaseExhaustedFailed,
				Bookings: []model.Booking{},
				Attempts: attempt,
				Notice:   "Unable to fetch bookings: " + failureText(err),
				Err:      err,
			})
			return
		}

		if !c.publish(View{Phase: PhaseRetryScheduled, Bookings: []model.Booking{}, Attempts: attempt}) {
			return
		}
		if err := c.sleep(c.ctx, delay); err != nil {
			logger.Debug().Int("attempt", attempt).Msg("Confirmation cancelled during retry delay")
			return
		}
	}
}

func (c *Confirmation) settle(v View) {
	if c.publish(v) {
		metrics.IncReconcileSettled(v.Phase.String())
	}
}

// publish records v and notifies the subscriber. It reports false once the
// instance is cancelled.
func (c *Confirmation) publish(v View) bool {
	v.ID = c.id

	c.deliverMu.Lock()
	defer c.deliverMu.Unlock()

	c.mu.Lock()
	if c.ctx.Err() != nil {
		c.mu.Unlock()
		return false
	}
	c.view = v
	c.mu.Unlock()

	if c.onChange != nil {
		c.onChange(v)
	}
	return true
}

func classify(raw json.RawMessage, err error) (Outcome, []model.Booking, error) {
	if api.IsNotFound(err) {
		return OutcomeNotFound, nil, err
	}
	if err != nil {
		return OutcomeFailed, nil, err
	}
	list, envelope, err := Normalize(raw)
	if err != nil {
		return OutcomeFailed, nil, err
	}
	log.Debug().Str("envelope", envelope.String()).Int("count", len(list)).Msg("Normalized booking list")
	return OutcomeOK, list, nil
}

func failureText(err error) string {
	if status := api.StatusOf(err); status > 0 && api.Message(err) == api.DefaultMessage {
		return fmt.Sprintf("Server responded with status: %d", status)
	}
	return api.Message(err)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

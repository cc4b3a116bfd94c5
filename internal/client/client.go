// Package client is the operation surface of bookd. Every remote operation
// is validated locally, run under the lifecycle of its store, and recorded in
// the ledger.
package client

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/dokzlo13/bookd/internal/api"
	"github.com/dokzlo13/bookd/internal/eventbus"
	"github.com/dokzlo13/bookd/internal/ledger"
	"github.com/dokzlo13/bookd/internal/lifecycle"
	"github.com/dokzlo13/bookd/internal/model"
	"github.com/dokzlo13/bookd/internal/reconcile"
	"github.com/dokzlo13/bookd/internal/session"
	"github.com/dokzlo13/bookd/internal/stores"
	"github.com/dokzlo13/bookd/internal/validation"
)

// Ledger records settled operations.
type Ledger interface {
	Append(ctx context.Context, e ledger.Entry) error
}

// Deps are the collaborators of a Client. Ledger, Bus and Policy are
// optional.
type Deps struct {
	Gateway   *api.Gateway
	Sessions  *session.Store
	Registry  *stores.Registry
	Validator *validation.Validator
	Ledger    Ledger
	Bus       *eventbus.Bus
	Policy    reconcile.RetryPolicy
}

// Client runs operations against the booking API.
type Client struct {
	gw        *api.Gateway
	sessions  *session.Store
	reg       *stores.Registry
	validator *validation.Validator
	ledger    Ledger
	bus       *eventbus.Bus
	policy    reconcile.RetryPolicy

	mu            sync.Mutex
	confirmations map[string]*reconcile.Confirmation
}

// New creates a client. Call Open before running operations.
func New(deps Deps) *Client {
	policy := deps.Policy
	if policy == nil {
		policy = reconcile.DefaultPolicy()
	}
	return &Client{
		gw:            deps.Gateway,
		sessions:      deps.Sessions,
		reg:           deps.Registry,
		validator:     deps.Validator,
		ledger:        deps.Ledger,
		bus:           deps.Bus,
		policy:        policy,
		confirmations: make(map[string]*reconcile.Confirmation),
	}
}

// Open seeds the session store from persistence. A missing or unreadable
// record leaves the client anonymous.
func (c *Client) Open(ctx context.Context) error {
	sess, err := c.sessions.Load(ctx)
	if err != nil {
		log.Warn().Err(err).Msg("Could not load persisted session, starting anonymous")
		return nil
	}
	if sess != nil {
		c.reg.Session().Set(sess)
		log.Info().Str("user_id", sess.ID()).Msg("Restored session")
	}
	return nil
}

// Close cancels running confirmations and releases the in-memory session.
// The persisted record is kept.
func (c *Client) Close() {
	c.mu.Lock()
	running := make([]*reconcile.Confirmation, 0, len(c.confirmations))
	for _, conf := range c.confirmations {
		running = append(running, conf)
	}
	c.confirmations = make(map[string]*reconcile.Confirmation)
	c.mu.Unlock()

	for _, conf := range running {
		conf.Cancel()
	}
	c.reg.Session().Set(nil)
}

// Session returns the current session, or nil when anonymous.
func (c *Client) Session() *model.Session {
	return c.reg.Session().Value()
}

// Registry returns the stores.
func (c *Client) Registry() *stores.Registry {
	return c.reg
}

// token returns the bearer token of the current session, if any.
func (c *Client) token() string {
	if sess := c.Session(); sess != nil {
		return sess.Token
	}
	return ""
}

// operation carries the ledger fields of one call.
type operation struct {
	name      string
	resource  string
	requestID string
}

func (c *Client) begin(ctx context.Context, name, resource string) (context.Context, operation) {
	op := operation{name: name, resource: resource, requestID: uuid.NewString()}
	return api.WithRequestID(ctx, op.requestID), op
}

// reject records an operation refused before any request was made.
func (c *Client) reject(ctx context.Context, op operation, err error) error {
	log.Info().Str("operation", op.name).Str("reason", api.Message(err)).Msg("Operation rejected")
	c.record(ctx, op, ledger.OutcomeRejected, api.Message(err))
	return err
}

// settle records the outcome of a lifecycle-wrapped call.
func (c *Client) settle(ctx context.Context, op operation, err error) {
	res, _ := c.reg.Lookup(op.resource)
	message := ""
	if res != nil {
		message = res.State().Message
	}

	switch {
	case errors.Is(err, lifecycle.ErrStale):
		c.record(ctx, op, ledger.OutcomeStale, "")
	case err != nil:
		log.Warn().Err(err).Str("operation", op.name).Str("request_id", op.requestID).Msg("Operation failed")
		c.record(ctx, op, ledger.OutcomeFailed, api.Message(err))
	default:
		log.Info().Str("operation", op.name).Str("request_id", op.requestID).Msg("Operation succeeded")
		c.record(ctx, op, ledger.OutcomeSucceeded, message)
	}
}

func (c *Client) record(ctx context.Context, op operation, outcome ledger.Outcome, message string) {
	if c.ledger == nil {
		return
	}
	err := c.ledger.Append(context.WithoutCancel(ctx), ledger.Entry{
		Operation: op.name,
		Resource:  op.resource,
		Outcome:   outcome,
		Message:   message,
		RequestID: op.requestID,
	})
	if err != nil {
		log.Warn().Err(err).Str("operation", op.name).Msg("Failed to append ledger entry")
	}
}

// errEmptyResponse is returned when a call that must produce an entity
// returns no body.
func errEmptyResponse(what string) error {
	return fmt.Errorf("empty %s in response", what)
}

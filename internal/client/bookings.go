package client

import (
	"context"

	"github.com/rs/zerolog/log"

	"github.com/dokzlo13/bookd/internal/eventbus"
	"github.com/dokzlo13/bookd/internal/lifecycle"
	"github.com/dokzlo13/bookd/internal/model"
	"github.com/dokzlo13/bookd/internal/reconcile"
	"github.com/dokzlo13/bookd/internal/stores"
	"github.com/dokzlo13/bookd/internal/validation"
)

// MsgBooked is the success message of CreateBooking.
const MsgBooked = "Booking created successfully!"

// CreateBooking validates draft and submits it for the current user. An
// authenticated session is required. The created booking becomes the value
// of the booking store and is the optimistic input of Confirm.
func (c *Client) CreateBooking(ctx context.Context, draft model.BookingDraft) (*model.Booking, error) {
	ctx, op := c.begin(ctx, "create_booking", stores.ResourceBooking)

	sess := c.Session()
	if err := validation.RequireSession(sess); err != nil {
		return nil, c.reject(ctx, op, err)
	}
	draft, err := c.validator.Booking(draft)
	if err != nil {
		return nil, c.reject(ctx, op, err)
	}

	req := model.BookingRequest{BookingDraft: draft, UserID: sess.ID()}
	booking, err := lifecycle.Run(ctx, c.reg.Booking(), func(ctx context.Context) (*model.Booking, error) {
		booking, err := c.gw.CreateBooking(ctx, req, sess.Token)
		if err == nil && booking == nil {
			err = errEmptyResponse("booking")
		}
		return booking, err
	}, lifecycle.Replace[*model.Booking], MsgBooked)
	c.settle(ctx, op, err)
	return booking, err
}

// LastBooking returns the booking created most recently, or nil.
func (c *Client) LastBooking() *model.Booking {
	return c.reg.Booking().Value()
}

// Confirm starts a confirmation of the current user's bookings with
// optimistic shown until the server list arrives. optimistic may be nil.
// Views are delivered to onChange and published on the bus. The returned
// confirmation is cancelled by Close; callers should Cancel it when they no
// longer need it.
func (c *Client) Confirm(ctx context.Context, optimistic *model.Booking, onChange func(reconcile.View)) *reconcile.Confirmation {
	conf := reconcile.New(ctx, c.gw, c.Session(), optimistic, reconcile.Options{
		Policy: c.policy,
		OnChange: func(v reconcile.View) {
			c.publishView(v)
			if onChange != nil {
				onChange(v)
			}
		},
	})

	c.mu.Lock()
	c.confirmations[conf.ID()] = conf
	c.mu.Unlock()

	go func() {
		<-conf.Done()
		c.mu.Lock()
		delete(c.confirmations, conf.ID())
		c.mu.Unlock()
	}()

	log.Debug().Str("confirmation", conf.ID()).Bool("optimistic", optimistic != nil).Msg("Starting confirmation")
	conf.Start()
	return conf
}

func (c *Client) publishView(v reconcile.View) {
	if c.bus == nil {
		return
	}
	data := map[string]any{
		"id":       v.ID,
		"phase":    v.Phase.String(),
		"attempts": v.Attempts,
		"count":    len(v.Bookings),
		"notice":   v.Notice,
	}
	c.bus.Publish(eventbus.Event{Type: eventbus.EventTypeConfirmation, Data: data})
}

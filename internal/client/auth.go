package client

import (
	"context"

	"github.com/rs/zerolog/log"

	"github.com/dokzlo13/bookd/internal/lifecycle"
	"github.com/dokzlo13/bookd/internal/model"
	"github.com/dokzlo13/bookd/internal/stores"
)

const (
	MsgRegistered = "Registration successful!"
	MsgLoggedIn   = "Login successful!"
	MsgLoggedOut  = "Logged out successfully!"
)

// Register creates an account and makes it the current session.
func (c *Client) Register(ctx context.Context, req model.RegisterRequest) (*model.Session, error) {
	ctx, op := c.begin(ctx, "register", stores.ResourceSession)

	req, err := c.validator.Register(req)
	if err != nil {
		return nil, c.reject(ctx, op, err)
	}

	sess, err := c.authenticate(ctx, func(ctx context.Context) (*model.Session, error) {
		return c.gw.Register(ctx, req)
	}, MsgRegistered)
	c.settle(ctx, op, err)
	return sess, err
}

// Login authenticates and makes the result the current session.
func (c *Client) Login(ctx context.Context, req model.LoginRequest) (*model.Session, error) {
	ctx, op := c.begin(ctx, "login", stores.ResourceSession)

	req, err := c.validator.Login(req)
	if err != nil {
		return nil, c.reject(ctx, op, err)
	}

	sess, err := c.authenticate(ctx, func(ctx context.Context) (*model.Session, error) {
		return c.gw.Login(ctx, req)
	}, MsgLoggedIn)
	c.settle(ctx, op, err)
	return sess, err
}

func (c *Client) authenticate(ctx context.Context, call lifecycle.Op[*model.Session], message string) (*model.Session, error) {
	sess, err := lifecycle.Run(ctx, c.reg.Session(), func(ctx context.Context) (*model.Session, error) {
		sess, err := call(ctx)
		if err != nil {
			return nil, err
		}
		if !sess.Valid() {
			return nil, errEmptyResponse("session")
		}
		return sess, nil
	}, lifecycle.Replace[*model.Session], message)
	if err != nil {
		return nil, err
	}

	if err := c.sessions.Save(ctx, sess); err != nil {
		log.Warn().Err(err).Msg("Failed to persist session")
	}
	return sess, nil
}

// Logout ends the session on the server, then clears it locally. A failed
// server call keeps the local session.
func (c *Client) Logout(ctx context.Context) error {
	ctx, op := c.begin(ctx, "logout", stores.ResourceSession)
	token := c.token()

	_, err := lifecycle.Run(ctx, c.reg.Session(), func(ctx context.Context) (*model.Session, error) {
		return nil, c.gw.Logout(ctx, token)
	}, lifecycle.Replace[*model.Session], MsgLoggedOut)
	if err == nil {
		if err := c.sessions.Clear(ctx); err != nil {
			log.Warn().Err(err).Msg("Failed to clear persisted session")
		}
	}
	c.settle(ctx, op, err)
	return err
}

// ForgetSession drops the session locally and from persistence without
// contacting the server.
func (c *Client) ForgetSession(ctx context.Context) error {
	c.reg.Session().Set(nil)
	return c.sessions.Clear(ctx)
}

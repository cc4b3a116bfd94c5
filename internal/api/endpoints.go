package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/dokzlo13/bookd/internal/model"
)

// Register creates an account and returns its session.
func (g *Gateway) Register(ctx context.Context, req model.RegisterRequest) (*model.Session, error) {
	raw, err := g.Call(ctx, g.routes.Register, http.MethodPost, req, "")
	if err != nil {
		return nil, err
	}
	return decode[*model.Session](raw, "session")
}

// Login authenticates and returns the session.
func (g *Gateway) Login(ctx context.Context, req model.LoginRequest) (*model.Session, error) {
	raw, err := g.Call(ctx, g.routes.Login, http.MethodPost, req, "")
	if err != nil {
		return nil, err
	}
	return decode[*model.Session](raw, "session")
}

// Logout ends the server-side session. The call relies on the cookie jar;
// token is sent as well when present.
func (g *Gateway) Logout(ctx context.Context, token string) error {
	_, err := g.Call(ctx, g.routes.Logout, http.MethodPost, nil, token)
	return err
}

// ListRooms returns all rooms.
func (g *Gateway) ListRooms(ctx context.Context) ([]model.Room, error) {
	raw, err := g.Call(ctx, g.routes.Rooms, http.MethodGet, nil, "")
	if err != nil {
		return nil, err
	}
	rooms, err := decode[[]model.Room](raw, "rooms")
	if err != nil {
		return nil, err
	}
	if rooms == nil {
		rooms = []model.Room{}
	}
	return rooms, nil
}

// GetRoom returns one room.
func (g *Gateway) GetRoom(ctx context.Context, id string) (*model.Room, error) {
	raw, err := g.Call(ctx, g.routes.Room(id), http.MethodGet, nil, "")
	if err != nil {
		return nil, err
	}
	return decode[*model.Room](raw, "room")
}

// CreateRoom creates a room.
func (g *Gateway) CreateRoom(ctx context.Context, in model.RoomInput, token string) (*model.Room, error) {
	raw, err := g.Call(ctx, g.routes.Rooms, http.MethodPost, in, token)
	if err != nil {
		return nil, err
	}
	return decode[*model.Room](raw, "room")
}

// UpdateRoom replaces the fields of room id.
func (g *Gateway) UpdateRoom(ctx context.Context, id string, in model.RoomInput, token string) (*model.Room, error) {
	raw, err := g.Call(ctx, g.routes.Room(id), http.MethodPut, in, token)
	if err != nil {
		return nil, err
	}
	room, err := decode[*model.Room](raw, "room")
	if err != nil {
		return nil, err
	}
	if room == nil {
		return nil, fmt.Errorf("empty room in update response")
	}
	if room.ID == "" {
		room.ID = id
	}
	return room, nil
}

// DeleteRoom deletes room id.
func (g *Gateway) DeleteRoom(ctx context.Context, id string, token string) error {
	_, err := g.Call(ctx, g.routes.Room(id), http.MethodDelete, nil, token)
	return err
}

// CreateBooking submits a booking.
func (g *Gateway) CreateBooking(ctx context.Context, req model.BookingRequest, token string) (*model.Booking, error) {
	raw, err := g.Call(ctx, g.routes.Bookings, http.MethodPost, req, token)
	if err != nil {
		return nil, err
	}
	return decode[*model.Booking](raw, "booking")
}

// ListUserBookings returns the raw booking list of userID. The body shape
// varies between deployments, see reconcile.Normalize.
func (g *Gateway) ListUserBookings(ctx context.Context, userID, token string) (json.RawMessage, error) {
	return g.Call(ctx, g.routes.UserBookings(userID), http.MethodGet, nil, token)
}

func decode[T any](raw json.RawMessage, what string) (T, error) {
	var out T
	if len(raw) == 0 {
		return out, nil
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return out, fmt.Errorf("could not decode %s: %w", what, err)
	}
	return out, nil
}

package client

import (
	"context"

	"github.com/dokzlo13/bookd/internal/lifecycle"
	"github.com/dokzlo13/bookd/internal/model"
	"github.com/dokzlo13/bookd/internal/stores"
)

// ListRooms refreshes the room collection.
func (c *Client) ListRooms(ctx context.Context) ([]model.Room, error) {
	ctx, op := c.begin(ctx, "list_rooms", stores.ResourceRooms)

	rooms, err := lifecycle.Run(ctx, c.reg.Rooms(), c.gw.ListRooms, stores.WithRooms, "")
	c.settle(ctx, op, err)
	return rooms, err
}

// GetRoom loads one room and makes it the selection.
func (c *Client) GetRoom(ctx context.Context, id string) (*model.Room, error) {
	ctx, op := c.begin(ctx, "get_room", stores.ResourceRooms)

	room, err := lifecycle.Run(ctx, c.reg.Rooms(), func(ctx context.Context) (*model.Room, error) {
		room, err := c.gw.GetRoom(ctx, id)
		if err == nil && room == nil {
			err = errEmptyResponse("room")
		}
		return room, err
	}, stores.WithSelected, "")
	c.settle(ctx, op, err)
	return room, err
}

// CreateRoom creates a room and appends it to the collection. Overlapping
// create, update and delete calls each merge their own result.
func (c *Client) CreateRoom(ctx context.Context, in model.RoomInput) (*model.Room, error) {
	ctx, op := c.begin(ctx, "create_room", stores.ResourceRooms)

	in, err := c.validator.Room(in)
	if err != nil {
		return nil, c.reject(ctx, op, err)
	}

	token := c.token()
	room, err := lifecycle.RunKeyed(ctx, c.reg.Rooms(), func(ctx context.Context) (*model.Room, error) {
		room, err := c.gw.CreateRoom(ctx, in, token)
		if err == nil && room == nil {
			err = errEmptyResponse("room")
		}
		return room, err
	}, stores.WithCreated, "Room created")
	c.settle(ctx, op, err)
	return room, err
}

// UpdateRoom replaces room id and swaps it in the collection.
func (c *Client) UpdateRoom(ctx context.Context, id string, in model.RoomInput) (*model.Room, error) {
	ctx, op := c.begin(ctx, "update_room", stores.ResourceRooms)

	in, err := c.validator.Room(in)
	if err != nil {
		return nil, c.reject(ctx, op, err)
	}

	token := c.token()
	room, err := lifecycle.RunKeyed(ctx, c.reg.Rooms(), func(ctx context.Context) (*model.Room, error) {
		return c.gw.UpdateRoom(ctx, id, in, token)
	}, stores.WithUpdated, "Room updated")
	c.settle(ctx, op, err)
	return room, err
}

// DeleteRoom deletes room id and drops it from the collection.
func (c *Client) DeleteRoom(ctx context.Context, id string) error {
	ctx, op := c.begin(ctx, "delete_room", stores.ResourceRooms)

	token := c.token()
	_, err := lifecycle.RunKeyed(ctx, c.reg.Rooms(), func(ctx context.Context) (string, error) {
		return id, c.gw.DeleteRoom(ctx, id, token)
	}, stores.WithDeleted, "Room deleted")
	c.settle(ctx, op, err)
	return err
}

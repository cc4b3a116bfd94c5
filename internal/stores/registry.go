// Package stores holds the client-side resources: the session, the room
// catalog and the last created booking.
package stores

import (
	"github.com/dokzlo13/bookd/internal/eventbus"
	"github.com/dokzlo13/bookd/internal/lifecycle"
	"github.com/dokzlo13/bookd/internal/model"
)

// Resource names, also used as event types.
const (
	ResourceSession = string(eventbus.EventTypeSession)
	ResourceRooms   = string(eventbus.EventTypeRooms)
	ResourceBooking = string(eventbus.EventTypeBooking)
)

// RoomCatalog is the cached room collection and the currently selected room.
type RoomCatalog struct {
	Rooms    []model.Room
	Selected *model.Room
}

// Resetter is the part of a resource every store exposes uniformly.
type Resetter interface {
	Name() string
	State() lifecycle.RequestState
	Reset()
}

// Registry owns one resource per entity. Resources are only mutated through
// lifecycle transitions.
type Registry struct {
	session *lifecycle.Resource[*model.Session]
	rooms   *lifecycle.Resource[RoomCatalog]
	booking *lifecycle.Resource[*model.Booking]
}

// NewRegistry creates empty stores. When bus is non-nil every transition is
// published as an event named after the resource.
func NewRegistry(bus *eventbus.Bus) *Registry {
	r := &Registry{
		session: lifecycle.NewResource[*model.Session](ResourceSession, nil),
		rooms:   lifecycle.NewResource(ResourceRooms, RoomCatalog{Rooms: []model.Room{}}),
		booking: lifecycle.NewResource[*model.Booking](ResourceBooking, nil),
	}

	if bus != nil {
		publish := func(name string, state lifecycle.RequestState) {
			bus.Publish(eventbus.Event{
				Type: eventbus.EventType(name),
				Data: map[string]any{
					"status":  state.Status.String(),
					"message": state.Message,
				},
			})
		}
		r.session.Observe(publish)
		r.rooms.Observe(publish)
		r.booking.Observe(publish)
	}

	return r
}

// Session returns the session store.
func (r *Registry) Session() *lifecycle.Resource[*model.Session] {
	return r.session
}

// Rooms returns the room catalog store.
func (r *Registry) Rooms() *lifecycle.Resource[RoomCatalog] {
	return r.rooms
}

// Booking returns the created-booking store.
func (r *Registry) Booking() *lifecycle.Resource[*model.Booking] {
	return r.booking
}

// Lookup returns the store called name.
func (r *Registry) Lookup(name string) (Resetter, bool) {
	switch name {
	case ResourceSession:
		return r.session, true
	case ResourceRooms:
		return r.rooms, true
	case ResourceBooking:
		return r.booking, true
	}
	return nil, false
}

// ResetAll returns every store to idle.
func (r *Registry) ResetAll() {
	r.session.Reset()
	r.rooms.Reset()
	r.booking.Reset()
}

// WithRooms replaces the collection, keeping the selection.
func WithRooms(c RoomCatalog, rooms []model.Room) RoomCatalog {
	return RoomCatalog{Rooms: rooms, Selected: c.Selected}
}

// WithSelected replaces the selection, keeping the collection.
func WithSelected(c RoomCatalog, room *model.Room) RoomCatalog {
	return RoomCatalog{Rooms: c.Rooms, Selected: room}
}

// WithCreated appends a created room.
func WithCreated(c RoomCatalog, room *model.Room) RoomCatalog {
	if room == nil {
		return c
	}
	return RoomCatalog{Rooms: lifecycle.Append(c.Rooms, *room), Selected: c.Selected}
}

// WithUpdated swaps the updated room in the collection and the selection.
func WithUpdated(c RoomCatalog, room *model.Room) RoomCatalog {
	if room == nil {
		return c
	}
	selected := c.Selected
	if selected != nil && selected.ID == room.ID {
		selected = room
	}
	return RoomCatalog{Rooms: lifecycle.ReplaceByID(c.Rooms, *room), Selected: selected}
}

// WithDeleted drops room id from the collection and clears a matching
// selection.
func WithDeleted(c RoomCatalog, id string) RoomCatalog {
	selected := c.Selected
	if selected != nil && selected.ID == id {
		selected = nil
	}
	return RoomCatalog{Rooms: lifecycle.RemoveByID(c.Rooms, id), Selected: selected}
}

// Package model defines the entities exchanged with the booking API.
package model

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Session is the authenticated identity returned by register/login.
// The API has shipped two shapes: {userId, token} and the legacy
// {_id, name, token}. Both decode into the same struct.
type Session struct {
	UserID   string `json:"userId,omitempty"`
	LegacyID string `json:"_id,omitempty"`
	Name     string `json:"name,omitempty"`
	Email    string `json:"email,omitempty"`
	Token    string `json:"token,omitempty"`
}

// ID returns the user identifier regardless of the session shape.
func (s *Session) ID() string {
	if s == nil {
		return ""
	}
	if s.UserID != "" {
		return s.UserID
	}
	return s.LegacyID
}

// Valid reports whether the session identifies a user.
func (s *Session) Valid() bool {
	return s.ID() != ""
}

// Room is a bookable room as served by /api/rooms.
type Room struct {
	ID          string   `json:"_id"`
	Name        string   `json:"name"`
	Description string   `json:"description,omitempty"`
	Price       float64  `json:"price"`
	Images      []string `json:"images,omitempty"`
}

// Key returns the room identifier.
func (r Room) Key() string {
	return r.ID
}

// UnmarshalJSON accepts the identifier as either "_id" or "id".
func (r *Room) UnmarshalJSON(data []byte) error {
	type plain Room
	var aux struct {
		plain
		AltID string `json:"id"`
	}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	*r = Room(aux.plain)
	if r.ID == "" {
		r.ID = aux.AltID
	}
	return nil
}

// RoomRef is a booking's room reference. The API returns either the bare
// room id or a populated room document.
type RoomRef struct {
	ID   string
	Room *Room
}

// Ref builds a RoomRef from a bare id.
func Ref(id string) RoomRef {
	return RoomRef{ID: id}
}

// UnmarshalJSON implements json.Unmarshaler.
func (r *RoomRef) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	switch {
	case bytes.Equal(data, []byte("null")):
		*r = RoomRef{}
		return nil
	case len(data) > 0 && data[0] == '"':
		var id string
		if err := json.Unmarshal(data, &id); err != nil {
			return err
		}
		*r = RoomRef{ID: id}
		return nil
	case len(data) > 0 && data[0] == '{':
		var room Room
		if err := json.Unmarshal(data, &room); err != nil {
			return err
		}
		*r = RoomRef{ID: room.ID, Room: &room}
		return nil
	}
	return fmt.Errorf("unsupported roomId value: %s", string(data))
}

// MarshalJSON always writes the bare id.
func (r RoomRef) MarshalJSON() ([]byte, error) {
	return json.Marshal(r.ID)
}

// Booking is a reservation as served by /api/bookings.
type Booking struct {
	ID           string  `json:"_id,omitempty"`
	RoomID       RoomRef `json:"roomId"`
	RoomName     string  `json:"roomName,omitempty"`
	UserID       string  `json:"userId,omitempty"`
	Name         string  `json:"name"`
	Email        string  `json:"email"`
	CheckInDate  string  `json:"checkInDate"`
	CheckOutDate string  `json:"checkOutDate"`
	Status       string  `json:"status,omitempty"`
}

// Key returns the booking identifier.
func (b Booking) Key() string {
	return b.ID
}

// UnmarshalJSON accepts the identifier as either "_id" or "id".
func (b *Booking) UnmarshalJSON(data []byte) error {
	type plain Booking
	var aux struct {
		plain
		AltID string `json:"id"`
	}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	*b = Booking(aux.plain)
	if b.ID == "" {
		b.ID = aux.AltID
	}
	return nil
}

// DisplayRoom returns the best available room label.
func (b Booking) DisplayRoom() string {
	if b.RoomName != "" {
		return b.RoomName
	}
	if b.RoomID.Room != nil && b.RoomID.Room.Name != "" {
		return b.RoomID.Room.Name
	}
	return "Room Booking"
}

// DisplayStatus returns the status, defaulting to "Confirmed".
func (b Booking) DisplayStatus() string {
	if b.Status != "" {
		return b.Status
	}
	return "Confirmed"
}

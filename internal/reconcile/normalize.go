package reconcile

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/dokzlo13/bookd/internal/model"
)

// Envelope is the response shape a booking list arrived in.
type Envelope int

const (
	EnvelopeUnknown Envelope = iota
	EnvelopeBare
	EnvelopeBookings
	EnvelopeData
)

// String returns a human-readable name for the envelope.
func (e Envelope) String() string {
	switch e {
	case EnvelopeBare:
		return "bare"
	case EnvelopeBookings:
		return "bookings"
	case EnvelopeData:
		return "data"
	default:
		return "unknown"
	}
}

// Normalize decodes a booking list delivered as a bare array, as
// {"bookings": [...]} or as {"data": [...]}. Any other shape yields an empty
// list. The result is never nil.
func Normalize(raw json.RawMessage) ([]model.Booking, Envelope, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return []model.Booking{}, EnvelopeUnknown, nil
	}

	switch raw[0] {
	case '[':
		list, err := decodeList(raw)
		return list, EnvelopeBare, err
	case '{':
		var env struct {
			Bookings json.RawMessage `json:"bookings"`
			Data     json.RawMessage `json:"data"`
		}
		if err := json.Unmarshal(raw, &env); err != nil {
			return []model.Booking{}, EnvelopeUnknown, fmt.Errorf("could not decode booking envelope: %w", err)
		}
		if isArray(env.Bookings) {
			list, err := decodeList(env.Bookings)
			return list, EnvelopeBookings, err
		}
		if isArray(env.Data) {
			list, err := decodeList(env.Data)
			return list, EnvelopeData, err
		}
	}
	return []model.Booking{}, EnvelopeUnknown, nil
}

func isArray(raw json.RawMessage) bool {
	raw = bytes.TrimSpace(raw)
	return len(raw) > 0 && raw[0] == '['
}

func decodeList(raw json.RawMessage) ([]model.Booking, error) {
	var list []model.Booking
	if err := json.Unmarshal(raw, &list); err != nil {
		return []model.Booking{}, fmt.Errorf("could not decode bookings: %w", err)
	}
	if list == nil {
		list = []model.Booking{}
	}
	return list, nil
}

package app

import (
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/dokzlo13/bookd/internal/eventbus"
)

// EventService logs every store and confirmation event.
type EventService struct {
	bus *eventbus.Bus
}

// NewEventService creates a new EventService.
func NewEventService(bus *eventbus.Bus) *EventService {
	return &EventService{bus: bus}
}

// Start subscribes to all event types.
func (s *EventService) Start() {
	for _, t := range []eventbus.EventType{
		eventbus.EventTypeSession,
		eventbus.EventTypeRooms,
		eventbus.EventTypeBooking,
		eventbus.EventTypeConfirmation,
	} {
		s.bus.Subscribe(t, s.handle)
	}
}

func (s *EventService) handle(e eventbus.Event) {
	level := zerolog.DebugLevel
	if status, _ := e.Data["status"].(string); status == "failed" {
		level = zerolog.InfoLevel
	}

	log.WithLevel(level).
		Str("event", string(e.Type)).
		Fields(e.Data).
		Msg("Store event")
}

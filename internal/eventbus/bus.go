// Package eventbus delivers store change notifications to subscribers on a
// bounded worker pool.
package eventbus

import (
	"context"
	"hash/fnv"
	"sync"

	"github.com/rs/zerolog/log"
)

// EventType names a stream of events. Store events use the resource name.
type EventType string

const (
	EventTypeSession      EventType = "session"
	EventTypeRooms        EventType = "rooms"
	EventTypeBooking      EventType = "booking"
	EventTypeConfirmation EventType = "confirmation"
)

const (
	DefaultWorkerCount = 2
	DefaultQueueSize   = 100
)

// Event is one notification.
type Event struct {
	Type EventType
	Data map[string]any
}

// Handler handles events.
type Handler func(Event)

type work struct {
	event   Event
	handler Handler
}

// Bus routes events to handlers. Events of one type always land on the same
// worker, so subscribers observe them in publish order.
type Bus struct {
	mu       sync.RWMutex
	handlers map[EventType][]Handler

	queues []chan work
	wg     sync.WaitGroup

	closeMu sync.RWMutex
	closed  bool
}

// New creates a bus with default settings.
func New() *Bus {
	return NewWithConfig(DefaultWorkerCount, DefaultQueueSize)
}

// NewWithConfig creates a bus with workerCount workers, each with a queue of
// queueSize events.
func NewWithConfig(workerCount, queueSize int) *Bus {
	if workerCount <= 0 {
		workerCount = DefaultWorkerCount
	}
	if queueSize <= 0 {
		queueSize = DefaultQueueSize
	}

	b := &Bus{
		handlers: make(map[EventType][]Handler),
		queues:   make([]chan work, workerCount),
	}

	for i := range b.queues {
		b.queues[i] = make(chan work, queueSize)
		b.wg.Add(1)
		go b.worker(i, b.queues[i])
	}

	log.Debug().Int("workers", workerCount).Int("queue_size", queueSize).Msg("Event bus worker pool started")
	return b
}

func (b *Bus) worker(id int, queue <-chan work) {
	defer b.wg.Done()

	for w := range queue {
		func() {
			defer func() {
				if r := recover(); r != nil {
					log.Error().
						Interface("panic", r).
						Str("event_type", string(w.event.Type)).
						Int("worker", id).
						Msg("Event handler panicked")
				}
			}()
			w.handler(w.event)
		}()
	}
}

// Subscribe registers handler for eventType.
func (b *Bus) Subscribe(eventType EventType, handler Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.handlers[eventType] = append(b.handlers[eventType], handler)
}

// Publish queues event for every handler of its type. It never blocks: when
// the queue is full or the bus is closed the event is dropped.
func (b *Bus) Publish(event Event) {
	b.mu.RLock()
	handlers := b.handlers[event.Type]
	b.mu.RUnlock()

	if len(handlers) == 0 {
		return
	}

	b.closeMu.RLock()
	defer b.closeMu.RUnlock()
	if b.closed {
		log.Debug().Str("event_type", string(event.Type)).Msg("Event bus closed, dropping event")
		return
	}

	queue := b.queues[b.shard(event.Type)]
	for _, handler := range handlers {
		select {
		case queue <- work{event: event, handler: handler}:
		default:
			log.Warn().
				Str("event_type", string(event.Type)).
				Msg("Event bus queue full, dropping event")
		}
	}
}

func (b *Bus) shard(t EventType) int {
	h := fnv.New32a()
	h.Write([]byte(t))
	return int(h.Sum32() % uint32(len(b.queues)))
}

// Close stops accepting events and waits for queued ones to be handled or
// for ctx to expire.
func (b *Bus) Close(ctx context.Context) {
	b.closeMu.Lock()
	if b.closed {
		b.closeMu.Unlock()
		return
	}
	b.closed = true
	for _, q := range b.queues {
		close(q)
	}
	b.closeMu.Unlock()

	done := make(chan struct{})
	go func() {
		b.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		log.Debug().Msg("Event bus workers stopped gracefully")
	case <-ctx.Done():
		log.Warn().Msg("Event bus shutdown timed out, some events may be lost")
	}
}

// Clear removes all handlers.
func (b *Bus) Clear() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.handlers = make(map[EventType][]Handler)
}

package eventbus

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBus_DeliversInOrderPerType(t *testing.T) {
	b := NewWithConfig(4, 100)

	var mu sync.Mutex
	var got []int
	b.Subscribe(EventTypeBooking, func(e Event) {
		mu.Lock()
		got = append(got, e.Data["n"].(int))
		mu.Unlock()
	})

	for i := 0; i < 50; i++ {
		b.Publish(Event{Type: EventTypeBooking, Data: map[string]any{"n": i}})
	}
	b.Close(context.Background())

	require.Len(t, got, 50)
	for i, n := range got {
		assert.Equal(t, i, n)
	}
}

func TestBus_OnlyMatchingHandlers(t *testing.T) {
	b := New()

	var mu sync.Mutex
	calls := map[EventType]int{}
	for _, typ := range []EventType{EventTypeSession, EventTypeRooms} {
		typ := typ
		b.Subscribe(typ, func(e Event) {
			mu.Lock()
			calls[typ]++
			mu.Unlock()
		})
	}

	b.Publish(Event{Type: EventTypeSession})
	b.Publish(Event{Type: EventTypeSession})
	b.Publish(Event{Type: EventTypeBooking})
	b.Close(context.Background())

	assert.Equal(t, 2, calls[EventTypeSession])
	assert.Equal(t, 0, calls[EventTypeRooms])
}

func TestBus_PanicDoesNotKillWorker(t *testing.T) {
	b := NewWithConfig(1, 10)

	done := make(chan struct{})
	b.Subscribe(EventTypeRooms, func(e Event) {
		if e.Data["panic"] == true {
			panic("boom")
		}
		close(done)
	})

	b.Publish(Event{Type: EventTypeRooms, Data: map[string]any{"panic": true}})
	b.Publish(Event{Type: EventTypeRooms, Data: map[string]any{}})

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("handler after panic was not called")
	}
	b.Close(context.Background())
}

func TestBus_PublishAfterCloseIsDropped(t *testing.T) {
	b := New()
	b.Subscribe(EventTypeSession, func(Event) { t.Error("unexpected delivery") })
	b.Close(context.Background())
	b.Close(context.Background())

	assert.NotPanics(t, func() { b.Publish(Event{Type: EventTypeSession}) })
}

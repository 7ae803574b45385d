package event_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"focusflow/backend/internal/event"
)

func TestBusFansOutToEverySubscriber(t *testing.T) {
	bus := event.NewBus(4)
	defer bus.Close()

	first := bus.Subscribe()
	second := bus.Subscribe()

	evt := event.Event{
		Type:      event.TypeSessionStarted,
		OwnerID:   "owner-1",
		SessionID: "session-1",
		Cycle:     1,
	}
	bus.Publish(evt)

	assert.Equal(t, evt, <-first)
	assert.Equal(t, evt, <-second)
}

func TestBusDropsWhenSubscriberIsFull(t *testing.T) {
	bus := event.NewBus(1)
	defer bus.Close()

	slow := bus.Subscribe()

	bus.Publish(event.Event{SessionID: "kept"})
	// The buffer is full; this one is dropped instead of blocking.
	bus.Publish(event.Event{SessionID: "dropped"})

	got := <-slow
	assert.Equal(t, "kept", got.SessionID)
	select {
	case extra := <-slow:
		t.Fatalf("expected no buffered event, got %+v", extra)
	default:
	}
}

func TestBusCloseEndsSubscriptions(t *testing.T) {
	bus := event.NewBus(4)
	sub := bus.Subscribe()

	bus.Close()

	_, open := <-sub
	require.False(t, open)

	// Publishing and closing again are safe no-ops.
	bus.Publish(event.Event{SessionID: "late"})
	bus.Close()

	late := bus.Subscribe()
	_, open = <-late
	assert.False(t, open)
}

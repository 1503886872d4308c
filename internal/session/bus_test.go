package session

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBus_DeliversByTopic(t *testing.T) {
	bus := NewBus()
	a := bus.Subscribe("a")
	b := bus.Subscribe("b")
	defer a.Close()
	defer b.Close()

	assert.Equal(t, 1, bus.Publish(Event{Kind: EventSessionDelete, Topic: "a"}))

	select {
	case ev := <-a.Events():
		assert.Equal(t, "a", ev.Topic)
		assert.Equal(t, EventSessionDelete, ev.Kind)
	case <-time.After(time.Second):
		t.Fatal("event not delivered")
	}

	select {
	case ev := <-b.Events():
		t.Fatalf("unexpected event on b: %+v", ev)
	default:
	}
}

func TestBus_CloseUnsubscribes(t *testing.T) {
	bus := NewBus()
	s := bus.Subscribe("a")
	require.Equal(t, 1, bus.Subscribers("a"))
	assert.Equal(t, "a", s.Topic())

	s.Close()
	s.Close()

	assert.Zero(t, bus.Subscribers("a"))
	assert.Zero(t, bus.Publish(Event{Kind: EventSessionUpdate, Topic: "a"}))

	select {
	case <-s.Done():
	default:
		t.Fatal("done not closed")
	}
}

func TestBus_PublishUnblocksOnClose(t *testing.T) {
	bus := NewBus()
	s := bus.Subscribe("a")

	for i := 0; i < subscriptionBuffer; i++ {
		require.Equal(t, 1, bus.Publish(Event{Kind: EventSessionUpdate, Topic: "a"}))
	}

	done := make(chan int, 1)
	go func() { done <- bus.Publish(Event{Kind: EventSessionUpdate, Topic: "a"}) }()

	time.Sleep(20 * time.Millisecond)
	s.Close()

	select {
	case n := <-done:
		assert.Zero(t, n)
	case <-time.After(time.Second):
		t.Fatal("publish still blocked after close")
	}
}

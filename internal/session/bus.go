package session

import (
	"sync"

	"github.com/google/uuid"

	"github.com/HefaCom/health-florence-sub002/internal/model"
)

// EventKind is a session lifecycle notification type
type EventKind string

const (
	EventSessionUpdate EventKind = "session_update"
	EventSessionDelete EventKind = "session_delete"
)

// Event is a lifecycle notification for one session topic.
// Namespaces is set for session_update only.
type Event struct {
	Kind       EventKind
	Topic      string
	Namespaces map[string]model.Namespace
}

const subscriptionBuffer = 8

// Bus fans lifecycle events out to subscribers of the event's topic.
// The session client publishes; managers subscribe per held topic.
type Bus struct {
	mu   sync.RWMutex
	subs map[string]map[string]*Subscription // topic -> id -> subscription
}

// NewBus creates an empty bus
func NewBus() *Bus {
	return &Bus{subs: make(map[string]map[string]*Subscription)}
}

// Subscription receives the events of a single topic until closed
type Subscription struct {
	id     string
	topic  string
	bus    *Bus
	events chan Event
	done   chan struct{}
	once   sync.Once
}

// Subscribe registers for events on topic
func (b *Bus) Subscribe(topic string) *Subscription {
	s := &Subscription{
		id:     uuid.NewString(),
		topic:  topic,
		bus:    b,
		events: make(chan Event, subscriptionBuffer),
		done:   make(chan struct{}),
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.subs[topic] == nil {
		b.subs[topic] = make(map[string]*Subscription)
	}
	b.subs[topic][s.id] = s
	return s
}

// Publish delivers ev to every open subscription of ev.Topic and returns how many
// received it. A send waits for a full subscriber unless that subscriber closes.
func (b *Bus) Publish(ev Event) int {
	b.mu.RLock()
	targets := make([]*Subscription, 0, len(b.subs[ev.Topic]))
	for _, s := range b.subs[ev.Topic] {
		targets = append(targets, s)
	}
	b.mu.RUnlock()

	delivered := 0
	for _, s := range targets {
		select {
		case <-s.done:
			continue
		default:
		}
		select {
		case s.events <- ev:
			delivered++
		case <-s.done:
		}
	}
	return delivered
}

// Subscribers returns the number of open subscriptions on topic
func (b *Bus) Subscribers(topic string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs[topic])
}

func (b *Bus) remove(s *Subscription) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if m := b.subs[s.topic]; m != nil {
		delete(m, s.id)
		if len(m) == 0 {
			delete(b.subs, s.topic)
		}
	}
}

// Events returns the delivery channel. It is never closed; select on Done as well.
func (s *Subscription) Events() <-chan Event {
	return s.events
}

// Done is closed once the subscription is closed
func (s *Subscription) Done() <-chan struct{} {
	return s.done
}

// Topic returns the subscribed topic
func (s *Subscription) Topic() string {
	return s.topic
}

// Close unsubscribes. Safe to call more than once.
func (s *Subscription) Close() {
	s.once.Do(func() {
		close(s.done)
		s.bus.remove(s)
	})
}

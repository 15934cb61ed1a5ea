package events

import (
	"sync"
	"sync/atomic"

	"github.com/google/uuid"

	"testctl/pkg/logging"
)

// EventFilter reports whether a subscriber wants an event. A nil filter
// accepts everything.
type EventFilter func(Event) bool

// EventSubscription is a buffered stream of events. Channel is closed
// when the subscription ends.
type EventSubscription struct {
	ID      string
	Filter  EventFilter
	Channel chan Event

	mu      sync.RWMutex
	closed  bool
	dropped atomic.Uint64
}

// Close ends the subscription and closes its channel. It is idempotent.
func (s *EventSubscription) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.closed {
		close(s.Channel)
		s.closed = true
	}
}

// IsClosed returns whether the subscription is closed
func (s *EventSubscription) IsClosed() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.closed
}

// Dropped counts the events lost because the buffer was full.
func (s *EventSubscription) Dropped() uint64 { return s.dropped.Load() }

func (s *EventSubscription) wants(event Event) bool {
	return s.Filter == nil || s.Filter(event)
}

// send delivers without blocking. The read lock keeps Close from closing
// the channel mid-send.
func (s *EventSubscription) send(event Event) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return false
	}
	select {
	case s.Channel <- event:
		return true
	default:
		s.dropped.Add(1)
		return false
	}
}

// EventBus fans events out to channel subscribers. Each subscriber sees
// events in publish order; a subscriber that falls behind loses events
// rather than slowing the publisher down.
type EventBus interface {
	Publish(event Event)
	// SubscribeChannel returns nil once the bus is closed.
	SubscribeChannel(filter EventFilter, bufferSize int) *EventSubscription
	Unsubscribe(subscription *EventSubscription)
	Stats() Stats
	Close()
}

// Stats summarises the traffic of a bus.
type Stats struct {
	Published   uint64
	Delivered   uint64
	Dropped     uint64
	Subscribers int
}

// DefaultEventBus is the in-process EventBus.
type DefaultEventBus struct {
	mu     sync.RWMutex
	subs   map[string]*EventSubscription
	closed bool

	published atomic.Uint64
	delivered atomic.Uint64
	dropped   atomic.Uint64
}

// NewEventBus creates a new event bus
func NewEventBus() EventBus {
	return &DefaultEventBus{subs: make(map[string]*EventSubscription)}
}

// Publish delivers event to every subscriber whose filter accepts it.
func (eb *DefaultEventBus) Publish(event Event) {
	// Held for the whole delivery so no subscription closes mid-send.
	eb.mu.RLock()
	defer eb.mu.RUnlock()
	if eb.closed {
		return
	}
	eb.published.Add(1)

	var lost int
	for _, sub := range eb.subs {
		if !sub.wants(event) {
			continue
		}
		if sub.send(event) {
			eb.delivered.Add(1)
		} else {
			eb.dropped.Add(1)
			lost++
		}
	}
	if lost > 0 {
		logging.Debug("EventBus", "Dropped %s for %d slow subscribers", event, lost)
	}
}

// SubscribeChannel creates a subscription buffering up to bufferSize
// events.
func (eb *DefaultEventBus) SubscribeChannel(filter EventFilter, bufferSize int) *EventSubscription {
	eb.mu.Lock()
	defer eb.mu.Unlock()
	if eb.closed {
		return nil
	}
	sub := &EventSubscription{
		ID:      uuid.NewString(),
		Filter:  filter,
		Channel: make(chan Event, bufferSize),
	}
	eb.subs[sub.ID] = sub
	return sub
}

// Unsubscribe removes and closes a subscription. Unknown or nil
// subscriptions are ignored.
func (eb *DefaultEventBus) Unsubscribe(sub *EventSubscription) {
	if sub == nil {
		return
	}
	eb.mu.Lock()
	defer eb.mu.Unlock()
	if _, ok := eb.subs[sub.ID]; ok {
		delete(eb.subs, sub.ID)
		sub.Close()
	}
}

func (eb *DefaultEventBus) Stats() Stats {
	eb.mu.RLock()
	n := len(eb.subs)
	eb.mu.RUnlock()
	return Stats{
		Published:   eb.published.Load(),
		Delivered:   eb.delivered.Load(),
		Dropped:     eb.dropped.Load(),
		Subscribers: n,
	}
}

// Close ends every subscription. Later publishes are ignored.
func (eb *DefaultEventBus) Close() {
	eb.mu.Lock()
	defer eb.mu.Unlock()
	if eb.closed {
		return
	}
	eb.closed = true
	for id, sub := range eb.subs {
		sub.Close()
		delete(eb.subs, id)
	}
}

// FilterByType accepts events of the given types.
func FilterByType(eventTypes ...EventType) EventFilter {
	want := make(map[EventType]struct{}, len(eventTypes))
	for _, t := range eventTypes {
		want[t] = struct{}{}
	}
	return func(event Event) bool {
		_, ok := want[event.Type()]
		return ok
	}
}

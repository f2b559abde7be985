// Package events is an in-process publish/subscribe bus used to notify the
// API's event stream about refreshes and deletions.
package events

import (
	"encoding/json"
	"sync"
	"time"
)

// Event types published by the catalog orchestrator
const (
	EventRefreshStarted   = "refresh.started"
	EventRefreshCompleted = "refresh.completed"
	EventTagDeleted       = "tag.deleted"

	// Wildcard subscribes to every event type.
	Wildcard = "*"
)

// subscriberBuffer is the channel capacity of each subscriber.
const subscriberBuffer = 64

// Event represents an event in the system
type Event struct {
	Type      string                 `json:"type"`
	Timestamp time.Time              `json:"timestamp"`
	Payload   map[string]interface{} `json:"payload"`
}

// NewEvent builds an event stamped with the current time.
func NewEvent(eventType string, payload map[string]interface{}) Event {
	return Event{Type: eventType, Timestamp: time.Now().UTC(), Payload: payload}
}

// Subscriber is a channel that receives events
type Subscriber chan Event

// Bus manages event subscriptions and publishing
type Bus struct {
	mu          sync.RWMutex
	subscribers map[string][]Subscriber
}

// NewBus creates a new event bus
func NewBus() *Bus {
	return &Bus{
		subscribers: make(map[string][]Subscriber),
	}
}

// Subscribe registers a subscriber for an event type, or Wildcard for all.
// The returned function unsubscribes and closes the channel; it is safe to call twice.
func (b *Bus) Subscribe(eventType string) (Subscriber, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	ch := make(Subscriber, subscriberBuffer)
	b.subscribers[eventType] = append(b.subscribers[eventType], ch)

	var once sync.Once
	unsubscribe := func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()

			subs := b.subscribers[eventType]
			for i, sub := range subs {
				if sub == ch {
					b.subscribers[eventType] = append(subs[:i], subs[i+1:]...)
					close(ch)
					break
				}
			}
		})
	}

	return ch, unsubscribe
}

// Publish delivers an event to its type's subscribers and to wildcard
// subscribers. Full subscribers miss the event; Publish never blocks.
func (b *Bus) Publish(event Event) {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}

	b.mu.RLock()
	defer b.mu.RUnlock()

	deliver(b.subscribers[event.Type], event)
	if event.Type != Wildcard {
		deliver(b.subscribers[Wildcard], event)
	}
}

// SubscriberCount returns the number of subscribers registered for eventType.
func (b *Bus) SubscriberCount(eventType string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subscribers[eventType])
}

func deliver(subs []Subscriber, event Event) {
	for _, ch := range subs {
		select {
		case ch <- event:
		default:
		}
	}
}

// MarshalEvent converts an event to JSON
func MarshalEvent(event Event) ([]byte, error) {
	return json.Marshal(event)
}

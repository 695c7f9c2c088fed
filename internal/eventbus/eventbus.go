// Package eventbus fans detected events and health snapshots out to
// subscribers: the IPC status response's subscriber_count (spec.md
// §4.8) and an optional websocket bridge. Grounded on agent-racer's
// internal/ws.Broadcaster (per-client buffered send channel, drop
// rather than block a slow subscriber) adapted from a session-state
// broadcaster to a generic pub/sub bus.
package eventbus

import (
	"sync"

	"github.com/wardeck/wardeck/internal/model"
)

// MessageKind tags what a published Message carries.
type MessageKind string

const (
	MessageEvent  MessageKind = "event"
	MessageHealth MessageKind = "health"
)

// Message is one item delivered to subscribers.
type Message struct {
	Kind   MessageKind          `json:"kind"`
	Event  *model.StoredEvent   `json:"event,omitempty"`
	Health *model.HealthSnapshot `json:"health,omitempty"`
}

// Bus is an in-process pub/sub fan-out. Each subscriber gets its own
// bounded channel; a subscriber that falls behind has messages
// dropped rather than blocking publishers.
type Bus struct {
	mu         sync.RWMutex
	subs       map[int64]chan Message
	nextID     int64
	bufferSize int
	dropped    int64
}

// New creates a Bus whose per-subscriber channel holds bufferSize
// messages before dropping.
func New(bufferSize int) *Bus {
	if bufferSize <= 0 {
		bufferSize = 32
	}
	return &Bus{subs: make(map[int64]chan Message), bufferSize: bufferSize}
}

// Subscribe registers a new subscriber and returns its id and
// receive-only channel. Call Unsubscribe(id) when done.
func (b *Bus) Subscribe() (int64, <-chan Message) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.nextID++
	id := b.nextID
	ch := make(chan Message, b.bufferSize)
	b.subs[id] = ch
	return id, ch
}

// Unsubscribe removes and closes a subscriber's channel.
func (b *Bus) Unsubscribe(id int64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if ch, ok := b.subs[id]; ok {
		delete(b.subs, id)
		close(ch)
	}
}

// SubscriberCount reports the number of active subscribers.
func (b *Bus) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}

// DroppedCount reports how many messages were dropped across all
// subscribers to date, for health reporting.
func (b *Bus) DroppedCount() int64 {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.dropped
}

// PublishEvent fans a stored event out to every subscriber.
func (b *Bus) PublishEvent(ev model.StoredEvent) {
	b.publish(Message{Kind: MessageEvent, Event: &ev})
}

// PublishHealth fans a health snapshot out to every subscriber.
func (b *Bus) PublishHealth(h model.HealthSnapshot) {
	b.publish(Message{Kind: MessageHealth, Health: &h})
}

func (b *Bus) publish(msg Message) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, ch := range b.subs {
		select {
		case ch <- msg:
		default:
			b.dropped++
		}
	}
}

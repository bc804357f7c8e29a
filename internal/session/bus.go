package session

import (
	"sync"

	"prediction-platform/internal/identity"
	"prediction-platform/internal/logger"

	"go.uber.org/zap"
)

type EventType string

const (
	EventLogin  EventType = "auth:login"
	EventLogout EventType = "auth:logout"
)

type Event struct {
	Type EventType
	User *identity.User
}

const subscriberBuffer = 16

// Bus fans session events out to subscribers. Delivery never blocks the
// publisher; a subscriber that lets its buffer fill up misses events.
type Bus struct {
	mu     sync.Mutex
	nextID int
	subs   map[int]chan Event
	closed bool
}

func NewBus() *Bus {
	return &Bus{subs: make(map[int]chan Event)}
}

// Subscribe returns a channel of events and a function that unsubscribes and
// closes the channel.
func (b *Bus) Subscribe() (<-chan Event, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	ch := make(chan Event, subscriberBuffer)
	if b.closed {
		close(ch)
		return ch, func() {}
	}

	id := b.nextID
	b.nextID++
	b.subs[id] = ch

	var once sync.Once
	return ch, func() {
		once.Do(func() { b.unsubscribe(id) })
	}
}

func (b *Bus) unsubscribe(id int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if ch, ok := b.subs[id]; ok {
		delete(b.subs, id)
		close(ch)
	}
}

func (b *Bus) Publish(event Event) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for id, ch := range b.subs {
		select {
		case ch <- event:
		default:
			logger.Warn("Dropping session event for slow subscriber",
				zap.Int("subscriber", id),
				zap.String("event", string(event.Type)),
			)
		}
	}
}

// Close closes every subscriber channel. Later subscriptions get a closed
// channel.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for id, ch := range b.subs {
		delete(b.subs, id)
		close(ch)
	}
}

package events

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// Type tags a kernel event.
type Type string

const (
	TypeProcessCreated   Type = "process.created"
	TypeProcessDestroyed Type = "process.destroyed"
	TypeCapDerived       Type = "cap.derived"
	TypeCapRevoked       Type = "cap.revoked"
	TypeRendezvous       Type = "ipc.rendezvous"
	TypeEndpointCreated  Type = "endpoint.created"
	TypeRegionCreated    Type = "region.created"
	TypeIRQTriggered     Type = "irq.triggered"
	TypeIRQUnmasked      Type = "irq.unmasked"
)

// Event is one kernel occurrence, shaped for the WebSocket stream.
type Event struct {
	ID        string                 `json:"id"`
	Type      Type                   `json:"type"`
	Timestamp time.Time              `json:"timestamp"`
	Data      map[string]interface{} `json:"data,omitempty"`
}

// Bus fans kernel events out to subscribers. Publishing never blocks: a
// subscriber that cannot keep up loses events rather than stalling a
// syscall.
type Bus struct {
	mu   sync.RWMutex
	next uint64
	subs map[uint64]chan Event
}

const subscriberBuffer = 64

// NewBus creates an empty bus.
func NewBus() *Bus {
	return &Bus{subs: make(map[uint64]chan Event)}
}

// Subscribe registers a new subscriber channel.
func (b *Bus) Subscribe() (uint64, <-chan Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	id := b.next
	b.next++
	ch := make(chan Event, subscriberBuffer)
	b.subs[id] = ch
	return id, ch
}

// Unsubscribe removes and closes a subscriber channel.
func (b *Bus) Unsubscribe(id uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if ch, ok := b.subs[id]; ok {
		delete(b.subs, id)
		close(ch)
	}
}

// Publish delivers an event to every subscriber that has room.
func (b *Bus) Publish(t Type, data map[string]interface{}) {
	ev := Event{
		ID:        uuid.New().String(),
		Type:      t,
		Timestamp: time.Now(),
		Data:      data,
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, ch := range b.subs {
		select {
		case ch <- ev:
		default:
		}
	}
}

// Subscribers returns the current subscriber count.
func (b *Bus) Subscribers() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}

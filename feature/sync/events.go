package sync

import (
	"sync"
	"time"
)

// EventType identifies one kind of sync progress event.
type EventType string

const (
	EventSyncStart    EventType = "sync_start"
	EventSourceStart  EventType = "source_start"
	EventSourceDone   EventType = "source_done"
	EventSourceError  EventType = "source_error"
	EventProgress     EventType = "progress"
	EventSyncComplete EventType = "sync_complete"
	EventSyncError    EventType = "sync_error"
)

// Event is one progress notification emitted during a run.
type Event struct {
	Type    EventType `json:"type"`
	Source  string    `json:"source,omitempty"`
	Message string    `json:"message,omitempty"`
	Count   int       `json:"count,omitempty"`
	At      time.Time `json:"at"`
}

// Bus fans sync events out to subscribers. Publishing never blocks; a
// subscriber that falls behind misses events rather than stalling the run.
type Bus struct {
	mu   sync.Mutex
	subs map[int]chan Event
	next int
}

// NewBus creates an event bus.
func NewBus() *Bus {
	return &Bus{subs: make(map[int]chan Event)}
}

// Subscribe registers a buffered subscriber channel and returns its id for
// Unsubscribe.
func (b *Bus) Subscribe(buffer int) (int, <-chan Event) {
	if buffer <= 0 {
		buffer = 16
	}
	ch := make(chan Event, buffer)

	b.mu.Lock()
	defer b.mu.Unlock()
	id := b.next
	b.next++
	b.subs[id] = ch
	return id, ch
}

// Unsubscribe removes and closes the subscriber channel.
func (b *Bus) Unsubscribe(id int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if ch, ok := b.subs[id]; ok {
		delete(b.subs, id)
		close(ch)
	}
}

// Publish delivers the event to every subscriber with room in its buffer.
func (b *Bus) Publish(event Event) {
	if event.At.IsZero() {
		event.At = time.Now()
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	for _, ch := range b.subs {
		select {
		case ch <- event:
		default:
		}
	}
}

package events

import (
	"log/slog"
	"sync"
	"sync/atomic"
)

// DefaultBufferSize is the per-subscriber channel capacity.
const DefaultBufferSize = 1024

// Bus is a single-producer-multiple-subscriber buffered event bus. Publish
// never blocks: when a subscriber's buffer is full the event is dropped for
// that subscriber and counted.
type Bus struct {
	mu          sync.RWMutex
	subscribers map[int]chan Event
	nextID      int
	bufferSize  int
	closed      bool
	dropped     atomic.Int64
	logger      *slog.Logger
}

// NewBus creates an event bus. bufferSize <= 0 uses DefaultBufferSize.
func NewBus(bufferSize int) *Bus {
	if bufferSize <= 0 {
		bufferSize = DefaultBufferSize
	}
	return &Bus{
		subscribers: make(map[int]chan Event),
		bufferSize:  bufferSize,
		logger:      slog.Default().With("component", "event-bus"),
	}
}

// Subscribe registers a new subscriber. The returned cancel function removes
// the subscription and closes the channel.
func (b *Bus) Subscribe() (<-chan Event, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	id := b.nextID
	b.nextID++
	ch := make(chan Event, b.bufferSize)
	if b.closed {
		close(ch)
		return ch, func() {}
	}
	b.subscribers[id] = ch

	cancel := func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		if sub, ok := b.subscribers[id]; ok {
			delete(b.subscribers, id)
			close(sub)
		}
	}
	return ch, cancel
}

// Publish delivers the event to every subscriber without blocking. Events
// that do not fit a subscriber's buffer are dropped with a warning.
func (b *Bus) Publish(event Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return
	}
	for _, ch := range b.subscribers {
		select {
		case ch <- event:
		default:
			n := b.dropped.Add(1)
			b.logger.Warn("Event bus buffer full, dropping event",
				"event_type", event.Type,
				"package_id", event.PackageID,
				"dropped_total", n)
		}
	}
}

// Dropped returns the total number of dropped events.
func (b *Bus) Dropped() int64 {
	return b.dropped.Load()
}

// Close shuts down the bus and closes all subscriber channels.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for id, ch := range b.subscribers {
		delete(b.subscribers, id)
		close(ch)
	}
}

package events

import (
	"errors"
	"sync"
)

// Bus-specific errors.
var (
	// ErrBusClosed indicates the bus has shut down and accepts no further
	// subscriptions or messages.
	ErrBusClosed = errors.New("event bus closed")

	// ErrDuplicateSubscription indicates a second subscription for a
	// correlation id that already has one.
	ErrDuplicateSubscription = errors.New("correlation id already subscribed")
)

// subscriberBuffer bounds each subscription channel. Consumption is
// push-driven and must never block the publisher, so when the buffer fills
// the oldest pending message is discarded in favor of the newest.
const subscriberBuffer = 256

// Bus is an in-memory implementation of Stream and Publisher. It routes
// envelopes to at most one subscriber per correlation id. Embedding callers
// use it to bridge an out-of-process event source into the engine; tests use
// it to replay fixed event sequences deterministically.
type Bus struct {
	mu     sync.Mutex
	subs   map[string]chan Envelope
	closed bool
}

// NewBus creates an empty in-memory event bus.
func NewBus() *Bus {
	return &Bus{subs: make(map[string]chan Envelope)}
}

// Subscribe implements Stream. The returned cancel func is idempotent and
// closes the subscription channel.
func (b *Bus) Subscribe(correlationID string) (<-chan Envelope, func(), error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil, nil, ErrBusClosed
	}
	if _, exists := b.subs[correlationID]; exists {
		return nil, nil, ErrDuplicateSubscription
	}

	ch := make(chan Envelope, subscriberBuffer)
	b.subs[correlationID] = ch

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			if cur, ok := b.subs[correlationID]; ok && cur == ch {
				delete(b.subs, correlationID)
				close(ch)
			}
		})
	}
	return ch, cancel, nil
}

// Publish implements Publisher. Messages for correlation ids without a
// subscriber are dropped. When a subscriber's buffer is full the oldest
// pending message is evicted so the newest state wins; publishers are never
// blocked.
func (b *Bus) Publish(envelope Envelope) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return ErrBusClosed
	}
	ch, ok := b.subs[envelope.CorrelationID]
	if !ok {
		return nil
	}

	for {
		select {
		case ch <- envelope:
			return nil
		default:
			select {
			case <-ch: // evict oldest
			default:
			}
		}
	}
}

// Close shuts the bus down, closing every subscription channel. Subsequent
// Subscribe and Publish calls return ErrBusClosed.
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

// Package broadcast implements a process-wide typed publish/subscribe bus.
// It replaces string-keyed dynamic events with a message-passing abstraction:
// publishers send a typed payload, subscribers receive it on their own
// channel and filter by whatever fields the payload carries.
package broadcast

import (
	"sync"
)

// Bus fans a typed payload out to all current subscribers. Safe for
// concurrent use. A zero Bus is not usable; call New.
type Bus[T any] struct {
	mu     sync.RWMutex
	nextID int
	subs   map[int]chan T
	buffer int
	closed bool
}

// Option configures a Bus.
type Option func(*options)

type options struct {
	buffer int
}

// WithBuffer sets the per-subscriber channel buffer. Default: 16.
func WithBuffer(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.buffer = n
		}
	}
}

// New creates a Bus.
func New[T any](opts ...Option) *Bus[T] {
	o := options{buffer: 16}
	for _, fn := range opts {
		fn(&o)
	}
	return &Bus[T]{
		subs:   make(map[int]chan T),
		buffer: o.buffer,
	}
}

// Subscribe registers a new listener. The returned cancel function removes
// the subscription and closes the channel; it is idempotent.
func (b *Bus[T]) Subscribe() (<-chan T, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	ch := make(chan T, b.buffer)
	if b.closed {
		close(ch)
		return ch, func() {}
	}

	id := b.nextID
	b.nextID++
	b.subs[id] = ch

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			if _, ok := b.subs[id]; ok {
				delete(b.subs, id)
				close(ch)
			}
		})
	}
	return ch, cancel
}

// Publish delivers v to every subscriber. Delivery is non-blocking: a
// subscriber whose buffer is full misses the message rather than stalling
// the publisher.
func (b *Bus[T]) Publish(v T) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return
	}
	for _, ch := range b.subs {
		select {
		case ch <- v:
		default:
		}
	}
}

// Len returns the number of active subscribers.
func (b *Bus[T]) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}

// Close shuts the bus down, closing all subscriber channels. Publish and
// Subscribe after Close are no-ops.
func (b *Bus[T]) Close() {
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

package pubsub

import (
	"context"
	"sync"
	"time"
)

const defaultBufferSize = 64

type subscription[T any] struct {
	ch      chan Event[T]
	filters []string
}

func (s *subscription[T]) wants(topic string) bool {
	if len(s.filters) == 0 {
		return true
	}
	for _, f := range s.filters {
		if matches(f, topic) {
			return true
		}
	}
	return false
}

// Broker fans published events out to every subscriber whose topic filters match.
type Broker[T any] struct {
	subs       map[*subscription[T]]struct{}
	mu         sync.RWMutex
	done       chan struct{}
	bufferSize int
}

// NewBroker creates a new broker with the default buffer size (64).
func NewBroker[T any]() *Broker[T] {
	return NewBrokerWithBuffer[T](defaultBufferSize)
}

// NewBrokerWithBuffer creates a new broker with a custom buffer size.
func NewBrokerWithBuffer[T any](size int) *Broker[T] {
	if size <= 0 {
		size = defaultBufferSize
	}
	return &Broker[T]{
		subs:       make(map[*subscription[T]]struct{}),
		done:       make(chan struct{}),
		bufferSize: size,
	}
}

// Subscribe creates a new subscription channel for the given topic filters
// (exact topics, "prefix/#" or "#"); no filters subscribes to everything.
// The channel is closed when ctx is cancelled or the broker is closed.
func (b *Broker[T]) Subscribe(ctx context.Context, topics ...string) <-chan Event[T] {
	b.mu.Lock()
	defer b.mu.Unlock()

	select {
	case <-b.done:
		ch := make(chan Event[T])
		close(ch)
		return ch
	default:
	}

	sub := &subscription[T]{
		ch:      make(chan Event[T], b.bufferSize),
		filters: append([]string(nil), topics...),
	}
	b.subs[sub] = struct{}{}

	go func() {
		select {
		case <-ctx.Done():
		case <-b.done:
			return
		}
		b.mu.Lock()
		defer b.mu.Unlock()

		select {
		case <-b.done:
			return
		default:
		}

		delete(b.subs, sub)
		close(sub.ch)
	}()

	return sub.ch
}

// Publish sends an event to all matching subscribers.
// Non-blocking: drops events if a subscriber channel is full.
func (b *Broker[T]) Publish(topic string, payload T) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	select {
	case <-b.done:
		return
	default:
	}

	event := Event[T]{
		Topic:     topic,
		Payload:   payload,
		Timestamp: time.Now(),
	}

	for sub := range b.subs {
		if !sub.wants(topic) {
			continue
		}
		select {
		case sub.ch <- event:
		default:
			// Channel full - drop to prevent blocking
		}
	}
}

// Close shuts down the broker and all subscriber channels.
func (b *Broker[T]) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	select {
	case <-b.done:
		return
	default:
	}

	close(b.done)
	for sub := range b.subs {
		close(sub.ch)
	}
	b.subs = nil
}

// SubscriberCount returns the number of active subscribers.
func (b *Broker[T]) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}

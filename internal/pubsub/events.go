// Package pubsub provides a generic, topic-addressed publish/subscribe broker.
// It backs the in-process command bus used for dry runs and tests.
package pubsub

import (
	"context"
	"strings"
	"time"
)

// Event is a published payload together with the topic it was published on.
type Event[T any] struct {
	Topic     string
	Payload   T
	Timestamp time.Time
}

// Subscriber provides a subscription channel for events.
type Subscriber[T any] interface {
	Subscribe(ctx context.Context, topics ...string) <-chan Event[T]
}

// Publisher allows publishing events with a typed payload.
type Publisher[T any] interface {
	Publish(topic string, payload T)
}

// matches reports whether topic is selected by filter.
// A filter ending in "/#" selects the prefix and everything below it.
func matches(filter, topic string) bool {
	if filter == "#" || filter == topic {
		return true
	}
	if prefix, ok := strings.CutSuffix(filter, "/#"); ok {
		return topic == prefix || strings.HasPrefix(topic, prefix+"/")
	}
	return false
}

package bus

import (
	"context"

	"github.com/zjrosen/arena/internal/log"
	"github.com/zjrosen/arena/internal/pubsub"
)

// Local publishes on an in-process broker. Used for dry runs without a
// broker and as the observable bus in tests.
type Local struct {
	broker *pubsub.Broker[string]
	prefix string
	owned  bool
}

var _ Bus = (*Local)(nil)

// NewLocal publishes on broker. A nil broker creates one owned (and closed) by
// the returned Local.
func NewLocal(broker *pubsub.Broker[string], commandPrefix string) *Local {
	owned := false
	if broker == nil {
		broker = pubsub.NewBroker[string]()
		owned = true
	}
	return &Local{broker: broker, prefix: commandPrefix, owned: owned}
}

// Broker exposes the underlying broker so callers can subscribe.
func (l *Local) Broker() *pubsub.Broker[string] {
	return l.broker
}

// PublishCommand publishes payload on the command topic for name.
func (l *Local) PublishCommand(ctx context.Context, name, payload string) error {
	return l.PublishEvent(ctx, CommandTopic(l.prefix, name), payload)
}

// PublishEvent publishes payload on topic.
func (l *Local) PublishEvent(_ context.Context, topic, payload string) error {
	l.broker.Publish(topic, payload)
	log.Debug(log.CatBus, "published", "backend", "local", "topic", topic, "size", len(payload))
	return nil
}

// Close closes the broker if Local created it.
func (l *Local) Close() error {
	if l.owned {
		l.broker.Close()
	}
	return nil
}

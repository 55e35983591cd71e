package broker

import (
	"context"

	"github.com/casualjim/streamgate/events"
)

type Broker interface {
	Topic(context.Context, string) Topic
	// Remove forgets the topic for a finished stream and ends its subscriptions.
	Remove(context.Context, string)
}

type Topic interface {
	Publish(context.Context, events.Event) error
	Subscribe(context.Context, Handler) (Subscription, error)
}

// Handler receives the events of a topic, one at a time, in publish order.
type Handler func(context.Context, events.Event)

type Subscription interface {
	ID() string
	// Done is closed once the subscription stops delivering events.
	Done() <-chan struct{}
	Unsubscribe()
}

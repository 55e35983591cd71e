package broker

import (
	"context"
	"encoding/base64"
	"log/slog"
	"sync"

	"github.com/alphadose/haxmap"
	"github.com/casualjim/streamgate/events"
	"github.com/casualjim/streamgate/pkg/slogx"
	"github.com/casualjim/streamgate/pkg/uuidx"
	"github.com/nats-io/nats.go"
)

const subjectPrefix = "streamgate.streams."

type natsBroker struct {
	client *nats.Conn
	topics *haxmap.Map[string, *natsTopic]
}

// NATS creates a broker publishing on client.
func NATS(client *nats.Conn) Broker {
	return &natsBroker{
		client: client,
		topics: haxmap.New[string, *natsTopic](),
	}
}

// subject maps a stream id onto a single subject token; ids are client supplied
// and may contain characters NATS treats as separators or wildcards.
func subject(id string) string {
	return subjectPrefix + base64.RawURLEncoding.EncodeToString([]byte(id))
}

func (b *natsBroker) Topic(ctx context.Context, id string) Topic {
	top, _ := b.topics.GetOrCompute(id, func() *natsTopic {
		return &natsTopic{
			subject: subject(id),
			client:  b.client,
		}
	})
	return top
}

// Remove only drops the cached topic; watchers on other instances end when they
// see the stream's terminal event.
func (b *natsBroker) Remove(ctx context.Context, id string) {
	b.topics.Del(id)
}

type natsTopic struct {
	client  *nats.Conn
	subject string
}

func (t *natsTopic) Publish(ctx context.Context, event events.Event) error {
	eb, err := events.ToJSON(event)
	if err != nil {
		return err
	}
	return t.client.Publish(t.subject, eb)
}

func (t *natsTopic) Subscribe(ctx context.Context, handler Handler) (Subscription, error) {
	if handler == nil {
		return nil, errHandlerRequired
	}

	sub := &natsSubscription{
		id:      uuidx.NewString(),
		channel: make(chan events.Event, subscriptionBufferSize),
		done:    make(chan struct{}),
	}
	nsub, err := t.client.Subscribe(t.subject, func(msg *nats.Msg) {
		event, err := events.FromJSON(msg.Data)
		if err != nil {
			slog.Error("failed to unmarshal event", slogx.Error(err), slog.String("subject", msg.Subject))
			return
		}
		select {
		case sub.channel <- event:
		case <-sub.done:
		}
	})
	if err != nil {
		return nil, err
	}
	sub.sub = nsub

	go sub.forward(ctx, handler)
	return sub, nil
}

type natsSubscription struct {
	id      string
	sub     *nats.Subscription
	channel chan events.Event

	closeOnce sync.Once
	done      chan struct{}
}

func (n *natsSubscription) ID() string {
	return n.id
}

func (n *natsSubscription) Done() <-chan struct{} {
	return n.done
}

func (n *natsSubscription) Unsubscribe() {
	n.closeOnce.Do(func() {
		if err := n.sub.Unsubscribe(); err != nil {
			slog.Error("failed to unsubscribe", slogx.Error(err), slog.String("subscription", n.id))
		}
		close(n.done)
	})
}

func (n *natsSubscription) forward(ctx context.Context, handler Handler) {
	for {
		select {
		case event := <-n.channel:
			handler(ctx, event)
		case <-n.done:
			return
		case <-ctx.Done():
			n.Unsubscribe()
			return
		}
	}
}

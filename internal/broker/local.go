package broker

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/alphadose/haxmap"
	"github.com/casualjim/streamgate/events"
	"github.com/casualjim/streamgate/pkg/uuidx"
)

const (
	defaultSlowSubscriberTimeout = 100 * time.Millisecond
	subscriptionBufferSize       = 50
)

var errHandlerRequired = errors.New("handler is required")

type localBroker struct {
	topics                *haxmap.Map[string, *topic]
	slowSubscriberTimeout time.Duration
}

// Local creates an in-process broker.
func Local() Broker {
	return newLocal(defaultSlowSubscriberTimeout)
}

func newLocal(slowSubscriberTimeout time.Duration) *localBroker {
	return &localBroker{
		topics:                haxmap.New[string, *topic](),
		slowSubscriberTimeout: slowSubscriberTimeout,
	}
}

func (b *localBroker) Topic(ctx context.Context, id string) Topic {
	t, _ := b.topics.GetOrCompute(id, func() *topic {
		return &topic{
			id:                    id,
			subscriptions:         haxmap.New[string, *subscription](),
			slowSubscriberTimeout: b.slowSubscriberTimeout,
		}
	})
	return t
}

func (b *localBroker) Remove(ctx context.Context, id string) {
	t, ok := b.topics.Get(id)
	if !ok {
		return
	}
	b.topics.Del(id)
	t.subscriptions.ForEach(func(_ string, sub *subscription) bool {
		sub.Unsubscribe()
		return true
	})
}

type topic struct {
	id                    string
	subscriptions         *haxmap.Map[string, *subscription]
	slowSubscriberTimeout time.Duration
}

func (t *topic) Publish(ctx context.Context, event events.Event) error {
	t.subscriptions.ForEach(func(_ string, sub *subscription) bool {
		select {
		case <-ctx.Done():
			return false
		case <-sub.ctx.Done():
			sub.Unsubscribe()
			return true
		default:
		}

		sub.mu.Lock()
		defer sub.mu.Unlock()
		if sub.closed {
			return true
		}
		select {
		case <-ctx.Done():
			return false
		case <-sub.ctx.Done():
			go sub.Unsubscribe()
		case sub.channel <- event:
		case <-time.After(t.slowSubscriberTimeout):
			// a watcher that cannot keep up is dropped rather than slowing the stream
			go sub.Unsubscribe()
		}
		return true
	})
	return ctx.Err()
}

func (t *topic) Subscribe(ctx context.Context, handler Handler) (Subscription, error) {
	if handler == nil {
		return nil, errHandlerRequired
	}
	id := uuidx.NewString()
	sub := &subscription{
		id:      id,
		ctx:     ctx,
		channel: make(chan events.Event, subscriptionBufferSize),
		done:    make(chan struct{}),
		onClose: func() { t.subscriptions.Del(id) },
		handler: handler,
	}
	t.subscriptions.Set(id, sub)
	go sub.forward()
	return sub, nil
}

type subscription struct {
	id      string
	ctx     context.Context
	handler Handler
	onClose func()

	mu      sync.Mutex
	closed  bool
	channel chan events.Event
	done    chan struct{}
}

func (s *subscription) ID() string {
	return s.id
}

func (s *subscription) Done() <-chan struct{} {
	return s.done
}

func (s *subscription) Unsubscribe() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	if s.onClose != nil {
		s.onClose()
	}
	close(s.channel)
}

// forward hands queued events to the handler. Events queued before Unsubscribe
// are still delivered.
func (s *subscription) forward() {
	defer close(s.done)
	for {
		select {
		case event, ok := <-s.channel:
			if !ok {
				return
			}
			s.handler(s.ctx, event)
		case <-s.ctx.Done():
			s.Unsubscribe()
			return
		}
	}
}

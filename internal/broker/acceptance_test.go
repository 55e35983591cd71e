package broker

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/casualjim/streamgate/events"
	"github.com/casualjim/streamgate/pkg/natsx"
	"github.com/go-openapi/strfmt"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// brokerFactory is a function that creates a new broker instance for testing
type brokerFactory func(t *testing.T) Broker

// acceptanceTest represents a single acceptance test case
type acceptanceTest struct {
	name string
	test func(t *testing.T, createBroker brokerFactory)
}

// runAcceptanceTests runs all acceptance tests against a broker implementation
func runAcceptanceTests(t *testing.T, factory brokerFactory) {
	tests := []acceptanceTest{
		{"creates unique topics", testUniqueTopics},
		{"reuses existing topics", testReuseTopics},
		{"publishes events to all subscribers", testPublishToAllSubscribers},
		{"handles subscription lifecycle", testSubscriptionLifecycle},
		{"handles context cancellation", testContextCancellation},
		{"handles concurrent operations", testConcurrentOperations},
		{"validates handler requirement", testHandlerValidation},
		{"keeps topics for different streams apart", testIsolation},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.test(t, factory)
		})
	}
}

func TestBrokerImplementations(t *testing.T) {
	t.Run("Local", func(t *testing.T) {
		runAcceptanceTests(t, func(t *testing.T) Broker {
			return Local()
		})
	})

	t.Run("NATS", func(t *testing.T) {
		nc, err := natsx.NewClient("")
		if err != nil {
			t.Skipf("nats server not reachable: %v", err)
		}
		nc.Close()

		runAcceptanceTests(t, func(t *testing.T) Broker {
			nc, err := natsx.NewClient("")
			require.NoError(t, err)
			t.Cleanup(func() { nc.Close() })
			return NATS(nc)
		})
	})
}

// recorder collects delivered events.
type recorder struct {
	mu     sync.Mutex
	events []events.Event
	wg     *sync.WaitGroup
}

func (r *recorder) handle(_ context.Context, ev events.Event) {
	r.mu.Lock()
	r.events = append(r.events, ev)
	r.mu.Unlock()
	if r.wg != nil {
		r.wg.Done()
	}
}

func (r *recorder) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.events)
}

func (r *recorder) Events() []events.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]events.Event(nil), r.events...)
}

func waitGroup(t *testing.T, wg *sync.WaitGroup) {
	t.Helper()
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for events to be processed")
	}
}

// settle gives a remote broker time to register a subscription.
func settle() { time.Sleep(50 * time.Millisecond) }

func testUniqueTopics(t *testing.T, createBroker brokerFactory) {
	broker := createBroker(t)
	topic1 := broker.Topic(context.Background(), "test1")
	topic2 := broker.Topic(context.Background(), "test2")
	assert.NotSame(t, topic1, topic2)
}

func testReuseTopics(t *testing.T, createBroker brokerFactory) {
	broker := createBroker(t)
	topic1 := broker.Topic(context.Background(), "test")
	topic2 := broker.Topic(context.Background(), "test")
	assert.Same(t, topic1, topic2)
}

func testPublishToAllSubscribers(t *testing.T, createBroker brokerFactory) {
	broker := createBroker(t)
	streamID := fmt.Sprintf("stream-%d", time.Now().UnixNano())
	topic := broker.Topic(context.Background(), streamID)
	ctx := context.Background()

	var wg sync.WaitGroup
	wg.Add(6) // 2 recorders * 3 events
	rec1, rec2 := &recorder{wg: &wg}, &recorder{wg: &wg}

	sub1, err := topic.Subscribe(ctx, rec1.handle)
	require.NoError(t, err)
	sub2, err := topic.Subscribe(ctx, rec2.handle)
	require.NoError(t, err)
	defer sub1.Unsubscribe()
	defer sub2.Unsubscribe()
	settle()

	ts := strfmt.DateTime(time.Now().UTC())
	published := []events.Event{
		events.StreamID{StreamID: streamID, Timestamp: ts},
		events.Delta{StreamID: streamID, Content: "Once", Timestamp: ts},
		events.Done{StreamID: streamID, Model: "B", Timestamp: ts},
	}
	for _, ev := range published {
		require.NoError(t, topic.Publish(ctx, ev))
	}
	waitGroup(t, &wg)

	for _, rec := range []*recorder{rec1, rec2} {
		got := rec.Events()
		require.Len(t, got, 3)
		assert.Equal(t, events.TypeStreamID, got[0].Kind())
		assert.Equal(t, "Once", got[1].(events.Delta).Content)
		assert.Equal(t, "B", got[2].(events.Done).Model)
		assert.Equal(t, streamID, got[2].Stream())
	}
}

func testSubscriptionLifecycle(t *testing.T, createBroker brokerFactory) {
	broker := createBroker(t)
	topic := broker.Topic(context.Background(), "lifecycle")
	ctx := context.Background()

	rec := &recorder{}
	sub, err := topic.Subscribe(ctx, rec.handle)
	require.NoError(t, err)
	assert.NotEmpty(t, sub.ID())

	sub.Unsubscribe()
	sub.Unsubscribe()
	select {
	case <-sub.Done():
	case <-time.After(time.Second):
		t.Fatal("subscription did not finish")
	}

	require.NoError(t, topic.Publish(ctx, events.Delta{StreamID: "lifecycle", Content: "late"}))
	time.Sleep(100 * time.Millisecond)
	assert.Zero(t, rec.Len())
}

func testContextCancellation(t *testing.T, createBroker brokerFactory) {
	broker := createBroker(t)
	topic := broker.Topic(context.Background(), "cancel")

	ctx, cancel := context.WithCancel(context.Background())
	rec := &recorder{}
	sub, err := topic.Subscribe(ctx, rec.handle)
	require.NoError(t, err)
	defer sub.Unsubscribe()

	cancel()
	select {
	case <-sub.Done():
	case <-time.After(time.Second):
		t.Fatal("subscription did not observe cancellation")
	}

	require.NoError(t, topic.Publish(context.Background(), events.Delta{StreamID: "cancel", Content: "late"}))
	time.Sleep(100 * time.Millisecond)
	assert.Zero(t, rec.Len())
}

func testConcurrentOperations(t *testing.T, createBroker brokerFactory) {
	broker := createBroker(t)
	topic := broker.Topic(context.Background(), "concurrent")
	ctx := context.Background()

	const numSubscribers, numEvents = 5, 40
	var processWg sync.WaitGroup
	processWg.Add(numSubscribers * numEvents)

	recorders := make([]*recorder, numSubscribers)
	for i := range recorders {
		recorders[i] = &recorder{wg: &processWg}
		sub, err := topic.Subscribe(ctx, recorders[i].handle)
		require.NoError(t, err)
		defer sub.Unsubscribe()
	}
	settle()

	var publishWg sync.WaitGroup
	publishWg.Add(numEvents)
	for i := range numEvents {
		go func(i int) {
			defer publishWg.Done()
			assert.NoError(t, topic.Publish(ctx, events.Delta{StreamID: "concurrent", Content: fmt.Sprintf("chunk-%d", i)}))
		}(i)
	}
	publishWg.Wait()
	waitGroup(t, &processWg)

	for _, rec := range recorders {
		assert.Equal(t, numEvents, rec.Len())
	}
}

func testHandlerValidation(t *testing.T, createBroker brokerFactory) {
	broker := createBroker(t)
	topic := broker.Topic(context.Background(), "test")

	_, err := topic.Subscribe(context.Background(), nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "handler is required")
}

func testIsolation(t *testing.T, createBroker brokerFactory) {
	broker := createBroker(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	wg.Add(1)
	rec := &recorder{wg: &wg}
	sub, err := broker.Topic(ctx, "a.b").Subscribe(ctx, rec.handle)
	require.NoError(t, err)
	defer sub.Unsubscribe()
	settle()

	require.NoError(t, broker.Topic(ctx, "a.*").Publish(ctx, events.Delta{StreamID: "a.*", Content: "other"}))
	require.NoError(t, broker.Topic(ctx, "a.b").Publish(ctx, events.Delta{StreamID: "a.b", Content: "mine"}))
	waitGroup(t, &wg)
	time.Sleep(50 * time.Millisecond)

	got := rec.Events()
	require.Len(t, got, 1)
	assert.Equal(t, "mine", got[0].(events.Delta).Content)
}

// Package broker fans the events of a live stream out to watchers.
//
// Every stream gets a topic named after its id. The relay publishes each outbound
// event to the topic while it writes it to the client; watchers subscribe to the
// topic and receive the same events without touching the upstream call.
//
// Two implementations exist: Local delivers within the process, NATS publishes
// JSON encoded events on a subject per stream so watchers can attach to any
// gateway instance connected to the same NATS server.
//
// Example usage:
//
//	topic := b.Topic(ctx, streamID)
//	sub, err := topic.Subscribe(ctx, func(ctx context.Context, ev events.Event) {
//	    fmt.Println(ev.Kind())
//	})
//	if err != nil {
//	    return err
//	}
//	defer sub.Unsubscribe()
package broker

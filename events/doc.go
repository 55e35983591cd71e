// Package events defines the records streamed to gateway clients.
//
// Every record carries a "type" discriminator and the stream id it belongs to:
//
//   - streamId: session id announcement, emitted once at the start of a stream
//   - resume:   previously generated text, emitted once when resuming
//   - delta:    incremental new text from the upstream provider
//   - done:     terminal, the upstream finished; carries the model that served the request
//   - abort:    terminal, cancellation was observed
//   - error:    terminal, the stream failed after it started
//
// Events serialize with pre-allocated type markers patched by sjson and are
// parsed back with gjson, so the same codec serves the HTTP event stream and
// the broker fan-out.
//
// Example usage:
//
//	data, err := events.ToJSON(events.Delta{StreamID: id, Content: "Once"})
//	...
//	evt, err := events.FromJSON(data)
//	switch e := evt.(type) {
//	case events.Delta:
//	    fmt.Print(e.Content)
//	case events.Done:
//	    // stream finished
//	}
package events

// Package provider implements an abstraction layer for upstream text-generation
// backends. Every backend family (the openai SDK, a raw chat-completions
// endpoint spoken over HTTP) implements the same Provider interface so the
// fallback and resumption pipeline is shared.
//
// Design decisions:
//   - Streaming only: a completion is a channel of StreamEvents closed by the adapter
//   - Unclassified errors: adapters surface upstream failures unchanged; deciding
//     whether a failure is retryable belongs to the caller
//   - Cancellation: the caller's context is bound to the upstream network call and
//     cancelling it ends the stream with an Error carrying the context error
//   - Model routing: a Registry maps model identifiers to the adapter that serves them
//
// The streaming architecture uses three event types:
//  1. Delim: "start" before the first chunk, "end" after the last one on success
//  2. Chunk: an incremental piece of generated text, passed through unchanged
//  3. Error: a terminal failure; no events follow it
//
// Example usage:
//
//	events, err := p.ChatCompletion(ctx, provider.CompletionParams{
//	    Model:    "gpt-4o-mini",
//	    Messages: []messages.Message{messages.User("Tell me a story")},
//	})
//	if err != nil {
//	    return err
//	}
//	for event := range events {
//	    switch e := event.(type) {
//	    case provider.Chunk:
//	        fmt.Print(e.Text)
//	    case provider.Error:
//	        return e.Err
//	    }
//	}
package provider

// Package rawhttp implements provider.Provider by speaking the chat-completions
// event-stream protocol directly over HTTP, for upstreams that have no SDK or
// that front many vendors behind one endpoint (model ids such as "vendor/model").
//
// The response body is consumed as raw bytes. Lines are split by a small
// carry-over buffer so a "data: {...}" record that straddles two network
// reads is parsed exactly once, after its terminating newline arrives. A
// literal "[DONE]" record or the natural end of the body finishes the stream.
package rawhttp

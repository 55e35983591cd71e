// Package messages defines the conversation turns exchanged with upstream
// text-generation providers.
//
// A conversation is an ordered list of role/content pairs. The gateway never
// rewrites a client's history: resumption only appends synthetic turns to a
// copy of it (see the resume package).
//
// Example usage:
//
//	history := []messages.Message{
//	    messages.System("You are a helpful assistant"),
//	    messages.User("Tell me a story"),
//	}
//	if err := messages.Validate(history); err != nil {
//	    // reject the request
//	}
package messages

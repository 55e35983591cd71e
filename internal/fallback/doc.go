// Package fallback runs a completion against an ordered list of candidate models
// and settles on the first one that produces output.
//
// A candidate is abandoned only before it has produced anything. Once a chunk
// has arrived (or the candidate finished cleanly without output) that candidate
// owns the stream; later failures are forwarded to the caller as error events and
// never trigger another candidate.
//
// Failures are sorted into classes by Classify. Retryable classes move on to the
// next candidate; anything else ends the chain immediately with a ClassifiedError.
// When every candidate failed retryably Run returns an ExhaustedError.
package fallback

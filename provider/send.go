package provider

import "context"

// EventBufferSize is the capacity adapters use for their completion channels.
const EventBufferSize = 10

// Send delivers ev on ch unless ctx is done first. It reports whether ev was delivered.
// Adapters use it for every non-terminal event so a consumer that stopped reading
// can never wedge the producing goroutine.
func Send(ctx context.Context, ch chan<- StreamEvent, ev StreamEvent) bool {
	select {
	case <-ctx.Done():
		return false
	case ch <- ev:
		return true
	}
}

// TrySend delivers ev only if ch has room. It is used for the terminal event
// after cancellation, when nobody may be reading anymore.
func TrySend(ch chan<- StreamEvent, ev StreamEvent) bool {
	select {
	case ch <- ev:
		return true
	default:
		return false
	}
}

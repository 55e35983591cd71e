package relay

import (
	"context"
	"errors"

	"github.com/alphadose/haxmap"
)

// ErrStreamActive is returned when a stream id already has a generation in flight.
var ErrStreamActive = errors.New("relay: stream already active")

// errCancelRequested is the cancellation cause for explicit cancel calls.
var errCancelRequested = errors.New("stream cancelled by request")

type lease struct {
	cancel context.CancelCauseFunc
}

// leases tracks the streams in flight in this process.
type leases struct {
	active *haxmap.Map[string, *lease]
}

func newLeases() *leases {
	return &leases{active: haxmap.New[string, *lease]()}
}

// acquire registers id as in flight. The returned release must be called when
// the stream ends.
func (l *leases) acquire(id string, cancel context.CancelCauseFunc) (func(), error) {
	own := &lease{cancel: cancel}
	if _, loaded := l.active.GetOrSet(id, own); loaded {
		return nil, ErrStreamActive
	}
	return func() {
		if cur, ok := l.active.Get(id); ok && cur == own {
			l.active.Del(id)
		}
	}, nil
}

// cancel stops the stream in flight for id and reports whether there was one.
func (l *leases) cancel(id string) bool {
	le, ok := l.active.Get(id)
	if !ok {
		return false
	}
	le.cancel(errCancelRequested)
	return true
}

func (l *leases) isActive(id string) bool {
	_, ok := l.active.Get(id)
	return ok
}

package rawhttp

import (
	"fmt"
	"net/http"
)

// StatusError is an upstream failure with an HTTP status. It is returned for
// non-2xx responses and for error records embedded in an event stream; for the
// latter StatusCode is the code the upstream put in the record, or 0.
type StatusError struct {
	StatusCode int
	Message    string
	Body       []byte
}

func (e *StatusError) Error() string {
	msg := e.Message
	if msg == "" {
		msg = http.StatusText(e.StatusCode)
	}
	if e.StatusCode == 0 {
		return fmt.Sprintf("upstream stream error: %s", msg)
	}
	return fmt.Sprintf("upstream returned %d: %s", e.StatusCode, msg)
}

package fallback

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"

	"github.com/casualjim/streamgate/provider/rawhttp"
	"github.com/openai/openai-go"
)

// ErrUnknownModel is reported for candidates that have no registered provider.
// It is retryable so a misconfigured entry does not end the chain.
var ErrUnknownModel = errors.New("no provider registered for model")

// Class groups upstream failures by how the chain reacts to them.
type Class int

const (
	ClassUnknown Class = iota
	ClassValidation
	ClassAuth
	ClassUnavailable
	ClassRateLimit
	ClassCanceled
)

func (c Class) String() string {
	switch c {
	case ClassValidation:
		return "validation"
	case ClassAuth:
		return "auth"
	case ClassUnavailable:
		return "unavailable"
	case ClassRateLimit:
		return "rate_limit"
	case ClassCanceled:
		return "canceled"
	default:
		return "unknown"
	}
}

// Retryable reports whether the next candidate should be tried after a failure of this class.
func (c Class) Retryable() bool {
	return c == ClassUnavailable || c == ClassRateLimit
}

// Classify inspects err, which is usually an error surfaced unchanged by an adapter.
func Classify(err error) Class {
	if err == nil {
		return ClassUnknown
	}

	var classified *ClassifiedError
	if errors.As(err, &classified) {
		return classified.Class
	}
	if errors.Is(err, ErrUnknownModel) {
		return ClassUnavailable
	}
	if errors.Is(err, context.Canceled) {
		return ClassCanceled
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return ClassUnavailable
	}

	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		return classifyStatus(apiErr.StatusCode)
	}
	var statusErr *rawhttp.StatusError
	if errors.As(err, &statusErr) {
		if statusErr.StatusCode == 0 {
			return ClassUnavailable
		}
		return classifyStatus(statusErr.StatusCode)
	}

	if errors.Is(err, io.ErrUnexpectedEOF) {
		return ClassUnavailable
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return ClassUnavailable
	}
	return ClassUnknown
}

func classifyStatus(code int) Class {
	switch {
	case code == http.StatusUnauthorized, code == http.StatusForbidden:
		return ClassAuth
	case code == http.StatusTooManyRequests:
		return ClassRateLimit
	case code == http.StatusRequestTimeout, code >= 500:
		return ClassUnavailable
	case code == http.StatusBadRequest, code == http.StatusNotFound,
		code == http.StatusRequestEntityTooLarge, code == http.StatusUnprocessableEntity:
		return ClassValidation
	default:
		return ClassUnknown
	}
}

// ClassifiedError is a candidate failure together with its class.
type ClassifiedError struct {
	Model string
	Class Class
	Err   error
}

func (e *ClassifiedError) Error() string {
	return fmt.Sprintf("model %s failed (%s): %v", e.Model, e.Class, e.Err)
}

func (e *ClassifiedError) Unwrap() error {
	return e.Err
}

// ExhaustedError is returned when every candidate failed with a retryable error.
type ExhaustedError struct {
	Attempts int
	Last     *ClassifiedError
}

func (e *ExhaustedError) Error() string {
	if e.Last == nil {
		return "no candidate models to try"
	}
	return fmt.Sprintf("all %d candidate models failed, last: %v", e.Attempts, e.Last)
}

func (e *ExhaustedError) Unwrap() error {
	if e.Last == nil {
		return nil
	}
	return e.Last
}

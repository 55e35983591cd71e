package relay

import (
	"bytes"
	"net/http"
	"sync"

	"github.com/casualjim/streamgate/events"
)

type writerState int

const (
	stateOpen writerState = iota
	stateClosing
	stateClosed
)

func (s writerState) String() string {
	switch s {
	case stateOpen:
		return "open"
	case stateClosing:
		return "closing"
	default:
		return "closed"
	}
}

type flushWriter interface {
	http.ResponseWriter
	http.Flusher
}

// streamWriter writes server-sent events to one client. It moves from open to
// closing to closed; writes in any state but open are dropped without error.
type streamWriter struct {
	mu        sync.Mutex
	w         flushWriter
	state     writerState
	committed bool
	buf       bytes.Buffer
}

func newStreamWriter(w flushWriter) *streamWriter {
	return &streamWriter{w: w}
}

// Commit sends the 200 event-stream response headers if that has not happened yet.
func (s *streamWriter) Commit() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == stateOpen {
		s.commitLocked()
	}
}

func (s *streamWriter) commitLocked() {
	if s.committed {
		return
	}
	s.committed = true
	h := s.w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no")
	s.w.WriteHeader(http.StatusOK)
	s.w.Flush()
}

// Committed reports whether response headers have been sent.
func (s *streamWriter) Committed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.committed
}

func (s *streamWriter) State() writerState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Write sends ev as one frame and flushes it. A failed write closes the writer
// and is reported once; later writes are dropped.
func (s *streamWriter) Write(ev events.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != stateOpen {
		return nil
	}
	if err := s.writeLocked(ev); err != nil {
		s.state = stateClosed
		return err
	}
	return nil
}

func (s *streamWriter) writeLocked(ev events.Event) error {
	data, err := events.ToJSON(ev)
	if err != nil {
		return err
	}
	s.commitLocked()

	s.buf.Reset()
	s.buf.WriteString("data: ")
	s.buf.Write(data)
	s.buf.WriteString("\n\n")
	if _, err := s.w.Write(s.buf.Bytes()); err != nil {
		return err
	}
	s.w.Flush()
	return nil
}

// Close attempts final as the last frame, when not nil, and closes the writer.
// Closing a closed writer does nothing.
func (s *streamWriter) Close(final events.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != stateOpen {
		return
	}
	s.state = stateClosing
	if final != nil {
		_ = s.writeLocked(final)
	}
	s.state = stateClosed
}

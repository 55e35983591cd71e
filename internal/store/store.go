package store

import (
	"context"
	"errors"
	"slices"
	"time"

	"github.com/casualjim/streamgate/messages"
)

// DefaultRetention is how long an untouched session stays resumable.
const DefaultRetention = 24 * time.Hour

var (
	// ErrNotFound is returned for unknown and expired sessions.
	ErrNotFound = errors.New("store: session not found")
	// ErrExists is returned by Create when a live session already uses the id.
	ErrExists = errors.New("store: session already exists")
)

// Session is the persisted state of one stream.
type Session struct {
	ID        string             `json:"id"`
	Messages  []messages.Message `json:"messages"`
	Model     string             `json:"model,omitempty"`
	Text      string             `json:"text"`
	CreatedAt time.Time          `json:"createdAt"`
	UpdatedAt time.Time          `json:"updatedAt"`
	AuthToken string             `json:"-"`
}

// Clone returns a copy that shares no mutable state with s.
func (s *Session) Clone() *Session {
	if s == nil {
		return nil
	}
	cp := *s
	cp.Messages = slices.Clone(s.Messages)
	return &cp
}

// Store persists sessions by id. Implementations are safe for concurrent use;
// operations on different ids never contend with each other.
type Store interface {
	// Create stores a new session. CreatedAt and UpdatedAt are set by the store.
	Create(ctx context.Context, session *Session) error
	// Get returns a copy of the session, or ErrNotFound.
	Get(ctx context.Context, id string) (*Session, error)
	// Append adds text to the end of the session's accumulated text.
	Append(ctx context.Context, id, text string) error
	// SetModel records the model serving the session.
	SetModel(ctx context.Context, id, model string) error
	// Delete removes the session; deleting an unknown id is not an error.
	Delete(ctx context.Context, id string) error
}

func expired(updated, now time.Time, retention time.Duration) bool {
	return retention > 0 && now.Sub(updated) > retention
}

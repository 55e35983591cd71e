package messages

import (
	"errors"
	"fmt"
	"slices"
)

// Role identifies the author of a conversation turn.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Valid reports whether r is one of the roles accepted upstream.
func (r Role) Valid() bool {
	switch r {
	case RoleSystem, RoleUser, RoleAssistant:
		return true
	default:
		return false
	}
}

func (r Role) String() string {
	return string(r)
}

// Message is a single conversation turn.
type Message struct {
	Role    Role   `json:"role" jsonschema:"enum=user,enum=assistant,enum=system"`
	Content string `json:"content"`
}

// System creates a system instruction turn.
func System(content string) Message {
	return Message{Role: RoleSystem, Content: content}
}

// User creates a user turn.
func User(content string) Message {
	return Message{Role: RoleUser, Content: content}
}

// Assistant creates an assistant turn.
func Assistant(content string) Message {
	return Message{Role: RoleAssistant, Content: content}
}

// ErrEmptyConversation is returned by Validate when no turns are supplied.
var ErrEmptyConversation = errors.New("messages: conversation is empty")

// Validate checks the shape of a conversation: at least one turn, only known roles.
func Validate(history []Message) error {
	if len(history) == 0 {
		return ErrEmptyConversation
	}
	for i, m := range history {
		if !m.Role.Valid() {
			return fmt.Errorf("messages: turn %d has invalid role %q", i, m.Role)
		}
	}
	return nil
}

// Extend returns a copy of history with extra appended; history itself is never modified.
func Extend(history []Message, extra ...Message) []Message {
	out := slices.Grow(slices.Clone(history), len(extra))
	return append(out, extra...)
}

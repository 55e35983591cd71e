package messages

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRole_Valid(t *testing.T) {
	assert.True(t, RoleSystem.Valid())
	assert.True(t, RoleUser.Valid())
	assert.True(t, RoleAssistant.Valid())
	assert.False(t, Role("tool").Valid())
	assert.False(t, Role("").Valid())
}

func TestConstructors(t *testing.T) {
	assert.Equal(t, Message{Role: RoleSystem, Content: "be brief"}, System("be brief"))
	assert.Equal(t, Message{Role: RoleUser, Content: "hi"}, User("hi"))
	assert.Equal(t, Message{Role: RoleAssistant, Content: "hello"}, Assistant("hello"))
}

func TestValidate(t *testing.T) {
	t.Run("empty conversation", func(t *testing.T) {
		require.ErrorIs(t, Validate(nil), ErrEmptyConversation)
	})

	t.Run("invalid role", func(t *testing.T) {
		err := Validate([]Message{User("hi"), {Role: "tool", Content: "x"}})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "turn 1")
	})

	t.Run("valid conversation", func(t *testing.T) {
		assert.NoError(t, Validate([]Message{System("s"), User("u"), Assistant("a")}))
	})
}

func TestExtend_DoesNotAlias(t *testing.T) {
	history := make([]Message, 1, 4)
	history[0] = User("Tell me a story")

	extended := Extend(history, Assistant("Once"), User("continue"))
	require.Len(t, extended, 3)
	assert.Len(t, history, 1)

	extended[0].Content = "changed"
	assert.Equal(t, "Tell me a story", history[0].Content)
}

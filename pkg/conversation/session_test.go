package conversation

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistry(t *testing.T) {
	r := newRegistry()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	ev := Event{ConversationID: ConversationID(5), ChatID: 5, UserID: 9}

	first, prior := r.create(ev, now)
	assert.Nil(t, prior)
	assert.NotEmpty(t, first.id)
	assert.Equal(t, StateAwaitingUsername, r.stateOf(ev.ConversationID))

	second, prior := r.create(ev, now)
	assert.Same(t, first, prior)
	assert.NotEqual(t, first.id, second.id)
	assert.Equal(t, 1, r.len())

	// A replaced session no longer owns the identity.
	r.destroy(first)
	assert.Same(t, second, r.lookup(ev.ConversationID))
	assert.False(t, r.idleFor(first, now.Add(time.Hour)))

	assert.Empty(t, r.idleSince(now))
	assert.Equal(t, []string{ev.ConversationID}, r.idleSince(now.Add(time.Second)))

	r.touch(second, now.Add(time.Minute))
	assert.Empty(t, r.idleSince(now.Add(time.Second)))

	r.setState(second, StateAwaitingPassword)
	assert.Equal(t, StateAwaitingPassword, r.stateOf(ev.ConversationID))

	drained := r.drain()
	require.Len(t, drained, 1)
	assert.Equal(t, 0, r.len())
	assert.Equal(t, StateIdle, r.stateOf(ev.ConversationID))
}

func TestStateString(t *testing.T) {
	tests := []struct {
		state State
		want  string
	}{
		{StateIdle, "idle"},
		{StateAwaitingUsername, "awaiting_username"},
		{StateAwaitingPassword, "awaiting_password"},
		{StateAwaitingSecondFactor, "awaiting_second_factor"},
		{StateTerminated, "terminated"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, tt.state.String())
	}

	assert.True(t, StateAwaitingPassword.sensitive())
	assert.True(t, StateAwaitingSecondFactor.sensitive())
	assert.False(t, StateAwaitingUsername.sensitive())
}

func TestConversationID(t *testing.T) {
	assert.Equal(t, "telegram:42", ConversationID(42))
	assert.Equal(t, "telegram:-100123", ConversationID(-100123))
}

package intervention

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSessionStore struct {
	state map[string]string
}

func (f *fakeSessionStore) SetSessionAutoReply(_ context.Context, sessionID, state string) error {
	f.state[sessionID] = state
	return nil
}

func (f *fakeSessionStore) GetSessionAutoReply(_ context.Context, sessionID string) (string, error) {
	return f.state[sessionID], nil
}

type fakeConversationStore struct {
	state map[string]string
}

func (f *fakeConversationStore) SetConversationAutoReply(_ context.Context, chatKey, state string) error {
	f.state[chatKey] = state
	return nil
}

func (f *fakeConversationStore) GetConversationAutoReply(_ context.Context, chatKey string) (string, error) {
	return f.state[chatKey], nil
}

func newTestController() (*Controller, *fakeSessionStore, *fakeConversationStore) {
	sessions := &fakeSessionStore{state: map[string]string{"sess-1": autoReplyOn}}
	conversations := &fakeConversationStore{state: map[string]string{"sess-1:chat-1": autoReplyOn}}
	ctrl := New(sessions, conversations, func(_ context.Context, chatKey string) (string, error) {
		return "sess-1", nil
	})
	return ctrl, sessions, conversations
}

func TestHandlePunctuationControl(t *testing.T) {
	ctrl, _, conversations := newTestController()
	ctx := context.Background()

	outcome, err := ctrl.HandlePunctuationControl(ctx, "sess-1:chat-1", "taking over,")
	require.NoError(t, err)
	assert.Equal(t, Paused, outcome)
	assert.Equal(t, autoReplyOff, conversations.state["sess-1:chat-1"])

	outcome, err = ctrl.HandlePunctuationControl(ctx, "sess-1:chat-1", "resolved.")
	require.NoError(t, err)
	assert.Equal(t, Resumed, outcome)
	assert.Equal(t, autoReplyOn, conversations.state["sess-1:chat-1"])

	outcome, err = ctrl.HandlePunctuationControl(ctx, "sess-1:chat-1", "hello there")
	require.NoError(t, err)
	assert.Equal(t, NoChange, outcome)

	// Fullwidth punctuation never triggers a marker (ASCII-only by design).
	outcome, err = ctrl.HandlePunctuationControl(ctx, "sess-1:chat-1", "taking over，")
	require.NoError(t, err)
	assert.Equal(t, NoChange, outcome)
}

func TestShouldAutoReply_SessionPrecedence(t *testing.T) {
	ctrl, sessions, conversations := newTestController()
	ctx := context.Background()

	ok, err := ctrl.ShouldAutoReply(ctx, "sess-1:chat-1")
	require.NoError(t, err)
	assert.True(t, ok)

	require.NoError(t, sessions.SetSessionAutoReply(ctx, "sess-1", autoReplyOff))
	conversations.state["sess-1:chat-1"] = autoReplyOn

	ok, err = ctrl.ShouldAutoReply(ctx, "sess-1:chat-1")
	require.NoError(t, err)
	assert.False(t, ok, "a paused session must suppress replies regardless of conversation state")
}

func TestSafeTrim(t *testing.T) {
	cases := map[string]string{
		"All done.":    "All done",
		"taking over,": "taking over",
		"no marker":    "no marker",
		"":             "",
		"a..":          "a.",
	}
	for in, want := range cases {
		assert.Equal(t, want, SafeTrim(in), "input %q", in)
	}
}

package coordinator

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wa-agent/backend/internal/clock"
	"github.com/wa-agent/backend/internal/intervention"
	"github.com/wa-agent/backend/internal/models"
)

type fakeConversations struct {
	mu    sync.Mutex
	convs map[string]*models.Conversation
}

func newFakeConversations() *fakeConversations {
	return &fakeConversations{convs: map[string]*models.Conversation{}}
}

func (f *fakeConversations) GetOrCreateConversation(_ context.Context, waSessionID, waAccountID, remoteChatID string) (*models.Conversation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	chatKey := models.ChatKey(waAccountID, remoteChatID)
	if c, ok := f.convs[chatKey]; ok {
		return c, nil
	}
	c := models.NewConversation(waSessionID, waAccountID, remoteChatID)
	f.convs[chatKey] = c
	return c, nil
}

func (f *fakeConversations) AdvanceTurn(_ context.Context, chatKey string, turn int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.convs[chatKey].AdvanceTurn(turn)
}

type fakeMessages struct {
	mu       sync.Mutex
	inserted []*models.Message
	statuses map[string]string
}

func newFakeMessages() *fakeMessages {
	return &fakeMessages{statuses: map[string]string{}}
}

// InsertMessage enforces the same (chatKey, turn, role) uniqueness as
// uq_messages_chat_turn_role, so a test that reintroduces a per-raw-
// message insert under a shared, not-yet-committed turn fails here
// instead of only against a real Postgres instance.
func (f *fakeMessages) InsertMessage(_ context.Context, msg *models.Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, existing := range f.inserted {
		if existing.ChatKey == msg.ChatKey && existing.Turn == msg.Turn && existing.Role == msg.Role {
			return fmt.Errorf("duplicate key value violates unique constraint %q", "uq_messages_chat_turn_role")
		}
	}
	f.inserted = append(f.inserted, msg)
	f.statuses[msg.ID] = msg.Status
	return nil
}

func (f *fakeMessages) MarkMessageStatus(_ context.Context, id, status string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.statuses[id] = status
	return nil
}

type fakeJobs struct {
	mu    sync.Mutex
	turns []int
	texts []string
}

func (f *fakeJobs) EnqueueRetrieve(_ context.Context, _ string, turn int, mergedText string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.turns = append(f.turns, turn)
	f.texts = append(f.texts, mergedText)
	return nil
}

type fakeAudit struct {
	outcomes []intervention.Outcome
}

func (f *fakeAudit) RecordInterventionAudit(_ context.Context, _ string, outcome intervention.Outcome) error {
	f.outcomes = append(f.outcomes, outcome)
	return nil
}

type fakeSessionStore struct{ state map[string]string }

func (f *fakeSessionStore) SetSessionAutoReply(_ context.Context, sessionID, state string) error {
	f.state[sessionID] = state
	return nil
}
func (f *fakeSessionStore) GetSessionAutoReply(_ context.Context, sessionID string) (string, error) {
	return f.state[sessionID], nil
}

type fakeConversationAutoReply struct{ state map[string]string }

func (f *fakeConversationAutoReply) SetConversationAutoReply(_ context.Context, chatKey, state string) error {
	f.state[chatKey] = state
	return nil
}
func (f *fakeConversationAutoReply) GetConversationAutoReply(_ context.Context, chatKey string) (string, error) {
	return f.state[chatKey], nil
}

func newTestCoordinator(t *testing.T) (*Coordinator, *fakeJobs, *clock.Fake) {
	t.Helper()
	clk := clock.NewFake(time.Unix(1_700_000_000, 0))
	sessions := &fakeSessionStore{state: map[string]string{"sess-1": "on"}}
	convAutoReply := &fakeConversationAutoReply{state: map[string]string{"acct-1:chat-1": "on"}}
	control := intervention.New(sessions, convAutoReply, func(_ context.Context, chatKey string) (string, error) {
		return "sess-1", nil
	})
	jobs := &fakeJobs{}
	c := New(
		context.Background(),
		clk,
		newFakeConversations(),
		newFakeMessages(),
		jobs,
		&fakeAudit{},
		control,
		10*time.Minute,
		nil,
	)
	return c, jobs, clk
}

func TestCoordinator_MergesMessagesWithinWindow(t *testing.T) {
	c, jobs, _ := newTestCoordinator(t)
	ctx := context.Background()

	require.NoError(t, c.OnInboundMessage(ctx, "sess-1", "acct-1", "chat-1", "hi", "m1"))
	require.NoError(t, c.OnInboundMessage(ctx, "sess-1", "acct-1", "chat-1", "there", "m2"))
	c.WaitForChat("acct-1", "chat-1")

	require.Len(t, jobs.turns, 1)
	assert.Equal(t, 1, jobs.turns[0])
	assert.Equal(t, "hi there", jobs.texts[0])
}

func TestCoordinator_MergedMessagesPersistOneRowPerTurn(t *testing.T) {
	c, jobs, _ := newTestCoordinator(t)
	ctx := context.Background()

	require.NoError(t, c.OnInboundMessage(ctx, "sess-1", "acct-1", "chat-1", "hi", "m1"))
	require.NoError(t, c.OnInboundMessage(ctx, "sess-1", "acct-1", "chat-1", "there", "m2"))
	c.WaitForChat("acct-1", "chat-1")

	require.Len(t, jobs.turns, 1)

	fm := c.actors[models.ChatKey("acct-1", "chat-1")].messages.(*fakeMessages)
	require.Len(t, fm.inserted, 1, "only the merged turn is persisted, not one row per raw message")
	assert.Equal(t, "hi there", fm.inserted[0].Text)
	assert.Equal(t, models.RoleUser, fm.inserted[0].Role)
	assert.Equal(t, 1, fm.inserted[0].Turn)
}

func TestCoordinator_TurnsAreStrictlyMonotonic(t *testing.T) {
	c, jobs, _ := newTestCoordinator(t)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		require.NoError(t, c.OnInboundMessage(ctx, "sess-1", "acct-1", "chat-1", "msg", "m"))
		c.WaitForChat("acct-1", "chat-1")
	}

	require.Len(t, jobs.turns, 5)
	for i, turn := range jobs.turns {
		assert.Equal(t, i+1, turn)
	}
}

func TestCoordinator_SuppressesWhenSessionPaused(t *testing.T) {
	c, jobs, _ := newTestCoordinator(t)
	ctx := context.Background()

	sessions := &fakeSessionStore{state: map[string]string{"sess-1": "off"}}
	convAutoReply := &fakeConversationAutoReply{state: map[string]string{}}
	c.control = intervention.New(sessions, convAutoReply, func(_ context.Context, chatKey string) (string, error) {
		return "sess-1", nil
	})

	require.NoError(t, c.OnInboundMessage(ctx, "sess-1", "acct-1", "chat-1", "hello", "m1"))
	c.WaitForChat("acct-1", "chat-1")

	assert.Empty(t, jobs.turns)
}

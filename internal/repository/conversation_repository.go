package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/wa-agent/backend/internal/models"
)

// ConversationRepository persists Conversation rows (spec section 3).
type ConversationRepository struct {
	db *sql.DB
}

// NewConversationRepository constructs a ConversationRepository.
func NewConversationRepository(db *sql.DB) *ConversationRepository {
	return &ConversationRepository{db: db}
}

// GetOrCreateConversation fetches the conversation for (waAccountId,
// remoteChatId), creating it with lastTurn = 0 if absent.
func (r *ConversationRepository) GetOrCreateConversation(ctx context.Context, waSessionID, waAccountID, remoteChatID string) (*models.Conversation, error) {
	defer timer("conversations", "get_or_create")()
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	chatKey := models.ChatKey(waAccountID, remoteChatID)

	conv, err := r.get(ctx, chatKey)
	if err == nil {
		observe("conversations", "get_or_create", nil)
		return conv, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		observe("conversations", "get_or_create", err)
		return nil, wrap("get conversation", err)
	}

	fresh := models.NewConversation(waSessionID, waAccountID, remoteChatID)
	_, err = r.db.ExecContext(ctx, `
		INSERT INTO conversations (chat_key, wa_session_id, remote_chat_id, last_turn, auto_reply_state, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (chat_key) DO NOTHING`,
		fresh.ChatKey, fresh.WaSessionID, fresh.RemoteChatID, fresh.LastTurn, fresh.AutoReplyState, fresh.UpdatedAt,
	)
	if err != nil {
		observe("conversations", "get_or_create", err)
		return nil, wrap("create conversation", err)
	}

	// Someone may have raced us; re-read the authoritative row either way.
	conv, err = r.get(ctx, chatKey)
	observe("conversations", "get_or_create", err)
	if err != nil {
		return nil, wrap("reload conversation after create", err)
	}
	return conv, nil
}

func (r *ConversationRepository) get(ctx context.Context, chatKey string) (*models.Conversation, error) {
	var c models.Conversation
	err := r.db.QueryRowContext(ctx, `
		SELECT chat_key, wa_session_id, remote_chat_id, last_turn, auto_reply_state, updated_at
		FROM conversations WHERE chat_key = $1`, chatKey,
	).Scan(&c.ChatKey, &c.WaSessionID, &c.RemoteChatID, &c.LastTurn, &c.AutoReplyState, &c.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// AdvanceTurn persists lastTurn, rejecting regression (data-model
// invariant: lastTurn never decreases).
func (r *ConversationRepository) AdvanceTurn(ctx context.Context, chatKey string, turn int) error {
	defer timer("conversations", "advance_turn")()
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	res, err := r.db.ExecContext(ctx, `
		UPDATE conversations SET last_turn = $1, updated_at = now()
		WHERE chat_key = $2 AND last_turn < $1`,
		turn, chatKey,
	)
	if err != nil {
		observe("conversations", "advance_turn", err)
		return wrap("advance turn", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		observe("conversations", "advance_turn", err)
		return wrap("advance turn rows affected", err)
	}
	if n == 0 {
		err = errors.New("turn regression or unknown chatKey")
		observe("conversations", "advance_turn", err)
		return err
	}
	observe("conversations", "advance_turn", nil)
	return nil
}

// SetConversationAutoReply flips the per-conversation punctuation-control
// marker (spec section 4.C).
func (r *ConversationRepository) SetConversationAutoReply(ctx context.Context, chatKey, state string) error {
	defer timer("conversations", "set_auto_reply")()
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	_, err := r.db.ExecContext(ctx, `
		UPDATE conversations SET auto_reply_state = $1, updated_at = now() WHERE chat_key = $2`,
		state, chatKey,
	)
	observe("conversations", "set_auto_reply", err)
	return wrap("set conversation auto reply", err)
}

// GetConversationAutoReply reads the per-conversation auto-reply state.
func (r *ConversationRepository) GetConversationAutoReply(ctx context.Context, chatKey string) (string, error) {
	defer timer("conversations", "get_auto_reply")()
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	var state string
	err := r.db.QueryRowContext(ctx, `SELECT auto_reply_state FROM conversations WHERE chat_key = $1`, chatKey).Scan(&state)
	observe("conversations", "get_auto_reply", err)
	if err != nil {
		return "", wrap("get conversation auto reply", err)
	}
	return state, nil
}

// ResolveChat maps a chatKey back to its owning session id and remote chat
// id, for the Replier's outbound gateway call (spec section 4.H).
func (r *ConversationRepository) ResolveChat(ctx context.Context, chatKey string) (waSessionID, remoteChatID string, err error) {
	defer timer("conversations", "resolve_chat")()
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	err = r.db.QueryRowContext(ctx, `SELECT wa_session_id, remote_chat_id FROM conversations WHERE chat_key = $1`, chatKey).
		Scan(&waSessionID, &remoteChatID)
	observe("conversations", "resolve_chat", err)
	if err != nil {
		return "", "", wrap("resolve chat", err)
	}
	return waSessionID, remoteChatID, nil
}

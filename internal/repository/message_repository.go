package repository

import (
	"context"
	"database/sql"

	"github.com/wa-agent/backend/internal/models"
	"github.com/wa-agent/backend/internal/ports"
)

// MessageRepository persists the append-only per-chat message log (spec
// section 3 "Message") and the token-usage ledger (section 4.G).
type MessageRepository struct {
	db *sql.DB
}

// NewMessageRepository constructs a MessageRepository.
func NewMessageRepository(db *sql.DB) *MessageRepository {
	return &MessageRepository{db: db}
}

// InsertMessage persists a new message row. Satisfies both
// coordinator.MessageStore and pipeline.AssistantMessageWriter.
func (r *MessageRepository) InsertMessage(ctx context.Context, msg *models.Message) error {
	defer timer("messages", "insert")()
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO messages (id, chat_key, turn, role, text, status, ts)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		msg.ID, msg.ChatKey, msg.Turn, msg.Role, msg.Text, msg.Status, msg.Ts,
	)
	observe("messages", "insert", err)
	return wrap("insert message", err)
}

// MarkMessageStatus applies a status transition to a message by id.
func (r *MessageRepository) MarkMessageStatus(ctx context.Context, id, status string) error {
	defer timer("messages", "mark_status")()
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	_, err := r.db.ExecContext(ctx, `UPDATE messages SET status = $1 WHERE id = $2`, status, id)
	observe("messages", "mark_status", err)
	return wrap("mark message status", err)
}

// MarkAssistantMessageStatus applies a status transition to the assistant
// message for (chatKey, turn), since the pipeline tracks turns rather than
// message ids past the coordinator (spec sections 4.G-4.H).
func (r *MessageRepository) MarkAssistantMessageStatus(ctx context.Context, chatKey string, turn int, status string) error {
	defer timer("messages", "mark_assistant_status")()
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	_, err := r.db.ExecContext(ctx, `
		UPDATE messages SET status = $1
		WHERE chat_key = $2 AND turn = $3 AND role = $4`,
		status, chatKey, turn, models.RoleAssistant,
	)
	observe("messages", "mark_assistant_status", err)
	return wrap("mark assistant message status", err)
}

// LoadHistory returns up to limit most recent messages of the chat
// (both roles, excluding suppressed), ordered by turn ascending, per spec
// section 4.G step 1.
func (r *MessageRepository) LoadHistory(ctx context.Context, chatKey string, limit int) ([]models.Message, error) {
	defer timer("messages", "load_history")()
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	rows, err := r.db.QueryContext(ctx, `
		SELECT id, chat_key, turn, role, text, status, ts FROM (
			SELECT id, chat_key, turn, role, text, status, ts
			FROM messages
			WHERE chat_key = $1 AND status != $2
			ORDER BY turn DESC, ts DESC
			LIMIT $3
		) recent ORDER BY turn ASC, ts ASC`,
		chatKey, models.MessageStatusSuppressed, limit,
	)
	if err != nil {
		observe("messages", "load_history", err)
		return nil, wrap("load history", err)
	}
	defer rows.Close()

	var history []models.Message
	for rows.Next() {
		var m models.Message
		if err := rows.Scan(&m.ID, &m.ChatKey, &m.Turn, &m.Role, &m.Text, &m.Status, &m.Ts); err != nil {
			observe("messages", "load_history", err)
			return nil, wrap("scan message row", err)
		}
		history = append(history, m)
	}
	if err := rows.Err(); err != nil {
		observe("messages", "load_history", err)
		return nil, wrap("iterate message rows", err)
	}
	observe("messages", "load_history", nil)
	return history, nil
}

// RecordUsage appends a token-usage entry for a completed infer call.
func (r *MessageRepository) RecordUsage(ctx context.Context, chatKey string, turn int, usage ports.Usage) error {
	defer timer("token_usage", "insert")()
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO token_usage (chat_key, turn, prompt_tokens, completion_tokens, total_tokens)
		VALUES ($1, $2, $3, $4, $5)`,
		chatKey, turn, usage.PromptTokens, usage.CompletionTokens, usage.TotalTokens,
	)
	observe("token_usage", "insert", err)
	return wrap("record token usage", err)
}

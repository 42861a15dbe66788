package repository

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/require"

	"github.com/wa-agent/backend/internal/models"
	"github.com/wa-agent/backend/internal/ports"
)

func TestMessageRepository_InsertMessage(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	msg := &models.Message{
		ID: "msg-1", ChatKey: "chat-1", Turn: 1, Role: models.RoleUser,
		Text: "hi", Status: models.MessageStatusCompleted, Ts: time.Now(),
	}
	mock.ExpectExec("INSERT INTO messages").
		WithArgs(msg.ID, msg.ChatKey, msg.Turn, msg.Role, msg.Text, msg.Status, msg.Ts).
		WillReturnResult(sqlmock.NewResult(1, 1))

	repo := NewMessageRepository(db)
	require.NoError(t, repo.InsertMessage(context.Background(), msg))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestMessageRepository_MarkAssistantMessageStatus(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec("UPDATE messages SET status").
		WithArgs(models.MessageStatusSuppressed, "chat-1", 4, models.RoleAssistant).
		WillReturnResult(sqlmock.NewResult(0, 1))

	repo := NewMessageRepository(db)
	require.NoError(t, repo.MarkAssistantMessageStatus(context.Background(), "chat-1", 4, models.MessageStatusSuppressed))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestMessageRepository_LoadHistory_OrdersAscending(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	now := time.Now()
	cols := []string{"id", "chat_key", "turn", "role", "text", "status", "ts"}
	mock.ExpectQuery("SELECT id, chat_key, turn, role, text, status, ts FROM").
		WithArgs("chat-1", models.MessageStatusSuppressed, 20).
		WillReturnRows(sqlmock.NewRows(cols).
			AddRow("m1", "chat-1", 1, models.RoleUser, "hello", models.MessageStatusCompleted, now).
			AddRow("m2", "chat-1", 1, models.RoleAssistant, "hi there", models.MessageStatusCompleted, now))

	repo := NewMessageRepository(db)
	history, err := repo.LoadHistory(context.Background(), "chat-1", 20)
	require.NoError(t, err)
	require.Len(t, history, 2)
	require.Equal(t, "m1", history[0].ID)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestMessageRepository_RecordUsage(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec("INSERT INTO token_usage").
		WithArgs("chat-1", 3, 100, 50, 150).
		WillReturnResult(sqlmock.NewResult(1, 1))

	repo := NewMessageRepository(db)
	usage := ports.Usage{PromptTokens: 100, CompletionTokens: 50, TotalTokens: 150}
	require.NoError(t, repo.RecordUsage(context.Background(), "chat-1", 3, usage))
	require.NoError(t, mock.ExpectationsWereMet())
}

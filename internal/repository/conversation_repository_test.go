package repository

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/require"

	"github.com/wa-agent/backend/internal/models"
)

func TestConversationRepository_GetOrCreateConversation_Existing(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	chatKey := models.ChatKey("acct-1", "chat-1")
	mock.ExpectQuery("SELECT chat_key, wa_session_id, remote_chat_id, last_turn, auto_reply_state, updated_at").
		WithArgs(chatKey).
		WillReturnRows(sqlmock.NewRows([]string{"chat_key", "wa_session_id", "remote_chat_id", "last_turn", "auto_reply_state", "updated_at"}).
			AddRow(chatKey, "sess-1", "chat-1", 3, "on", time.Now()))

	repo := NewConversationRepository(db)
	conv, err := repo.GetOrCreateConversation(context.Background(), "sess-1", "acct-1", "chat-1")
	require.NoError(t, err)
	require.Equal(t, 3, conv.LastTurn)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestConversationRepository_GetOrCreateConversation_CreatesWhenMissing(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	chatKey := models.ChatKey("acct-1", "chat-2")
	cols := []string{"chat_key", "wa_session_id", "remote_chat_id", "last_turn", "auto_reply_state", "updated_at"}

	mock.ExpectQuery("SELECT chat_key, wa_session_id, remote_chat_id, last_turn, auto_reply_state, updated_at").
		WithArgs(chatKey).
		WillReturnRows(sqlmock.NewRows(cols))
	mock.ExpectExec("INSERT INTO conversations").
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectQuery("SELECT chat_key, wa_session_id, remote_chat_id, last_turn, auto_reply_state, updated_at").
		WithArgs(chatKey).
		WillReturnRows(sqlmock.NewRows(cols).AddRow(chatKey, "sess-1", "chat-2", 0, "on", time.Now()))

	repo := NewConversationRepository(db)
	conv, err := repo.GetOrCreateConversation(context.Background(), "sess-1", "acct-1", "chat-2")
	require.NoError(t, err)
	require.Equal(t, 0, conv.LastTurn)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestConversationRepository_AdvanceTurn_RejectsRegression(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec("UPDATE conversations SET last_turn").
		WithArgs(2, "chat-1").
		WillReturnResult(sqlmock.NewResult(0, 0))

	repo := NewConversationRepository(db)
	err = repo.AdvanceTurn(context.Background(), "chat-1", 2)
	require.Error(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestConversationRepository_AdvanceTurn_Succeeds(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec("UPDATE conversations SET last_turn").
		WithArgs(5, "chat-1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	repo := NewConversationRepository(db)
	require.NoError(t, repo.AdvanceTurn(context.Background(), "chat-1", 5))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestConversationRepository_ResolveChat(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery("SELECT wa_session_id, remote_chat_id FROM conversations").
		WithArgs("chat-1").
		WillReturnRows(sqlmock.NewRows([]string{"wa_session_id", "remote_chat_id"}).AddRow("sess-1", "remote-1"))

	repo := NewConversationRepository(db)
	sessID, remoteID, err := repo.ResolveChat(context.Background(), "chat-1")
	require.NoError(t, err)
	require.Equal(t, "sess-1", sessID)
	require.Equal(t, "remote-1", remoteID)
}

package repository

import (
	"context"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/require"
)

func TestAgentRepository_AgentForChat(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery("SELECT s.agent_id FROM conversations c").
		WithArgs("chat-1").
		WillReturnRows(sqlmock.NewRows([]string{"agent_id"}).AddRow("agent-1"))
	mock.ExpectQuery("SELECT prompt_system, model, temperature, max_tokens FROM agents").
		WithArgs("agent-1").
		WillReturnRows(sqlmock.NewRows([]string{"prompt_system", "model", "temperature", "max_tokens"}).
			AddRow("be helpful", "gpt-4o-mini", 0.3, 512))
	mock.ExpectQuery("SELECT kb_id, priority, weight FROM agent_knowledge_bases").
		WithArgs("agent-1").
		WillReturnRows(sqlmock.NewRows([]string{"kb_id", "priority", "weight"}).
			AddRow("kb-1", 0, 1.0).
			AddRow("kb-2", 1, 0.5))

	repo := NewAgentRepository(db)
	agent, err := repo.AgentForChat(context.Background(), "chat-1")
	require.NoError(t, err)
	require.Equal(t, "agent-1", agent.ID)
	require.Equal(t, "gpt-4o-mini", agent.Model)
	require.Len(t, agent.KnowledgeBases, 2)
	require.Equal(t, "kb-1", agent.KnowledgeBases[0].KbID)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAgentRepository_HydrateChunks_EmptyInputSkipsQuery(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	repo := NewAgentRepository(db)
	chunks, err := repo.HydrateChunks(context.Background(), nil)
	require.NoError(t, err)
	require.Empty(t, chunks)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAgentRepository_HydrateChunks(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery("SELECT chunk_id, kb_id, doc_id, chunk_index, text, vector_id").
		WillReturnRows(sqlmock.NewRows([]string{"chunk_id", "kb_id", "doc_id", "chunk_index", "text", "vector_id"}).
			AddRow("c1", "kb-1", "doc-1", 0, "chunk text", "kb-1:c1"))

	repo := NewAgentRepository(db)
	chunks, err := repo.HydrateChunks(context.Background(), []string{"c1", "c2-missing"})
	require.NoError(t, err)
	require.Len(t, chunks, 1)
	require.Equal(t, "chunk text", chunks["c1"].Text)
}

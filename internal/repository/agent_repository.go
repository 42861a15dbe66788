package repository

import (
	"context"
	"database/sql"

	"github.com/lib/pq"

	"github.com/wa-agent/backend/internal/models"
)

// AgentRepository resolves the Agent bound to a chat and hydrates
// knowledge-base chunk text (spec sections 4.F-4.G).
type AgentRepository struct {
	db *sql.DB
}

// NewAgentRepository constructs an AgentRepository.
func NewAgentRepository(db *sql.DB) *AgentRepository {
	return &AgentRepository{db: db}
}

// AgentForChat resolves the agent bound to the WaSession owning chatKey.
func (r *AgentRepository) AgentForChat(ctx context.Context, chatKey string) (*models.Agent, error) {
	defer timer("agents", "for_chat")()
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	var agentID string
	err := r.db.QueryRowContext(ctx, `
		SELECT s.agent_id FROM conversations c
		JOIN wa_sessions s ON s.id = c.wa_session_id
		WHERE c.chat_key = $1`, chatKey,
	).Scan(&agentID)
	if err != nil {
		observe("agents", "for_chat", err)
		return nil, wrap("resolve agent for chat", err)
	}

	agent, err := r.get(ctx, agentID)
	observe("agents", "for_chat", err)
	return agent, err
}

func (r *AgentRepository) get(ctx context.Context, agentID string) (*models.Agent, error) {
	var a models.Agent
	a.ID = agentID
	err := r.db.QueryRowContext(ctx, `
		SELECT prompt_system, model, temperature, max_tokens FROM agents WHERE id = $1`, agentID,
	).Scan(&a.PromptSystem, &a.Model, &a.Temperature, &a.MaxTokens)
	if err != nil {
		return nil, wrap("load agent", err)
	}

	rows, err := r.db.QueryContext(ctx, `
		SELECT kb_id, priority, weight FROM agent_knowledge_bases WHERE agent_id = $1 ORDER BY priority`, agentID)
	if err != nil {
		return nil, wrap("load agent knowledge bases", err)
	}
	defer rows.Close()

	for rows.Next() {
		var kb models.KnowledgeBaseBinding
		if err := rows.Scan(&kb.KbID, &kb.Priority, &kb.Weight); err != nil {
			return nil, wrap("scan knowledge base binding", err)
		}
		a.KnowledgeBases = append(a.KnowledgeBases, kb)
	}
	if err := rows.Err(); err != nil {
		return nil, wrap("iterate knowledge base bindings", err)
	}
	return &a, nil
}

// HydrateChunks loads chunk text/metadata for the given chunk ids,
// returning whichever ids are found (spec section 4.F step 4).
func (r *AgentRepository) HydrateChunks(ctx context.Context, chunkIDs []string) (map[string]models.KbChunk, error) {
	defer timer("kb_chunks", "hydrate")()
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	out := make(map[string]models.KbChunk, len(chunkIDs))
	if len(chunkIDs) == 0 {
		return out, nil
	}

	rows, err := r.db.QueryContext(ctx, `
		SELECT chunk_id, kb_id, doc_id, chunk_index, text, vector_id
		FROM kb_chunks WHERE chunk_id = ANY($1)`, pq.Array(chunkIDs),
	)
	if err != nil {
		observe("kb_chunks", "hydrate", err)
		return nil, wrap("hydrate chunks", err)
	}
	defer rows.Close()

	for rows.Next() {
		var c models.KbChunk
		if err := rows.Scan(&c.ChunkID, &c.KbID, &c.DocID, &c.ChunkIndex, &c.Text, &c.VectorID); err != nil {
			observe("kb_chunks", "hydrate", err)
			return nil, wrap("scan chunk row", err)
		}
		out[c.ChunkID] = c
	}
	if err := rows.Err(); err != nil {
		observe("kb_chunks", "hydrate", err)
		return nil, wrap("iterate chunk rows", err)
	}
	observe("kb_chunks", "hydrate", nil)
	return out, nil
}

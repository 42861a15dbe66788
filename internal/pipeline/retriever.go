package pipeline

import (
	"context"

	"github.com/wa-agent/backend/internal/apperr"
	"github.com/wa-agent/backend/internal/models"
	"github.com/wa-agent/backend/internal/ports"
)

const (
	retrieveTopK           = 8
	retrieveScoreThreshold = 0.7
	embeddingModel         = "text-embedding-ada-002"
)

// AgentResolver looks up the agent bound to a chat's owning session.
type AgentResolver interface {
	AgentForChat(ctx context.Context, chatKey string) (*models.Agent, error)
}

// ChunkHydrator loads chunk text from SQL by id, used to hydrate vector
// matches (spec section 4.F step 4: "Hydrate chunk text from SQL").
type ChunkHydrator interface {
	HydrateChunks(ctx context.Context, chunkIDs []string) (map[string]models.KbChunk, error)
}

// Retriever implements spec.md section 4.F.
type Retriever struct {
	agents     AgentResolver
	embeddings ports.Embeddings
	vectors    ports.Vector
	chunks     ChunkHydrator
	queue      *Queue
}

// NewRetriever constructs a Retriever.
func NewRetriever(agents AgentResolver, embeddings ports.Embeddings, vectors ports.Vector, chunks ChunkHydrator, queue *Queue) *Retriever {
	return &Retriever{agents: agents, embeddings: embeddings, vectors: vectors, chunks: chunks, queue: queue}
}

// OnFinalFailure is a no-op for the retrieve stage: there is no
// per-stage side effect to undo when retries are exhausted, the turn
// simply never produces a reply (spec section 4.F edge case).
func (r *Retriever) OnFinalFailure(ctx context.Context, job *models.Job) error { return nil }

// Handle implements the StageHandler contract for the retrieve stage.
func (r *Retriever) Handle(ctx context.Context, job *models.Job) (interface{}, error) {
	var payload models.RetrievePayload
	if err := job.DecodePayload(&payload); err != nil {
		return nil, apperr.New(apperr.ClassFatal, err)
	}

	agent, err := r.agents.AgentForChat(ctx, payload.ChatKey)
	if err != nil {
		return nil, err
	}

	chunkRefs, err := r.retrieveContext(ctx, payload.MergedText, agent)
	if err != nil {
		return nil, err
	}

	inferPayload := models.InferPayload{
		ChatKey:     payload.ChatKey,
		Turn:        payload.Turn,
		UserMessage: payload.MergedText,
		Context:     chunkRefs,
	}
	if err := r.queue.enqueueInfer(ctx, inferPayload); err != nil {
		return nil, err
	}
	return inferPayload, nil
}

// retrieveContext embeds mergedText, queries the vector index scoped to
// the agent's bound knowledge bases, and hydrates the matched chunks'
// text in vector-returned order. An empty query text still completes
// the round trip and returns an empty slice (spec section 4.F edge
// case: "Empty query ... still emit infer job with empty context").
func (r *Retriever) retrieveContext(ctx context.Context, mergedText string, agent *models.Agent) ([]models.ChunkRef, error) {
	if mergedText == "" || len(agent.KnowledgeBases) == 0 {
		return nil, nil
	}

	embedResp, err := r.embeddings.Embed(ctx, ports.EmbedRequest{
		Model: embeddingModel,
		Input: []string{mergedText},
	})
	if err != nil {
		return nil, err
	}
	if len(embedResp.Embeddings) == 0 {
		return nil, nil
	}

	matches, err := r.vectors.Query(ctx, ports.VectorQuery{
		Vector:         embedResp.Embeddings[0],
		TopK:           retrieveTopK,
		ScoreThreshold: retrieveScoreThreshold,
		KbIDs:          agent.KbIDs(),
	})
	if err != nil {
		return nil, err
	}
	if len(matches) == 0 {
		return nil, nil
	}

	chunkIDs := make([]string, len(matches))
	for i, m := range matches {
		chunkIDs[i] = m.ChunkID
	}
	hydrated, err := r.chunks.HydrateChunks(ctx, chunkIDs)
	if err != nil {
		return nil, err
	}

	refs := make([]models.ChunkRef, 0, len(matches))
	for _, m := range matches {
		chunk, ok := hydrated[m.ChunkID]
		if !ok {
			continue
		}
		refs = append(refs, models.ChunkRef{
			ChunkID: chunk.ChunkID,
			KbID:    chunk.KbID,
			Text:    chunk.Text,
			Score:   m.Score,
		})
	}
	return refs, nil
}

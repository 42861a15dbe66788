package pipeline

import (
	"context"

	"github.com/wa-agent/backend/internal/models"
)

// Queue is the entry point jobs are emitted into; it implements
// coordinator.JobEnqueuer so the Chat Session Coordinator never depends
// on pipeline internals beyond this one method.
type Queue struct {
	jobs JobStore
}

// NewQueue constructs a Queue over the given job store.
func NewQueue(jobs JobStore) *Queue {
	return &Queue{jobs: jobs}
}

// EnqueueRetrieve emits the first-stage job for a coalesced turn (spec
// section 4.D step 5).
func (q *Queue) EnqueueRetrieve(ctx context.Context, chatKey string, turn int, mergedText string) error {
	job, err := models.NewJob(chatKey, turn, models.StageRetrieve, models.RetrievePayload{
		ChatKey:    chatKey,
		Turn:       turn,
		MergedText: mergedText,
	})
	if err != nil {
		return err
	}
	return q.jobs.Enqueue(ctx, job)
}

// enqueueInfer emits the second-stage job once retrieval completes
// (spec section 4.F step 5).
func (q *Queue) enqueueInfer(ctx context.Context, payload models.InferPayload) error {
	job, err := models.NewJob(payload.ChatKey, payload.Turn, models.StageInfer, payload)
	if err != nil {
		return err
	}
	return q.jobs.Enqueue(ctx, job)
}

// enqueueReply emits the third-stage job once inference completes (spec
// section 4.G step 4).
func (q *Queue) enqueueReply(ctx context.Context, payload models.ReplyPayload) error {
	job, err := models.NewJob(payload.ChatKey, payload.Turn, models.StageReply, payload)
	if err != nil {
		return err
	}
	return q.jobs.Enqueue(ctx, job)
}

// Package pipeline implements the staged retrieve/infer/reply job queue
// (spec section 4.E) and its three stage handlers (4.F-4.H). Grounded
// on the teacher's internal/queue producer/consumer pair (conditional
// claim and exponential backoff), generalized from WhatsApp-send
// priority queues to per-turn staged work; the queue itself lives in the
// Postgres jobs table behind JobStore.
package pipeline

import (
	"context"
	"time"

	"github.com/wa-agent/backend/internal/models"
)

// maxAttempts caps the exponential-backoff retry count (spec section
// 4.E: "capped at 5 attempts").
const maxAttempts = 5

// backoffFor returns the exponential backoff delay for the given
// attempt number (1-indexed), 2^attempt seconds.
func backoffFor(attempt int) time.Duration {
	d := time.Second
	for i := 0; i < attempt; i++ {
		d *= 2
	}
	return d
}

// JobStore is the slice of the SQL port the queue and workers need.
// ClaimNext implements the conditional pending->processing update that
// makes delivery at-least-once but handling idempotent per spec 4.E.
type JobStore interface {
	Enqueue(ctx context.Context, job *models.Job) error
	// ClaimNext atomically claims the next eligible pending job for the
	// given stage (status pending -> processing), taking a chat's jobs in
	// turn order, or returns nil, nil if none are ready yet (including
	// jobs whose retry delay has not yet elapsed).
	ClaimNext(ctx context.Context, stage string) (*models.Job, error)
	Complete(ctx context.Context, jobID string, result interface{}) error
	Suppress(ctx context.Context, jobID string) error
	// Retry persists result (partial progress, e.g. ReplyResult's
	// sentSegmentCount), increments the job's attempt counter, and
	// returns it to pending, claimable again once delay has elapsed.
	// result may be nil.
	Retry(ctx context.Context, jobID string, result interface{}, err error, delay time.Duration) error
	// Fail persists result and moves the job directly to failed
	// (terminal): attempts exhausted, or a non-retryable error class.
	Fail(ctx context.Context, jobID string, result interface{}, err error) error
}

// AutoReplyChecker is the suppression gate every stage handler re-reads
// before starting work (spec section 4.E: "Suppression gate").
type AutoReplyChecker interface {
	ShouldAutoReply(ctx context.Context, chatKey string) (bool, error)
}

package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/wa-agent/backend/internal/models"
)

// JobRepository implements pipeline.JobStore against the jobs table (spec
// sections 3 "Job" and 4.E). ClaimNext's conditional pending -> processing
// transition is the mechanism behind the at-least-once-delivery,
// idempotent-handler contract: a handler only ever starts work on a job it
// has exclusively claimed.
type JobRepository struct {
	db *sql.DB
}

// NewJobRepository constructs a JobRepository.
func NewJobRepository(db *sql.DB) *JobRepository {
	return &JobRepository{db: db}
}

// Enqueue inserts a new pending job.
func (r *JobRepository) Enqueue(ctx context.Context, job *models.Job) error {
	defer timer("jobs", "enqueue")()
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO jobs (id, chat_key, turn, stage, status, attempt, payload, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		job.ID, job.ChatKey, job.Turn, job.Stage, job.Status, job.Attempt, job.Payload, job.CreatedAt, job.UpdatedAt,
	)
	observe("jobs", "enqueue", err)
	return wrap("enqueue job", err)
}

// ClaimNext atomically claims the first eligible pending job for stage in
// (chat_key, turn, created_at) order, so a chat's jobs are claimed in turn
// order, transitioning it to processing (spec section 4.E "conditional
// update").
// Returns (nil, nil) when no job is eligible.
func (r *JobRepository) ClaimNext(ctx context.Context, stage string) (*models.Job, error) {
	defer timer("jobs", "claim_next")()
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		observe("jobs", "claim_next", err)
		return nil, wrap("begin claim transaction", err)
	}
	defer tx.Rollback()

	var job models.Job
	var errMsg sql.NullString
	err = tx.QueryRowContext(ctx, `
		SELECT id, chat_key, turn, stage, status, attempt, payload, result, error_message, created_at, updated_at
		FROM jobs
		WHERE stage = $1 AND status = $2 AND run_after <= now()
		ORDER BY chat_key, turn, created_at
		FOR UPDATE SKIP LOCKED
		LIMIT 1`,
		stage, models.JobStatusPending,
	).Scan(&job.ID, &job.ChatKey, &job.Turn, &job.Stage, &job.Status, &job.Attempt,
		&job.Payload, &job.Result, &errMsg, &job.CreatedAt, &job.UpdatedAt)
	job.ErrorMessage = errMsg.String
	if err == sql.ErrNoRows {
		observe("jobs", "claim_next", nil)
		return nil, nil
	}
	if err != nil {
		observe("jobs", "claim_next", err)
		return nil, wrap("claim next job", err)
	}

	if _, err := tx.ExecContext(ctx, `UPDATE jobs SET status = $1, updated_at = now() WHERE id = $2`, models.JobStatusProcessing, job.ID); err != nil {
		observe("jobs", "claim_next", err)
		return nil, wrap("mark job processing", err)
	}
	if err := tx.Commit(); err != nil {
		observe("jobs", "claim_next", err)
		return nil, wrap("commit claim", err)
	}

	job.Status = models.JobStatusProcessing
	observe("jobs", "claim_next", nil)
	return &job, nil
}

// Complete marks a job completed, persisting its result.
func (r *JobRepository) Complete(ctx context.Context, jobID string, result interface{}) error {
	defer timer("jobs", "complete")()
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	raw, err := json.Marshal(result)
	if err != nil {
		observe("jobs", "complete", err)
		return wrap("marshal job result", err)
	}

	_, err = r.db.ExecContext(ctx, `
		UPDATE jobs SET status = $1, result = $2, updated_at = now() WHERE id = $3`,
		models.JobStatusCompleted, raw, jobID,
	)
	observe("jobs", "complete", err)
	return wrap("complete job", err)
}

// Suppress moves a job straight to the terminal suppressed status (spec
// section 4.E "Suppression gate").
func (r *JobRepository) Suppress(ctx context.Context, jobID string) error {
	defer timer("jobs", "suppress")()
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	_, err := r.db.ExecContext(ctx, `
		UPDATE jobs SET status = $1, updated_at = now() WHERE id = $2`,
		models.JobStatusSuppressed, jobID,
	)
	observe("jobs", "suppress", err)
	return wrap("suppress job", err)
}

// Retry persists partial progress and returns the job to pending after
// delay, bumping its attempt counter (spec section 4.E "Backoff").
func (r *JobRepository) Retry(ctx context.Context, jobID string, result interface{}, jobErr error, delay time.Duration) error {
	defer timer("jobs", "retry")()
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	raw, err := json.Marshal(result)
	if err != nil {
		observe("jobs", "retry", err)
		return wrap("marshal job result", err)
	}

	_, err = r.db.ExecContext(ctx, `
		UPDATE jobs
		SET status = $1, attempt = attempt + 1, result = $2, error_message = $3,
		    run_after = now() + $4 * interval '1 second', updated_at = now()
		WHERE id = $5`,
		models.JobStatusPending, raw, jobErr.Error(), delay.Seconds(), jobID,
	)
	observe("jobs", "retry", err)
	return wrap("retry job", err)
}

// Fail marks a job terminally failed after exhausting its retry budget or
// hitting a non-retryable error (spec section 4.E).
func (r *JobRepository) Fail(ctx context.Context, jobID string, result interface{}, jobErr error) error {
	defer timer("jobs", "fail")()
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	raw, err := json.Marshal(result)
	if err != nil {
		observe("jobs", "fail", err)
		return wrap("marshal job result", err)
	}

	_, err = r.db.ExecContext(ctx, `
		UPDATE jobs SET status = $1, result = $2, error_message = $3, updated_at = now() WHERE id = $4`,
		models.JobStatusFailed, raw, jobErr.Error(), jobID,
	)
	observe("jobs", "fail", err)
	return wrap("fail job", err)
}

package pipeline

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/wa-agent/backend/internal/apperr"
	"github.com/wa-agent/backend/internal/clock"
	"github.com/wa-agent/backend/internal/models"
)

// StageHandler processes one claimed job for a pipeline stage.
type StageHandler interface {
	Handle(ctx context.Context, job *models.Job) (result interface{}, err error)
	// OnFinalFailure runs once a job exhausts its retries and moves to
	// failed, so a stage can apply any domain-specific terminal effect
	// (e.g. marking a message failed).
	OnFinalFailure(ctx context.Context, job *models.Job) error
}

var stagesInOrder = []string{models.StageRetrieve, models.StageInfer, models.StageReply}

// Pool fans a bounded number of pollers out over each of the three
// staged queues, in the teacher's goroutine-per-queue shape but using
// golang.org/x/sync/errgroup in place of raw WaitGroup+atomic polling
// (adopted from cklxx-elephant.ai's go.mod, per SPEC_FULL.md §5).
type Pool struct {
	jobs            JobStore
	autoReply       AutoReplyChecker
	handlers        map[string]StageHandler
	clock           clock.Clock
	pollersPerStage int
	pollInterval    time.Duration
	onJobError      func(job *models.Job, err error)
}

// NewPool constructs a worker Pool. pollersPerStage bounds per-process
// concurrency per stage; onJobError may be nil.
func NewPool(jobs JobStore, autoReply AutoReplyChecker, retriever, inferrer, replier StageHandler, clk clock.Clock, pollersPerStage int, pollInterval time.Duration, onJobError func(job *models.Job, err error)) *Pool {
	if pollersPerStage <= 0 {
		pollersPerStage = 1
	}
	return &Pool{
		jobs:      jobs,
		autoReply: autoReply,
		handlers: map[string]StageHandler{
			models.StageRetrieve: retriever,
			models.StageInfer:    inferrer,
			models.StageReply:    replier,
		},
		clock:           clk,
		pollersPerStage: pollersPerStage,
		pollInterval:    pollInterval,
		onJobError:      onJobError,
	}
}

// Run blocks, fanning pollers out across all three stages, until ctx is
// canceled. Jobs of different chats are not serialized against each
// other; in this process at most pollersPerStage jobs per stage run at
// once. Per-chat ordering is
// enforced upstream by the Chat Session Coordinator, not here (spec
// section 5).
func (p *Pool) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	for _, stage := range stagesInOrder {
		stage := stage
		for i := 0; i < p.pollersPerStage; i++ {
			g.Go(func() error {
				p.pollLoop(ctx, stage)
				return nil
			})
		}
	}
	return g.Wait()
}

func (p *Pool) pollLoop(ctx context.Context, stage string) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		job, err := p.jobs.ClaimNext(ctx, stage)
		if err != nil {
			p.reportError(nil, err)
			p.sleep(ctx, p.pollInterval)
			continue
		}
		if job == nil {
			p.sleep(ctx, p.pollInterval)
			continue
		}

		p.process(ctx, stage, job)
	}
}

// process runs the suppression gate (spec section 4.E) then dispatches
// to the stage's handler, applying backoff/terminal-failure policy on
// error.
func (p *Pool) process(ctx context.Context, stage string, job *models.Job) {
	handler := p.handlers[stage]

	shouldReply, err := p.autoReply.ShouldAutoReply(ctx, job.ChatKey)
	if err != nil {
		p.reportError(job, err)
		if retryErr := p.jobs.Retry(ctx, job.ID, nil, err, backoffFor(job.Attempt+1)); retryErr != nil {
			p.reportError(job, retryErr)
		}
		return
	}
	if !shouldReply {
		if err := p.jobs.Suppress(ctx, job.ID); err != nil {
			p.reportError(job, err)
		}
		return
	}

	result, err := handler.Handle(ctx, job)
	if err == nil {
		if err := p.jobs.Complete(ctx, job.ID, result); err != nil {
			p.reportError(job, err)
		}
		return
	}

	p.reportError(job, err)

	class := apperr.ClassOf(err)
	attempt := job.Attempt + 1
	if !class.Retryable() || attempt >= maxAttempts {
		if failErr := p.jobs.Fail(ctx, job.ID, result, err); failErr != nil {
			p.reportError(job, failErr)
		}
		if onFailErr := handler.OnFinalFailure(ctx, job); onFailErr != nil {
			p.reportError(job, onFailErr)
		}
		return
	}

	delay := backoffFor(attempt)
	if retryAfter := apperr.RetryAfterOf(err); retryAfter > 0 {
		delay = time.Duration(retryAfter) * time.Second
	}
	if err := p.jobs.Retry(ctx, job.ID, result, err, delay); err != nil {
		p.reportError(job, err)
	}
}

func (p *Pool) sleep(ctx context.Context, d time.Duration) {
	select {
	case <-ctx.Done():
	case <-p.clock.After(d):
	}
}

func (p *Pool) reportError(job *models.Job, err error) {
	if p.onJobError != nil {
		p.onJobError(job, err)
	}
}

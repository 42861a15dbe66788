// Package metrics wires structured logging and Prometheus collectors for
// the events that don't otherwise flow through internal/repository's
// per-table instrumentation: coordinator flush failures, pipeline job
// failures, and webhook-layer rejections.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"

	"github.com/wa-agent/backend/internal/models"
)

var (
	flushErrors = promauto.NewCounter(prometheus.CounterOpts{
		Name: "coordinator_flush_errors_total",
		Help: "Merge-window flushes that failed to enqueue a retrieve job.",
	})

	jobFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pipeline_job_failures_total",
		Help: "Pipeline jobs that reached a terminal failed state, by stage.",
	}, []string{"stage"})

	webhookRejections = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "webhook_rejections_total",
		Help: "Inbound webhook requests rejected before reaching the coordinator, by reason.",
	}, []string{"reason"})
)

// Recorder bundles the zap logger with the counters above so the
// coordinator and pipeline can be constructed with a single callback
// collaborator instead of wiring each metric by hand.
type Recorder struct {
	log *zap.Logger
}

// NewRecorder constructs a Recorder around an already-built zap logger.
func NewRecorder(log *zap.Logger) *Recorder {
	return &Recorder{log: log}
}

// OnFlushError is passed to coordinator.New as onFlushError.
func (r *Recorder) OnFlushError(chatKey string, err error) {
	flushErrors.Inc()
	r.log.Error("merge window flush failed", zap.String("chat_key", chatKey), zap.Error(err))
}

// OnJobError is passed to pipeline.NewPool as onJobError.
func (r *Recorder) OnJobError(job *models.Job, err error) {
	jobFailures.WithLabelValues(job.Stage).Inc()
	r.log.Error("pipeline job failed",
		zap.String("job_id", job.ID),
		zap.String("chat_key", job.ChatKey),
		zap.Int("turn", job.Turn),
		zap.String("stage", job.Stage),
		zap.Int("attempt", job.Attempt),
		zap.Error(err),
	)
}

// WebhookRejected records a request the webhook handler rejected before
// routing it to the coordinator (bad signature, replay, clock skew).
func (r *Recorder) WebhookRejected(reason string) {
	webhookRejections.WithLabelValues(reason).Inc()
}

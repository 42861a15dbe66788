package repository

import (
	"context"
	"database/sql"

	"github.com/wa-agent/backend/internal/intervention"
)

// AuditRepository persists punctuation-control pause/resume outcomes (spec
// section 4.C) and implements coordinator.AuditLog.
type AuditRepository struct {
	db *sql.DB
}

// NewAuditRepository constructs an AuditRepository.
func NewAuditRepository(db *sql.DB) *AuditRepository {
	return &AuditRepository{db: db}
}

func outcomeLabel(o intervention.Outcome) string {
	switch o {
	case intervention.Paused:
		return "paused"
	case intervention.Resumed:
		return "resumed"
	default:
		return "no_change"
	}
}

// RecordInterventionAudit appends an audit row. A NoChange outcome is still
// recorded so the audit trail reflects every punctuation-control message
// the controller inspected, not only the ones that flipped state.
func (r *AuditRepository) RecordInterventionAudit(ctx context.Context, chatKey string, outcome intervention.Outcome) error {
	defer timer("intervention_audit", "insert")()
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO intervention_audit (chat_key, outcome) VALUES ($1, $2)`,
		chatKey, outcomeLabel(outcome),
	)
	observe("intervention_audit", "insert", err)
	return wrap("record intervention audit", err)
}

package repository

import (
	"context"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/require"

	"github.com/wa-agent/backend/internal/intervention"
)

func TestAuditRepository_RecordInterventionAudit(t *testing.T) {
	cases := []struct {
		outcome intervention.Outcome
		label   string
	}{
		{intervention.Paused, "paused"},
		{intervention.Resumed, "resumed"},
		{intervention.NoChange, "no_change"},
	}

	for _, tc := range cases {
		db, mock, err := sqlmock.New()
		require.NoError(t, err)

		mock.ExpectExec("INSERT INTO intervention_audit").
			WithArgs("chat-1", tc.label).
			WillReturnResult(sqlmock.NewResult(1, 1))

		repo := NewAuditRepository(db)
		require.NoError(t, repo.RecordInterventionAudit(context.Background(), "chat-1", tc.outcome))
		require.NoError(t, mock.ExpectationsWereMet())
		db.Close()
	}
}

package store

import (
	"context"
	"database/sql"
	"fmt"

	"gradegate/internal/signature"
)

// PostgresStore implements Store on the signature_log table.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a PostgreSQL-backed signature log.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Record(ctx context.Context, rec signature.LogRecord) error {
	query := `
		INSERT INTO signature_log (
			id, submission_id, signature, is_valid,
			remote_ip, user_agent, agent_kind, created_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`
	_, err := s.db.ExecContext(ctx, query,
		rec.ID,
		rec.SubmissionID,
		rec.Signature,
		rec.IsValid,
		rec.RemoteIP,
		rec.UserAgent,
		rec.AgentKind,
		rec.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert signature log record: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListBySubmission(ctx context.Context, submissionID int64) ([]signature.LogRecord, error) {
	query := `
		SELECT id, submission_id, signature, is_valid,
		       remote_ip, user_agent, agent_kind, created_at
		FROM signature_log
		WHERE submission_id = $1
		ORDER BY created_at ASC
	`
	rows, err := s.db.QueryContext(ctx, query, submissionID)
	if err != nil {
		return nil, fmt.Errorf("query signature log: %w", err)
	}
	defer rows.Close()

	var out []signature.LogRecord
	for rows.Next() {
		var rec signature.LogRecord
		if err := rows.Scan(
			&rec.ID,
			&rec.SubmissionID,
			&rec.Signature,
			&rec.IsValid,
			&rec.RemoteIP,
			&rec.UserAgent,
			&rec.AgentKind,
			&rec.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan signature log record: %w", err)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

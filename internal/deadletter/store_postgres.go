package deadletter

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
)

// PostgresStore implements Store on the failed_webhooks table.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a PostgreSQL-backed failure sink.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Record(ctx context.Context, record FailedWebhook) error {
	query := `
		INSERT INTO failed_webhooks (
			id, submission_id, payload, error, is_transient,
			status, retry_count, last_retry_at, created_at, updated_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, NOW(), NOW())
	`
	_, err := s.db.ExecContext(ctx, query,
		record.ID,
		record.SubmissionID,
		[]byte(record.Payload),
		record.Error,
		record.IsTransient,
		record.Status,
		record.RetryCount,
		record.LastRetryAt,
	)
	if err != nil {
		return fmt.Errorf("insert failed webhook: %w", err)
	}
	return nil
}

func (s *PostgresStore) Get(ctx context.Context, id uuid.UUID) (*FailedWebhook, error) {
	query := selectColumns + ` WHERE id = $1`
	record, err := scanOne(s.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get failed webhook: %w", err)
	}
	return record, nil
}

func (s *PostgresStore) List(ctx context.Context, status Status, limit int) ([]FailedWebhook, error) {
	query := selectColumns
	args := []any{}
	if status != "" {
		query += ` WHERE status = $1`
		args = append(args, string(status))
	}
	query += ` ORDER BY created_at DESC`
	if limit > 0 {
		query += fmt.Sprintf(` LIMIT %d`, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list failed webhooks: %w", err)
	}
	defer rows.Close()

	var out []FailedWebhook
	for rows.Next() {
		record, err := scanOne(rows)
		if err != nil {
			return nil, fmt.Errorf("scan failed webhook: %w", err)
		}
		out = append(out, *record)
	}
	return out, rows.Err()
}

// Claim relies on the status guard in the WHERE clause: the UPDATE matches
// only while the row still carries the expected status, so exactly one
// concurrent caller observes RowsAffected == 1.
func (s *PostgresStore) Claim(ctx context.Context, id uuid.UUID, from Status) (bool, error) {
	if from == StatusProcessing {
		return false, nil
	}
	query := `
		UPDATE failed_webhooks
		SET status = $1, updated_at = NOW()
		WHERE id = $2 AND status = $3
	`
	res, err := s.db.ExecContext(ctx, query, StatusProcessing, id, from)
	if err != nil {
		return false, fmt.Errorf("claim failed webhook: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("claim failed webhook: %w", err)
	}
	return affected == 1, nil
}

func (s *PostgresStore) IncrementRetry(ctx context.Context, id uuid.UUID, cause string, transient bool) (*FailedWebhook, error) {
	query := `
		UPDATE failed_webhooks
		SET retry_count  = LEAST(retry_count + 1, $1),
		    error        = $2,
		    is_transient = $3,
		    status       = CASE
		        WHEN NOT $3 OR retry_count + 1 >= $1 THEN $4
		        ELSE $5
		    END,
		    last_retry_at = NOW(),
		    updated_at    = NOW()
		WHERE id = $6
		RETURNING id, submission_id, payload, error, is_transient,
		          status, retry_count, last_retry_at, created_at, updated_at
	`
	record, err := scanOne(s.db.QueryRowContext(ctx, query,
		MaxRetries, cause, transient, StatusFailed, StatusPending, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("increment retry: %w", err)
	}
	return record, nil
}

func (s *PostgresStore) MarkSuccess(ctx context.Context, id uuid.UUID) error {
	query := `
		UPDATE failed_webhooks
		SET status = $1, updated_at = NOW()
		WHERE id = $2
	`
	res, err := s.db.ExecContext(ctx, query, StatusSuccess, id)
	if err != nil {
		return fmt.Errorf("mark success: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("mark success: %w", err)
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

const selectColumns = `
	SELECT id, submission_id, payload, error, is_transient,
	       status, retry_count, last_retry_at, created_at, updated_at
	FROM failed_webhooks
`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanOne(row rowScanner) (*FailedWebhook, error) {
	var (
		record  FailedWebhook
		status  string
		payload []byte
	)
	if err := row.Scan(
		&record.ID,
		&record.SubmissionID,
		&payload,
		&record.Error,
		&record.IsTransient,
		&status,
		&record.RetryCount,
		&record.LastRetryAt,
		&record.CreatedAt,
		&record.UpdatedAt,
	); err != nil {
		return nil, err
	}
	record.Status = Status(status)
	record.Payload = payload
	return &record, nil
}

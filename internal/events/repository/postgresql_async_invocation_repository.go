// Package repository provides data persistence implementations for async invocation records.
package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/allisson/eventrelay/internal/database"
	apperrors "github.com/allisson/eventrelay/internal/errors"
	"github.com/allisson/eventrelay/internal/events/domain"
)

const asyncInvocationColumns = `id, event_name, listener_name, payload, status, attempts, last_error, created_at, updated_at`

// PostgreSQLAsyncInvocationRepository implements AsyncInvocation persistence for PostgreSQL.
// Uses native UUID types with transaction support via database.GetTx().
type PostgreSQLAsyncInvocationRepository struct {
	db *sql.DB
}

// Create inserts a new record.
func (p *PostgreSQLAsyncInvocationRepository) Create(
	ctx context.Context,
	invocation *domain.AsyncInvocation,
) error {
	querier := database.GetTx(ctx, p.db)

	query := `INSERT INTO async_invocations (` + asyncInvocationColumns + `) 
			  VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`

	_, err := querier.ExecContext(
		ctx,
		query,
		invocation.ID,
		invocation.EventName,
		invocation.ListenerName,
		invocation.Payload,
		string(invocation.Status),
		invocation.Attempts,
		invocation.LastError,
		invocation.CreatedAt,
		invocation.UpdatedAt,
	)
	if err != nil {
		return apperrors.Wrap(err, "failed to create async invocation")
	}

	return nil
}

// Get retrieves a record by ID. Returns ErrAsyncInvocationNotFound if it does not exist.
func (p *PostgreSQLAsyncInvocationRepository) Get(
	ctx context.Context,
	id uuid.UUID,
) (*domain.AsyncInvocation, error) {
	querier := database.GetTx(ctx, p.db)

	query := `SELECT ` + asyncInvocationColumns + ` FROM async_invocations WHERE id = $1`

	invocation, err := scanPostgreSQLAsyncInvocation(querier.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrAsyncInvocationNotFound
		}
		return nil, apperrors.Wrap(err, "failed to get async invocation")
	}

	return invocation, nil
}

// Delete removes a record. Deleting a missing record is not an error.
func (p *PostgreSQLAsyncInvocationRepository) Delete(ctx context.Context, id uuid.UUID) error {
	querier := database.GetTx(ctx, p.db)

	if _, err := querier.ExecContext(ctx, `DELETE FROM async_invocations WHERE id = $1`, id); err != nil {
		return apperrors.Wrap(err, "failed to delete async invocation")
	}

	return nil
}

// MarkFailed flags a record as failed, increments its attempt counter and stores the
// last error. Returns ErrAsyncInvocationNotFound if the record is gone.
func (p *PostgreSQLAsyncInvocationRepository) MarkFailed(
	ctx context.Context,
	id uuid.UUID,
	lastError string,
	updatedAt time.Time,
) error {
	querier := database.GetTx(ctx, p.db)

	query := `UPDATE async_invocations 
			  SET status = $1, attempts = attempts + 1, last_error = $2, updated_at = $3 
			  WHERE id = $4`

	result, err := querier.ExecContext(
		ctx,
		query,
		string(domain.AsyncInvocationStatusFailed),
		lastError,
		updatedAt,
		id,
	)
	if err != nil {
		return apperrors.Wrap(err, "failed to mark async invocation as failed")
	}

	return requireAffected(result)
}

// ListOutstanding retrieves records oldest first with pagination. Returns an empty slice
// if none are found.
func (p *PostgreSQLAsyncInvocationRepository) ListOutstanding(
	ctx context.Context,
	offset, limit int,
) ([]*domain.AsyncInvocation, error) {
	querier := database.GetTx(ctx, p.db)

	query := `SELECT ` + asyncInvocationColumns + ` FROM async_invocations 
			  ORDER BY created_at ASC, id ASC 
			  LIMIT $1 OFFSET $2`

	rows, err := querier.QueryContext(ctx, query, limit, offset)
	if err != nil {
		return nil, apperrors.Wrap(err, "failed to list async invocations")
	}

	return collectPostgreSQLAsyncInvocations(rows)
}

// ListRetryable retrieves up to limit records with fewer than maxAttempts attempts, least
// recently attempted first. A maxAttempts of zero disables the filter.
func (p *PostgreSQLAsyncInvocationRepository) ListRetryable(
	ctx context.Context,
	maxAttempts, limit int,
) ([]*domain.AsyncInvocation, error) {
	querier := database.GetTx(ctx, p.db)

	query := `SELECT ` + asyncInvocationColumns + ` FROM async_invocations 
			  ORDER BY updated_at ASC, id ASC 
			  LIMIT $1`
	args := []any{limit}
	if maxAttempts > 0 {
		query = `SELECT ` + asyncInvocationColumns + ` FROM async_invocations 
				 WHERE attempts < $1 
				 ORDER BY updated_at ASC, id ASC 
				 LIMIT $2`
		args = []any{maxAttempts, limit}
	}

	rows, err := querier.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, apperrors.Wrap(err, "failed to list retryable async invocations")
	}

	return collectPostgreSQLAsyncInvocations(rows)
}

// CountExhausted counts records that reached maxAttempts attempts.
func (p *PostgreSQLAsyncInvocationRepository) CountExhausted(ctx context.Context, maxAttempts int) (int64, error) {
	querier := database.GetTx(ctx, p.db)

	var count int64
	err := querier.QueryRowContext(
		ctx,
		`SELECT COUNT(*) FROM async_invocations WHERE attempts >= $1`,
		maxAttempts,
	).Scan(&count)
	if err != nil {
		return 0, apperrors.Wrap(err, "failed to count exhausted async invocations")
	}

	return count, nil
}

// ListOlderThan retrieves up to limit records created before olderThan, oldest first.
func (p *PostgreSQLAsyncInvocationRepository) ListOlderThan(
	ctx context.Context,
	olderThan time.Time,
	limit int,
) ([]*domain.AsyncInvocation, error) {
	querier := database.GetTx(ctx, p.db)

	query := `SELECT ` + asyncInvocationColumns + ` FROM async_invocations 
			  WHERE created_at < $1 
			  ORDER BY created_at ASC, id ASC 
			  LIMIT $2`

	rows, err := querier.QueryContext(ctx, query, olderThan, limit)
	if err != nil {
		return nil, apperrors.Wrap(err, "failed to list async invocations older than threshold")
	}

	return collectPostgreSQLAsyncInvocations(rows)
}

// CountOlderThan counts records created before olderThan.
func (p *PostgreSQLAsyncInvocationRepository) CountOlderThan(
	ctx context.Context,
	olderThan time.Time,
) (int64, error) {
	querier := database.GetTx(ctx, p.db)

	var count int64
	err := querier.QueryRowContext(
		ctx,
		`SELECT COUNT(*) FROM async_invocations WHERE created_at < $1`,
		olderThan,
	).Scan(&count)
	if err != nil {
		return 0, apperrors.Wrap(err, "failed to count async invocations")
	}

	return count, nil
}

func collectPostgreSQLAsyncInvocations(rows *sql.Rows) ([]*domain.AsyncInvocation, error) {
	defer func() {
		_ = rows.Close()
	}()

	// Initialize empty slice to avoid returning nil for empty results
	invocations := make([]*domain.AsyncInvocation, 0)
	for rows.Next() {
		invocation, err := scanPostgreSQLAsyncInvocation(rows)
		if err != nil {
			return nil, apperrors.Wrap(err, "failed to scan async invocation")
		}
		invocations = append(invocations, invocation)
	}

	if err := rows.Err(); err != nil {
		return nil, apperrors.Wrap(err, "failed to iterate async invocations")
	}

	return invocations, nil
}

func scanPostgreSQLAsyncInvocation(row scanner) (*domain.AsyncInvocation, error) {
	var invocation domain.AsyncInvocation
	var status string

	err := row.Scan(
		&invocation.ID,
		&invocation.EventName,
		&invocation.ListenerName,
		&invocation.Payload,
		&status,
		&invocation.Attempts,
		&invocation.LastError,
		&invocation.CreatedAt,
		&invocation.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	invocation.Status = domain.AsyncInvocationStatus(status)
	invocation.CreatedAt = invocation.CreatedAt.UTC()
	invocation.UpdatedAt = invocation.UpdatedAt.UTC()

	return &invocation, nil
}

// NewPostgreSQLAsyncInvocationRepository creates a new PostgreSQL AsyncInvocation repository.
func NewPostgreSQLAsyncInvocationRepository(db *sql.DB) *PostgreSQLAsyncInvocationRepository {
	return &PostgreSQLAsyncInvocationRepository{db: db}
}

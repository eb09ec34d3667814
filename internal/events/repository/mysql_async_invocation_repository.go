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

// MySQLAsyncInvocationRepository implements AsyncInvocation persistence for MySQL.
// Uses BINARY(16) for UUID storage with transaction support via database.GetTx().
// The connection string must enable parseTime.
type MySQLAsyncInvocationRepository struct {
	db *sql.DB
}

// Create inserts a new record using BINARY(16) for the UUID.
func (m *MySQLAsyncInvocationRepository) Create(
	ctx context.Context,
	invocation *domain.AsyncInvocation,
) error {
	querier := database.GetTx(ctx, m.db)

	id, err := invocation.ID.MarshalBinary()
	if err != nil {
		return apperrors.Wrap(err, "failed to marshal async invocation id")
	}

	query := `INSERT INTO async_invocations (` + asyncInvocationColumns + `) 
			  VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`

	_, err = querier.ExecContext(
		ctx,
		query,
		id,
		invocation.EventName,
		invocation.ListenerName,
		invocation.Payload,
		string(invocation.Status),
		invocation.Attempts,
		invocation.LastError,
		invocation.CreatedAt.UTC(),
		invocation.UpdatedAt.UTC(),
	)
	if err != nil {
		return apperrors.Wrap(err, "failed to create async invocation")
	}

	return nil
}

// Get retrieves a record by ID. Returns ErrAsyncInvocationNotFound if it does not exist.
func (m *MySQLAsyncInvocationRepository) Get(
	ctx context.Context,
	id uuid.UUID,
) (*domain.AsyncInvocation, error) {
	querier := database.GetTx(ctx, m.db)

	idBytes, err := id.MarshalBinary()
	if err != nil {
		return nil, apperrors.Wrap(err, "failed to marshal async invocation id")
	}

	query := `SELECT ` + asyncInvocationColumns + ` FROM async_invocations WHERE id = ?`

	invocation, err := scanMySQLAsyncInvocation(querier.QueryRowContext(ctx, query, idBytes))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrAsyncInvocationNotFound
		}
		return nil, apperrors.Wrap(err, "failed to get async invocation")
	}

	return invocation, nil
}

// Delete removes a record. Deleting a missing record is not an error.
func (m *MySQLAsyncInvocationRepository) Delete(ctx context.Context, id uuid.UUID) error {
	querier := database.GetTx(ctx, m.db)

	idBytes, err := id.MarshalBinary()
	if err != nil {
		return apperrors.Wrap(err, "failed to marshal async invocation id")
	}

	if _, err := querier.ExecContext(ctx, `DELETE FROM async_invocations WHERE id = ?`, idBytes); err != nil {
		return apperrors.Wrap(err, "failed to delete async invocation")
	}

	return nil
}

// MarkFailed flags a record as failed, increments its attempt counter and stores the
// last error. Returns ErrAsyncInvocationNotFound if the record is gone.
func (m *MySQLAsyncInvocationRepository) MarkFailed(
	ctx context.Context,
	id uuid.UUID,
	lastError string,
	updatedAt time.Time,
) error {
	querier := database.GetTx(ctx, m.db)

	idBytes, err := id.MarshalBinary()
	if err != nil {
		return apperrors.Wrap(err, "failed to marshal async invocation id")
	}

	query := `UPDATE async_invocations 
			  SET status = ?, attempts = attempts + 1, last_error = ?, updated_at = ? 
			  WHERE id = ?`

	result, err := querier.ExecContext(
		ctx,
		query,
		string(domain.AsyncInvocationStatusFailed),
		lastError,
		updatedAt.UTC(),
		idBytes,
	)
	if err != nil {
		return apperrors.Wrap(err, "failed to mark async invocation as failed")
	}

	return requireAffected(result)
}

// ListOutstanding retrieves records oldest first with pagination. Returns an empty slice
// if none are found.
func (m *MySQLAsyncInvocationRepository) ListOutstanding(
	ctx context.Context,
	offset, limit int,
) ([]*domain.AsyncInvocation, error) {
	querier := database.GetTx(ctx, m.db)

	query := `SELECT ` + asyncInvocationColumns + ` FROM async_invocations 
			  ORDER BY created_at ASC, id ASC 
			  LIMIT ? OFFSET ?`

	rows, err := querier.QueryContext(ctx, query, limit, offset)
	if err != nil {
		return nil, apperrors.Wrap(err, "failed to list async invocations")
	}

	return collectMySQLAsyncInvocations(rows)
}

// ListRetryable retrieves up to limit records with fewer than maxAttempts attempts, least
// recently attempted first. A maxAttempts of zero disables the filter.
func (m *MySQLAsyncInvocationRepository) ListRetryable(
	ctx context.Context,
	maxAttempts, limit int,
) ([]*domain.AsyncInvocation, error) {
	querier := database.GetTx(ctx, m.db)

	query := `SELECT ` + asyncInvocationColumns + ` FROM async_invocations 
			  ORDER BY updated_at ASC, id ASC 
			  LIMIT ?`
	args := []any{limit}
	if maxAttempts > 0 {
		query = `SELECT ` + asyncInvocationColumns + ` FROM async_invocations 
				 WHERE attempts < ? 
				 ORDER BY updated_at ASC, id ASC 
				 LIMIT ?`
		args = []any{maxAttempts, limit}
	}

	rows, err := querier.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, apperrors.Wrap(err, "failed to list retryable async invocations")
	}

	return collectMySQLAsyncInvocations(rows)
}

// CountExhausted counts records that reached maxAttempts attempts.
func (m *MySQLAsyncInvocationRepository) CountExhausted(ctx context.Context, maxAttempts int) (int64, error) {
	querier := database.GetTx(ctx, m.db)

	var count int64
	err := querier.QueryRowContext(
		ctx,
		`SELECT COUNT(*) FROM async_invocations WHERE attempts >= ?`,
		maxAttempts,
	).Scan(&count)
	if err != nil {
		return 0, apperrors.Wrap(err, "failed to count exhausted async invocations")
	}

	return count, nil
}

// ListOlderThan retrieves up to limit records created before olderThan, oldest first.
func (m *MySQLAsyncInvocationRepository) ListOlderThan(
	ctx context.Context,
	olderThan time.Time,
	limit int,
) ([]*domain.AsyncInvocation, error) {
	querier := database.GetTx(ctx, m.db)

	query := `SELECT ` + asyncInvocationColumns + ` FROM async_invocations 
			  WHERE created_at < ? 
			  ORDER BY created_at ASC, id ASC 
			  LIMIT ?`

	rows, err := querier.QueryContext(ctx, query, olderThan.UTC(), limit)
	if err != nil {
		return nil, apperrors.Wrap(err, "failed to list async invocations older than threshold")
	}

	return collectMySQLAsyncInvocations(rows)
}

// CountOlderThan counts records created before olderThan.
func (m *MySQLAsyncInvocationRepository) CountOlderThan(
	ctx context.Context,
	olderThan time.Time,
) (int64, error) {
	querier := database.GetTx(ctx, m.db)

	var count int64
	err := querier.QueryRowContext(
		ctx,
		`SELECT COUNT(*) FROM async_invocations WHERE created_at < ?`,
		olderThan.UTC(),
	).Scan(&count)
	if err != nil {
		return 0, apperrors.Wrap(err, "failed to count async invocations")
	}

	return count, nil
}

func collectMySQLAsyncInvocations(rows *sql.Rows) ([]*domain.AsyncInvocation, error) {
	defer func() {
		_ = rows.Close()
	}()

	invocations := make([]*domain.AsyncInvocation, 0)
	for rows.Next() {
		invocation, err := scanMySQLAsyncInvocation(rows)
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

func scanMySQLAsyncInvocation(row scanner) (*domain.AsyncInvocation, error) {
	var invocation domain.AsyncInvocation
	var idBytes []byte
	var status string

	err := row.Scan(
		&idBytes,
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

	if err := invocation.ID.UnmarshalBinary(idBytes); err != nil {
		return nil, apperrors.Wrap(err, "failed to unmarshal async invocation id")
	}

	invocation.Status = domain.AsyncInvocationStatus(status)
	invocation.CreatedAt = invocation.CreatedAt.UTC()
	invocation.UpdatedAt = invocation.UpdatedAt.UTC()

	return &invocation, nil
}

// NewMySQLAsyncInvocationRepository creates a new MySQL AsyncInvocation repository.
func NewMySQLAsyncInvocationRepository(db *sql.DB) *MySQLAsyncInvocationRepository {
	return &MySQLAsyncInvocationRepository{db: db}
}

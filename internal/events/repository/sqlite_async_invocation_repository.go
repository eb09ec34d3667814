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

// sqliteTimeLayout is fixed width so that text comparison orders timestamps correctly.
const sqliteTimeLayout = "2006-01-02T15:04:05.000000000Z"

// SQLiteAsyncInvocationRepository implements AsyncInvocation persistence for SQLite.
// UUIDs are stored as TEXT and timestamps as fixed width UTC TEXT.
type SQLiteAsyncInvocationRepository struct {
	db *sql.DB
}

// Create inserts a new record.
func (s *SQLiteAsyncInvocationRepository) Create(
	ctx context.Context,
	invocation *domain.AsyncInvocation,
) error {
	querier := database.GetTx(ctx, s.db)

	query := `INSERT INTO async_invocations (` + asyncInvocationColumns + `) 
			  VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`

	_, err := querier.ExecContext(
		ctx,
		query,
		invocation.ID.String(),
		invocation.EventName,
		invocation.ListenerName,
		invocation.Payload,
		string(invocation.Status),
		invocation.Attempts,
		invocation.LastError,
		formatSQLiteTime(invocation.CreatedAt),
		formatSQLiteTime(invocation.UpdatedAt),
	)
	if err != nil {
		return apperrors.Wrap(err, "failed to create async invocation")
	}

	return nil
}

// Get retrieves a record by ID. Returns ErrAsyncInvocationNotFound if it does not exist.
func (s *SQLiteAsyncInvocationRepository) Get(
	ctx context.Context,
	id uuid.UUID,
) (*domain.AsyncInvocation, error) {
	querier := database.GetTx(ctx, s.db)

	query := `SELECT ` + asyncInvocationColumns + ` FROM async_invocations WHERE id = ?`

	invocation, err := scanSQLiteAsyncInvocation(querier.QueryRowContext(ctx, query, id.String()))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrAsyncInvocationNotFound
		}
		return nil, apperrors.Wrap(err, "failed to get async invocation")
	}

	return invocation, nil
}

// Delete removes a record. Deleting a missing record is not an error.
func (s *SQLiteAsyncInvocationRepository) Delete(ctx context.Context, id uuid.UUID) error {
	querier := database.GetTx(ctx, s.db)

	if _, err := querier.ExecContext(ctx, `DELETE FROM async_invocations WHERE id = ?`, id.String()); err != nil {
		return apperrors.Wrap(err, "failed to delete async invocation")
	}

	return nil
}

// MarkFailed flags a record as failed, increments its attempt counter and stores the
// last error. Returns ErrAsyncInvocationNotFound if the record is gone.
func (s *SQLiteAsyncInvocationRepository) MarkFailed(
	ctx context.Context,
	id uuid.UUID,
	lastError string,
	updatedAt time.Time,
) error {
	querier := database.GetTx(ctx, s.db)

	query := `UPDATE async_invocations 
			  SET status = ?, attempts = attempts + 1, last_error = ?, updated_at = ? 
			  WHERE id = ?`

	result, err := querier.ExecContext(
		ctx,
		query,
		string(domain.AsyncInvocationStatusFailed),
		lastError,
		formatSQLiteTime(updatedAt),
		id.String(),
	)
	if err != nil {
		return apperrors.Wrap(err, "failed to mark async invocation as failed")
	}

	return requireAffected(result)
}

// ListOutstanding retrieves records oldest first with pagination. Returns an empty slice
// if none are found.
func (s *SQLiteAsyncInvocationRepository) ListOutstanding(
	ctx context.Context,
	offset, limit int,
) ([]*domain.AsyncInvocation, error) {
	querier := database.GetTx(ctx, s.db)

	query := `SELECT ` + asyncInvocationColumns + ` FROM async_invocations 
			  ORDER BY created_at ASC, id ASC 
			  LIMIT ? OFFSET ?`

	rows, err := querier.QueryContext(ctx, query, limit, offset)
	if err != nil {
		return nil, apperrors.Wrap(err, "failed to list async invocations")
	}

	return collectSQLiteAsyncInvocations(rows)
}

// ListRetryable retrieves up to limit records with fewer than maxAttempts attempts, least
// recently attempted first. A maxAttempts of zero disables the filter.
func (s *SQLiteAsyncInvocationRepository) ListRetryable(
	ctx context.Context,
	maxAttempts, limit int,
) ([]*domain.AsyncInvocation, error) {
	querier := database.GetTx(ctx, s.db)

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

	return collectSQLiteAsyncInvocations(rows)
}

// CountExhausted counts records that reached maxAttempts attempts.
func (s *SQLiteAsyncInvocationRepository) CountExhausted(ctx context.Context, maxAttempts int) (int64, error) {
	querier := database.GetTx(ctx, s.db)

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
func (s *SQLiteAsyncInvocationRepository) ListOlderThan(
	ctx context.Context,
	olderThan time.Time,
	limit int,
) ([]*domain.AsyncInvocation, error) {
	querier := database.GetTx(ctx, s.db)

	query := `SELECT ` + asyncInvocationColumns + ` FROM async_invocations 
			  WHERE created_at < ? 
			  ORDER BY created_at ASC, id ASC 
			  LIMIT ?`

	rows, err := querier.QueryContext(ctx, query, formatSQLiteTime(olderThan), limit)
	if err != nil {
		return nil, apperrors.Wrap(err, "failed to list async invocations older than threshold")
	}

	return collectSQLiteAsyncInvocations(rows)
}

// CountOlderThan counts records created before olderThan.
func (s *SQLiteAsyncInvocationRepository) CountOlderThan(
	ctx context.Context,
	olderThan time.Time,
) (int64, error) {
	querier := database.GetTx(ctx, s.db)

	var count int64
	err := querier.QueryRowContext(
		ctx,
		`SELECT COUNT(*) FROM async_invocations WHERE created_at < ?`,
		formatSQLiteTime(olderThan),
	).Scan(&count)
	if err != nil {
		return 0, apperrors.Wrap(err, "failed to count async invocations")
	}

	return count, nil
}

func collectSQLiteAsyncInvocations(rows *sql.Rows) ([]*domain.AsyncInvocation, error) {
	defer func() {
		_ = rows.Close()
	}()

	invocations := make([]*domain.AsyncInvocation, 0)
	for rows.Next() {
		invocation, err := scanSQLiteAsyncInvocation(rows)
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

func scanSQLiteAsyncInvocation(row scanner) (*domain.AsyncInvocation, error) {
	var invocation domain.AsyncInvocation
	var id, status, createdAt, updatedAt string

	err := row.Scan(
		&id,
		&invocation.EventName,
		&invocation.ListenerName,
		&invocation.Payload,
		&status,
		&invocation.Attempts,
		&invocation.LastError,
		&createdAt,
		&updatedAt,
	)
	if err != nil {
		return nil, err
	}

	if invocation.ID, err = uuid.Parse(id); err != nil {
		return nil, apperrors.Wrap(err, "failed to parse async invocation id")
	}
	if invocation.CreatedAt, err = time.Parse(sqliteTimeLayout, createdAt); err != nil {
		return nil, apperrors.Wrap(err, "failed to parse async invocation created_at")
	}
	if invocation.UpdatedAt, err = time.Parse(sqliteTimeLayout, updatedAt); err != nil {
		return nil, apperrors.Wrap(err, "failed to parse async invocation updated_at")
	}

	invocation.Status = domain.AsyncInvocationStatus(status)

	return &invocation, nil
}

func formatSQLiteTime(t time.Time) string {
	return t.UTC().Format(sqliteTimeLayout)
}

// NewSQLiteAsyncInvocationRepository creates a new SQLite AsyncInvocation repository.
func NewSQLiteAsyncInvocationRepository(db *sql.DB) *SQLiteAsyncInvocationRepository {
	return &SQLiteAsyncInvocationRepository{db: db}
}

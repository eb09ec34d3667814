package repository

import (
	"database/sql"

	apperrors "github.com/allisson/eventrelay/internal/errors"
	"github.com/allisson/eventrelay/internal/events/domain"
)

// scanner is satisfied by *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

// requireAffected maps an update that touched no rows to ErrAsyncInvocationNotFound.
func requireAffected(result sql.Result) error {
	affected, err := result.RowsAffected()
	if err != nil {
		return apperrors.Wrap(err, "failed to read affected rows")
	}
	if affected == 0 {
		return domain.ErrAsyncInvocationNotFound
	}
	return nil
}

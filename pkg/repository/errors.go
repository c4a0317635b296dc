package repository

import (
	"database/sql"
	"errors"

	"github.com/jackc/pgx/v5/pgconn"
)

const (
	pgUniqueViolation    = "23505"
	pgSerializationError = "40001"
	pgDeadlockDetected   = "40P01"
)

// ErrConflict reports a transaction that lost a concurrent write race and
// may be retried.
var ErrConflict = errors.New("concurrent update conflict")

// MapError translates driver errors into domain errors: sql.ErrNoRows
// becomes notFoundErr, a unique violation becomes duplicateErr, and
// serialization failures or deadlocks become ErrConflict. Anything else is
// returned unchanged.
func MapError(err error, notFoundErr, duplicateErr error) error {
	if err == nil {
		return nil
	}

	if errors.Is(err, sql.ErrNoRows) {
		return notFoundErr
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case pgUniqueViolation:
			return duplicateErr
		case pgSerializationError, pgDeadlockDetected:
			return errors.Join(ErrConflict, err)
		}
	}

	return err
}

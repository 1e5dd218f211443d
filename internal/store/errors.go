// Package store is the gorm-backed transaction store. Rows are validated
// before they are written and driver errors are translated into the sentinel
// values below so callers can branch on them.
package store

import (
	"errors"

	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"
)

// ErrNotFound is returned when a lookup matches no row.
var ErrNotFound = errors.New("record not found")

// ErrDuplicate is returned when an insert hits a unique constraint. Callers
// that race on inserts treat it as success.
var ErrDuplicate = errors.New("unique constraint violation")

// ErrInvalidRow is returned when a row fails validation before reaching the
// database.
var ErrInvalidRow = errors.New("invalid row")

const pgUniqueViolation = "23505"

func translate(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrNotFound
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return ErrDuplicate
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
		return ErrDuplicate
	}
	return err
}

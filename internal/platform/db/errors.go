package db

import (
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/odyssey-erp/stockflow/internal/shared"
)

const (
	codeUniqueViolation      = "23505"
	codeSerializationFailure = "40001"
	codeDeadlockDetected     = "40P01"
)

// Classify maps storage errors onto the shared taxonomy. Errors that already
// carry a taxonomy sentinel pass through untouched.
func Classify(err error) error {
	if err == nil || shared.IsTaxonomy(err) {
		return err
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case codeSerializationFailure, codeDeadlockDetected:
			return fmt.Errorf("%w: %w", shared.ErrConcurrencyConflict, err)
		case codeUniqueViolation:
			return fmt.Errorf("%w: %s: %w", shared.ErrDuplicate, pgErr.ConstraintName, err)
		}
	}
	return fmt.Errorf("%w: %w", shared.ErrPersistence, err)
}

// IsUniqueViolation reports whether err is a unique constraint violation,
// optionally restricted to the named constraint.
func IsUniqueViolation(err error, constraint string) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) || pgErr.Code != codeUniqueViolation {
		return false
	}
	return constraint == "" || pgErr.ConstraintName == constraint
}

package database

import (
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/grooveguessr/grooveguessr/internal/models"
)

// Postgres SQLSTATE codes we translate into domain errors.
const (
	uniqueViolation     = "23505"
	foreignKeyViolation = "23503"
	stringTooLong       = "22001"
)

// wrapErr classifies a driver error. Missing rows and dangling foreign keys
// become ErrNotFound, duplicate keys ErrConflict, oversized values
// ErrInvalidArgument, everything else
// ErrStorageUnavailable with the driver error kept in the chain.
func wrapErr(op string, err error) error {
	if err == nil {
		return nil
	}
	if models.IsDomain(err) {
		return fmt.Errorf("%s: %w", op, err)
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("%s: %w", op, models.ErrNotFound)
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case uniqueViolation:
			return fmt.Errorf("%s: %w: %s", op, models.ErrConflict, pgErr.ConstraintName)
		case foreignKeyViolation:
			return fmt.Errorf("%s: %w: %s", op, models.ErrNotFound, pgErr.ConstraintName)
		case stringTooLong:
			return fmt.Errorf("%s: %w: %s", op, models.ErrInvalidArgument, pgErr.Message)
		}
	}
	return fmt.Errorf("%s: %w: %w", op, models.ErrStorageUnavailable, err)
}

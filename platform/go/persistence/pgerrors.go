package persistence

import (
	"errors"

	"github.com/jackc/pgx/v5/pgconn"
)

const (
	pgUniqueViolation     = "23505"
	pgForeignKeyViolation = "23503"
	pgCheckViolation      = "23514"
	pgRaiseException      = "P0001"
)

func pgErrorCode(err error) string {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code
	}
	return ""
}

func isUniqueViolation(err error) bool {
	return pgErrorCode(err) == pgUniqueViolation
}

// isIntegrityViolation reports foreign key, check and trigger-raised failures.
func isIntegrityViolation(err error) bool {
	switch pgErrorCode(err) {
	case pgForeignKeyViolation, pgCheckViolation, pgRaiseException:
		return true
	default:
		return false
	}
}

// pgMessage returns the server-side message of a Postgres error, or err.Error().
func pgMessage(err error) string {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Message
	}
	return err.Error()
}

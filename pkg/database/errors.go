package database

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// Postgres SQLSTATE codes the services react to
const (
	CodeUniqueViolation      = "23505"
	CodeLockNotAvailable     = "55P03"
	CodeSerializationFailure = "40001"
	CodeDeadlockDetected     = "40P01"
)

// IsRetryable reports whether err is lock contention that is safe to retry:
// a lock_timeout expiry, a serialization failure, a deadlock victim, or the
// caller's deadline running out while waiting.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case CodeLockNotAvailable, CodeSerializationFailure, CodeDeadlockDetected:
			return true
		}
	}
	return false
}

// IsUniqueViolation reports whether err violates the named unique index.
// An empty constraint matches any unique violation.
func IsUniqueViolation(err error, constraint string) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) || pgErr.Code != CodeUniqueViolation {
		return false
	}
	return constraint == "" || pgErr.ConstraintName == constraint
}

// IsNoRows reports whether err is pgx.ErrNoRows
func IsNoRows(err error) bool {
	return errors.Is(err, pgx.ErrNoRows)
}

// Package pgerr centralises the Postgres SQLSTATE codes this spool
// keys on (three recovered from internally, plus unique violation),
// matching spec.md §6's note that the backend error surface is opaque
// except for a small set of numeric codes.
package pgerr

import (
	"errors"

	"github.com/jackc/pgx/v5/pgconn"
)

const (
	// AlreadyExists is Postgres's code for "relation already exists",
	// used for both tables and indexes. Stand-in for spec.md's "-5504".
	AlreadyExists = "42P07"

	// IdentityExhausted is Postgres's code for an identity/sequence
	// that can no longer produce a value. Stand-in for "-3416".
	IdentityExhausted = "2200H"

	// IntervalOverflow is Postgres's code for a datetime/interval field
	// that overflowed during a computation. Stand-in for "-3435".
	IntervalOverflow = "22008"

	// UniqueViolation covers accidental duplicate-id inserts.
	UniqueViolation = "23505"
)

// Code extracts the SQLSTATE from err, if err wraps a *pgconn.PgError.
func Code(err error) (string, bool) {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code, true
	}
	return "", false
}

// Is reports whether err carries the given SQLSTATE code.
func Is(err error, code string) bool {
	c, ok := Code(err)
	return ok && c == code
}

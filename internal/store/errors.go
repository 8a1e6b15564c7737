package store

import (
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/transfa/ledger-kernel/internal/ledgererr"
)

// uniqueViolationCode is Postgres' SQLSTATE for a unique-constraint
// violation, surfaced by pgconn as *pgconn.PgError.Code.
const uniqueViolationCode = "23505"

// IsUniqueViolation reports whether err is a Postgres unique-constraint
// violation, the signal the idempotency layer uses to detect a losing
// concurrent claim (spec §4.1 step 2).
func IsUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == uniqueViolationCode
	}
	return false
}

// translateReadError maps pgx.ErrNoRows to nil-result callers expect and
// anything else to a wrapped StoreUnavailable (Fatal) ledger error.
func translateReadError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return nil
	}
	return ledgererr.Wrap(ledgererr.ErrStoreUnavailable, err)
}

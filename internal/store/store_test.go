package store

import (
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"

	"github.com/transfa/ledger-kernel/internal/money"
)

func TestSortAccountCurrencyRefsOrdersAscending(t *testing.T) {
	a := uuid.MustParse("00000000-0000-0000-0000-000000000001")
	b := uuid.MustParse("00000000-0000-0000-0000-000000000002")

	refs := []AccountCurrencyRef{
		{AccountID: b, Currency: money.Currency("USD")},
		{AccountID: a, Currency: money.Currency("USD")},
	}
	sorted := SortAccountCurrencyRefs(refs)
	assert.Equal(t, a, sorted[0].AccountID)
	assert.Equal(t, b, sorted[1].AccountID)
}

func TestSortAccountCurrencyRefsBreaksTiesByCurrency(t *testing.T) {
	a := uuid.MustParse("00000000-0000-0000-0000-000000000001")

	refs := []AccountCurrencyRef{
		{AccountID: a, Currency: money.Currency("USD")},
		{AccountID: a, Currency: money.Currency("EUR")},
	}
	sorted := SortAccountCurrencyRefs(refs)
	assert.Equal(t, money.Currency("EUR"), sorted[0].Currency)
	assert.Equal(t, money.Currency("USD"), sorted[1].Currency)
}

func TestIsUniqueViolation(t *testing.T) {
	pgErr := &pgconn.PgError{Code: "23505"}
	assert.True(t, IsUniqueViolation(pgErr))

	otherErr := &pgconn.PgError{Code: "23503"}
	assert.False(t, IsUniqueViolation(otherErr))

	assert.False(t, IsUniqueViolation(errors.New("plain error")))
}

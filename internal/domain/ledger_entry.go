package domain

import (
	"time"

	"github.com/google/uuid"

	"github.com/transfa/ledger-kernel/internal/money"
)

// EntryType is the debit/credit side of a LedgerEntry.
type EntryType string

const (
	Debit  EntryType = "debit"
	Credit EntryType = "credit"
)

// LedgerEntry is one append-only half of a double-entry posting.
type LedgerEntry struct {
	ID            uuid.UUID
	TransactionID uuid.UUID
	AccountID     uuid.UUID
	EntryType     EntryType
	Amount        money.Amount
	Currency      money.Currency
	BalanceAfter  money.Amount
	EffectiveDate time.Time
	Metadata      map[string]any
	CreatedAt     time.Time
}

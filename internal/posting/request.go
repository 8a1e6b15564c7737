// Package posting implements the double-entry posting engine (spec §4.2): a
// validation pipeline followed by an atomic, serializable posting protocol
// that keeps every committed transaction's debits and credits in balance.
package posting

import (
	"github.com/google/uuid"

	"github.com/transfa/ledger-kernel/internal/domain"
	"github.com/transfa/ledger-kernel/internal/money"
)

// Request is a caller's instruction to post one transaction. ExternalID and
// IdempotencyKey are caller-supplied; the engine assigns the internal ID.
type Request struct {
	ExternalID           string
	IdempotencyKey       string
	Type                 domain.TransactionType
	SourceAccountID      uuid.UUID
	DestinationAccountID uuid.UUID
	Amount               money.Amount
	FeeAmount            money.Amount
	Currency             money.Currency
	Metadata             map[string]any
}

// permittedTypes lists the transaction types the engine accepts (spec §4.2
// step 1: "type ∈ permitted set").
var permittedTypes = map[domain.TransactionType]bool{
	domain.Payment:    true,
	domain.Refund:     true,
	domain.Chargeback: true,
	domain.Transfer:   true,
	domain.Fee:        true,
}

// frozenAllowedTypes lists the types a Frozen account still accepts (spec
// §4.2 step 2: "Frozen accounts reject Payment/Transfer but allow Fee and
// Chargeback reversal per policy").
var frozenAllowedTypes = map[domain.TransactionType]bool{
	domain.Fee:        true,
	domain.Chargeback: true,
}

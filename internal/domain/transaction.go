package domain

import (
	"time"

	"github.com/google/uuid"

	"github.com/transfa/ledger-kernel/internal/ledgererr"
	"github.com/transfa/ledger-kernel/internal/money"
)

// TransactionType classifies the economic event a Transaction represents.
type TransactionType string

const (
	Payment    TransactionType = "payment"
	Refund     TransactionType = "refund"
	Chargeback TransactionType = "chargeback"
	Transfer   TransactionType = "transfer"
	Fee        TransactionType = "fee"
)

// TransactionStatus is the lifecycle status of a Transaction.
type TransactionStatus string

const (
	TransactionPending  TransactionStatus = "pending"
	TransactionSettled  TransactionStatus = "settled"
	TransactionFailed   TransactionStatus = "failed"
	TransactionReversed TransactionStatus = "reversed"
)

// Transaction is the central ledger record for a single money movement.
type Transaction struct {
	ID                   uuid.UUID
	ExternalID           string
	Type                 TransactionType
	Status               TransactionStatus
	SourceAccountID      uuid.UUID
	DestinationAccountID uuid.UUID
	Amount               money.Amount
	Currency             money.Currency
	FeeAmount            money.Amount
	NetAmount            money.Amount
	SettlementBatchID    *uuid.UUID
	IdempotencyKey        string
	Metadata             map[string]any
	CreatedAt            time.Time
	SettledAt            *time.Time
}

// TransactionStateMachine governs Transaction.Status transitions. It holds
// no state itself; callers pass the current status.
type TransactionStateMachine struct{}

var transactionTransitions = map[TransactionStatus][]TransactionStatus{
	TransactionPending:  {TransactionSettled, TransactionFailed},
	TransactionSettled:  {TransactionReversed},
	TransactionFailed:   {},
	TransactionReversed: {},
}

// CanTransition reports whether from->to is a permitted transition.
func (TransactionStateMachine) CanTransition(from, to TransactionStatus) bool {
	for _, allowed := range transactionTransitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}

// Transition validates and returns the new status, or IllegalStateTransition.
func (m TransactionStateMachine) Transition(from, to TransactionStatus) (TransactionStatus, error) {
	if !m.CanTransition(from, to) {
		return from, ledgererr.Wrapf(ledgererr.ErrIllegalStateTransition, "transaction %s -> %s", from, to)
	}
	return to, nil
}

package domain

import (
	"time"

	"github.com/google/uuid"

	"github.com/transfa/ledger-kernel/internal/ledgererr"
	"github.com/transfa/ledger-kernel/internal/money"
)

// BatchStatus is the lifecycle status of a SettlementBatch.
type BatchStatus string

const (
	BatchPending    BatchStatus = "pending"
	BatchProcessing BatchStatus = "processing"
	BatchCompleted  BatchStatus = "completed"
	BatchFailed     BatchStatus = "failed"
)

// SettlementBatch groups settled transactions assigned within one
// settlement window for joint netting and completion.
type SettlementBatch struct {
	ID               uuid.UUID
	Status           BatchStatus
	SettlementDate   time.Time
	CutOffTime       time.Time
	TotalTransactions int
	GrossAmount      money.Amount
	NetAmount        money.Amount
	FeeAmount        money.Amount
	Currency         money.Currency
	Metadata         map[string]any
	CreatedAt        time.Time
	CompletedAt      *time.Time
}

// BatchStateMachine governs SettlementBatch.Status transitions.
type BatchStateMachine struct{}

var batchTransitions = map[BatchStatus][]BatchStatus{
	BatchPending:    {BatchProcessing},
	BatchProcessing: {BatchCompleted, BatchFailed},
	BatchCompleted:  {},
	BatchFailed:     {BatchProcessing},
}

// CanTransition reports whether from->to is a permitted batch transition.
func (BatchStateMachine) CanTransition(from, to BatchStatus) bool {
	for _, allowed := range batchTransitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}

// Transition validates and returns the new status, or IllegalStateTransition.
func (m BatchStateMachine) Transition(from, to BatchStatus) (BatchStatus, error) {
	if !m.CanTransition(from, to) {
		return from, ledgererr.Wrapf(ledgererr.ErrIllegalStateTransition, "batch %s -> %s", from, to)
	}
	return to, nil
}

// NettingPosition is a participant's net settlement position within a batch
// and currency, computed by the Netting Calculator. Never mutated once
// created.
type NettingPosition struct {
	BatchID          uuid.UUID
	ParticipantID    uuid.UUID
	Currency         money.Currency
	GrossReceivable  money.Amount
	GrossPayable     money.Amount
	NetPosition      money.Amount // positive => receive, negative => pay
	TransactionCount int
	CreatedAt        time.Time
}

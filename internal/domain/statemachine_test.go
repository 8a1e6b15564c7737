package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/transfa/ledger-kernel/internal/money"
)

func TestTransactionStateMachineValidTransitions(t *testing.T) {
	m := TransactionStateMachine{}

	_, err := m.Transition(TransactionPending, TransactionSettled)
	assert.NoError(t, err)

	_, err = m.Transition(TransactionPending, TransactionFailed)
	assert.NoError(t, err)

	_, err = m.Transition(TransactionSettled, TransactionReversed)
	assert.NoError(t, err)
}

func TestTransactionStateMachineRejectsIllegalTransitions(t *testing.T) {
	m := TransactionStateMachine{}

	_, err := m.Transition(TransactionFailed, TransactionSettled)
	assert.Error(t, err)

	_, err = m.Transition(TransactionReversed, TransactionPending)
	assert.Error(t, err)

	_, err = m.Transition(TransactionPending, TransactionReversed)
	assert.Error(t, err)
}

func TestBatchStateMachineValidTransitions(t *testing.T) {
	m := BatchStateMachine{}

	_, err := m.Transition(BatchPending, BatchProcessing)
	assert.NoError(t, err)

	_, err = m.Transition(BatchProcessing, BatchCompleted)
	assert.NoError(t, err)

	_, err = m.Transition(BatchProcessing, BatchFailed)
	assert.NoError(t, err)

	_, err = m.Transition(BatchFailed, BatchProcessing)
	assert.NoError(t, err)
}

func TestBatchStateMachineRejectsIllegalTransitions(t *testing.T) {
	m := BatchStateMachine{}

	_, err := m.Transition(BatchCompleted, BatchProcessing)
	assert.Error(t, err)

	_, err = m.Transition(BatchPending, BatchCompleted)
	assert.Error(t, err)
}

// balanceEffect computes the signed change a ledger entry would apply to an
// account's balance under a strict debit-normal/credit-normal sign
// convention. Kept as a reference for the convention itself: the posting
// engine's actual balance update unconditionally debits the source and
// credits the destination (see postOnce), so this never runs outside tests.
func balanceEffect(accountType AccountType, entryType EntryType, amount money.Amount) money.Amount {
	debitNormal := accountType.DebitNormal()
	isDebit := entryType == Debit

	switch {
	case debitNormal && isDebit:
		return amount
	case debitNormal && !isDebit:
		return amount.Neg()
	case !debitNormal && isDebit:
		return amount.Neg()
	default: // credit-normal, credit entry
		return amount
	}
}

func TestBalanceEffectSignConvention(t *testing.T) {
	amt := money.MustAmount("25.0000")

	assert.True(t, balanceEffect(Asset, Debit, amt).IsPositive())
	assert.True(t, balanceEffect(Asset, Credit, amt).IsNegative())
	assert.True(t, balanceEffect(Liability, Credit, amt).IsPositive())
	assert.True(t, balanceEffect(Liability, Debit, amt).IsNegative())
}

package netting

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/transfa/ledger-kernel/internal/config"
	"github.com/transfa/ledger-kernel/internal/domain"
	"github.com/transfa/ledger-kernel/internal/money"
)

const testCurrency = money.Currency("USD")

func settled(source, dest uuid.UUID, amount string) domain.Transaction {
	return domain.Transaction{
		ID:                   uuid.New(),
		Status:               domain.TransactionSettled,
		SourceAccountID:      source,
		DestinationAccountID: dest,
		Amount:               money.MustAmount(amount),
		Currency:             testCurrency,
	}
}

// TestBilateralNettingReducesTwoWayFlowToOneInstruction matches spec scenario
// 4: A pays B 100, B pays A 30 across separate transactions; bilateral
// netting must reduce this to a single 70 A->B instruction.
func TestBilateralNettingReducesTwoWayFlowToOneInstruction(t *testing.T) {
	batchID := uuid.New()
	a, b := uuid.New(), uuid.New()
	txns := []domain.Transaction{
		settled(a, b, "100.0000"),
		settled(b, a, "30.0000"),
	}

	result, err := CalculateBilateral(batchID, testCurrency, txns)
	require.NoError(t, err)

	require.Len(t, result.Instructions, 1)
	instr := result.Instructions[0]
	assert.Equal(t, a, instr.FromParticipant)
	assert.Equal(t, b, instr.ToParticipant)
	assert.True(t, instr.Amount.Equal(money.MustAmount("70.0000")))
	assert.True(t, result.GrossVolume.Equal(money.MustAmount("130.0000")))
	assert.True(t, result.NetVolume.Equal(money.MustAmount("70.0000")))
}

// TestBilateralNettingBalancedPairEmitsNoInstruction covers the Balanced
// direction: equal flow both ways nets to exactly zero.
func TestBilateralNettingBalancedPairEmitsNoInstruction(t *testing.T) {
	batchID := uuid.New()
	a, b := uuid.New(), uuid.New()
	txns := []domain.Transaction{
		settled(a, b, "50.0000"),
		settled(b, a, "50.0000"),
	}

	result, err := CalculateBilateral(batchID, testCurrency, txns)
	require.NoError(t, err)
	assert.Empty(t, result.Instructions)
	assert.True(t, result.NetVolume.IsZero())
}

// TestMultilateralNettingResolvesThreeWayCycleToZero matches spec scenario
// 5: A pays B 100, B pays C 100, C pays A 100 — a closed cycle where every
// participant's net position is zero, so no settlement instructions remain.
func TestMultilateralNettingResolvesThreeWayCycleToZero(t *testing.T) {
	batchID := uuid.New()
	a, b, c := uuid.New(), uuid.New(), uuid.New()
	txns := []domain.Transaction{
		settled(a, b, "100.0000"),
		settled(b, c, "100.0000"),
		settled(c, a, "100.0000"),
	}

	result, err := CalculateMultilateral(batchID, testCurrency, txns, time.Unix(0, 0).UTC())
	require.NoError(t, err)

	assert.Empty(t, result.Instructions)
	for _, pos := range result.Positions {
		assert.Truef(t, pos.NetPosition.IsZero(), "participant %s expected zero net position, got %s", pos.ParticipantID, pos.NetPosition)
	}
	assert.True(t, result.NetVolume.IsZero())
	assert.True(t, result.GrossVolume.Equal(money.MustAmount("300.0000")))
}

// TestMultilateralNettingGreedyMatchesLargestPayerToLargestReceiver checks
// the sort-payers-ascending/sort-receivers-descending matching order: D owes
// the most (150) and should be matched first against C, the largest
// receiver (120).
func TestMultilateralNettingGreedyMatchesLargestPayerToLargestReceiver(t *testing.T) {
	batchID := uuid.New()
	a, b, c, d := uuid.New(), uuid.New(), uuid.New(), uuid.New()
	txns := []domain.Transaction{
		settled(d, c, "120.0000"),
		settled(d, b, "30.0000"),
		settled(a, b, "20.0000"),
	}

	result, err := CalculateMultilateral(batchID, testCurrency, txns, time.Unix(0, 0).UTC())
	require.NoError(t, err)

	require.NotEmpty(t, result.Instructions)
	first := result.Instructions[0]
	assert.Equal(t, d, first.FromParticipant, "largest payer should be matched first")
	assert.Equal(t, c, first.ToParticipant, "largest receiver should be matched first")
	assert.True(t, first.Amount.Equal(money.MustAmount("120.0000")))
}

func TestCalculateReportComputesEfficiency(t *testing.T) {
	batchID := uuid.New()
	a, b := uuid.New(), uuid.New()
	txns := []domain.Transaction{
		settled(a, b, "100.0000"),
		settled(b, a, "30.0000"),
	}

	report, err := Calculate(batchID, testCurrency, config.NettingBilateral, txns, time.Unix(0, 0).UTC())
	require.NoError(t, err)

	assert.True(t, report.GrossVolume.Equal(money.MustAmount("130.0000")))
	assert.True(t, report.NetVolume.Equal(money.MustAmount("70.0000")))
	assert.True(t, report.Reduction.Equal(money.MustAmount("60.0000")))
	assert.InDelta(t, 46.15, report.EfficiencyPct, 0.01)
}
